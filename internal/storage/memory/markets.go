package memory

import (
	"context"
	"sort"

	"github.com/canalenergetico/canal-web/internal/store"
)

// UpsertDaily implements store.MarketRepository.
func (s *Store) UpsertDaily(_ context.Context, symbol string, points []store.DailyClose, window int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.daily[symbol]
	if !ok {
		rows = make(map[string]float64)
		s.daily[symbol] = rows
	}
	for _, p := range points {
		rows[p.Date] = p.Close
	}
	if window <= 0 || len(rows) <= window {
		return 0, nil
	}

	dates := sortedDatesDesc(rows)
	evicted := 0
	for _, d := range dates[window:] {
		delete(rows, d)
		evicted++
	}
	return evicted, nil
}

// ListDaily implements store.MarketRepository.
func (s *Store) ListDaily(_ context.Context, symbol string, limit int) ([]store.DailyClose, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.daily[symbol]
	dates := sortedDatesDesc(rows)
	if limit > 0 && len(dates) > limit {
		dates = dates[:limit]
	}
	out := make([]store.DailyClose, 0, len(dates))
	for _, d := range dates {
		out = append(out, store.DailyClose{Symbol: symbol, Date: d, Close: rows[d]})
	}
	return out, nil
}

// UpsertLatest implements store.MarketRepository.
func (s *Store) UpsertLatest(_ context.Context, q store.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[q.Symbol] = q
	return nil
}

// MarkStale implements store.MarketRepository.
func (s *Store) MarkStale(_ context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.latest[symbol]; ok {
		q.Stale = true
		s.latest[symbol] = q
	}
	return nil
}

// GetLatest implements store.MarketRepository.
func (s *Store) GetLatest(_ context.Context, symbol string) (store.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.latest[symbol]
	if !ok {
		return store.Quote{}, store.ErrNotFound
	}
	return q, nil
}

// sortedDatesDesc sorts YYYY-MM-DD keys, which order lexically.
func sortedDatesDesc(rows map[string]float64) []string {
	dates := make([]string, 0, len(rows))
	for d := range rows {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates
}
