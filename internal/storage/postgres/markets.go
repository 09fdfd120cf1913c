package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/canalenergetico/canal-web/internal/store"
)

// UpsertDaily implements store.MarketRepository. Duplicate dates in points
// keep the last occurrence.
func (s *Store) UpsertDaily(ctx context.Context, symbol string, points []store.DailyClose, window int) (int, error) {
	dates := make([]string, 0, len(points))
	closes := make([]float64, 0, len(points))
	index := make(map[string]int, len(points))
	for _, p := range points {
		if i, ok := index[p.Date]; ok {
			closes[i] = p.Close
			continue
		}
		index[p.Date] = len(dates)
		dates = append(dates, p.Date)
		closes = append(closes, p.Close)
	}

	var evicted int
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if len(dates) > 0 {
			_, err := tx.Exec(ctx, `
				INSERT INTO mercado_daily (symbol, date, close)
				SELECT $1, d, c FROM unnest($2::text[], $3::float8[]) AS u(d, c)
				ON CONFLICT ON CONSTRAINT uq_symbol_date DO UPDATE SET close = EXCLUDED.close`,
				symbol, dates, closes)
			if err != nil {
				return mapErr(err, "upsert daily closes")
			}
		}
		if window <= 0 {
			return nil
		}
		tag, err := tx.Exec(ctx, `
			DELETE FROM mercado_daily
			WHERE symbol = $1 AND id NOT IN (
				SELECT id FROM mercado_daily WHERE symbol = $1 ORDER BY date DESC LIMIT $2
			)`, symbol, window)
		if err != nil {
			return mapErr(err, "evict daily closes")
		}
		evicted = int(tag.RowsAffected())
		return nil
	})
	if err != nil {
		return 0, err
	}
	return evicted, nil
}

// ListDaily implements store.MarketRepository.
func (s *Store) ListDaily(ctx context.Context, symbol string, limit int) ([]store.DailyClose, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT symbol, date, close FROM mercado_daily
		WHERE symbol = $1
		ORDER BY date DESC
		LIMIT NULLIF($2, 0)`, symbol, max(limit, 0))
	if err != nil {
		return nil, mapErr(err, "list daily closes")
	}
	defer rows.Close()
	out := make([]store.DailyClose, 0)
	for rows.Next() {
		var d store.DailyClose
		if err := rows.Scan(&d.Symbol, &d.Date, &d.Close); err != nil {
			return nil, fmt.Errorf("scan daily close: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily closes: %w", err)
	}
	return out, nil
}

// UpsertLatest implements store.MarketRepository.
func (s *Store) UpsertLatest(ctx context.Context, q store.Quote) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO mercado_ultimo (symbol, value, unit, asof, stale)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (symbol) DO UPDATE
		SET value = EXCLUDED.value, unit = EXCLUDED.unit, asof = EXCLUDED.asof, stale = EXCLUDED.stale`,
		q.Symbol, q.Value, q.Unit, q.AsOf, q.Stale)
	if err != nil {
		return mapErr(err, "upsert latest quote")
	}
	return nil
}

// MarkStale implements store.MarketRepository.
func (s *Store) MarkStale(ctx context.Context, symbol string) error {
	if _, err := s.pool.Exec(ctx, `UPDATE mercado_ultimo SET stale = TRUE WHERE symbol = $1`, symbol); err != nil {
		return mapErr(err, "mark quote stale")
	}
	return nil
}

// GetLatest implements store.MarketRepository.
func (s *Store) GetLatest(ctx context.Context, symbol string) (store.Quote, error) {
	var q store.Quote
	err := s.pool.QueryRow(ctx, `
		SELECT symbol, value, unit, asof, stale FROM mercado_ultimo WHERE symbol = $1`, symbol,
	).Scan(&q.Symbol, &q.Value, &q.Unit, &q.AsOf, &q.Stale)
	if err != nil {
		return store.Quote{}, mapErr(err, "get latest quote")
	}
	return q, nil
}
