package markets

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canalenergetico/canal-web/internal/publisher"
	mempub "github.com/canalenergetico/canal-web/internal/publisher/memory"
	memstore "github.com/canalenergetico/canal-web/internal/storage/memory"
	"github.com/canalenergetico/canal-web/internal/store"
)

type fakeFetcher struct {
	mu     sync.Mutex
	points map[string][]Point
	errs   map[string]error
	calls  map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{points: map[string][]Point{}, errs: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeFetcher) set(series string, points ...Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points[series] = points
	delete(f.errs, series)
}

func (f *fakeFetcher) fail(series string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[series] = err
}

func (f *fakeFetcher) LastN(_ context.Context, series string, n int) ([]Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[series]++
	if err := f.errs[series]; err != nil {
		return nil, err
	}
	pts := f.points[series]
	if len(pts) == 0 {
		return nil, ErrNoData
	}
	if len(pts) > n {
		pts = pts[:n]
	}
	return append([]Point(nil), pts...), nil
}

func (f *fakeFetcher) count(series string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[series]
}

type marketsFixture struct {
	svc     *Service
	store   *memstore.Store
	fetcher *fakeFetcher
	events  *mempub.Publisher
}

var refreshedAt = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func newMarketsFixture(window int, ttl time.Duration) marketsFixture {
	f := marketsFixture{store: memstore.NewStore(), fetcher: newFakeFetcher(), events: mempub.New()}
	f.svc = NewService(f.store, f.fetcher, f.events, Options{
		Symbols:    []string{"brent", "wti"},
		WindowSize: window,
		CacheTTL:   ttl,
		Topic:      "canal-markets",
		Now:        func() time.Time { return refreshedAt },
	}, nil)
	return f
}

func TestRefreshKeepsBoundedWindow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newMarketsFixture(3, 0)

	f.fetcher.set("RBRTE",
		Point{"2025-05-30", 64.1}, Point{"2025-05-29", 63.9}, Point{"2025-05-28", 63.2}, Point{"2025-05-27", 62})
	f.fetcher.set("RWTC", Point{"2025-05-30", 60.8})

	report, err := f.svc.Refresh(ctx, nil)
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.Empty(t, report.Failed())
	assert.NoError(t, report.Err())
	assert.Equal(t, SymbolResult{Symbol: "RBRTE", Points: 3, Latest: 64.1}, report.Results[0])

	closes, err := f.store.ListDaily(ctx, "RBRTE", 10)
	require.NoError(t, err)
	require.Len(t, closes, 3)
	assert.Equal(t, "2025-05-30", closes[0].Date)
	assert.Equal(t, "2025-05-28", closes[2].Date)

	q, err := f.store.GetLatest(ctx, "RBRTE")
	require.NoError(t, err)
	assert.Equal(t, store.Quote{Symbol: "RBRTE", Value: 64.1, Unit: "USD/bbl", AsOf: refreshedAt}, q)

	// A new day evicts the oldest close only.
	f.fetcher.set("RBRTE", Point{"2025-06-02", 65.3}, Point{"2025-05-30", 64.1}, Point{"2025-05-29", 63.9})
	report, err = f.svc.Refresh(ctx, []string{"EIA.RBRTE"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Results[0].Evicted)

	closes, err = f.store.ListDaily(ctx, "RBRTE", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-06-02", "2025-05-30", "2025-05-29"}, dates(closes))

	// Same data again changes nothing.
	report, err = f.svc.Refresh(ctx, []string{"RBRTE"})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Results[0].Evicted)
	again, err := f.store.ListDaily(ctx, "RBRTE", 10)
	require.NoError(t, err)
	assert.Equal(t, closes, again)

	events := f.events.ByTopic("canal-markets")
	require.Len(t, events, 3)
	ev := events[0].(publisher.Event)
	assert.Equal(t, publisher.MarketsRefreshed, ev.Type)
	assert.Equal(t, "RBRTE,RWTC", ev.Attributes["symbols"])
}

func TestRefreshDeduplicatesSymbolsAndDates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newMarketsFixture(5, 0)

	f.fetcher.set("RWTC", Point{"2025-05-29", 60}, Point{"2025-05-30", 61}, Point{"2025-05-30", 99})
	report, err := f.svc.Refresh(ctx, []string{"wti", "RWTC", " ", "WTIC"})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, 1, f.fetcher.count("RWTC"))
	assert.InDelta(t, 99, report.Results[0].Latest, 1e-9)

	closes, err := f.store.ListDaily(ctx, "RWTC", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-05-30", "2025-05-29"}, dates(closes))
	assert.InDelta(t, 99, closes[0].Close, 1e-9)
}

func TestRefreshMarksQuoteStale(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newMarketsFixture(3, 0)

	f.fetcher.set("RBRTE", Point{"2025-05-30", 64.1})
	_, err := f.svc.Refresh(ctx, []string{"RBRTE"})
	require.NoError(t, err)

	f.fetcher.fail("RBRTE", ErrNoData)
	report, err := f.svc.Refresh(ctx, []string{"RBRTE"})
	require.NoError(t, err)
	assert.Equal(t, []string{"RBRTE"}, report.Failed())
	assert.True(t, report.Results[0].Stale)
	assert.ErrorIs(t, report.Err(), ErrNoData)

	q, err := f.store.GetLatest(ctx, "RBRTE")
	require.NoError(t, err)
	assert.True(t, q.Stale)
	assert.InDelta(t, 64.1, q.Value, 1e-9)

	// Symbols never fetched have nothing to flag.
	f.fetcher.fail("RWTC", errors.New("boom"))
	report, err = f.svc.Refresh(ctx, []string{"RWTC"})
	require.NoError(t, err)
	assert.Equal(t, []string{"RWTC"}, report.Failed())
	_, err = f.store.GetLatest(ctx, "RWTC")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRefreshCancelled(t *testing.T) {
	t.Parallel()
	f := newMarketsFixture(3, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Refresh(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.events.ByTopic("canal-markets"))
}

func TestDashboard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newMarketsFixture(30, time.Minute)

	f.fetcher.set("RBRTE", Point{"2025-05-30", 64}, Point{"2025-05-29", 63.5})
	f.fetcher.set("RWTC", Point{"2025-05-30", 60.25})
	_, err := f.svc.Refresh(ctx, []string{"RBRTE"})
	require.NoError(t, err)

	dash, err := f.svc.Dashboard(ctx, "brent, WTI,XYZ")
	require.NoError(t, err)

	require.NotNil(t, dash.Prices["brent"].Price)
	assert.Equal(t, "64.0", *dash.Prices["brent"].Price)
	assert.Equal(t, []Point{{"2025-05-30", 64}, {"2025-05-29", 63.5}}, dash.Series["brent"].Values)
	// WTI had nothing stored and is refreshed live.
	assert.Equal(t, 1, f.fetcher.count("RWTC"))
	assert.Equal(t, "60.25", *dash.Prices["WTI"].Price)
	assert.Nil(t, dash.Prices["XYZ"].Price)

	raw, err := json.Marshal(dash)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"prices": {"brent": {"price": "64.0"}, "WTI": {"price": "60.25"}, "XYZ": {"price": null}},
		"series": {
			"brent": {"values": [{"datetime": "2025-05-30", "close": 64}, {"datetime": "2025-05-29", "close": 63.5}]},
			"WTI": {"values": [{"datetime": "2025-05-30", "close": 60.25}]},
			"XYZ": {"values": []}
		}
	}`, string(raw))

	// Cached until the next refresh.
	require.NoError(t, f.store.UpsertLatest(ctx, store.Quote{Symbol: "RBRTE", Value: 1}))
	cached, err := f.svc.Dashboard(ctx, "brent, WTI,XYZ")
	require.NoError(t, err)
	assert.Equal(t, "64.0", *cached.Prices["brent"].Price)

	_, err = f.svc.Refresh(ctx, []string{"RWTC"})
	require.NoError(t, err)
	fresh, err := f.svc.Dashboard(ctx, "brent, WTI,XYZ")
	require.NoError(t, err)
	assert.Equal(t, "1.0", *fresh.Prices["brent"].Price)
}

func TestDashboardDefaultsSymbols(t *testing.T) {
	t.Parallel()
	f := newMarketsFixture(30, 0)

	dash, err := f.svc.Dashboard(context.Background(), "  ")
	require.NoError(t, err)
	assert.Contains(t, dash.Prices, "RBRTE")
	assert.Contains(t, dash.Prices, "RWTC")
	assert.NotNil(t, dash.Series["RBRTE"].Values)
}

func TestDashboardRefetchesExpiredQuotes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fetcher := newFakeFetcher()
	now := refreshedAt
	svc := NewService(memstore.NewStore(), fetcher, nil, Options{
		WindowSize: 5,
		MaxAge:     time.Hour,
		Now:        func() time.Time { return now },
	}, nil)

	fetcher.set("RBRTE", Point{"2025-05-30", 64.1})
	first, err := svc.Dashboard(ctx, "brent")
	require.NoError(t, err)
	assert.Equal(t, "64.1", *first.Prices["brent"].Price)

	fetcher.set("RBRTE", Point{"2025-06-02", 70}, Point{"2025-05-30", 64.1})
	now = now.Add(30 * time.Minute)
	fresh, err := svc.Dashboard(ctx, "brent")
	require.NoError(t, err)
	assert.Equal(t, "64.1", *fresh.Prices["brent"].Price)
	assert.Equal(t, 1, fetcher.count("RBRTE"))

	now = now.Add(time.Hour)
	later, err := svc.Dashboard(ctx, "brent")
	require.NoError(t, err)
	assert.Equal(t, "70.0", *later.Prices["brent"].Price)
	assert.Equal(t, []Point{{"2025-06-02", 70}, {"2025-05-30", 64.1}}, later.Series["brent"].Values)
	assert.Equal(t, 2, fetcher.count("RBRTE"))
}

func TestMarketsNote(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newMarketsFixture(30, 0)

	n, err := f.svc.Note(ctx)
	require.NoError(t, err)
	assert.Equal(t, InitialNote, n.Content)
	assert.Nil(t, n.AuthorID)

	_, err = f.svc.UpdateNote(ctx, &store.User{ID: 7}, "   ")
	assert.ErrorIs(t, err, ErrEmptyNote)

	_, err = f.svc.UpdateNote(ctx, &store.User{ID: 7}, " El Brent sube. ")
	require.NoError(t, err)
	n, err = f.svc.Note(ctx)
	require.NoError(t, err)
	assert.Equal(t, "El Brent sube.", n.Content)
	require.NotNil(t, n.AuthorID)
	assert.Equal(t, int64(7), *n.AuthorID)
	assert.Equal(t, refreshedAt, n.UpdatedAt)
}

type countingTarget struct {
	calls atomic.Int32
	fired chan struct{}
}

func (c *countingTarget) Refresh(context.Context, []string) (RefreshReport, error) {
	if c.calls.Add(1) == 2 {
		close(c.fired)
	}
	return RefreshReport{Results: []SymbolResult{{Symbol: "RBRTE", Err: ErrNoData}}}, nil
}

func TestRefresherRunsUntilCancelled(t *testing.T) {
	t.Parallel()

	target := &countingTarget{fired: make(chan struct{})}
	r := NewRefresher(target, nil, 5*time.Millisecond, nil)
	require.True(t, r.Enabled())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	select {
	case <-target.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("refresher did not tick")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("refresher did not stop")
	}
}

func TestRefresherDisabled(t *testing.T) {
	t.Parallel()

	target := &countingTarget{fired: make(chan struct{})}
	r := NewRefresher(target, nil, 0, nil)
	assert.False(t, r.Enabled())
	r.Run(context.Background())
	assert.Equal(t, int32(0), target.calls.Load())
}

func dates(closes []store.DailyClose) []string {
	out := make([]string, 0, len(closes))
	for _, c := range closes {
		out = append(out, c.Date)
	}
	return out
}
