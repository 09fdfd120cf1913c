package store

import (
	"context"
	"time"
)

// DailyClose is one stored point of a price window.
type DailyClose struct {
	Symbol string
	// Date is the trading day formatted YYYY-MM-DD.
	Date  string
	Close float64
}

// Quote is the latest known price of a symbol.
type Quote struct {
	Symbol string
	Value  float64
	Unit   string
	AsOf   time.Time
	// Stale is set when the last refresh failed and Value is carried over.
	Stale bool
}

// MarketRepository persists price windows and latest quotes.
type MarketRepository interface {
	// UpsertDaily inserts or updates each (symbol, date) close, then evicts the
	// oldest rows so at most window remain. Returns the number evicted.
	UpsertDaily(ctx context.Context, symbol string, points []DailyClose, window int) (int, error)
	// ListDaily returns up to limit closes, newest date first.
	ListDaily(ctx context.Context, symbol string, limit int) ([]DailyClose, error)
	// UpsertLatest stores the latest quote of q.Symbol.
	UpsertLatest(ctx context.Context, q Quote) error
	// MarkStale flags the latest quote of symbol as stale. Missing rows are ignored.
	MarkStale(ctx context.Context, symbol string) error
	// GetLatest loads the latest quote or returns ErrNotFound.
	GetLatest(ctx context.Context, symbol string) (Quote, error)
}
