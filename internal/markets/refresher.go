package markets

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/canalenergetico/canal-web/internal/logging"
)

// Refreshing is what the background refresher drives.
type Refreshing interface {
	Refresh(ctx context.Context, symbols []string) (RefreshReport, error)
}

// Refresher periodically refreshes the configured symbols.
type Refresher struct {
	target   Refreshing
	symbols  []string
	interval time.Duration
	logger   *zap.Logger
}

// NewRefresher builds a Refresher. A non-positive interval disables it.
func NewRefresher(target Refreshing, symbols []string, interval time.Duration, logger *zap.Logger) *Refresher {
	return &Refresher{
		target:   target,
		symbols:  symbols,
		interval: interval,
		logger:   logging.OrNop(logger).Named("refresher"),
	}
}

// Enabled reports whether Run does any work.
func (r *Refresher) Enabled() bool {
	return r.interval > 0
}

// Run refreshes immediately, then on every tick until ctx ends.
func (r *Refresher) Run(ctx context.Context) {
	if !r.Enabled() {
		return
	}
	r.logger.Info("Market refresher started", zap.Duration("interval", r.interval))
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		r.once(ctx)
		select {
		case <-ctx.Done():
			r.logger.Info("Market refresher stopped")
			return
		case <-ticker.C:
		}
	}
}

func (r *Refresher) once(ctx context.Context) {
	report, err := r.target.Refresh(ctx, r.symbols)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("Market refresh failed", zap.Error(err))
		}
		return
	}
	if failed := report.Failed(); len(failed) > 0 {
		r.logger.Warn("Market refresh incomplete", zap.Strings("failed", failed), zap.Error(report.Err()))
	}
}
