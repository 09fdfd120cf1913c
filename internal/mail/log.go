package mail

import (
	"context"

	"go.uber.org/zap"

	"github.com/canalenergetico/canal-web/internal/logging"
)

// LogSender writes messages to the log instead of delivering them. It is the
// development default.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender builds a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logging.OrNop(logger)}
}

// Send logs msg.
func (l *LogSender) Send(_ context.Context, msg Message) error {
	l.logger.Info("Email (log only)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("text", msg.Text),
	)
	return nil
}
