// Package mail sends the site's transactional emails through SMTP, Mailgun or
// the log.
package mail

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/canalenergetico/canal-web/internal/config"
	"github.com/canalenergetico/canal-web/internal/logging"
	"github.com/canalenergetico/canal-web/internal/metrics"
)

// Kinds label outgoing messages for metrics and logs.
const (
	KindVerification = "verification"
	KindReset        = "reset"
	KindTest         = "test"
	KindSuggestion   = "suggestion"
)

// Message is one HTML email with a plain-text alternative.
type Message struct {
	Kind    string
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// New returns the sender selected by cfg.Provider wrapped with metrics.
func New(cfg config.MailConfig, logger *zap.Logger) (Sender, error) {
	logger = logging.OrNop(logger).Named("mail")
	from := formatFrom(cfg.SenderName, cfg.Sender)

	var s Sender
	switch cfg.Provider {
	case "", "log":
		s = NewLogSender(logger)
	case "smtp":
		if cfg.SMTPHost == "" || cfg.Sender == "" {
			return nil, fmt.Errorf("mail: smtp requires smtp_host and sender")
		}
		s = NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, from)
	case "mailgun":
		if cfg.MailgunDomain == "" || cfg.MailgunAPIKey == "" || cfg.Sender == "" {
			return nil, fmt.Errorf("mail: mailgun requires mailgun_domain, mailgun_api_key and sender")
		}
		s = NewMailgunSender(cfg.MailgunDomain, cfg.MailgunAPIKey, from)
	default:
		return nil, fmt.Errorf("mail: unknown provider %q", cfg.Provider)
	}
	logger.Info("Mail sender initialized", zap.String("provider", cfg.Provider))
	return Instrument(s, logger), nil
}

func formatFrom(name, addr string) string {
	if name == "" {
		return addr
	}
	return fmt.Sprintf("%s <%s>", name, addr)
}

type instrumented struct {
	next   Sender
	logger *zap.Logger
}

// Instrument counts and logs every send attempt of next.
func Instrument(next Sender, logger *zap.Logger) Sender {
	return &instrumented{next: next, logger: logging.OrNop(logger)}
}

func (i *instrumented) Send(ctx context.Context, msg Message) error {
	kind := msg.Kind
	if kind == "" {
		kind = "other"
	}
	if err := i.next.Send(ctx, msg); err != nil {
		metrics.ObserveEmail(kind, "error")
		i.logger.Error("Email delivery failed",
			zap.String("kind", kind), zap.String("to", msg.To), zap.Error(err))
		return err
	}
	metrics.ObserveEmail(kind, "sent")
	i.logger.Info("Email sent", zap.String("kind", kind), zap.String("to", msg.To))
	return nil
}

var placeholderDomains = map[string]struct{}{
	"example.com": {},
	"ejemplo.com": {},
	"example.org": {},
	"test.com":    {},
}

// IsPlaceholderAddress reports whether addr is unparseable or points at an
// example domain that must never receive mail.
func IsPlaceholderAddress(addr string) bool {
	_, domain, ok := strings.Cut(strings.TrimSpace(addr), "@")
	if !ok || domain == "" {
		return true
	}
	_, bad := placeholderDomains[strings.ToLower(domain)]
	return bad
}
