package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/mailgun/mailgun-go/v4"
)

type mailgunClient interface {
	NewMessage(from, subject, text string, to ...string) *mailgun.Message
	Send(ctx context.Context, m *mailgun.Message) (string, string, error)
}

// MailgunSender delivers through the Mailgun HTTP API.
type MailgunSender struct {
	mg      mailgunClient
	from    string
	timeout time.Duration
}

// NewMailgunSender builds a MailgunSender for domain.
func NewMailgunSender(domain, apiKey, from string) *MailgunSender {
	return &MailgunSender{
		mg:      mailgun.NewMailgun(domain, apiKey),
		from:    from,
		timeout: 20 * time.Second,
	}
}

// Send delivers msg.
func (s *MailgunSender) Send(ctx context.Context, msg Message) error {
	m := s.mg.NewMessage(s.from, msg.Subject, msg.Text, msg.To)
	m.SetHtml(msg.HTML)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	resp, _, err := s.mg.Send(ctx, m)
	if err != nil {
		return fmt.Errorf("mailgun send failed: %w. Response: %s", err, resp)
	}
	return nil
}
