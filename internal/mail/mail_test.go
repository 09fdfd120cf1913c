package mail

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canalenergetico/canal-web/internal/config"
)

func TestNewSelectsProvider(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     config.MailConfig
		wantErr string
	}{
		{name: "log default", cfg: config.MailConfig{}},
		{name: "smtp", cfg: config.MailConfig{Provider: "smtp", SMTPHost: "smtp.gmail.com", SMTPPort: 587, Sender: "a@canal.com"}},
		{name: "smtp missing host", cfg: config.MailConfig{Provider: "smtp", Sender: "a@canal.com"}, wantErr: "smtp_host"},
		{name: "mailgun", cfg: config.MailConfig{Provider: "mailgun", MailgunDomain: "mg.canal.com", MailgunAPIKey: "key", Sender: "a@canal.com"}},
		{name: "mailgun incomplete", cfg: config.MailConfig{Provider: "mailgun"}, wantErr: "mailgun_domain"},
		{name: "unknown", cfg: config.MailConfig{Provider: "fax"}, wantErr: "unknown provider"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s, err := New(tc.cfg, nil)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, s)
		})
	}
}

func TestSMTPSenderBuildsMultipartMessage(t *testing.T) {
	t.Parallel()

	s := NewSMTPSender("smtp.canal.com", 587, "user", "pass", "Canal Energético <no-reply@canal.com>")
	s.now = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }

	var gotAddr, gotFrom string
	var gotTo []string
	var gotBody []byte
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotBody = addr, from, to, msg
		assert.NotNil(t, a)
		return nil
	}

	err := s.Send(context.Background(), ResetEmail("ana@canal.com", "Ana", "https://canal.com/reset-password/t"))
	require.NoError(t, err)

	assert.Equal(t, "smtp.canal.com:587", gotAddr)
	assert.Equal(t, "no-reply@canal.com", gotFrom)
	assert.Equal(t, []string{"ana@canal.com"}, gotTo)
	body := string(gotBody)
	assert.Contains(t, body, "multipart/alternative")
	assert.Contains(t, body, "Subject: =?utf-8?q?")
	assert.Contains(t, body, "text/html; charset=utf-8")
	assert.Contains(t, body, "https://canal.com/reset-password/t")
}

func TestSMTPSenderWrapsErrors(t *testing.T) {
	t.Parallel()

	s := NewSMTPSender("smtp.canal.com", 25, "", "", "no-reply@canal.com")
	s.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}
	err := s.Send(context.Background(), TestEmail("ops@canal.com"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SMTP")
}

type fakeMailgun struct {
	sent []*mailgun.Message
	err  error
}

func (f *fakeMailgun) NewMessage(from, subject, text string, to ...string) *mailgun.Message {
	return mailgun.NewMailgun("mg.canal.com", "key").NewMessage(from, subject, text, to...)
}

func (f *fakeMailgun) Send(_ context.Context, m *mailgun.Message) (string, string, error) {
	if f.err != nil {
		return "rejected", "", f.err
	}
	f.sent = append(f.sent, m)
	return "Queued", "<id@mg>", nil
}

func TestMailgunSender(t *testing.T) {
	t.Parallel()

	fake := &fakeMailgun{}
	s := &MailgunSender{mg: fake, from: "Canal <no-reply@canal.com>", timeout: time.Second}
	require.NoError(t, s.Send(context.Background(), TestEmail("ops@canal.com")))
	require.Len(t, fake.sent, 1)

	fake.err = errors.New("forbidden")
	err := s.Send(context.Background(), TestEmail("ops@canal.com"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
}

func TestInstrumentPropagatesErrors(t *testing.T) {
	t.Parallel()

	rec := &Recorder{}
	s := Instrument(rec, nil)
	require.NoError(t, s.Send(context.Background(), TestEmail("ops@canal.com")))
	assert.Len(t, rec.Sent(), 1)

	rec.Err = errors.New("boom")
	assert.Error(t, s.Send(context.Background(), TestEmail("ops@canal.com")))
}

func TestTemplatesEscapeInput(t *testing.T) {
	t.Parallel()

	msg := SuggestionEmail("info@canal.com", "<b>Ley</b>", "https://gaceta.gob.pa/ley", "ver <script>")
	assert.Equal(t, KindSuggestion, msg.Kind)
	assert.NotContains(t, msg.HTML, "<script>")
	assert.Contains(t, msg.HTML, "&lt;b&gt;Ley&lt;/b&gt;")

	verify := VerificationEmail("ana@canal.com", "Ana", "https://canal.com/verify-email/x", true)
	assert.True(t, strings.HasPrefix(verify.Subject, "Reenviar"))
	assert.Contains(t, verify.HTML, "nuevo enlace")
}

func TestIsPlaceholderAddress(t *testing.T) {
	t.Parallel()

	assert.True(t, IsPlaceholderAddress("someone@example.com"))
	assert.True(t, IsPlaceholderAddress("someone@Ejemplo.com"))
	assert.True(t, IsPlaceholderAddress("not-an-address"))
	assert.False(t, IsPlaceholderAddress("info.canalenergetico@gmail.com"))
}
