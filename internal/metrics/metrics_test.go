package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeLabel(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"series id", "RBRTE", "rbrte"},
		{"alias with prefix", "EIA.RWTC", "eia.rwtc"},
		{"spaces trimmed", "  wti ", "wti"},
		{"symbols dropped", "status 503!", "status503"},
		{"empty string", "", "unknown"},
		{"only punctuation", "¿?", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeLabel(tc.input); got != tc.expected {
				t.Errorf("SanitizeLabel(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if httpRequestsTotal == nil || marketRefreshTotal == nil || emailsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveMarketWindow(t *testing.T) {
	ObserveMarketWindow("TESTSYM", 3, 82.5)
	ObserveMarketWindow("TESTSYM", 0, 83.1)

	if val := testutil.ToFloat64(marketEvictionsTotal.WithLabelValues("testsym")); val != 3 {
		t.Errorf("expected 3 evictions, got %f", val)
	}
	if val := testutil.ToFloat64(marketLastClose.WithLabelValues("testsym")); val != 83.1 {
		t.Errorf("expected last close 83.1, got %f", val)
	}
}

func TestObserveCounters(t *testing.T) {
	ObserveLogin("test-failure")
	ObserveEmail("test-kind", "sent")
	ObserveEIARetry("status_429")

	if val := testutil.ToFloat64(loginsTotal.WithLabelValues("test-failure")); val != 1 {
		t.Errorf("expected 1 login, got %f", val)
	}
	if val := testutil.ToFloat64(emailsTotal.WithLabelValues("test-kind", "sent")); val != 1 {
		t.Errorf("expected 1 email, got %f", val)
	}
	if val := testutil.ToFloat64(eiaRetriesTotal.WithLabelValues("status_429")); val != 1 {
		t.Errorf("expected 1 retry, got %f", val)
	}
}

// Fuzz test for SanitizeLabel.
func FuzzSanitizeLabel(f *testing.F) {
	for _, tc := range []string{"RBRTE", "wti", "EIA.RBRTE", ""} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeLabel(orig)
		if sanitized == "" || len(sanitized) > 32 {
			t.Errorf("SanitizeLabel(%q) returned %q", orig, sanitized)
		}
	})
}
