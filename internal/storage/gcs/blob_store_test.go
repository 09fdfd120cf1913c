package gcs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRequiresClient(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "canal-media"})
	assert.ErrorContains(t, err, "client")
}

func TestPublicBase(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{name: "default", cfg: Config{Bucket: "canal-media", PublicBaseURL: "/media"}, want: "https://storage.googleapis.com/canal-media"},
		{name: "cdn", cfg: Config{Bucket: "canal-media", PublicBaseURL: "https://cdn.canalenergetico.com/"}, want: "https://cdn.canalenergetico.com"},
		{name: "empty", cfg: Config{Bucket: "b"}, want: "https://storage.googleapis.com/b"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, PublicBase(tc.cfg))
		})
	}
}
