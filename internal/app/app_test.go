package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canalenergetico/canal-web/internal/config"
	"github.com/canalenergetico/canal-web/internal/publisher"
	mempub "github.com/canalenergetico/canal-web/internal/publisher/memory"
)

func memoryConfig() config.Config {
	return config.Config{
		Server:  config.ServerConfig{Port: 8080, RequestTimeoutSeconds: 5, BaseURL: "http://localhost:8080"},
		Site:    config.SiteConfig{Name: "Canal Energético", Language: "es"},
		Auth:    config.AuthConfig{SecretKey: "test", BcryptCost: 4},
		DB:      config.DBConfig{Driver: "memory"},
		Markets: config.MarketsConfig{WindowSize: 30, ChunkSize: 10, Symbols: []string{"RBRTE"}},
		Mail:    config.MailConfig{Provider: "log"},
		Storage: config.StorageConfig{Provider: "memory", PublicBaseURL: "/media"},
		Events:  config.EventsConfig{Provider: "memory", TopicPrefix: "canal-"},
	}
}

func TestBuildWithMemoryBackends(t *testing.T) {
	t.Parallel()

	a, err := Build(context.Background(), memoryConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	assert.NotNil(t, a.Auth())
	assert.NotNil(t, a.Markets())
	assert.NotNil(t, a.Logger())
	assert.False(t, a.refresher.Enabled())
	_, isMemory := a.events.(*mempub.Publisher)
	assert.True(t, isMemory)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildDefaultsToNoopEvents(t *testing.T) {
	t.Parallel()
	cfg := memoryConfig()
	cfg.Events.Provider = "noop"

	a, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	assert.IsType(t, publisher.Noop{}, a.events)
}

func TestBuildFailsOnUnreachablePostgres(t *testing.T) {
	t.Parallel()
	cfg := memoryConfig()
	cfg.DB = config.DBConfig{Driver: "postgres", DSN: "postgres://%zz"}

	a, err := Build(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Nil(t, a)
}

func TestBuildRejectsUnknownStorage(t *testing.T) {
	t.Parallel()
	cfg := memoryConfig()
	cfg.Storage.Provider = "ftp"

	_, err := Build(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage provider")
}

func TestRunStopsWhenContextIsCanceled(t *testing.T) {
	t.Parallel()
	cfg := memoryConfig()
	cfg.Server.Port = 0

	a, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, a.Run(ctx))
}
