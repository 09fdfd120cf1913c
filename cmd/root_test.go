package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/canalenergetico/canal-web/internal/auth"
	"github.com/canalenergetico/canal-web/internal/config"
	"github.com/canalenergetico/canal-web/internal/mail"
	"github.com/canalenergetico/canal-web/internal/markets"
	"github.com/canalenergetico/canal-web/internal/publisher"
	memstore "github.com/canalenergetico/canal-web/internal/storage/memory"
	"github.com/canalenergetico/canal-web/internal/store"
)

const memoryYAML = `
server:
  debug: true
db:
  driver: memory
logging:
  development: false
  level: error
`

type fakeApp struct {
	ran    bool
	closed bool
	auth   *auth.Service
	mkts   *markets.Service
}

func (f *fakeApp) Run(context.Context) error   { f.ran = true; return nil }
func (f *fakeApp) Close(context.Context) error { f.closed = true; return nil }
func (f *fakeApp) Auth() *auth.Service         { return f.auth }
func (f *fakeApp) Markets() *markets.Service   { return f.mkts }

type staticFetcher []markets.Point

func (s staticFetcher) LastN(context.Context, string, int) ([]markets.Point, error) {
	return s, nil
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "canal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func newFakeApp(t *testing.T) *fakeApp {
	t.Helper()
	return newFakeAppWith(t, staticFetcher{{Date: "2025-06-02", Close: 65.5}})
}

func newFakeAppWith(t *testing.T, fetcher markets.Fetcher) *fakeApp {
	t.Helper()
	st := memstore.NewStore()
	cfg := config.Config{Auth: config.AuthConfig{SecretKey: "test", BcryptCost: 4}}
	return &fakeApp{
		auth: auth.NewService(st, &mail.Recorder{}, cfg, nil),
		mkts: markets.NewService(st, fetcher, publisher.Noop{}, markets.Options{WindowSize: 3}, nil),
	}
}

// useApp swaps the application factory for the duration of the test.
func useApp(t *testing.T, a App) {
	t.Helper()
	prev := newApp
	newApp = func(context.Context, config.Config, *zap.Logger) (App, error) { return a, nil }
	t.Cleanup(func() { newApp = prev })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestServeRunsApplication(t *testing.T) {
	fake := newFakeApp(t)
	useApp(t, fake)

	_, err := execute(t, "serve", "--config", writeConfig(t, memoryYAML))
	require.NoError(t, err)
	assert.True(t, fake.ran)
}

func TestMissingConfigFileFails(t *testing.T) {
	_, err := execute(t, "serve", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestMarketsRefreshPrintsReport(t *testing.T) {
	fake := newFakeApp(t)
	useApp(t, fake)

	out, err := execute(t, "markets", "refresh", "--symbols", "brent", "--config", writeConfig(t, memoryYAML))
	require.NoError(t, err)
	assert.Contains(t, out, "RBRTE\tok")
	assert.True(t, fake.closed)
}

func TestMarketsRefreshReportsStaleSeries(t *testing.T) {
	fake := newFakeAppWith(t, staticFetcher{})
	useApp(t, fake)

	out, err := execute(t, "markets", "refresh", "--symbols", "wti", "--config", writeConfig(t, memoryYAML))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh failed for RWTC")
	assert.Contains(t, out, "RWTC\tstale\t")
	assert.NotContains(t, out, "RWTC\terror")
}

func TestUsersRoleUpdatesAccount(t *testing.T) {
	fake := newFakeApp(t)
	useApp(t, fake)
	ctx := context.Background()
	_, err := fake.auth.Register(ctx, "http://localhost", "Ana", "ana@canal.test", "secreto123")
	require.NoError(t, err)

	out, err := execute(t, "users", "role", "ana@canal.test", "colaborador", "--config", writeConfig(t, memoryYAML))
	require.NoError(t, err)
	assert.Contains(t, out, "ana@canal.test is now colaborador")

	u, err := fake.auth.Authenticate(ctx, "ana@canal.test", "secreto123")
	require.NoError(t, err)
	assert.Equal(t, store.RoleColaborador, u.Role)
}

func TestUsersRoleRejectsUnknownRole(t *testing.T) {
	fake := newFakeApp(t)
	useApp(t, fake)

	_, err := execute(t, "users", "role", "ana@canal.test", "jefe", "--config", writeConfig(t, memoryYAML))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown role")
	assert.False(t, fake.closed)
}

func TestMigrateRequiresPostgres(t *testing.T) {
	_, err := execute(t, "migrate", "--config", writeConfig(t, memoryYAML))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db.driver postgres")
}

func TestMigrateReportsVersion(t *testing.T) {
	prev := migrateDB
	migrateDB = func(context.Context, config.DBConfig, *zap.Logger) (int64, error) { return 1, nil }
	t.Cleanup(func() { migrateDB = prev })

	cfgYAML := `
server:
  debug: true
db:
  dsn: postgres://canal@localhost/canal
logging:
  level: error
`
	out, err := execute(t, "migrate", "--config", writeConfig(t, cfgYAML))
	require.NoError(t, err)
	assert.Contains(t, out, "database at version 1")
}
