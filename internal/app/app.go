// Package app builds the site's long-lived dependencies from configuration and
// runs the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/canalenergetico/canal-web/internal/api"
	"github.com/canalenergetico/canal-web/internal/auth"
	"github.com/canalenergetico/canal-web/internal/config"
	"github.com/canalenergetico/canal-web/internal/content"
	"github.com/canalenergetico/canal-web/internal/logging"
	"github.com/canalenergetico/canal-web/internal/mail"
	"github.com/canalenergetico/canal-web/internal/markets"
	"github.com/canalenergetico/canal-web/internal/metrics"
	"github.com/canalenergetico/canal-web/internal/publisher"
	mempub "github.com/canalenergetico/canal-web/internal/publisher/memory"
	gcppub "github.com/canalenergetico/canal-web/internal/publisher/pubsub"
	"github.com/canalenergetico/canal-web/internal/regulations"
	"github.com/canalenergetico/canal-web/internal/storage"
	memstore "github.com/canalenergetico/canal-web/internal/storage/memory"
	pgstore "github.com/canalenergetico/canal-web/internal/storage/postgres"
	"github.com/canalenergetico/canal-web/internal/store"
	"github.com/canalenergetico/canal-web/internal/telemetry"
)

const (
	articlesTopic      = "articles"
	marketsTopic       = "markets"
	refreshConcurrency = 4
	shutdownTimeout    = 10 * time.Second
)

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	store        store.Store
	blobs        storage.Blobs
	events       publisher.Publisher
	pubsubClient *pubsub.Client
	gcpPublisher *gcppub.Publisher
	telemetry    *telemetry.Providers

	auth      *auth.Service
	markets   *markets.Service
	refresher *markets.Refresher
	handler   http.Handler
}

// Build creates the application's dependencies. On error everything opened
// so far is released.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logging.OrNop(logger)}
	if err := a.build(ctx); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) (err error) {
	cfg := a.cfg
	a.logger.Info("Building application",
		zap.Int("port", cfg.Server.Port),
		zap.String("db_driver", cfg.DB.Driver),
		zap.String("storage", cfg.Storage.Provider),
		zap.String("events", cfg.Events.Provider),
		zap.String("mail", cfg.Mail.Provider),
	)

	metrics.Init()
	if cfg.Telemetry.Enabled {
		if a.telemetry, err = telemetry.Init(ctx, cfg.Telemetry); err != nil {
			return fmt.Errorf("telemetry init failed: %w", err)
		}
	}

	if a.store, err = setupStore(ctx, cfg, a.logger); err != nil {
		return err
	}
	if a.blobs, err = storage.New(ctx, cfg.Storage, a.logger); err != nil {
		return fmt.Errorf("blob store init failed: %w", err)
	}
	if err = a.setupPublisher(ctx); err != nil {
		return err
	}
	mailer, err := mail.New(cfg.Mail, a.logger)
	if err != nil {
		return fmt.Errorf("mailer init failed: %w", err)
	}
	authz, err := auth.NewAuthorizer()
	if err != nil {
		return err
	}

	a.auth = auth.NewService(a.store, mailer, cfg, a.logger)
	a.markets = markets.NewService(a.store, markets.NewClient(cfg.Markets, nil, a.logger), a.events, markets.Options{
		Symbols:     cfg.Markets.Symbols,
		Unit:        cfg.Markets.Unit,
		WindowSize:  cfg.Markets.WindowSize,
		Concurrency: refreshConcurrency,
		CacheTTL:    time.Duration(cfg.Markets.CacheTTLSeconds) * time.Second,
		MaxAge:      time.Duration(cfg.Markets.MaxAgeMinutes) * time.Minute,
		Topic:       cfg.Events.TopicPrefix + marketsTopic,
	}, a.logger)
	a.refresher = markets.NewRefresher(a.markets, cfg.Markets.Symbols,
		time.Duration(cfg.Markets.RefreshIntervalMin)*time.Minute, a.logger)

	svc := api.Services{
		Store: a.store,
		Content: content.NewService(a.store, a.blobs.Store, a.events, authz, content.Options{
			Topic:          cfg.Events.TopicPrefix + articlesTopic,
			ImagePrefix:    cfg.Storage.Prefix,
			MaxUploadBytes: cfg.Storage.MaxUploadBytes,
		}, a.logger),
		Auth:        a.auth,
		Authz:       authz,
		Markets:     a.markets,
		Regulations: regulations.NewService(a.store, mailer, cfg.ContactAddress(), a.logger),
		Mailer:      mailer,
		Media:       a.blobs.Handler,
	}
	server, err := api.NewServer(svc, cfg, a.logger)
	if err != nil {
		return fmt.Errorf("api server init failed: %w", err)
	}
	a.handler = server.Handler()
	if a.telemetry != nil {
		a.handler = otelhttp.NewHandler(a.handler, cfg.Telemetry.ServiceName)
	}
	a.logger.Info("Application built")
	return nil
}

func setupStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Store, error) {
	if cfg.DB.Driver == "memory" {
		logger.Warn("Using in-memory store, data is lost on restart")
		return memstore.NewStore(), nil
	}
	pool, err := pgstore.Open(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("postgres init failed: %w", err)
	}
	if cfg.DB.AutoMigrate {
		if _, err := pgstore.Migrate(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, err
		}
	}
	st, err := pgstore.NewStoreWithPool(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("Postgres store ready", zap.Int32("max_conns", pool.Config().MaxConns))
	return st, nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	switch a.cfg.Events.Provider {
	case "pubsub":
		client, err := pubsub.NewClient(ctx, a.cfg.Events.ProjectID)
		if err != nil {
			return fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsubClient = client
		a.gcpPublisher = gcppub.New(client)
		a.events = a.gcpPublisher
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.Events.ProjectID),
			zap.String("topic_prefix", a.cfg.Events.TopicPrefix),
		)
	case "memory":
		a.events = mempub.New()
		a.logger.Info("Using in-memory event publisher")
	default:
		a.events = publisher.Noop{}
	}
	return nil
}

// Handler is the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Auth exposes the account service for administrative commands.
func (a *App) Auth() *auth.Service {
	return a.auth
}

// Markets exposes the markets service for one-shot refreshes.
func (a *App) Markets() *markets.Service {
	return a.markets
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Run serves HTTP and the optional market refresher until ctx is canceled or
// SIGINT/SIGTERM arrives, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.handler,
		ReadHeaderTimeout: a.cfg.ReadHeaderTimeout(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("HTTP server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if a.refresher.Enabled() {
		g.Go(func() error {
			a.refresher.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("Server shutdown error", zap.Error(err))
		}
		return nil
	})
	runErr := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(runErr, a.Close(closeCtx))
}

// Close releases every dependency that was opened. It is safe on a partially
// built App.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.gcpPublisher != nil {
		a.gcpPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pubsub client: %w", err))
		}
	}
	if a.blobs.Close != nil {
		if err := a.blobs.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close blob store: %w", err))
		}
	}
	if a.store != nil {
		a.store.Close()
	}
	if err := a.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	_ = a.logger.Sync()
	a.logger.Info("Shutdown complete")
	return errors.Join(errs...)
}

// MigrateDatabase applies the embedded migrations against cfg.DB and returns
// the schema version.
func MigrateDatabase(ctx context.Context, cfg config.DBConfig, logger *zap.Logger) (int64, error) {
	pool, err := pgstore.Open(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer pool.Close()
	return pgstore.Migrate(ctx, pool, logging.OrNop(logger))
}
