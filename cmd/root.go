// Package cmd defines the CLI commands of the canal executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/canalenergetico/canal-web/internal/app"
	"github.com/canalenergetico/canal-web/internal/auth"
	"github.com/canalenergetico/canal-web/internal/config"
	"github.com/canalenergetico/canal-web/internal/logging"
	"github.com/canalenergetico/canal-web/internal/markets"
)

// envKey is the context key of the loaded runtime environment.
type envKey struct{}

// runtimeEnv is what PersistentPreRunE prepares for every subcommand.
type runtimeEnv struct {
	cfg    config.Config
	logger *zap.Logger
}

// App is the subset of *app.App the commands use. Tests swap the factory.
type App interface {
	Run(ctx context.Context) error
	Close(ctx context.Context) error
	Auth() *auth.Service
	Markets() *markets.Service
}

var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.Build(ctx, cfg, logger)
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "canal",
		Short: "Canal Energético news site",
		Long: `canal serves the Canal Energético website: articles, comments, accounts,
the markets dashboard and the regulations directory.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), envKey{}, runtimeEnv{cfg: cfg, logger: logger}))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if env, err := resolveEnv(cmd.Context()); err == nil {
				_ = env.logger.Sync()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON); environment variables use the CANAL_ prefix")

	cmd.AddCommand(newServeCmd(), newMigrateCmd(), newMarketsCmd(), newUsersCmd())
	return cmd
}

func resolveEnv(ctx context.Context) (runtimeEnv, error) {
	if ctx == nil {
		return runtimeEnv{}, errors.New("command context is not initialized")
	}
	env, ok := ctx.Value(envKey{}).(runtimeEnv)
	if !ok {
		return runtimeEnv{}, errors.New("configuration was not loaded")
	}
	return env, nil
}

// withApp builds the application, runs fn and closes it.
func withApp(cmd *cobra.Command, fn func(App, runtimeEnv) error) error {
	env, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), env.cfg, env.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer func() {
		if cerr := a.Close(context.Background()); cerr != nil {
			env.logger.Warn("Failed to close application", zap.Error(cerr))
		}
	}()
	return fn(a, env)
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
