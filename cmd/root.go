// Package cmd defines the CLI commands for the outreach executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ServanKorkmaz/mail-automation/internal/config"
	"github.com/ServanKorkmaz/mail-automation/internal/logging"
	"github.com/ServanKorkmaz/mail-automation/internal/store"
)

type appKeyType string

const appKey appKeyType = "app"

// App carries the loaded configuration and logger to subcommands.
type App struct {
	Config config.Config
	Logger *zap.Logger
}

// OpenStore loads the configured dataset.
func (a *App) OpenStore() (*store.Store, error) {
	st, err := store.Open(a.Config.Data.CSVPath, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", a.Config.Data.CSVPath, err)
	}
	return st, nil
}

// newApp is a variable so tests can swap in a prepared App.
var newApp = func(cfgFile, envFile string) (*App, error) {
	if _, err := config.LoadEnvFile(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.File)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return &App{Config: cfg, Logger: logger}, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile, envFile string

	cmd := &cobra.Command{
		Use:   "outreach",
		Short: "Collects school contacts and sends outreach email.",
		Long: `outreach scrapes a school directory, resolves each school's official
website, extracts a contact address from it and sends a templated email,
keeping all progress in a single CSV file.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cfgFile, envFile)
			if err != nil {
				return fmt.Errorf("initialize: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(*App); ok && appInstance != nil {
				_ = appInstance.Logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment is read")

	cmd.AddCommand(
		newRunCmd(),
		newSendCmd(),
		newStatsCmd(),
		newReorganizeCmd(),
		newResetCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (*App, error) {
	appInstance, ok := ctx.Value(appKey).(*App)
	if !ok || appInstance == nil {
		return nil, errors.New("application not initialized")
	}
	return appInstance, nil
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "outreach: %v\n", err)
		stop()
		os.Exit(1)
	}
}
