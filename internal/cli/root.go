package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mcoot/pingpong/internal/factory"
	"github.com/mcoot/pingpong/internal/localstore"
)

// skipApp marks commands that do not need the local application
const skipApp = "skip-app"

// Opener builds and starts the application a command runs against. The
// returned func releases everything it acquired.
type Opener func(ctx context.Context, cfg *Config) (*factory.App, func() error, error)

var (
	cfg      *Config
	app      *factory.App
	closeApp func() error
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	return newRootCmd(OpenApp)
}

func newRootCmd(open Opener) *cobra.Command {
	cfg = DefaultConfig()
	app, closeApp = nil, nil

	rootCmd := &cobra.Command{
		Use:   "pingpong",
		Short: "CLI for the ping-pong tournament",
		Long: `pingpong signs players in, lets admins run matches and shows the
live tournament state.

Commands work against the configured store (STORAGE_TYPE) and keep the
signed-in player and admin session in a local database (LOCAL_DB_PATH).`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !needsApp(cmd) {
				return nil
			}
			a, closer, err := open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			app, closeApp = a, closer
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.EnvFile, "env-file", cfg.EnvFile, "Path to a .env file (env: PINGPONG_ENV_FILE)")
	rootCmd.PersistentFlags().StringVar(&cfg.LocalDB, "local-db", cfg.LocalDB, "Local session database (env: LOCAL_DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Server URL for health and remote watch (env: PINGPONG_SERVER)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose output")

	// Add subcommands
	rootCmd.AddCommand(newJoinCmd())
	rootCmd.AddCommand(newWhoamiCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newAdminCmd())
	rootCmd.AddCommand(newPlayersCmd())
	rootCmd.AddCommand(newLeaderboardCmd())
	rootCmd.AddCommand(newPlayerCmd())
	rootCmd.AddCommand(newMatchesCmd())
	rootCmd.AddCommand(newMatchCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newHealthCmd())

	return rootCmd
}

// needsApp reports whether cmd runs against the local application rather
// than a remote server
func needsApp(cmd *cobra.Command) bool {
	if cmd.Annotations[skipApp] == "true" {
		return false
	}
	if f := cmd.Flags().Lookup("remote"); f != nil && f.Value.String() == "true" {
		return false
	}
	return true
}

// OpenApp wires the application from the environment over a sqlite local
// store and starts it
func OpenApp(ctx context.Context, cfg *Config) (*factory.App, func() error, error) {
	env, err := cfg.Env()
	if err != nil {
		return nil, nil, err
	}

	local, err := localstore.OpenSQLite(env.LocalDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening local database: %w", err)
	}

	a, err := factory.New(factory.Config{
		Env:    *env,
		Logger: newLogger(cfg.Verbose),
		Local:  local,
	})
	if err != nil {
		_ = local.Close()
		return nil, nil, err
	}

	if err := a.Start(ctx); err != nil {
		_ = a.Store.Close()
		_ = local.Close()
		return nil, nil, err
	}
	return a, a.Close, nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// shutdown releases the application opened for the last command
func shutdown() error {
	if closeApp == nil {
		return nil
	}
	err := closeApp()
	app, closeApp = nil, nil
	return err
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()

	if closeErr := shutdown(); closeErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", closeErr)
	}
	if err != nil {
		os.Exit(1)
	}
}
