package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/shohag/vpnboard/internal/api"
	"github.com/shohag/vpnboard/internal/config"
	"github.com/shohag/vpnboard/internal/outline"
	"github.com/shohag/vpnboard/internal/output"
	"github.com/shohag/vpnboard/internal/registry"
	"github.com/shohag/vpnboard/internal/status"
	"github.com/shohag/vpnboard/internal/storage"
)

var version = "0.1.0"

type globalFlags struct {
	configPath string
	format     string
}

func main() {
	rootCmd := &cobra.Command{
		Use:          "vpnboard",
		Short:        "vpnboard, a dashboard backend for a fleet of Outline VPN servers",
		SilenceUsage: true,
	}

	flags := &globalFlags{}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().StringVarP(&flags.format, "output", "o", "table", "output format: table, json, yaml")

	rootCmd.AddCommand(serveCmd(flags))
	rootCmd.AddCommand(serversCmd(flags))
	rootCmd.AddCommand(statusCmd(flags))
	rootCmd.AddCommand(usageCmd(flags))
	rootCmd.AddCommand(keysCmd(flags))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the vpnboard HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags.configPath, os.Stdout)
			if err != nil {
				return err
			}
			defer a.close()

			server := api.NewServer(a.cfg, a.reg, a.agg, a.clients, a.log)
			go func() {
				if err := server.Start(); err != nil && err != http.ErrServerClosed {
					a.log.Fatal().Err(err).Msg("server error")
				}
			}()

			a.log.Info().
				Str("version", version).
				Int("port", a.cfg.Server.Port).
				Str("storage", a.cfg.Storage.Driver).
				Bool("auth", a.cfg.Auth.Enabled).
				Msg("vpnboard is running")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			a.log.Info().Msg("shutting down...")

			if err := server.Shutdown(10 * time.Second); err != nil {
				a.log.Error().Err(err).Msg("server shutdown error")
			}

			a.log.Info().Msg("vpnboard stopped")
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "vpnboard v%s\n", version)
		},
	}
}

// app holds the components shared by every command.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	store   storage.Storage
	reg     *registry.Registry
	agg     *status.Aggregator
	clients outline.Factory
}

// newApp loads configuration, opens the registry and runs the bootstrap
// step. Logs go to logOut so CLI results on stdout stay machine readable.
func newApp(ctx context.Context, configPath string, logOut io.Writer) (*app, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg.Logging, logOut)

	store, err := setupStorage(cfg.Storage, log)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	reg := registry.New(store, log)
	seeded, err := reg.Bootstrap(ctx, cfg.Registry.BootstrapURL, cfg.Registry.BootstrapName)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to bootstrap registry: %w", err)
	}
	if seeded {
		log.Info().Msg("registry created with bootstrap server")
	}

	clients := outline.NewFactory(outline.WithTimeout(cfg.Remote.Timeout))
	agg := status.NewAggregator(reg, log,
		status.WithTimeout(cfg.Remote.StatusTimeout),
		status.WithClientFactory(clients),
	)

	return &app{
		cfg:     cfg,
		log:     log,
		store:   store,
		reg:     reg,
		agg:     agg,
		clients: clients,
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.Error().Err(err).Msg("failed to close storage")
	}
}

// cliApp is newApp for one-shot commands, logging to stderr.
func cliApp(cmd *cobra.Command, flags *globalFlags) (*app, output.Formatter, error) {
	f, err := output.NewFormatter(flags.format)
	if err != nil {
		return nil, nil, err
	}
	a, err := newApp(cmd.Context(), flags.configPath, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	return a, f, nil
}

func render(cmd *cobra.Command, f output.Formatter, data any) error {
	out, err := f.Format(data)
	if err != nil {
		return err
	}
	_, err = io.WriteString(cmd.OutOrStdout(), out)
	return err
}

func setupLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: out}).
			With().Timestamp().Logger()
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

func setupStorage(cfg config.StorageConfig, log zerolog.Logger) (storage.Storage, error) {
	switch cfg.Driver {
	case "file", "":
		log.Debug().Str("path", cfg.File.Path).Msg("using file storage")
		return storage.NewFile(cfg.File.Path), nil
	case "sqlite":
		log.Debug().Str("path", cfg.SQLite.Path).Msg("using SQLite storage")
		return storage.NewSQLite(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}
