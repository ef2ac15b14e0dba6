package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/replbox/replbox/internal/api"
	"github.com/replbox/replbox/internal/config"
	"github.com/replbox/replbox/internal/sandbox"
)

var (
	flagHost string
	flagPort int
)

var rootCmd = &cobra.Command{
	Use:          "replbox-server",
	Short:        "Per-session Python code execution service",
	RunE:         run,
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringVar(&flagHost, "host", "", "listen address (overrides REPLBOX_HOST)")
	rootCmd.Flags().IntVar(&flagPort, "port", 0, "listen port (overrides REPLBOX_PORT)")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("host") {
		cfg.Host = flagHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = flagPort
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	registry, err := sandbox.NewService(context.Background(), sandbox.ServiceConfig{
		TmpRoot:        cfg.TmpDir,
		BaselineDir:    cfg.BaselineDir,
		AssetsDir:      cfg.AssetsDir,
		Python:         cfg.Python,
		UV:             cfg.UV,
		BasePackages:   cfg.BasePackages,
		TTL:            cfg.SandboxTTL,
		SweepInterval:  cfg.SweepInterval,
		StartTimeout:   cfg.StartTimeout,
		MessageTimeout: cfg.MessageTimeout,
		InstallTimeout: cfg.InstallTimeout,
	}, &logger)
	if err != nil {
		return fmt.Errorf("failed to initialize sandbox runtime: %w", err)
	}
	registry.StartSweep()

	server := api.NewServer(registry, cfg.APIKey, &logger)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	logger.Info().Str("addr", addr).Msg("starting server")

	go func() {
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
		}
	}()

	<-quit
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("server shutdown failed")
	}
	registry.Shutdown()
	logger.Info().Msg("shutdown complete")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
