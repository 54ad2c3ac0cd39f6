package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"parley/internal/app"
	"parley/internal/config"
	"parley/internal/logger"
)

// version is overridden at build time with -ldflags.
var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
		logFile    string
	)

	cmd := &cobra.Command{
		Use:   "parley [port]",
		Short: "WebSocket chat server with presence tracking",
		Long: `Parley serves a JSON chat protocol over WebSocket, tracks user presence,
and journals session events to SQLite.

Configuration is resolved as defaults, then PARLEY_* environment
variables, then the TOML file given with --config. A positional port
argument overrides the configured port.`,
		Args:    cobra.MaximumNArgs(1),
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				port, err := parsePort(args[0])
				if err != nil {
					return err
				}
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = logLevel
			}
			if cmd.Flags().Changed("log-file") {
				cfg.Log.File = logFile
			}
			return runServer(cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, or error")
	cmd.Flags().StringVar(&logFile, "log-file", "", "log file path (empty disables the file sink)")

	return cmd
}

func runServer(cfg *config.Config) error {
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	log, closeLogs, err := logger.New(logger.Options{Level: level, File: cfg.Log.File})
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer func() { _ = closeLogs() }()

	application, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	if err := application.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	stop()
	log.Info("signal received, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return application.Stop(shutdownCtx)
}

// parsePort converts the positional port argument, enforcing the TCP range.
func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q: want a number between 1 and 65535", s)
	}
	return port, nil
}
