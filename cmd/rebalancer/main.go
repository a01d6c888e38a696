// Command rebalancer is the control plane's entry point. It loads
// configuration, validates it, wires dependencies, and dispatches to one of
// three subcommands — serve, once, explain — per spec.md §6.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/crossfluxx/rebalancer/internal/app"
	"github.com/crossfluxx/rebalancer/internal/config"
)

// Exit codes, per spec.md §6.
const (
	exitOK                  = 0
	exitConfigError         = 2
	exitUpstreamUnavailable = 3
	exitFatal               = 4
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: rebalancer <serve|once|explain> [flags]")
		os.Exit(exitConfigError)
	}

	subcommand := os.Args[1]
	args := os.Args[2:]

	var (
		configPath string
		listen     string
		logLevel   string
		dryRun     bool
		explainID  string
	)

	fs := flag.NewFlagSet(subcommand, flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config.toml", "path to configuration file")

	switch subcommand {
	case "serve":
		fs.StringVar(&listen, "listen", "", "debug/health HTTP listen address, overrides server.port")
		fs.StringVar(&logLevel, "log-level", "", "overrides config.log_level")
	case "once":
		fs.BoolVar(&dryRun, "dry-run", false, "evaluate without submitting any rebalance")
	case "explain":
		fs.StringVar(&explainID, "id", "", "decision id to explain")
	default:
		fmt.Fprintf(os.Stderr, "rebalancer: unknown subcommand %q (want serve, once, or explain)\n", subcommand)
		os.Exit(exitConfigError)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(exitConfigError)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", slog.String("path", configPath), slog.String("error", err.Error()))
		os.Exit(exitConfigError)
	}
	cfg.Mode = subcommand
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(exitConfigError)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	logger.Info("rebalancer starting", slog.String("mode", cfg.Mode), slog.String("config", configPath))

	application := app.New(cfg, logger)
	application.DryRun = dryRun
	application.ExplainID = explainID
	application.ListenAddr = listen
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		if err == context.Canceled {
			logger.Info("rebalancer shut down gracefully")
			os.Exit(exitOK)
		}
		logger.Error("rebalancer exited with error", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(exitFatal)
	}

	logger.Info("rebalancer stopped")
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
