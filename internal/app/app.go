// Package app wires every control-plane component into a running process
// and owns its lifecycle, adapted from the teacher's internal/app/{app,wire,
// modes}.go: Wire builds concrete dependencies from config.Config, Dependencies
// bundles them, and App.Run/Close mirror the teacher's start/reverse-order-
// teardown shape generalized to this domain's three CLI subcommands
// (serve/once/explain) instead of five trading modes.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/crossfluxx/rebalancer/internal/config"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()

	// DryRun, ExplainID, and ListenAddr carry the CLI flags that don't
	// belong in a persisted TOML config (spec.md §6's `once --dry-run` and
	// `explain --id`, plus `serve --listen` overriding server.port).
	DryRun     bool
	ExplainID  string
	ListenAddr string
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, selects the operating mode from cfg.Mode (set
// by the CLI subcommand the user invoked), and dispatches to it. It blocks
// until the mode's work completes — forever for ServeMode until ctx is
// cancelled, immediately for OnceMode and ExplainMode.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger, a.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(a.cfg.Mode) {
	case "serve":
		return a.ServeMode(ctx, deps)
	case "once":
		return a.OnceMode(ctx, deps)
	case "explain":
		return a.ExplainMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
