// Package app wires the relay taker's dependencies and runs the configured
// mode: the HTTP API or one of the one-shot CLI commands.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alanyoungcy/relaytaker/internal/config"
)

// Args are the command-line inputs of the one-shot modes.
type Args struct {
	SymbolA   string // orders: maker side
	SymbolB   string // orders: taker side
	Token     string // pairs: symbol; symbol: address
	OrderFile string // fill: relay order JSON
	Amount    string // fill: taker amount in whole tokens
}

// App is the root application object. It owns the configuration and the
// cleanup functions, which run in reverse order on Close.
type App struct {
	cfg     *config.Config
	args    Args
	out     io.Writer
	logger  *slog.Logger
	closers []func()
}

// New creates an App. CLI results are written to out, or stdout when out is
// nil.
func New(cfg *config.Config, args Args, out io.Writer, logger *slog.Logger) *App {
	if out == nil {
		out = os.Stdout
	}
	return &App{
		cfg:    cfg,
		args:   args,
		out:    out,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires dependencies for the configured mode and runs it until it
// finishes or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	if a.cfg.Mode == config.ModeEncryptKey {
		return a.EncryptKeyMode(ctx)
	}

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch a.cfg.Mode {
	case config.ModeServe:
		return a.ServeMode(ctx, deps)
	case config.ModeOrders:
		return a.OrdersMode(ctx, deps)
	case config.ModePairs:
		return a.PairsMode(ctx, deps)
	case config.ModeSymbol:
		return a.SymbolMode(ctx, deps)
	case config.ModeFill:
		return a.FillMode(ctx, deps)
	case config.ModeNetwork:
		return a.NetworkMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close releases resources in reverse registration order. Later calls are
// no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
