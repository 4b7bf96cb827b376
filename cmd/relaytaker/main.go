// Command relaytaker lists 0x relay orders and fills them on chain. With
// -mode serve it runs the HTTP and websocket API; the other modes run one
// command and exit.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/relaytaker/internal/app"
	"github.com/alanyoungcy/relaytaker/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to TOML configuration file (optional)")
	mode := flag.String("mode", "", "serve, orders, pairs, symbol, fill, network or encrypt-key (overrides config)")
	symbolA := flag.String("a", "", "orders: symbol the maker sells, e.g. ETH")
	symbolB := flag.String("b", "", "orders: symbol the maker buys, e.g. ZRX")
	token := flag.String("token", "", "pairs: token symbol; symbol: token address")
	orderFile := flag.String("order", "", "fill: path to a relay order JSON file")
	amount := flag.String("amount", "", "fill: taker amount in whole tokens, e.g. 1.5")
	flag.Parse()

	// CLI output goes to stdout, so logs go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}

	logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("relaytaker starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	application := app.New(cfg, app.Args{
		SymbolA:   *symbolA,
		SymbolB:   *symbolB,
		Token:     *token,
		OrderFile: *orderFile,
		Amount:    *amount,
	}, os.Stdout, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = application.Run(ctx)
	stop()
	application.Close()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("application exited with error", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "relaytaker: %v\n", err)
		os.Exit(1)
	}
	logger.Info("relaytaker stopped")
}

func parseLevel(s string) slog.Level {
	switch s {
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
