package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/relaytaker/internal/crypto"
	"github.com/alanyoungcy/relaytaker/internal/domain"
	"github.com/alanyoungcy/relaytaker/internal/executor"
	"github.com/alanyoungcy/relaytaker/internal/platform/relay"
	"github.com/alanyoungcy/relaytaker/internal/server"
	"github.com/alanyoungcy/relaytaker/internal/server/handler"
	"github.com/alanyoungcy/relaytaker/internal/server/ws"
	"github.com/alanyoungcy/relaytaker/internal/service"
	"github.com/alanyoungcy/relaytaker/internal/units"
)

const shutdownTimeout = 30 * time.Second

// ServeMode runs the HTTP API, the websocket hub and the fill guard's
// cleanup loop until ctx is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")
	startedAt := time.Now().UTC()
	account := deps.Chain.Account()

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		Account:   account.Hex(),
		StartedAt: startedAt,
	})

	// Without a bus the hub cannot see published events, so it observes
	// fills directly.
	var opts []executor.Option
	if deps.SignalBus == nil {
		opts = append(opts, executor.WithObserver(hub))
	}
	guard, journal := a.buildFiller(deps, opts...)

	fills := handler.NewFillsHandler(guard, journal, a.cfg.Fill.Timeout.Duration, a.logger)
	if deps.Receipts != nil {
		fills.WithReceipts(deps.Receipts)
	}
	if deps.SignalBus != nil {
		fills.WithEvents(deps.SignalBus, service.FillStream)
	}
	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(deps.Checks, a.logger),
		Status:  handler.NewStatusHandler(a.cfg.Mode, account, startedAt),
		Network: handler.NewNetworkHandler(deps.Network, a.logger),
		Orders:  handler.NewOrdersHandler(deps.Relay, a.logger),
		Tokens:  handler.NewTokensHandler(deps.Relay, a.logger),
		Fills:   fills,
	}
	if deps.AuditStore != nil {
		handlers.Audit = handler.NewAuditHandler(deps.AuditStore, a.logger)
	}
	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
		WriteTimeout:    a.cfg.Fill.Timeout.Duration + time.Minute,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return guard.Run(ctx) })
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	return g.Wait()
}

// OrdersMode prints the relay's orders selling args.SymbolA for
// args.SymbolB in relay JSON.
func (a *App) OrdersMode(ctx context.Context, deps *Dependencies) error {
	orders, err := deps.Relay.ListOrders(ctx, a.args.SymbolA, a.args.SymbolB)
	if err != nil {
		return fmt.Errorf("orders mode: %w", err)
	}
	out := make([]relay.APIOrder, 0, len(orders))
	for _, o := range orders {
		out = append(out, relay.APIOrderFromDomain(o))
	}
	return a.print(out)
}

// PairsMode prints the symbols tradable against args.Token.
func (a *App) PairsMode(ctx context.Context, deps *Dependencies) error {
	symbols, err := deps.Relay.ListTradablePairs(ctx, a.args.Token)
	if err != nil {
		return fmt.Errorf("pairs mode: %w", err)
	}
	if symbols == nil {
		symbols = []string{}
	}
	return a.print(symbols)
}

// SymbolMode prints the display symbol of the token at args.Token.
func (a *App) SymbolMode(ctx context.Context, deps *Dependencies) error {
	if !common.IsHexAddress(a.args.Token) {
		return fmt.Errorf("symbol mode: %q is not a token address", a.args.Token)
	}
	addr := common.HexToAddress(a.args.Token)
	symbol, found, err := deps.Relay.ResolveSymbol(ctx, addr)
	if err != nil {
		return fmt.Errorf("symbol mode: %w", err)
	}
	if !found {
		return fmt.Errorf("symbol mode: %s: %w", addr.Hex(), domain.ErrUnknownToken)
	}
	return a.print(map[string]string{"address": addr.Hex(), "symbol": symbol})
}

// NetworkMode prints the wrong-network advisory, if any.
func (a *App) NetworkMode(ctx context.Context, deps *Dependencies) error {
	advisory, err := deps.Network.Check(ctx)
	if err != nil {
		return fmt.Errorf("network mode: %w", err)
	}
	return a.print(map[string]any{"ok": advisory == "", "advisory": advisory})
}

// FillMode fills the order in args.OrderFile for args.Amount and prints the
// resulting fill, failed or not.
func (a *App) FillMode(ctx context.Context, deps *Dependencies) error {
	data, err := os.ReadFile(a.args.OrderFile)
	if err != nil {
		return fmt.Errorf("fill mode: read order: %w", err)
	}
	order, err := relay.DecodeOrder(data)
	if err != nil {
		return fmt.Errorf("fill mode: %w", err)
	}
	amount, err := units.Parse(a.args.Amount)
	if err != nil {
		return fmt.Errorf("fill mode: %w", err)
	}

	guard, _ := a.buildFiller(deps)
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Fill.Timeout.Duration)
	defer cancel()

	fill, fillErr := guard.Fill(ctx, order, amount)
	if fill.ID != "" {
		if err := a.print(fill); err != nil {
			return err
		}
	}
	if fillErr != nil {
		return fmt.Errorf("fill mode: %w", fillErr)
	}
	return nil
}

// EncryptKeyMode seals wallet.private_key with wallet.key_password and
// writes it to wallet.encrypted_key_path. An existing file is never
// overwritten.
func (a *App) EncryptKeyMode(ctx context.Context) error {
	w := a.cfg.Wallet
	key, err := crypto.LoadKey(crypto.KeyConfig{RawPrivateKey: w.PrivateKey})
	if err != nil {
		return fmt.Errorf("encrypt-key mode: %w", err)
	}
	sealed, err := crypto.EncryptKey(w.PrivateKey, w.KeyPassword)
	if err != nil {
		return fmt.Errorf("encrypt-key mode: %w", err)
	}

	f, err := os.OpenFile(w.EncryptedKeyPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("encrypt-key mode: %w", err)
	}
	if _, err := f.Write(sealed); err != nil {
		f.Close()
		return fmt.Errorf("encrypt-key mode: write %s: %w", w.EncryptedKeyPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("encrypt-key mode: %w", err)
	}

	address := crypto.Address(key)
	a.logger.InfoContext(ctx, "wrote encrypted key",
		slog.String("path", w.EncryptedKeyPath),
		slog.String("address", address.Hex()),
	)
	return a.print(map[string]string{"path": w.EncryptedKeyPath, "address": address.Hex()})
}

// buildFiller assembles the fill pipeline: coordinator, journal and guard.
func (a *App) buildFiller(deps *Dependencies, opts ...executor.Option) (*executor.FillGuard, *service.FillJournal) {
	journal := service.NewFillJournal(service.JournalSinks{
		Bus:      deps.SignalBus,
		Store:    deps.FillStore,
		Audit:    deps.AuditStore,
		Archiver: deps.Archiver,
		Notifier: deps.Notifier,
	}, a.logger)

	opts = append([]executor.Option{
		executor.WithObserver(journal),
		executor.WithSignatureCheck(a.cfg.Fill.VerifySignatures),
	}, opts...)
	coordinator := executor.NewFillCoordinator(deps.Chain, deps.Resolver, deps.Normalizer, a.logger, opts...)

	guard := executor.NewFillGuard(coordinator, deps.LockManager,
		a.cfg.Fill.DedupTTL.Duration, a.cfg.Fill.LockTTL.Duration, a.logger)

	a.logger.Info("fill pipeline ready",
		slog.String("account", coordinator.Account().Hex()),
		slog.Bool("verify_signatures", a.cfg.Fill.VerifySignatures),
		slog.Bool("distributed_lock", deps.LockManager != nil),
	)
	return guard, journal
}

// print writes v to the App's output as indented JSON.
func (a *App) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("app: write output: %w", err)
	}
	return nil
}
