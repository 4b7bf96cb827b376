package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/relaytaker/internal/domain"
)

// Filler is anything that runs a fill; *FillCoordinator implements it.
type Filler interface {
	Account() common.Address
	Fill(ctx context.Context, order domain.Order, takerAmount decimal.Decimal) (domain.Fill, error)
}

// FillGuard serialises fills per taker account and refuses to fill the same
// order twice within the dedup window. With a LockManager the serialisation
// spans processes; without one it is in-process only.
type FillGuard struct {
	filler  Filler
	locks   domain.LockManager
	dedup   *Dedup
	lockTTL time.Duration
	local   sync.Mutex
	logger  *slog.Logger

	cleanupInterval time.Duration
}

// NewFillGuard wraps filler. locks may be nil.
func NewFillGuard(filler Filler, locks domain.LockManager, dedupTTL, lockTTL time.Duration, logger *slog.Logger) *FillGuard {
	return &FillGuard{
		filler:          filler,
		locks:           locks,
		dedup:           NewDedup(dedupTTL),
		lockTTL:         lockTTL,
		logger:          logger.With(slog.String("component", "fill_guard")),
		cleanupInterval: 30 * time.Second,
	}
}

// Fill runs the wrapped fill under the account lock. It returns
// domain.ErrLockHeld when another fill for the account is in progress and
// domain.ErrDuplicateFill when the order was filled recently.
func (g *FillGuard) Fill(ctx context.Context, order domain.Order, takerAmount decimal.Decimal) (domain.Fill, error) {
	unlock, err := g.acquire(ctx)
	if err != nil {
		return domain.Fill{}, err
	}
	defer unlock()

	key := orderKey(order)
	if !g.dedup.Claim(key) {
		g.logger.InfoContext(ctx, "duplicate fill rejected", slog.String("order", key))
		return domain.Fill{}, fmt.Errorf("executor: fill %s: %w", key, domain.ErrDuplicateFill)
	}

	fill, err := g.filler.Fill(ctx, order, takerAmount)
	if err != nil && nothingSent(fill) {
		g.dedup.Release(key)
	}
	return fill, err
}

// Run evicts expired dedup entries until ctx ends.
func (g *FillGuard) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			g.dedup.Cleanup()
			g.logger.DebugContext(ctx, "dedup cleanup", slog.Int("pending_orders", g.dedup.Len()))
		}
	}
}

func (g *FillGuard) acquire(ctx context.Context) (func(), error) {
	if g.locks != nil {
		unlock, err := g.locks.Acquire(ctx, "fill:"+strings.ToLower(g.filler.Account().Hex()), g.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("executor: acquire fill lock: %w", err)
		}
		return unlock, nil
	}
	if !g.local.TryLock() {
		return nil, fmt.Errorf("executor: acquire fill lock: %w", domain.ErrLockHeld)
	}
	return g.local.Unlock, nil
}

// orderKey identifies a relay order independently of amounts: a maker never
// reuses a salt on the same exchange.
func orderKey(o domain.Order) string {
	return strings.ToLower(o.ExchangeContractAddress.Hex()) + ":" +
		strings.ToLower(o.Maker.Hex()) + ":" + o.Salt.String()
}

// nothingSent reports whether a fill stopped before any transaction left
// the process.
func nothingSent(f domain.Fill) bool {
	return f.WrapTx == nil && f.ApproveTx == nil && f.FillTx == nil
}
