// Package executor runs the on-chain fill sequence for relay orders.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/relaytaker/internal/crypto"
	"github.com/alanyoungcy/relaytaker/internal/domain"
	"github.com/alanyoungcy/relaytaker/internal/units"
)

var (
	// unlimitedAllowance is what gets approved: 2^256 - 1.
	unlimitedAllowance = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	// allowanceThreshold is the level at or above which an allowance counts
	// as already unlimited. Tokens that decrement unlimited allowances on
	// transfer stay above it for any realistic volume.
	allowanceThreshold = new(big.Int).Lsh(big.NewInt(1), 255)
)

// terminalNotifyTimeout bounds observer work for the final transition,
// which runs detached from the fill's context.
const terminalNotifyTimeout = 15 * time.Second

// TokenSource provides token metadata; absent tokens are
// domain.ErrUnknownToken.
type TokenSource interface {
	Token(ctx context.Context, addr common.Address) (domain.Token, error)
}

// Normalizer converts a relay order to its on-chain form.
type Normalizer interface {
	ToSignedOrder(ctx context.Context, order domain.Order) (domain.SignedOrder, error)
}

// FillObserver is told about every state a fill enters. It must not block
// for long; it runs on the fill's goroutine.
type FillObserver interface {
	OnFillTransition(ctx context.Context, fill domain.Fill)
}

// FillError is returned when a fill ends in the failed state. State is the
// step that failed; Err is the cause.
type FillError struct {
	State domain.FillState
	Err   error
}

func (e *FillError) Error() string {
	return fmt.Sprintf("fill failed during %s: %v", e.State, e.Err)
}

func (e *FillError) Unwrap() error { return e.Err }

// FillCoordinator drives a fill through
//
//	start → wrapping → allowance_check → submitting → awaiting_confirmation → confirmed
//
// with failed reachable from every non-terminal state. Each step waits for
// the previous step's transaction to be mined. Nothing is retried and
// nothing already mined is undone.
type FillCoordinator struct {
	chain      domain.ChainProvider
	tokens     TokenSource
	normalizer Normalizer
	observers  []FillObserver
	verifySigs bool
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a FillCoordinator.
type Option func(*FillCoordinator)

// WithObserver adds an observer.
func WithObserver(o FillObserver) Option {
	return func(c *FillCoordinator) { c.observers = append(c.observers, o) }
}

// WithSignatureCheck rejects orders whose maker signature does not verify
// before anything is sent.
func WithSignatureCheck(enabled bool) Option {
	return func(c *FillCoordinator) { c.verifySigs = enabled }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *FillCoordinator) { c.now = now }
}

// NewFillCoordinator creates a coordinator acting as chain.Account().
func NewFillCoordinator(chain domain.ChainProvider, tokens TokenSource, normalizer Normalizer, logger *slog.Logger, opts ...Option) *FillCoordinator {
	c := &FillCoordinator{
		chain:      chain,
		tokens:     tokens,
		normalizer: normalizer,
		now:        time.Now,
		logger:     logger.With(slog.String("component", "fill_coordinator")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Account is the address fills are sent from.
func (c *FillCoordinator) Account() common.Address {
	return c.chain.Account()
}

// Fill fills takerAmount (in whole taker tokens) of order. The returned Fill
// describes how far the sequence got even on error; a *FillError is returned
// on failure.
func (c *FillCoordinator) Fill(ctx context.Context, order domain.Order, takerAmount decimal.Decimal) (domain.Fill, error) {
	run := &fillRun{
		c:     c,
		order: order,
		fill: domain.Fill{
			ID:          uuid.NewString(),
			Taker:       c.chain.Account(),
			MakerToken:  order.MakerTokenAddress,
			TakerToken:  order.TakerTokenAddress,
			TakerAmount: takerAmount,
			StartedAt:   c.now().UTC(),
		},
	}

	steps := []struct {
		state domain.FillState
		run   func(context.Context) error
	}{
		{domain.FillStateStart, run.start},
		{domain.FillStateWrapping, run.wrap},
		{domain.FillStateAllowanceCheck, run.ensureAllowance},
		{domain.FillStateSubmitting, run.submit},
		{domain.FillStateAwaitingConfirmation, run.awaitConfirmation},
	}
	for _, step := range steps {
		run.enter(ctx, step.state)
		if err := step.run(ctx); err != nil {
			return run.fail(ctx, step.state, err)
		}
	}

	run.enter(ctx, domain.FillStateConfirmed)
	c.logger.InfoContext(ctx, "fill confirmed",
		slog.String("fill_id", run.fill.ID),
		slog.String("order_hash", run.fill.OrderHash.Hex()),
		slog.String("tx", run.fill.FillTx.Hex()),
		slog.Uint64("block", run.fill.Receipt.BlockNumber),
	)
	return run.snapshot(), nil
}

// fillRun is the mutable state of one Fill call.
type fillRun struct {
	c     *FillCoordinator
	order domain.Order
	fill  domain.Fill
}

func (r *fillRun) enter(ctx context.Context, state domain.FillState) {
	r.fill.State = state
	r.fill.Transitions = append(r.fill.Transitions, state)
	if state.Terminal() {
		done := r.c.now().UTC()
		r.fill.CompletedAt = &done
	}

	r.c.logger.DebugContext(ctx, "fill transition",
		slog.String("fill_id", r.fill.ID),
		slog.String("state", string(state)),
	)

	// A fill cut off by its deadline or a signal must still be recorded as
	// failed, with whatever transactions it already sent.
	notifyCtx := ctx
	if state.Terminal() {
		var cancel context.CancelFunc
		notifyCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), terminalNotifyTimeout)
		defer cancel()
	}
	for _, o := range r.c.observers {
		o.OnFillTransition(notifyCtx, r.snapshot())
	}
}

func (r *fillRun) fail(ctx context.Context, at domain.FillState, err error) (domain.Fill, error) {
	r.fill.Error = err.Error()
	r.enter(ctx, domain.FillStateFailed)
	r.c.logger.WarnContext(ctx, "fill failed",
		slog.String("fill_id", r.fill.ID),
		slog.String("state", string(at)),
		slog.String("error", err.Error()),
	)
	return r.snapshot(), &FillError{State: at, Err: err}
}

// snapshot copies the fill so observers and callers never share the
// transitions slice with the run.
func (r *fillRun) snapshot() domain.Fill {
	f := r.fill
	f.Transitions = append([]domain.FillState(nil), r.fill.Transitions...)
	return f
}

// start validates the request. The order is normalised here only as a dry
// run, to fix the order hash and check the signature before anything is
// sent; submit converts it again.
func (r *fillRun) start(ctx context.Context) error {
	amount := r.fill.TakerAmount
	if !amount.IsPositive() {
		return fmt.Errorf("%w: taker amount must be positive, got %s", domain.ErrInvalidAmount, amount)
	}
	if amount.GreaterThan(r.order.TakerTokenAmount) {
		return fmt.Errorf("%w: taker amount %s exceeds order's %s", domain.ErrInvalidOrder, amount, r.order.TakerTokenAmount)
	}
	if !r.order.IsOpen() && r.order.Taker != r.fill.Taker {
		return fmt.Errorf("%w: order is reserved for %s", domain.ErrInvalidOrder, r.order.Taker.Hex())
	}
	if !r.order.ExpirationUnixTimestampSec.GreaterThan(decimal.NewFromInt(r.c.now().Unix())) {
		return fmt.Errorf("%w: order expired at %s", domain.ErrInvalidOrder, r.order.ExpirationUnixTimestampSec)
	}

	takerToken, err := r.c.tokens.Token(ctx, r.order.TakerTokenAddress)
	if err != nil {
		return err
	}
	base, err := units.ToBaseUnits(amount, takerToken.Decimals)
	if err != nil {
		return err
	}
	if base.Sign() == 0 {
		return fmt.Errorf("%w: %s is below %s precision", domain.ErrInvalidAmount, amount, takerToken.Symbol)
	}
	r.fill.TakerAmountBase = base

	checked, err := r.c.normalizer.ToSignedOrder(ctx, r.order)
	if err != nil {
		return err
	}
	r.fill.OrderHash = crypto.OrderHash(checked)

	if r.c.verifySigs && !crypto.VerifySignature(r.fill.OrderHash, checked.ECSignature, checked.Maker) {
		return fmt.Errorf("%w: maker signature does not match order %s", domain.ErrInvalidOrder, r.fill.OrderHash.Hex())
	}
	return nil
}

// wrap deposits native currency when the taker pays in the wrapped token and
// its wrapped balance is short. Only the shortfall is wrapped.
func (r *fillRun) wrap(ctx context.Context) error {
	chain := r.c.chain
	if r.order.TakerTokenAddress != chain.EtherToken() {
		return nil
	}

	required := r.fill.TakerAmountBase
	wrapped, err := chain.TokenBalance(ctx, chain.EtherToken(), r.fill.Taker)
	if err != nil {
		return err
	}
	if wrapped.Cmp(required) >= 0 {
		return nil
	}

	shortfall := new(big.Int).Sub(required, wrapped)
	native, err := chain.NativeBalance(ctx, r.fill.Taker)
	if err != nil {
		return err
	}
	if native.Cmp(shortfall) < 0 {
		return fmt.Errorf("%w: insufficient balance to wrap %s wei (have %s)", domain.ErrOnChainFailure, shortfall, native)
	}

	tx, err := chain.Deposit(ctx, shortfall)
	if err != nil {
		return err
	}
	r.fill.WrapTx = &tx
	return r.mined(ctx, tx, "wrap")
}

// ensureAllowance approves the token proxy for an unlimited amount unless it
// already has one.
func (r *fillRun) ensureAllowance(ctx context.Context) error {
	chain := r.c.chain
	spender := chain.AllowanceSpender()

	current, err := chain.Allowance(ctx, r.order.TakerTokenAddress, r.fill.Taker, spender)
	if err != nil {
		return err
	}
	if current.Cmp(allowanceThreshold) >= 0 {
		return nil
	}

	tx, err := chain.Approve(ctx, r.order.TakerTokenAddress, spender, unlimitedAllowance)
	if err != nil {
		return err
	}
	r.fill.ApproveTx = &tx
	return r.mined(ctx, tx, "approve")
}

// submit builds the signed order and sends the fill once, fill-or-kill. The
// order must still hash to what start checked.
func (r *fillRun) submit(ctx context.Context) error {
	signed, err := r.c.normalizer.ToSignedOrder(ctx, r.order)
	if err != nil {
		return err
	}
	if hash := crypto.OrderHash(signed); hash != r.fill.OrderHash {
		return fmt.Errorf("%w: order hash changed from %s to %s before submission", domain.ErrInvalidOrder, r.fill.OrderHash.Hex(), hash.Hex())
	}

	tx, err := r.c.chain.FillOrder(ctx, signed, r.fill.TakerAmountBase, true)
	if err != nil {
		return err
	}
	r.fill.FillTx = &tx
	return nil
}

func (r *fillRun) awaitConfirmation(ctx context.Context) error {
	receipt, err := r.c.chain.WaitMined(ctx, *r.fill.FillTx)
	if err != nil {
		return err
	}
	r.fill.Receipt = &receipt
	if !receipt.Succeeded() {
		return fmt.Errorf("%w: fill transaction %s reverted", domain.ErrOnChainFailure, receipt.TxHash.Hex())
	}
	return nil
}

// mined waits for a preparatory transaction and requires it to succeed.
func (r *fillRun) mined(ctx context.Context, tx common.Hash, what string) error {
	receipt, err := r.c.chain.WaitMined(ctx, tx)
	if err != nil {
		return err
	}
	if !receipt.Succeeded() {
		return fmt.Errorf("%w: %s transaction %s reverted", domain.ErrOnChainFailure, what, tx.Hex())
	}
	return nil
}
