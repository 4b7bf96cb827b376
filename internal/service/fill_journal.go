package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/relaytaker/internal/domain"
)

// Fill events go to FillChannel for live subscribers and to FillStream for
// replay.
const (
	FillChannel = "fills"
	FillStream  = "fills:events"
)

// memoryFillLimit bounds the in-process fill history used when no
// FillStore is configured.
const memoryFillLimit = 500

// ReceiptArchiver stores the receipt of a confirmed fill and returns its key.
type ReceiptArchiver interface {
	Archive(ctx context.Context, fill domain.Fill) (string, error)
}

// FillNotifier reports terminal fills to operators.
type FillNotifier interface {
	NotifyFill(ctx context.Context, fill domain.Fill) error
}

// JournalSinks are the optional destinations of a FillJournal. Any of them
// may be nil.
type JournalSinks struct {
	Bus      domain.SignalBus
	Store    domain.FillStore
	Audit    domain.AuditStore
	Archiver ReceiptArchiver
	Notifier FillNotifier
}

// FillJournal records every fill transition. Sink failures are logged and
// never interrupt the fill. It also answers fill queries, from the store
// when there is one and from a bounded in-memory history otherwise.
type FillJournal struct {
	sinks  JournalSinks
	logger *slog.Logger

	mu     sync.RWMutex
	recent map[string]domain.Fill
}

func NewFillJournal(sinks JournalSinks, logger *slog.Logger) *FillJournal {
	return &FillJournal{
		sinks:  sinks,
		logger: logger.With(slog.String("component", "fill_journal")),
		recent: make(map[string]domain.Fill),
	}
}

// OnFillTransition implements executor.FillObserver.
func (j *FillJournal) OnFillTransition(ctx context.Context, fill domain.Fill) {
	j.remember(fill)
	j.publish(ctx, fill)

	if j.sinks.Store != nil {
		if err := j.sinks.Store.Upsert(ctx, fill); err != nil {
			j.warn(ctx, "persist fill", fill, err)
		}
	}
	if !fill.State.Terminal() {
		return
	}

	detail := map[string]any{
		"fill_id":    fill.ID,
		"order_hash": fill.OrderHash.Hex(),
		"taker":      fill.Taker.Hex(),
		"amount":     fill.TakerAmount.String(),
		"state":      string(fill.State),
	}
	if fill.FillTx != nil {
		detail["tx"] = fill.FillTx.Hex()
	}
	if fill.Error != "" {
		detail["error"] = fill.Error
	}

	if fill.State == domain.FillStateConfirmed && j.sinks.Archiver != nil {
		key, err := j.sinks.Archiver.Archive(ctx, fill)
		if err != nil {
			j.warn(ctx, "archive receipt", fill, err)
		} else {
			detail["receipt_key"] = key
		}
	}
	if j.sinks.Audit != nil {
		if err := j.sinks.Audit.Log(ctx, "fill_"+string(fill.State), detail); err != nil {
			j.warn(ctx, "audit fill", fill, err)
		}
	}
	if j.sinks.Notifier != nil {
		if err := j.sinks.Notifier.NotifyFill(ctx, fill); err != nil {
			j.warn(ctx, "notify fill", fill, err)
		}
	}
}

func (j *FillJournal) publish(ctx context.Context, fill domain.Fill) {
	if j.sinks.Bus == nil {
		return
	}
	payload, err := json.Marshal(EventFor(fill))
	if err != nil {
		j.warn(ctx, "encode fill event", fill, err)
		return
	}
	if err := j.sinks.Bus.Publish(ctx, FillChannel, payload); err != nil {
		j.warn(ctx, "publish fill event", fill, err)
	}
	if err := j.sinks.Bus.StreamAppend(ctx, FillStream, payload); err != nil {
		j.warn(ctx, "append fill event", fill, err)
	}
}

// EventFor summarises a fill's current state. TxHash is the most recent
// transaction the fill sent.
func EventFor(fill domain.Fill) domain.FillEvent {
	ev := domain.FillEvent{
		FillID:    fill.ID,
		OrderHash: fill.OrderHash,
		State:     fill.State,
		Error:     fill.Error,
		Timestamp: fill.StartedAt,
	}
	if fill.CompletedAt != nil {
		ev.Timestamp = *fill.CompletedAt
	}
	for _, tx := range []*common.Hash{fill.FillTx, fill.ApproveTx, fill.WrapTx} {
		if tx != nil {
			ev.TxHash = tx.Hex()
			break
		}
	}
	return ev
}

func (j *FillJournal) remember(fill domain.Fill) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.recent[fill.ID] = fill
	if len(j.recent) <= memoryFillLimit {
		return
	}
	var oldest string
	for id, f := range j.recent {
		if oldest == "" || f.StartedAt.Before(j.recent[oldest].StartedAt) {
			oldest = id
		}
	}
	delete(j.recent, oldest)
}

// Get returns a fill by id, or domain.ErrNotFound.
func (j *FillJournal) Get(ctx context.Context, id string) (domain.Fill, error) {
	j.mu.RLock()
	f, ok := j.recent[id]
	j.mu.RUnlock()
	if ok {
		return f, nil
	}
	if j.sinks.Store == nil {
		return domain.Fill{}, domain.ErrNotFound
	}
	return j.sinks.Store.GetByID(ctx, id)
}

// List returns fills newest first, limited to taker unless it is the zero
// address.
func (j *FillJournal) List(ctx context.Context, taker common.Address, opts domain.ListOpts) ([]domain.Fill, error) {
	if j.sinks.Store != nil {
		if taker == (common.Address{}) {
			return j.sinks.Store.ListRecent(ctx, opts)
		}
		return j.sinks.Store.ListByTaker(ctx, taker, opts)
	}

	j.mu.RLock()
	fills := make([]domain.Fill, 0, len(j.recent))
	for _, f := range j.recent {
		if taker != (common.Address{}) && f.Taker != taker {
			continue
		}
		if opts.Since != nil && f.StartedAt.Before(*opts.Since) {
			continue
		}
		fills = append(fills, f)
	}
	j.mu.RUnlock()

	sort.Slice(fills, func(a, b int) bool { return fills[a].StartedAt.After(fills[b].StartedAt) })
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	if opts.Offset >= len(fills) {
		return []domain.Fill{}, nil
	}
	fills = fills[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(fills) {
		fills = fills[:opts.Limit]
	}
	return fills, nil
}

func (j *FillJournal) warn(ctx context.Context, op string, fill domain.Fill, err error) {
	j.logger.WarnContext(ctx, op+" failed",
		slog.String("fill_id", fill.ID),
		slog.String("state", string(fill.State)),
		slog.String("error", err.Error()),
	)
}
