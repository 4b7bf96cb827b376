package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/relaytaker/internal/domain"
	"github.com/alanyoungcy/relaytaker/internal/platform/relay"
	"github.com/alanyoungcy/relaytaker/internal/server/middleware"
	"github.com/alanyoungcy/relaytaker/internal/units"
)

// maxFillBody caps the size of a fill request body.
const maxFillBody = 64 << 10

// Filler executes a fill.
type Filler interface {
	Fill(ctx context.Context, order domain.Order, takerAmount decimal.Decimal) (domain.Fill, error)
}

// FillHistory answers fill queries.
type FillHistory interface {
	Get(ctx context.Context, id string) (domain.Fill, error)
	List(ctx context.Context, taker common.Address, opts domain.ListOpts) ([]domain.Fill, error)
}

// ReceiptSource returns the archived receipt document of a confirmed fill.
type ReceiptSource interface {
	Fetch(ctx context.Context, fill domain.Fill) ([]byte, error)
}

// EventSource replays a durable event stream.
type EventSource interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

// FillsHandler starts fills and serves the fill journal.
type FillsHandler struct {
	filler   Filler
	history  FillHistory
	receipts ReceiptSource
	events   EventSource
	stream   string
	timeout  time.Duration
	logger   *slog.Logger
}

// NewFillsHandler creates a FillsHandler. A zero timeout lets a fill run
// until the server shuts down.
func NewFillsHandler(filler Filler, history FillHistory, timeout time.Duration, logger *slog.Logger) *FillsHandler {
	return &FillsHandler{filler: filler, history: history, timeout: timeout, logger: logger}
}

// WithReceipts serves archived receipts from src.
func (h *FillsHandler) WithReceipts(src ReceiptSource) *FillsHandler {
	h.receipts = src
	return h
}

// WithEvents replays fill events from stream on src.
func (h *FillsHandler) WithEvents(src EventSource, stream string) *FillsHandler {
	h.events = src
	h.stream = stream
	return h
}

type createFillRequest struct {
	Order       relay.APIOrder `json:"order"`
	TakerAmount string         `json:"taker_amount"`
}

type fillErrorResponse struct {
	Error string      `json:"error"`
	Fill  domain.Fill `json:"fill"`
}

// CreateFill fills an order taken from the relay. The fill runs to
// completion even if the client goes away, because it may already have
// sent transactions.
// POST /api/fills
func (h *FillsHandler) CreateFill(w http.ResponseWriter, r *http.Request) {
	var req createFillRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFillBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	order, err := req.Order.ToDomainOrder()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := units.Parse(req.TakerAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := context.WithoutCancel(r.Context())
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	fill, err := h.filler.Fill(ctx, order, amount)
	if err != nil {
		h.logger.WarnContext(ctx, "handler: fill failed",
			slog.String("request_id", middleware.RequestID(r.Context())),
			slog.String("fill_id", fill.ID),
			slog.String("error", err.Error()),
		)
		if fill.ID == "" {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, statusFor(err), fillErrorResponse{Error: err.Error(), Fill: fill})
		return
	}
	writeJSON(w, http.StatusCreated, fill)
}

// ListFills returns recent fills, optionally for one taker.
// GET /api/fills?taker=0x...&limit=50&offset=0
func (h *FillsHandler) ListFills(w http.ResponseWriter, r *http.Request) {
	var taker common.Address
	if raw := r.URL.Query().Get("taker"); raw != "" {
		if !common.IsHexAddress(raw) {
			writeError(w, http.StatusBadRequest, "invalid taker address")
			return
		}
		taker = common.HexToAddress(raw)
	}

	fills, err := h.history.List(r.Context(), taker, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list fills failed", slog.String("error", err.Error()))
		writeError(w, statusFor(err), "failed to list fills")
		return
	}
	if fills == nil {
		fills = []domain.Fill{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"fills": fills})
}

// GetFill returns one fill.
// GET /api/fills/{id}
func (h *FillsHandler) GetFill(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	fill, err := h.history.Get(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "fill not found")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get fill failed",
			slog.String("fill_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, statusFor(err), "failed to get fill")
		return
	}
	writeJSON(w, http.StatusOK, fill)
}

// GetReceipt returns the archived receipt of a confirmed fill. It is 404
// when no archive is configured or nothing was archived.
// GET /api/fills/{id}/receipt
func (h *FillsHandler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	if h.receipts == nil {
		writeError(w, http.StatusNotFound, "receipt archive not configured")
		return
	}

	id := r.PathValue("id")
	fill, err := h.history.Get(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), "fill not found")
		return
	}
	if fill.State != domain.FillStateConfirmed {
		writeError(w, http.StatusNotFound, "fill is not confirmed")
		return
	}

	doc, err := h.receipts.Fetch(r.Context(), fill)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			h.logger.ErrorContext(r.Context(), "handler: fetch receipt failed",
				slog.String("fill_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeError(w, statusFor(err), "receipt not available")
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

type streamedEvent struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

// Events replays fill events recorded after the given stream id, so a
// client that lost its websocket can catch up. Pass the returned next id
// back as after.
// GET /api/fills/events?after=0&count=100
func (h *FillsHandler) Events(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeError(w, http.StatusNotFound, "event stream not configured")
		return
	}

	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	count := 100
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid count")
			return
		}
		count = min(n, 1000)
	}

	msgs, err := h.events.StreamRead(r.Context(), h.stream, after, count)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: read fill events failed", slog.String("error", err.Error()))
		writeError(w, statusFor(err), "failed to read fill events")
		return
	}

	events := make([]streamedEvent, 0, len(msgs))
	next := after
	for _, m := range msgs {
		next = m.ID
		if json.Valid(m.Payload) {
			events = append(events, streamedEvent{ID: m.ID, Event: m.Payload})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "next": next})
}
