package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/relaytaker/internal/domain"
	"github.com/alanyoungcy/relaytaker/internal/platform/relay"
)

var (
	wethAddr = common.HexToAddress("0x05d090b51c40b020eab3bfcb6a2dff130df22e9c")
	zrxAddr  = common.HexToAddress("0x6ff6c0ff1d68b964901f986d4c9fa3ac68346570")
	taker    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleOrder() domain.Order {
	return domain.Order{
		Maker:                      common.HexToAddress("0x9e56625509c2f60af937f23b7b532600390e8c8b"),
		MakerTokenAmount:           decimal.RequireFromString("1.5"),
		TakerTokenAmount:           decimal.RequireFromString("300"),
		MakerTokenAddress:          wethAddr,
		TakerTokenAddress:          zrxAddr,
		ExchangeContractAddress:    common.HexToAddress("0x90fe2af704b34e0224bf2299c838e04d4dcf1364"),
		ExpirationUnixTimestampSec: decimal.NewFromInt(1_900_000_000),
		Salt:                       decimal.RequireFromString("42"),
		ECSignature: domain.ECSignature{
			V: 27,
			R: common.HexToHash("0x01"),
			S: common.HexToHash("0x02"),
		},
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

type fakeRelay struct {
	orders []domain.Order
	pairs  []string
	err    error
	gotA   string
	gotB   string
}

func (f *fakeRelay) ListOrders(_ context.Context, a, b string) ([]domain.Order, error) {
	f.gotA, f.gotB = a, b
	return f.orders, f.err
}

func (f *fakeRelay) ListTradablePairs(_ context.Context, a string) ([]string, error) {
	f.gotA = a
	return f.pairs, f.err
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", domain.ErrInvalidAmount), http.StatusBadRequest},
		{domain.ErrInvalidOrder, http.StatusBadRequest},
		{domain.ErrRelayResponse, http.StatusBadRequest},
		{domain.ErrUnknownToken, http.StatusUnprocessableEntity},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrLockHeld, http.StatusConflict},
		{domain.ErrDuplicateFill, http.StatusConflict},
		{domain.ErrTransport, http.StatusBadGateway},
		{domain.ErrOnChainFailure, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := statusFor(c.err); got != c.want {
			t.Errorf("statusFor(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestParseListOpts(t *testing.T) {
	cases := []struct {
		query         string
		limit, offset int
	}{
		{"", 50, 0},
		{"limit=10&offset=20", 10, 20},
		{"limit=100000", 500, 0},
		{"limit=-1&offset=-5", 50, 0},
		{"limit=abc", 50, 0},
	}
	for _, c := range cases {
		r := httptest.NewRequest(http.MethodGet, "/api/fills?"+c.query, nil)
		opts := parseListOpts(r)
		if opts.Limit != c.limit || opts.Offset != c.offset {
			t.Errorf("%q: got limit=%d offset=%d", c.query, opts.Limit, opts.Offset)
		}
	}
}

func TestHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	rec := httptest.NewRecorder()
	NewHealthHandler(map[string]HealthCheck{"redis": ok}, testLogger()).
		Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthy: status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	NewHealthHandler(map[string]HealthCheck{"redis": ok, "postgres": down}, testLogger()).
		Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded: status %d", rec.Code)
	}
	var body struct {
		Status   string            `json:"status"`
		Backends map[string]string `json:"backends"`
	}
	decode(t, rec, &body)
	if body.Status != "degraded" || body.Backends["redis"] != "ok" || body.Backends["postgres"] != "connection refused" {
		t.Errorf("body = %+v", body)
	}
}

type fakeChecker struct {
	advisory string
	err      error
}

func (f fakeChecker) Check(context.Context) (string, error) { return f.advisory, f.err }

func TestNetwork(t *testing.T) {
	rec := httptest.NewRecorder()
	NewNetworkHandler(fakeChecker{advisory: "switch to Kovan"}, testLogger()).
		Network(rec, httptest.NewRequest(http.MethodGet, "/api/network", nil))
	var body struct {
		OK       bool   `json:"ok"`
		Advisory string `json:"advisory"`
	}
	decode(t, rec, &body)
	if rec.Code != http.StatusOK || body.OK || body.Advisory != "switch to Kovan" {
		t.Errorf("status %d body %+v", rec.Code, body)
	}

	rec = httptest.NewRecorder()
	NewNetworkHandler(fakeChecker{}, testLogger()).
		Network(rec, httptest.NewRequest(http.MethodGet, "/api/network", nil))
	decode(t, rec, &body)
	if !body.OK {
		t.Errorf("expected network reported as not ok: %s", rec.Body.String())
	}
}

func TestListOrders(t *testing.T) {
	fr := &fakeRelay{orders: []domain.Order{sampleOrder()}}
	rec := httptest.NewRecorder()
	NewOrdersHandler(fr, testLogger()).
		ListOrders(rec, httptest.NewRequest(http.MethodGet, "/api/orders?a=ETH&b=ZRX", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if fr.gotA != "ETH" || fr.gotB != "ZRX" {
		t.Errorf("relay queried with %q/%q", fr.gotA, fr.gotB)
	}

	var body struct {
		Orders []json.RawMessage `json:"orders"`
	}
	decode(t, rec, &body)
	if len(body.Orders) != 1 {
		t.Fatalf("got %d orders", len(body.Orders))
	}
	back, err := relay.DecodeOrder(body.Orders[0])
	if err != nil {
		t.Fatalf("order does not decode as a relay record: %v", err)
	}
	if back.Maker != sampleOrder().Maker || !back.Salt.Equal(sampleOrder().Salt) {
		t.Errorf("order changed: %+v", back)
	}
}

func TestListOrdersRelayDown(t *testing.T) {
	rec := httptest.NewRecorder()
	NewOrdersHandler(&fakeRelay{err: fmt.Errorf("relay: %w", domain.ErrTransport)}, testLogger()).
		ListOrders(rec, httptest.NewRequest(http.MethodGet, "/api/orders?a=ETH&b=ZRX", nil))
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status %d, want 502", rec.Code)
	}
}

func TestListPairsEmpty(t *testing.T) {
	rec := httptest.NewRecorder()
	NewOrdersHandler(&fakeRelay{}, testLogger()).
		ListPairs(rec, httptest.NewRequest(http.MethodGet, "/api/pairs?token=NOPE", nil))
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"symbols":[]}` {
		t.Errorf("status %d body %s", rec.Code, rec.Body.String())
	}
}

type fakeResolver map[common.Address]string

func (f fakeResolver) ResolveSymbol(_ context.Context, addr common.Address) (string, bool, error) {
	s, ok := f[addr]
	return s, ok, nil
}

func TestTokenSymbol(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tokens/{address}/symbol",
		NewTokensHandler(fakeResolver{wethAddr: "ETH"}, testLogger()).Symbol)

	cases := []struct {
		path string
		code int
	}{
		{"/api/tokens/" + wethAddr.Hex() + "/symbol", http.StatusOK},
		{"/api/tokens/" + zrxAddr.Hex() + "/symbol", http.StatusNotFound},
		{"/api/tokens/not-an-address/symbol", http.StatusBadRequest},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, c.path, nil))
		if rec.Code != c.code {
			t.Errorf("%s: status %d, want %d", c.path, rec.Code, c.code)
		}
	}
}

type fakeFiller struct {
	fill   domain.Fill
	err    error
	order  domain.Order
	amount decimal.Decimal
	ctxErr error
}

func (f *fakeFiller) Fill(ctx context.Context, order domain.Order, amount decimal.Decimal) (domain.Fill, error) {
	f.order, f.amount = order, amount
	f.ctxErr = ctx.Err()
	return f.fill, f.err
}

type fakeHistory struct {
	fills []domain.Fill
	taker common.Address
	opts  domain.ListOpts
}

func (f *fakeHistory) Get(_ context.Context, id string) (domain.Fill, error) {
	for _, fl := range f.fills {
		if fl.ID == id {
			return fl, nil
		}
	}
	return domain.Fill{}, domain.ErrNotFound
}

func (f *fakeHistory) List(_ context.Context, taker common.Address, opts domain.ListOpts) ([]domain.Fill, error) {
	f.taker, f.opts = taker, opts
	return f.fills, nil
}

func fillBody(t *testing.T, amount string) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"order":        relay.APIOrderFromDomain(sampleOrder()),
		"taker_amount": amount,
	})
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewReader(data)
}

func TestCreateFill(t *testing.T) {
	tx := common.HexToHash("0xfeed")
	filler := &fakeFiller{fill: domain.Fill{ID: "f1", State: domain.FillStateConfirmed, FillTx: &tx}}
	h := NewFillsHandler(filler, &fakeHistory{}, time.Minute, testLogger())

	rec := httptest.NewRecorder()
	h.CreateFill(rec, httptest.NewRequest(http.MethodPost, "/api/fills", fillBody(t, "150")))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if !filler.amount.Equal(decimal.NewFromInt(150)) {
		t.Errorf("amount = %s", filler.amount)
	}
	if filler.order.Maker != sampleOrder().Maker || !filler.order.TakerTokenAmount.Equal(sampleOrder().TakerTokenAmount) {
		t.Errorf("order = %+v", filler.order)
	}
	var got domain.Fill
	decode(t, rec, &got)
	if got.ID != "f1" || got.State != domain.FillStateConfirmed {
		t.Errorf("fill = %+v", got)
	}
}

func TestCreateFillSurvivesClientCancel(t *testing.T) {
	filler := &fakeFiller{fill: domain.Fill{ID: "f1", State: domain.FillStateConfirmed}}
	h := NewFillsHandler(filler, &fakeHistory{}, 0, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/fills", fillBody(t, "1")).WithContext(ctx)
	h.CreateFill(httptest.NewRecorder(), req)

	if filler.ctxErr != nil {
		t.Errorf("fill saw cancelled context: %v", filler.ctxErr)
	}
}

func TestCreateFillFailure(t *testing.T) {
	filler := &fakeFiller{
		fill: domain.Fill{ID: "f2", State: domain.FillStateFailed, Error: "reverted"},
		err:  fmt.Errorf("fill failed during awaiting_confirmation: %w", domain.ErrOnChainFailure),
	}
	rec := httptest.NewRecorder()
	NewFillsHandler(filler, &fakeHistory{}, time.Minute, testLogger()).
		CreateFill(rec, httptest.NewRequest(http.MethodPost, "/api/fills", fillBody(t, "1")))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status %d, want 502", rec.Code)
	}
	var body struct {
		Error string      `json:"error"`
		Fill  domain.Fill `json:"fill"`
	}
	decode(t, rec, &body)
	if body.Fill.ID != "f2" || body.Error == "" {
		t.Errorf("body = %+v", body)
	}
}

func TestCreateFillRejectsBadInput(t *testing.T) {
	cases := map[string]io.Reader{
		"not json":     strings.NewReader("{"),
		"bad amount":   fillBody(t, "lots"),
		"empty amount": fillBody(t, ""),
		"bad order":    strings.NewReader(`{"order":{"maker":"0x1"},"taker_amount":"1"}`),
	}
	for name, body := range cases {
		filler := &fakeFiller{}
		rec := httptest.NewRecorder()
		NewFillsHandler(filler, &fakeHistory{}, time.Minute, testLogger()).
			CreateFill(rec, httptest.NewRequest(http.MethodPost, "/api/fills", body))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", name, rec.Code)
		}
		if filler.order.Maker != (common.Address{}) {
			t.Errorf("%s: filler was called", name)
		}
	}
}

func TestCreateFillConflict(t *testing.T) {
	filler := &fakeFiller{err: fmt.Errorf("executor: %w", domain.ErrDuplicateFill)}
	rec := httptest.NewRecorder()
	NewFillsHandler(filler, &fakeHistory{}, time.Minute, testLogger()).
		CreateFill(rec, httptest.NewRequest(http.MethodPost, "/api/fills", fillBody(t, "1")))
	if rec.Code != http.StatusConflict {
		t.Errorf("status %d, want 409", rec.Code)
	}
}

func TestListAndGetFills(t *testing.T) {
	hist := &fakeHistory{fills: []domain.Fill{{ID: "a", Taker: taker}, {ID: "b", Taker: taker}}}
	h := NewFillsHandler(&fakeFiller{}, hist, 0, testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/fills", h.ListFills)
	mux.HandleFunc("GET /api/fills/{id}", h.GetFill)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/fills?taker="+taker.Hex()+"&limit=5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	if hist.taker != taker || hist.opts.Limit != 5 {
		t.Errorf("list query taker=%s opts=%+v", hist.taker.Hex(), hist.opts)
	}
	var list struct {
		Fills []domain.Fill `json:"fills"`
	}
	decode(t, rec, &list)
	if len(list.Fills) != 2 {
		t.Errorf("got %d fills", len(list.Fills))
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/fills?taker=nope", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad taker: status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/fills/b", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("get: status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/fills/zzz", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing: status %d", rec.Code)
	}
}

type fakeReceipts map[string]string

func (f fakeReceipts) Fetch(_ context.Context, fill domain.Fill) ([]byte, error) {
	doc, ok := f[fill.ID]
	if !ok {
		return nil, fmt.Errorf("s3blob: %w", domain.ErrNotFound)
	}
	return []byte(doc), nil
}

func TestGetReceipt(t *testing.T) {
	hist := &fakeHistory{fills: []domain.Fill{
		{ID: "done", State: domain.FillStateConfirmed},
		{ID: "lost", State: domain.FillStateConfirmed},
		{ID: "failed", State: domain.FillStateFailed},
	}}
	h := NewFillsHandler(&fakeFiller{}, hist, 0, testLogger()).
		WithReceipts(fakeReceipts{"done": `{"receipt":{"status":1}}`})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/fills/{id}/receipt", h.GetReceipt)

	cases := []struct {
		id   string
		code int
	}{
		{"done", http.StatusOK},
		{"lost", http.StatusNotFound},
		{"failed", http.StatusNotFound},
		{"nope", http.StatusNotFound},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/fills/"+c.id+"/receipt", nil))
		if rec.Code != c.code {
			t.Errorf("%s: status %d, want %d", c.id, rec.Code, c.code)
		}
	}

	rec := httptest.NewRecorder()
	NewFillsHandler(&fakeFiller{}, hist, 0, testLogger()).
		GetReceipt(rec, httptest.NewRequest(http.MethodGet, "/api/fills/done/receipt", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("no archive: status %d", rec.Code)
	}
}

type fakeEvents struct {
	msgs   []domain.StreamMessage
	stream string
	after  string
	count  int
}

func (f *fakeEvents) StreamRead(_ context.Context, stream, after string, count int) ([]domain.StreamMessage, error) {
	f.stream, f.after, f.count = stream, after, count
	return f.msgs, nil
}

func TestEvents(t *testing.T) {
	src := &fakeEvents{msgs: []domain.StreamMessage{
		{ID: "1-0", Payload: []byte(`{"fill_id":"a","state":"start"}`)},
		{ID: "2-0", Payload: []byte(`not json`)},
		{ID: "3-0", Payload: []byte(`{"fill_id":"a","state":"confirmed"}`)},
	}}
	h := NewFillsHandler(&fakeFiller{}, &fakeHistory{}, 0, testLogger()).WithEvents(src, "fills:events")

	rec := httptest.NewRecorder()
	h.Events(rec, httptest.NewRequest(http.MethodGet, "/api/fills/events?after=0-5&count=5000", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	if src.stream != "fills:events" || src.after != "0-5" || src.count != 1000 {
		t.Errorf("read %s after %s count %d", src.stream, src.after, src.count)
	}

	var body struct {
		Events []struct {
			ID    string          `json:"id"`
			Event json.RawMessage `json:"event"`
		} `json:"events"`
		Next string `json:"next"`
	}
	decode(t, rec, &body)
	if len(body.Events) != 2 || body.Next != "3-0" {
		t.Fatalf("events = %+v, next %q", body.Events, body.Next)
	}

	rec = httptest.NewRecorder()
	h.Events(rec, httptest.NewRequest(http.MethodGet, "/api/fills/events?count=-1", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad count: status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	NewFillsHandler(&fakeFiller{}, &fakeHistory{}, 0, testLogger()).
		Events(rec, httptest.NewRequest(http.MethodGet, "/api/fills/events", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("no stream: status %d", rec.Code)
	}
}

type fakeAudit struct {
	entries []domain.AuditEntry
	opts    domain.ListOpts
	err     error
}

func (f *fakeAudit) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	f.opts = opts
	return f.entries, f.err
}

func TestAuditList(t *testing.T) {
	src := &fakeAudit{entries: []domain.AuditEntry{
		{ID: 2, Event: "fill_confirmed", Detail: map[string]any{"fill_id": "a"}},
	}}
	rec := httptest.NewRecorder()
	NewAuditHandler(src, testLogger()).List(rec, httptest.NewRequest(http.MethodGet, "/api/audit?limit=5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if src.opts.Limit != 5 {
		t.Errorf("limit = %d", src.opts.Limit)
	}
	var body struct {
		Entries []domain.AuditEntry `json:"entries"`
	}
	decode(t, rec, &body)
	if len(body.Entries) != 1 || body.Entries[0].Event != "fill_confirmed" || body.Entries[0].Detail["fill_id"] != "a" {
		t.Errorf("entries = %+v", body.Entries)
	}

	rec = httptest.NewRecorder()
	NewAuditHandler(&fakeAudit{err: errors.New("db down")}, testLogger()).
		List(rec, httptest.NewRequest(http.MethodGet, "/api/audit", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("failure: status %d", rec.Code)
	}
}
