package relay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/relaytaker/internal/domain"
)

const (
	wethAddr = "0x05d090b51c40b020eab3bfcb6a2dff130df22e9c"
	zrxAddr  = "0x6ff6c0ff1d68b964901f986d4c9fa3ac68346570"
)

const orderJSON = `{
  "maker": "0x9e56625509c2f60af937f23b7b532600390e8c8b",
  "taker": "0x0000000000000000000000000000000000000000",
  "makerFee": "0",
  "takerFee": "0",
  "makerTokenAmount": "1.5",
  "takerTokenAmount": "0.003",
  "makerTokenAddress": "` + wethAddr + `",
  "takerTokenAddress": "` + zrxAddr + `",
  "salt": "67006738228878699843088602623665307406148487219438534730168799356281242528500",
  "exchangeContractAddress": "0x90fe2af704b34e0224bf2299c838e04d4dcf1364",
  "feeRecipient": "0x0000000000000000000000000000000000000000",
  "expirationUnixTimestampSec": 1900000000,
  "ecSignature": {
    "v": 27,
    "r": "0x61a3ed31b43c8780e905a260a35faefcc527be7516aa11c0256729b5b351bc33",
    "s": "0x40349190569279751135161d22529dc25add4f6069af05be04cacbda2ace2254"
  },
  "valueRequired": "0.003 ZRX"
}`

func newRelay(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", time.Second)
}

func TestOrdersQueryAndDecode(t *testing.T) {
	var gotQuery string
	c := newRelay(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v0/orders" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		w.Write([]byte("[" + orderJSON + "]"))
	})

	orders, err := c.Orders(context.Background(), common.HexToAddress(wethAddr), common.HexToAddress(zrxAddr))
	if err != nil {
		t.Fatalf("Orders: %v", err)
	}
	if !strings.Contains(gotQuery, "makerTokenAddress="+wethAddr) || !strings.Contains(gotQuery, "takerTokenAddress="+zrxAddr) {
		t.Errorf("query = %s", gotQuery)
	}
	if len(orders) != 1 {
		t.Fatalf("got %d orders, want 1", len(orders))
	}

	o := orders[0]
	if !o.IsOpen() {
		t.Error("expected open order")
	}
	if !o.MakerTokenAmount.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("makerTokenAmount = %s", o.MakerTokenAmount)
	}
	if o.ExpirationUnixTimestampSec.IntPart() != 1900000000 {
		t.Errorf("expiration = %s", o.ExpirationUnixTimestampSec)
	}
	if o.ECSignature.V != 27 {
		t.Errorf("v = %d", o.ECSignature.V)
	}
	if o.ValueRequired != "0.003 ZRX" {
		t.Errorf("valueRequired = %q", o.ValueRequired)
	}
}

func TestOrdersUnfiltered(t *testing.T) {
	c := newRelay(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "" {
			t.Errorf("expected no query, got %s", r.URL.RawQuery)
		}
		w.Write([]byte("[]"))
	})

	orders, err := c.Orders(context.Background(), common.Address{}, common.Address{})
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 0 {
		t.Fatalf("got %d orders", len(orders))
	}
}

func TestOrdersMalformedResponse(t *testing.T) {
	bodies := map[string]string{
		"not an array":      `{"orders": []}`,
		"not json":          `<html>`,
		"missing maker":     `[` + strings.Replace(orderJSON, `"maker": "0x9e56625509c2f60af937f23b7b532600390e8c8b",`, "", 1) + `]`,
		"bad amount":        `[` + strings.Replace(orderJSON, `"1.5"`, `"lots"`, 1) + `]`,
		"negative amount":   `[` + strings.Replace(orderJSON, `"1.5"`, `"-1.5"`, 1) + `]`,
		"missing signature": `[` + strings.Replace(orderJSON, `"ecSignature"`, `"sig"`, 1) + `]`,
		"bad address":       `[` + strings.Replace(orderJSON, wethAddr, "0x1234", 1) + `]`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			c := newRelay(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			})
			_, err := c.Orders(context.Background(), common.Address{}, common.Address{})
			if !errors.Is(err, domain.ErrRelayResponse) {
				t.Fatalf("err = %v, want ErrRelayResponse", err)
			}
		})
	}
}

func TestTransportErrors(t *testing.T) {
	tests := []struct {
		status int
		also   error
	}{
		{http.StatusInternalServerError, nil},
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusForbidden, domain.ErrUnauthorized},
	}
	for _, tt := range tests {
		c := newRelay(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tt.status)
		})
		_, err := c.TokenPairs(context.Background(), common.Address{})
		if !errors.Is(err, domain.ErrTransport) {
			t.Errorf("status %d: err = %v, want ErrTransport", tt.status, err)
		}
		if tt.also != nil && !errors.Is(err, tt.also) {
			t.Errorf("status %d: err = %v, want %v", tt.status, err, tt.also)
		}
	}

	unreachable := NewClient("http://127.0.0.1:1", 100*time.Millisecond)
	if _, err := unreachable.Orders(context.Background(), common.Address{}, common.Address{}); !errors.Is(err, domain.ErrTransport) {
		t.Errorf("unreachable relay: err = %v, want ErrTransport", err)
	}
}

func TestTokenPairs(t *testing.T) {
	c := newRelay(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("tokenA"); got != wethAddr {
			t.Errorf("tokenA = %q", got)
		}
		w.Write([]byte(`[
		  {"tokenA": {"address": "` + wethAddr + `", "minAmount": "0", "precision": 5},
		   "tokenB": {"address": "` + zrxAddr + `"}}
		]`))
	})

	pairs, err := c.TokenPairs(context.Background(), common.HexToAddress(wethAddr))
	if err != nil {
		t.Fatalf("TokenPairs: %v", err)
	}
	if len(pairs) != 1 || pairs[0].TokenB != common.HexToAddress(zrxAddr) {
		t.Fatalf("unexpected pairs %+v", pairs)
	}
}

func TestTokenPairsMissingSide(t *testing.T) {
	c := newRelay(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"tokenA": {"address": "` + wethAddr + `"}}]`))
	})
	if _, err := c.TokenPairs(context.Background(), common.Address{}); !errors.Is(err, domain.ErrRelayResponse) {
		t.Fatalf("err = %v, want ErrRelayResponse", err)
	}
}

func TestAPIOrderFromDomain(t *testing.T) {
	o, err := DecodeOrder([]byte(orderJSON))
	if err != nil {
		t.Fatalf("DecodeOrder: %v", err)
	}
	wire := APIOrderFromDomain(o)
	if wire.Taker != nil {
		t.Error("open order rendered with a taker")
	}
	if wire.MakerTokenAddress != wethAddr {
		t.Errorf("makerTokenAddress = %s", wire.MakerTokenAddress)
	}
	back, err := wire.ToDomainOrder()
	if err != nil {
		t.Fatalf("ToDomainOrder: %v", err)
	}
	if !back.Salt.Equal(o.Salt) || back.ECSignature != o.ECSignature {
		t.Error("order changed after rendering")
	}
}
