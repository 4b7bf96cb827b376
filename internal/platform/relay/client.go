// Package relay is the HTTP client for a Standard Relayer API (v0) relay,
// the off-chain order book that publishes signed orders.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/relaytaker/internal/domain"
)

const defaultTimeout = 30 * time.Second

// Client reads orders and token pairs from a relay. It holds no state
// besides the HTTP client and is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a relay client.
//
// baseURL is the relay root, e.g. "https://api.amadeusrelay.org". A zero
// timeout selects 30 seconds.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Orders returns the relay's open orders for the given maker and taker
// tokens. A zero address leaves that side unfiltered. One malformed record
// fails the whole call with domain.ErrRelayResponse.
func (c *Client) Orders(ctx context.Context, makerToken, takerToken common.Address) ([]domain.Order, error) {
	params := url.Values{}
	if makerToken != (common.Address{}) {
		params.Set("makerTokenAddress", hexAddress(makerToken))
	}
	if takerToken != (common.Address{}) {
		params.Set("takerTokenAddress", hexAddress(takerToken))
	}

	body, err := c.doGet(ctx, "/api/v0/orders", params)
	if err != nil {
		return nil, fmt.Errorf("relay: get orders: %w", err)
	}

	var records []APIOrder
	if err := decodeArray(body, &records); err != nil {
		return nil, fmt.Errorf("relay: decode orders: %w", err)
	}

	orders := make([]domain.Order, 0, len(records))
	for i := range records {
		o, err := records[i].ToDomainOrder()
		if err != nil {
			return nil, fmt.Errorf("relay: order %d: %w", i, err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// TokenPairs returns the pairs the relay lists for tokenA, or every pair
// when tokenA is the zero address.
func (c *Client) TokenPairs(ctx context.Context, tokenA common.Address) ([]domain.TokenPair, error) {
	params := url.Values{}
	if tokenA != (common.Address{}) {
		params.Set("tokenA", hexAddress(tokenA))
	}

	body, err := c.doGet(ctx, "/api/v0/token_pairs", params)
	if err != nil {
		return nil, fmt.Errorf("relay: get token pairs: %w", err)
	}

	var records []APITokenPair
	if err := decodeArray(body, &records); err != nil {
		return nil, fmt.Errorf("relay: decode token pairs: %w", err)
	}

	pairs := make([]domain.TokenPair, 0, len(records))
	for i := range records {
		p, err := records[i].ToDomainPair()
		if err != nil {
			return nil, fmt.Errorf("relay: token pair %d: %w", i, err)
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet sends an unauthenticated GET. Network failures and non-2xx statuses
// wrap domain.ErrTransport.
func (c *Client) doGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrTransport, err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors. Every mapped
// error also matches domain.ErrTransport.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	if len(bodyStr) > 512 {
		bodyStr = bodyStr[:512]
	}
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w: %s", domain.ErrTransport, domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w: %s", domain.ErrTransport, domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w: %s", domain.ErrTransport, domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrTransport, statusCode, bodyStr)
	}
}

// decodeArray requires the body to be a JSON array.
func decodeArray(body []byte, dst any) error {
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "[") {
		return fmt.Errorf("%w: expected a JSON array", domain.ErrRelayResponse)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRelayResponse, err)
	}
	return nil
}
