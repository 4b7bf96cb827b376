package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/relaytaker/internal/domain"
)

// DefaultTokenTTL bounds how long a registry answer is trusted.
const DefaultTokenTTL = 10 * time.Minute

// TokenCache implements domain.TokenCache.
//
// Key schema:
//
//	token:addr:{address} - JSON token
//	token:sym:{SYMBOL}   - address of the token with that symbol
type TokenCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewTokenCache creates a TokenCache. A non-positive ttl selects
// DefaultTokenTTL.
func NewTokenCache(c *Client, ttl time.Duration) *TokenCache {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenCache{rdb: c.Underlying(), ttl: ttl}
}

func tokenAddrKey(addr common.Address) string {
	return "token:addr:" + strings.ToLower(addr.Hex())
}

func tokenSymbolKey(symbol string) string {
	return "token:sym:" + strings.ToUpper(symbol)
}

// SetToken stores the token under both keys.
func (tc *TokenCache) SetToken(ctx context.Context, token domain.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("redis: marshal token %s: %w", token.Address.Hex(), err)
	}

	pipe := tc.rdb.TxPipeline()
	pipe.Set(ctx, tokenAddrKey(token.Address), data, tc.ttl)
	if token.Symbol != "" {
		pipe.Set(ctx, tokenSymbolKey(token.Symbol), token.Address.Hex(), tc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set token %s: %w", token.Address.Hex(), err)
	}
	return nil
}

// GetByAddress returns domain.ErrNotFound on a miss.
func (tc *TokenCache) GetByAddress(ctx context.Context, addr common.Address) (domain.Token, error) {
	data, err := tc.rdb.Get(ctx, tokenAddrKey(addr)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Token{}, domain.ErrNotFound
		}
		return domain.Token{}, fmt.Errorf("redis: get token %s: %w", addr.Hex(), err)
	}

	var token domain.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return domain.Token{}, fmt.Errorf("redis: unmarshal token %s: %w", addr.Hex(), err)
	}
	return token, nil
}

// GetBySymbol follows the symbol index to the address entry. It returns
// domain.ErrNotFound when either key has expired.
func (tc *TokenCache) GetBySymbol(ctx context.Context, symbol string) (domain.Token, error) {
	hex, err := tc.rdb.Get(ctx, tokenSymbolKey(symbol)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Token{}, domain.ErrNotFound
		}
		return domain.Token{}, fmt.Errorf("redis: get token symbol %s: %w", symbol, err)
	}
	if !common.IsHexAddress(hex) {
		return domain.Token{}, domain.ErrNotFound
	}
	return tc.GetByAddress(ctx, common.HexToAddress(hex))
}

var _ domain.TokenCache = (*TokenCache)(nil)
