package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/relaytaker/internal/domain"
)

// CachingRegistry is a read-through cache in front of the token registry.
// Only successful lookups are cached; misses always reach the registry.
type CachingRegistry struct {
	next   domain.TokenRegistry
	cache  domain.TokenCache
	logger *slog.Logger
}

// NewCachingRegistry wraps next with cache.
func NewCachingRegistry(next domain.TokenRegistry, cache domain.TokenCache, logger *slog.Logger) *CachingRegistry {
	return &CachingRegistry{next: next, cache: cache, logger: logger}
}

func (c *CachingRegistry) TokenBySymbol(ctx context.Context, symbol string) (domain.Token, error) {
	if tok, err := c.cache.GetBySymbol(ctx, symbol); err == nil {
		return tok, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		c.warn(ctx, "symbol", symbol, err)
	}

	tok, err := c.next.TokenBySymbol(ctx, symbol)
	if err != nil {
		return domain.Token{}, err
	}
	c.store(ctx, tok)
	return tok, nil
}

func (c *CachingRegistry) TokenByAddress(ctx context.Context, addr common.Address) (domain.Token, error) {
	if tok, err := c.cache.GetByAddress(ctx, addr); err == nil {
		return tok, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		c.warn(ctx, "address", addr.Hex(), err)
	}

	tok, err := c.next.TokenByAddress(ctx, addr)
	if err != nil {
		return domain.Token{}, err
	}
	c.store(ctx, tok)
	return tok, nil
}

func (c *CachingRegistry) store(ctx context.Context, tok domain.Token) {
	if err := c.cache.SetToken(ctx, tok); err != nil {
		c.warn(ctx, "set", tok.Address.Hex(), err)
	}
}

func (c *CachingRegistry) warn(ctx context.Context, op, key string, err error) {
	c.logger.WarnContext(ctx, "token cache unavailable",
		slog.String("op", op),
		slog.String("key", key),
		slog.String("error", err.Error()),
	)
}

var _ domain.TokenRegistry = (*CachingRegistry)(nil)
