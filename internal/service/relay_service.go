package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/relaytaker/internal/domain"
)

// RelayReader is the relay HTTP client.
type RelayReader interface {
	Orders(ctx context.Context, makerToken, takerToken common.Address) ([]domain.Order, error)
	TokenPairs(ctx context.Context, tokenA common.Address) ([]domain.TokenPair, error)
}

// TokenResolver is implemented by SymbolResolver.
type TokenResolver interface {
	ResolveAddress(ctx context.Context, symbol string) (common.Address, bool, error)
	ResolveSymbol(ctx context.Context, addr common.Address) (string, bool, error)
	Token(ctx context.Context, addr common.Address) (domain.Token, error)
	EtherToken() common.Address
}

// RelayService answers the consumer's order-book questions in terms of
// symbols, translating to addresses for the relay.
type RelayService struct {
	relay    RelayReader
	resolver TokenResolver
	logger   *slog.Logger
}

// NewRelayService creates a RelayService.
func NewRelayService(relay RelayReader, resolver TokenResolver, logger *slog.Logger) *RelayService {
	return &RelayService{
		relay:    relay,
		resolver: resolver,
		logger:   logger.With(slog.String("component", "relay_service")),
	}
}

// ListOrders returns the relay's orders selling symbolA for symbolB. An empty
// symbol leaves that side unfiltered. A symbol the registry does not know
// makes the pair unusable and yields no orders without asking the relay.
func (s *RelayService) ListOrders(ctx context.Context, symbolA, symbolB string) ([]domain.Order, error) {
	makerToken, ok, err := s.filterAddress(ctx, symbolA)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []domain.Order{}, nil
	}
	takerToken, ok, err := s.filterAddress(ctx, symbolB)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []domain.Order{}, nil
	}

	orders, err := s.relay.Orders(ctx, makerToken, takerToken)
	if err != nil {
		return nil, fmt.Errorf("relay_service: list orders %s/%s: %w", symbolA, symbolB, err)
	}

	s.logger.DebugContext(ctx, "orders listed",
		slog.String("maker_symbol", symbolA),
		slog.String("taker_symbol", symbolB),
		slog.Int("count", len(orders)),
	)
	return orders, nil
}

// ListTradablePairs returns the symbols tradable against symbolA, unique and
// in the relay's order. ETH is queried as its wrapped token. Pairs whose
// counter token has no registry symbol are skipped.
func (s *RelayService) ListTradablePairs(ctx context.Context, symbolA string) ([]string, error) {
	query, ok, err := s.filterAddress(ctx, symbolA)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []string{}, nil
	}

	pairs, err := s.relay.TokenPairs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("relay_service: list pairs for %s: %w", symbolA, err)
	}

	symbols := make([]string, 0, len(pairs))
	seen := make(map[string]struct{}, len(pairs))
	skipped := 0
	for _, p := range pairs {
		for _, candidate := range counterTokens(p, query) {
			symbol, found, err := s.resolver.ResolveSymbol(ctx, candidate)
			if err != nil {
				return nil, fmt.Errorf("relay_service: list pairs for %s: %w", symbolA, err)
			}
			if !found {
				skipped++
				continue
			}
			if _, dup := seen[symbol]; dup {
				continue
			}
			seen[symbol] = struct{}{}
			symbols = append(symbols, symbol)
		}
	}

	if skipped > 0 {
		s.logger.InfoContext(ctx, "skipped pairs without registry symbol",
			slog.String("symbol", symbolA),
			slog.Int("skipped", skipped),
		)
	}
	return symbols, nil
}

// ResolveSymbol exposes the resolver to consumers. found is false for
// unknown tokens.
func (s *RelayService) ResolveSymbol(ctx context.Context, addr common.Address) (string, bool, error) {
	return s.resolver.ResolveSymbol(ctx, addr)
}

// filterAddress turns a query symbol into a relay filter. ok is false when
// the symbol is set but unknown.
func (s *RelayService) filterAddress(ctx context.Context, symbol string) (common.Address, bool, error) {
	if symbol == "" {
		return common.Address{}, true, nil
	}
	addr, found, err := s.resolver.ResolveAddress(ctx, symbol)
	if err != nil {
		return common.Address{}, false, fmt.Errorf("relay_service: %w", err)
	}
	if !found {
		s.logger.InfoContext(ctx, "unknown token symbol", slog.String("symbol", symbol))
	}
	return addr, found, nil
}

// counterTokens picks the side of p opposite to the query token, or both
// sides for an unfiltered query.
func counterTokens(p domain.TokenPair, query common.Address) []common.Address {
	switch {
	case query == (common.Address{}):
		return []common.Address{p.TokenA, p.TokenB}
	case p.TokenB == query:
		return []common.Address{p.TokenA}
	default:
		return []common.Address{p.TokenB}
	}
}
