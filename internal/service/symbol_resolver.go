package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/relaytaker/internal/domain"
)

// wrappedDecimals is fixed by the wrapped-currency contract.
const wrappedDecimals = 18

// SymbolResolver maps token symbols to addresses and back through the token
// registry. The native symbol ETH is never looked up: it stands for the
// wrapped-currency contract in both directions.
type SymbolResolver struct {
	registry   domain.TokenRegistry
	etherToken common.Address
}

// NewSymbolResolver creates a resolver. etherToken is the wrapped-currency
// contract of the connected network.
func NewSymbolResolver(registry domain.TokenRegistry, etherToken common.Address) *SymbolResolver {
	return &SymbolResolver{registry: registry, etherToken: etherToken}
}

// EtherToken returns the wrapped-currency address ETH resolves to.
func (r *SymbolResolver) EtherToken() common.Address {
	return r.etherToken
}

// ResolveAddress returns the contract address for symbol. found is false when
// the registry has no such symbol.
func (r *SymbolResolver) ResolveAddress(ctx context.Context, symbol string) (addr common.Address, found bool, err error) {
	if strings.EqualFold(symbol, domain.NativeSymbol) {
		return r.etherToken, true, nil
	}
	tok, err := r.registry.TokenBySymbol(ctx, symbol)
	if errors.Is(err, domain.ErrUnknownToken) {
		return common.Address{}, false, nil
	}
	if err != nil {
		return common.Address{}, false, fmt.Errorf("resolver: address of %s: %w", symbol, err)
	}
	return tok.Address, true, nil
}

// ResolveSymbol returns the display symbol for addr. The wrapped-currency
// contract is reported as ETH.
func (r *SymbolResolver) ResolveSymbol(ctx context.Context, addr common.Address) (symbol string, found bool, err error) {
	if addr == r.etherToken {
		return domain.NativeSymbol, true, nil
	}
	tok, err := r.registry.TokenByAddress(ctx, addr)
	if errors.Is(err, domain.ErrUnknownToken) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolver: symbol of %s: %w", addr.Hex(), err)
	}
	if tok.Symbol == domain.WrappedSymbol {
		return domain.NativeSymbol, true, nil
	}
	return tok.Symbol, true, nil
}

// Token returns registry metadata for addr and fails with
// domain.ErrUnknownToken when there is none. The wrapped-currency contract
// resolves even when the registry does not list it.
func (r *SymbolResolver) Token(ctx context.Context, addr common.Address) (domain.Token, error) {
	tok, err := r.registry.TokenByAddress(ctx, addr)
	switch {
	case err == nil:
		return tok, nil
	case errors.Is(err, domain.ErrUnknownToken) && addr == r.etherToken:
		return domain.Token{
			Address:  addr,
			Symbol:   domain.WrappedSymbol,
			Name:     "Wrapped Ether",
			Decimals: wrappedDecimals,
		}, nil
	case errors.Is(err, domain.ErrUnknownToken):
		return domain.Token{}, fmt.Errorf("resolver: %w: %s", domain.ErrUnknownToken, addr.Hex())
	default:
		return domain.Token{}, fmt.Errorf("resolver: token %s: %w", addr.Hex(), err)
	}
}
