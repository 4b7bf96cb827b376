package ethereum

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/relaytaker/internal/domain"
)

// Registry reads the on-chain token registry.
type Registry struct {
	backend Backend
	address common.Address
}

// NewRegistry binds the registry contract at address.
func NewRegistry(backend Backend, address common.Address) *Registry {
	return &Registry{backend: backend, address: address}
}

// TokenBySymbol looks up a token by its registered symbol.
func (r *Registry) TokenBySymbol(ctx context.Context, symbol string) (domain.Token, error) {
	tok, err := r.lookup(ctx, "getTokenBySymbol", symbol)
	if err != nil {
		return domain.Token{}, fmt.Errorf("ethereum/registry: symbol %s: %w", symbol, err)
	}
	return tok, nil
}

// TokenByAddress looks up a token's metadata by contract address.
func (r *Registry) TokenByAddress(ctx context.Context, addr common.Address) (domain.Token, error) {
	tok, err := r.lookup(ctx, "getTokenMetaData", addr)
	if err != nil {
		return domain.Token{}, fmt.Errorf("ethereum/registry: address %s: %w", addr.Hex(), err)
	}
	return tok, nil
}

// lookup calls one of the two registry getters, which share the output
// tuple (address, name, symbol, decimals, ipfsHash, swarmHash). The registry
// answers unknown keys with the zero address.
func (r *Registry) lookup(ctx context.Context, method string, arg any) (domain.Token, error) {
	out, err := call(ctx, r.backend, r.address, tokenRegistryABI, method, arg)
	if err != nil {
		return domain.Token{}, err
	}
	if len(out) < 4 {
		return domain.Token{}, fmt.Errorf("%w: %s returned %d values", domain.ErrTransport, method, len(out))
	}

	addr, ok1 := out[0].(common.Address)
	name, ok2 := out[1].(string)
	symbol, ok3 := out[2].(string)
	decimals, ok4 := out[3].(uint8)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return domain.Token{}, fmt.Errorf("%w: %s returned unexpected types", domain.ErrTransport, method)
	}
	if addr == (common.Address{}) {
		return domain.Token{}, domain.ErrUnknownToken
	}

	return domain.Token{
		Address:  addr,
		Symbol:   symbol,
		Name:     name,
		Decimals: int32(decimals),
	}, nil
}

var _ domain.TokenRegistry = (*Registry)(nil)
