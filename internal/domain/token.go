package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// NativeSymbol denotes the chain's native currency. It never appears in
	// the registry; it maps to the wrapped-currency contract instead.
	NativeSymbol = "ETH"
	// WrappedSymbol is the registry symbol of the wrapped-currency contract.
	WrappedSymbol = "WETH"
)

// Token is registry metadata for an ERC20 token.
type Token struct {
	Address  common.Address
	Symbol   string
	Name     string
	Decimals int32
}

// TokenRegistry looks tokens up in the on-chain registry. Both methods
// return ErrUnknownToken when the registry has no entry.
type TokenRegistry interface {
	TokenBySymbol(ctx context.Context, symbol string) (Token, error)
	TokenByAddress(ctx context.Context, addr common.Address) (Token, error)
}
