package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ECSignature is the maker's signature over the order hash.
type ECSignature struct {
	V uint8
	R common.Hash
	S common.Hash
}

// Order is an open order as published by a relay. Amounts are in human
// precision (whole tokens), not base units. The zero Taker means anyone may
// fill the order.
type Order struct {
	Maker                      common.Address
	Taker                      common.Address
	MakerFee                   decimal.Decimal
	TakerFee                   decimal.Decimal
	MakerTokenAmount           decimal.Decimal
	TakerTokenAmount           decimal.Decimal
	MakerTokenAddress          common.Address
	TakerTokenAddress          common.Address
	ECSignature                ECSignature
	ExchangeContractAddress    common.Address
	ExpirationUnixTimestampSec decimal.Decimal
	FeeRecipient               common.Address
	Salt                       decimal.Decimal
	// ValueRequired is passed through for display and never interpreted.
	ValueRequired string
}

// IsOpen reports whether the order has no designated taker.
func (o Order) IsOpen() bool {
	return o.Taker == (common.Address{})
}

// SignedOrder is the on-chain representation of an Order: every quantity is
// an integer in the token's base units.
type SignedOrder struct {
	Maker                      common.Address
	Taker                      common.Address
	MakerFee                   *big.Int
	TakerFee                   *big.Int
	MakerTokenAmount           *big.Int
	TakerTokenAmount           *big.Int
	MakerTokenAddress          common.Address
	TakerTokenAddress          common.Address
	ECSignature                ECSignature
	ExchangeContractAddress    common.Address
	ExpirationUnixTimestampSec *big.Int
	FeeRecipient               common.Address
	Salt                       *big.Int
}

// TokenPair is one tradable pair reported by a relay.
type TokenPair struct {
	TokenA common.Address
	TokenB common.Address
}
