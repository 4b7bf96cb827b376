package service

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/relaytaker/internal/domain"
	"github.com/alanyoungcy/relaytaker/internal/units"
)

// OrderNormalizer converts relay orders to the exchange's integer form. The
// maker amount is scaled by the maker token's decimals, the taker amount by
// the taker token's, and fees by the protocol fee token's.
type OrderNormalizer struct {
	resolver TokenResolver
	feeToken common.Address
}

// NewOrderNormalizer creates a normalizer. feeToken is the token fees are
// denominated in.
func NewOrderNormalizer(resolver TokenResolver, feeToken common.Address) *OrderNormalizer {
	return &OrderNormalizer{resolver: resolver, feeToken: feeToken}
}

// ToSignedOrder converts order for submission. It fails with
// domain.ErrUnknownToken when a token's decimals cannot be resolved.
func (n *OrderNormalizer) ToSignedOrder(ctx context.Context, order domain.Order) (domain.SignedOrder, error) {
	needFee := !order.MakerFee.IsZero() || !order.TakerFee.IsZero()
	makerDec, takerDec, feeDec, err := n.decimals(ctx, order.MakerTokenAddress, order.TakerTokenAddress, needFee)
	if err != nil {
		return domain.SignedOrder{}, err
	}

	signed := domain.SignedOrder{
		Maker:                   order.Maker,
		Taker:                   order.Taker,
		MakerTokenAddress:       order.MakerTokenAddress,
		TakerTokenAddress:       order.TakerTokenAddress,
		ECSignature:             order.ECSignature,
		ExchangeContractAddress: order.ExchangeContractAddress,
		FeeRecipient:            order.FeeRecipient,
	}

	if signed.MakerTokenAmount, err = units.ToBaseUnits(order.MakerTokenAmount, makerDec); err != nil {
		return domain.SignedOrder{}, fmt.Errorf("normalizer: maker amount: %w", err)
	}
	if signed.TakerTokenAmount, err = units.ToBaseUnits(order.TakerTokenAmount, takerDec); err != nil {
		return domain.SignedOrder{}, fmt.Errorf("normalizer: taker amount: %w", err)
	}
	if signed.MakerFee, err = units.ToBaseUnits(order.MakerFee, feeDec); err != nil {
		return domain.SignedOrder{}, fmt.Errorf("normalizer: maker fee: %w", err)
	}
	if signed.TakerFee, err = units.ToBaseUnits(order.TakerFee, feeDec); err != nil {
		return domain.SignedOrder{}, fmt.Errorf("normalizer: taker fee: %w", err)
	}
	if signed.Salt, err = units.Integer(order.Salt); err != nil {
		return domain.SignedOrder{}, fmt.Errorf("normalizer: salt: %w", err)
	}
	if signed.ExpirationUnixTimestampSec, err = units.Integer(order.ExpirationUnixTimestampSec); err != nil {
		return domain.SignedOrder{}, fmt.Errorf("normalizer: expiration: %w", err)
	}
	return signed, nil
}

// FromSignedOrder is the inverse of ToSignedOrder.
func (n *OrderNormalizer) FromSignedOrder(ctx context.Context, signed domain.SignedOrder) (domain.Order, error) {
	needFee := orZero(signed.MakerFee).Sign() != 0 || orZero(signed.TakerFee).Sign() != 0
	makerDec, takerDec, feeDec, err := n.decimals(ctx, signed.MakerTokenAddress, signed.TakerTokenAddress, needFee)
	if err != nil {
		return domain.Order{}, err
	}

	order := domain.Order{
		Maker:                      signed.Maker,
		Taker:                      signed.Taker,
		MakerTokenAddress:          signed.MakerTokenAddress,
		TakerTokenAddress:          signed.TakerTokenAddress,
		ECSignature:                signed.ECSignature,
		ExchangeContractAddress:    signed.ExchangeContractAddress,
		FeeRecipient:               signed.FeeRecipient,
		Salt:                       decimal.NewFromBigInt(orZero(signed.Salt), 0),
		ExpirationUnixTimestampSec: decimal.NewFromBigInt(orZero(signed.ExpirationUnixTimestampSec), 0),
	}

	if order.MakerTokenAmount, err = units.ToDecimal(signed.MakerTokenAmount, makerDec); err != nil {
		return domain.Order{}, fmt.Errorf("normalizer: maker amount: %w", err)
	}
	if order.TakerTokenAmount, err = units.ToDecimal(signed.TakerTokenAmount, takerDec); err != nil {
		return domain.Order{}, fmt.Errorf("normalizer: taker amount: %w", err)
	}
	if order.MakerFee, err = units.ToDecimal(orZero(signed.MakerFee), feeDec); err != nil {
		return domain.Order{}, fmt.Errorf("normalizer: maker fee: %w", err)
	}
	if order.TakerFee, err = units.ToDecimal(orZero(signed.TakerFee), feeDec); err != nil {
		return domain.Order{}, fmt.Errorf("normalizer: taker fee: %w", err)
	}
	return order, nil
}

// decimals looks up maker and taker token decimals, plus the fee token's
// when the order carries a fee, one registry call per distinct token.
func (n *OrderNormalizer) decimals(ctx context.Context, maker, taker common.Address, needFee bool) (makerDec, takerDec, feeDec int32, err error) {
	known := make(map[common.Address]int32, 3)
	lookup := func(addr common.Address) (int32, error) {
		if d, ok := known[addr]; ok {
			return d, nil
		}
		tok, err := n.resolver.Token(ctx, addr)
		if err != nil {
			return 0, fmt.Errorf("normalizer: %w", err)
		}
		known[addr] = tok.Decimals
		return tok.Decimals, nil
	}

	if makerDec, err = lookup(maker); err != nil {
		return 0, 0, 0, err
	}
	if takerDec, err = lookup(taker); err != nil {
		return 0, 0, 0, err
	}
	if needFee {
		if feeDec, err = lookup(n.feeToken); err != nil {
			return 0, 0, 0, err
		}
	}
	return makerDec, takerDec, feeDec, nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
