package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/relaytaker/internal/domain"
)

var (
	wethAddr = common.HexToAddress("0x05d090b51c40b020eab3bfcb6a2dff130df22e9c")
	zrxAddr  = common.HexToAddress("0x6ff6c0ff1d68b964901f986d4c9fa3ac68346570")
	usdcAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	mkrAddr  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	junkAddr = common.HexToAddress("0x9999999999999999999999999999999999999999")
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRegistry struct {
	tokens   []domain.Token
	err      error
	bySymbol int
	byAddr   int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{tokens: []domain.Token{
		{Address: wethAddr, Symbol: "WETH", Name: "Wrapped Ether", Decimals: 18},
		{Address: zrxAddr, Symbol: "ZRX", Name: "0x Protocol Token", Decimals: 18},
		{Address: usdcAddr, Symbol: "USDC", Name: "USD Coin", Decimals: 6},
		{Address: mkrAddr, Symbol: "MKR", Name: "Maker", Decimals: 18},
	}}
}

func (f *fakeRegistry) TokenBySymbol(_ context.Context, symbol string) (domain.Token, error) {
	f.bySymbol++
	if f.err != nil {
		return domain.Token{}, f.err
	}
	for _, t := range f.tokens {
		if t.Symbol == symbol {
			return t, nil
		}
	}
	return domain.Token{}, domain.ErrUnknownToken
}

func (f *fakeRegistry) TokenByAddress(_ context.Context, addr common.Address) (domain.Token, error) {
	f.byAddr++
	if f.err != nil {
		return domain.Token{}, f.err
	}
	for _, t := range f.tokens {
		if t.Address == addr {
			return t, nil
		}
	}
	return domain.Token{}, domain.ErrUnknownToken
}

type relayCall struct {
	maker, taker, tokenA common.Address
}

type fakeRelay struct {
	orders []domain.Order
	pairs  []domain.TokenPair
	err    error
	calls  []relayCall
}

func (f *fakeRelay) Orders(_ context.Context, maker, taker common.Address) ([]domain.Order, error) {
	f.calls = append(f.calls, relayCall{maker: maker, taker: taker})
	return f.orders, f.err
}

func (f *fakeRelay) TokenPairs(_ context.Context, tokenA common.Address) ([]domain.TokenPair, error) {
	f.calls = append(f.calls, relayCall{tokenA: tokenA})
	return f.pairs, f.err
}

type fakeNetwork struct {
	id  int64
	err error
}

func (f fakeNetwork) NetworkID(context.Context) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return big.NewInt(f.id), nil
}

type memTokenCache struct {
	tokens map[common.Address]domain.Token
	err    error
}

func newMemTokenCache() *memTokenCache {
	return &memTokenCache{tokens: map[common.Address]domain.Token{}}
}

func (m *memTokenCache) SetToken(_ context.Context, t domain.Token) error {
	m.tokens[t.Address] = t
	return nil
}

func (m *memTokenCache) GetBySymbol(_ context.Context, symbol string) (domain.Token, error) {
	if m.err != nil {
		return domain.Token{}, m.err
	}
	for _, t := range m.tokens {
		if t.Symbol == symbol {
			return t, nil
		}
	}
	return domain.Token{}, domain.ErrNotFound
}

func (m *memTokenCache) GetByAddress(_ context.Context, addr common.Address) (domain.Token, error) {
	if m.err != nil {
		return domain.Token{}, m.err
	}
	t, ok := m.tokens[addr]
	if !ok {
		return domain.Token{}, domain.ErrNotFound
	}
	return t, nil
}

var errBoom = errors.New("boom")
