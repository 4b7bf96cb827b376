package executor

import (
	"context"
	"crypto/ecdsa"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/relaytaker/internal/crypto"
	"github.com/alanyoungcy/relaytaker/internal/domain"
	"github.com/alanyoungcy/relaytaker/internal/units"
)

var (
	wethAddr  = common.HexToAddress("0x05d090b51c40b020eab3bfcb6a2dff130df22e9c")
	zrxAddr   = common.HexToAddress("0x6ff6c0ff1d68b964901f986d4c9fa3ac68346570")
	proxyAddr = common.HexToAddress("0x087eed4bc1ee3de49befbd66c662b434b15d49d4")
	exchange  = common.HexToAddress("0x90fe2af704b34e0224bf2299c838e04d4dcf1364")
	takerAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")

	testNow = time.Unix(1_800_000_000, 0)
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func eth(s string) *big.Int {
	v, err := units.ToBaseUnits(decimal.RequireFromString(s), 18)
	if err != nil {
		panic(err)
	}
	return v
}

type fillCall struct {
	order       domain.SignedOrder
	takerAmount *big.Int
	requireFull bool
}

// fakeChain is an in-memory ChainProvider. Every sent transaction gets a
// fresh hash; reverted lists hashes whose receipts report failure.
type fakeChain struct {
	mu sync.Mutex

	native    *big.Int
	balances  map[common.Address]*big.Int
	allowance map[common.Address]*big.Int

	deposits  []*big.Int
	approvals []*big.Int
	fills     []fillCall

	revertWrap, revertApprove, revertFill bool
	sendErr                               error
	waitErr                               error

	nonce    int
	reverted map[common.Hash]bool
	log      []string
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		native:    eth("10"),
		balances:  map[common.Address]*big.Int{},
		allowance: map[common.Address]*big.Int{},
		reverted:  map[common.Hash]bool{},
	}
}

func (f *fakeChain) Account() common.Address          { return takerAddr }
func (f *fakeChain) EtherToken() common.Address       { return wethAddr }
func (f *fakeChain) AllowanceSpender() common.Address { return proxyAddr }

func (f *fakeChain) NetworkID(context.Context) (*big.Int, error) { return big.NewInt(42), nil }

func (f *fakeChain) NativeBalance(context.Context, common.Address) (*big.Int, error) {
	return new(big.Int).Set(f.native), nil
}

func (f *fakeChain) TokenBalance(_ context.Context, token, _ common.Address) (*big.Int, error) {
	if b, ok := f.balances[token]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (f *fakeChain) Allowance(_ context.Context, token, _, _ common.Address) (*big.Int, error) {
	if a, ok := f.allowance[token]; ok {
		return new(big.Int).Set(a), nil
	}
	return new(big.Int), nil
}

func (f *fakeChain) send(kind string, revert bool) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	f.nonce++
	h := common.BigToHash(big.NewInt(int64(f.nonce)))
	if revert {
		f.reverted[h] = true
	}
	f.log = append(f.log, kind)
	return h, nil
}

func (f *fakeChain) Deposit(_ context.Context, amount *big.Int) (common.Hash, error) {
	f.deposits = append(f.deposits, new(big.Int).Set(amount))
	return f.send("deposit", f.revertWrap)
}

func (f *fakeChain) Approve(_ context.Context, _, _ common.Address, amount *big.Int) (common.Hash, error) {
	f.approvals = append(f.approvals, new(big.Int).Set(amount))
	return f.send("approve", f.revertApprove)
}

func (f *fakeChain) FillOrder(_ context.Context, order domain.SignedOrder, takerAmount *big.Int, requireFull bool) (common.Hash, error) {
	f.fills = append(f.fills, fillCall{order: order, takerAmount: new(big.Int).Set(takerAmount), requireFull: requireFull})
	return f.send("fill", f.revertFill)
}

func (f *fakeChain) WaitMined(ctx context.Context, tx common.Hash) (domain.Receipt, error) {
	if f.waitErr != nil {
		return domain.Receipt{}, f.waitErr
	}
	if err := ctx.Err(); err != nil {
		return domain.Receipt{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	status := uint64(1)
	if f.reverted[tx] {
		status = 0
	}
	return domain.Receipt{TxHash: tx, BlockNumber: 100, Status: status, GasUsed: 21000}, nil
}

var _ domain.ChainProvider = (*fakeChain)(nil)

// fakeTokens knows WETH and ZRX, both with 18 decimals.
type fakeTokens struct{}

func (fakeTokens) Token(_ context.Context, addr common.Address) (domain.Token, error) {
	switch addr {
	case wethAddr:
		return domain.Token{Address: wethAddr, Symbol: "WETH", Decimals: 18}, nil
	case zrxAddr:
		return domain.Token{Address: zrxAddr, Symbol: "ZRX", Decimals: 18}, nil
	}
	return domain.Token{}, domain.ErrUnknownToken
}

// scaleNormalizer scales every amount by 18 decimals.
type scaleNormalizer struct{}

func (scaleNormalizer) ToSignedOrder(_ context.Context, o domain.Order) (domain.SignedOrder, error) {
	return toSigned(o), nil
}

func toSigned(o domain.Order) domain.SignedOrder {
	scale := func(d decimal.Decimal) *big.Int {
		v, err := units.ToBaseUnits(d, 18)
		if err != nil {
			panic(err)
		}
		return v
	}
	return domain.SignedOrder{
		Maker:                      o.Maker,
		Taker:                      o.Taker,
		MakerFee:                   scale(o.MakerFee),
		TakerFee:                   scale(o.TakerFee),
		MakerTokenAmount:           scale(o.MakerTokenAmount),
		TakerTokenAmount:           scale(o.TakerTokenAmount),
		MakerTokenAddress:          o.MakerTokenAddress,
		TakerTokenAddress:          o.TakerTokenAddress,
		Salt:                       o.Salt.BigInt(),
		ExchangeContractAddress:    o.ExchangeContractAddress,
		FeeRecipient:               o.FeeRecipient,
		ExpirationUnixTimestampSec: o.ExpirationUnixTimestampSec.BigInt(),
		ECSignature:                o.ECSignature,
	}
}

// signedOrder returns an order selling 300 ZRX for 1.5 ETH, signed by a
// fresh maker key.
func signedOrder(t *testing.T) (domain.Order, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	o := domain.Order{
		Maker:                      ethcrypto.PubkeyToAddress(key.PublicKey),
		MakerTokenAmount:           decimal.RequireFromString("300"),
		TakerTokenAmount:           decimal.RequireFromString("1.5"),
		MakerTokenAddress:          zrxAddr,
		TakerTokenAddress:          wethAddr,
		ExchangeContractAddress:    exchange,
		ExpirationUnixTimestampSec: decimal.NewFromInt(testNow.Unix() + 3600),
		Salt:                       decimal.RequireFromString("98765432109876543210"),
	}
	sign(t, &o, key)
	return o, key
}

func sign(t *testing.T, o *domain.Order, key *ecdsa.PrivateKey) {
	t.Helper()
	hash := crypto.OrderHash(toSigned(*o))
	prefixed := ethcrypto.Keccak256([]byte("\x19Ethereum Signed Message:\n32"), hash.Bytes())
	raw, err := ethcrypto.Sign(prefixed, key)
	if err != nil {
		t.Fatal(err)
	}
	o.ECSignature = domain.ECSignature{
		V: raw[64] + 27,
		R: common.BytesToHash(raw[:32]),
		S: common.BytesToHash(raw[32:64]),
	}
}

type recordingObserver struct {
	mu    sync.Mutex
	fills []domain.Fill
}

func (r *recordingObserver) OnFillTransition(_ context.Context, f domain.Fill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fills = append(r.fills, f)
}

func (r *recordingObserver) states() []domain.FillState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.FillState, len(r.fills))
	for i, f := range r.fills {
		out[i] = f.State
	}
	return out
}
