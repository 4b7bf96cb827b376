// Package ethereum implements the chain-facing ports (token registry and
// fill-path provider) over a JSON-RPC node using go-ethereum.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/relaytaker/internal/domain"
)

const defaultGasBufferPercent = 20

// Backend is the subset of *ethclient.Client the provider uses.
type Backend interface {
	bind.ContractCaller
	bind.ContractTransactor
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	NetworkID(ctx context.Context) (*big.Int, error)
}

// ProviderConfig holds the network-specific addresses and gas policy.
type ProviderConfig struct {
	ChainID          *big.Int
	EtherToken       common.Address
	TokenProxy       common.Address
	GasPrice         *big.Int // nil asks the node
	GasBufferPercent int
}

// Provider implements domain.ChainProvider. Transactions are legacy
// transactions signed locally with the configured key through bind.
type Provider struct {
	backend Backend
	auth    *bind.TransactOpts
	cfg     ProviderConfig
	logger  *slog.Logger
}

// NewProvider creates a Provider sending from the account of key.
func NewProvider(backend Backend, key *ecdsa.PrivateKey, cfg ProviderConfig, logger *slog.Logger) (*Provider, error) {
	if key == nil {
		return nil, errors.New("ethereum: private key is required")
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, errors.New("ethereum: chain id is required")
	}
	if cfg.GasBufferPercent <= 0 {
		cfg.GasBufferPercent = defaultGasBufferPercent
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, cfg.ChainID)
	if err != nil {
		return nil, fmt.Errorf("ethereum: transactor: %w", err)
	}
	return &Provider{
		backend: backend,
		auth:    auth,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "ethereum")),
	}, nil
}

func (p *Provider) Account() common.Address          { return p.auth.From }
func (p *Provider) EtherToken() common.Address       { return p.cfg.EtherToken }
func (p *Provider) AllowanceSpender() common.Address { return p.cfg.TokenProxy }

// NetworkID returns the node's network id.
func (p *Provider) NetworkID(ctx context.Context) (*big.Int, error) {
	id, err := p.backend.NetworkID(ctx)
	if err != nil {
		return nil, fmt.Errorf("ethereum: network id: %w: %v", domain.ErrTransport, err)
	}
	return id, nil
}

// NativeBalance returns owner's balance in wei.
func (p *Provider) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	bal, err := p.backend.BalanceAt(ctx, owner, nil)
	if err != nil {
		return nil, fmt.Errorf("ethereum: balance of %s: %w: %v", owner.Hex(), domain.ErrTransport, err)
	}
	return bal, nil
}

// TokenBalance returns owner's ERC20 balance in base units.
func (p *Provider) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := call(ctx, p.backend, token, erc20ABI, "balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("ethereum: token %s balance: %w", token.Hex(), err)
	}
	return firstUint(out, "balanceOf")
}

// Allowance returns how much spender may move of owner's token.
func (p *Provider) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out, err := call(ctx, p.backend, token, erc20ABI, "allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("ethereum: token %s allowance: %w", token.Hex(), err)
	}
	return firstUint(out, "allowance")
}

// Deposit wraps amount wei into the wrapped-currency token.
func (p *Provider) Deposit(ctx context.Context, amount *big.Int) (common.Hash, error) {
	return p.transact(ctx, p.cfg.EtherToken, etherTokenABI, amount, "deposit")
}

// Approve sets spender's allowance on token.
func (p *Provider) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	return p.transact(ctx, token, erc20ABI, nil, "approve", spender, amount)
}

// FillOrder submits order to its exchange contract. With requireFull the
// fill-or-kill entry point is used so a partial fill reverts.
func (p *Provider) FillOrder(ctx context.Context, order domain.SignedOrder, takerAmount *big.Int, requireFull bool) (common.Hash, error) {
	method, args := fillArgs(order, takerAmount, requireFull)
	return p.transact(ctx, order.ExchangeContractAddress, exchangeABI, nil, method, args...)
}

// WaitMined polls for the receipt until it exists or ctx ends.
func (p *Provider) WaitMined(ctx context.Context, tx common.Hash) (domain.Receipt, error) {
	receipt, err := bind.WaitMinedHash(ctx, p.backend, tx)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("ethereum: wait for %s: %w", tx.Hex(), err)
	}
	if receipt == nil {
		return domain.Receipt{}, fmt.Errorf("ethereum: wait for %s: %w: empty receipt", tx.Hex(), domain.ErrTransport)
	}
	return toDomainReceipt(receipt), nil
}

// transact sends one legacy transaction calling method on the contract at
// to. Nonce and gas price are read first so that node outages surface as
// transport errors; estimation and submission failures are on-chain
// failures since the node rejected the call, usually because it would
// revert.
func (p *Provider) transact(ctx context.Context, to common.Address, contract abi.ABI, value *big.Int, method string, args ...any) (common.Hash, error) {
	if value == nil {
		value = new(big.Int)
	}
	data, err := contract.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("ethereum: pack %s: %w", method, err)
	}

	nonce, err := p.backend.PendingNonceAt(ctx, p.auth.From)
	if err != nil {
		return common.Hash{}, fmt.Errorf("ethereum: nonce: %w: %v", domain.ErrTransport, err)
	}

	gasPrice := p.cfg.GasPrice
	if gasPrice == nil {
		if gasPrice, err = p.backend.SuggestGasPrice(ctx); err != nil {
			return common.Hash{}, fmt.Errorf("ethereum: gas price: %w: %v", domain.ErrTransport, err)
		}
	}

	gas, err := p.backend.EstimateGas(ctx, geth.CallMsg{
		From:     p.auth.From,
		To:       &to,
		GasPrice: gasPrice,
		Value:    value,
		Data:     data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("ethereum: estimate %s: %w: %v", method, domain.ErrOnChainFailure, err)
	}
	gas += gas * uint64(p.cfg.GasBufferPercent) / 100

	opts := &bind.TransactOpts{
		From:     p.auth.From,
		Signer:   p.auth.Signer,
		Nonce:    new(big.Int).SetUint64(nonce),
		Value:    value,
		GasPrice: gasPrice,
		GasLimit: gas,
		Context:  ctx,
	}
	tx, err := bind.NewBoundContract(to, contract, p.backend, p.backend, nil).Transact(opts, method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("ethereum: send %s: %w: %v", method, domain.ErrOnChainFailure, err)
	}

	p.logger.InfoContext(ctx, "transaction sent",
		slog.String("tx", tx.Hash().Hex()),
		slog.String("method", method),
		slog.String("to", to.Hex()),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas", gas),
	)
	return tx.Hash(), nil
}

// fillArgs builds the exchange call. The exchange takes the order as
// address[5] {maker, taker, makerToken, takerToken, feeRecipient} and
// uint256[6] {makerAmount, takerAmount, makerFee, takerFee, expiration, salt}.
func fillArgs(o domain.SignedOrder, takerAmount *big.Int, requireFull bool) (string, []any) {
	addrs := [5]common.Address{o.Maker, o.Taker, o.MakerTokenAddress, o.TakerTokenAddress, o.FeeRecipient}
	vals := [6]*big.Int{
		orZero(o.MakerTokenAmount),
		orZero(o.TakerTokenAmount),
		orZero(o.MakerFee),
		orZero(o.TakerFee),
		orZero(o.ExpirationUnixTimestampSec),
		orZero(o.Salt),
	}
	r := [32]byte(o.ECSignature.R)
	s := [32]byte(o.ECSignature.S)

	if requireFull {
		return "fillOrKillOrder", []any{addrs, vals, takerAmount, o.ECSignature.V, r, s}
	}
	return "fillOrder", []any{addrs, vals, takerAmount, true, o.ECSignature.V, r, s}
}

func call(ctx context.Context, backend Backend, to common.Address, contract abi.ABI, method string, args ...any) ([]any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := backend.CallContract(ctx, geth.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: call %s: %v", domain.ErrTransport, method, err)
	}
	out, err := contract.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack %s: %v", domain.ErrTransport, method, err)
	}
	return out, nil
}

func firstUint(out []any, method string) (*big.Int, error) {
	if len(out) == 0 {
		return nil, fmt.Errorf("ethereum: %s returned nothing", method)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("ethereum: %s returned %T", method, out[0])
	}
	return v, nil
}

func toDomainReceipt(r *types.Receipt) domain.Receipt {
	out := domain.Receipt{
		TxHash:    r.TxHash,
		BlockHash: r.BlockHash,
		GasUsed:   r.GasUsed,
		Status:    r.Status,
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	return out
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

var _ domain.ChainProvider = (*Provider)(nil)
