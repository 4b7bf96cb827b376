package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Receipt is the mined outcome of a transaction.
type Receipt struct {
	TxHash      common.Hash `json:"tx_hash"`
	BlockNumber uint64      `json:"block_number"`
	BlockHash   common.Hash `json:"block_hash"`
	GasUsed     uint64      `json:"gas_used"`
	Status      uint64      `json:"status"`
}

// Succeeded reports whether the transaction executed without reverting.
func (r Receipt) Succeeded() bool {
	return r.Status == 1
}

// ChainProvider is the handle to the chain used by the fill path. All
// transactions are sent from Account().
type ChainProvider interface {
	Account() common.Address
	// EtherToken is the wrapped-currency contract of the connected network.
	EtherToken() common.Address
	// AllowanceSpender is the contract that moves tokens on the exchange's
	// behalf and therefore needs the allowance.
	AllowanceSpender() common.Address

	NetworkID(ctx context.Context) (*big.Int, error)
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)

	Deposit(ctx context.Context, amount *big.Int) (common.Hash, error)
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error)
	// FillOrder submits the fill. requireFull selects fill-or-kill.
	FillOrder(ctx context.Context, order SignedOrder, takerAmount *big.Int, requireFull bool) (common.Hash, error)

	// WaitMined blocks until the transaction has a receipt or ctx ends.
	WaitMined(ctx context.Context, tx common.Hash) (Receipt, error)
}
