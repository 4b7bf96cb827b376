package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// FillState is a step of the fill state machine.
type FillState string

const (
	FillStateStart                FillState = "start"
	FillStateWrapping             FillState = "wrapping"
	FillStateAllowanceCheck       FillState = "allowance_check"
	FillStateSubmitting           FillState = "submitting"
	FillStateAwaitingConfirmation FillState = "awaiting_confirmation"
	FillStateConfirmed            FillState = "confirmed"
	FillStateFailed               FillState = "failed"
)

// Terminal reports whether no further transition is possible.
func (s FillState) Terminal() bool {
	return s == FillStateConfirmed || s == FillStateFailed
}

// Fill records one attempt to fill an order.
type Fill struct {
	ID              string          `json:"id"`
	OrderHash       common.Hash     `json:"order_hash"`
	Taker           common.Address  `json:"taker"`
	MakerToken      common.Address  `json:"maker_token"`
	TakerToken      common.Address  `json:"taker_token"`
	TakerAmount     decimal.Decimal `json:"taker_amount"`
	TakerAmountBase *big.Int        `json:"taker_amount_base,omitempty"`
	State           FillState       `json:"state"`
	Transitions     []FillState     `json:"transitions"`
	WrapTx          *common.Hash    `json:"wrap_tx,omitempty"`
	ApproveTx       *common.Hash    `json:"approve_tx,omitempty"`
	FillTx          *common.Hash    `json:"fill_tx,omitempty"`
	Receipt         *Receipt        `json:"receipt,omitempty"`
	Error           string          `json:"error,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// FillEvent is published on the signal bus at every transition.
type FillEvent struct {
	FillID    string      `json:"fill_id"`
	OrderHash common.Hash `json:"order_hash"`
	State     FillState   `json:"state"`
	TxHash    string      `json:"tx_hash,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
