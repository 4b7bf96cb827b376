package domain

import "errors"

var (
	// ErrTransport covers network failures and non-2xx responses from the
	// relay or the chain provider.
	ErrTransport = errors.New("transport failure")
	// ErrRelayResponse means the relay answered with a body that does not
	// decode into the expected records.
	ErrRelayResponse = errors.New("malformed relay response")
	ErrUnknownToken  = errors.New("unknown token")
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrOnChainFailure covers reverted transactions, insufficient balances
	// and rejected submissions.
	ErrOnChainFailure = errors.New("on-chain failure")
)

var (
	ErrInvalidOrder  = errors.New("invalid order parameters")
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrRateLimited   = errors.New("rate limited")
	ErrLockHeld      = errors.New("lock already held")
	ErrDuplicateFill = errors.New("duplicate fill")
)
