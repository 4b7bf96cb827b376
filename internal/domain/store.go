package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
}

// FillStore persists the fill journal.
type FillStore interface {
	Upsert(ctx context.Context, fill Fill) error
	GetByID(ctx context.Context, id string) (Fill, error)
	ListByTaker(ctx context.Context, taker common.Address, opts ListOpts) ([]Fill, error)
	ListRecent(ctx context.Context, opts ListOpts) ([]Fill, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
