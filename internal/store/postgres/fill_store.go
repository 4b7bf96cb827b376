package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/relaytaker/internal/domain"
)

// FillStore implements domain.FillStore. Each fill is one row, rewritten
// on every transition.
type FillStore struct {
	pool *pgxpool.Pool
}

func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

// fillRow is a fill in column form. Addresses and hashes are stored as
// lowercase hex and amounts as decimal strings.
type fillRow struct {
	ID              string
	OrderHash       string
	Taker           string
	MakerToken      string
	TakerToken      string
	TakerAmount     string
	TakerAmountBase *string
	State           string
	Transitions     []string
	WrapTx          *string
	ApproveTx       *string
	FillTx          *string
	Receipt         []byte
	Error           string
	StartedAt       time.Time
	CompletedAt     *time.Time
}

func toRow(f domain.Fill) (fillRow, error) {
	r := fillRow{
		ID:          f.ID,
		OrderHash:   f.OrderHash.Hex(),
		Taker:       lowerHex(f.Taker),
		MakerToken:  lowerHex(f.MakerToken),
		TakerToken:  lowerHex(f.TakerToken),
		TakerAmount: f.TakerAmount.String(),
		State:       string(f.State),
		Transitions: make([]string, len(f.Transitions)),
		WrapTx:      hashPtr(f.WrapTx),
		ApproveTx:   hashPtr(f.ApproveTx),
		FillTx:      hashPtr(f.FillTx),
		Error:       f.Error,
		StartedAt:   f.StartedAt,
		CompletedAt: f.CompletedAt,
	}
	for i, s := range f.Transitions {
		r.Transitions[i] = string(s)
	}
	if f.TakerAmountBase != nil {
		v := f.TakerAmountBase.String()
		r.TakerAmountBase = &v
	}
	if f.Receipt != nil {
		data, err := json.Marshal(f.Receipt)
		if err != nil {
			return fillRow{}, fmt.Errorf("postgres: marshal receipt for fill %s: %w", f.ID, err)
		}
		r.Receipt = data
	}
	return r, nil
}

func (r fillRow) toDomain() (domain.Fill, error) {
	amount, err := decimal.NewFromString(r.TakerAmount)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("postgres: fill %s taker_amount %q: %w", r.ID, r.TakerAmount, err)
	}
	f := domain.Fill{
		ID:          r.ID,
		OrderHash:   common.HexToHash(r.OrderHash),
		Taker:       common.HexToAddress(r.Taker),
		MakerToken:  common.HexToAddress(r.MakerToken),
		TakerToken:  common.HexToAddress(r.TakerToken),
		TakerAmount: amount,
		State:       domain.FillState(r.State),
		Transitions: make([]domain.FillState, len(r.Transitions)),
		WrapTx:      parseHash(r.WrapTx),
		ApproveTx:   parseHash(r.ApproveTx),
		FillTx:      parseHash(r.FillTx),
		Error:       r.Error,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
	for i, s := range r.Transitions {
		f.Transitions[i] = domain.FillState(s)
	}
	if r.TakerAmountBase != nil {
		base, ok := new(big.Int).SetString(*r.TakerAmountBase, 10)
		if !ok {
			return domain.Fill{}, fmt.Errorf("postgres: fill %s taker_amount_base %q is not an integer", r.ID, *r.TakerAmountBase)
		}
		f.TakerAmountBase = base
	}
	if len(r.Receipt) > 0 {
		var receipt domain.Receipt
		if err := json.Unmarshal(r.Receipt, &receipt); err != nil {
			return domain.Fill{}, fmt.Errorf("postgres: unmarshal receipt for fill %s: %w", r.ID, err)
		}
		f.Receipt = &receipt
	}
	return f, nil
}

// Upsert writes the fill, replacing any earlier version of the row.
func (s *FillStore) Upsert(ctx context.Context, f domain.Fill) error {
	r, err := toRow(f)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO fills (
			id, order_hash, taker, maker_token, taker_token,
			taker_amount, taker_amount_base, state, transitions,
			wrap_tx, approve_tx, fill_tx, receipt, error,
			started_at, completed_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13, $14,
			$15, $16, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			order_hash = EXCLUDED.order_hash,
			taker_amount_base = EXCLUDED.taker_amount_base,
			state = EXCLUDED.state,
			transitions = EXCLUDED.transitions,
			wrap_tx = EXCLUDED.wrap_tx,
			approve_tx = EXCLUDED.approve_tx,
			fill_tx = EXCLUDED.fill_tx,
			receipt = EXCLUDED.receipt,
			error = EXCLUDED.error,
			completed_at = EXCLUDED.completed_at,
			updated_at = NOW()`

	_, err = s.pool.Exec(ctx, query,
		r.ID, r.OrderHash, r.Taker, r.MakerToken, r.TakerToken,
		r.TakerAmount, r.TakerAmountBase, r.State, r.Transitions,
		r.WrapTx, r.ApproveTx, r.FillTx, r.Receipt, r.Error,
		r.StartedAt, r.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert fill %s: %w", f.ID, err)
	}
	return nil
}

const fillSelectCols = `id, order_hash, taker, maker_token, taker_token,
	taker_amount, taker_amount_base, state, transitions,
	wrap_tx, approve_tx, fill_tx, receipt, error,
	started_at, completed_at`

func scanFill(scanner interface{ Scan(dest ...any) error }) (domain.Fill, error) {
	var r fillRow
	err := scanner.Scan(
		&r.ID, &r.OrderHash, &r.Taker, &r.MakerToken, &r.TakerToken,
		&r.TakerAmount, &r.TakerAmountBase, &r.State, &r.Transitions,
		&r.WrapTx, &r.ApproveTx, &r.FillTx, &r.Receipt, &r.Error,
		&r.StartedAt, &r.CompletedAt,
	)
	if err != nil {
		return domain.Fill{}, err
	}
	return r.toDomain()
}

// GetByID returns domain.ErrNotFound for an unknown id.
func (s *FillStore) GetByID(ctx context.Context, id string) (domain.Fill, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+fillSelectCols+` FROM fills WHERE id = $1`, id)
	f, err := scanFill(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Fill{}, domain.ErrNotFound
		}
		return domain.Fill{}, fmt.Errorf("postgres: get fill %s: %w", id, err)
	}
	return f, nil
}

// ListByTaker returns the taker's fills, newest first.
func (s *FillStore) ListByTaker(ctx context.Context, taker common.Address, opts domain.ListOpts) ([]domain.Fill, error) {
	return s.list(ctx, "taker = $1", []any{lowerHex(taker)}, opts)
}

// ListRecent returns all fills, newest first.
func (s *FillStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Fill, error) {
	return s.list(ctx, "1=1", nil, opts)
}

func (s *FillStore) list(ctx context.Context, where string, args []any, opts domain.ListOpts) ([]domain.Fill, error) {
	query := `SELECT ` + fillSelectCols + ` FROM fills WHERE ` + where
	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND started_at >= $%d", len(args))
	}
	query, args = pageClause(query, args, "started_at DESC", opts.Limit, opts.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills: %w", err)
	}
	defer rows.Close()

	var fills []domain.Fill
	for rows.Next() {
		f, err := scanFill(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan fill: %w", err)
		}
		fills = append(fills, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list fills rows: %w", err)
	}
	return fills, nil
}

func lowerHex(a common.Address) string {
	return strings.ToLower(a.Hex())
}

func hashPtr(h *common.Hash) *string {
	if h == nil {
		return nil
	}
	v := h.Hex()
	return &v
}

func parseHash(s *string) *common.Hash {
	if s == nil || *s == "" {
		return nil
	}
	h := common.HexToHash(*s)
	return &h
}

var _ domain.FillStore = (*FillStore)(nil)
