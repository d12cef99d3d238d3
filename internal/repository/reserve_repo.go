package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/virelabs/launchpad/internal/domain"
)

// ReserveRepository persists bonding-curve reserve state with a version
// column for optimistic concurrency. Reserves are stored as NUMERIC so the
// exact-integer quantities survive the round trip without precision loss.
type ReserveRepository struct {
	db *sqlx.DB
}

// NewReserveRepository creates a new ReserveRepository.
func NewReserveRepository(db *sqlx.DB) *ReserveRepository {
	return &ReserveRepository{db: db}
}

// reserveRow is the scan target; decimal bridges NUMERIC and big.Int.
type reserveRow struct {
	Mint         string          `db:"mint"`
	VirtualToken decimal.Decimal `db:"virtual_token_reserve"`
	VirtualBase  decimal.Decimal `db:"virtual_base_reserve"`
	RealToken    decimal.Decimal `db:"real_token_reserve"`
	Version      int64           `db:"version"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

func (row *reserveRow) snapshot() domain.ReserveSnapshot {
	return domain.ReserveSnapshot{
		Mint: row.Mint,
		State: domain.ReserveState{
			VirtualTokenReserve: row.VirtualToken.BigInt(),
			VirtualBaseReserve:  row.VirtualBase.BigInt(),
			RealTokenReserve:    row.RealToken.BigInt(),
		},
		Version:   row.Version,
		UpdatedAt: row.UpdatedAt,
	}
}

// Get reads the current reserve snapshot for a mint.
func (r *ReserveRepository) Get(ctx context.Context, mint string) (domain.ReserveSnapshot, error) {
	var row reserveRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM reserves WHERE mint = $1`, mint)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ReserveSnapshot{}, domain.ErrReserveNotFound
		}
		return domain.ReserveSnapshot{}, fmt.Errorf("reserve_repo.Get: %w", err)
	}
	return row.snapshot(), nil
}

// CompareAndSwap writes an updated state conditioned on the version observed
// at snapshot time. Returns ErrReserveConflict when a concurrent writer got
// there first; callers retry with a fresh snapshot under the bounded policy.
func (r *ReserveRepository) CompareAndSwap(ctx context.Context, mint string, version int64, state domain.ReserveState) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE reserves
		SET virtual_token_reserve = $1,
		    virtual_base_reserve  = $2,
		    real_token_reserve    = $3,
		    version               = version + 1,
		    updated_at            = now()
		WHERE mint = $4 AND version = $5`,
		decimal.NewFromBigInt(state.VirtualTokenReserve, 0),
		decimal.NewFromBigInt(state.VirtualBaseReserve, 0),
		decimal.NewFromBigInt(state.RealTokenReserve, 0),
		mint, version)
	if err != nil {
		return fmt.Errorf("reserve_repo.CompareAndSwap: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	// Zero rows: either the mint is unknown or the version moved.
	var exists bool
	if err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM reserves WHERE mint = $1)`, mint); err != nil {
		return fmt.Errorf("reserve_repo.CompareAndSwap exists: %w", err)
	}
	if !exists {
		return domain.ErrReserveNotFound
	}
	return domain.ErrReserveConflict
}

// Create initialises reserve state at instrument creation, version 1.
func (r *ReserveRepository) Create(ctx context.Context, mint string, state domain.ReserveState) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reserves
			(mint, virtual_token_reserve, virtual_base_reserve, real_token_reserve, version, updated_at)
		VALUES ($1, $2, $3, $4, 1, now())`,
		mint,
		decimal.NewFromBigInt(state.VirtualTokenReserve, 0),
		decimal.NewFromBigInt(state.VirtualBaseReserve, 0),
		decimal.NewFromBigInt(state.RealTokenReserve, 0))
	if err != nil {
		return fmt.Errorf("reserve_repo.Create: %w", err)
	}
	return nil
}
