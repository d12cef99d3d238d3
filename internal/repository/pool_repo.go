package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/virelabs/launchpad/internal/domain"
)

// PoolRepository handles all database operations for pool items. Claim
// atomicity is delegated to PostgreSQL: a single conditional UPDATE keyed on
// the observed available status, so two concurrent claims can never both
// succeed on the same item.
type PoolRepository struct {
	db *sqlx.DB
}

// NewPoolRepository creates a new PoolRepository.
func NewPoolRepository(db *sqlx.DB) *PoolRepository {
	return &PoolRepository{db: db}
}

// ──────────────────────────────────────────────────────────────────────────────
// Claim / Release
// ──────────────────────────────────────────────────────────────────────────────

// Claim atomically selects one available item matching the filter, stamps it
// claimed for holderID, and returns it. The subquery takes the row lock with
// SKIP LOCKED so concurrent claimers never block on or double-select the same
// row. Returns ErrPoolExhausted when nothing matches.
func (r *PoolRepository) Claim(ctx context.Context, holderID uuid.UUID, filter domain.ClaimFilter) (*domain.PoolItem, error) {
	where := `status = 'available'`
	args := []interface{}{holderID}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		where += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if filter.Identifier != "" {
		args = append(args, filter.Identifier)
		where += fmt.Sprintf(" AND identifier = $%d", len(args))
	}

	query := fmt.Sprintf(`
		UPDATE pool_items
		SET status      = 'claimed',
		    claimed_by  = $1,
		    claimed_at  = now(),
		    usage_count = usage_count + 1,
		    updated_at  = now()
		WHERE identifier = (
			SELECT identifier FROM pool_items
			WHERE %s
			ORDER BY usage_count ASC, created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		) AND status = 'available'
		RETURNING *`, where)

	var item domain.PoolItem
	err := r.db.GetContext(ctx, &item, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPoolExhausted
		}
		return nil, fmt.Errorf("pool_repo.Claim: %w", err)
	}
	return &item, nil
}

// Release returns a claimed item to the pool. Idempotent: releasing an
// already-available item is a no-op. Releasing an item claimed by a different
// holder is rejected with ErrNotOwner.
func (r *PoolRepository) Release(ctx context.Context, identifier string, holderID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pool_items
		SET status = 'available', claimed_by = NULL, claimed_at = NULL, updated_at = now()
		WHERE identifier = $1 AND status = 'claimed' AND claimed_by = $2`,
		identifier, holderID)
	if err != nil {
		return fmt.Errorf("pool_repo.Release: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	// The conditional update missed: decide why before failing.
	item, err := r.GetByIdentifier(ctx, identifier)
	if err != nil {
		return err
	}
	if item.Status == domain.ItemClaimed {
		return domain.ErrNotOwner
	}
	// Already available (double release) or in a terminal state: no-op.
	return nil
}

// MarkDepleted transitions a claimed item to depleted once its balance is
// exhausted after use.
func (r *PoolRepository) MarkDepleted(ctx context.Context, identifier string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pool_items
		SET status = 'depleted', claimed_by = NULL, claimed_at = NULL, updated_at = now()
		WHERE identifier = $1`,
		identifier)
	if err != nil {
		return fmt.Errorf("pool_repo.MarkDepleted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPoolItemNotFound
	}
	return nil
}

// MarkErrored moves an item into the errored state with a reason. Errored
// items require a manual reset; no automatic path returns them to the pool.
func (r *PoolRepository) MarkErrored(ctx context.Context, identifier, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pool_items
		SET status = 'errored', error_reason = $2, claimed_by = NULL, claimed_at = NULL, updated_at = now()
		WHERE identifier = $1`,
		identifier, reason)
	if err != nil {
		return fmt.Errorf("pool_repo.MarkErrored: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPoolItemNotFound
	}
	return nil
}

// ResetErrored is the manual operator path for errored → available.
// Rejected with ErrItemNotErrored when the item is in any other state, so a
// typo cannot silently free a live claim.
func (r *PoolRepository) ResetErrored(ctx context.Context, identifier string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pool_items
		SET status = 'available', error_reason = NULL, updated_at = now()
		WHERE identifier = $1 AND status = 'errored'`,
		identifier)
	if err != nil {
		return fmt.Errorf("pool_repo.ResetErrored: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	if _, err := r.GetByIdentifier(ctx, identifier); err != nil {
		return err
	}
	return domain.ErrItemNotErrored
}

// ──────────────────────────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────────────────────────

// GetByIdentifier fetches one item by its address.
func (r *PoolRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.PoolItem, error) {
	var item domain.PoolItem
	err := r.db.GetContext(ctx, &item,
		`SELECT * FROM pool_items WHERE identifier = $1`, identifier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPoolItemNotFound
		}
		return nil, fmt.Errorf("pool_repo.GetByIdentifier: %w", err)
	}
	return &item, nil
}

// CountByStatus returns per-status item counts in a single scan.
func (r *PoolRepository) CountByStatus(ctx context.Context) (domain.PoolStats, error) {
	var stats domain.PoolStats
	err := r.db.GetContext(ctx, &stats, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'available') AS available,
			COUNT(*) FILTER (WHERE status = 'claimed')   AS claimed,
			COUNT(*) FILTER (WHERE status = 'depleted')  AS depleted,
			COUNT(*) FILTER (WHERE status = 'errored')   AS errored
		FROM pool_items`)
	if err != nil {
		return domain.PoolStats{}, fmt.Errorf("pool_repo.CountByStatus: %w", err)
	}
	return stats, nil
}

// ListByStatus returns items in the given state, oldest claim first.
func (r *PoolRepository) ListByStatus(ctx context.Context, status domain.PoolItemStatus, limit int) ([]*domain.PoolItem, error) {
	var items []*domain.PoolItem
	err := r.db.SelectContext(ctx, &items, `
		SELECT * FROM pool_items
		WHERE status = $1
		ORDER BY claimed_at ASC NULLS LAST, created_at ASC
		LIMIT $2`,
		status, limit)
	if err != nil {
		return nil, fmt.Errorf("pool_repo.ListByStatus: %w", err)
	}
	return items, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Reconciliation & provisioning
// ──────────────────────────────────────────────────────────────────────────────

// ReleaseStale frees items whose claim is older than the staleness threshold.
// This is the only self-healing path for holders that crashed after claiming;
// it runs from the scheduled sweep, never inside Claim or Release.
func (r *PoolRepository) ReleaseStale(ctx context.Context, olderThan time.Duration) ([]string, error) {
	var identifiers []string
	err := r.db.SelectContext(ctx, &identifiers, `
		UPDATE pool_items
		SET status = 'available', claimed_by = NULL, claimed_at = NULL, updated_at = now()
		WHERE status = 'claimed' AND claimed_at < now() - $1 * interval '1 second'
		RETURNING identifier`,
		olderThan.Seconds())
	if err != nil {
		return nil, fmt.Errorf("pool_repo.ReleaseStale: %w", err)
	}
	return identifiers, nil
}

// Create inserts a freshly provisioned item in the available state.
func (r *PoolRepository) Create(ctx context.Context, item *domain.PoolItem) error {
	query := `
		INSERT INTO pool_items
			(identifier, kind, secret, status, usage_count, balance_lamports, created_at, updated_at)
		VALUES
			(:identifier, :kind, :secret, :status, :usage_count, :balance_lamports, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("pool_repo.Create: %w", err)
	}
	return nil
}

// UpdateBalance stores a freshly observed advisory balance.
func (r *PoolRepository) UpdateBalance(ctx context.Context, identifier string, lamports int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE pool_items SET balance_lamports = $1, updated_at = now() WHERE identifier = $2`,
		lamports, identifier)
	if err != nil {
		return fmt.Errorf("pool_repo.UpdateBalance: %w", err)
	}
	return nil
}
