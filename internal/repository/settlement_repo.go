package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/virelabs/launchpad/internal/domain"
)

// SettlementRepository persists the append-only audit log of attempted
// transfers, keyed by batch id. Rows are inserted once and never updated.
type SettlementRepository struct {
	db *sqlx.DB
}

// NewSettlementRepository creates a new SettlementRepository.
func NewSettlementRepository(db *sqlx.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

// Record appends one settlement result.
func (r *SettlementRepository) Record(ctx context.Context, res *domain.SettlementResult) error {
	query := `
		INSERT INTO settlements
			(id, batch_id, slot_index, destination, lamports, outcome, signature, reason, attempts, created_at)
		VALUES
			(:id, :batch_id, :slot_index, :destination, :lamports, :outcome, :signature, :reason, :attempts, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, res); err != nil {
		return fmt.Errorf("settlement_repo.Record: %w", err)
	}
	return nil
}

// GetByBatch returns all settlement rows for a batch in slot order.
func (r *SettlementRepository) GetByBatch(ctx context.Context, batchID uuid.UUID) ([]*domain.SettlementResult, error) {
	var results []*domain.SettlementResult
	err := r.db.SelectContext(ctx, &results, `
		SELECT * FROM settlements
		WHERE batch_id = $1
		ORDER BY slot_index ASC`,
		batchID)
	if err != nil {
		return nil, fmt.Errorf("settlement_repo.GetByBatch: %w", err)
	}
	return results, nil
}

// SummarizeBatch aggregates a batch straight from the audit log, so the
// reported totals always reflect what was actually recorded.
func (r *SettlementRepository) SummarizeBatch(ctx context.Context, batchID uuid.UUID) (domain.BatchSummary, error) {
	var row struct {
		Attempted   int    `db:"attempted"`
		Succeeded   int    `db:"succeeded"`
		Failed      int    `db:"failed"`
		Transferred uint64 `db:"transferred"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT
			COUNT(*)                                                        AS attempted,
			COUNT(*) FILTER (WHERE outcome = 'success')                     AS succeeded,
			COUNT(*) FILTER (WHERE outcome = 'failed')                      AS failed,
			COALESCE(SUM(lamports) FILTER (WHERE outcome = 'success'), 0)   AS transferred
		FROM settlements
		WHERE batch_id = $1`,
		batchID)
	if err != nil {
		return domain.BatchSummary{}, fmt.Errorf("settlement_repo.SummarizeBatch: %w", err)
	}
	return domain.BatchSummary{
		BatchID:             batchID,
		Attempted:           row.Attempted,
		Succeeded:           row.Succeeded,
		Failed:              row.Failed,
		TransferredLamports: row.Transferred,
	}, nil
}
