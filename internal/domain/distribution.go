package domain

import (
	"time"

	"github.com/google/uuid"
)

// ──────────────────────────────────────────────────────────────────────────────
// DistributionPlan
// ──────────────────────────────────────────────────────────────────────────────

// DistributionPlan is the ephemeral result of splitting a funding total
// across N slots. It is never persisted; only settlement outcomes are.
//
// Invariants: len(Amounts) == SlotCount, sum(Amounts) <= TotalLamports
// (the remainder covers network fees/overhead), and every non-zero amount
// is >= the configured minimum viable transfer.
type DistributionPlan struct {
	TotalLamports    uint64   `json:"total_lamports"`
	SlotCount        int      `json:"slot_count"`
	Amounts          []uint64 `json:"amounts"`
	LargeSlotIndices []int    `json:"large_slot_indices"`
}

// SpendTotal returns the sum of all planned amounts.
func (p *DistributionPlan) SpendTotal() uint64 {
	var sum uint64
	for _, a := range p.Amounts {
		sum += a
	}
	return sum
}

// NonZeroSlots returns how many slots will actually be executed.
func (p *DistributionPlan) NonZeroSlots() int {
	n := 0
	for _, a := range p.Amounts {
		if a > 0 {
			n++
		}
	}
	return n
}

// IsLargeSlot reports whether slot i was flagged as outsized by the planner.
func (p *DistributionPlan) IsLargeSlot(i int) bool {
	for _, idx := range p.LargeSlotIndices {
		if idx == i {
			return true
		}
	}
	return false
}

// ──────────────────────────────────────────────────────────────────────────────
// SettlementResult
// ──────────────────────────────────────────────────────────────────────────────

// SettlementOutcome is the terminal state of one attempted transfer.
type SettlementOutcome string

const (
	OutcomeSuccess SettlementOutcome = "success"
	OutcomeFailed  SettlementOutcome = "failed"
)

// SettlementResult records one attempted transfer within a batch. Rows are
// append-only: once written they are never updated, mirroring the fact that
// a broadcast transfer cannot be rolled back.
type SettlementResult struct {
	ID          uuid.UUID         `json:"id"           db:"id"`
	BatchID     uuid.UUID         `json:"batch_id"     db:"batch_id"`
	SlotIndex   int               `json:"slot_index"   db:"slot_index"`
	Destination string            `json:"destination"  db:"destination"`
	Lamports    uint64            `json:"lamports"     db:"lamports"`
	Outcome     SettlementOutcome `json:"outcome"      db:"outcome"`
	Signature   *string           `json:"signature"    db:"signature"` // set iff Outcome == success
	Reason      *string           `json:"reason"       db:"reason"`    // set iff Outcome == failed
	Attempts    int               `json:"attempts"     db:"attempts"`
	CreatedAt   time.Time         `json:"created_at"   db:"created_at"`
}

// BatchSummary aggregates a batch after execution. Callers reconcile funding
// state against TransferredLamports, not the plan's nominal totals.
type BatchSummary struct {
	BatchID             uuid.UUID `json:"batch_id"`
	Attempted           int       `json:"attempted"`
	Succeeded           int       `json:"succeeded"`
	Failed              int       `json:"failed"`
	TransferredLamports uint64    `json:"transferred_lamports"`
}
