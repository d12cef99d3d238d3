// Package ws holds WebSocket message types and the Hub implementation.
// messages.go defines all message structs broadcast to connected clients.
package ws

import (
	"time"

	"github.com/google/uuid"
	"github.com/virelabs/launchpad/internal/domain"
)

// MsgType identifies the kind of WS message so clients can switch on it.
type MsgType string

const (
	MsgTypeSlotSettled    MsgType = "slot_settled"
	MsgTypeBatchCompleted MsgType = "batch_completed"
	MsgTypePoolUpdate     MsgType = "pool_update"
)

// ──────────────────────────────────────────────────────────────────────────────
// SlotSettledMessage — pushed after every attempted slot of a running batch.
// ──────────────────────────────────────────────────────────────────────────────

// SlotSettledMessage carries one slot's settlement outcome so dashboards can
// track a batch in flight.
type SlotSettledMessage struct {
	Type        MsgType                  `json:"type"`
	BatchID     uuid.UUID                `json:"batch_id"`
	SlotIndex   int                      `json:"slot_index"`
	Destination string                   `json:"destination"`
	Lamports    uint64                   `json:"lamports"`
	Outcome     domain.SettlementOutcome `json:"outcome"`
	Signature   *string                  `json:"signature,omitempty"`
	Reason      *string                  `json:"reason,omitempty"`
	Attempts    int                      `json:"attempts"`
	Timestamp   time.Time                `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// BatchCompletedMessage — pushed once when a batch finishes.
// ──────────────────────────────────────────────────────────────────────────────

// BatchCompletedMessage summarises what a finished batch actually moved.
type BatchCompletedMessage struct {
	Type                MsgType   `json:"type"`
	BatchID             uuid.UUID `json:"batch_id"`
	Attempted           int       `json:"attempted"`
	Succeeded           int       `json:"succeeded"`
	Failed              int       `json:"failed"`
	TransferredLamports uint64    `json:"transferred_lamports"`
	Timestamp           time.Time `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// PoolUpdateMessage — periodic pool occupancy snapshot.
// ──────────────────────────────────────────────────────────────────────────────

// PoolUpdateMessage carries per-status pool counts, pushed from the
// reconciliation sweep so dashboards see capacity without polling.
type PoolUpdateMessage struct {
	Type      MsgType   `json:"type"`
	Available int       `json:"available"`
	Claimed   int       `json:"claimed"`
	Depleted  int       `json:"depleted"`
	Errored   int       `json:"errored"`
	Timestamp time.Time `json:"timestamp"`
}
