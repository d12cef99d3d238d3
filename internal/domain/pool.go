// Package domain defines the core business entities and types for the
// token-launch pipeline: the wallet/address pool, bonding-curve reserves,
// distribution plans, and settlement records.
package domain

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Types & constants
// ──────────────────────────────────────────────────────────────────────────────

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// PoolItemKind distinguishes the two resource types the pool hands out.
type PoolItemKind string

const (
	KindAddress PoolItemKind = "address" // pre-generated mint identity
	KindWallet  PoolItemKind = "wallet"  // funding wallet used as a buy destination
)

// PoolItemStatus represents the lifecycle state of a pool item.
type PoolItemStatus string

const (
	ItemAvailable PoolItemStatus = "available" // free to be claimed
	ItemClaimed   PoolItemStatus = "claimed"   // held by exactly one holder
	ItemDepleted  PoolItemStatus = "depleted"  // balance exhausted after use
	ItemErrored   PoolItemStatus = "errored"   // unrecoverable fault; manual reset only
)

// IsValid returns true if the status is one of the four recognised states.
func (s PoolItemStatus) IsValid() bool {
	switch s {
	case ItemAvailable, ItemClaimed, ItemDepleted, ItemErrored:
		return true
	}
	return false
}

// ──────────────────────────────────────────────────────────────────────────────
// PoolItem
// ──────────────────────────────────────────────────────────────────────────────

// PoolItem represents one allocatable resource: an on-chain address or a
// funding wallet. Exactly one status holds at a time; ClaimedBy/ClaimedAt are
// set if and only if the item is claimed. UsageCount only increases.
type PoolItem struct {
	Identifier      string         `json:"identifier"       db:"identifier"` // base58 public key, immutable
	Kind            PoolItemKind   `json:"kind"             db:"kind"`
	Secret          string         `json:"-"                db:"secret"` // base58 private key; never serialised
	Status          PoolItemStatus `json:"status"           db:"status"`
	ClaimedBy       *uuid.UUID     `json:"claimed_by"       db:"claimed_by"`
	ClaimedAt       *time.Time     `json:"claimed_at"       db:"claimed_at"`
	UsageCount      int64          `json:"usage_count"      db:"usage_count"`
	BalanceLamports int64          `json:"balance_lamports" db:"balance_lamports"` // advisory only
	ErrorReason     *string        `json:"error_reason"     db:"error_reason"`
	CreatedAt       time.Time      `json:"created_at"       db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"       db:"updated_at"`
}

// PublicKey parses the item's identifier as a Solana public key.
func (p *PoolItem) PublicKey() (solana.PublicKey, error) {
	return solana.PublicKeyFromBase58(p.Identifier)
}

// PrivateKey parses the item's secret as a Solana private key. Only valid
// while the caller holds the claim.
func (p *PoolItem) PrivateKey() (solana.PrivateKey, error) {
	return solana.PrivateKeyFromBase58(p.Secret)
}

// BalanceSOL returns the advisory balance converted to SOL.
func (p *PoolItem) BalanceSOL() decimal.Decimal {
	return decimal.NewFromInt(p.BalanceLamports).
		Div(decimal.NewFromInt(LamportsPerSOL))
}

// IsAvailable returns true while the item can be claimed.
func (p *PoolItem) IsAvailable() bool {
	return p.Status == ItemAvailable
}

// IsClaimed returns true while some holder owns the item.
func (p *PoolItem) IsClaimed() bool {
	return p.Status == ItemClaimed
}

// ──────────────────────────────────────────────────────────────────────────────
// ClaimFilter & PoolStats
// ──────────────────────────────────────────────────────────────────────────────

// ClaimFilter narrows which available items a claim may select.
// Zero value means "any available item".
type ClaimFilter struct {
	Kind       PoolItemKind // "" = any kind
	Identifier string       // "" = any identifier; set for claim-by-identifier
}

// PoolStats holds per-status item counts for operational visibility.
type PoolStats struct {
	Available int `json:"available" db:"available"`
	Claimed   int `json:"claimed"   db:"claimed"`
	Depleted  int `json:"depleted"  db:"depleted"`
	Errored   int `json:"errored"   db:"errored"`
}

// Total returns the number of items across all states.
func (s PoolStats) Total() int {
	return s.Available + s.Claimed + s.Depleted + s.Errored
}
