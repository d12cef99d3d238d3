package domain

import (
	"math/big"
	"time"
)

// ──────────────────────────────────────────────────────────────────────────────
// ReserveState
// ──────────────────────────────────────────────────────────────────────────────

// ReserveState is the bonding-curve state for one tradable instrument.
// All three quantities are exact non-negative integers in the smallest unit;
// floating point never enters curve math.
type ReserveState struct {
	VirtualTokenReserve *big.Int
	VirtualBaseReserve  *big.Int
	RealTokenReserve    *big.Int
}

// NewReserveState builds a ReserveState from int64 quantities.
// Convenience for construction sites and tests.
func NewReserveState(virtualToken, virtualBase, realToken int64) ReserveState {
	return ReserveState{
		VirtualTokenReserve: big.NewInt(virtualToken),
		VirtualBaseReserve:  big.NewInt(virtualBase),
		RealTokenReserve:    big.NewInt(realToken),
	}
}

// Clone returns a deep copy so pure quote functions never alias caller state.
func (r ReserveState) Clone() ReserveState {
	return ReserveState{
		VirtualTokenReserve: new(big.Int).Set(r.VirtualTokenReserve),
		VirtualBaseReserve:  new(big.Int).Set(r.VirtualBaseReserve),
		RealTokenReserve:    new(big.Int).Set(r.RealTokenReserve),
	}
}

// NonNegative reports whether every reserve quantity is >= 0. This is the
// enforced post-quote invariant; strict constant-product is only a sanity
// notion because real/virtual composition breaks it.
func (r ReserveState) NonNegative() bool {
	zero := new(big.Int)
	return r.VirtualTokenReserve != nil && r.VirtualTokenReserve.Cmp(zero) >= 0 &&
		r.VirtualBaseReserve != nil && r.VirtualBaseReserve.Cmp(zero) >= 0 &&
		r.RealTokenReserve != nil && r.RealTokenReserve.Cmp(zero) >= 0
}

// ──────────────────────────────────────────────────────────────────────────────
// ReserveSnapshot — versioned read for optimistic concurrency
// ──────────────────────────────────────────────────────────────────────────────

// ReserveSnapshot pairs a reserve state with the store version it was read at.
// A conditional write succeeds only while the stored version is unchanged.
type ReserveSnapshot struct {
	Mint      string       `json:"mint"`
	State     ReserveState `json:"state"`
	Version   int64        `json:"version"`
	UpdatedAt time.Time    `json:"updated_at"`
}
