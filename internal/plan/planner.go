// Package plan implements the distribution planner: a pure sizing function
// that splits a funding total across N slots with randomized, policy-bounded
// weights. The planner never consults live wallet or network state, so it can
// be replayed with a fixed random source in tests.
package plan

import (
	"math"
	"math/big"
	"math/rand"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/virelabs/launchpad/internal/domain"
)

// ──────────────────────────────────────────────────────────────────────────────
// Config
// ──────────────────────────────────────────────────────────────────────────────

// Config holds the sizing policy for a distribution plan.
type Config struct {
	// OverheadPerSlot is reserved per slot for network fees before any
	// spendable amount is allocated.
	OverheadPerSlot uint64

	// MinViableTransfer zeroes out any slot whose computed amount falls below
	// it; dust transfers waste fees without moving the curve.
	MinViableTransfer uint64

	// LargeSlotFraction is the fraction of slots flagged as outsized (0–1).
	// Any positive fraction flags at least one slot.
	LargeSlotFraction float64

	// LargeWeightMultiplier scales the weight of flagged slots.
	LargeWeightMultiplier float64
}

// ──────────────────────────────────────────────────────────────────────────────
// Plan
// ──────────────────────────────────────────────────────────────────────────────

// Plan splits totalLamports across slotCount slots.
//
// The per-slot overhead buffer is reserved first; planning fails with
// ErrInsufficientTotal when nothing spendable remains. Each slot draws a
// random weight, flagged slots get a disproportionately large one, weights
// are normalized, and each amount is the floor of its weighted share. The
// floor-rounding leftover is added to the last slot so the spend is maximized
// while sum(amounts) never exceeds totalLamports.
func Plan(totalLamports uint64, slotCount int, cfg Config, rng *rand.Rand) (domain.DistributionPlan, error) {
	if slotCount <= 0 {
		return domain.DistributionPlan{}, domain.ErrInvalidAmount
	}

	overhead := uint64(slotCount) * cfg.OverheadPerSlot
	if totalLamports <= overhead {
		return domain.DistributionPlan{}, domain.ErrInsufficientTotal
	}
	spendable := totalLamports - overhead

	// ── Weight assignment ─────────────────────────────────────────────────────
	largeSet := pickLargeSlots(slotCount, cfg.LargeSlotFraction, rng)

	weights := make([]decimal.Decimal, slotCount)
	var weightSum decimal.Decimal
	for i := 0; i < slotCount; i++ {
		// Base weight in [0.5, 1.5): keeps ordinary slots within a 3x band
		// of each other so no unflagged slot dominates.
		w := decimal.NewFromFloat(0.5 + rng.Float64())
		if largeSet[i] {
			w = w.Mul(decimal.NewFromFloat(cfg.LargeWeightMultiplier))
		}
		weights[i] = w
		weightSum = weightSum.Add(w)
	}

	// ── Floor allocation ──────────────────────────────────────────────────────
	spendableDec := decimal.NewFromBigInt(new(big.Int).SetUint64(spendable), 0)
	amounts := make([]uint64, slotCount)
	var allocated uint64
	for i := 0; i < slotCount; i++ {
		share := spendableDec.Mul(weights[i]).Div(weightSum).Floor()
		amounts[i] = uint64(share.IntPart())
		allocated += amounts[i]
	}

	// Leftover from floor rounding goes to the last slot. Div rounds half-up
	// before the Floor, so allocated is not guaranteed to stay below spendable;
	// the unsigned subtraction must only happen once that holds.
	if allocated < spendable {
		amounts[slotCount-1] += spendable - allocated
	}

	// ── Dust policy ───────────────────────────────────────────────────────────
	// Slots below the minimum viable transfer are zeroed and skipped entirely
	// downstream rather than sent as dust.
	for i, a := range amounts {
		if a > 0 && a < cfg.MinViableTransfer {
			amounts[i] = 0
		}
	}

	var largeIndices []int
	for i := 0; i < slotCount; i++ {
		if largeSet[i] {
			largeIndices = append(largeIndices, i)
		}
	}
	sort.Ints(largeIndices)

	return domain.DistributionPlan{
		TotalLamports:    totalLamports,
		SlotCount:        slotCount,
		Amounts:          amounts,
		LargeSlotIndices: largeIndices,
	}, nil
}

// pickLargeSlots flags ceil(slotCount * fraction) random slots as outsized.
func pickLargeSlots(slotCount int, fraction float64, rng *rand.Rand) map[int]bool {
	set := make(map[int]bool, slotCount)
	if fraction <= 0 {
		return set
	}
	count := int(math.Ceil(float64(slotCount) * fraction))
	if count > slotCount {
		count = slotCount
	}
	for _, idx := range rng.Perm(slotCount)[:count] {
		set[idx] = true
	}
	return set
}
