// Package curve implements the bonding-curve quote engine: pure,
// deterministic buy/sell pricing over exact-integer reserves. Functions here
// perform no I/O; callers read a reserve snapshot, quote against it, and
// commit the updated state through the store's conditional write.
package curve

import (
	"math/big"

	"github.com/virelabs/launchpad/internal/domain"
)

// ──────────────────────────────────────────────────────────────────────────────
// Results
// ──────────────────────────────────────────────────────────────────────────────

// BuyResult is the outcome of pricing a buy against a reserve snapshot.
type BuyResult struct {
	TokenOut *big.Int
	Updated  domain.ReserveState
}

// SellResult is the outcome of pricing a sell against a reserve snapshot.
type SellResult struct {
	BaseOut *big.Int
	Updated domain.ReserveState
}

// ──────────────────────────────────────────────────────────────────────────────
// QuoteBuy
// ──────────────────────────────────────────────────────────────────────────────

// QuoteBuy computes the token output for spending baseIn against the
// constant-product relation over the virtual reserves:
//
//	tokenOut = vToken - (vToken * vBase) / (vBase + baseIn)
//
// with floor division. Rounding always favours the protocol: the engine never
// overpays tokenOut. Returns ErrInvalidAmount for non-positive baseIn or a
// quote that rounds to nothing, and ErrInsufficientLiquidity when tokenOut
// exceeds the real token reserve backing the curve.
func QuoteBuy(baseIn *big.Int, reserves domain.ReserveState) (BuyResult, error) {
	if baseIn == nil || baseIn.Sign() <= 0 {
		return BuyResult{}, domain.ErrInvalidAmount
	}

	vToken := reserves.VirtualTokenReserve
	vBase := reserves.VirtualBaseReserve

	// k = vToken * vBase; newVToken = floor(k / (vBase + baseIn))
	k := new(big.Int).Mul(vToken, vBase)
	newVBase := new(big.Int).Add(vBase, baseIn)
	newVToken := new(big.Int).Quo(k, newVBase)

	tokenOut := new(big.Int).Sub(vToken, newVToken)
	if tokenOut.Sign() <= 0 {
		return BuyResult{}, domain.ErrInvalidAmount
	}
	if tokenOut.Cmp(reserves.RealTokenReserve) > 0 {
		return BuyResult{}, domain.ErrInsufficientLiquidity
	}

	updated := domain.ReserveState{
		VirtualTokenReserve: new(big.Int).Sub(vToken, tokenOut),
		VirtualBaseReserve:  new(big.Int).Add(vBase, baseIn),
		RealTokenReserve:    new(big.Int).Sub(reserves.RealTokenReserve, tokenOut),
	}
	return BuyResult{TokenOut: tokenOut, Updated: updated}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// QuoteSell
// ──────────────────────────────────────────────────────────────────────────────

// QuoteSell computes the base output for selling tokenIn back to the curve:
//
//	baseOut = vBase - (vToken * vBase) / (vToken + tokenIn)
//
// with floor division, symmetric to QuoteBuy. Returns ErrInvalidAmount when
// tokenIn <= 0 or the resulting baseOut <= 0.
func QuoteSell(tokenIn *big.Int, reserves domain.ReserveState) (SellResult, error) {
	if tokenIn == nil || tokenIn.Sign() <= 0 {
		return SellResult{}, domain.ErrInvalidAmount
	}

	vToken := reserves.VirtualTokenReserve
	vBase := reserves.VirtualBaseReserve

	k := new(big.Int).Mul(vToken, vBase)
	newVToken := new(big.Int).Add(vToken, tokenIn)
	newVBase := new(big.Int).Quo(k, newVToken)

	baseOut := new(big.Int).Sub(vBase, newVBase)
	if baseOut.Sign() <= 0 {
		return SellResult{}, domain.ErrInvalidAmount
	}

	updated := domain.ReserveState{
		VirtualTokenReserve: new(big.Int).Add(vToken, tokenIn),
		VirtualBaseReserve:  new(big.Int).Sub(vBase, baseOut),
		RealTokenReserve:    new(big.Int).Add(reserves.RealTokenReserve, tokenIn),
	}
	return SellResult{BaseOut: baseOut, Updated: updated}, nil
}
