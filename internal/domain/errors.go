package domain

import (
	"errors"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sentinel errors — compare with errors.Is()
// ──────────────────────────────────────────────────────────────────────────────

// Pool errors
var (
	// ErrPoolExhausted is returned when no available item matches a claim
	// filter. Callers should back off or request provisioning.
	ErrPoolExhausted = errors.New("pool exhausted: no available item matches the filter")

	// ErrPoolItemNotFound is returned when no item matches the given identifier.
	ErrPoolItemNotFound = errors.New("pool item not found")

	// ErrNotOwner is returned when a release targets an item claimed by a
	// different holder. This indicates a programming or race bug; log and reject.
	ErrNotOwner = errors.New("pool item is claimed by a different holder")

	// ErrItemNotErrored is returned when a manual reset targets an item that
	// is not in the errored state.
	ErrItemNotErrored = errors.New("pool item is not in errored state")

	// ErrSecretMismatch is returned when a provisioned secret does not parse
	// as a private key for the item's identifier.
	ErrSecretMismatch = errors.New("secret does not match the item identifier")
)

// Quote errors
var (
	// ErrInsufficientLiquidity is returned when a buy quote would deliver more
	// real tokens than actually back the curve. Surfaced to the caller; no retry.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity: real token reserve cannot cover output")

	// ErrInvalidAmount is returned for non-positive trade inputs or quotes
	// whose output rounds to nothing.
	ErrInvalidAmount = errors.New("invalid trade amount")

	// ErrReserveConflict is returned after bounded retries of a conditional
	// reserve write all collide with concurrent updates.
	ErrReserveConflict = errors.New("reserve state changed concurrently")

	// ErrReserveNotFound is returned when no reserve row exists for the mint.
	ErrReserveNotFound = errors.New("reserve state not found")
)

// Distribution errors
var (
	// ErrInsufficientTotal is returned when the funding total cannot cover the
	// per-slot overhead reserve. Supply more funds or fewer slots.
	ErrInsufficientTotal = errors.New("total amount does not cover per-slot overhead")

	// ErrNoDestinations is returned when execute is called with fewer
	// destinations than plan slots.
	ErrNoDestinations = errors.New("destination count does not match plan slot count")
)

// Network errors
var (
	// ErrNetwork wraps transient submission failures from the ledger client.
	// Retried bounded per slot, then recorded as a failed settlement.
	ErrNetwork = errors.New("ledger network error")

	// ErrConfirmTimeout is returned when a submitted transfer is not confirmed
	// within the configured window.
	ErrConfirmTimeout = errors.New("confirmation timed out")
)

// ──────────────────────────────────────────────────────────────────────────────
// Helper predicates
// ──────────────────────────────────────────────────────────────────────────────

// notFoundErrors collects all "entity not found" sentinel errors so that
// IsNotFound stays in sync automatically.
var notFoundErrors = []error{
	ErrPoolItemNotFound,
	ErrReserveNotFound,
}

// IsNotFound returns true when err (or any error in its chain) is one of the
// domain "not found" errors. Use this when translating domain errors to
// HTTP 404 responses.
func IsNotFound(err error) bool {
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsConflict returns true for errors that represent a state conflict: a lost
// claim race, an ownership mismatch, or a reserve version collision.
func IsConflict(err error) bool {
	conflictErrors := []error{
		ErrNotOwner,
		ErrReserveConflict,
		ErrItemNotErrored,
	}
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsRetryable returns true for transient network failures that the bounded
// retry policy may re-attempt. Quote and planning errors are never retryable.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrConfirmTimeout)
}
