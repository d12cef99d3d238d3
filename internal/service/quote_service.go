package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/virelabs/launchpad/internal/curve"
	"github.com/virelabs/launchpad/internal/domain"
	"github.com/virelabs/launchpad/internal/retry"
)

// ──────────────────────────────────────────────────────────────────────────────
// ReserveStore interface — minimally required from the repository
// ──────────────────────────────────────────────────────────────────────────────

// ReserveStore is the versioned reserve storage the quote service commits
// through. repository.ReserveRepository is the production implementation.
type ReserveStore interface {
	Get(ctx context.Context, mint string) (domain.ReserveSnapshot, error)
	CompareAndSwap(ctx context.Context, mint string, version int64, state domain.ReserveState) error
	Create(ctx context.Context, mint string, state domain.ReserveState) error
}

// ──────────────────────────────────────────────────────────────────────────────
// QuoteService
// ──────────────────────────────────────────────────────────────────────────────

// QuoteService prices trades against the bonding curve. Quoting itself is
// pure; this service owns the snapshot-read / conditional-write cycle around
// it. A commit that keeps colliding with concurrent writers is retried under
// the shared bounded policy and then surfaced as ErrReserveConflict.
type QuoteService struct {
	store  ReserveStore
	policy retry.Policy
	logger *slog.Logger
}

// NewQuoteService creates a QuoteService.
func NewQuoteService(store ReserveStore, policy retry.Policy, logger *slog.Logger) *QuoteService {
	return &QuoteService{store: store, policy: policy, logger: logger}
}

// CreateInstrument initialises reserve state for a freshly launched mint.
func (s *QuoteService) CreateInstrument(ctx context.Context, mint string, initial domain.ReserveState) error {
	if !initial.NonNegative() {
		return fmt.Errorf("quote_service.CreateInstrument: %w: reserves must be non-negative", domain.ErrInvalidAmount)
	}
	if err := s.store.Create(ctx, mint, initial); err != nil {
		return err
	}
	s.logger.Info("instrument reserves initialised", "mint", mint)
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Read-only quotes
// ──────────────────────────────────────────────────────────────────────────────

// QuoteBuy prices a prospective buy against the current snapshot without
// committing anything.
func (s *QuoteService) QuoteBuy(ctx context.Context, mint string, baseIn *big.Int) (curve.BuyResult, error) {
	snap, err := s.store.Get(ctx, mint)
	if err != nil {
		return curve.BuyResult{}, err
	}
	return curve.QuoteBuy(baseIn, snap.State)
}

// QuoteSell prices a prospective sell against the current snapshot without
// committing anything.
func (s *QuoteService) QuoteSell(ctx context.Context, mint string, tokenIn *big.Int) (curve.SellResult, error) {
	snap, err := s.store.Get(ctx, mint)
	if err != nil {
		return curve.SellResult{}, err
	}
	return curve.QuoteSell(tokenIn, snap.State)
}

// ──────────────────────────────────────────────────────────────────────────────
// Committing quotes — optimistic concurrency
// ──────────────────────────────────────────────────────────────────────────────

// CommitBuy quotes a buy and writes the updated reserves conditioned on the
// snapshot version. Each conflicted attempt re-reads a fresh snapshot and
// re-quotes, since the outcome depends on the reserves it raced against.
func (s *QuoteService) CommitBuy(ctx context.Context, mint string, baseIn *big.Int) (curve.BuyResult, error) {
	var result curve.BuyResult

	attempts, err := s.policy.Do(ctx, func() error {
		snap, err := s.store.Get(ctx, mint)
		if err != nil {
			return err
		}
		quoted, err := curve.QuoteBuy(baseIn, snap.State)
		if err != nil {
			return err
		}
		if err := s.store.CompareAndSwap(ctx, mint, snap.Version, quoted.Updated); err != nil {
			return err
		}
		result = quoted
		return nil
	}, func(err error) bool { return errors.Is(err, domain.ErrReserveConflict) })

	if err != nil {
		if errors.Is(err, domain.ErrReserveConflict) {
			s.logger.Warn("buy commit lost all reserve races", "mint", mint, "attempts", attempts)
		}
		return curve.BuyResult{}, err
	}
	s.logger.Info("buy committed",
		"mint", mint, "base_in", baseIn.String(), "token_out", result.TokenOut.String(),
		"attempts", attempts)
	return result, nil
}

// CommitSell is the sell-side mirror of CommitBuy.
func (s *QuoteService) CommitSell(ctx context.Context, mint string, tokenIn *big.Int) (curve.SellResult, error) {
	var result curve.SellResult

	attempts, err := s.policy.Do(ctx, func() error {
		snap, err := s.store.Get(ctx, mint)
		if err != nil {
			return err
		}
		quoted, err := curve.QuoteSell(tokenIn, snap.State)
		if err != nil {
			return err
		}
		if err := s.store.CompareAndSwap(ctx, mint, snap.Version, quoted.Updated); err != nil {
			return err
		}
		result = quoted
		return nil
	}, func(err error) bool { return errors.Is(err, domain.ErrReserveConflict) })

	if err != nil {
		if errors.Is(err, domain.ErrReserveConflict) {
			s.logger.Warn("sell commit lost all reserve races", "mint", mint, "attempts", attempts)
		}
		return curve.SellResult{}, err
	}
	s.logger.Info("sell committed",
		"mint", mint, "token_in", tokenIn.String(), "base_out", result.BaseOut.String(),
		"attempts", attempts)
	return result, nil
}
