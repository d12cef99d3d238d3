package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/virelabs/launchpad/internal/domain"
)

// ──────────────────────────────────────────────────────────────────────────────
// PoolStore interface — minimally required from the repository
// ──────────────────────────────────────────────────────────────────────────────

// PoolStore defines the durable-store operations the pool service needs.
// Declared here so tests can drive the service against an in-memory store;
// repository.PoolRepository is the production implementation.
type PoolStore interface {
	Claim(ctx context.Context, holderID uuid.UUID, filter domain.ClaimFilter) (*domain.PoolItem, error)
	Release(ctx context.Context, identifier string, holderID uuid.UUID) error
	MarkDepleted(ctx context.Context, identifier string) error
	MarkErrored(ctx context.Context, identifier, reason string) error
	ResetErrored(ctx context.Context, identifier string) error
	GetByIdentifier(ctx context.Context, identifier string) (*domain.PoolItem, error)
	CountByStatus(ctx context.Context) (domain.PoolStats, error)
	ReleaseStale(ctx context.Context, olderThan time.Duration) ([]string, error)
	Create(ctx context.Context, item *domain.PoolItem) error
}

// ──────────────────────────────────────────────────────────────────────────────
// PoolService
// ──────────────────────────────────────────────────────────────────────────────

// PoolService exposes the resource-pool API: exclusive claims over addresses
// and funding wallets, releases, state marking, and operational stats. All
// exclusivity guarantees live in the store's conditional update; the service
// adds logging and validation only.
type PoolService struct {
	store  PoolStore
	logger *slog.Logger
}

// NewPoolService creates a PoolService.
func NewPoolService(store PoolStore, logger *slog.Logger) *PoolService {
	return &PoolService{store: store, logger: logger}
}

// Claim hands out one available item matching the filter to holderID.
// Fails with ErrPoolExhausted when nothing matches.
func (s *PoolService) Claim(ctx context.Context, holderID uuid.UUID, filter domain.ClaimFilter) (*domain.PoolItem, error) {
	if holderID == uuid.Nil {
		return nil, fmt.Errorf("pool_service.Claim: %w: holder id is required", domain.ErrInvalidAmount)
	}

	item, err := s.store.Claim(ctx, holderID, filter)
	if err != nil {
		return nil, err
	}
	s.logger.Info("pool item claimed",
		"identifier", item.Identifier, "kind", item.Kind,
		"holder", holderID, "usage_count", item.UsageCount)
	return item, nil
}

// Release returns an item to the pool. Idempotent for already-available
// items; ErrNotOwner when a different holder owns the claim.
func (s *PoolService) Release(ctx context.Context, identifier string, holderID uuid.UUID) error {
	if err := s.store.Release(ctx, identifier, holderID); err != nil {
		if err == domain.ErrNotOwner {
			s.logger.Warn("release rejected: holder mismatch",
				"identifier", identifier, "holder", holderID)
		}
		return err
	}
	s.logger.Info("pool item released", "identifier", identifier, "holder", holderID)
	return nil
}

// MarkDepleted records that an item's balance is exhausted after use.
func (s *PoolService) MarkDepleted(ctx context.Context, identifier string) error {
	if err := s.store.MarkDepleted(ctx, identifier); err != nil {
		return err
	}
	s.logger.Info("pool item depleted", "identifier", identifier)
	return nil
}

// MarkErrored parks an item for manual inspection. Errored items never
// return to the pool automatically.
func (s *PoolService) MarkErrored(ctx context.Context, identifier, reason string) error {
	if err := s.store.MarkErrored(ctx, identifier, reason); err != nil {
		return err
	}
	s.logger.Warn("pool item errored", "identifier", identifier, "reason", reason)
	return nil
}

// ResetErrored is the operator path for errored → available.
func (s *PoolService) ResetErrored(ctx context.Context, identifier string) error {
	if err := s.store.ResetErrored(ctx, identifier); err != nil {
		return err
	}
	s.logger.Info("pool item reset to available", "identifier", identifier)
	return nil
}

// CreateItem provisions a new item in the available state. The secret must
// parse as a private key whose public key equals the identifier, so a
// mis-pasted keypair can never enter circulation. Timestamps are stamped here
// rather than left to the store.
func (s *PoolService) CreateItem(ctx context.Context, item *domain.PoolItem) error {
	if item.Kind != domain.KindAddress && item.Kind != domain.KindWallet {
		return fmt.Errorf("pool_service.CreateItem: %w: unknown kind %q", domain.ErrInvalidAmount, item.Kind)
	}
	key, err := item.PrivateKey()
	if err != nil {
		return fmt.Errorf("pool_service.CreateItem: %w: %v", domain.ErrSecretMismatch, err)
	}
	if key.PublicKey().String() != item.Identifier {
		return fmt.Errorf("pool_service.CreateItem: %w", domain.ErrSecretMismatch)
	}

	now := time.Now().UTC()
	item.Status = domain.ItemAvailable
	item.CreatedAt = now
	item.UpdatedAt = now
	if err := s.store.Create(ctx, item); err != nil {
		return err
	}
	s.logger.Info("pool item provisioned", "identifier", item.Identifier, "kind", item.Kind)
	return nil
}

// Get fetches one item by identifier.
func (s *PoolService) Get(ctx context.Context, identifier string) (*domain.PoolItem, error) {
	return s.store.GetByIdentifier(ctx, identifier)
}

// Stats returns per-status counts for dashboards.
func (s *PoolService) Stats(ctx context.Context) (domain.PoolStats, error) {
	return s.store.CountByStatus(ctx)
}

// SweepStale frees claims older than the threshold and returns how many were
// reclaimed. Called from the scheduled reconciliation sweep and the sweeper
// binary — never from the claim/release path, so ownership bugs stay visible.
func (s *PoolService) SweepStale(ctx context.Context, olderThan time.Duration) (int, error) {
	identifiers, err := s.store.ReleaseStale(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	if len(identifiers) > 0 {
		s.logger.Warn("reclaimed stale pool claims",
			"count", len(identifiers), "older_than", olderThan, "identifiers", identifiers)
	}
	return len(identifiers), nil
}
