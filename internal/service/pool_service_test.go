package service_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/virelabs/launchpad/internal/domain"
	"github.com/virelabs/launchpad/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ──────────────────────────────────────────────────────────────────────────────
// In-memory PoolStore
// ──────────────────────────────────────────────────────────────────────────────

// memPoolStore implements service.PoolStore with the same conditional-update
// semantics the SQL store provides: claim is a single guarded transition
// under one lock, so the exclusivity property can be exercised with the race
// detector.
type memPoolStore struct {
	mu    sync.Mutex
	items map[string]*domain.PoolItem
}

func newMemPoolStore(items ...*domain.PoolItem) *memPoolStore {
	s := &memPoolStore{items: make(map[string]*domain.PoolItem)}
	for _, it := range items {
		s.items[it.Identifier] = it
	}
	return s
}

func availableItem(identifier string, kind domain.PoolItemKind) *domain.PoolItem {
	return &domain.PoolItem{
		Identifier: identifier,
		Kind:       kind,
		Secret:     "secret-" + identifier,
		Status:     domain.ItemAvailable,
		CreatedAt:  time.Now().UTC(),
	}
}

func (s *memPoolStore) Claim(_ context.Context, holderID uuid.UUID, filter domain.ClaimFilter) (*domain.PoolItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.Status != domain.ItemAvailable {
			continue
		}
		if filter.Kind != "" && it.Kind != filter.Kind {
			continue
		}
		if filter.Identifier != "" && it.Identifier != filter.Identifier {
			continue
		}
		now := time.Now().UTC()
		it.Status = domain.ItemClaimed
		it.ClaimedBy = &holderID
		it.ClaimedAt = &now
		it.UsageCount++
		copy := *it
		return &copy, nil
	}
	return nil, domain.ErrPoolExhausted
}

func (s *memPoolStore) Release(_ context.Context, identifier string, holderID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[identifier]
	if !ok {
		return domain.ErrPoolItemNotFound
	}
	if it.Status == domain.ItemClaimed {
		if it.ClaimedBy == nil || *it.ClaimedBy != holderID {
			return domain.ErrNotOwner
		}
		it.Status = domain.ItemAvailable
		it.ClaimedBy = nil
		it.ClaimedAt = nil
	}
	return nil
}

func (s *memPoolStore) MarkDepleted(_ context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[identifier]
	if !ok {
		return domain.ErrPoolItemNotFound
	}
	it.Status = domain.ItemDepleted
	it.ClaimedBy = nil
	it.ClaimedAt = nil
	return nil
}

func (s *memPoolStore) MarkErrored(_ context.Context, identifier, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[identifier]
	if !ok {
		return domain.ErrPoolItemNotFound
	}
	it.Status = domain.ItemErrored
	it.ErrorReason = &reason
	it.ClaimedBy = nil
	it.ClaimedAt = nil
	return nil
}

func (s *memPoolStore) ResetErrored(_ context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[identifier]
	if !ok {
		return domain.ErrPoolItemNotFound
	}
	if it.Status != domain.ItemErrored {
		return domain.ErrItemNotErrored
	}
	it.Status = domain.ItemAvailable
	it.ErrorReason = nil
	return nil
}

func (s *memPoolStore) GetByIdentifier(_ context.Context, identifier string) (*domain.PoolItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[identifier]
	if !ok {
		return nil, domain.ErrPoolItemNotFound
	}
	copy := *it
	return &copy, nil
}

func (s *memPoolStore) CountByStatus(_ context.Context) (domain.PoolStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats domain.PoolStats
	for _, it := range s.items {
		switch it.Status {
		case domain.ItemAvailable:
			stats.Available++
		case domain.ItemClaimed:
			stats.Claimed++
		case domain.ItemDepleted:
			stats.Depleted++
		case domain.ItemErrored:
			stats.Errored++
		}
	}
	return stats, nil
}

func (s *memPoolStore) Create(_ context.Context, item *domain.PoolItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy := *item
	s.items[item.Identifier] = &copy
	return nil
}

func (s *memPoolStore) ReleaseStale(_ context.Context, olderThan time.Duration) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	var freed []string
	for _, it := range s.items {
		if it.Status == domain.ItemClaimed && it.ClaimedAt != nil && it.ClaimedAt.Before(cutoff) {
			it.Status = domain.ItemAvailable
			it.ClaimedBy = nil
			it.ClaimedAt = nil
			freed = append(freed, it.Identifier)
		}
	}
	return freed, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────────────────────────────────

// TestPoolClaim_Exclusivity races many claimers against K available items:
// no two callers may receive the same item and exactly min(callers, K)
// claims succeed.
func TestPoolClaim_Exclusivity(t *testing.T) {
	const available = 5
	const callers = 20

	items := make([]*domain.PoolItem, 0, available)
	for i := 0; i < available; i++ {
		items = append(items, availableItem(fmt.Sprintf("wallet-%d", i), domain.KindWallet))
	}
	svc := service.NewPoolService(newMemPoolStore(items...), discardLogger())

	var (
		mu        sync.Mutex
		claimed   = make(map[string]int)
		succeeded int
		exhausted int
		wg        sync.WaitGroup
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			item, err := svc.Claim(context.Background(), uuid.New(), domain.ClaimFilter{Kind: domain.KindWallet})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, domain.ErrPoolExhausted) {
					exhausted++
				} else {
					t.Errorf("unexpected claim error: %v", err)
				}
				return
			}
			succeeded++
			claimed[item.Identifier]++
		}()
	}
	wg.Wait()

	if succeeded != available {
		t.Errorf("succeeded = %d, want %d", succeeded, available)
	}
	if exhausted != callers-available {
		t.Errorf("exhausted = %d, want %d", exhausted, callers-available)
	}
	for id, n := range claimed {
		if n != 1 {
			t.Errorf("item %s claimed %d times", id, n)
		}
	}
}

// TestPoolRelease_Idempotence releases an item twice and releases an
// unclaimed item; neither may move state beyond available.
func TestPoolRelease_Idempotence(t *testing.T) {
	store := newMemPoolStore(availableItem("w1", domain.KindWallet))
	svc := service.NewPoolService(store, discardLogger())
	holder := uuid.New()

	item, err := svc.Claim(context.Background(), holder, domain.ClaimFilter{})
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	if err := svc.Release(context.Background(), item.Identifier, holder); err != nil {
		t.Fatalf("first release failed: %v", err)
	}
	if err := svc.Release(context.Background(), item.Identifier, holder); err != nil {
		t.Fatalf("double release should be a no-op, got %v", err)
	}

	got, err := svc.Get(context.Background(), item.Identifier)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != domain.ItemAvailable {
		t.Errorf("status = %s, want available", got.Status)
	}
	if got.ClaimedBy != nil || got.ClaimedAt != nil {
		t.Error("claimed_by/claimed_at should be cleared after release")
	}
}

// TestPoolRelease_NotOwner rejects a release from a holder that does not own
// the claim, without disturbing the claim itself.
func TestPoolRelease_NotOwner(t *testing.T) {
	store := newMemPoolStore(availableItem("w1", domain.KindWallet))
	svc := service.NewPoolService(store, discardLogger())
	owner := uuid.New()

	item, err := svc.Claim(context.Background(), owner, domain.ClaimFilter{})
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	err = svc.Release(context.Background(), item.Identifier, uuid.New())
	if !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	got, _ := svc.Get(context.Background(), item.Identifier)
	if got.Status != domain.ItemClaimed {
		t.Errorf("claim should survive a foreign release, status = %s", got.Status)
	}
}

// TestPoolClaim_ByIdentifier claims a specific item and fails when that item
// is already held.
func TestPoolClaim_ByIdentifier(t *testing.T) {
	store := newMemPoolStore(
		availableItem("addr-1", domain.KindAddress),
		availableItem("addr-2", domain.KindAddress),
	)
	svc := service.NewPoolService(store, discardLogger())

	item, err := svc.Claim(context.Background(), uuid.New(), domain.ClaimFilter{Identifier: "addr-2"})
	if err != nil {
		t.Fatalf("claim by identifier failed: %v", err)
	}
	if item.Identifier != "addr-2" {
		t.Errorf("claimed %s, want addr-2", item.Identifier)
	}

	_, err = svc.Claim(context.Background(), uuid.New(), domain.ClaimFilter{Identifier: "addr-2"})
	if !errors.Is(err, domain.ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted for a held identifier, got %v", err)
	}
}

// TestPoolErrored_ManualResetOnly verifies errored items stay out of the pool
// until an operator resets them, and reset rejects non-errored items.
func TestPoolErrored_ManualResetOnly(t *testing.T) {
	store := newMemPoolStore(availableItem("w1", domain.KindWallet))
	svc := service.NewPoolService(store, discardLogger())

	if err := svc.MarkErrored(context.Background(), "w1", "rpc account mismatch"); err != nil {
		t.Fatalf("mark errored failed: %v", err)
	}
	if _, err := svc.Claim(context.Background(), uuid.New(), domain.ClaimFilter{}); !errors.Is(err, domain.ErrPoolExhausted) {
		t.Fatalf("errored item must not be claimable, got %v", err)
	}

	if err := svc.ResetErrored(context.Background(), "w1"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if err := svc.ResetErrored(context.Background(), "w1"); !errors.Is(err, domain.ErrItemNotErrored) {
		t.Fatalf("reset of a healthy item must be rejected, got %v", err)
	}
	if _, err := svc.Claim(context.Background(), uuid.New(), domain.ClaimFilter{}); err != nil {
		t.Fatalf("item should be claimable after reset, got %v", err)
	}
}

// TestPoolCreateItem_StampsTimestamps: a provisioned item must carry real
// creation timestamps — the claim order tie-breaks on created_at, and a zero
// time would put new items ahead of everything in the pool.
func TestPoolCreateItem_StampsTimestamps(t *testing.T) {
	store := newMemPoolStore()
	svc := service.NewPoolService(store, discardLogger())

	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	item := &domain.PoolItem{
		Identifier: key.PublicKey().String(),
		Kind:       domain.KindWallet,
		Secret:     key.String(),
	}

	before := time.Now().UTC()
	if err := svc.CreateItem(context.Background(), item); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	after := time.Now().UTC()

	got, err := svc.Get(context.Background(), item.Identifier)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("created_at is the zero time")
	}
	if got.CreatedAt.Before(before) || got.CreatedAt.After(after) {
		t.Errorf("created_at = %v, want within [%v, %v]", got.CreatedAt, before, after)
	}
	if !got.UpdatedAt.Equal(got.CreatedAt) {
		t.Errorf("updated_at = %v, want equal to created_at %v", got.UpdatedAt, got.CreatedAt)
	}
	if got.Status != domain.ItemAvailable {
		t.Errorf("status = %s, want available", got.Status)
	}
	if _, err := svc.Claim(context.Background(), uuid.New(), domain.ClaimFilter{}); err != nil {
		t.Errorf("freshly provisioned item should be claimable, got %v", err)
	}
}

// TestPoolCreateItem_RejectsBadInput keeps mismatched keypairs and unknown
// kinds out of the pool entirely.
func TestPoolCreateItem_RejectsBadInput(t *testing.T) {
	store := newMemPoolStore()
	svc := service.NewPoolService(store, discardLogger())

	good, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	other, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}

	cases := []struct {
		name string
		item domain.PoolItem
		want error
	}{
		{
			name: "secret from a different keypair",
			item: domain.PoolItem{Identifier: good.PublicKey().String(), Kind: domain.KindWallet, Secret: other.String()},
			want: domain.ErrSecretMismatch,
		},
		{
			name: "secret is not base58",
			item: domain.PoolItem{Identifier: good.PublicKey().String(), Kind: domain.KindWallet, Secret: "not-a-key!!"},
			want: domain.ErrSecretMismatch,
		},
		{
			name: "unknown kind",
			item: domain.PoolItem{Identifier: good.PublicKey().String(), Kind: "vault", Secret: good.String()},
			want: domain.ErrInvalidAmount,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			item := tc.item
			if err := svc.CreateItem(context.Background(), &item); !errors.Is(err, tc.want) {
				t.Fatalf("create = %v, want %v", err, tc.want)
			}
			if _, err := svc.Get(context.Background(), item.Identifier); !errors.Is(err, domain.ErrPoolItemNotFound) {
				t.Errorf("rejected item must not be stored, got %v", err)
			}
		})
	}
}

// TestPoolSweepStale frees only claims older than the threshold.
func TestPoolSweepStale(t *testing.T) {
	stale := availableItem("stale", domain.KindWallet)
	fresh := availableItem("fresh", domain.KindWallet)
	store := newMemPoolStore(stale, fresh)
	svc := service.NewPoolService(store, discardLogger())

	holder := uuid.New()
	for _, id := range []string{"stale", "fresh"} {
		if _, err := svc.Claim(context.Background(), holder, domain.ClaimFilter{Identifier: id}); err != nil {
			t.Fatalf("claim %s failed: %v", id, err)
		}
	}
	// Age the stale claim behind the threshold.
	old := time.Now().UTC().Add(-time.Hour)
	store.mu.Lock()
	store.items["stale"].ClaimedAt = &old
	store.mu.Unlock()

	freed, err := svc.SweepStale(context.Background(), 30*time.Minute)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if freed != 1 {
		t.Errorf("freed = %d, want 1", freed)
	}

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Available != 1 || stats.Claimed != 1 {
		t.Errorf("stats = %+v, want 1 available / 1 claimed", stats)
	}
}
