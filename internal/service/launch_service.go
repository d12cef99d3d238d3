package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"math/rand"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/virelabs/launchpad/internal/domain"
	"github.com/virelabs/launchpad/internal/plan"
)

// ──────────────────────────────────────────────────────────────────────────────
// Requests & results
// ──────────────────────────────────────────────────────────────────────────────

// LaunchRequest describes one coordinated multi-wallet launch.
type LaunchRequest struct {
	TotalLamports uint64 `json:"total_lamports"`
	SlotCount     int    `json:"slot_count"`
	// Seed pins the planner's random source for replayable sizing.
	// nil draws a fresh seed.
	Seed *int64 `json:"seed"`
}

// LaunchResult reports what a launch actually did.
type LaunchResult struct {
	Mint             string                    `json:"mint"`
	BatchID          uuid.UUID                 `json:"batch_id"`
	ExpectedTokenOut string                    `json:"expected_token_out"`
	Plan             *domain.DistributionPlan  `json:"plan"`
	Settlements      []domain.SettlementResult `json:"settlements"`
	Summary          domain.BatchSummary       `json:"summary"`
}

// ──────────────────────────────────────────────────────────────────────────────
// LaunchService
// ──────────────────────────────────────────────────────────────────────────────

// LaunchService orchestrates the full pipeline: claim a mint identity and
// funding wallets from the pool, initialise curve reserves, price the
// prospective buy, plan the distribution, execute it, and hand the wallets
// back. Each step leans on the subsystem that owns the invariant; this
// service only sequences them.
type LaunchService struct {
	pool     *PoolService
	quotes   *QuoteService
	executor *ExecutorService

	planCfg         plan.Config
	initialReserves domain.ReserveState
	treasury        solana.PrivateKey

	logger *slog.Logger
}

// NewLaunchService creates a LaunchService.
func NewLaunchService(
	pool *PoolService,
	quotes *QuoteService,
	executor *ExecutorService,
	planCfg plan.Config,
	initialReserves domain.ReserveState,
	treasury solana.PrivateKey,
	logger *slog.Logger,
) *LaunchService {
	return &LaunchService{
		pool:            pool,
		quotes:          quotes,
		executor:        executor,
		planCfg:         planCfg,
		initialReserves: initialReserves,
		treasury:        treasury,
		logger:          logger,
	}
}

// Launch runs one coordinated launch end to end.
func (s *LaunchService) Launch(ctx context.Context, req LaunchRequest) (*LaunchResult, error) {
	holderID := uuid.New()

	// ── 1. Claim the mint identity ────────────────────────────────────────────
	mintItem, err := s.pool.Claim(ctx, holderID, domain.ClaimFilter{Kind: domain.KindAddress})
	if err != nil {
		return nil, fmt.Errorf("launch_service.Launch: claim address: %w", err)
	}

	// ── 2. Initialise reserves and price the prospective buy ──────────────────
	if err := s.quotes.CreateInstrument(ctx, mintItem.Identifier, s.initialReserves.Clone()); err != nil {
		s.releaseQuietly(ctx, holderID, mintItem.Identifier)
		return nil, fmt.Errorf("launch_service.Launch: init reserves: %w", err)
	}

	preview, err := s.quotes.QuoteBuy(ctx, mintItem.Identifier,
		new(big.Int).SetUint64(req.TotalLamports))
	if err != nil {
		s.releaseQuietly(ctx, holderID, mintItem.Identifier)
		return nil, fmt.Errorf("launch_service.Launch: preview quote: %w", err)
	}

	// ── 3. Claim funding wallets ──────────────────────────────────────────────
	wallets := make([]*domain.PoolItem, 0, req.SlotCount)
	releaseWallets := func() {
		for _, w := range wallets {
			s.releaseQuietly(ctx, holderID, w.Identifier)
		}
	}
	for i := 0; i < req.SlotCount; i++ {
		w, err := s.pool.Claim(ctx, holderID, domain.ClaimFilter{Kind: domain.KindWallet})
		if err != nil {
			releaseWallets()
			s.releaseQuietly(ctx, holderID, mintItem.Identifier)
			return nil, fmt.Errorf("launch_service.Launch: claim wallet %d/%d: %w", i+1, req.SlotCount, err)
		}
		wallets = append(wallets, w)
	}

	// ── 4. Plan the distribution ──────────────────────────────────────────────
	var seed int64
	if req.Seed != nil {
		seed = *req.Seed
	} else {
		seed = time.Now().UnixNano()
	}
	distribution, err := plan.Plan(req.TotalLamports, req.SlotCount, s.planCfg, rand.New(rand.NewSource(seed)))
	if err != nil {
		releaseWallets()
		s.releaseQuietly(ctx, holderID, mintItem.Identifier)
		return nil, fmt.Errorf("launch_service.Launch: plan: %w", err)
	}

	destinations := make([]solana.PublicKey, req.SlotCount)
	for i, w := range wallets {
		key, err := w.PublicKey()
		if err != nil {
			releaseWallets()
			s.releaseQuietly(ctx, holderID, mintItem.Identifier)
			return nil, fmt.Errorf("launch_service.Launch: wallet %s: %w", w.Identifier, err)
		}
		destinations[i] = key
	}

	// ── 5. Execute ────────────────────────────────────────────────────────────
	batchID := uuid.New()
	settlements, summary, err := s.executor.Execute(ctx, batchID, &distribution, s.treasury, destinations)
	if err != nil {
		// Only pre-flight validation can fail here; nothing was broadcast.
		releaseWallets()
		s.releaseQuietly(ctx, holderID, mintItem.Identifier)
		return nil, fmt.Errorf("launch_service.Launch: execute: %w", err)
	}

	// ── 6. Hand resources back ────────────────────────────────────────────────
	// Funding wallets return to the pool for reuse. The mint identity is
	// consumed by the launch and can never be handed out again.
	releaseWallets()
	if err := s.pool.MarkDepleted(ctx, mintItem.Identifier); err != nil {
		s.logger.Error("could not retire mint identity", "mint", mintItem.Identifier, "err", err)
	}

	s.logger.Info("launch completed",
		"mint", mintItem.Identifier, "batch", batchID, "seed", seed,
		"succeeded", summary.Succeeded, "failed", summary.Failed,
		"transferred_lamports", summary.TransferredLamports)

	return &LaunchResult{
		Mint:             mintItem.Identifier,
		BatchID:          batchID,
		ExpectedTokenOut: preview.TokenOut.String(),
		Plan:             &distribution,
		Settlements:      settlements,
		Summary:          summary,
	}, nil
}

// releaseQuietly returns an item to the pool, logging instead of failing:
// cleanup paths must not mask the original error.
func (s *LaunchService) releaseQuietly(ctx context.Context, holderID uuid.UUID, identifier string) {
	if err := s.pool.Release(ctx, identifier, holderID); err != nil {
		s.logger.Error("release failed during cleanup", "identifier", identifier, "err", err)
	}
}
