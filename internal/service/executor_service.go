package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/virelabs/launchpad/internal/domain"
	"github.com/virelabs/launchpad/internal/retry"
)

// ──────────────────────────────────────────────────────────────────────────────
// Collaborator interfaces
// ──────────────────────────────────────────────────────────────────────────────

// LedgerClient is the narrow network contract the executor drives transfers
// through. chain.Client is the production implementation.
type LedgerClient interface {
	SubmitTransfer(ctx context.Context, source solana.PrivateKey, dest solana.PublicKey, lamports uint64) (solana.Signature, error)
	Confirm(ctx context.Context, sig solana.Signature) error
	GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
}

// SettlementStore appends settlement audit rows.
// repository.SettlementRepository is the production implementation.
type SettlementStore interface {
	Record(ctx context.Context, res *domain.SettlementResult) error
}

// Broadcaster pushes execution progress to connected clients. Implemented by
// ws.Hub; declared here so the service package does not import ws.
type Broadcaster interface {
	BroadcastSlotSettled(res *domain.SettlementResult)
	BroadcastBatchCompleted(summary *domain.BatchSummary)
}

// ──────────────────────────────────────────────────────────────────────────────
// ExecutorService
// ──────────────────────────────────────────────────────────────────────────────

// ExecutorConfig bounds a batch run.
type ExecutorConfig struct {
	SubmitTimeout  time.Duration // per submission attempt
	ConfirmTimeout time.Duration // per confirmation wait
	BatchBudget    time.Duration // total wall clock for one batch; 0 = unbounded
}

// ExecutorService drives a distribution plan through the ledger network.
// Slots execute sequentially: parallel transfers from one source credential
// risk ordering conflicts on the network and make fee estimation
// unpredictable. Failures are local to their slot; the batch itself never
// fails as a whole.
type ExecutorService struct {
	client      LedgerClient
	settlements SettlementStore
	policy      retry.Policy
	cfg         ExecutorConfig
	logger      *slog.Logger
	broadcaster Broadcaster // optional
}

// NewExecutorService creates an ExecutorService.
func NewExecutorService(client LedgerClient, settlements SettlementStore, policy retry.Policy, cfg ExecutorConfig, logger *slog.Logger) *ExecutorService {
	return &ExecutorService{
		client:      client,
		settlements: settlements,
		policy:      policy,
		cfg:         cfg,
		logger:      logger,
	}
}

// SetBroadcaster wires the optional progress broadcaster (ws hub).
func (s *ExecutorService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// ──────────────────────────────────────────────────────────────────────────────
// Execute
// ──────────────────────────────────────────────────────────────────────────────

// Execute runs every non-zero slot of the plan as a transfer from source to
// the matching destination, sequentially, with bounded retry per slot.
//
// Zero-amount slots are skipped entirely: no attempt is made and no result is
// recorded, which is distinct from a non-zero slot whose transfer failed.
// Cancellation (or an exhausted batch budget) stops submitting new slots but
// never tries to claw back an already-broadcast transfer.
//
// The returned summary aggregates only what actually happened on-chain;
// callers reconcile funding state against it, not the plan's nominal totals.
func (s *ExecutorService) Execute(
	ctx context.Context,
	batchID uuid.UUID,
	plan *domain.DistributionPlan,
	source solana.PrivateKey,
	destinations []solana.PublicKey,
) ([]domain.SettlementResult, domain.BatchSummary, error) {
	if len(destinations) != plan.SlotCount {
		return nil, domain.BatchSummary{}, domain.ErrNoDestinations
	}
	if batchID == uuid.Nil {
		batchID = uuid.New()
	}

	batchCtx := ctx
	if s.cfg.BatchBudget > 0 {
		var cancel context.CancelFunc
		batchCtx, cancel = context.WithTimeout(ctx, s.cfg.BatchBudget)
		defer cancel()
	}

	s.logger.Info("batch execution started",
		"batch", batchID, "slots", plan.SlotCount, "non_zero", plan.NonZeroSlots(),
		"planned_lamports", plan.SpendTotal())

	results := make([]domain.SettlementResult, 0, plan.NonZeroSlots())
	summary := domain.BatchSummary{BatchID: batchID}

	for i, lamports := range plan.Amounts {
		if lamports == 0 {
			continue // dust slot: skip, record no attempt
		}
		if batchCtx.Err() != nil {
			s.logger.Warn("batch stopped before completion",
				"batch", batchID, "next_slot", i, "reason", batchCtx.Err())
			break
		}

		res := s.executeSlot(batchCtx, batchID, i, source, destinations[i], lamports)
		results = append(results, res)

		summary.Attempted++
		if res.Outcome == domain.OutcomeSuccess {
			summary.Succeeded++
			summary.TransferredLamports += res.Lamports
		} else {
			summary.Failed++
		}

		// The audit log is best-effort: a store hiccup must not abort the
		// batch, the in-memory results still go back to the caller.
		if err := s.settlements.Record(ctx, &res); err != nil {
			s.logger.Error("settlement record failed", "batch", batchID, "slot", i, "err", err)
		}
		if s.broadcaster != nil {
			s.broadcaster.BroadcastSlotSettled(&res)
		}
	}

	s.logger.Info("batch execution finished",
		"batch", batchID, "attempted", summary.Attempted,
		"succeeded", summary.Succeeded, "failed", summary.Failed,
		"transferred_lamports", summary.TransferredLamports)
	if s.broadcaster != nil {
		s.broadcaster.BroadcastBatchCompleted(&summary)
	}
	return results, summary, nil
}

// executeSlot runs the Pending → Submitted → Confirmed | Failed state machine
// for one slot under the shared retry policy.
func (s *ExecutorService) executeSlot(
	ctx context.Context,
	batchID uuid.UUID,
	slotIndex int,
	source solana.PrivateKey,
	dest solana.PublicKey,
	lamports uint64,
) domain.SettlementResult {
	var sig solana.Signature

	attempts, err := s.policy.Do(ctx, func() error {
		submitCtx, cancel := context.WithTimeout(ctx, s.cfg.SubmitTimeout)
		defer cancel()
		submitted, err := s.client.SubmitTransfer(submitCtx, source, dest, lamports)
		if err != nil {
			return err
		}

		confirmCtx, cancelConfirm := context.WithTimeout(ctx, s.cfg.ConfirmTimeout)
		defer cancelConfirm()
		if err := s.client.Confirm(confirmCtx, submitted); err != nil {
			return err
		}
		sig = submitted
		return nil
	}, domain.IsRetryable)

	res := domain.SettlementResult{
		ID:          uuid.New(),
		BatchID:     batchID,
		SlotIndex:   slotIndex,
		Destination: dest.String(),
		Lamports:    lamports,
		Attempts:    attempts,
		CreatedAt:   time.Now().UTC(),
	}
	if err != nil {
		reason := err.Error()
		res.Outcome = domain.OutcomeFailed
		res.Reason = &reason
		s.logger.Warn("slot failed",
			"batch", batchID, "slot", slotIndex, "dest", res.Destination,
			"lamports", lamports, "attempts", attempts, "err", err)
		return res
	}

	sigStr := sig.String()
	res.Outcome = domain.OutcomeSuccess
	res.Signature = &sigStr
	s.logger.Info("slot confirmed",
		"batch", batchID, "slot", slotIndex, "dest", res.Destination,
		"lamports", lamports, "attempts", attempts, "signature", sigStr)
	return res
}

// RefreshBalance reads an account's live balance; used by the advisory
// balance refresh loop.
func (s *ExecutorService) RefreshBalance(ctx context.Context, identifier string) (uint64, error) {
	key, err := solana.PublicKeyFromBase58(identifier)
	if err != nil {
		return 0, fmt.Errorf("executor_service.RefreshBalance: %w", err)
	}
	return s.client.GetBalance(ctx, key)
}
