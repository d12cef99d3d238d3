// Package scheduler manages the two background goroutines that keep the
// resource pool healthy:
//  1. sweepLoop          – reclaims stale claims and pushes pool occupancy.
//  2. balanceRefreshLoop – refreshes advisory on-chain balances for pool items.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/virelabs/launchpad/internal/config"
	"github.com/virelabs/launchpad/internal/domain"
	"github.com/virelabs/launchpad/internal/service"
)

// ──────────────────────────────────────────────────────────────────────────────
// Collaborator interfaces — minimally required from the hub and the store
// ──────────────────────────────────────────────────────────────────────────────

// WsHub defines the broadcast operations the Scheduler needs from the WebSocket
// hub.  Declared here so the scheduler package does not import the ws/hub.go
// implementation and cause a circular dependency.
type WsHub interface {
	BroadcastPoolUpdate(stats domain.PoolStats)
}

// BalanceStore is the slice of the pool store the balance refresh loop reads
// and writes. repository.PoolRepository is the production implementation.
type BalanceStore interface {
	ListByStatus(ctx context.Context, status domain.PoolItemStatus, limit int) ([]*domain.PoolItem, error)
	UpdateBalance(ctx context.Context, identifier string, lamports int64) error
}

// ──────────────────────────────────────────────────────────────────────────────
// Scheduler
// ──────────────────────────────────────────────────────────────────────────────

// Scheduler runs the pool housekeeping goroutines.  Call Start(ctx) once from
// main(); cancel the context to shut it down gracefully.
type Scheduler struct {
	poolSvc  *service.PoolService
	executor *service.ExecutorService
	balances BalanceStore
	hub      WsHub
	cfg      *config.Config
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	poolSvc *service.PoolService,
	executor *service.ExecutorService,
	balances BalanceStore,
	hub WsHub,
	cfg *config.Config,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		poolSvc:  poolSvc,
		executor: executor,
		balances: balances,
		hub:      hub,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start launches the background goroutines.  It returns immediately; all
// loops run until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.sweepLoop(ctx)
	go s.balanceRefreshLoop(ctx)
	s.logger.Info("scheduler started",
		"sweep_interval", s.cfg.Pool.SweepInterval,
		"stale_threshold", s.cfg.Pool.StaleThreshold,
		"balance_interval", s.cfg.Pool.BalanceInterval)
}

// ──────────────────────────────────────────────────────────────────────────────
// sweepLoop
// ──────────────────────────────────────────────────────────────────────────────

// sweepLoop reclaims claims that outlived the stale threshold — a crashed
// holder never calls release, so the sweep is what returns its items to
// circulation — then pushes the resulting pool occupancy to WS clients.
func (s *Scheduler) sweepLoop(ctx context.Context) {
	defer s.recoverAndLog("sweepLoop")

	ticker := time.NewTicker(s.cfg.Pool.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweepLoop: shutting down")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

// sweepOnce is the inner body of sweepLoop, extracted so that the
// defer/recover in the loop catches panics correctly.
func (s *Scheduler) sweepOnce(ctx context.Context) {
	if _, err := s.poolSvc.SweepStale(ctx, s.cfg.Pool.StaleThreshold); err != nil {
		s.logger.Error("sweepLoop: SweepStale", "err", err)
		return
	}

	stats, err := s.poolSvc.Stats(ctx)
	if err != nil {
		s.logger.Error("sweepLoop: Stats", "err", err)
		return
	}
	if s.hub != nil {
		s.hub.BroadcastPoolUpdate(stats)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// balanceRefreshLoop
// ──────────────────────────────────────────────────────────────────────────────

// balanceRefreshLoop periodically reads live balances for available wallets
// and stores them as advisory values. The ledger is authoritative; a refresh
// failure for one item never blocks the rest.
func (s *Scheduler) balanceRefreshLoop(ctx context.Context) {
	defer s.recoverAndLog("balanceRefreshLoop")

	ticker := time.NewTicker(s.cfg.Pool.BalanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("balanceRefreshLoop: shutting down")
			return
		case <-ticker.C:
			s.refreshBalances(ctx)
		}
	}
}

// refreshBalances walks available items and updates their advisory balance.
func (s *Scheduler) refreshBalances(ctx context.Context) {
	const batchLimit = 100

	items, err := s.balances.ListByStatus(ctx, domain.ItemAvailable, batchLimit)
	if err != nil {
		s.logger.Error("balanceRefreshLoop: ListByStatus", "err", err)
		return
	}

	var refreshed int
	for _, item := range items {
		if ctx.Err() != nil {
			return
		}
		lamports, err := s.executor.RefreshBalance(ctx, item.Identifier)
		if err != nil {
			s.logger.Warn("balanceRefreshLoop: balance read failed",
				"identifier", item.Identifier, "err", err)
			continue
		}
		if err := s.balances.UpdateBalance(ctx, item.Identifier, int64(lamports)); err != nil {
			s.logger.Error("balanceRefreshLoop: balance write failed",
				"identifier", item.Identifier, "err", err)
			continue
		}
		refreshed++
	}
	if refreshed > 0 {
		s.logger.Info("advisory balances refreshed", "count", refreshed, "scanned", len(items))
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Panic recovery
// ──────────────────────────────────────────────────────────────────────────────

// recoverAndLog is deferred inside each goroutine to catch unexpected panics,
// log them, and allow the scheduler to continue running.
func (s *Scheduler) recoverAndLog(loop string) {
	if r := recover(); r != nil {
		s.logger.Error("PANIC recovered in scheduler loop",
			"loop", loop, "panic", r)
	}
}
