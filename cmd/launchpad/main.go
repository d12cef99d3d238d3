// Package main is the entry point for the launchpad API server.  It wires
// together the pool, curve, and distribution services and starts the HTTP
// server alongside the WebSocket hub and background scheduler.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"github.com/virelabs/launchpad/internal/api"
	"github.com/virelabs/launchpad/internal/chain"
	"github.com/virelabs/launchpad/internal/config"
	"github.com/virelabs/launchpad/internal/domain"
	"github.com/virelabs/launchpad/internal/plan"
	"github.com/virelabs/launchpad/internal/repository"
	"github.com/virelabs/launchpad/internal/retry"
	"github.com/virelabs/launchpad/internal/scheduler"
	"github.com/virelabs/launchpad/internal/service"
	"github.com/virelabs/launchpad/internal/ws"
)

func main() {
	// ── 1. Logger ─────────────────────────────────────────────────────────────
	cfg := config.MustLoad()

	var logHandler slog.Handler
	if cfg.IsProd() {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	logger.Info("starting launchpad server", "env", cfg.Server.Env, "port", cfg.Server.Port)

	// ── 2. Treasury credential ────────────────────────────────────────────────
	treasury, err := solana.PrivateKeyFromBase58(cfg.Chain.TreasurySecret)
	if err != nil {
		logger.Error("invalid treasury secret", "err", err)
		os.Exit(1)
	}
	logger.Info("treasury loaded", "pubkey", treasury.PublicKey())

	// ── 3. Database ───────────────────────────────────────────────────────────
	db, err := sqlx.Connect("postgres", cfg.DB.DSN)
	if err != nil {
		logger.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	if err = db.Ping(); err != nil {
		logger.Error("database ping failed", "err", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	// ── 4. Migrations ─────────────────────────────────────────────────────────
	if err = runMigrations(db, "migrations"); err != nil {
		logger.Error("migrations failed", "err", err)
		os.Exit(1)
	}
	logger.Info("migrations applied")

	// ── 5. Repositories ───────────────────────────────────────────────────────
	poolRepo := repository.NewPoolRepository(db)
	reserveRepo := repository.NewReserveRepository(db)
	settlementRepo := repository.NewSettlementRepository(db)

	// ── 6. Ledger client ──────────────────────────────────────────────────────
	ledger := chain.New(cfg.Chain.RPCEndpoint, cfg.Chain.ConfirmPoll)
	logger.Info("ledger client ready", "endpoint", cfg.Chain.RPCEndpoint)

	// ── 7. Services ───────────────────────────────────────────────────────────
	policy := retry.Policy{
		MaxAttempts: cfg.Distribution.MaxAttempts,
		Backoff:     cfg.Distribution.RetryBackoff,
	}
	planCfg := plan.Config{
		OverheadPerSlot:       cfg.Distribution.OverheadPerSlot,
		MinViableTransfer:     cfg.Distribution.MinViableTransfer,
		LargeSlotFraction:     cfg.Distribution.LargeSlotFraction,
		LargeWeightMultiplier: cfg.Distribution.LargeWeightMultiplier,
	}
	initialReserves := domain.NewReserveState(
		cfg.Curve.VirtualTokenReserve,
		cfg.Curve.VirtualBaseReserve,
		cfg.Curve.RealTokenReserve,
	)

	poolSvc := service.NewPoolService(poolRepo, logger)
	quoteSvc := service.NewQuoteService(reserveRepo, policy, logger)
	executorSvc := service.NewExecutorService(ledger, settlementRepo, policy, service.ExecutorConfig{
		SubmitTimeout:  cfg.Chain.SubmitTimeout,
		ConfirmTimeout: cfg.Chain.ConfirmTimeout,
		BatchBudget:    cfg.Distribution.BatchBudget,
	}, logger)
	launchSvc := service.NewLaunchService(poolSvc, quoteSvc, executorSvc, planCfg, initialReserves, treasury, logger)

	// ── 8. WebSocket Hub ──────────────────────────────────────────────────────
	var allowedOrigins []string
	for _, o := range strings.Split(cfg.Server.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowedOrigins = append(allowedOrigins, o)
		}
	}
	hub := ws.NewHub(allowedOrigins)

	// Wire WS broadcaster into the executor
	executorSvc.SetBroadcaster(hub)

	// ── 9. Root context + signal handling ─────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 10. Start WS Hub ──────────────────────────────────────────────────────
	go hub.Run()
	logger.Info("websocket hub started")

	// ── 11. Scheduler ─────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(poolSvc, executorSvc, poolRepo, hub, cfg, logger)
	sched.Start(ctx)

	// ── 12. HTTP Router ───────────────────────────────────────────────────────
	router := api.SetupRouter(api.RouterDeps{
		PoolSvc:        poolSvc,
		QuoteSvc:       quoteSvc,
		LaunchSvc:      launchSvc,
		PoolRepo:       poolRepo,
		SettlementRepo: settlementRepo,
		PlanCfg:        planCfg,
		Hub:            hub,
		Cfg:            cfg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ── 13. Start server ──────────────────────────────────────────────────────
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
			stop() // trigger graceful shutdown
		}
	}()

	// ── 14. Graceful shutdown ─────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutdown signal received, draining connections…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "err", err)
	}

	db.Close()
	logger.Info("server stopped cleanly")
}

// runMigrations reads all *.sql files from dir, sorted by name, and executes
// them sequentially.  Idempotent: SQL files should use IF NOT EXISTS / ON CONFLICT.
func runMigrations(db *sqlx.DB, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("runMigrations: read dir %q: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("runMigrations: read %q: %w", f, err)
		}
		if _, err = db.Exec(string(data)); err != nil {
			return fmt.Errorf("runMigrations: exec %q: %w", f, err)
		}
		slog.Info("migration applied", "file", filepath.Base(f))
	}
	return nil
}
