// Package main is a one-shot operational tool that reclaims stale pool
// claims and prints pool occupancy. Intended for cron or manual use when the
// server's own sweep loop is not running.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/virelabs/launchpad/internal/config"
	"github.com/virelabs/launchpad/internal/repository"
	"github.com/virelabs/launchpad/internal/service"
)

func main() {
	olderThan := flag.Duration("older-than", 0, "reclaim claims older than this; defaults to POOL_STALE_THRESHOLD")
	timeout := flag.Duration("timeout", 30*time.Second, "overall run timeout")
	flag.Parse()

	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	threshold := cfg.Pool.StaleThreshold
	if *olderThan > 0 {
		threshold = *olderThan
	}

	db, err := sqlx.Connect("postgres", cfg.DB.DSN)
	if err != nil {
		logger.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	poolSvc := service.NewPoolService(repository.NewPoolRepository(db), logger)

	freed, err := poolSvc.SweepStale(ctx, threshold)
	if err != nil {
		logger.Error("sweep failed", "err", err)
		os.Exit(1)
	}

	stats, err := poolSvc.Stats(ctx)
	if err != nil {
		logger.Error("stats read failed", "err", err)
		os.Exit(1)
	}

	logger.Info("sweep finished",
		"older_than", threshold, "reclaimed", freed,
		"available", stats.Available, "claimed", stats.Claimed,
		"depleted", stats.Depleted, "errored", stats.Errored)
}
