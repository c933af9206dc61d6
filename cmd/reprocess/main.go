// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// BlackChamber Email Manager — Reprocess Command
//
// Standalone CLI tool that re-enqueues failed emails for another workflow
// pass and releases stale execution claims left behind by crashed workers.
// Failed executions are superseded by a later completed one, so re-running
// is always safe under the ledger's idempotency guard.
//
// Usage:
//
//	go run ./cmd/reprocess/ [--since 168h] [--limit 500] [--release-stale 1h] [--dry-run]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/workflow/internal/config"
	"github.com/bcem/workflow/internal/dedup"
	"github.com/bcem/workflow/internal/models"
	"github.com/bcem/workflow/internal/queue"
	"github.com/bcem/workflow/internal/store"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	sinceFlag := flag.String("since", "168h", "Lookback duration for failed emails (e.g. 168h for 1 week)")
	limitFlag := flag.Int("limit", 500, "Maximum number of emails to re-enqueue")
	staleFlag := flag.String("release-stale", "1h", "Fail pending execution claims older than this (0 to skip)")
	dryRunFlag := flag.Bool("dry-run", false, "Report what would be re-enqueued without touching the queue")
	flag.Parse()

	sinceDuration, err := time.ParseDuration(*sinceFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid --since duration %q: %v\n", *sinceFlag, err)
		os.Exit(1)
	}

	staleDuration, err := time.ParseDuration(*staleFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid --release-stale duration %q: %v\n", *staleFlag, err)
		os.Exit(1)
	}

	slog.Info("starting reprocess run",
		"since", sinceDuration,
		"limit", *limitFlag,
		"release_stale", staleDuration,
		"dry_run", *dryRunFlag,
	)

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}

	emails, err := store.NewEmailStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise email store", "error", err)
		os.Exit(1)
	}
	ledger, err := store.NewExecutionStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise execution ledger", "error", err)
		os.Exit(1)
	}

	// --- Release stale claims ---
	if staleDuration > 0 && !*dryRunFlag {
		released, err := ledger.ReleaseStale(ctx, staleDuration)
		if err != nil {
			slog.Error("failed to release stale claims", "error", err)
			os.Exit(1)
		}
		slog.Info("stale execution claims released", "count", released)
	}

	// --- Find failed emails ---
	ids, err := emails.ListByStatusSince(ctx, models.EmailFailed, time.Now().UTC().Add(-sinceDuration), *limitFlag)
	if err != nil {
		slog.Error("failed to list failed emails", "error", err)
		os.Exit(1)
	}

	if len(ids) == 0 {
		slog.Info("no failed emails in window — nothing to do")
		return
	}

	if *dryRunFlag {
		slog.Info("dry run — would re-enqueue", "count", len(ids))
		for _, id := range ids {
			slog.Info("would re-enqueue", "email_id", id)
		}
		return
	}

	// --- Connect to Redis and re-enqueue ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	// Clearing the trigger dedup record on push keeps a re-run inside the
	// filter's TTL window from being discarded as a duplicate.
	filter := dedup.NewFilter(rdb)

	enqueued, failed := 0, 0
	for _, id := range ids {
		if err := queue.PushTrigger(ctx, rdb, filter, cfg.WorkflowQueue, id); err != nil {
			slog.Error("failed to enqueue email", "email_id", id, "error", err)
			failed++
			continue
		}
		enqueued++
	}

	// --- Summary ---
	slog.Info("reprocess run complete",
		"enqueued", enqueued,
		"failed", failed,
		"queue", cfg.WorkflowQueue,
	)
}
