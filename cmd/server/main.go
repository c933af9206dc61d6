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

// BlackChamber Email Manager — Workflow Service
//
// Entry point for the Go workflow service. It:
//  1. Loads multi-tenant configuration from config.yaml
//  2. Connects to PostgreSQL and Redis
//  3. Builds per-tenant Graph API clients for mailbox actions
//  4. Consumes the workflow queue fed by the ingestion service
//  5. Serves the invocation API (/process, /process/batch, /executions)
//     plus health and metrics endpoints
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/bcem/workflow/internal/actions"
	"github.com/bcem/workflow/internal/config"
	"github.com/bcem/workflow/internal/dedup"
	"github.com/bcem/workflow/internal/engine"
	"github.com/bcem/workflow/internal/graph"
	"github.com/bcem/workflow/internal/oracle"
	"github.com/bcem/workflow/internal/queue"
	"github.com/bcem/workflow/internal/rules"
	"github.com/bcem/workflow/internal/server"
	"github.com/bcem/workflow/internal/store"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting BlackChamber workflow service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"tenants", len(cfg.Tenants),
		"workflow_queue", cfg.WorkflowQueue,
		"oracle_model", cfg.Oracle.Model,
	)

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
	slog.Info("connected to PostgreSQL")

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)

	notifier := queue.NewPublisher(rdb, cfg.NotificationsQueue)
	if err := notifier.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	// --- Trigger Dedup Filter ---
	filter := dedup.NewFilter(rdb)

	// --- Stores (Postgres) ---
	emails, err := store.NewEmailStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise email store", "error", err)
		os.Exit(1)
	}
	mailboxes, err := store.NewMailboxStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise mailbox store", "error", err)
		os.Exit(1)
	}
	categories, err := store.NewCategoryStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise category store", "error", err)
		os.Exit(1)
	}
	ruleStore, err := store.NewRuleStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise rule store", "error", err)
		os.Exit(1)
	}
	ledger, err := store.NewExecutionStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise execution ledger", "error", err)
		os.Exit(1)
	}

	// --- Build OAuth2 clients per tenant ---
	graphClients := make(map[string]*http.Client)
	for _, tenant := range cfg.Tenants {
		if tenant.Provider != "m365" {
			continue
		}

		creds := &clientcredentials.Config{
			ClientID:     tenant.ClientID,
			ClientSecret: tenant.ClientSecret,
			TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenant.TenantID),
			Scopes:       []string{"https://graph.microsoft.com/.default"},
		}
		graphClients[tenant.Alias] = creds.Client(ctx)
	}

	mailboxAPI := graph.NewClient(graphClients, graphBaseURL)

	// --- AI Oracle ---
	if cfg.Oracle.APIKey == "" {
		slog.Warn("no oracle API key configured — AI conditions will fail closed")
	}
	aiOracle := oracle.NewClient(cfg.Oracle)

	// --- Engine ---
	evaluator := rules.NewEvaluator(aiOracle)
	executor := actions.NewExecutor(actions.Config{
		Emails:            emails,
		Categories:        categories,
		Mailbox:           mailboxAPI,
		Notifier:          notifier,
		QuarantineEnabled: cfg.Engine.QuarantineEnabled,
		ActionTimeout:     cfg.Engine.ActionTimeout,
	})
	eng := engine.New(engine.Config{
		Emails:     emails,
		Mailboxes:  mailboxes,
		Rules:      ruleStore,
		Categories: categories,
		Ledger:     ledger,
		Evaluator:  evaluator,
		Executor:   executor,
		Oracle:     aiOracle,
	})

	// --- Workflow Queue Consumer ---
	consumer := queue.NewConsumer(rdb, cfg.WorkflowQueue, eng, filter)
	consumer.Start(ctx)

	// --- Invocation API ---
	health := func(ctx context.Context) error {
		if err := pgPool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres unhealthy: %w", err)
		}
		if err := notifier.Ping(ctx); err != nil {
			return fmt.Errorf("redis unhealthy: %w", err)
		}
		return nil
	}

	handler := server.NewHandler(eng, ledger, cfg.Engine.BatchSize, health)
	ready, err := server.Serve(ctx, cfg.Port, handler)
	if err != nil {
		slog.Error("failed to start invocation server", "error", err)
		os.Exit(1)
	}
	<-ready
	slog.Info("workflow service ready")

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	slog.Info("received shutdown signal", "signal", sig)
	cancel() // Stop the consumer loop and the HTTP server

	consumer.Stop()
	rdb.Close()
	pgPool.Close()

	slog.Info("workflow service stopped")
}
