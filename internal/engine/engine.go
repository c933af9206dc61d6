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

// Package engine orchestrates one workflow pass per email: it guards against
// duplicate executions, selects the highest-priority matching rule, executes
// its actions in order, and records one WorkflowExecution in the ledger.
//
// First-match-wins: among active rules sorted by priority descending (ties by
// creation order) the first rule whose conditions all hold is the only rule
// executed for the pass.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bcem/workflow/internal/actions"
	"github.com/bcem/workflow/internal/metrics"
	"github.com/bcem/workflow/internal/models"
	"github.com/bcem/workflow/internal/oracle"
	"github.com/bcem/workflow/internal/rules"
)

// ErrEmailNotFound is returned when the requested email id has no row.
var ErrEmailNotFound = errors.New("email not found")

// EmailSource is the email store surface the engine needs.
type EmailSource interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Email, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.EmailStatus) error
}

// MailboxSource resolves mailbox metadata for outbound actions.
type MailboxSource interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Mailbox, error)
}

// RuleSource lists active rules in evaluation order.
type RuleSource interface {
	ListActiveForMailbox(ctx context.Context, mailboxID uuid.UUID) ([]models.WorkflowRule, error)
}

// CategorySource resolves category names for enrichment.
type CategorySource interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Category, error)
	ListByTenant(ctx context.Context, tenantAlias string) ([]models.Category, error)
}

// Ledger is the execution ledger surface. The Claim/Finish pair implements
// the idempotency contract: at most one non-failed execution per email.
type Ledger interface {
	GetActive(ctx context.Context, emailID uuid.UUID) (*models.WorkflowExecution, error)
	Claim(ctx context.Context, id, emailID, mailboxID uuid.UUID) (bool, error)
	Finish(ctx context.Context, exec *models.WorkflowExecution) error
}

// Engine runs workflow passes. Invocations for different emails are fully
// independent; invocations for the same email are serialised by the ledger's
// conditional insert, not by in-process locking.
type Engine struct {
	emails     EmailSource
	mailboxes  MailboxSource
	rules      RuleSource
	categories CategorySource
	ledger     Ledger
	evaluator  *rules.Evaluator
	executor   *actions.Executor
	oracle     oracle.Oracle
}

// Config holds the engine's dependencies.
type Config struct {
	Emails     EmailSource
	Mailboxes  MailboxSource
	Rules      RuleSource
	Categories CategorySource
	Ledger     Ledger
	Evaluator  *rules.Evaluator
	Executor   *actions.Executor
	Oracle     oracle.Oracle
}

// New creates a workflow engine.
func New(cfg Config) *Engine {
	return &Engine{
		emails:     cfg.Emails,
		mailboxes:  cfg.Mailboxes,
		rules:      cfg.Rules,
		categories: cfg.Categories,
		ledger:     cfg.Ledger,
		evaluator:  cfg.Evaluator,
		executor:   cfg.Executor,
		oracle:     cfg.Oracle,
	}
}

// ProcessEmail runs one workflow pass for the email. The result is always a
// WorkflowExecution — failures inside the pass produce a failed execution,
// not an error. An error return means the pass could not start (store
// unavailable, email unknown) or the outcome could not be persisted.
func (e *Engine) ProcessEmail(ctx context.Context, emailID uuid.UUID) (*models.WorkflowExecution, error) {
	start := time.Now()

	// Idempotency guard: a non-failed execution means this email was already
	// handled (or is being handled right now) — return it unchanged.
	existing, err := e.ledger.GetActive(ctx, emailID)
	if err != nil {
		return nil, fmt.Errorf("check existing execution: %w", err)
	}
	if existing != nil {
		metrics.IdempotentHits.Inc()
		slog.Debug("skipping already-executed email",
			"email_id", emailID,
			"execution_id", existing.ID,
		)
		return existing, nil
	}

	email, err := e.emails.Get(ctx, emailID)
	if err != nil {
		return nil, fmt.Errorf("load email: %w", err)
	}
	if email == nil {
		return nil, fmt.Errorf("email %s: %w", emailID, ErrEmailNotFound)
	}

	// Claim the pass. The conditional insert is atomic at the database, so
	// concurrent invocations on different processes cannot both win.
	execID := uuid.New()
	won, err := e.ledger.Claim(ctx, execID, emailID, email.MailboxID)
	if err != nil {
		return nil, err
	}
	if !won {
		existing, err := e.ledger.GetActive(ctx, emailID)
		if err != nil {
			return nil, fmt.Errorf("load concurrent execution: %w", err)
		}
		if existing != nil {
			metrics.IdempotentHits.Inc()
			return existing, nil
		}
		return nil, fmt.Errorf("execution claim lost for email %s", emailID)
	}

	if err := e.emails.UpdateStatus(ctx, emailID, models.EmailProcessing); err != nil {
		slog.Warn("failed to mark email processing", "email_id", emailID, "error", err)
	}

	exec := &models.WorkflowExecution{
		ID:              execID,
		EmailID:         emailID,
		MailboxID:       email.MailboxID,
		ActionsTaken:    []models.ActionResult{},
		ExecutionStatus: models.ExecutionCompleted,
		CreatedAt:       time.Now().UTC(),
	}

	mailbox, err := e.mailboxes.Get(ctx, email.MailboxID)
	if err != nil {
		// Outbound mailbox actions degrade to failures; the pass continues.
		slog.Warn("mailbox lookup failed", "mailbox_id", email.MailboxID, "error", err)
		mailbox = nil
	}

	finalStatus := e.runPass(ctx, exec, email, mailbox)

	exec.ExecutionTimeMs = time.Since(start).Milliseconds()
	if err := e.ledger.Finish(ctx, exec); err != nil {
		slog.Error("failed to persist execution",
			"email_id", emailID,
			"execution_id", execID,
			"error", err,
		)
		return exec, fmt.Errorf("persist execution: %w", err)
	}

	if err := e.emails.UpdateStatus(ctx, emailID, finalStatus); err != nil {
		slog.Error("failed to update email status",
			"email_id", emailID,
			"status", finalStatus,
			"error", err,
		)
	}

	metrics.EmailsProcessed.WithLabelValues(string(exec.ExecutionStatus)).Inc()
	metrics.PassDuration.Observe(time.Since(start).Seconds())

	slog.Info("workflow execution recorded",
		"email_id", emailID,
		"execution_id", execID,
		"status", exec.ExecutionStatus,
		"rule_id", fmt.Sprintf("%v", exec.RuleID),
		"actions", len(exec.ActionsTaken),
		"elapsed_ms", exec.ExecutionTimeMs,
	)

	return exec, nil
}

// runPass selects and executes the matching rule, filling exec in place, and
// returns the email's final processing status.
func (e *Engine) runPass(ctx context.Context, exec *models.WorkflowExecution, email *models.Email, mailbox *models.Mailbox) models.EmailStatus {
	ruleList, err := e.rules.ListActiveForMailbox(ctx, email.MailboxID)
	if err != nil {
		exec.ExecutionStatus = models.ExecutionFailed
		exec.ErrorMessage = fmt.Sprintf("load rules: %v", err)
		return models.EmailFailed
	}

	enrich := newEnrichment(e.oracle, e.categories, email, mailbox)

	var matched *models.WorkflowRule
	for i := range ruleList {
		if e.evaluator.RuleMatches(ctx, &ruleList[i], email, enrich) {
			matched = &ruleList[i]
			break
		}
	}

	if matched == nil {
		slog.Debug("no rule matched", "email_id", email.ID, "rules_checked", len(ruleList))
		return models.EmailProcessed
	}

	slog.Info("rule matched",
		"email_id", email.ID,
		"rule_id", matched.ID,
		"rule", matched.Name,
		"priority", matched.Priority,
	)
	exec.RuleID = &matched.ID

	quarantined := false
	for _, action := range matched.Actions {
		// A quarantined email takes no further mailbox-mutating side
		// effects within the same pass.
		if quarantined && mutatesMailbox(action.Type) {
			exec.ActionsTaken = append(exec.ActionsTaken, models.ActionResult{
				Type:    action.Type,
				Success: false,
				Detail:  "skipped: email quarantined",
			})
			continue
		}

		result, err := e.executor.Execute(ctx, action, email, mailbox, matched.Name)
		exec.ActionsTaken = append(exec.ActionsTaken, result)

		if action.Type == models.ActionQuarantine && result.Success {
			quarantined = true
		}

		if err != nil {
			// Fatal action failure: stop here, keep the partial audit
			// trail, leave applied side effects as-is.
			exec.ExecutionStatus = models.ExecutionFailed
			exec.ErrorMessage = err.Error()
			return models.EmailFailed
		}
	}

	if quarantined {
		return models.EmailQuarantined
	}
	return models.EmailProcessed
}

// mutatesMailbox reports whether the action touches the external mailbox.
func mutatesMailbox(t models.ActionType) bool {
	return t == models.ActionMarkAsRead
}

// BatchResult summarises a batch invocation. Skipped counts emails never
// attempted because the batch was cancelled.
type BatchResult struct {
	Processed int                         `json:"processed"`
	Failed    int                         `json:"failed"`
	Skipped   int                         `json:"skipped,omitempty"`
	Results   []*models.WorkflowExecution `json:"results"`
}

// ProcessBatch applies ProcessEmail to each email independently. One email's
// failure never aborts the batch; cancellation is honoured between emails,
// never within one email's pass.
func (e *Engine) ProcessBatch(ctx context.Context, emailIDs []uuid.UUID) *BatchResult {
	result := &BatchResult{}

	for i, id := range emailIDs {
		select {
		case <-ctx.Done():
			// Failed attempts carry no Results entry, so count by position.
			result.Skipped = len(emailIDs) - i
			slog.Warn("batch cancelled", "remaining", result.Skipped)
			return result
		default:
		}

		exec, err := e.ProcessEmail(ctx, id)
		if err != nil {
			slog.Error("batch email failed", "email_id", id, "error", err)
			result.Failed++
			continue
		}

		result.Results = append(result.Results, exec)
		if exec.ExecutionStatus == models.ExecutionFailed {
			result.Failed++
		} else {
			result.Processed++
		}
	}

	return result
}
