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

// Package actions executes resolved workflow actions against an email.
// Categorise and quarantine are fatal on failure: the engine aborts the
// rule's remaining actions and fails the execution. Mark-as-read and
// send-notification are best effort: a failure is recorded in the action
// result but never fails the execution.
package actions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bcem/workflow/internal/metrics"
	"github.com/bcem/workflow/internal/models"
	"github.com/bcem/workflow/internal/queue"
)

// EmailMutator is the email store surface the executor writes through.
type EmailMutator interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.EmailStatus) error
	AssignCategory(ctx context.Context, id, categoryID uuid.UUID) error
}

// CategoryLookup validates category ids before assignment.
type CategoryLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Category, error)
}

// MailboxAPI is the outbound Graph surface. Implemented by graph.Client.
type MailboxAPI interface {
	MarkAsRead(ctx context.Context, tenantAlias, userID, messageID string) error
}

// Notifier enqueues notifications for the notifier worker.
type Notifier interface {
	PublishNotification(ctx context.Context, n *queue.Notification) error
}

// Executor applies workflow actions.
type Executor struct {
	emails     EmailMutator
	categories CategoryLookup
	mailbox    MailboxAPI
	notifier   Notifier

	quarantineEnabled bool
	actionTimeout     time.Duration
}

// Config holds the executor's dependencies and behaviour settings.
type Config struct {
	Emails            EmailMutator
	Categories        CategoryLookup
	Mailbox           MailboxAPI
	Notifier          Notifier
	QuarantineEnabled bool
	ActionTimeout     time.Duration
}

// NewExecutor creates an action executor.
func NewExecutor(cfg Config) *Executor {
	timeout := cfg.ActionTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Executor{
		emails:            cfg.Emails,
		categories:        cfg.Categories,
		mailbox:           cfg.Mailbox,
		notifier:          cfg.Notifier,
		quarantineEnabled: cfg.QuarantineEnabled,
		actionTimeout:     timeout,
	}
}

// Execute applies one action to the email. The returned ActionResult is
// always appended to the execution's audit trail by the caller, success or
// not. A non-nil error marks a fatal failure: the engine stops the rule's
// remaining actions and fails the execution.
func (x *Executor) Execute(ctx context.Context, action models.WorkflowAction, email *models.Email, mailbox *models.Mailbox, ruleName string) (models.ActionResult, error) {
	result, err := x.execute(ctx, action, email, mailbox, ruleName)

	outcome := "ok"
	if !result.Success {
		outcome = "failed"
	}
	metrics.ActionsExecuted.WithLabelValues(string(action.Type), outcome).Inc()

	return result, err
}

func (x *Executor) execute(ctx context.Context, action models.WorkflowAction, email *models.Email, mailbox *models.Mailbox, ruleName string) (models.ActionResult, error) {
	switch action.Type {
	case models.ActionCategorise:
		return x.categorise(ctx, action, email)
	case models.ActionQuarantine:
		return x.quarantine(ctx, email)
	case models.ActionMarkAsRead:
		return x.markAsRead(ctx, email, mailbox)
	case models.ActionSendNotification:
		return x.sendNotification(ctx, action, email, ruleName)
	default:
		// Malformed rule — record and move on rather than crash the pass.
		slog.Warn("unknown action type",
			"email_id", email.ID,
			"action_type", action.Type,
		)
		return models.ActionResult{
			Type:    action.Type,
			Success: false,
			Detail:  fmt.Sprintf("unknown action type %q", action.Type),
		}, nil
	}
}

// categorise assigns a category to the email. Fatal on a missing or unknown
// category id — that is a configuration error the tenant must fix.
func (x *Executor) categorise(ctx context.Context, action models.WorkflowAction, email *models.Email) (models.ActionResult, error) {
	result := models.ActionResult{Type: models.ActionCategorise}

	raw, ok := action.Parameters["category_id"]
	if !ok || raw == "" {
		result.Detail = "missing category_id parameter"
		return result, fmt.Errorf("categorise: missing category_id parameter")
	}

	categoryID, err := uuid.Parse(raw)
	if err != nil {
		result.Detail = fmt.Sprintf("invalid category_id %q", raw)
		return result, fmt.Errorf("categorise: invalid category_id %q: %w", raw, err)
	}

	category, err := x.categories.Get(ctx, categoryID)
	if err != nil {
		result.Detail = "category lookup failed"
		return result, fmt.Errorf("categorise: look up category: %w", err)
	}
	if category == nil {
		result.Detail = fmt.Sprintf("category %s not found", categoryID)
		return result, fmt.Errorf("categorise: category %s not found", categoryID)
	}

	if err := x.emails.AssignCategory(ctx, email.ID, categoryID); err != nil {
		result.Detail = "category assignment failed"
		return result, fmt.Errorf("categorise: assign category: %w", err)
	}

	result.Success = true
	result.Detail = fmt.Sprintf("assigned category %q", category.Name)
	return result, nil
}

// quarantine flags the email. Subsequent rules in the pass still run, but the
// engine suppresses further mailbox-mutating actions for this email.
func (x *Executor) quarantine(ctx context.Context, email *models.Email) (models.ActionResult, error) {
	result := models.ActionResult{Type: models.ActionQuarantine}

	if !x.quarantineEnabled {
		result.Detail = "quarantine disabled by tenant settings"
		slog.Info("quarantine action skipped (disabled)", "email_id", email.ID)
		return result, nil
	}

	if err := x.emails.UpdateStatus(ctx, email.ID, models.EmailQuarantined); err != nil {
		result.Detail = "quarantine update failed"
		return result, fmt.Errorf("quarantine: update status: %w", err)
	}

	email.ProcessingStatus = models.EmailQuarantined
	result.Success = true
	result.Detail = "email quarantined"
	return result, nil
}

// markAsRead calls the mailbox API. Best effort: failures are recorded but
// never fail the execution.
func (x *Executor) markAsRead(ctx context.Context, email *models.Email, mailbox *models.Mailbox) (models.ActionResult, error) {
	result := models.ActionResult{Type: models.ActionMarkAsRead}

	if mailbox == nil {
		result.Detail = "mailbox unknown"
		slog.Warn("mark_as_read skipped: mailbox unknown", "email_id", email.ID)
		return result, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, x.actionTimeout)
	defer cancel()

	if err := x.mailbox.MarkAsRead(callCtx, mailbox.TenantAlias, mailbox.UserID, email.MicrosoftID); err != nil {
		result.Detail = err.Error()
		slog.Warn("mark_as_read failed",
			"email_id", email.ID,
			"error", err,
		)
		return result, nil
	}

	result.Success = true
	result.Detail = "marked read"
	return result, nil
}

// sendNotification enqueues a notification task. Best effort.
func (x *Executor) sendNotification(ctx context.Context, action models.WorkflowAction, email *models.Email, ruleName string) (models.ActionResult, error) {
	result := models.ActionResult{Type: models.ActionSendNotification}

	message := action.Parameters["message"]
	if message == "" {
		message = fmt.Sprintf("Rule %q matched email %q", ruleName, email.Subject)
	}

	callCtx, cancel := context.WithTimeout(ctx, x.actionTimeout)
	defer cancel()

	err := x.notifier.PublishNotification(callCtx, &queue.Notification{
		EmailID:   email.ID.String(),
		MailboxID: email.MailboxID.String(),
		RuleName:  ruleName,
		Subject:   email.Subject,
		Message:   message,
		Severity:  action.Parameters["severity"],
	})
	if err != nil {
		result.Detail = err.Error()
		slog.Warn("send_notification failed",
			"email_id", email.ID,
			"error", err,
		)
		return result, nil
	}

	result.Success = true
	result.Detail = "notification enqueued"
	return result, nil
}
