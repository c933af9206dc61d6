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

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/workflow/internal/models"
)

// ExecutionStore is the append-only execution ledger. A partial unique index
// on email_id over non-failed rows enforces at most one pending-or-completed
// execution per email, which makes the engine's idempotency guard hold across
// concurrent processes without in-process locking.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates an execution ledger backed by the given Postgres
// pool. It ensures the workflow_executions table and its idempotency index
// exist on creation.
func NewExecutionStore(ctx context.Context, pool *pgxpool.Pool) (*ExecutionStore, error) {
	s := &ExecutionStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure execution schema: %w", err)
	}
	slog.Info("execution ledger initialised")
	return s, nil
}

func (s *ExecutionStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS workflow_executions (
			id                UUID PRIMARY KEY,
			email_id          UUID NOT NULL,
			mailbox_id        UUID NOT NULL,
			rule_id           UUID,
			execution_status  TEXT NOT NULL DEFAULT 'pending',
			actions_taken     JSONB NOT NULL DEFAULT '[]',
			error_message     TEXT DEFAULT '',
			execution_time_ms BIGINT DEFAULT 0,
			created_at        TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_exec_email ON workflow_executions(email_id);
		CREATE INDEX IF NOT EXISTS idx_exec_mailbox ON workflow_executions(mailbox_id);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_exec_email_active
			ON workflow_executions(email_id)
			WHERE execution_status <> 'failed';
	`)
	return err
}

// GetActive returns the non-failed execution for an email, if any.
func (s *ExecutionStore) GetActive(ctx context.Context, emailID uuid.UUID) (*models.WorkflowExecution, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, email_id, mailbox_id, rule_id, execution_status,
		       actions_taken, error_message, execution_time_ms, created_at
		FROM workflow_executions
		WHERE email_id = $1 AND execution_status <> 'failed'
	`, emailID)
	return scanExecution(row)
}

// Claim attempts to insert a pending execution row for the email. It returns
// true if this invocation won the claim, false if a non-failed execution
// already exists (either completed earlier or pending in a concurrent
// invocation). The conditional insert rides on the partial unique index, so
// the check-and-set is atomic at the database.
func (s *ExecutionStore) Claim(ctx context.Context, id, emailID, mailboxID uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO workflow_executions (id, email_id, mailbox_id, execution_status)
		VALUES ($1, $2, $3, 'pending')
		ON CONFLICT (email_id) WHERE execution_status <> 'failed' DO NOTHING
	`, id, emailID, mailboxID)
	if err != nil {
		return false, fmt.Errorf("claim execution: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Finish records the outcome of a claimed execution.
func (s *ExecutionStore) Finish(ctx context.Context, exec *models.WorkflowExecution) error {
	actions := exec.ActionsTaken
	if actions == nil {
		actions = []models.ActionResult{}
	}
	actionsJSON, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("marshal actions taken: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE workflow_executions
		SET rule_id = $1, execution_status = $2, actions_taken = $3,
		    error_message = $4, execution_time_ms = $5
		WHERE id = $6
	`, exec.RuleID, string(exec.ExecutionStatus), actionsJSON,
		exec.ErrorMessage, exec.ExecutionTimeMs, exec.ID)
	if err != nil {
		return fmt.Errorf("finish execution: %w", err)
	}
	return nil
}

// ListByEmail returns all executions for an email, newest first. Read by the
// dashboard's activity views.
func (s *ExecutionStore) ListByEmail(ctx context.Context, emailID uuid.UUID) ([]models.WorkflowExecution, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, email_id, mailbox_id, rule_id, execution_status,
		       actions_taken, error_message, execution_time_ms, created_at
		FROM workflow_executions
		WHERE email_id = $1
		ORDER BY created_at DESC
	`, emailID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []models.WorkflowExecution
	for rows.Next() {
		exec, err := scanExecutionRow(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, *exec)
	}
	return execs, rows.Err()
}

// ReleaseStale fails pending executions older than the cutoff. A pending row
// whose process crashed would otherwise block the email forever; failing it
// makes the email claimable again. Used by the reprocess tool.
func (s *ExecutionStore) ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE workflow_executions
		SET execution_status = 'failed', error_message = 'execution claim expired'
		WHERE execution_status = 'pending' AND created_at < NOW() - $1::interval
	`, fmt.Sprintf("%d seconds", int(olderThan.Seconds())))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// scanExecution scans a single row into a WorkflowExecution.
func scanExecution(row pgx.Row) (*models.WorkflowExecution, error) {
	return scanExecutionRow(row)
}

func scanExecutionRow(row pgx.Row) (*models.WorkflowExecution, error) {
	var exec models.WorkflowExecution
	var status string
	var actions []byte
	err := row.Scan(
		&exec.ID, &exec.EmailID, &exec.MailboxID, &exec.RuleID, &status,
		&actions, &exec.ErrorMessage, &exec.ExecutionTimeMs, &exec.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	exec.ExecutionStatus = models.ExecutionStatus(status)
	if err := json.Unmarshal(actions, &exec.ActionsTaken); err != nil {
		return nil, fmt.Errorf("decode actions taken: %w", err)
	}
	return &exec, nil
}
