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

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/workflow/internal/models"
)

// RuleStore provides read access to workflow rules. Rules are created and
// edited through the dashboard; the engine only ever reads them.
type RuleStore struct {
	pool *pgxpool.Pool
}

// NewRuleStore creates a rule store backed by the given Postgres pool.
// It ensures the workflow_rules table exists on creation.
func NewRuleStore(ctx context.Context, pool *pgxpool.Pool) (*RuleStore, error) {
	s := &RuleStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure rule schema: %w", err)
	}
	slog.Info("rule store initialised")
	return s, nil
}

func (s *RuleStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS workflow_rules (
			id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			mailbox_id UUID,
			name       TEXT NOT NULL,
			priority   INTEGER DEFAULT 0,
			is_active  BOOLEAN DEFAULT TRUE,
			conditions JSONB NOT NULL DEFAULT '[]',
			actions    JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_rules_mailbox ON workflow_rules(mailbox_id);
		CREATE INDEX IF NOT EXISTS idx_rules_active ON workflow_rules(is_active);
	`)
	return err
}

// ListActiveForMailbox returns active rules scoped to the given mailbox or
// globally scoped (mailbox_id IS NULL), sorted by priority descending with
// ties broken by creation order. This is the evaluation order the engine
// iterates in.
func (s *RuleStore) ListActiveForMailbox(ctx context.Context, mailboxID uuid.UUID) ([]models.WorkflowRule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, mailbox_id, name, priority, is_active, conditions, actions, created_at
		FROM workflow_rules
		WHERE is_active AND (mailbox_id = $1 OR mailbox_id IS NULL)
		ORDER BY priority DESC, created_at ASC
	`, mailboxID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []models.WorkflowRule
	for rows.Next() {
		var r models.WorkflowRule
		var conditions, actions []byte
		if err := rows.Scan(
			&r.ID, &r.MailboxID, &r.Name, &r.Priority, &r.IsActive,
			&conditions, &actions, &r.CreatedAt,
		); err != nil {
			return nil, err
		}

		// A rule with malformed JSON must not break the whole fetch —
		// skip it and log the anomaly.
		if err := json.Unmarshal(conditions, &r.Conditions); err != nil {
			slog.Warn("skipping rule with malformed conditions",
				"rule_id", r.ID,
				"rule", r.Name,
				"error", err,
			)
			continue
		}
		if err := json.Unmarshal(actions, &r.Actions); err != nil {
			slog.Warn("skipping rule with malformed actions",
				"rule_id", r.ID,
				"rule", r.Name,
				"error", err,
			)
			continue
		}

		rules = append(rules, r)
	}
	return rules, rows.Err()
}
