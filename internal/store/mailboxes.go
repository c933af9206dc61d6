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
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/workflow/internal/models"
)

// MailboxStore resolves mailbox ids to their Graph tenant and user so the
// action executor can address outbound mailbox calls.
type MailboxStore struct {
	pool *pgxpool.Pool
}

// NewMailboxStore creates a mailbox store backed by the given Postgres pool.
func NewMailboxStore(ctx context.Context, pool *pgxpool.Pool) (*MailboxStore, error) {
	s := &MailboxStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure mailbox schema: %w", err)
	}
	return s, nil
}

func (s *MailboxStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS mailboxes (
			id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			tenant_alias TEXT NOT NULL,
			user_id      TEXT NOT NULL,
			display_name TEXT DEFAULT '',
			UNIQUE(tenant_alias, user_id)
		);
	`)
	return err
}

// Get retrieves a single mailbox by id.
func (s *MailboxStore) Get(ctx context.Context, id uuid.UUID) (*models.Mailbox, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_alias, user_id, display_name
		FROM mailboxes
		WHERE id = $1
	`, id)

	var m models.Mailbox
	err := row.Scan(&m.ID, &m.TenantAlias, &m.UserID, &m.DisplayName)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
