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

// Package store provides Postgres-backed stores for emails, mailboxes,
// categories, workflow rules, and the execution ledger. Rules are read-only
// to the engine; the ledger is append-only and carries the idempotency
// constraint the engine relies on.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/workflow/internal/models"
)

// EmailStore provides read and status-transition operations on emails.
// Rows are inserted by the ingestion service and never deleted here.
type EmailStore struct {
	pool *pgxpool.Pool
}

// NewEmailStore creates an email store backed by the given Postgres pool.
// It ensures the emails table exists on creation.
func NewEmailStore(ctx context.Context, pool *pgxpool.Pool) (*EmailStore, error) {
	s := &EmailStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure email schema: %w", err)
	}
	slog.Info("email store initialised")
	return s, nil
}

func (s *EmailStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS emails (
			id                UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			mailbox_id        UUID NOT NULL,
			microsoft_id      TEXT NOT NULL,
			subject           TEXT DEFAULT '',
			sender_email      TEXT DEFAULT '',
			sender_name       TEXT DEFAULT '',
			body_content      TEXT DEFAULT '',
			body_preview      TEXT DEFAULT '',
			received_at       TIMESTAMPTZ,
			has_attachments   BOOLEAN DEFAULT FALSE,
			category_id       UUID,
			processing_status TEXT DEFAULT 'pending',
			created_at        TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE(mailbox_id, microsoft_id)
		);
		CREATE INDEX IF NOT EXISTS idx_emails_mailbox ON emails(mailbox_id);
		CREATE INDEX IF NOT EXISTS idx_emails_status ON emails(processing_status);
	`)
	return err
}

// Get retrieves a single email by id.
func (s *EmailStore) Get(ctx context.Context, id uuid.UUID) (*models.Email, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, mailbox_id, microsoft_id, subject, sender_email, sender_name,
		       body_content, body_preview, received_at, has_attachments,
		       category_id, processing_status, created_at
		FROM emails
		WHERE id = $1
	`, id)
	return scanEmail(row)
}

// UpdateStatus transitions an email's processing status.
func (s *EmailStore) UpdateStatus(ctx context.Context, id uuid.UUID, status models.EmailStatus) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE emails SET processing_status = $1 WHERE id = $2
	`, string(status), id)
	return err
}

// AssignCategory persists a category assignment from a categorise action.
func (s *EmailStore) AssignCategory(ctx context.Context, id, categoryID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE emails SET category_id = $1 WHERE id = $2
	`, categoryID, id)
	return err
}

// ListByStatusSince returns ids of emails in the given status received within
// the lookback window. Used by the reprocess tool to target failed emails.
func (s *EmailStore) ListByStatusSince(ctx context.Context, status models.EmailStatus, since time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM emails
		WHERE processing_status = $1 AND received_at >= $2
		ORDER BY received_at
		LIMIT $3
	`, string(status), since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// scanEmail scans a single row into an Email.
func scanEmail(row pgx.Row) (*models.Email, error) {
	var e models.Email
	var status string
	err := row.Scan(
		&e.ID, &e.MailboxID, &e.MicrosoftID, &e.Subject, &e.SenderEmail,
		&e.SenderName, &e.BodyContent, &e.BodyPreview, &e.ReceivedAt,
		&e.HasAttachments, &e.CategoryID, &status, &e.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.ProcessingStatus = models.EmailStatus(status)
	return &e, nil
}
