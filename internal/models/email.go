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

// Package models defines the data structures shared across the workflow service.
package models

import (
	"time"

	"github.com/google/uuid"
)

// EmailStatus is the processing lifecycle state of an email.
type EmailStatus string

const (
	EmailPending     EmailStatus = "pending"
	EmailProcessing  EmailStatus = "processing"
	EmailProcessed   EmailStatus = "processed"
	EmailFailed      EmailStatus = "failed"
	EmailQuarantined EmailStatus = "quarantined"
)

// Email represents one ingested inbound message. Rows are created by the
// ingestion service; the workflow engine only transitions processing_status
// and assigns categories — it never deletes.
type Email struct {
	ID               uuid.UUID   `json:"id"`
	MailboxID        uuid.UUID   `json:"mailbox_id"`
	MicrosoftID      string      `json:"microsoft_id"`
	Subject          string      `json:"subject"`
	SenderEmail      string      `json:"sender_email"`
	SenderName       string      `json:"sender_name,omitempty"`
	BodyContent      string      `json:"body_content,omitempty"`
	BodyPreview      string      `json:"body_preview,omitempty"`
	ReceivedAt       time.Time   `json:"received_at"`
	HasAttachments   bool        `json:"has_attachments"`
	CategoryID       *uuid.UUID  `json:"category_id,omitempty"`
	ProcessingStatus EmailStatus `json:"processing_status"`
	CreatedAt        time.Time   `json:"created_at"`
}

// Mailbox represents a connected Microsoft 365 mailbox. The tenant alias and
// Graph user id are needed for outbound mailbox actions (mark read, reply).
type Mailbox struct {
	ID          uuid.UUID `json:"id"`
	TenantAlias string    `json:"tenant_alias"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
}

// Category is a tenant-scoped label that the categorise action assigns.
type Category struct {
	ID          uuid.UUID `json:"id"`
	TenantAlias string    `json:"tenant_alias"`
	Name        string    `json:"name"`
	Color       string    `json:"color,omitempty"`
}
