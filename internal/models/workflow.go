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

package models

import (
	"time"

	"github.com/google/uuid"
)

// Field names a condition can test against.
type Field string

const (
	FieldSubject        Field = "subject"
	FieldSenderEmail    Field = "sender_email"
	FieldBodyContent    Field = "body_content"
	FieldHasAttachments Field = "has_attachments"
	FieldRiskScore      Field = "risk_score"
	FieldCategory       Field = "category"
	FieldAIAnalysis     Field = "ai_analysis"
)

// Operator is a condition comparator.
type Operator string

const (
	OpContains    Operator = "contains"
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpAICondition Operator = "ai_condition"
)

// ActionType names an action the engine can execute.
type ActionType string

const (
	ActionCategorise       ActionType = "categorise"
	ActionQuarantine       ActionType = "quarantine"
	ActionMarkAsRead       ActionType = "mark_as_read"
	ActionSendNotification ActionType = "send_notification"
)

// WorkflowCondition is one test within a rule. For field conditions, Value is
// compared against the named field. For AI conditions (field = "ai_analysis",
// operator = "ai_condition"), Value is a natural-language description sent to
// the AI oracle.
type WorkflowCondition struct {
	Field         Field    `json:"field"`
	Operator      Operator `json:"operator"`
	Value         string   `json:"value"`
	CaseSensitive bool     `json:"case_sensitive,omitempty"`
}

// WorkflowAction is one action within a rule, with optional parameters
// (e.g. category_id for categorise).
type WorkflowAction struct {
	Type       ActionType        `json:"type"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// WorkflowRule is a named automation unit. Conditions combine with AND
// semantics; actions execute in declared order. MailboxID nil means the rule
// applies to every mailbox of the tenant.
type WorkflowRule struct {
	ID         uuid.UUID           `json:"id"`
	MailboxID  *uuid.UUID          `json:"mailbox_id,omitempty"`
	Name       string              `json:"name"`
	Priority   int                 `json:"priority"`
	IsActive   bool                `json:"is_active"`
	Conditions []WorkflowCondition `json:"conditions"`
	Actions    []WorkflowAction    `json:"actions"`
	CreatedAt  time.Time           `json:"created_at"`
}

// ExecutionStatus is the lifecycle state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// ActionResult records one action attempt, successful or not.
type ActionResult struct {
	Type    ActionType `json:"type"`
	Success bool       `json:"success"`
	Detail  string     `json:"detail,omitempty"`
}

// WorkflowExecution is the audit record of one engine pass over one email.
// RuleID nil means no rule matched. The ledger allows at most one non-failed
// execution per email — that constraint is the engine's idempotency contract.
type WorkflowExecution struct {
	ID              uuid.UUID       `json:"id"`
	EmailID         uuid.UUID       `json:"email_id"`
	MailboxID       uuid.UUID       `json:"mailbox_id"`
	RuleID          *uuid.UUID      `json:"rule_id,omitempty"`
	ExecutionStatus ExecutionStatus `json:"execution_status"`
	ActionsTaken    []ActionResult  `json:"actions_taken"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
	CreatedAt       time.Time       `json:"created_at"`
}
