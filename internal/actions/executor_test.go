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

package actions

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/bcem/workflow/internal/models"
	"github.com/bcem/workflow/internal/queue"
)

type fakeEmails struct {
	statusErr   error
	assignErr   error
	lastStatus  models.EmailStatus
	assignedCat uuid.UUID
}

func (f *fakeEmails) UpdateStatus(_ context.Context, _ uuid.UUID, status models.EmailStatus) error {
	if f.statusErr != nil {
		return f.statusErr
	}
	f.lastStatus = status
	return nil
}

func (f *fakeEmails) AssignCategory(_ context.Context, _, categoryID uuid.UUID) error {
	if f.assignErr != nil {
		return f.assignErr
	}
	f.assignedCat = categoryID
	return nil
}

type fakeCategories struct {
	categories map[uuid.UUID]*models.Category
}

func (f *fakeCategories) Get(_ context.Context, id uuid.UUID) (*models.Category, error) {
	return f.categories[id], nil
}

type fakeMailbox struct {
	err   error
	calls int
}

func (f *fakeMailbox) MarkAsRead(_ context.Context, _, _, _ string) error {
	f.calls++
	return f.err
}

type fakeNotifier struct {
	err  error
	sent []*queue.Notification
}

func (f *fakeNotifier) PublishNotification(_ context.Context, n *queue.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

type fixture struct {
	executor   *Executor
	emails     *fakeEmails
	categories *fakeCategories
	mailbox    *fakeMailbox
	notifier   *fakeNotifier
}

func newFixture(quarantineEnabled bool) *fixture {
	f := &fixture{
		emails:     &fakeEmails{},
		categories: &fakeCategories{categories: make(map[uuid.UUID]*models.Category)},
		mailbox:    &fakeMailbox{},
		notifier:   &fakeNotifier{},
	}
	f.executor = NewExecutor(Config{
		Emails:            f.emails,
		Categories:        f.categories,
		Mailbox:           f.mailbox,
		Notifier:          f.notifier,
		QuarantineEnabled: quarantineEnabled,
	})
	return f
}

func fixtureEmail() *models.Email {
	return &models.Email{
		ID:          uuid.New(),
		MailboxID:   uuid.New(),
		MicrosoftID: "AAMkAGI2",
		Subject:     "Weekly digest",
	}
}

func fixtureMailbox() *models.Mailbox {
	return &models.Mailbox{
		ID:          uuid.New(),
		TenantAlias: "acme",
		UserID:      "user@acme.example",
	}
}

// TestCategorise_Success verifies a valid category id is assigned.
func TestCategorise_Success(t *testing.T) {
	f := newFixture(true)
	catID := uuid.New()
	f.categories.categories[catID] = &models.Category{ID: catID, Name: "Newsletters"}

	action := models.WorkflowAction{
		Type:       models.ActionCategorise,
		Parameters: map[string]string{"category_id": catID.String()},
	}

	result, err := f.executor.Execute(context.Background(), action, fixtureEmail(), nil, "digest filing")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.Success {
		t.Errorf("result = %+v, want success", result)
	}
	if f.emails.assignedCat != catID {
		t.Errorf("assigned category = %s, want %s", f.emails.assignedCat, catID)
	}
	if !strings.Contains(result.Detail, "Newsletters") {
		t.Errorf("detail = %q, want category name", result.Detail)
	}
}

// TestCategorise_FatalFailures verifies configuration errors are fatal.
func TestCategorise_FatalFailures(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]string
		setup  func(*fixture)
	}{
		{
			name:   "missing category_id",
			params: map[string]string{},
		},
		{
			name:   "invalid category_id",
			params: map[string]string{"category_id": "not-a-uuid"},
		},
		{
			name:   "unknown category",
			params: map[string]string{"category_id": uuid.NewString()},
		},
		{
			name:   "assignment error",
			params: nil, // filled in setup
			setup: func(f *fixture) {
				f.emails.assignErr = errors.New("connection reset")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(true)
			params := tt.params
			if tt.setup != nil {
				tt.setup(f)
				catID := uuid.New()
				f.categories.categories[catID] = &models.Category{ID: catID, Name: "Invoices"}
				params = map[string]string{"category_id": catID.String()}
			}

			action := models.WorkflowAction{Type: models.ActionCategorise, Parameters: params}
			result, err := f.executor.Execute(context.Background(), action, fixtureEmail(), nil, "r")
			if err == nil {
				t.Fatal("expected fatal error")
			}
			if result.Success {
				t.Errorf("result = %+v, want failure", result)
			}
			if result.Detail == "" {
				t.Error("expected failure detail in audit result")
			}
		})
	}
}

// TestQuarantine verifies the enabled and disabled paths.
func TestQuarantine(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		f := newFixture(true)
		email := fixtureEmail()

		action := models.WorkflowAction{Type: models.ActionQuarantine}
		result, err := f.executor.Execute(context.Background(), action, email, nil, "r")
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if !result.Success {
			t.Errorf("result = %+v, want success", result)
		}
		if f.emails.lastStatus != models.EmailQuarantined {
			t.Errorf("email status = %s, want %s", f.emails.lastStatus, models.EmailQuarantined)
		}
		if email.ProcessingStatus != models.EmailQuarantined {
			t.Error("in-memory email not marked quarantined")
		}
	})

	t.Run("disabled is a recorded no-op", func(t *testing.T) {
		f := newFixture(false)

		action := models.WorkflowAction{Type: models.ActionQuarantine}
		result, err := f.executor.Execute(context.Background(), action, fixtureEmail(), nil, "r")
		if err != nil {
			t.Fatalf("Execute() error = %v (disabled quarantine must not be fatal)", err)
		}
		if result.Success {
			t.Errorf("result = %+v, want unsuccessful no-op", result)
		}
		if !strings.Contains(result.Detail, "disabled") {
			t.Errorf("detail = %q, want disabled note", result.Detail)
		}
	})

	t.Run("store failure is fatal", func(t *testing.T) {
		f := newFixture(true)
		f.emails.statusErr = errors.New("connection reset")

		action := models.WorkflowAction{Type: models.ActionQuarantine}
		_, err := f.executor.Execute(context.Background(), action, fixtureEmail(), nil, "r")
		if err == nil {
			t.Fatal("expected fatal error when the status update fails")
		}
	})
}

// TestMarkAsRead verifies best-effort semantics.
func TestMarkAsRead(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := newFixture(true)

		action := models.WorkflowAction{Type: models.ActionMarkAsRead}
		result, err := f.executor.Execute(context.Background(), action, fixtureEmail(), fixtureMailbox(), "r")
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if !result.Success {
			t.Errorf("result = %+v, want success", result)
		}
		if f.mailbox.calls != 1 {
			t.Errorf("mailbox calls = %d, want 1", f.mailbox.calls)
		}
	})

	t.Run("api failure is non-fatal", func(t *testing.T) {
		f := newFixture(true)
		f.mailbox.err = errors.New("graph: 503 service unavailable")

		action := models.WorkflowAction{Type: models.ActionMarkAsRead}
		result, err := f.executor.Execute(context.Background(), action, fixtureEmail(), fixtureMailbox(), "r")
		if err != nil {
			t.Fatalf("Execute() error = %v (mark_as_read must not be fatal)", err)
		}
		if result.Success {
			t.Errorf("result = %+v, want failure recorded", result)
		}
	})

	t.Run("nil mailbox is non-fatal", func(t *testing.T) {
		f := newFixture(true)

		action := models.WorkflowAction{Type: models.ActionMarkAsRead}
		result, err := f.executor.Execute(context.Background(), action, fixtureEmail(), nil, "r")
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if result.Success {
			t.Errorf("result = %+v, want failure recorded", result)
		}
		if f.mailbox.calls != 0 {
			t.Errorf("mailbox calls = %d, want 0", f.mailbox.calls)
		}
	})
}

// TestSendNotification verifies payload construction and best-effort
// semantics.
func TestSendNotification(t *testing.T) {
	t.Run("default message", func(t *testing.T) {
		f := newFixture(true)
		email := fixtureEmail()

		action := models.WorkflowAction{Type: models.ActionSendNotification}
		result, err := f.executor.Execute(context.Background(), action, email, nil, "vip sender")
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if !result.Success {
			t.Fatalf("result = %+v, want success", result)
		}
		if len(f.notifier.sent) != 1 {
			t.Fatalf("notifications sent = %d, want 1", len(f.notifier.sent))
		}

		n := f.notifier.sent[0]
		if n.RuleName != "vip sender" {
			t.Errorf("rule name = %q, want %q", n.RuleName, "vip sender")
		}
		if !strings.Contains(n.Message, "vip sender") || !strings.Contains(n.Message, email.Subject) {
			t.Errorf("default message = %q, want rule name and subject", n.Message)
		}
	})

	t.Run("custom message and severity", func(t *testing.T) {
		f := newFixture(true)

		action := models.WorkflowAction{
			Type: models.ActionSendNotification,
			Parameters: map[string]string{
				"message":  "Escalate to SOC",
				"severity": "high",
			},
		}
		if _, err := f.executor.Execute(context.Background(), action, fixtureEmail(), nil, "r"); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}

		n := f.notifier.sent[0]
		if n.Message != "Escalate to SOC" || n.Severity != "high" {
			t.Errorf("notification = %+v, want custom message and severity", n)
		}
	})

	t.Run("publish failure is non-fatal", func(t *testing.T) {
		f := newFixture(true)
		f.notifier.err = errors.New("redis down")

		action := models.WorkflowAction{Type: models.ActionSendNotification}
		result, err := f.executor.Execute(context.Background(), action, fixtureEmail(), nil, "r")
		if err != nil {
			t.Fatalf("Execute() error = %v (send_notification must not be fatal)", err)
		}
		if result.Success {
			t.Errorf("result = %+v, want failure recorded", result)
		}
	})
}

// TestUnknownActionType verifies malformed rules are recorded, not fatal.
func TestUnknownActionType(t *testing.T) {
	f := newFixture(true)

	action := models.WorkflowAction{Type: "forward_to_legal"}
	result, err := f.executor.Execute(context.Background(), action, fixtureEmail(), nil, "r")
	if err != nil {
		t.Fatalf("Execute() error = %v (unknown types must not be fatal)", err)
	}
	if result.Success {
		t.Errorf("result = %+v, want failure recorded", result)
	}
	if !strings.Contains(result.Detail, "forward_to_legal") {
		t.Errorf("detail = %q, want unknown type named", result.Detail)
	}
}
