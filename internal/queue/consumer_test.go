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

package queue

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/bcem/workflow/internal/models"
)

// TestParseTrigger covers both payload shapes the queue accepts.
func TestParseTrigger(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name    string
		payload string
		want    uuid.UUID
		wantErr bool
	}{
		{
			name:    "json trigger",
			payload: fmt.Sprintf(`{"email_id": %q}`, id),
			want:    id,
		},
		{
			name:    "bare uuid",
			payload: id.String(),
			want:    id,
		},
		{
			name:    "bare uuid with whitespace",
			payload: "  " + id.String() + "\n",
			want:    id,
		},
		{
			name:    "json with invalid id",
			payload: `{"email_id": "not-a-uuid"}`,
			wantErr: true,
		},
		{
			name:    "json missing email_id",
			payload: `{"message_id": "123"}`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			payload: `{"email_id":`,
			wantErr: true,
		},
		{
			name:    "garbage",
			payload: "hello world",
			wantErr: true,
		},
		{
			name:    "empty",
			payload: "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTrigger(tt.payload)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseTrigger(%q) = %s, want error", tt.payload, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseTrigger(%q) error = %v", tt.payload, err)
			}
			if got != tt.want {
				t.Errorf("parseTrigger(%q) = %s, want %s", tt.payload, got, tt.want)
			}
		})
	}
}

// fakeFilter is an in-memory Deduper.
type fakeFilter struct {
	seen map[string]bool
	err  error
}

func newFakeFilter() *fakeFilter {
	return &fakeFilter{seen: make(map[string]bool)}
}

func (f *fakeFilter) IsNew(_ context.Context, eventID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen[eventID] {
		return false, nil
	}
	f.seen[eventID] = true
	return true, nil
}

func (f *fakeFilter) Forget(_ context.Context, eventID string) error {
	if f.err != nil {
		return f.err
	}
	delete(f.seen, eventID)
	return nil
}

type recordingProcessor struct {
	processed []uuid.UUID
	err       error
}

func (r *recordingProcessor) ProcessEmail(_ context.Context, emailID uuid.UUID) (*models.WorkflowExecution, error) {
	r.processed = append(r.processed, emailID)
	if r.err != nil {
		return nil, r.err
	}
	return &models.WorkflowExecution{
		ID:              uuid.New(),
		EmailID:         emailID,
		ExecutionStatus: models.ExecutionCompleted,
	}, nil
}

// TestHandle verifies payload dispatch to the processor.
func TestHandle(t *testing.T) {
	t.Run("valid trigger reaches processor", func(t *testing.T) {
		p := &recordingProcessor{}
		c := NewConsumer(nil, "workflow", p, nil)

		id := uuid.New()
		c.handle(context.Background(), id.String())

		if len(p.processed) != 1 || p.processed[0] != id {
			t.Errorf("processed = %v, want [%s]", p.processed, id)
		}
	})

	t.Run("malformed trigger is discarded", func(t *testing.T) {
		p := &recordingProcessor{}
		c := NewConsumer(nil, "workflow", p, nil)

		c.handle(context.Background(), "not a trigger")

		if len(p.processed) != 0 {
			t.Errorf("processed = %v, want none", p.processed)
		}
	})

	t.Run("processor error does not panic", func(t *testing.T) {
		p := &recordingProcessor{err: fmt.Errorf("pass failed")}
		c := NewConsumer(nil, "workflow", p, nil)

		c.handle(context.Background(), uuid.NewString())

		if len(p.processed) != 1 {
			t.Errorf("processed = %v, want one attempt", p.processed)
		}
	})
}

// TestHandle_DuplicateSuppression verifies the filter drops a repeated
// trigger but a cleared record lets a deliberate re-run through.
func TestHandle_DuplicateSuppression(t *testing.T) {
	p := &recordingProcessor{}
	filter := newFakeFilter()
	c := NewConsumer(nil, "workflow", p, filter)

	id := uuid.New()

	c.handle(context.Background(), id.String())
	if len(p.processed) != 1 {
		t.Fatalf("processed = %d, want 1 after first trigger", len(p.processed))
	}

	// Same trigger again within the dedup window: dropped.
	c.handle(context.Background(), id.String())
	if len(p.processed) != 1 {
		t.Fatalf("processed = %d, want duplicate trigger suppressed", len(p.processed))
	}

	// A re-enqueue after a failed pass clears the record first, exactly what
	// PushTrigger does, so the retry must reach the engine.
	if err := filter.Forget(context.Background(), triggerKey(id)); err != nil {
		t.Fatalf("Forget() error = %v", err)
	}
	c.handle(context.Background(), id.String())
	if len(p.processed) != 2 {
		t.Errorf("processed = %d, want retry to reach the processor", len(p.processed))
	}
}

// TestHandle_FilterErrorProceeds verifies a broken dedup store never blocks
// processing — the ledger's unique constraint is the real guard.
func TestHandle_FilterErrorProceeds(t *testing.T) {
	p := &recordingProcessor{}
	filter := &fakeFilter{err: fmt.Errorf("redis down")}
	c := NewConsumer(nil, "workflow", p, filter)

	c.handle(context.Background(), uuid.NewString())

	if len(p.processed) != 1 {
		t.Errorf("processed = %d, want trigger handled despite filter error", len(p.processed))
	}
}
