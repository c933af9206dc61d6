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
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/workflow/internal/models"
)

// Processor runs the workflow pass for one email. Implemented by the engine.
type Processor interface {
	ProcessEmail(ctx context.Context, emailID uuid.UUID) (*models.WorkflowExecution, error)
}

// Deduper suppresses duplicate triggers and releases deliberate re-runs.
// Implemented by dedup.Filter.
type Deduper interface {
	IsNew(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// triggerMessage is the payload ingestion pushes onto the workflow queue.
// Plain UUID strings are also accepted for manual re-runs via redis-cli.
type triggerMessage struct {
	EmailID string `json:"email_id"`
}

// Consumer drains the workflow queue and feeds each email id to the engine.
type Consumer struct {
	rdb       *redis.Client
	queueName string
	processor Processor
	filter    Deduper

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConsumer creates a workflow queue consumer.
func NewConsumer(rdb *redis.Client, queueName string, processor Processor, filter Deduper) *Consumer {
	return &Consumer{
		rdb:       rdb,
		queueName: queueName,
		processor: processor,
		filter:    filter,
	}
}

// Start launches the consume loop in a background goroutine.
func (c *Consumer) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		c.run(loopCtx)
	}()

	slog.Info("workflow queue consumer started", "queue", c.queueName)
}

// Stop shuts down the consume loop and waits for the in-flight email.
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *Consumer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Block up to 5s so shutdown is never far away.
		res, err := c.rdb.BRPop(ctx, 5*time.Second, c.queueName).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("workflow queue pop failed", "error", err)
			time.Sleep(2 * time.Second)
			continue
		}

		// BRPOP returns [queueName, payload]
		if len(res) != 2 {
			continue
		}
		c.handle(ctx, res[1])
	}
}

// handle parses one queue payload and runs the engine for it.
func (c *Consumer) handle(ctx context.Context, payload string) {
	emailID, err := parseTrigger(payload)
	if err != nil {
		slog.Warn("discarding malformed workflow trigger",
			"payload_len", len(payload),
			"error", err,
		)
		return
	}

	// Suppress duplicate triggers (overlapping enqueues, manual re-runs).
	// Advisory only — the ledger's unique index is the real guard.
	if c.filter != nil {
		isNew, err := c.filter.IsNew(ctx, triggerKey(emailID))
		if err != nil {
			slog.Warn("trigger dedup check failed, proceeding", "error", err)
		} else if !isNew {
			slog.Debug("skipping duplicate workflow trigger", "email_id", emailID)
			return
		}
	}

	exec, err := c.processor.ProcessEmail(ctx, emailID)
	if err != nil {
		slog.Error("workflow pass failed",
			"email_id", emailID,
			"error", err,
		)
		return
	}

	slog.Info("workflow pass complete",
		"email_id", emailID,
		"execution_id", exec.ID,
		"status", exec.ExecutionStatus,
		"actions", len(exec.ActionsTaken),
	)
}

// PushTrigger enqueues an email id onto the workflow queue in the same
// format ingestion uses, first clearing the dedup record so a deliberate
// re-run inside the TTL window is not discarded as a duplicate. Used by the
// reprocess tool.
func PushTrigger(ctx context.Context, rdb *redis.Client, filter Deduper, queueName string, emailID uuid.UUID) error {
	if filter != nil {
		if err := filter.Forget(ctx, triggerKey(emailID)); err != nil {
			return fmt.Errorf("clear trigger dedup: %w", err)
		}
	}

	payload, err := json.Marshal(triggerMessage{EmailID: emailID.String()})
	if err != nil {
		return err
	}
	return rdb.LPush(ctx, queueName, string(payload)).Err()
}

// triggerKey is the dedup event id for one email's workflow trigger.
func triggerKey(emailID uuid.UUID) string {
	return "trigger:" + emailID.String()
}

// parseTrigger accepts either a JSON trigger message or a bare UUID string.
func parseTrigger(payload string) (uuid.UUID, error) {
	payload = strings.TrimSpace(payload)

	if strings.HasPrefix(payload, "{") {
		var msg triggerMessage
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			return uuid.Nil, err
		}
		return uuid.Parse(msg.EmailID)
	}

	return uuid.Parse(payload)
}
