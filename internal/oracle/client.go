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

package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bcem/workflow/internal/config"
	"github.com/bcem/workflow/internal/metrics"
	"github.com/bcem/workflow/internal/models"
)

// maxBodyChars caps the email body sent to the oracle. Longer bodies add
// token cost without improving verdicts.
const maxBodyChars = 4000

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	timeout    time.Duration
}

// NewClient creates an oracle client from the oracle config section.
func NewClient(cfg config.OracleConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		timeout:    timeout,
	}
}

const conditionSystemPrompt = `You evaluate whether an email meets a user-defined condition.
Respond with JSON only: {"meets_condition": bool, "confidence": 0..1, "reasoning": "short"}`

const classifySystemPrompt = `You classify an email into exactly one of the given categories.
Respond with JSON only: {"category": "name", "confidence": 0..1, "reasoning": "short"}`

const threatSystemPrompt = `You assess the security risk of an email (phishing, malware, fraud, impersonation).
Respond with JSON only: {"risk_score": 0..100, "threat_level": "low|medium|high|critical",
"recommended_action": "allow|flag|quarantine", "confidence": 0..1, "reasoning": "short"}`

// EvaluateCondition asks the model whether the email meets the condition.
func (c *Client) EvaluateCondition(ctx context.Context, condition string, email *models.Email) (*models.ConditionVerdict, error) {
	user := fmt.Sprintf("Condition: %s\n\n%s", condition, emailPrompt(email))

	var verdict models.ConditionVerdict
	if err := c.complete(ctx, conditionSystemPrompt, user, &verdict); err != nil {
		metrics.OracleRequests.WithLabelValues("evaluate_condition", "error").Inc()
		return nil, fmt.Errorf("evaluate condition: %w", err)
	}
	metrics.OracleRequests.WithLabelValues("evaluate_condition", "ok").Inc()

	slog.Debug("oracle condition verdict",
		"email_id", email.ID,
		"meets_condition", verdict.MeetsCondition,
		"confidence", verdict.Confidence,
	)
	return &verdict, nil
}

// Classify assigns one of the tenant's categories to the email.
func (c *Client) Classify(ctx context.Context, email *models.Email, categories []string) (*models.ClassificationResult, error) {
	user := fmt.Sprintf("Categories: %s\n\n%s", strings.Join(categories, ", "), emailPrompt(email))

	var result models.ClassificationResult
	if err := c.complete(ctx, classifySystemPrompt, user, &result); err != nil {
		metrics.OracleRequests.WithLabelValues("classify", "error").Inc()
		return nil, fmt.Errorf("classify: %w", err)
	}
	metrics.OracleRequests.WithLabelValues("classify", "ok").Inc()

	slog.Debug("oracle classification",
		"email_id", email.ID,
		"category", result.Category,
		"confidence", result.Confidence,
	)
	return &result, nil
}

// AnalyzeThreat scores the email's risk.
func (c *Client) AnalyzeThreat(ctx context.Context, email *models.Email) (*models.ThreatAnalysis, error) {
	var analysis models.ThreatAnalysis
	if err := c.complete(ctx, threatSystemPrompt, emailPrompt(email), &analysis); err != nil {
		metrics.OracleRequests.WithLabelValues("threat_analysis", "error").Inc()
		return nil, fmt.Errorf("analyze threat: %w", err)
	}
	metrics.OracleRequests.WithLabelValues("threat_analysis", "ok").Inc()

	slog.Debug("oracle threat analysis",
		"email_id", email.ID,
		"risk_score", analysis.RiskScore,
		"threat_level", analysis.ThreatLevel,
	)
	return &analysis, nil
}

// chatRequest is the chat completions request body.
type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

// chatResponse is the subset of the chat completions response we read.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// complete sends one chat completion request and decodes the model's JSON
// answer into out. Every call carries its own timeout — the upstream API has
// no intrinsic one.
func (c *Client) complete(ctx context.Context, system, user string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    0,
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("oracle request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		slog.Error("oracle API error", "status", resp.StatusCode, "body", string(body))
		return fmt.Errorf("oracle API returned HTTP %d", resp.StatusCode)
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return fmt.Errorf("decode oracle response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return fmt.Errorf("oracle response has no choices")
	}

	content := strings.TrimSpace(chat.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("decode oracle verdict: %w", err)
	}
	return nil
}

// emailPrompt renders the email fields the oracle needs.
func emailPrompt(email *models.Email) string {
	body := email.BodyContent
	if body == "" {
		body = email.BodyPreview
	}
	if len(body) > maxBodyChars {
		cut := maxBodyChars
		// Back off to a rune start so the cut never splits a UTF-8 sequence.
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut]
	}
	return fmt.Sprintf("Subject: %s\nSender: %s <%s>\nHas attachments: %t\n\n%s",
		email.Subject, email.SenderName, email.SenderEmail, email.HasAttachments, body)
}
