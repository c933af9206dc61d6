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

// Package oracle provides the AI oracle adapter: natural-language condition
// evaluation, category classification, and threat scoring over an
// OpenAI-compatible chat completions API. The oracle is consulted as an
// opaque scoring service; callers treat every failure as "condition not met"
// rather than letting it corrupt engine control flow.
package oracle

import (
	"context"

	"github.com/bcem/workflow/internal/models"
)

// Oracle is the interface the condition evaluator and engine consume.
// Tests substitute a deterministic stub without network calls.
type Oracle interface {
	// EvaluateCondition asks whether the email meets a natural-language
	// condition description.
	EvaluateCondition(ctx context.Context, condition string, email *models.Email) (*models.ConditionVerdict, error)

	// Classify assigns the email one of the tenant's category names.
	Classify(ctx context.Context, email *models.Email, categories []string) (*models.ClassificationResult, error)

	// AnalyzeThreat scores the email's risk on a 0-100 scale.
	AnalyzeThreat(ctx context.Context, email *models.Email) (*models.ThreatAnalysis, error)
}
