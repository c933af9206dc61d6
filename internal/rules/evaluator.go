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

// Package rules evaluates workflow conditions against emails. Deterministic
// field conditions are resolved locally; natural-language conditions go to
// the AI oracle. Every evaluation failure — network error, malformed verdict,
// unknown operator, non-numeric input to a numeric comparator — fails closed:
// the condition is treated as not met and the anomaly is logged, so one
// broken condition can never corrupt the engine's control flow.
package rules

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bcem/workflow/internal/models"
	"github.com/bcem/workflow/internal/oracle"
)

// Enrichment supplies per-pass computed inputs to conditions: the oracle's
// risk score and the email's category name. The second return is false when
// the value is unavailable (oracle failure, no category) — conditions on it
// then fail closed.
type Enrichment interface {
	RiskScore(ctx context.Context) (float64, bool)
	Category(ctx context.Context) (string, bool)
}

// Evaluator tests rule conditions against one email.
type Evaluator struct {
	oracle oracle.Oracle
}

// NewEvaluator creates a condition evaluator backed by the given oracle.
func NewEvaluator(o oracle.Oracle) *Evaluator {
	return &Evaluator{oracle: o}
}

// RuleMatches reports whether every condition of the rule matches the email.
// Conditions combine with AND semantics; a rule with no conditions matches.
func (e *Evaluator) RuleMatches(ctx context.Context, rule *models.WorkflowRule, email *models.Email, enrich Enrichment) bool {
	for i := range rule.Conditions {
		if !e.Evaluate(ctx, &rule.Conditions[i], email, enrich) {
			return false
		}
	}
	return true
}

// Evaluate tests a single condition against the email.
func (e *Evaluator) Evaluate(ctx context.Context, cond *models.WorkflowCondition, email *models.Email, enrich Enrichment) bool {
	if cond.Operator == models.OpAICondition || cond.Field == models.FieldAIAnalysis {
		return e.evaluateAI(ctx, cond, email)
	}

	switch cond.Field {
	case models.FieldSubject:
		return compareStrings(email.Subject, cond.Operator, cond.Value, cond.CaseSensitive)
	case models.FieldSenderEmail:
		return compareStrings(email.SenderEmail, cond.Operator, cond.Value, cond.CaseSensitive)
	case models.FieldBodyContent:
		return compareStrings(email.BodyContent, cond.Operator, cond.Value, cond.CaseSensitive)
	case models.FieldHasAttachments:
		return compareBool(email.HasAttachments, cond.Operator, cond.Value)
	case models.FieldRiskScore:
		score, ok := enrichRiskScore(ctx, enrich)
		if !ok {
			return false
		}
		return compareNumeric(score, cond.Operator, cond.Value)
	case models.FieldCategory:
		category, ok := enrichCategory(ctx, enrich)
		if !ok {
			return false
		}
		return compareStrings(category, cond.Operator, cond.Value, cond.CaseSensitive)
	default:
		slog.Warn("unknown condition field, treating as not met", "field", cond.Field)
		return false
	}
}

// evaluateAI consults the oracle for a natural-language condition. The
// verdict's confidence and reasoning are logged for audit but never
// thresholded — the boolean decides.
func (e *Evaluator) evaluateAI(ctx context.Context, cond *models.WorkflowCondition, email *models.Email) bool {
	if e.oracle == nil {
		slog.Warn("AI condition with no oracle configured, treating as not met")
		return false
	}

	verdict, err := e.oracle.EvaluateCondition(ctx, cond.Value, email)
	if err != nil {
		slog.Warn("AI condition evaluation failed, treating as not met",
			"email_id", email.ID,
			"condition", cond.Value,
			"error", err,
		)
		return false
	}

	slog.Info("AI condition evaluated",
		"email_id", email.ID,
		"meets_condition", verdict.MeetsCondition,
		"confidence", verdict.Confidence,
		"reasoning", verdict.Reasoning,
	)
	return verdict.MeetsCondition
}

func enrichRiskScore(ctx context.Context, enrich Enrichment) (float64, bool) {
	if enrich == nil {
		return 0, false
	}
	return enrich.RiskScore(ctx)
}

func enrichCategory(ctx context.Context, enrich Enrichment) (string, bool) {
	if enrich == nil {
		return "", false
	}
	return enrich.Category(ctx)
}

// compareStrings applies a string operator. Substring and prefix/suffix tests
// are case-insensitive unless the condition asks otherwise. Numeric operators
// against a string field fail closed.
func compareStrings(fieldValue string, op models.Operator, condValue string, caseSensitive bool) bool {
	a, b := fieldValue, condValue
	if !caseSensitive {
		a = strings.ToLower(a)
		b = strings.ToLower(b)
	}

	switch op {
	case models.OpContains:
		return strings.Contains(a, b)
	case models.OpEquals:
		return a == b
	case models.OpNotEquals:
		return a != b
	case models.OpStartsWith:
		return strings.HasPrefix(a, b)
	case models.OpEndsWith:
		return strings.HasSuffix(a, b)
	case models.OpGreaterThan, models.OpLessThan:
		// Numeric operators apply only to numeric fields.
		return false
	default:
		slog.Warn("unknown string operator, treating as not met", "operator", op)
		return false
	}
}

// compareBool applies equals/not_equals to a boolean field.
func compareBool(fieldValue bool, op models.Operator, condValue string) bool {
	want, err := strconv.ParseBool(strings.TrimSpace(condValue))
	if err != nil {
		slog.Warn("non-boolean condition value for boolean field, treating as not met", "value", condValue)
		return false
	}

	switch op {
	case models.OpEquals:
		return fieldValue == want
	case models.OpNotEquals:
		return fieldValue != want
	default:
		return false
	}
}

// compareNumeric applies a numeric operator to a float field.
func compareNumeric(fieldValue float64, op models.Operator, condValue string) bool {
	want, err := strconv.ParseFloat(strings.TrimSpace(condValue), 64)
	if err != nil {
		slog.Warn("non-numeric condition value for numeric field, treating as not met", "value", condValue)
		return false
	}

	switch op {
	case models.OpGreaterThan:
		return fieldValue > want
	case models.OpLessThan:
		return fieldValue < want
	case models.OpEquals:
		return fieldValue == want
	case models.OpNotEquals:
		return fieldValue != want
	default:
		slog.Warn("unknown numeric operator, treating as not met", "operator", op)
		return false
	}
}
