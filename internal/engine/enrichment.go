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

package engine

import (
	"context"
	"log/slog"

	"github.com/bcem/workflow/internal/models"
	"github.com/bcem/workflow/internal/oracle"
)

// enrichment lazily computes oracle-derived inputs for rule conditions. The
// threat analysis and classification each run at most once per pass, on the
// first rule that needs them, and the result is shared across the remaining
// rules. A pass evaluates on a single goroutine, so no locking is needed.
//
// The oracle's recommended_action is advisory: only the numeric risk score
// feeds conditions, so a tenant's risk threshold always gates quarantine.
type enrichment struct {
	oracle     oracle.Oracle
	categories CategorySource
	email      *models.Email
	mailbox    *models.Mailbox

	threat      *models.ThreatAnalysis
	threatTried bool

	category      string
	categoryOK    bool
	categoryTried bool
}

func newEnrichment(o oracle.Oracle, categories CategorySource, email *models.Email, mailbox *models.Mailbox) *enrichment {
	return &enrichment{
		oracle:     o,
		categories: categories,
		email:      email,
		mailbox:    mailbox,
	}
}

// RiskScore returns the oracle's risk score for the email. A failed oracle
// call is remembered for the rest of the pass — risk conditions fail closed
// rather than hammering a broken upstream.
func (en *enrichment) RiskScore(ctx context.Context) (float64, bool) {
	if !en.threatTried {
		en.threatTried = true

		if en.oracle == nil {
			slog.Warn("risk_score condition with no oracle configured", "email_id", en.email.ID)
			return 0, false
		}

		analysis, err := en.oracle.AnalyzeThreat(ctx, en.email)
		if err != nil {
			slog.Warn("threat analysis failed, risk conditions fail closed",
				"email_id", en.email.ID,
				"error", err,
			)
			return 0, false
		}
		en.threat = analysis

		slog.Info("threat analysis computed",
			"email_id", en.email.ID,
			"risk_score", analysis.RiskScore,
			"threat_level", analysis.ThreatLevel,
			"recommended_action", analysis.RecommendedAction,
		)
	}

	if en.threat == nil {
		return 0, false
	}
	return en.threat.RiskScore, true
}

// Category returns the email's category name: the assigned category when one
// exists, otherwise the oracle's classification against the tenant's label
// set.
func (en *enrichment) Category(ctx context.Context) (string, bool) {
	if !en.categoryTried {
		en.categoryTried = true
		en.category, en.categoryOK = en.resolveCategory(ctx)
	}
	return en.category, en.categoryOK
}

func (en *enrichment) resolveCategory(ctx context.Context) (string, bool) {
	if en.email.CategoryID != nil {
		category, err := en.categories.Get(ctx, *en.email.CategoryID)
		if err != nil || category == nil {
			slog.Warn("assigned category lookup failed",
				"email_id", en.email.ID,
				"category_id", en.email.CategoryID,
				"error", err,
			)
			return "", false
		}
		return category.Name, true
	}

	if en.oracle == nil || en.mailbox == nil {
		return "", false
	}

	labels, err := en.categories.ListByTenant(ctx, en.mailbox.TenantAlias)
	if err != nil || len(labels) == 0 {
		slog.Warn("tenant categories unavailable for classification",
			"email_id", en.email.ID,
			"error", err,
		)
		return "", false
	}

	names := make([]string, 0, len(labels))
	for _, c := range labels {
		names = append(names, c.Name)
	}

	result, err := en.oracle.Classify(ctx, en.email, names)
	if err != nil {
		slog.Warn("classification failed, category conditions fail closed",
			"email_id", en.email.ID,
			"error", err,
		)
		return "", false
	}

	slog.Info("email classified",
		"email_id", en.email.ID,
		"category", result.Category,
		"confidence", result.Confidence,
	)
	return result.Category, true
}
