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

// ConditionVerdict is the AI oracle's answer to a natural-language condition.
// Confidence and Reasoning are surfaced for audit logging only — the engine
// acts on MeetsCondition alone.
type ConditionVerdict struct {
	MeetsCondition bool    `json:"meets_condition"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning,omitempty"`
}

// ClassificationResult is the AI oracle's category assignment for an email.
type ClassificationResult struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// Threat levels reported by the oracle.
const (
	ThreatLevelLow      = "low"
	ThreatLevelMedium   = "medium"
	ThreatLevelHigh     = "high"
	ThreatLevelCritical = "critical"
)

// Recommended actions reported by the oracle. Advisory only — a quarantine
// recommendation never bypasses the tenant's risk threshold condition.
const (
	RecommendAllow      = "allow"
	RecommendFlag       = "flag"
	RecommendQuarantine = "quarantine"
)

// ThreatAnalysis is the AI oracle's risk assessment for an email.
// RiskScore is on a 0-100 scale and feeds risk_score conditions.
type ThreatAnalysis struct {
	RiskScore         float64 `json:"risk_score"`
	ThreatLevel       string  `json:"threat_level"`
	RecommendedAction string  `json:"recommended_action"`
	Confidence        float64 `json:"confidence"`
	Reasoning         string  `json:"reasoning,omitempty"`
}
