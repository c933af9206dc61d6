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

// Package metrics exposes Prometheus metrics for the workflow engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine metrics
var (
	EmailsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_emails_processed_total",
			Help: "Total number of emails processed by execution status",
		},
		[]string{"status"},
	)

	IdempotentHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "workflow_idempotent_hits_total",
			Help: "Total number of invocations short-circuited by an existing execution",
		},
	)

	PassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "workflow_pass_duration_seconds",
			Help:    "Duration of one engine pass over one email",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Action metrics
var (
	ActionsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_actions_executed_total",
			Help: "Total number of actions executed by type and result",
		},
		[]string{"type", "result"},
	)
)

// Oracle metrics
var (
	OracleRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_oracle_requests_total",
			Help: "Total number of AI oracle requests by mode and status",
		},
		[]string{"mode", "status"},
	)
)
