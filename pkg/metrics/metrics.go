/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics carries the engine's Prometheus instrumentation plus
// the KPI aggregation behind GET /metrics/matching.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const Namespace = "care_commons"

var (
	SweepTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "scheduler",
		Name:      "sweeps_total",
		Help:      "Number of expiry sweep ticks run.",
	})
	SweepErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "scheduler",
		Name:      "sweep_errors_total",
		Help:      "Number of expiry sweep ticks that failed.",
	})
	SweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "scheduler",
		Name:      "sweep_duration_seconds",
		Help:      "Duration of each expiry sweep tick.",
		Buckets:   prometheus.DefBuckets,
	})
	ProposalsExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "scheduler",
		Name:      "proposals_expired_total",
		Help:      "Number of proposals transitioned to EXPIRED by the sweep.",
	})

	ProposalsCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "matching",
		Name:      "proposals_created_total",
		Help:      "Number of proposals created, labeled by organization.",
	}, []string{"organization_id"})

	MatchEvaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "matching",
		Name:      "evaluations_total",
		Help:      "Number of candidate evaluations run by the scoring kernel, labeled by eligibility outcome.",
	}, []string{"eligible"})

	RankShiftDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "matching",
		Name:      "rank_shift_duration_seconds",
		Help:      "Duration of one rankShift fan-out call.",
		Buckets:   prometheus.DefBuckets,
	})
)

// MustRegister registers every collector in this package against reg. Call
// once at process startup.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		SweepTotal,
		SweepErrorsTotal,
		SweepDuration,
		ProposalsExpiredTotal,
		ProposalsCreatedTotal,
		MatchEvaluationsTotal,
		RankShiftDuration,
	)
}
