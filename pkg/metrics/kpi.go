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

package metrics

import (
	"math"
	"sort"

	"github.com/samber/lo"

	"github.com/neighborhood-lab/care-commons-sub009/pkg/apis"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/ml/experiment"
)

// KPI is the computed summary behind GET /metrics/matching: business
// outcomes derived from MatchHistory rather than raw Prometheus counters.
type KPI struct {
	TotalAttempts         int
	AverageTimeToFillMins float64
	ProposalsPerShift     float64
	AcceptanceRate        float64
	ExpiryRate            float64
	EligibilityIssueCounts map[string]int
}

// ComputeKPI aggregates a window of MatchHistory rows. Time-to-fill is the
// minutes from a shift's earliest row in the window to each of its ACCEPTED
// rows; acceptance and expiry rates are ACCEPTED and EXPIRED counts over
// PROPOSED rows (left at 0 when there are none); issues are tallied by type.
func ComputeKPI(history []apis.MatchHistory, issues []apis.EligibilityIssue) KPI {
	kpi := KPI{EligibilityIssueCounts: map[string]int{}}
	if len(history) == 0 {
		return kpi
	}

	byShift := lo.GroupBy(history, func(h apis.MatchHistory) string { return h.ShiftID })
	kpi.TotalAttempts = len(history)
	kpi.ProposalsPerShift = float64(len(history)) / float64(len(byShift))

	accepted := lo.CountBy(history, func(h apis.MatchHistory) bool { return h.Outcome == apis.OutcomeAccepted })
	proposed := lo.CountBy(history, func(h apis.MatchHistory) bool { return h.Outcome == apis.OutcomeProposed })
	expired := lo.CountBy(history, func(h apis.MatchHistory) bool { return h.Outcome == apis.OutcomeExpired })
	if proposed > 0 {
		kpi.AcceptanceRate = float64(accepted) / float64(proposed)
		kpi.ExpiryRate = float64(expired) / float64(proposed)
	}

	var fillDurations []float64
	for _, rows := range byShift {
		first := rows[0].CreatedAt
		for _, r := range rows {
			if r.CreatedAt.Before(first) {
				first = r.CreatedAt
			}
		}
		for _, r := range rows {
			if r.Outcome == apis.OutcomeAccepted {
				fillDurations = append(fillDurations, r.CreatedAt.Sub(first).Minutes())
			}
		}
	}
	if len(fillDurations) > 0 {
		var sum float64
		for _, d := range fillDurations {
			sum += d
		}
		kpi.AverageTimeToFillMins = sum / float64(len(fillDurations))
	}

	for _, issue := range issues {
		kpi.EligibilityIssueCounts[string(issue.Type)]++
	}
	return kpi
}

// ExperimentResults is the per-variant A/B rollup behind GET
// /metrics/matching when an experiment is configured: each variant's
// aggregate KPIs, plus a two-proportion z-test on acceptance rate when
// exactly two variants were observed in the window.
type ExperimentResults struct {
	Variants map[string]experiment.Aggregate
	ZTest    *experiment.ZTestResult
}

// ComputeExperimentResults groups history rows by the A/B variant recorded
// on their ConfigSnapshot and summarizes each arm. Rows with no variant
// (no experiment configured for that shift) are excluded. "Completed" has
// no independent signal in MatchHistory, so an accepted, non-no-show
// attempt stands in for it.
func ComputeExperimentResults(history []apis.MatchHistory) ExperimentResults {
	var outcomes []experiment.Outcome
	for _, h := range history {
		variant := h.ConfigSnapshot.Variant
		if variant == "" {
			continue
		}
		outcomes = append(outcomes, experiment.Outcome{
			Variant: variant,
			Proposed: h.Outcome == apis.OutcomeProposed || h.Outcome == apis.OutcomeAccepted ||
				h.Outcome == apis.OutcomeRejected || h.Outcome == apis.OutcomeExpired,
			Accepted:   h.Outcome == apis.OutcomeAccepted,
			Completed:  h.Outcome == apis.OutcomeAccepted,
			MatchScore: h.Score,
		})
	}

	results := ExperimentResults{Variants: experiment.Summarize(outcomes)}
	if len(results.Variants) != 2 {
		return results
	}
	names := make([]string, 0, 2)
	for name := range results.Variants {
		names = append(names, name)
	}
	sort.Strings(names)
	control, treatment := results.Variants[names[0]], results.Variants[names[1]]
	controlSuccesses := int(math.Round(control.AcceptanceRate * float64(control.Attempts)))
	treatmentSuccesses := int(math.Round(treatment.AcceptanceRate * float64(treatment.Attempts)))
	z := experiment.TwoProportionZTest(controlSuccesses, control.Attempts, treatmentSuccesses, treatment.Attempts)
	results.ZTest = &z
	return results
}
