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

// Package experiment assigns shifts to A/B variants deterministically and
// aggregates their outcomes for a two-sample significance test, the way
// an operator would compare the ML-blended variant against the pure
// rule-based control before raising mlWeight.
package experiment

import (
	"math"

	"github.com/mitchellh/hashstructure/v2"
)

// AssignVariant deterministically buckets a shift into one of len(variants)
// buckets by hashing the shift id, so repeated calls for the same shift
// (e.g. a retried match attempt) land in the same variant.
func AssignVariant(shiftID string, variants []string) (string, error) {
	if len(variants) == 0 {
		return "", nil
	}
	h, err := hashstructure.Hash(shiftID, hashstructure.FormatV2, nil)
	if err != nil {
		return "", err
	}
	return variants[h%uint64(len(variants))], nil
}

// Outcome is one observed match attempt attributed to a variant.
type Outcome struct {
	Variant    string
	Proposed   bool
	Accepted   bool
	Completed  bool
	MatchScore float64
}

// Aggregate is the per-variant summary fed to the significance test.
type Aggregate struct {
	Variant         string
	Attempts        int
	MatchRate       float64
	AcceptanceRate  float64
	CompletionRate  float64
	AvgMatchScore   float64
}

// Summarize groups outcomes by variant and computes the four KPIs tracked
// per experiment arm: match rate, acceptance rate, completion rate, and
// average match score.
func Summarize(outcomes []Outcome) map[string]Aggregate {
	sums := map[string]*Aggregate{}
	counts := map[string]int{}
	scoreSums := map[string]float64{}

	for _, o := range outcomes {
		a, ok := sums[o.Variant]
		if !ok {
			a = &Aggregate{Variant: o.Variant}
			sums[o.Variant] = a
		}
		a.Attempts++
		counts[o.Variant]++
		scoreSums[o.Variant] += o.MatchScore
		if o.Proposed {
			a.MatchRate++
		}
		if o.Accepted {
			a.AcceptanceRate++
		}
		if o.Completed {
			a.CompletionRate++
		}
	}

	out := make(map[string]Aggregate, len(sums))
	for variant, a := range sums {
		n := float64(counts[variant])
		if n > 0 {
			a.MatchRate /= n
			a.AcceptanceRate /= n
			a.CompletionRate /= n
			a.AvgMatchScore = scoreSums[variant] / n
		}
		out[variant] = *a
	}
	return out
}

// ZTestResult is a two-proportion z-test between a treatment and control
// acceptance rate.
type ZTestResult struct {
	Z       float64
	PValue  float64
}

// Significant reports whether the observed difference clears alpha
// (two-tailed).
func (r ZTestResult) Significant(alpha float64) bool {
	return r.PValue < alpha
}

// TwoProportionZTest compares acceptance rate between a control and
// treatment arm. Both counts are (successes, trials).
func TwoProportionZTest(controlSuccesses, controlTrials, treatmentSuccesses, treatmentTrials int) ZTestResult {
	if controlTrials == 0 || treatmentTrials == 0 {
		return ZTestResult{}
	}
	p1 := float64(controlSuccesses) / float64(controlTrials)
	p2 := float64(treatmentSuccesses) / float64(treatmentTrials)
	pooled := float64(controlSuccesses+treatmentSuccesses) / float64(controlTrials+treatmentTrials)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(controlTrials) + 1/float64(treatmentTrials)))
	if se == 0 {
		return ZTestResult{}
	}
	z := (p2 - p1) / se
	return ZTestResult{Z: z, PValue: twoTailedPValue(z)}
}

// twoTailedPValue is the two-tailed standard normal survival probability
// at |z|, computed from the complementary error function rather than
// pulling in a full stats package for one distribution lookup.
func twoTailedPValue(z float64) float64 {
	return math.Erfc(math.Abs(z) / math.Sqrt2)
}
