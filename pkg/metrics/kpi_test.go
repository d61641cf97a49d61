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

package metrics_test

import (
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/neighborhood-lab/care-commons-sub009/pkg/apis"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/metrics"
)

func TestComputeKPI_AcceptanceAndExpiryRates(t *testing.T) {
	g := NewWithT(t)
	now := time.Now()
	history := []apis.MatchHistory{
		{ShiftID: "s1", Outcome: apis.OutcomeProposed, CreatedAt: now},
		{ShiftID: "s1", Outcome: apis.OutcomeAccepted, CreatedAt: now.Add(10 * time.Minute)},
		{ShiftID: "s2", Outcome: apis.OutcomeProposed, CreatedAt: now},
		{ShiftID: "s2", Outcome: apis.OutcomeExpired, CreatedAt: now.Add(2 * time.Hour)},
	}

	kpi := metrics.ComputeKPI(history, nil)
	g.Expect(kpi.AcceptanceRate).To(BeNumerically("~", 0.5, 0.001))
	g.Expect(kpi.ExpiryRate).To(BeNumerically("~", 0.5, 0.001))
	g.Expect(kpi.AverageTimeToFillMins).To(BeNumerically("~", 10, 0.001))
}

func TestComputeExperimentResults_GroupsByVariantAndRunsZTest(t *testing.T) {
	g := NewWithT(t)
	now := time.Now()
	history := []apis.MatchHistory{
		{ShiftID: "s1", Outcome: apis.OutcomeAccepted, ConfigSnapshot: apis.ConfigSnapshot{Variant: "control"}, CreatedAt: now},
		{ShiftID: "s2", Outcome: apis.OutcomeRejected, ConfigSnapshot: apis.ConfigSnapshot{Variant: "control"}, CreatedAt: now},
		{ShiftID: "s3", Outcome: apis.OutcomeAccepted, ConfigSnapshot: apis.ConfigSnapshot{Variant: "treatment"}, CreatedAt: now},
		{ShiftID: "s4", Outcome: apis.OutcomeAccepted, ConfigSnapshot: apis.ConfigSnapshot{Variant: "treatment"}, CreatedAt: now},
		// No variant recorded: predates any experiment, excluded from the rollup.
		{ShiftID: "s5", Outcome: apis.OutcomeAccepted, CreatedAt: now},
	}

	results := metrics.ComputeExperimentResults(history)
	g.Expect(results.Variants).To(HaveLen(2))
	g.Expect(results.Variants["control"].Attempts).To(Equal(2))
	g.Expect(results.Variants["control"].AcceptanceRate).To(BeNumerically("~", 0.5, 0.001))
	g.Expect(results.Variants["treatment"].Attempts).To(Equal(2))
	g.Expect(results.Variants["treatment"].AcceptanceRate).To(BeNumerically("~", 1.0, 0.001))
	g.Expect(results.ZTest).NotTo(BeNil())
}

func TestComputeExperimentResults_NoVariantsObservedOmitsZTest(t *testing.T) {
	g := NewWithT(t)
	history := []apis.MatchHistory{
		{ShiftID: "s1", Outcome: apis.OutcomeAccepted, CreatedAt: time.Now()},
	}

	results := metrics.ComputeExperimentResults(history)
	g.Expect(results.Variants).To(BeEmpty())
	g.Expect(results.ZTest).To(BeNil())
}
