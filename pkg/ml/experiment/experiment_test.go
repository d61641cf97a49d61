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

package experiment_test

import (
	"testing"

	. "github.com/onsi/gomega"

	"github.com/neighborhood-lab/care-commons-sub009/pkg/ml/experiment"
)

func TestAssignVariant_IsDeterministicPerShift(t *testing.T) {
	g := NewWithT(t)
	variants := []string{"control", "treatment"}
	first, err := experiment.AssignVariant("shift-123", variants)
	g.Expect(err).NotTo(HaveOccurred())
	second, err := experiment.AssignVariant("shift-123", variants)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(first).To(Equal(second))
}

func TestSummarize_ComputesPerVariantRates(t *testing.T) {
	g := NewWithT(t)
	outcomes := []experiment.Outcome{
		{Variant: "control", Proposed: true, Accepted: true, MatchScore: 80},
		{Variant: "control", Proposed: true, Accepted: false, MatchScore: 60},
		{Variant: "treatment", Proposed: true, Accepted: true, MatchScore: 90},
	}
	agg := experiment.Summarize(outcomes)
	g.Expect(agg["control"].AcceptanceRate).To(BeNumerically("~", 0.5, 0.001))
	g.Expect(agg["treatment"].AcceptanceRate).To(Equal(1.0))
}

func TestTwoProportionZTest_LargeDifferenceIsSignificant(t *testing.T) {
	g := NewWithT(t)
	result := experiment.TwoProportionZTest(50, 100, 90, 100)
	g.Expect(result.Significant(0.05)).To(BeTrue())
}

func TestTwoProportionZTest_NoDifferenceIsNotSignificant(t *testing.T) {
	g := NewWithT(t)
	result := experiment.TwoProportionZTest(50, 100, 51, 100)
	g.Expect(result.Significant(0.05)).To(BeFalse())
}
