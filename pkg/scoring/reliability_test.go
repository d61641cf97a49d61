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

package scoring_test

import (
	"testing"

	. "github.com/onsi/gomega"

	"github.com/neighborhood-lab/care-commons-sub009/pkg/scoring"
)

func TestReliabilityScore_NoHistoryReturnsNeutralPrior(t *testing.T) {
	g := NewWithT(t)
	g.Expect(scoring.ReliabilityScore(0, 0, 0)).To(Equal(75.0))
}

func TestReliabilityScore_PerfectHistoryIsMax(t *testing.T) {
	g := NewWithT(t)
	g.Expect(scoring.ReliabilityScore(20, 0, 0)).To(Equal(100.0))
}

func TestReliabilityScore_NoShowPenalizesMoreThanRejection(t *testing.T) {
	g := NewWithT(t)
	withReject := scoring.ReliabilityScore(10, 1, 0)
	withNoShow := scoring.ReliabilityScore(10, 0, 1)
	g.Expect(withNoShow).To(BeNumerically("<", withReject))
}

func TestReliabilityScore_NeverGoesNegative(t *testing.T) {
	g := NewWithT(t)
	g.Expect(scoring.ReliabilityScore(0, 0, 50)).To(BeNumerically(">=", 0.0))
}
