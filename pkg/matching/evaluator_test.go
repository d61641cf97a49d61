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

package matching_test

import (
	"context"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/neighborhood-lab/care-commons-sub009/pkg/apis"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/matching"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/store"
)

func TestRankShift_EligibleBeforeIneligibleRegardlessOfScore(t *testing.T) {
	g := NewWithT(t)
	mem := store.NewMemory()
	ctx := context.Background()

	shift, err := mem.CreateShift(ctx, apis.OpenShift{
		OrganizationID:  "org-1",
		RequiredSkills:  []string{"Personal Care"},
		DurationMinutes: 60,
		Status:          apis.ShiftNew,
	})
	g.Expect(err).NotTo(HaveOccurred())

	mem.SeedCaregiver(apis.Caregiver{ID: "low-but-eligible", OrganizationID: "org-1", Active: true, EmploymentStatus: apis.EmploymentActive, Skills: []string{"Personal Care"}})
	mem.SeedCaregiver(apis.Caregiver{ID: "blocked-high-score", OrganizationID: "org-1", Active: true, EmploymentStatus: apis.EmploymentActive, Skills: []string{"Personal Care"}})

	shift.BlockedCaregivers = []string{"blocked-high-score"}
	_, err = mem.UpdateShift(ctx, shift.ID, shift.Version, func(s *apis.OpenShift) { s.BlockedCaregivers = []string{"blocked-high-score"} })
	g.Expect(err).NotTo(HaveOccurred())

	mem.SetContextFunc(func(ctx context.Context, caregiverID string, shift apis.OpenShift) (apis.CaregiverContext, error) {
		if caregiverID == "blocked-high-score" {
			return apis.CaregiverContext{
				Caregiver:        apis.Caregiver{ID: caregiverID, Skills: []string{"Personal Care"}},
				ReliabilityScore: 100,
				ComplianceStatus: apis.ComplianceCompliant,
			}, nil
		}
		return apis.CaregiverContext{
			Caregiver:        apis.Caregiver{ID: caregiverID, Skills: []string{"Personal Care"}},
			ReliabilityScore: 10,
			ComplianceStatus: apis.ComplianceCompliant,
		}, nil
	})

	eval := matching.New(mem, nil)
	cfg := apis.DefaultConfiguration("org-1")

	ranked, err := eval.RankShift(ctx, shift.ID, cfg, 10, matching.Options{})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ranked).To(HaveLen(2))
	g.Expect(ranked[0].CaregiverID).To(Equal("low-but-eligible"))
	g.Expect(ranked[0].IsEligible).To(BeTrue())
	g.Expect(ranked[1].CaregiverID).To(Equal("blocked-high-score"))
	g.Expect(ranked[1].IsEligible).To(BeFalse())
}

func TestEffectiveConfig_NoExperimentReturnsBaseConfigUnchanged(t *testing.T) {
	g := NewWithT(t)
	mem := store.NewMemory()
	eval := matching.New(mem, nil)
	cfg := apis.DefaultConfiguration("org-1")

	resolved, err := eval.EffectiveConfig(context.Background(), "shift-1", cfg)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(resolved).To(Equal(cfg))
}

func TestEffectiveConfig_AssignsAndPersistsVariantOnce(t *testing.T) {
	g := NewWithT(t)
	mem := store.NewMemory()
	eval := matching.New(mem, nil)
	ctx := context.Background()

	cfg := apis.DefaultConfiguration("org-1")
	cfg.MLWeight = 0.1
	cfg.ExperimentVariants = []apis.ExperimentVariant{
		{Name: "control", MLEnabled: false},
		{Name: "treatment", MLEnabled: true, MLWeight: 0.5},
	}

	first, err := eval.EffectiveConfig(ctx, "shift-1", cfg)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(first.AssignedVariant).To(BeElementOf("control", "treatment"))

	// A repeated resolution for the same shift must return the same
	// variant: the assignment is written once and never reshuffled.
	second, err := eval.EffectiveConfig(ctx, "shift-1", cfg)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(second.AssignedVariant).To(Equal(first.AssignedVariant))

	stored, err := mem.GetExperimentAssignment(ctx, "shift-1")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(stored.Variant).To(Equal(first.AssignedVariant))
}

func TestRank_TiesBrokenByDistanceThenID(t *testing.T) {
	g := NewWithT(t)
	near := 1.0
	far := 5.0
	candidates := []apis.MatchCandidate{
		{CaregiverID: "z", IsEligible: true, OverallScore: 80, Distance: &far},
		{CaregiverID: "a", IsEligible: true, OverallScore: 80, Distance: &near},
	}
	ranked := matching.Rank(candidates)
	g.Expect(ranked[0].CaregiverID).To(Equal("a"))
}
