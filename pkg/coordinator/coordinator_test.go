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

package coordinator_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/neighborhood-lab/care-commons-sub009/pkg/apis"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/coordinator"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/matching"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/optimizer"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/proposal"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/store"
)

func TestMatchShift_CreatesProposalsForQualifiedCandidates(t *testing.T) {
	g := NewWithT(t)
	mem := store.NewMemory()
	ctx := context.Background()

	_, err := mem.PutConfiguration(ctx, apis.DefaultConfiguration("org-1"))
	g.Expect(err).NotTo(HaveOccurred())

	shift, err := mem.CreateShift(ctx, apis.OpenShift{OrganizationID: "org-1", RequiredSkills: []string{"Personal Care"}, DurationMinutes: 60})
	g.Expect(err).NotTo(HaveOccurred())
	mem.SeedCaregiver(apis.Caregiver{ID: "cg-1", OrganizationID: "org-1", Active: true, EmploymentStatus: apis.EmploymentActive, Skills: []string{"Personal Care"}})

	eval := matching.New(mem, nil)
	mgr := proposal.New(mem)
	opt := optimizer.New(mem, eval)
	coord := coordinator.New(mem, eval, mgr, opt)

	admin := apis.UserContext{UserID: "admin", OrganizationID: "org-1", Permissions: []string{"shift:match"}}
	proposals, err := coord.MatchShift(ctx, admin, shift.ID)

	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(proposals).To(HaveLen(1))
	g.Expect(proposals[0].CaregiverID).To(Equal("cg-1"))
}

func TestMatchShift_ForbiddenWithoutPermission(t *testing.T) {
	g := NewWithT(t)
	mem := store.NewMemory()
	ctx := context.Background()
	eval := matching.New(mem, nil)
	mgr := proposal.New(mem)
	opt := optimizer.New(mem, eval)
	coord := coordinator.New(mem, eval, mgr, opt)

	_, err := coord.MatchShift(ctx, apis.UserContext{UserID: "nobody"}, "shift-1")
	g.Expect(err).To(HaveOccurred())
}

func TestMatchShift_AssignsVariantAndRecordsItOnTheProposalSnapshot(t *testing.T) {
	g := NewWithT(t)
	mem := store.NewMemory()
	ctx := context.Background()

	cfg := apis.DefaultConfiguration("org-1")
	cfg.ExperimentVariants = []apis.ExperimentVariant{
		{Name: "control", MLEnabled: false},
		{Name: "treatment", MLEnabled: true, MLWeight: 0.5},
	}
	_, err := mem.PutConfiguration(ctx, cfg)
	g.Expect(err).NotTo(HaveOccurred())

	shift, err := mem.CreateShift(ctx, apis.OpenShift{OrganizationID: "org-1", RequiredSkills: []string{"Personal Care"}, DurationMinutes: 60})
	g.Expect(err).NotTo(HaveOccurred())
	mem.SeedCaregiver(apis.Caregiver{ID: "cg-1", OrganizationID: "org-1", Active: true, EmploymentStatus: apis.EmploymentActive, Skills: []string{"Personal Care"}})

	eval := matching.New(mem, nil)
	mgr := proposal.New(mem)
	opt := optimizer.New(mem, eval)
	coord := coordinator.New(mem, eval, mgr, opt)

	admin := apis.UserContext{UserID: "admin", OrganizationID: "org-1", Permissions: []string{"shift:match"}}
	proposals, err := coord.MatchShift(ctx, admin, shift.ID)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(proposals).To(HaveLen(1))
	g.Expect(proposals[0].ConfigurationSnapshot.Variant).To(BeElementOf("control", "treatment"))

	assignment, err := mem.GetExperimentAssignment(ctx, shift.ID)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(assignment.Variant).To(Equal(proposals[0].ConfigurationSnapshot.Variant))
}

func TestGetMatchingKPI_RequiresPermission(t *testing.T) {
	g := NewWithT(t)
	mem := store.NewMemory()
	ctx := context.Background()
	eval := matching.New(mem, nil)
	mgr := proposal.New(mem)
	opt := optimizer.New(mem, eval)
	coord := coordinator.New(mem, eval, mgr, opt)

	_, err := coord.GetMatchingKPI(ctx, apis.UserContext{UserID: "nobody"}, 0)
	g.Expect(err).To(HaveOccurred())
}

func TestGetMatchingKPI_AggregatesHistoryInWindow(t *testing.T) {
	g := NewWithT(t)
	mem := store.NewMemory()
	ctx := context.Background()

	_, err := mem.AppendMatchHistory(ctx, apis.MatchHistory{ShiftID: "s1", CaregiverID: "cg-1", Outcome: apis.OutcomeProposed})
	g.Expect(err).NotTo(HaveOccurred())
	_, err = mem.AppendMatchHistory(ctx, apis.MatchHistory{ShiftID: "s1", CaregiverID: "cg-1", Outcome: apis.OutcomeAccepted})
	g.Expect(err).NotTo(HaveOccurred())

	eval := matching.New(mem, nil)
	mgr := proposal.New(mem)
	opt := optimizer.New(mem, eval)
	coord := coordinator.New(mem, eval, mgr, opt)

	admin := apis.UserContext{UserID: "admin", OrganizationID: "org-1", Permissions: []string{"metrics:read"}}
	kpi, err := coord.GetMatchingKPI(ctx, admin, time.Hour)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(kpi.AcceptanceRate).To(BeNumerically("~", 1.0, 0.001))

	results, err := coord.GetExperimentResults(ctx, admin, time.Hour)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(results.Variants).To(BeEmpty())
}
