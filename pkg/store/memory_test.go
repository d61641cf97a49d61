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

package store_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/neighborhood-lab/care-commons-sub009/pkg/apis"
	apierrors "github.com/neighborhood-lab/care-commons-sub009/pkg/apis/errors"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/store"
)

func TestMemory_RoundTripShift(t *testing.T) {
	g := NewWithT(t)
	m := store.NewMemory()
	ctx := context.Background()

	created, err := m.CreateShift(ctx, apis.OpenShift{OrganizationID: "org-1", ServiceType: "Personal Care"})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(created.Version).To(Equal(1))

	got, err := m.GetShift(ctx, created.ID)
	g.Expect(err).NotTo(HaveOccurred())
	got.UpdatedAt, created.UpdatedAt = time.Time{}, time.Time{}
	got.Version, created.Version = 0, 0
	g.Expect(got).To(Equal(created))
}

func TestMemory_StaleVersionIsConflict(t *testing.T) {
	g := NewWithT(t)
	m := store.NewMemory()
	ctx := context.Background()

	created, _ := m.CreateShift(ctx, apis.OpenShift{OrganizationID: "org-1"})
	_, err := m.UpdateShift(ctx, created.ID, created.Version+1, func(s *apis.OpenShift) { s.Status = apis.ShiftMatching })

	g.Expect(err).To(HaveOccurred())
	g.Expect(apierrors.Is(err, apierrors.KindConflict)).To(BeTrue())
}

func TestMemory_DeleteShiftCascadesProposalsToWithdrawn(t *testing.T) {
	g := NewWithT(t)
	m := store.NewMemory()
	ctx := context.Background()

	shift, _ := m.CreateShift(ctx, apis.OpenShift{OrganizationID: "org-1"})
	p, _ := m.CreateProposal(ctx, apis.AssignmentProposal{ShiftID: shift.ID, CaregiverID: "c-1", Status: apis.ProposalPending})

	g.Expect(m.DeleteShift(ctx, shift.ID)).To(Succeed())

	got, err := m.GetProposal(ctx, p.ID)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(got.Status).To(Equal(apis.ProposalWithdrawn))
}

func TestMemory_FindOpenShiftsOrdering(t *testing.T) {
	g := NewWithT(t)
	m := store.NewMemory()
	ctx := context.Background()

	low, _ := m.CreateShift(ctx, apis.OpenShift{OrganizationID: "org-1", Priority: apis.PriorityLow, ScheduledDate: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), Status: apis.ShiftNew})
	high, _ := m.CreateShift(ctx, apis.OpenShift{OrganizationID: "org-1", Priority: apis.PriorityHigh, ScheduledDate: time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC), Status: apis.ShiftNew})

	shifts, total, err := m.FindOpenShifts(ctx, store.ShiftFilter{OrganizationID: "org-1"}, store.Page{Limit: 10})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(total).To(Equal(2))
	g.Expect(shifts[0].ID).To(Equal(high.ID))
	g.Expect(shifts[1].ID).To(Equal(low.ID))
}

func TestMemory_GetEffectiveConfigurationMergesBranchOverride(t *testing.T) {
	g := NewWithT(t)
	m := store.NewMemory()
	ctx := context.Background()

	base := apis.DefaultConfiguration("org-1")
	_, err := m.PutConfiguration(ctx, base)
	g.Expect(err).NotTo(HaveOccurred())

	override := apis.MatchingConfiguration{
		OrganizationID:      "org-1",
		BranchID:            "branch-1",
		Weights:             apis.DefaultWeights(),
		MaxTravelDistance:   10,
		ProposalExpirationMinutes: 120,
		MaxProposalsPerShift: 5,
	}
	_, err = m.PutConfiguration(ctx, override)
	g.Expect(err).NotTo(HaveOccurred())

	effective, err := m.GetEffectiveConfiguration(ctx, "org-1", "branch-1")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(effective.MaxTravelDistance).To(Equal(10.0))
	g.Expect(effective.AutoAssignThreshold).To(Equal(base.AutoAssignThreshold))
}

func TestMemory_PutConfigurationRejectsBadWeights(t *testing.T) {
	g := NewWithT(t)
	m := store.NewMemory()
	ctx := context.Background()

	bad := apis.DefaultConfiguration("org-1")
	bad.Weights.SkillMatch = 0

	_, err := m.PutConfiguration(ctx, bad)
	g.Expect(err).To(HaveOccurred())
	g.Expect(apierrors.Is(err, apierrors.KindValidation)).To(BeTrue())
}

func TestMemory_WithTxIsAtomic(t *testing.T) {
	g := NewWithT(t)
	m := store.NewMemory()
	ctx := context.Background()
	shift, _ := m.CreateShift(ctx, apis.OpenShift{OrganizationID: "org-1"})

	err := m.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.UpdateShift(ctx, shift.ID, shift.Version, func(s *apis.OpenShift) { s.Status = apis.ShiftAssigned })
		return err
	})
	g.Expect(err).NotTo(HaveOccurred())

	got, _ := m.GetShift(ctx, shift.ID)
	g.Expect(got.Status).To(Equal(apis.ShiftAssigned))
}

func TestMemory_CaregiverContextDerivesReliabilityFromHistory(t *testing.T) {
	g := NewWithT(t)
	m := store.NewMemory()
	ctx := context.Background()

	m.SeedCaregiver(apis.Caregiver{ID: "cg-1", OrganizationID: "org-1", Active: true, EmploymentStatus: apis.EmploymentActive})
	shift, _ := m.CreateShift(ctx, apis.OpenShift{OrganizationID: "org-1"})

	_, err := m.AppendMatchHistory(ctx, apis.MatchHistory{ShiftID: shift.ID, CaregiverID: "cg-1", Outcome: apis.OutcomeAccepted})
	g.Expect(err).NotTo(HaveOccurred())
	_, err = m.AppendMatchHistory(ctx, apis.MatchHistory{ShiftID: shift.ID, CaregiverID: "cg-1", Outcome: apis.OutcomeAccepted})
	g.Expect(err).NotTo(HaveOccurred())
	_, err = m.AppendMatchHistory(ctx, apis.MatchHistory{ShiftID: shift.ID, CaregiverID: "cg-1", Outcome: apis.OutcomeAccepted})
	g.Expect(err).NotTo(HaveOccurred())

	ctxResult, err := m.CaregiverContext(ctx, "cg-1", shift)
	g.Expect(err).NotTo(HaveOccurred())
	// 3 accepts, no rejects or no-shows: a perfect record beats the flat
	// no-history default of 75.
	g.Expect(ctxResult.ReliabilityScore).To(BeNumerically(">", 75))
}

func TestMemory_ExperimentAssignmentIsWriteOnce(t *testing.T) {
	g := NewWithT(t)
	m := store.NewMemory()
	ctx := context.Background()

	_, err := m.GetExperimentAssignment(ctx, "shift-1")
	g.Expect(apierrors.Is(err, apierrors.KindNotFound)).To(BeTrue())

	first, err := m.CreateExperimentAssignment(ctx, apis.ExperimentAssignment{ShiftID: "shift-1", Variant: "treatment"})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(first.Variant).To(Equal("treatment"))

	second, err := m.CreateExperimentAssignment(ctx, apis.ExperimentAssignment{ShiftID: "shift-1", Variant: "control"})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(second.Variant).To(Equal("treatment"), "a second write for the same shift must not override the first")

	got, err := m.GetExperimentAssignment(ctx, "shift-1")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(got.Variant).To(Equal("treatment"))
}

func TestMemory_FindMatchHistorySinceExcludesOlderRows(t *testing.T) {
	g := NewWithT(t)
	m := store.NewMemory()
	ctx := context.Background()

	_, err := m.AppendMatchHistory(ctx, apis.MatchHistory{ShiftID: "shift-1", CaregiverID: "cg-1", Outcome: apis.OutcomeAccepted})
	g.Expect(err).NotTo(HaveOccurred())

	recent, err := m.FindMatchHistorySince(ctx, time.Now().Add(-time.Hour))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(recent).To(HaveLen(1))

	none, err := m.FindMatchHistorySince(ctx, time.Now().Add(time.Hour))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(none).To(BeEmpty())
}
