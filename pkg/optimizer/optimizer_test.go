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

package optimizer_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/neighborhood-lab/care-commons-sub009/pkg/apis"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/matching"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/optimizer"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/store"
)

func TestRun_GreedyAssignsNonOverlappingHighestPriorityFirst(t *testing.T) {
	g := NewWithT(t)
	mem := store.NewMemory()
	ctx := context.Background()

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	s1, _ := mem.CreateShift(ctx, apis.OpenShift{
		OrganizationID: "org-1", RequiredSkills: []string{"Personal Care"},
		ScheduledDate: day, StartTime: day.Add(8 * time.Hour), DurationMinutes: 120,
		Priority: apis.PriorityHigh, Status: apis.ShiftNew,
	})
	s2, _ := mem.CreateShift(ctx, apis.OpenShift{
		OrganizationID: "org-1", RequiredSkills: []string{"Personal Care"},
		ScheduledDate: day, StartTime: day.Add(9 * time.Hour), DurationMinutes: 120,
		Priority: apis.PriorityNormal, Status: apis.ShiftNew,
	})

	mem.SeedCaregiver(apis.Caregiver{ID: "cg-1", OrganizationID: "org-1", Active: true, EmploymentStatus: apis.EmploymentActive, Skills: []string{"Personal Care"}})

	eval := matching.New(mem, nil)
	opt := optimizer.New(mem, eval)
	cfg := apis.DefaultConfiguration("org-1")

	result, err := opt.Run(ctx, apis.BulkMatchRequest{
		OrganizationID: "org-1",
		ShiftIDs:       []string{s1.ID, s2.ID},
		Goal:           apis.GoalBestMatch,
	}, cfg)

	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(result.ShiftsAssigned).To(Equal(1))
	g.Expect(result.Unmatched).To(HaveLen(1))

	var assignedHighPriority bool
	for _, p := range result.Plans {
		if p.ShiftID == s1.ID {
			assignedHighPriority = true
		}
	}
	g.Expect(assignedHighPriority).To(BeTrue())
}
