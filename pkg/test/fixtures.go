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

// Package test provides randomized domain fixtures for table-style and
// property-style tests elsewhere in the module.
package test

import (
	"math/rand"
	"time"

	"github.com/Pallinder/go-randomdata"
	"github.com/google/uuid"

	"github.com/neighborhood-lab/care-commons-sub009/pkg/apis"
)

var skillPool = []string{"Personal Care", "Medication Management", "Mobility Assistance", "Companionship", "Hospice Support"}
var certPool = []string{"CNA", "HHA", "CPR", "First Aid"}
var languagePool = []string{"en", "es", "zh", "vi", "tl"}

// intn returns a random integer in [min, max).
func intn(min, max int) int {
	if max <= min {
		return min
	}
	return min + rand.Intn(max-min)
}

// subset returns between min and max (inclusive) distinct entries from pool.
func subset(pool []string, min, max int) []string {
	n := intn(min, max+1)
	if n <= 0 {
		return nil
	}
	shuffled := append([]string(nil), pool...)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	if n > len(shuffled) {
		n = len(shuffled)
	}
	return shuffled[:n]
}

// RandomCaregiver returns a caregiver with plausible randomized attributes,
// active in the given organization.
func RandomCaregiver(orgID string) apis.Caregiver {
	return apis.Caregiver{
		ID:               uuid.NewString(),
		OrganizationID:   orgID,
		BranchIDs:        []string{"branch-" + randomdata.Alphanumeric(6)},
		Active:           true,
		EmploymentStatus: apis.EmploymentActive,
		Skills:           subset(skillPool, 1, 3),
		Certifications: []apis.Certification{
			{Name: randomdata.StringSample(certPool...), Status: apis.ComplianceCompliant},
		},
		Gender:      randomGender(),
		Languages:   []string{randomdata.StringSample(languagePool...)},
		Location:    randomLocation(),
		TenureYears: float64(intn(0, 15)),
	}
}

// RandomShift returns an open shift scheduled starting `daysOut` days from
// now with a plausible duration and required-skill set.
func RandomShift(orgID string, daysOut int) apis.OpenShift {
	date := time.Now().AddDate(0, 0, daysOut)
	start := time.Date(date.Year(), date.Month(), date.Day(), intn(7, 18), 0, 0, 0, time.UTC)
	durations := []int{60, 90, 120, 180}
	return apis.OpenShift{
		ID:              uuid.NewString(),
		OrganizationID:  orgID,
		ClientID:        uuid.NewString(),
		ServiceType:     randomdata.StringSample(skillPool...),
		ScheduledDate:   start.Truncate(24 * time.Hour),
		StartTime:       start,
		DurationMinutes: durations[intn(0, len(durations))],
		RequiredSkills:  subset(skillPool, 1, 2),
		Location:        randomLocation(),
		Priority:        apis.Priority(intn(0, 4)),
		Status:          apis.ShiftNew,
	}
}

// RandomPreferenceProfile returns a plausible self-service preference row
// for the given caregiver.
func RandomPreferenceProfile(caregiverID, orgID string) apis.CaregiverPreferenceProfile {
	return apis.CaregiverPreferenceProfile{
		CaregiverID:          caregiverID,
		OrganizationID:       orgID,
		MaxShiftsPerWeek:     intn(3, 6),
		MaxHoursPerWeek:      float64(intn(20, 45)),
		MaxTravelDistance:    float64(intn(5, 30)),
		AcceptUrgent:         randomdata.Boolean(),
		AcceptWeekends:       randomdata.Boolean(),
		AcceptHolidays:       randomdata.Boolean(),
		AcceptAutoAssignment: randomdata.Boolean(),
	}
}

func randomGender() apis.Gender {
	switch intn(0, 3) {
	case 0:
		return apis.GenderMale
	case 1:
		return apis.GenderFemale
	default:
		return apis.GenderUnspecified
	}
}

func randomLocation() apis.Location {
	lat := randomdata.Decimal(25, 49, 4)
	lng := randomdata.Decimal(-124, -67, 4)
	return apis.Location{
		Address:   randomdata.Alphanumeric(8) + " Main St, " + randomdata.City(),
		Latitude:  &lat,
		Longitude: &lng,
	}
}
