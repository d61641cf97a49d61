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

package scoring

import (
	"fmt"

	"github.com/neighborhood-lab/care-commons-sub009/pkg/apis"
)

// buildReasons produces the compact justification list attached to a
// candidate. Ties are broken by insertion order, which is why every branch
// below appends in a fixed sequence rather than sorting by magnitude.
func buildReasons(shift apis.OpenShift, ctx apis.CaregiverContext, cfg apis.MatchingConfiguration, dims apis.DimensionScores, issues []apis.EligibilityIssue) []apis.MatchReason {
	var reasons []apis.MatchReason

	for _, issue := range issues {
		impact := "negative"
		if issue.Severity == apis.SeverityWarning {
			impact = "neutral"
		}
		reasons = append(reasons, apis.MatchReason{
			Category:    "eligibility",
			Description: issue.Detail,
			Impact:      impact,
			Weight:      0,
		})
	}

	reasons = append(reasons, dimensionReason("skillMatch", dims.SkillMatch, cfg.Weights.SkillMatch))
	reasons = append(reasons, dimensionReason("availabilityMatch", dims.AvailabilityMatch, cfg.Weights.AvailabilityMatch))
	reasons = append(reasons, dimensionReason("proximityMatch", dims.ProximityMatch, cfg.Weights.ProximityMatch))
	reasons = append(reasons, dimensionReason("preferenceMatch", dims.PreferenceMatch, cfg.Weights.PreferenceMatch))
	reasons = append(reasons, dimensionReason("experienceMatch", dims.ExperienceMatch, cfg.Weights.ExperienceMatch))
	reasons = append(reasons, dimensionReason("reliabilityMatch", dims.ReliabilityMatch, cfg.Weights.ReliabilityMatch))
	reasons = append(reasons, dimensionReason("complianceMatch", dims.ComplianceMatch, cfg.Weights.ComplianceMatch))
	reasons = append(reasons, dimensionReason("capacityMatch", dims.CapacityMatch, cfg.Weights.CapacityMatch))

	for _, id := range shift.PreferredCaregivers {
		if id == ctx.Caregiver.ID {
			reasons = append(reasons, apis.MatchReason{
				Category:    "continuity",
				Description: "caregiver is on the client's preferred list",
				Impact:      "positive",
				Weight:      cfg.Weights.PreferenceMatch,
			})
			break
		}
	}
	return reasons
}

func dimensionReason(name string, score, weight float64) apis.MatchReason {
	impact := "neutral"
	switch {
	case score >= 70:
		impact = "positive"
	case score < 50:
		impact = "negative"
	}
	return apis.MatchReason{
		Category:    name,
		Description: fmt.Sprintf("%s scored %.0f", name, score),
		Impact:      impact,
		Weight:      weight,
	}
}
