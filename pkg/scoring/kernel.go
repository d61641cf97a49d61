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

// Package scoring is a pure, deterministic function from (OpenShift,
// CaregiverContext, MatchingConfiguration) to a MatchCandidate. It performs
// no I/O and never suspends.
package scoring

import (
	"math"
	"time"

	"github.com/samber/lo"
	"golang.org/x/text/language"

	"github.com/neighborhood-lab/care-commons-sub009/pkg/apis"
)

// travelBuffer pads a shift window when checking for scheduling conflicts,
// matching "overlapping the shift window ± travel buffer".
const travelBuffer = 30 * time.Minute

// Evaluate runs the eligibility pass and every dimensional score, then
// assembles the MatchCandidate. Equal inputs always yield byte-equal output:
// no clock, randomness, or map-iteration order leaks into the result other
// than the caller-supplied `now`.
func Evaluate(shift apis.OpenShift, ctx apis.CaregiverContext, cfg apis.MatchingConfiguration, now time.Time) apis.MatchCandidate {
	issues := eligibility(shift, ctx, cfg)
	eligible := !lo.SomeBy(issues, func(i apis.EligibilityIssue) bool { return i.Severity == apis.SeverityBlocking })

	dims := apis.DimensionScores{
		SkillMatch:        skillMatch(shift, ctx),
		AvailabilityMatch: availabilityMatch(ctx),
		ProximityMatch:    proximityMatch(ctx, cfg),
		PreferenceMatch:   preferenceMatch(shift, ctx),
		ExperienceMatch:   experienceMatch(ctx),
		ReliabilityMatch:  reliabilityMatch(ctx, cfg),
		ComplianceMatch:   complianceMatch(ctx),
		CapacityMatch:     capacityMatch(shift, ctx),
	}

	overall := overallScore(dims, cfg.Weights)
	quality := qualityBand(overall, eligible)
	reasons := buildReasons(shift, ctx, cfg, dims, issues)

	return apis.MatchCandidate{
		ShiftID:                shift.ID,
		CaregiverID:            ctx.Caregiver.ID,
		OverallScore:           overall,
		Dimensions:             dims,
		IsEligible:             eligible,
		Issues:                 issues,
		Quality:                quality,
		Distance:               ctx.Distance,
		Conflicts:              len(ctx.ConflictingVisits),
		RemainingWeeklyMinutes: remainingWeeklyMinutes(ctx),
		PreviousVisits:         ctx.PreviousVisitsWithClient,
		ReliabilityScore:       ctx.ReliabilityScore,
		Reasons:                reasons,
		ComputedAt:             now,
	}
}

func remainingWeeklyMinutes(ctx apis.CaregiverContext) int {
	if ctx.MaxHoursPerWeek <= 0 {
		return math.MaxInt32
	}
	remaining := int(ctx.MaxHoursPerWeek*60) - ctx.CurrentWeekMinutes
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// eligibility runs the ordered blocking/warning checks. Order matters: it
// is the order issues are reported in, and ties in the reason list are
// broken by this insertion order.
func eligibility(shift apis.OpenShift, ctx apis.CaregiverContext, cfg apis.MatchingConfiguration) []apis.EligibilityIssue {
	var issues []apis.EligibilityIssue

	if lo.Contains(shift.BlockedCaregivers, ctx.Caregiver.ID) {
		issues = append(issues, apis.EligibilityIssue{Type: apis.IssueBlockedByClient, Severity: apis.SeverityBlocking, Detail: "caregiver is blocked by this client"})
	}
	if cfg.RequireExactSkillMatch {
		if missing := missingSkills(shift, ctx); len(missing) > 0 {
			issues = append(issues, apis.EligibilityIssue{Type: apis.IssueMissingSkill, Severity: apis.SeverityBlocking, Detail: "missing required skills: " + joinComma(missing)})
		}
	}
	if cfg.RequireActiveCertifications {
		if missing := missingCertifications(shift, ctx); len(missing) > 0 {
			issues = append(issues, apis.EligibilityIssue{Type: apis.IssueMissingCertification, Severity: apis.SeverityBlocking, Detail: "missing or inactive certifications: " + joinComma(missing)})
		}
	}
	if len(ctx.ConflictingVisits) > 0 {
		issues = append(issues, apis.EligibilityIssue{Type: apis.IssueScheduleConflict, Severity: apis.SeverityBlocking, Detail: "caregiver has a conflicting visit"})
	}
	if ctx.ComplianceStatus == apis.ComplianceExpired || ctx.ComplianceStatus == apis.ComplianceNonCompliant {
		issues = append(issues, apis.EligibilityIssue{Type: apis.IssueNotCompliant, Severity: apis.SeverityBlocking, Detail: "caregiver compliance status is " + string(ctx.ComplianceStatus)})
	}
	if ctx.Distance != nil && *ctx.Distance > cfg.MaxTravelDistance {
		issues = append(issues, apis.EligibilityIssue{Type: apis.IssueDistanceTooFar, Severity: apis.SeverityBlocking, Detail: "distance exceeds configured maximum"})
	}
	if ctx.MaxHoursPerWeek > 0 && float64(ctx.CurrentWeekMinutes+shift.DurationMinutes) > ctx.MaxHoursPerWeek*60 {
		issues = append(issues, apis.EligibilityIssue{Type: apis.IssueOverHourLimit, Severity: apis.SeverityBlocking, Detail: "shift would exceed caregiver's weekly hour cap"})
	}
	if ctx.ComplianceStatus == apis.ComplianceExpiringSoon {
		issues = append(issues, apis.EligibilityIssue{Type: apis.IssueExpiredCredential, Severity: apis.SeverityWarning, Detail: "a credential is expiring soon"})
	}
	if cfg.RespectGenderPreference && shift.RequiredGender != apis.GenderUnspecified && shift.RequiredGender != ctx.Caregiver.Gender {
		issues = append(issues, apis.EligibilityIssue{Type: apis.IssueGenderMismatch, Severity: apis.SeverityWarning, Detail: "caregiver gender does not match client preference"})
	}
	if cfg.RespectLanguagePreference && shift.RequiredLanguage != "" && !speaksLanguage(ctx.Caregiver.Languages, shift.RequiredLanguage) {
		issues = append(issues, apis.EligibilityIssue{Type: apis.IssueLanguageMismatch, Severity: apis.SeverityWarning, Detail: "caregiver does not speak the required language"})
	}
	return issues
}

func missingSkills(shift apis.OpenShift, ctx apis.CaregiverContext) []string {
	return lo.Filter(shift.RequiredSkills, func(s string, _ int) bool {
		return !lo.Contains(ctx.Caregiver.Skills, s)
	})
}

func missingCertifications(shift apis.OpenShift, ctx apis.CaregiverContext) []string {
	held := lo.SliceToMap(ctx.Caregiver.Certifications, func(c apis.Certification) (string, apis.ComplianceStatus) {
		return c.Name, c.Status
	})
	return lo.Filter(shift.RequiredCertifications, func(name string, _ int) bool {
		status, ok := held[name]
		return !ok || status != apis.ComplianceCompliant
	})
}

// speaksLanguage compares BCP-47 tags via golang.org/x/text/language so
// regional variants ("en-US" required, "en" held) are not treated as a
// mismatch the way raw string equality would.
func speaksLanguage(held []string, required string) bool {
	reqTag, err := language.Parse(required)
	if err != nil {
		return lo.Contains(held, required)
	}
	reqBase, _ := reqTag.Base()
	for _, h := range held {
		hTag, err := language.Parse(h)
		if err != nil {
			continue
		}
		hBase, _ := hTag.Base()
		if hBase == reqBase {
			return true
		}
	}
	return false
}

func joinComma(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}

func clamp(v, min, max float64) float64 {
	return math.Max(min, math.Min(max, v))
}

func skillMatch(shift apis.OpenShift, ctx apis.CaregiverContext) float64 {
	score := 100.0
	score -= float64(len(missingSkills(shift, ctx))) * 30
	score -= float64(len(missingCertifications(shift, ctx))) * 40
	return clamp(score, 0, 100)
}

func availabilityMatch(ctx apis.CaregiverContext) float64 {
	if len(ctx.ConflictingVisits) > 0 {
		return 0
	}
	return 100
}

func proximityMatch(ctx apis.CaregiverContext, cfg apis.MatchingConfiguration) float64 {
	if ctx.Distance == nil {
		return 50
	}
	d := *ctx.Distance
	if d <= 0 {
		return 100
	}
	if cfg.MaxTravelDistance <= 0 || d > cfg.MaxTravelDistance {
		return 0
	}
	// linear from 100 at 0 miles to 20 at maxTravelDistance.
	return clamp(100-(80*d/cfg.MaxTravelDistance), 0, 100)
}

func preferenceMatch(shift apis.OpenShift, ctx apis.CaregiverContext) float64 {
	score := 50.0
	if lo.Contains(shift.PreferredCaregivers, ctx.Caregiver.ID) {
		score += 30
	}
	if lo.Contains(shift.BlockedCaregivers, ctx.Caregiver.ID) {
		score = 0
	}
	if shift.RequiredGender != apis.GenderUnspecified {
		if shift.RequiredGender == ctx.Caregiver.Gender {
			score += 10
		} else {
			score -= 10
		}
	}
	if shift.RequiredLanguage != "" {
		if speaksLanguage(ctx.Caregiver.Languages, shift.RequiredLanguage) {
			score += 10
		} else {
			score -= 15
		}
	}
	return clamp(score, 0, 100)
}

func experienceMatch(ctx apis.CaregiverContext) float64 {
	score := 50.0
	score += math.Min(30, float64(ctx.PreviousVisitsWithClient)*5)
	if ctx.LatestClientRating > 0 {
		score += 10 * (ctx.LatestClientRating - 3)
	}
	return clamp(score, 0, 100)
}

func reliabilityMatch(ctx apis.CaregiverContext, cfg apis.MatchingConfiguration) float64 {
	score := ctx.ReliabilityScore
	if cfg.PenalizeFrequentRejections {
		score -= 5 * float64(ctx.RecentRejectionCount)
	}
	if cfg.BoostReliablePerformers && ctx.ReliabilityScore >= 90 {
		score += 10
	}
	return clamp(score, 0, 100)
}

func complianceMatch(ctx apis.CaregiverContext) float64 {
	switch ctx.ComplianceStatus {
	case apis.ComplianceCompliant:
		return 100
	case apis.ComplianceExpiringSoon:
		return 70
	case apis.CompliancePendingVerification:
		return 50
	default:
		return 0
	}
}

func capacityMatch(shift apis.OpenShift, ctx apis.CaregiverContext) float64 {
	if ctx.MaxHoursPerWeek <= 0 {
		return 100
	}
	capMinutes := ctx.MaxHoursPerWeek * 60
	resultingMinutes := float64(ctx.CurrentWeekMinutes + shift.DurationMinutes)
	if resultingMinutes > capMinutes {
		return 0
	}
	utilization := resultingMinutes / capMinutes
	switch {
	case utilization >= 0.6 && utilization <= 0.8:
		return 100
	case utilization < 0.6:
		return 80
	default:
		return 60
	}
}

func overallScore(dims apis.DimensionScores, w apis.Weights) float64 {
	sum := dims.SkillMatch*w.SkillMatch +
		dims.AvailabilityMatch*w.AvailabilityMatch +
		dims.ProximityMatch*w.ProximityMatch +
		dims.PreferenceMatch*w.PreferenceMatch +
		dims.ExperienceMatch*w.ExperienceMatch +
		dims.ReliabilityMatch*w.ReliabilityMatch +
		dims.ComplianceMatch*w.ComplianceMatch +
		dims.CapacityMatch*w.CapacityMatch
	return math.Round(sum / 100)
}

func qualityBand(overall float64, eligible bool) apis.QualityBand {
	if !eligible {
		return apis.QualityIneligible
	}
	switch {
	case overall >= 85:
		return apis.QualityExcellent
	case overall >= 70:
		return apis.QualityGood
	case overall >= 50:
		return apis.QualityFair
	default:
		return apis.QualityPoor
	}
}
