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

// Package ml is the MLBlender: an optional post-processing step that
// nudges the rule-based score toward a model's prediction without ever
// replacing the rule-based eligibility gate. The inference client is an
// opaque interface; no model artifact format is defined or shipped here.
package ml

import (
	"context"
	"time"

	"github.com/neighborhood-lab/care-commons-sub009/pkg/apis"
	apierrors "github.com/neighborhood-lab/care-commons-sub009/pkg/apis/errors"
)

// FeatureVector is the flat input handed to the inference client. Field
// names are stable across model versions; adding a field is safe, renaming
// one is not.
type FeatureVector struct {
	SkillMatch        float64
	AvailabilityMatch float64
	ProximityMatch    float64
	PreferenceMatch   float64
	ExperienceMatch   float64
	ReliabilityMatch  float64
	ComplianceMatch   float64
	CapacityMatch     float64
	Distance          float64
	PreviousVisits    int
	RemainingWeeklyMinutes int
	ShiftDurationMinutes   int
	ShiftPriority          int
	ReliabilityScore       float64

	DayOfWeek    int // time.Sunday(0)..time.Saturday(6), shift's own timezone
	HourOfDay    int
	IsWeekend    bool
	IsEvening    bool // 17:00-21:00
	IsNight      bool // 21:00-06:00
	TimeToShiftHours float64

	CaregiverTenureYears       float64
	Recent30DayAcceptanceRate  float64
	Recent30DayNoShowRate      float64
	RecentRejectionCount       int
	AverageClientRating        float64
	ClientTotalVisits          int
	CompetingCaregiversCount   int

	RequiresSpecialization     bool
	RequiresGenderPreference   bool
	RequiresLanguagePreference bool
}

// featuresFor builds the stable feature contract from the data already
// assembled for rule-based scoring. competingCaregivers is the size of the
// coarse candidate pool considered alongside this one, 0 when unknown (the
// self-select path evaluates one shift against one caregiver at a time).
func featuresFor(shift apis.OpenShift, candidate apis.MatchCandidate, caregiverCtx apis.CaregiverContext, now time.Time, competingCaregivers int) FeatureVector {
	distance := 0.0
	if candidate.Distance != nil {
		distance = *candidate.Distance
	}
	start := shift.StartTime
	hour := start.Hour()

	recentTotal := caregiverCtx.RecentAcceptCount + caregiverCtx.RecentRejectionCount + caregiverCtx.RecentNoShowCount
	var acceptanceRate, noShowRate float64
	if recentTotal > 0 {
		acceptanceRate = float64(caregiverCtx.RecentAcceptCount) / float64(recentTotal)
		noShowRate = float64(caregiverCtx.RecentNoShowCount) / float64(recentTotal)
	}

	return FeatureVector{
		SkillMatch:             candidate.Dimensions.SkillMatch,
		AvailabilityMatch:      candidate.Dimensions.AvailabilityMatch,
		ProximityMatch:         candidate.Dimensions.ProximityMatch,
		PreferenceMatch:        candidate.Dimensions.PreferenceMatch,
		ExperienceMatch:        candidate.Dimensions.ExperienceMatch,
		ReliabilityMatch:       candidate.Dimensions.ReliabilityMatch,
		ComplianceMatch:        candidate.Dimensions.ComplianceMatch,
		CapacityMatch:          candidate.Dimensions.CapacityMatch,
		Distance:               distance,
		PreviousVisits:         candidate.PreviousVisits,
		RemainingWeeklyMinutes: candidate.RemainingWeeklyMinutes,
		ShiftDurationMinutes:   shift.DurationMinutes,
		ShiftPriority:          int(shift.Priority),
		ReliabilityScore:       candidate.ReliabilityScore,

		DayOfWeek:        int(start.Weekday()),
		HourOfDay:        hour,
		IsWeekend:        start.Weekday() == time.Saturday || start.Weekday() == time.Sunday,
		IsEvening:        hour >= 17 && hour < 21,
		IsNight:          hour >= 21 || hour < 6,
		TimeToShiftHours: start.Sub(now).Hours(),

		CaregiverTenureYears:      caregiverCtx.Caregiver.TenureYears,
		Recent30DayAcceptanceRate: acceptanceRate,
		Recent30DayNoShowRate:     noShowRate,
		RecentRejectionCount:      caregiverCtx.RecentRejectionCount,
		AverageClientRating:       caregiverCtx.LatestClientRating,
		ClientTotalVisits:         caregiverCtx.PreviousVisitsWithClient,
		CompetingCaregiversCount:  competingCaregivers,

		RequiresSpecialization:     len(shift.RequiredSkills) > 0,
		RequiresGenderPreference:   shift.RequiredGender != "",
		RequiresLanguagePreference: shift.RequiredLanguage != "",
	}
}

// Prediction is the inference client's response: a predicted score in
// [0,1] and a confidence in [0,1] the blend formula uses to decide
// whether to trust it at all. Score is on the model's native [0,1] scale;
// Blend rescales it to the candidate's 0-100 score space.
type Prediction struct {
	Score      float64
	Confidence float64
}

// Predictor is the opaque inference client seam; any real implementation
// (gRPC, HTTP, in-process) satisfies it without this package knowing
// which.
type Predictor interface {
	Predict(ctx context.Context, features FeatureVector) (Prediction, error)
}

// Blender implements matching.Blender.
type Blender struct {
	Predictor Predictor
}

// New constructs a Blender.
func New(p Predictor) *Blender {
	return &Blender{Predictor: p}
}

// Blend implements the formula: final = ruleBased*(1-w) + predicted*100*w,
// where predicted is the Predictor's native [0,1] score rescaled onto the
// candidate's 0-100 score space. A prediction below cfg.MinMLConfidence is
// discarded when cfg.FallbackToRuleBased is set; otherwise low-confidence
// predictions still blend in at face value.
func (b *Blender) Blend(ctx context.Context, shift apis.OpenShift, candidate apis.MatchCandidate, caregiverCtx apis.CaregiverContext, competingCaregivers int, cfg apis.MatchingConfiguration) (apis.MatchCandidate, error) {
	if b.Predictor == nil {
		return candidate, apierrors.Fatal("NO_PREDICTOR", "ml blending enabled with no predictor configured", nil)
	}
	pred, err := b.Predictor.Predict(ctx, featuresFor(shift, candidate, caregiverCtx, time.Now(), competingCaregivers))
	if err != nil {
		return candidate, apierrors.Transient("ML_PREDICT_FAILED", "inference call failed", err)
	}
	if pred.Confidence < cfg.MinMLConfidence && cfg.FallbackToRuleBased {
		return candidate, nil
	}

	w := cfg.MLWeight
	blended := candidate
	blended.OverallScore = candidate.OverallScore*(1-w) + pred.Score*100*w
	blended.MLBlended = true
	blended.MLConfidence = pred.Confidence
	return blended, nil
}
