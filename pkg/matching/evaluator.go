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

// Package matching is the I/O-bound wrapper around pkg/scoring that
// assembles caregiver context from the Store with bounded fan-out, then
// ranks the resulting candidates.
package matching

import (
	"context"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/neighborhood-lab/care-commons-sub009/pkg/apis"
	apierrors "github.com/neighborhood-lab/care-commons-sub009/pkg/apis/errors"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/log"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/ml/experiment"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/scoring"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/store"
)

// Blender is the optional MLBlender seam. pkg/ml.Blender satisfies this.
type Blender interface {
	Blend(ctx context.Context, shift apis.OpenShift, candidate apis.MatchCandidate, caregiverCtx apis.CaregiverContext, competingCaregivers int, cfg apis.MatchingConfiguration) (apis.MatchCandidate, error)
}

// Evaluator is the MatchEvaluator.
type Evaluator struct {
	Store   store.Store
	Blender Blender // nil => rule-based only
}

// New constructs an Evaluator. blender may be nil.
func New(s store.Store, blender Blender) *Evaluator {
	return &Evaluator{Store: s, Blender: blender}
}

// Options bounds a rankShift call.
type Options struct {
	FanOut int       // 0 => min(N_cpu*4, 64)
	Now    time.Time // zero => time.Now()
}

func defaultFanOut() int {
	n := runtime.NumCPU() * 4
	if n > 64 {
		n = 64
	}
	if n < 1 {
		n = 1
	}
	return n
}

// RankShift implements rankShift: pull the coarse candidate
// set, build context per caregiver under bounded fan-out, invoke the
// kernel (optionally blended), and rank. Per-candidate context failures
// are logged and defensive-defaulted rather than aborting the batch
//; RankShift itself only returns an error
// if the coarse candidate fetch or the shift lookup fails.
func (e *Evaluator) RankShift(ctx context.Context, shiftID string, cfg apis.MatchingConfiguration, maxCandidates int, opts Options) ([]apis.MatchCandidate, error) {
	shift, err := e.Store.GetShift(ctx, shiftID)
	if err != nil {
		return nil, err
	}
	cfg, err = e.EffectiveConfig(ctx, shift.ID, cfg)
	if err != nil {
		return nil, err
	}
	candidates, err := e.evaluateShift(ctx, shift, cfg, opts)
	if err != nil {
		return nil, err
	}
	ranked := Rank(candidates)
	if maxCandidates > 0 && len(ranked) > maxCandidates {
		ranked = ranked[:maxCandidates]
	}
	return ranked, nil
}

// EligibleShiftsForCaregiver is the inverse form used by the self-select
// path: only MATCHED/NEW/NO_MATCH shifts are considered and
// the caller's minimum-score floor is applied. "MATCHED" is read here as
// the shift's non-terminal matching states (NEW, MATCHING, NO_MATCH);
// ASSIGNED/EXPIRED/CANCELLED shifts are never offered for self-select.
func (e *Evaluator) EligibleShiftsForCaregiver(ctx context.Context, caregiverID string, cfg apis.MatchingConfiguration, minScore float64, opts Options) ([]apis.MatchCandidate, error) {
	shifts, _, err := e.Store.FindOpenShifts(ctx, store.ShiftFilter{
		Status: []apis.ShiftStatus{apis.ShiftNew, apis.ShiftMatching, apis.ShiftNoMatch},
	}, store.Page{Limit: 0})
	if err != nil {
		return nil, err
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	var out []apis.MatchCandidate
	for _, shift := range shifts {
		caregiverCtx, err := e.Store.CaregiverContext(ctx, caregiverID, shift)
		if err != nil {
			log.FromContext(ctx).V(1).Info("skipping shift for self-select, context fetch failed", "shiftID", shift.ID, "caregiverID", caregiverID, "error", err.Error())
			continue
		}
		shiftCfg, err := e.EffectiveConfig(ctx, shift.ID, cfg)
		if err != nil {
			log.FromContext(ctx).V(1).Info("skipping shift for self-select, experiment assignment failed", "shiftID", shift.ID, "caregiverID", caregiverID, "error", err.Error())
			continue
		}
		candidate := scoring.Evaluate(shift, caregiverCtx, shiftCfg, now)
		// competingCaregivers is unknown here: self-select evaluates one
		// shift against one caregiver at a time, not the full coarse pool.
		candidate = e.maybeBlend(ctx, shift, candidate, caregiverCtx, 0, shiftCfg)
		if candidate.IsEligible && candidate.OverallScore >= minScore {
			out = append(out, candidate)
		}
	}
	return Rank(out), nil
}

// EffectiveConfig resolves the configuration a single shift is actually
// evaluated under: unchanged if no A/B experiment is configured, otherwise
// the base configuration with the shift's assigned variant's ML fields
// applied. The assignment is looked up first and, if absent, computed by
// experiment.AssignVariant and persisted; CreateExperimentAssignment is
// write-once, so a concurrent match for the same shift converges on the
// same variant rather than racing it.
func (e *Evaluator) EffectiveConfig(ctx context.Context, shiftID string, cfg apis.MatchingConfiguration) (apis.MatchingConfiguration, error) {
	variants := cfg.VariantNames()
	if len(variants) == 0 {
		return cfg, nil
	}
	assignment, err := e.Store.GetExperimentAssignment(ctx, shiftID)
	if err != nil {
		if !apierrors.Is(err, apierrors.KindNotFound) {
			return apis.MatchingConfiguration{}, err
		}
		variant, hashErr := experiment.AssignVariant(shiftID, variants)
		if hashErr != nil {
			return apis.MatchingConfiguration{}, hashErr
		}
		assignment, err = e.Store.CreateExperimentAssignment(ctx, apis.ExperimentAssignment{
			ShiftID:    shiftID,
			Variant:    variant,
			AssignedAt: time.Now(),
		})
		if err != nil {
			return apis.MatchingConfiguration{}, err
		}
	}
	return cfg.WithVariant(assignment.Variant), nil
}

// evaluateShift fans out CaregiverContext + kernel evaluation across the
// coarse candidate set with bounded concurrency.
func (e *Evaluator) evaluateShift(ctx context.Context, shift apis.OpenShift, cfg apis.MatchingConfiguration, opts Options) ([]apis.MatchCandidate, error) {
	caregivers, err := e.Store.FindCandidatesForShift(ctx, shift)
	if err != nil {
		return nil, err
	}

	fanOut := opts.FanOut
	if fanOut <= 0 {
		fanOut = defaultFanOut()
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	results := make([]apis.MatchCandidate, len(caregivers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOut)

	var mu sync.Mutex
	var errs error

	for i, caregiver := range caregivers {
		i, caregiver := i, caregiver
		g.Go(func() error {
			caregiverCtx, err := e.Store.CaregiverContext(gctx, caregiver.ID, shift)
			if err != nil {
				// Defensive defaults: don't abort the batch for
				// one caregiver's context failure.
				log.FromContext(ctx).V(1).Info("caregiver context fetch failed, using defensive defaults", "shiftID", shift.ID, "caregiverID", caregiver.ID, "error", err.Error())
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
				caregiverCtx = apis.CaregiverContext{
					Caregiver:        caregiver,
					Distance:         nil, // unknown => proximity 50
					ReliabilityScore: 50,
					ComplianceStatus: apis.CompliancePendingVerification,
				}
			}
			candidate := scoring.Evaluate(shift, caregiverCtx, cfg, now)
			candidate = e.maybeBlend(ctx, shift, candidate, caregiverCtx, len(caregivers)-1, cfg)
			results[i] = candidate
			return nil
		})
	}
	// errgroup.Go bodies above never return a non-nil error themselves (a
	// per-candidate failure is absorbed into defensive defaults), so
	// cancellation/deadline is checked on ctx after Wait and discards the
	// partial results.
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if errs != nil {
		log.FromContext(ctx).Info("some candidate contexts fell back to defensive defaults", "shiftID", shift.ID, "failureCount", len(multierr.Errors(errs)))
	}
	return results, nil
}

// maybeBlend hands the candidate to the optional MLBlender, falling back
// to the rule-based result on any blend error.
func (e *Evaluator) maybeBlend(ctx context.Context, shift apis.OpenShift, candidate apis.MatchCandidate, caregiverCtx apis.CaregiverContext, competingCaregivers int, cfg apis.MatchingConfiguration) apis.MatchCandidate {
	if e.Blender == nil || !cfg.MLEnabled {
		return candidate
	}
	blended, err := e.Blender.Blend(ctx, shift, candidate, caregiverCtx, competingCaregivers, cfg)
	if err != nil {
		log.FromContext(ctx).V(1).Info("ml blend failed, falling back to rule-based score", "shiftID", shift.ID, "caregiverID", candidate.CaregiverID, "error", err.Error())
		return candidate
	}
	return blended
}

// Rank implements ordering: eligible before ineligible, then
// higher overallScore, then (lower distance, earlier caregiver id).
func Rank(candidates []apis.MatchCandidate) []apis.MatchCandidate {
	out := append([]apis.MatchCandidate(nil), candidates...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.IsEligible != b.IsEligible {
			return a.IsEligible
		}
		if a.OverallScore != b.OverallScore {
			return a.OverallScore > b.OverallScore
		}
		ad, bd := distanceOrMax(a.Distance), distanceOrMax(b.Distance)
		if ad != bd {
			return ad < bd
		}
		return a.CaregiverID < b.CaregiverID
	})
	return out
}

func distanceOrMax(d *float64) float64 {
	if d == nil {
		return math.MaxFloat64
	}
	return *d
}
