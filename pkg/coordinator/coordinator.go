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

// Package coordinator is the CoordinatorAPI: a thin command surface in
// front of Store, MatchEvaluator, ProposalManager, and BulkOptimizer so
// the HTTP adapter (and anything else that wants to drive the engine)
// depends on one narrow interface instead of wiring every component
// itself.
package coordinator

import (
	"context"
	"time"

	"github.com/neighborhood-lab/care-commons-sub009/pkg/apis"
	apierrors "github.com/neighborhood-lab/care-commons-sub009/pkg/apis/errors"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/matching"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/metrics"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/optimizer"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/proposal"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/store"
)

// defaultKPIWindow is the trailing window GetMatchingKPI and
// GetExperimentResults aggregate over when the caller doesn't specify one.
const defaultKPIWindow = 7 * 24 * time.Hour

// Coordinator wires the engine's components behind one command surface.
type Coordinator struct {
	Store      store.Store
	Evaluator  *matching.Evaluator
	Proposals  *proposal.Manager
	Optimizer  *optimizer.Optimizer
}

// New constructs a Coordinator from its already-wired components.
func New(s store.Store, eval *matching.Evaluator, proposals *proposal.Manager, opt *optimizer.Optimizer) *Coordinator {
	return &Coordinator{Store: s, Evaluator: eval, Proposals: proposals, Optimizer: opt}
}

func (c *Coordinator) requirePermission(user apis.UserContext, perm string) error {
	if !user.HasPermission(perm) {
		return apierrors.Validation("FORBIDDEN", "user lacks required permission: "+perm)
	}
	return nil
}

// CreateShift validates and persists a new open shift.
func (c *Coordinator) CreateShift(ctx context.Context, user apis.UserContext, shift apis.OpenShift) (apis.OpenShift, error) {
	if err := c.requirePermission(user, "shift:create"); err != nil {
		return apis.OpenShift{}, err
	}
	shift.OrganizationID = user.OrganizationID
	shift.Status = apis.ShiftNew
	return c.Store.CreateShift(ctx, shift)
}

// MatchShift runs the full rank + propose pipeline for one shift: it
// resolves the effective configuration, ranks candidates, and writes
// proposals for the ones that qualify.
func (c *Coordinator) MatchShift(ctx context.Context, user apis.UserContext, shiftID string) ([]apis.AssignmentProposal, error) {
	if err := c.requirePermission(user, "shift:match"); err != nil {
		return nil, err
	}
	shift, err := c.Store.GetShift(ctx, shiftID)
	if err != nil {
		return nil, err
	}
	cfg, err := c.Store.GetEffectiveConfiguration(ctx, shift.OrganizationID, shift.BranchID)
	if err != nil {
		return nil, err
	}
	cfg, err = c.Evaluator.EffectiveConfig(ctx, shiftID, cfg)
	if err != nil {
		return nil, err
	}
	ranked, err := c.Evaluator.RankShift(ctx, shiftID, cfg, cfg.MaxProposalsPerShift, matching.Options{FanOut: cfg.EvaluatorFanOut})
	if err != nil {
		return nil, err
	}
	return c.Proposals.Propose(ctx, shiftID, ranked, cfg, proposal.ProposeOptions{})
}

// RespondToProposal is the thin pass-through to ProposalManager.Respond,
// re-checking caller identity against the proposal's caregiver for
// self-service callers.
func (c *Coordinator) RespondToProposal(ctx context.Context, user apis.UserContext, proposalID string, opts proposal.RespondOptions) (apis.AssignmentProposal, error) {
	p, err := c.Store.GetProposal(ctx, proposalID)
	if err != nil {
		return apis.AssignmentProposal{}, err
	}
	if !user.HasPermission("proposal:respond:any") && user.UserID != p.CaregiverID {
		return apis.AssignmentProposal{}, apierrors.Validation("FORBIDDEN", "user may not respond to another caregiver's proposal")
	}
	opts.Actor = user.UserID
	return c.Proposals.Respond(ctx, proposalID, opts)
}

// SelfSelectShift lets a caregiver browse and claim an eligible shift
// directly, per the self-select path.
func (c *Coordinator) SelfSelectShift(ctx context.Context, user apis.UserContext, shiftID string) (apis.AssignmentProposal, error) {
	if err := c.requirePermission(user, "shift:self-select"); err != nil {
		return apis.AssignmentProposal{}, err
	}
	shift, err := c.Store.GetShift(ctx, shiftID)
	if err != nil {
		return apis.AssignmentProposal{}, err
	}
	cfg, err := c.Store.GetEffectiveConfiguration(ctx, shift.OrganizationID, shift.BranchID)
	if err != nil {
		return apis.AssignmentProposal{}, err
	}
	cfg, err = c.Evaluator.EffectiveConfig(ctx, shiftID, cfg)
	if err != nil {
		return apis.AssignmentProposal{}, err
	}
	ranked, err := c.Evaluator.RankShift(ctx, shiftID, cfg, 0, matching.Options{})
	if err != nil {
		return apis.AssignmentProposal{}, err
	}
	var candidate apis.MatchCandidate
	found := false
	for _, r := range ranked {
		if r.CaregiverID == user.UserID {
			candidate, found = r, true
			break
		}
	}
	if !found {
		return apis.AssignmentProposal{}, apierrors.NotFound("MatchCandidate", user.UserID)
	}

	prefs, err := c.Store.GetPreferences(ctx, user.UserID)
	if err != nil && !apierrors.Is(err, apierrors.KindNotFound) {
		return apis.AssignmentProposal{}, err
	}
	return c.Proposals.CaregiverSelectShift(ctx, user.UserID, shiftID, candidate, prefs, cfg, time.Now())
}

// RunBulkMatch creates and executes an optimizer job synchronously,
// writing proposals for every planned pairing.
func (c *Coordinator) RunBulkMatch(ctx context.Context, user apis.UserContext, req apis.BulkMatchRequest) (apis.BulkMatchRequest, error) {
	if err := c.requirePermission(user, "shift:bulk-match"); err != nil {
		return apis.BulkMatchRequest{}, err
	}
	req.OrganizationID = user.OrganizationID
	req.Status = apis.BulkRunning
	job, err := c.Store.CreateBulkMatchRequest(ctx, req)
	if err != nil {
		return apis.BulkMatchRequest{}, err
	}

	cfg, err := c.Store.GetEffectiveConfiguration(ctx, user.OrganizationID, "")
	if req.ConfigID != "" {
		if byID, cErr := c.Store.GetConfiguration(ctx, req.ConfigID); cErr == nil {
			cfg = byID
		}
	}
	if err != nil {
		return c.failBulkJob(ctx, job)
	}

	result, err := c.Optimizer.Run(ctx, job, cfg)
	if err != nil {
		return c.failBulkJob(ctx, job)
	}

	proposalsGenerated := 0
	for _, plan := range result.Plans {
		if plan.CaregiverID == "" {
			continue
		}
		candidate := apis.MatchCandidate{
			ShiftID: plan.ShiftID, CaregiverID: plan.CaregiverID,
			OverallScore: plan.Score, IsEligible: true, Quality: apis.QualityGood,
		}
		if _, err := c.Proposals.Propose(ctx, plan.ShiftID, []apis.MatchCandidate{candidate}, cfg, proposal.ProposeOptions{}); err == nil {
			proposalsGenerated++
		}
	}

	now := time.Now()
	return c.Store.UpdateBulkMatchRequest(ctx, job.ID, job.Version, func(j *apis.BulkMatchRequest) {
		j.Status = apis.BulkCompleted
		j.TotalShifts = result.ShiftsConsidered
		j.MatchedShifts = result.ShiftsAssigned
		j.UnmatchedShifts = len(result.Unmatched)
		j.ProposalsGenerated = proposalsGenerated
		j.CompletedAt = &now
	})
}

func (c *Coordinator) failBulkJob(ctx context.Context, job apis.BulkMatchRequest) (apis.BulkMatchRequest, error) {
	now := time.Now()
	_, _ = c.Store.UpdateBulkMatchRequest(ctx, job.ID, job.Version, func(j *apis.BulkMatchRequest) {
		j.Status = apis.BulkFailed
		j.CompletedAt = &now
	})
	return apis.BulkMatchRequest{}, apierrors.Fatal("BULK_MATCH_FAILED", "bulk match run failed", nil)
}

// UpsertPreferences is the thin pass-through for a caregiver's own
// preference profile.
func (c *Coordinator) UpsertPreferences(ctx context.Context, user apis.UserContext, prefs apis.CaregiverPreferenceProfile) (apis.CaregiverPreferenceProfile, error) {
	prefs.CaregiverID = user.UserID
	prefs.OrganizationID = user.OrganizationID
	return c.Store.UpsertPreferences(ctx, prefs)
}

// PutConfiguration is the thin pass-through for org/branch configuration
// writes, gated on an admin permission.
func (c *Coordinator) PutConfiguration(ctx context.Context, user apis.UserContext, cfg apis.MatchingConfiguration) (apis.MatchingConfiguration, error) {
	if err := c.requirePermission(user, "config:write"); err != nil {
		return apis.MatchingConfiguration{}, err
	}
	cfg.OrganizationID = user.OrganizationID
	return c.Store.PutConfiguration(ctx, cfg)
}

// GetMatchingKPI is the read command behind GET /metrics/matching: the
// business-outcome rollup (time-to-fill, acceptance/expiry rate) over the
// trailing window. No eligibility issues are passed in, so
// EligibilityIssueCounts is always empty. window<=0 uses defaultKPIWindow.
func (c *Coordinator) GetMatchingKPI(ctx context.Context, user apis.UserContext, window time.Duration) (metrics.KPI, error) {
	if err := c.requirePermission(user, "metrics:read"); err != nil {
		return metrics.KPI{}, err
	}
	if window <= 0 {
		window = defaultKPIWindow
	}
	history, err := c.Store.FindMatchHistorySince(ctx, time.Now().Add(-window))
	if err != nil {
		return metrics.KPI{}, err
	}
	return metrics.ComputeKPI(history, nil), nil
}

// GetExperimentResults is the read command exposing the A/B test rollup
// for shifts with a variant assignment: per-variant match/acceptance/
// completion rates and, once both arms have data, a significance test on
// acceptance rate. window<=0 uses defaultKPIWindow.
func (c *Coordinator) GetExperimentResults(ctx context.Context, user apis.UserContext, window time.Duration) (metrics.ExperimentResults, error) {
	if err := c.requirePermission(user, "metrics:read"); err != nil {
		return metrics.ExperimentResults{}, err
	}
	if window <= 0 {
		window = defaultKPIWindow
	}
	history, err := c.Store.FindMatchHistorySince(ctx, time.Now().Add(-window))
	if err != nil {
		return metrics.ExperimentResults{}, err
	}
	return metrics.ComputeExperimentResults(history), nil
}
