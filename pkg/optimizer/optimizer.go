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

// Package optimizer is the BulkOptimizer: given a window of open shifts it
// produces a whole-batch assignment plan rather than scoring one shift at a
// time, binding the entire batch of open shifts to caregivers in one pass
// instead of one shift at a time.
package optimizer

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/neighborhood-lab/care-commons-sub009/pkg/apis"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/log"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/matching"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/store"
)

// Evaluator is the subset of matching.Evaluator the optimizer needs.
type Evaluator interface {
	RankShift(ctx context.Context, shiftID string, cfg apis.MatchingConfiguration, maxCandidates int, opts matching.Options) ([]apis.MatchCandidate, error)
}

// Optimizer is the BulkOptimizer.
type Optimizer struct {
	Store     store.Store
	Evaluator Evaluator
}

// New constructs an Optimizer.
func New(s store.Store, eval Evaluator) *Optimizer {
	return &Optimizer{Store: s, Evaluator: eval}
}

// Plan is one shift's chosen caregiver in a batch run. CaregiverID is
// empty when no feasible candidate remained for this shift.
type Plan struct {
	ShiftID     string
	CaregiverID string
	Score       float64
}

// Result is the outcome of a bulk run, including the workload-balance
// metric (standard deviation of per-caregiver assignment counts).
type Result struct {
	Plans             []Plan
	Unmatched         []string
	WorkloadStdDev    float64
	ShiftsConsidered  int
	ShiftsAssigned    int
}

// caregiverLoad tracks running per-caregiver assignment counters the
// greedy pass and the genetic fitness function both consult so a single
// caregiver is not repeatedly assigned overlapping shifts.
type caregiverLoad struct {
	assignedVisits map[string][]apis.Visit
	count          map[string]int
}

func newCaregiverLoad() *caregiverLoad {
	return &caregiverLoad{assignedVisits: map[string][]apis.Visit{}, count: map[string]int{}}
}

func (l *caregiverLoad) canTake(caregiverID string, shift apis.OpenShift, travelBuffer time.Duration) bool {
	for _, existing := range l.assignedVisits[caregiverID] {
		if existing.Overlaps(shift.StartTime, shift.EndTime(), travelBuffer) {
			return false
		}
	}
	return true
}

func (l *caregiverLoad) take(caregiverID string, shift apis.OpenShift) {
	l.assignedVisits[caregiverID] = append(l.assignedVisits[caregiverID], apis.Visit{
		CaregiverID: caregiverID,
		ClientID:    shift.ClientID,
		Start:       shift.StartTime,
		End:         shift.EndTime(),
	})
	l.count[caregiverID]++
}

// Run implements the optimizer entrypoint for one BulkMatchRequest: fetch
// the shift window, rank candidates per shift, then hand off to the
// greedy baseline or, when req.UseGenetic is set, refine the greedy seed
// with a genetic search over the same candidate pools.
func (o *Optimizer) Run(ctx context.Context, req apis.BulkMatchRequest, cfg apis.MatchingConfiguration) (Result, error) {
	shifts, err := o.shiftsForRequest(ctx, req)
	if err != nil {
		return Result{}, err
	}

	candidatesByShift := make(map[string][]apis.MatchCandidate, len(shifts))
	for _, s := range shifts {
		ranked, err := o.Evaluator.RankShift(ctx, s.ID, cfg, 0, matching.Options{})
		if err != nil {
			log.FromContext(ctx).Info("skipping shift in bulk run, rank failed", "shiftID", s.ID, "error", err.Error())
			continue
		}
		candidatesByShift[s.ID] = ranked
	}

	greedy := o.greedy(shifts, candidatesByShift, req.Goal)
	if !req.UseGenetic {
		return o.buildResult(shifts, greedy), nil
	}

	population := req.PopulationSize
	if population <= 0 {
		population = 20
	}
	generations := req.Generations
	if generations <= 0 {
		generations = 30
	}
	refined := o.genetic(shifts, candidatesByShift, req.Goal, greedy, population, generations)
	return o.buildResult(shifts, refined), nil
}

func (o *Optimizer) shiftsForRequest(ctx context.Context, req apis.BulkMatchRequest) ([]apis.OpenShift, error) {
	if len(req.ShiftIDs) > 0 {
		out := make([]apis.OpenShift, 0, len(req.ShiftIDs))
		for _, id := range req.ShiftIDs {
			s, err := o.Store.GetShift(ctx, id)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	}
	shifts, _, err := o.Store.FindOpenShifts(ctx, store.ShiftFilter{
		OrganizationID: req.OrganizationID,
		Status:         []apis.ShiftStatus{apis.ShiftNew, apis.ShiftNoMatch, apis.ShiftMatching},
		From:           req.From,
		To:             req.To,
	}, store.Page{})
	return shifts, err
}

// greedy implements the mandatory baseline: shifts ordered priority desc
// then start time asc, each assigned the feasible candidate with the
// highest goal-weighted score, respecting per-caregiver overlap.
func (o *Optimizer) greedy(shifts []apis.OpenShift, candidatesByShift map[string][]apis.MatchCandidate, goal apis.OptimizeGoal) map[string]Plan {
	ordered := append([]apis.OpenShift(nil), shifts...)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].StartTime.Before(ordered[j].StartTime)
	})

	load := newCaregiverLoad()
	plans := make(map[string]Plan, len(ordered))

	for _, shift := range ordered {
		var best *apis.MatchCandidate
		var bestScore float64
		for i, c := range candidatesByShift[shift.ID] {
			if !c.IsEligible || !load.canTake(c.CaregiverID, shift, 30*time.Minute) {
				continue
			}
			score := goalScore(c, goal, load.count[c.CaregiverID])
			if best == nil || score > bestScore {
				cCopy := candidatesByShift[shift.ID][i]
				best = &cCopy
				bestScore = score
			}
		}
		if best == nil {
			plans[shift.ID] = Plan{ShiftID: shift.ID}
			continue
		}
		load.take(best.CaregiverID, shift)
		plans[shift.ID] = Plan{ShiftID: shift.ID, CaregiverID: best.CaregiverID, Score: best.OverallScore}
	}
	return plans
}

// goalScore reweights a candidate's overall score toward the requested
// optimization objective; it never replaces the rule-based eligibility
// gate, only the ranking used to break ties between eligible candidates.
func goalScore(c apis.MatchCandidate, goal apis.OptimizeGoal, currentLoad int) float64 {
	switch goal {
	case apis.GoalFastestFill:
		return c.OverallScore
	case apis.GoalCostEfficient:
		return c.OverallScore - float64(c.Conflicts)*5
	case apis.GoalBalancedWorkload:
		return c.OverallScore - float64(currentLoad)*8
	case apis.GoalContinuity:
		continuity := 0.0
		if c.PreviousVisits > 0 {
			continuity = math.Min(float64(c.PreviousVisits)*5, 25)
		}
		return c.OverallScore + continuity
	case apis.GoalCaregiverSatisfaction:
		return c.Dimensions.PreferenceMatch*0.5 + c.OverallScore*0.5
	case apis.GoalBestMatch:
		fallthrough
	default:
		return c.OverallScore
	}
}

func (o *Optimizer) buildResult(shifts []apis.OpenShift, plans map[string]Plan) Result {
	res := Result{ShiftsConsidered: len(shifts)}
	loads := map[string]int{}
	for _, s := range shifts {
		p := plans[s.ID]
		if p.CaregiverID == "" {
			res.Unmatched = append(res.Unmatched, s.ID)
			continue
		}
		res.Plans = append(res.Plans, p)
		loads[p.CaregiverID]++
	}
	res.ShiftsAssigned = len(res.Plans)
	res.WorkloadStdDev = stdDev(loads)
	return res
}

func stdDev(loads map[string]int) float64 {
	if len(loads) == 0 {
		return 0
	}
	var sum float64
	for _, v := range loads {
		sum += float64(v)
	}
	mean := sum / float64(len(loads))
	var variance float64
	for _, v := range loads {
		d := float64(v) - mean
		variance += d * d
	}
	variance /= float64(len(loads))
	return math.Sqrt(variance)
}
