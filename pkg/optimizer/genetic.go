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

package optimizer

import (
	"math/rand"
	"sort"
	"time"

	"github.com/neighborhood-lab/care-commons-sub009/pkg/apis"
)

// chromosome maps each shift index to a chosen index into that shift's
// candidate pool, or -1 for "leave unmatched".
type chromosome []int

// genetic runs a bounded population/tournament/crossover/mutation search
// seeded with the greedy plan, used only when the caller opts in
// (req.UseGenetic) because it costs strictly more evaluation passes than
// the greedy baseline for a result that is not guaranteed better on small
// batches.
func (o *Optimizer) genetic(shifts []apis.OpenShift, candidatesByShift map[string][]apis.MatchCandidate, goal apis.OptimizeGoal, seed map[string]Plan, populationSize, generations int) map[string]Plan {
	if len(shifts) == 0 {
		return seed
	}
	rng := rand.New(rand.NewSource(int64(len(shifts))*1000003 + int64(populationSize)))

	seedChromosome := make(chromosome, len(shifts))
	for i, s := range shifts {
		seedChromosome[i] = -1
		plan, ok := seed[s.ID]
		if !ok || plan.CaregiverID == "" {
			continue
		}
		for ci, c := range candidatesByShift[s.ID] {
			if c.CaregiverID == plan.CaregiverID {
				seedChromosome[i] = ci
				break
			}
		}
	}

	population := make([]chromosome, populationSize)
	population[0] = seedChromosome
	for i := 1; i < populationSize; i++ {
		population[i] = randomChromosome(shifts, candidatesByShift, rng)
	}

	fitness := func(c chromosome) float64 {
		return evaluateFitness(shifts, candidatesByShift, goal, c)
	}

	for gen := 0; gen < generations; gen++ {
		scored := make([]float64, len(population))
		for i, c := range population {
			scored[i] = fitness(c)
		}
		next := make([]chromosome, 0, populationSize)
		next = append(next, bestOf(population, scored))
		for len(next) < populationSize {
			a := tournamentSelect(population, scored, rng)
			b := tournamentSelect(population, scored, rng)
			child := crossover(a, b, rng)
			mutate(child, shifts, candidatesByShift, rng, 0.05)
			next = append(next, child)
		}
		population = next
	}

	best := bestOf(population, nil)
	for i, c := range population {
		if fitness(c) > fitness(best) {
			best = c
		}
		_ = i
	}

	plans := make(map[string]Plan, len(shifts))
	for i, s := range shifts {
		idx := best[i]
		if idx < 0 || idx >= len(candidatesByShift[s.ID]) {
			plans[s.ID] = Plan{ShiftID: s.ID}
			continue
		}
		c := candidatesByShift[s.ID][idx]
		plans[s.ID] = Plan{ShiftID: s.ID, CaregiverID: c.CaregiverID, Score: c.OverallScore}
	}
	return repairOverlaps(shifts, candidatesByShift, plans)
}

func randomChromosome(shifts []apis.OpenShift, candidatesByShift map[string][]apis.MatchCandidate, rng *rand.Rand) chromosome {
	c := make(chromosome, len(shifts))
	for i, s := range shifts {
		pool := candidatesByShift[s.ID]
		if len(pool) == 0 {
			c[i] = -1
			continue
		}
		c[i] = rng.Intn(len(pool))
	}
	return c
}

// evaluateFitness sums goal-weighted candidate scores, penalizing
// double-booked caregivers so overlap-free plans dominate in selection
// even before the final repair pass.
func evaluateFitness(shifts []apis.OpenShift, candidatesByShift map[string][]apis.MatchCandidate, goal apis.OptimizeGoal, c chromosome) float64 {
	load := newCaregiverLoad()
	var total float64
	for i, s := range shifts {
		idx := c[i]
		pool := candidatesByShift[s.ID]
		if idx < 0 || idx >= len(pool) {
			continue
		}
		cand := pool[idx]
		if !cand.IsEligible {
			total -= 50
			continue
		}
		if !load.canTake(cand.CaregiverID, s, 30*time.Minute) {
			total -= 100
			continue
		}
		load.take(cand.CaregiverID, s)
		total += goalScore(cand, goal, load.count[cand.CaregiverID])
	}
	return total
}

func tournamentSelect(population []chromosome, scored []float64, rng *rand.Rand) chromosome {
	best := rng.Intn(len(population))
	for k := 0; k < 2; k++ {
		challenger := rng.Intn(len(population))
		if scored[challenger] > scored[best] {
			best = challenger
		}
	}
	return population[best]
}

func bestOf(population []chromosome, scored []float64) chromosome {
	if scored == nil {
		return population[0]
	}
	best := 0
	for i, s := range scored {
		if s > scored[best] {
			best = i
		}
	}
	return population[best]
}

func crossover(a, b chromosome, rng *rand.Rand) chromosome {
	if len(a) == 0 {
		return chromosome{}
	}
	point := rng.Intn(len(a))
	child := make(chromosome, len(a))
	copy(child[:point], a[:point])
	copy(child[point:], b[point:])
	return child
}

func mutate(c chromosome, shifts []apis.OpenShift, candidatesByShift map[string][]apis.MatchCandidate, rng *rand.Rand, rate float64) {
	for i, s := range shifts {
		if rng.Float64() > rate {
			continue
		}
		pool := candidatesByShift[s.ID]
		if len(pool) == 0 {
			c[i] = -1
			continue
		}
		c[i] = rng.Intn(len(pool))
	}
}

// repairOverlaps walks the final chromosome's plan in priority order and
// drops any assignment that would double-book a caregiver, mirroring the
// greedy pass's feasibility gate so the genetic output is never invalid
// even when the fitness penalty failed to steer selection away from it.
func repairOverlaps(shifts []apis.OpenShift, candidatesByShift map[string][]apis.MatchCandidate, plans map[string]Plan) map[string]Plan {
	load := newCaregiverLoad()
	ordered := append([]apis.OpenShift(nil), shifts...)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].StartTime.Before(ordered[j].StartTime)
	})
	out := make(map[string]Plan, len(plans))
	for _, s := range ordered {
		p := plans[s.ID]
		if p.CaregiverID == "" || !load.canTake(p.CaregiverID, s, 30*time.Minute) {
			out[s.ID] = Plan{ShiftID: s.ID}
			continue
		}
		load.take(p.CaregiverID, s)
		out[s.ID] = p
	}
	return out
}
