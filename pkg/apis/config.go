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

package apis

import (
	"fmt"
	"math"

	"github.com/imdario/mergo"
)

const weightsSumTolerance = 0.001

// Validate enforces the invariants a MatchingConfiguration must satisfy
// before it may be persisted: weights sum to 100, thresholds are in
// range, and every duration-like field is positive.
func (c MatchingConfiguration) Validate() error {
	if sum := c.Weights.Sum(); math.Abs(sum-100) > weightsSumTolerance {
		return fmt.Errorf("weights must sum to 100, got %.2f", sum)
	}
	if c.ProposalExpirationMinutes <= 0 {
		return fmt.Errorf("proposalExpirationMinutes must be positive, got %d", c.ProposalExpirationMinutes)
	}
	if c.MaxProposalsPerShift <= 0 {
		return fmt.Errorf("maxProposalsPerShift must be positive, got %d", c.MaxProposalsPerShift)
	}
	if c.MinScoreForProposal < 0 || c.MinScoreForProposal > 100 {
		return fmt.Errorf("minScoreForProposal must be in [0,100], got %.2f", c.MinScoreForProposal)
	}
	if c.AutoAssignThreshold < 0 || c.AutoAssignThreshold > 100 {
		return fmt.Errorf("autoAssignThreshold must be in [0,100], got %.2f", c.AutoAssignThreshold)
	}
	if c.MLWeight < 0 || c.MLWeight > 1 {
		return fmt.Errorf("mlWeight must be in [0,1], got %.2f", c.MLWeight)
	}
	if c.MinMLConfidence < 0 || c.MinMLConfidence > 1 {
		return fmt.Errorf("minMLConfidence must be in [0,1], got %.2f", c.MinMLConfidence)
	}
	return nil
}

// MergeOverride applies a branch-level override onto the organization
// default, following "one default per organization, optionally
// overridden per branch". Zero-valued fields on the override are left at
// the base's value; mergo.WithOverride makes any explicitly non-zero
// override field win.
func MergeOverride(base, override MatchingConfiguration) (MatchingConfiguration, error) {
	merged := base
	if err := mergo.Merge(&merged, override, mergo.WithOverride); err != nil {
		return MatchingConfiguration{}, fmt.Errorf("merge branch override: %w", err)
	}
	merged.ID = override.ID
	merged.BranchID = override.BranchID
	return merged, nil
}

// VariantNames returns the configured A/B experiment variant names in
// declaration order, the bucket list a shift id is hashed into.
func (c MatchingConfiguration) VariantNames() []string {
	if len(c.ExperimentVariants) == 0 {
		return nil
	}
	names := make([]string, len(c.ExperimentVariants))
	for i, v := range c.ExperimentVariants {
		names[i] = v.Name
	}
	return names
}

// WithVariant returns a copy of c with its ML-blending fields
// ({mlEnabled, mlWeight, mlModelPreference, minMLConfidence}) overridden
// by the named experiment variant. An unknown or empty name is a no-op,
// leaving c's own configured values as the effective ones.
func (c MatchingConfiguration) WithVariant(name string) MatchingConfiguration {
	for _, v := range c.ExperimentVariants {
		if v.Name != name {
			continue
		}
		c.MLEnabled = v.MLEnabled
		c.MLWeight = v.MLWeight
		c.MLModelPreference = v.MLModelPreference
		c.MinMLConfidence = v.MinMLConfidence
		c.AssignedVariant = v.Name
		return c
	}
	return c
}
