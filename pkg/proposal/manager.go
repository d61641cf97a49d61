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

// Package proposal owns the
// AssignmentProposal state machine, expiry, supersession, and the
// acceptance commit.
package proposal

import (
	"context"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/neighborhood-lab/care-commons-sub009/pkg/apis"
	apierrors "github.com/neighborhood-lab/care-commons-sub009/pkg/apis/errors"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/log"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/store"
)

// Manager is the ProposalManager. CaregiverSelectShift takes an
// already-evaluated apis.MatchCandidate rather than depending on
// pkg/matching directly; the coordinator wires the two together.
type Manager struct {
	Store store.Store
}

// New constructs a Manager.
func New(s store.Store) *Manager {
	return &Manager{Store: s}
}

// ProposeOptions bounds a propose call.
type ProposeOptions struct {
	Now time.Time
}

// Propose selects up to maxProposalsPerShift
// candidates scoring >= minScoreForProposal, write one PENDING proposal
// per chosen caregiver, append a MatchHistory row per attempt, and
// transition the shift to PROPOSED (or NO_MATCH when zero qualify).
func (m *Manager) Propose(ctx context.Context, shiftID string, candidates []apis.MatchCandidate, cfg apis.MatchingConfiguration, opts ProposeOptions) ([]apis.AssignmentProposal, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	qualified := lo.Filter(candidates, func(c apis.MatchCandidate, _ int) bool {
		return c.IsEligible && c.OverallScore >= cfg.MinScoreForProposal
	})
	if len(qualified) > cfg.MaxProposalsPerShift {
		qualified = qualified[:cfg.MaxProposalsPerShift]
	}

	var created []apis.AssignmentProposal
	err := m.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		shift, err := tx.GetShift(ctx, shiftID)
		if err != nil {
			return err
		}
		if shift.Status == apis.ShiftAssigned {
			return apierrors.Conflict("SHIFT_ALREADY_ASSIGNED", "no further proposals may be created for an assigned shift")
		}

		snapshot := apis.ConfigSnapshot{ConfigVersion: cfg.Version, ConfigID: cfg.ID, Weights: cfg.Weights, Variant: cfg.AssignedVariant}
		existing, err := tx.FindProposalsForShift(ctx, shiftID)
		if err != nil {
			return err
		}
		attempt := len(existing) + 1

		for _, c := range qualified {
			p := apis.AssignmentProposal{
				ShiftID:               shiftID,
				CaregiverID:           c.CaregiverID,
				Score:                 c.OverallScore,
				Quality:               c.Quality,
				Status:                apis.ProposalPending,
				Reasons:               c.Reasons,
				ProposedAt:            now,
				ExpiresAt:             now.Add(time.Duration(cfg.ProposalExpirationMinutes) * time.Minute),
				ConfigurationSnapshot: snapshot,
			}
			stored, err := tx.CreateProposal(ctx, p)
			if err != nil {
				return err
			}
			created = append(created, stored)

			if _, err := tx.AppendMatchHistory(ctx, apis.MatchHistory{
				ShiftID:        shiftID,
				CaregiverID:    c.CaregiverID,
				AttemptNumber:  attempt,
				Score:          c.OverallScore,
				Outcome:        apis.OutcomeProposed,
				ConfigSnapshot: snapshot,
			}); err != nil {
				return err
			}
		}

		newStatus := apis.ShiftNoMatch
		if len(created) > 0 {
			newStatus = apis.ShiftProposed
		}
		_, err = tx.UpdateShift(ctx, shiftID, shift.Version, func(s *apis.OpenShift) { s.Status = newStatus })
		return err
	})
	if err != nil {
		return nil, err
	}
	log.FromContext(ctx).Info("proposals created", "shiftID", shiftID, "count", len(created))
	return created, nil
}

// MarkSent is the idempotent monotone PENDING -> SENT transition.
func (m *Manager) MarkSent(ctx context.Context, id string) (apis.AssignmentProposal, error) {
	return m.monotoneTransition(ctx, id, apis.ProposalPending, apis.ProposalSent, func(p *apis.AssignmentProposal, now time.Time) {
		p.SentAt = &now
	})
}

// MarkViewed is the idempotent monotone SENT -> VIEWED transition.
func (m *Manager) MarkViewed(ctx context.Context, id string) (apis.AssignmentProposal, error) {
	return m.monotoneTransition(ctx, id, apis.ProposalSent, apis.ProposalViewed, func(p *apis.AssignmentProposal, now time.Time) {
		p.ViewedAt = &now
	})
}

// monotoneTransition applies from->to once; if the proposal is already at
// or past `to`, it is a no-op returning the current row unchanged, so
// duplicate delivery/viewed notifications never regress or double-apply.
func (m *Manager) monotoneTransition(ctx context.Context, id string, from, to apis.ProposalStatus, apply func(*apis.AssignmentProposal, time.Time)) (apis.AssignmentProposal, error) {
	var result apis.AssignmentProposal
	err := m.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.GetProposal(ctx, id)
		if err != nil {
			return err
		}
		if p.Status != from {
			result = p
			return nil
		}
		now := time.Now()
		updated, err := tx.UpdateProposal(ctx, id, p.Version, func(p *apis.AssignmentProposal) {
			p.Status = to
			apply(p, now)
		})
		result = updated
		return err
	})
	return result, err
}

// RespondOptions carries the accept/reject payload of respond.
type RespondOptions struct {
	Accept            bool
	Actor             string
	RejectionReason   string
	RejectionCategory apis.RejectionCategory
	ExpectedVersion   int
	Now               time.Time
}

// Respond accepts or rejects a proposal, run inside a single transaction
// so acceptance, supersession, and the shift transition commit atomically.
func (m *Manager) Respond(ctx context.Context, proposalID string, opts RespondOptions) (apis.AssignmentProposal, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	var result apis.AssignmentProposal
	err := m.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.GetProposal(ctx, proposalID)
		if err != nil {
			return err
		}
		if p.Status.IsTerminal() {
			return apierrors.Conflict("PROPOSAL_NOT_RESPONDABLE", "proposal is already in a terminal state: "+string(p.Status))
		}
		if p.ExpiresAt.Before(now) || p.ExpiresAt.Equal(now) {
			return apierrors.Conflict("PROPOSAL_EXPIRED", "proposal has already expired")
		}
		if opts.ExpectedVersion != 0 && p.Version != opts.ExpectedVersion {
			return apierrors.ErrStaleVersion
		}

		if opts.Accept {
			return m.acceptLocked(ctx, tx, p, opts, now, &result)
		}
		return m.rejectLocked(ctx, tx, p, opts, now, &result)
	})
	return result, err
}

func (m *Manager) acceptLocked(ctx context.Context, tx store.Tx, p apis.AssignmentProposal, opts RespondOptions, now time.Time, result *apis.AssignmentProposal) error {
	accepted, err := tx.UpdateProposal(ctx, p.ID, p.Version, func(p *apis.AssignmentProposal) {
		p.Status = apis.ProposalAccepted
		p.RespondedAt = &now
		p.RespondingActor = opts.Actor
	})
	if err != nil {
		return err
	}
	*result = accepted

	siblings, err := tx.FindNonTerminalProposals(ctx, p.ShiftID)
	if err != nil {
		return err
	}
	for _, sib := range siblings {
		if sib.ID == p.ID {
			continue
		}
		if _, err := tx.UpdateProposal(ctx, sib.ID, sib.Version, func(s *apis.AssignmentProposal) {
			s.Status = apis.ProposalSuperseded
		}); err != nil {
			return err
		}
	}

	shift, err := tx.GetShift(ctx, p.ShiftID)
	if err != nil {
		return err
	}
	if shift.Status == apis.ShiftAssigned {
		if _, flagErr := tx.UpdateShift(ctx, p.ShiftID, shift.Version, func(s *apis.OpenShift) {
			s.NeedsOperatorReview = true
			s.ReviewReason = "duplicate accept: two proposals both reached ACCEPTED for the same shift"
		}); flagErr != nil {
			return flagErr
		}
		return apierrors.Fatal("DUPLICATE_ACCEPT", "shift already ASSIGNED when committing an accept", nil)
	}
	if _, err := tx.UpdateShift(ctx, p.ShiftID, shift.Version, func(s *apis.OpenShift) { s.Status = apis.ShiftAssigned }); err != nil {
		return err
	}

	_, err = tx.AppendMatchHistory(ctx, apis.MatchHistory{
		ShiftID:        p.ShiftID,
		CaregiverID:    p.CaregiverID,
		Score:          p.Score,
		Outcome:        apis.OutcomeAccepted,
		ConfigSnapshot: p.ConfigurationSnapshot,
	})
	return err
}

func (m *Manager) rejectLocked(ctx context.Context, tx store.Tx, p apis.AssignmentProposal, opts RespondOptions, now time.Time, result *apis.AssignmentProposal) error {
	rejected, err := tx.UpdateProposal(ctx, p.ID, p.Version, func(p *apis.AssignmentProposal) {
		p.Status = apis.ProposalRejected
		p.RespondedAt = &now
		p.RespondingActor = opts.Actor
		p.RejectionReason = opts.RejectionReason
		p.RejectionCategory = opts.RejectionCategory
	})
	if err != nil {
		return err
	}
	*result = rejected

	if _, err := tx.AppendMatchHistory(ctx, apis.MatchHistory{
		ShiftID:        p.ShiftID,
		CaregiverID:    p.CaregiverID,
		Score:          p.Score,
		Outcome:        apis.OutcomeRejected,
		ConfigSnapshot: p.ConfigurationSnapshot,
	}); err != nil {
		return err
	}

	remaining, err := tx.FindNonTerminalProposals(ctx, p.ShiftID)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		shift, err := tx.GetShift(ctx, p.ShiftID)
		if err != nil {
			return err
		}
		if shift.Status != apis.ShiftAssigned {
			if _, err := tx.UpdateShift(ctx, p.ShiftID, shift.Version, func(s *apis.OpenShift) { s.Status = apis.ShiftMatching }); err != nil {
				return err
			}
		}
	}
	return nil
}

// ExpireStale implements expireStale: bulk-transition every
// non-terminal proposal with expires_at <= now to EXPIRED, appending one
// MatchHistory row per. Each proposal is expired in
// its own transaction so a concurrent accept that wins the lock for one
// proposal simply leaves that single proposal out of this sweep's count
//, without blocking the rest of the batch.
func (m *Manager) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	candidates, err := m.Store.FindExpiredProposals(ctx, now)
	if err != nil {
		return 0, err
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	expired := 0
	for _, c := range candidates {
		err := m.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			p, err := tx.GetProposal(ctx, c.ID)
			if err != nil {
				return err
			}
			if p.Status.IsTerminal() || p.ExpiresAt.After(now) {
				return nil // lost the race to an accept/reject, or already handled
			}
			updated, err := tx.UpdateProposal(ctx, p.ID, p.Version, func(p *apis.AssignmentProposal) {
				p.Status = apis.ProposalExpired
				p.ExpiredAt = &now
			})
			if err != nil {
				return err
			}
			_, err = tx.AppendMatchHistory(ctx, apis.MatchHistory{
				ShiftID:        updated.ShiftID,
				CaregiverID:    updated.CaregiverID,
				Score:          updated.Score,
				Outcome:        apis.OutcomeExpired,
				ConfigSnapshot: updated.ConfigurationSnapshot,
			})
			if err != nil {
				return err
			}
			expired++

			remaining, err := tx.FindNonTerminalProposals(ctx, updated.ShiftID)
			if err != nil {
				return err
			}
			if len(remaining) == 0 {
				shift, err := tx.GetShift(ctx, updated.ShiftID)
				if err != nil {
					return err
				}
				if shift.Status == apis.ShiftProposed {
					_, err = tx.UpdateShift(ctx, updated.ShiftID, shift.Version, func(s *apis.OpenShift) { s.Status = apis.ShiftMatching })
					return err
				}
			}
			return nil
		})
		if err != nil {
			return expired, err
		}
	}
	return expired, nil
}

// CaregiverSelectShift implements self-select path: verify the
// caller-evaluated candidate is eligible and the shift is not ASSIGNED, and either
// write a PENDING proposal or, if the caregiver's preferences allow
// auto-assignment and the score clears the threshold, write a proposal
// that immediately transitions to ACCEPTED.
func (m *Manager) CaregiverSelectShift(ctx context.Context, caregiverID, shiftID string, candidate apis.MatchCandidate, prefs apis.CaregiverPreferenceProfile, cfg apis.MatchingConfiguration, now time.Time) (apis.AssignmentProposal, error) {
	if !candidate.IsEligible {
		return apis.AssignmentProposal{}, apierrors.Eligibility("NOT_ELIGIBLE", "caregiver is not eligible for this shift", candidate.Issues)
	}

	var result apis.AssignmentProposal
	err := m.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		shift, err := tx.GetShift(ctx, shiftID)
		if err != nil {
			return err
		}
		if shift.Status == apis.ShiftAssigned {
			return apierrors.Conflict("SHIFT_ALREADY_ASSIGNED", "shift is already assigned")
		}

		snapshot := apis.ConfigSnapshot{ConfigVersion: cfg.Version, ConfigID: cfg.ID, Weights: cfg.Weights, Variant: cfg.AssignedVariant}
		autoAssign := prefs.AcceptAutoAssignment && candidate.OverallScore >= cfg.AutoAssignThreshold

		p := apis.AssignmentProposal{
			ShiftID:               shiftID,
			CaregiverID:           caregiverID,
			Score:                 candidate.OverallScore,
			Quality:               candidate.Quality,
			Status:                apis.ProposalPending,
			Reasons:               candidate.Reasons,
			ProposedAt:            now,
			ExpiresAt:             now.Add(time.Duration(cfg.ProposalExpirationMinutes) * time.Minute),
			ConfigurationSnapshot: snapshot,
		}
		stored, err := tx.CreateProposal(ctx, p)
		if err != nil {
			return err
		}

		if autoAssign {
			stored, err = tx.UpdateProposal(ctx, stored.ID, stored.Version, func(p *apis.AssignmentProposal) {
				p.Status = apis.ProposalAccepted
				p.RespondedAt = &now
				p.RespondingActor = caregiverID
			})
			if err != nil {
				return err
			}
			if _, err := tx.UpdateShift(ctx, shiftID, shift.Version, func(s *apis.OpenShift) { s.Status = apis.ShiftAssigned }); err != nil {
				return err
			}
		} else if shift.Status == apis.ShiftNew || shift.Status == apis.ShiftNoMatch {
			if _, err := tx.UpdateShift(ctx, shiftID, shift.Version, func(s *apis.OpenShift) { s.Status = apis.ShiftProposed }); err != nil {
				return err
			}
		}

		outcome := apis.OutcomeProposed
		if autoAssign {
			outcome = apis.OutcomeAccepted
		}
		if _, err := tx.AppendMatchHistory(ctx, apis.MatchHistory{
			ShiftID:        shiftID,
			CaregiverID:    caregiverID,
			Score:          candidate.OverallScore,
			Outcome:        outcome,
			ConfigSnapshot: snapshot,
		}); err != nil {
			return err
		}

		result = stored
		return nil
	})
	return result, err
}
