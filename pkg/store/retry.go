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

package store

import (
	"context"
	"time"

	retry "github.com/avast/retry-go"

	"github.com/neighborhood-lab/care-commons-sub009/pkg/apis"
	apierrors "github.com/neighborhood-lab/care-commons-sub009/pkg/apis/errors"
)

// retryOpts implements the bounded exponential backoff every Store method
// gets when wrapped with WithRetry: base 100ms, factor 2, cap 1s, at most 3
// attempts. Only errors tagged KindTransient are retried; everything else
// returns immediately.
func retryOpts(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(100 * time.Millisecond),
		retry.MaxDelay(1 * time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return apierrors.Is(err, apierrors.KindTransient) }),
	}
}

func retryDo(ctx context.Context, fn func() error) error {
	return retry.Do(fn, retryOpts(ctx)...)
}

// WithRetry wraps inner so every call is retried per retryOpts when it
// returns a TransientError, invisible to the caller. A real Postgres
// driver would sit behind this same decorator; Memory already never
// returns KindTransient so wrapping it is a no-op, but the seam exists for
// whichever backing engine replaces it.
func WithRetry(inner Store) Store {
	return &retrying{inner: inner}
}

type retrying struct{ inner Store }

func (r *retrying) WithTx(ctx context.Context, fn TxFunc) error {
	return retryDo(ctx, func() error { return r.inner.WithTx(ctx, fn) })
}

func (r *retrying) CreateShift(ctx context.Context, s apis.OpenShift) (out apis.OpenShift, err error) {
	err = retryDo(ctx, func() error { out, err = r.inner.CreateShift(ctx, s); return err })
	return
}
func (r *retrying) GetShift(ctx context.Context, id string) (out apis.OpenShift, err error) {
	err = retryDo(ctx, func() error { out, err = r.inner.GetShift(ctx, id); return err })
	return
}
func (r *retrying) UpdateShift(ctx context.Context, id string, v int, mutate func(*apis.OpenShift)) (out apis.OpenShift, err error) {
	err = retryDo(ctx, func() error { out, err = r.inner.UpdateShift(ctx, id, v, mutate); return err })
	return
}
func (r *retrying) DeleteShift(ctx context.Context, id string) error {
	return retryDo(ctx, func() error { return r.inner.DeleteShift(ctx, id) })
}
func (r *retrying) FindOpenShifts(ctx context.Context, f ShiftFilter, p Page) (out []apis.OpenShift, total int, err error) {
	err = retryDo(ctx, func() error { out, total, err = r.inner.FindOpenShifts(ctx, f, p); return err })
	return
}
func (r *retrying) CreateProposal(ctx context.Context, p apis.AssignmentProposal) (out apis.AssignmentProposal, err error) {
	err = retryDo(ctx, func() error { out, err = r.inner.CreateProposal(ctx, p); return err })
	return
}
func (r *retrying) GetProposal(ctx context.Context, id string) (out apis.AssignmentProposal, err error) {
	err = retryDo(ctx, func() error { out, err = r.inner.GetProposal(ctx, id); return err })
	return
}
func (r *retrying) UpdateProposal(ctx context.Context, id string, v int, mutate func(*apis.AssignmentProposal)) (out apis.AssignmentProposal, err error) {
	err = retryDo(ctx, func() error { out, err = r.inner.UpdateProposal(ctx, id, v, mutate); return err })
	return
}
func (r *retrying) FindNonTerminalProposals(ctx context.Context, shiftID string) (out []apis.AssignmentProposal, err error) {
	err = retryDo(ctx, func() error { out, err = r.inner.FindNonTerminalProposals(ctx, shiftID); return err })
	return
}
func (r *retrying) FindProposalsForShift(ctx context.Context, shiftID string) (out []apis.AssignmentProposal, err error) {
	err = retryDo(ctx, func() error { out, err = r.inner.FindProposalsForShift(ctx, shiftID); return err })
	return
}
func (r *retrying) FindProposalsForCaregiver(ctx context.Context, caregiverID string) (out []apis.AssignmentProposal, err error) {
	err = retryDo(ctx, func() error { out, err = r.inner.FindProposalsForCaregiver(ctx, caregiverID); return err })
	return
}
func (r *retrying) FindExpiredProposals(ctx context.Context, now time.Time) (out []apis.AssignmentProposal, err error) {
	err = retryDo(ctx, func() error { out, err = r.inner.FindExpiredProposals(ctx, now); return err })
	return
}
func (r *retrying) GetConfiguration(ctx context.Context, id string) (out apis.MatchingConfiguration, err error) {
	err = retryDo(ctx, func() error { out, err = r.inner.GetConfiguration(ctx, id); return err })
	return
}
func (r *retrying) GetEffectiveConfiguration(ctx context.Context, org, branch string) (out apis.MatchingConfiguration, err error) {
	err = retryDo(ctx, func() error { out, err = r.inner.GetEffectiveConfiguration(ctx, org, branch); return err })
	return
}
func (r *retrying) PutConfiguration(ctx context.Context, c apis.MatchingConfiguration) (out apis.MatchingConfiguration, err error) {
	err = retryDo(ctx, func() error { out, err = r.inner.PutConfiguration(ctx, c); return err })
	return
}
func (r *retrying) GetPreferences(ctx context.Context, caregiverID string) (out apis.CaregiverPreferenceProfile, err error) {
	err = retryDo(ctx, func() error { out, err = r.inner.GetPreferences(ctx, caregiverID); return err })
	return
}
func (r *retrying) UpsertPreferences(ctx context.Context, p apis.CaregiverPreferenceProfile) (out apis.CaregiverPreferenceProfile, err error) {
	err = retryDo(ctx, func() error { out, err = r.inner.UpsertPreferences(ctx, p); return err })
	return
}
func (r *retrying) CreateBulkMatchRequest(ctx context.Context, req apis.BulkMatchRequest) (out apis.BulkMatchRequest, err error) {
	err = retryDo(ctx, func() error { out, err = r.inner.CreateBulkMatchRequest(ctx, req); return err })
	return
}
func (r *retrying) GetBulkMatchRequest(ctx context.Context, id string) (out apis.BulkMatchRequest, err error) {
	err = retryDo(ctx, func() error { out, err = r.inner.GetBulkMatchRequest(ctx, id); return err })
	return
}
func (r *retrying) UpdateBulkMatchRequest(ctx context.Context, id string, v int, mutate func(*apis.BulkMatchRequest)) (out apis.BulkMatchRequest, err error) {
	err = retryDo(ctx, func() error { out, err = r.inner.UpdateBulkMatchRequest(ctx, id, v, mutate); return err })
	return
}
func (r *retrying) AppendMatchHistory(ctx context.Context, row apis.MatchHistory) (out apis.MatchHistory, err error) {
	err = retryDo(ctx, func() error { out, err = r.inner.AppendMatchHistory(ctx, row); return err })
	return
}
func (r *retrying) FindMatchHistoryForShift(ctx context.Context, shiftID string) (out []apis.MatchHistory, err error) {
	err = retryDo(ctx, func() error { out, err = r.inner.FindMatchHistoryForShift(ctx, shiftID); return err })
	return
}
func (r *retrying) FindMatchHistorySince(ctx context.Context, since time.Time) (out []apis.MatchHistory, err error) {
	err = retryDo(ctx, func() error { out, err = r.inner.FindMatchHistorySince(ctx, since); return err })
	return
}
func (r *retrying) FindCandidatesForShift(ctx context.Context, shift apis.OpenShift) (out []apis.Caregiver, err error) {
	err = retryDo(ctx, func() error { out, err = r.inner.FindCandidatesForShift(ctx, shift); return err })
	return
}
func (r *retrying) CaregiverContext(ctx context.Context, caregiverID string, shift apis.OpenShift) (out apis.CaregiverContext, err error) {
	err = retryDo(ctx, func() error { out, err = r.inner.CaregiverContext(ctx, caregiverID, shift); return err })
	return
}
func (r *retrying) GetExperimentAssignment(ctx context.Context, shiftID string) (out apis.ExperimentAssignment, err error) {
	err = retryDo(ctx, func() error { out, err = r.inner.GetExperimentAssignment(ctx, shiftID); return err })
	return
}
func (r *retrying) CreateExperimentAssignment(ctx context.Context, a apis.ExperimentAssignment) (out apis.ExperimentAssignment, err error) {
	err = retryDo(ctx, func() error { out, err = r.inner.CreateExperimentAssignment(ctx, a); return err })
	return
}
