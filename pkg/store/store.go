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

// Package store declares the durable-state capability set as a small
// interface; Memory is its only implementation.
package store

import (
	"context"
	"time"

	"github.com/neighborhood-lab/care-commons-sub009/pkg/apis"
)

// Page is a deterministic pagination cursor; Offset/Limit keep the
// implementation simple while the ordering contract (priority desc,
// scheduled_date asc, id asc) lives in findOpenShifts.
type Page struct {
	Offset int
	Limit  int
}

// ShiftFilter narrows findOpenShifts.
type ShiftFilter struct {
	OrganizationID string
	BranchID       string
	Status         []apis.ShiftStatus
	From, To       time.Time
}

// TxFunc is the body run under withTx; returning an error rolls back.
type TxFunc func(ctx context.Context, tx Tx) error

// Store is the full durable-state capability set the engine depends on.
type Store interface {
	Shifts
	Proposals
	Configurations
	Preferences
	BulkJobs
	History
	Candidates
	Experiments

	// WithTx gives serializable semantics for the accept path and
	// supersession.
	WithTx(ctx context.Context, fn TxFunc) error
}

// Tx is the subset of Store usable inside a transaction. It mirrors Store
// exactly today; kept distinct so a real driver can narrow it (e.g. refuse
// nested WithTx) without an interface change ripple.
type Tx interface {
	Shifts
	Proposals
	Configurations
	Preferences
	BulkJobs
	History
	Candidates
	Experiments
}

type Shifts interface {
	CreateShift(ctx context.Context, shift apis.OpenShift) (apis.OpenShift, error)
	GetShift(ctx context.Context, id string) (apis.OpenShift, error)
	UpdateShift(ctx context.Context, id string, expectedVersion int, mutate func(*apis.OpenShift)) (apis.OpenShift, error)
	DeleteShift(ctx context.Context, id string) error
	FindOpenShifts(ctx context.Context, filter ShiftFilter, page Page) ([]apis.OpenShift, int, error)
}

type Proposals interface {
	CreateProposal(ctx context.Context, p apis.AssignmentProposal) (apis.AssignmentProposal, error)
	GetProposal(ctx context.Context, id string) (apis.AssignmentProposal, error)
	UpdateProposal(ctx context.Context, id string, expectedVersion int, mutate func(*apis.AssignmentProposal)) (apis.AssignmentProposal, error)
	FindNonTerminalProposals(ctx context.Context, shiftID string) ([]apis.AssignmentProposal, error)
	FindProposalsForShift(ctx context.Context, shiftID string) ([]apis.AssignmentProposal, error)
	FindProposalsForCaregiver(ctx context.Context, caregiverID string) ([]apis.AssignmentProposal, error)
	FindExpiredProposals(ctx context.Context, now time.Time) ([]apis.AssignmentProposal, error)
}

type Configurations interface {
	GetConfiguration(ctx context.Context, id string) (apis.MatchingConfiguration, error)
	GetEffectiveConfiguration(ctx context.Context, organizationID, branchID string) (apis.MatchingConfiguration, error)
	PutConfiguration(ctx context.Context, cfg apis.MatchingConfiguration) (apis.MatchingConfiguration, error)
}

type Preferences interface {
	GetPreferences(ctx context.Context, caregiverID string) (apis.CaregiverPreferenceProfile, error)
	UpsertPreferences(ctx context.Context, p apis.CaregiverPreferenceProfile) (apis.CaregiverPreferenceProfile, error)
}

type BulkJobs interface {
	CreateBulkMatchRequest(ctx context.Context, req apis.BulkMatchRequest) (apis.BulkMatchRequest, error)
	GetBulkMatchRequest(ctx context.Context, id string) (apis.BulkMatchRequest, error)
	UpdateBulkMatchRequest(ctx context.Context, id string, expectedVersion int, mutate func(*apis.BulkMatchRequest)) (apis.BulkMatchRequest, error)
}

type History interface {
	AppendMatchHistory(ctx context.Context, row apis.MatchHistory) (apis.MatchHistory, error)
	FindMatchHistoryForShift(ctx context.Context, shiftID string) ([]apis.MatchHistory, error)
	// FindMatchHistorySince returns every history row recorded at or after
	// since, the window a KPI rollup aggregates over.
	FindMatchHistorySince(ctx context.Context, since time.Time) ([]apis.MatchHistory, error)
}

// Candidates covers the coarse pre-scoring filter and per-caregiver context
// assembly the evaluator uses ahead of full scoring.
type Candidates interface {
	FindCandidatesForShift(ctx context.Context, shift apis.OpenShift) ([]apis.Caregiver, error)
	CaregiverContext(ctx context.Context, caregiverID string, shift apis.OpenShift) (apis.CaregiverContext, error)
}

// Experiments holds the write-once-per-shift A/B variant assignment.
type Experiments interface {
	// GetExperimentAssignment returns a NotFound error when no assignment
	// has been written yet for shiftID.
	GetExperimentAssignment(ctx context.Context, shiftID string) (apis.ExperimentAssignment, error)
	// CreateExperimentAssignment persists the first assignment for a
	// shift. A second call for the same shiftID returns the
	// already-persisted assignment unchanged: the assignment is
	// immutable once written.
	CreateExperimentAssignment(ctx context.Context, a apis.ExperimentAssignment) (apis.ExperimentAssignment, error)
}
