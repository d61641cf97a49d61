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
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/samber/lo"

	"github.com/neighborhood-lab/care-commons-sub009/pkg/apis"
	apierrors "github.com/neighborhood-lab/care-commons-sub009/pkg/apis/errors"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/scoring"
)

// reliabilityWindow bounds how far back match history counts toward a
// caregiver's reliability score; older attempts no longer reflect current
// behavior.
const reliabilityWindow = 30 * 24 * time.Hour

// Memory is the in-memory Store implementation used by every package's
// tests and by cmd/server, which has no other backing store. A single
// RWMutex gives it the serializable semantics WithTx promises: every
// write, and every WithTx body, holds the lock for its whole duration, so
// an accept transaction genuinely excludes a concurrent expireStale sweep
// for the same rows.
type Memory struct {
	mu sync.RWMutex

	shifts      map[string]apis.OpenShift
	proposals   map[string]apis.AssignmentProposal
	configs     map[string]apis.MatchingConfiguration
	prefs       map[string]apis.CaregiverPreferenceProfile
	bulkJobs    map[string]apis.BulkMatchRequest
	history     []apis.MatchHistory
	experiments map[string]apis.ExperimentAssignment

	caregivers map[string]apis.Caregiver
	// contextFn lets tests and the matching package inject a deterministic
	// caregiver-context builder without a real conflict/compliance store.
	contextFn func(ctx context.Context, caregiverID string, shift apis.OpenShift) (apis.CaregiverContext, error)

	// configCache is a latency-only read-through cache. It is invalidated on every
	// PutConfiguration and never consulted by any correctness-relevant path.
	configCache *gocache.Cache
}

// NewMemory constructs an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{
		shifts:      map[string]apis.OpenShift{},
		proposals:   map[string]apis.AssignmentProposal{},
		configs:     map[string]apis.MatchingConfiguration{},
		prefs:       map[string]apis.CaregiverPreferenceProfile{},
		bulkJobs:    map[string]apis.BulkMatchRequest{},
		caregivers:  map[string]apis.Caregiver{},
		experiments: map[string]apis.ExperimentAssignment{},
		configCache: gocache.New(30*time.Second, time.Minute),
	}
}

// SeedCaregiver registers a caregiver row for FindCandidatesForShift; the
// in-memory fake has no separate caregiver CRUD surface since that is out
// of scope.
func (m *Memory) SeedCaregiver(c apis.Caregiver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caregivers[c.ID] = c
}

// SetContextFunc overrides how CaregiverContext is assembled; MatchEvaluator
// tests use this to supply deterministic conflicts/distance/history without
// standing up a visits table.
func (m *Memory) SetContextFunc(fn func(ctx context.Context, caregiverID string, shift apis.OpenShift) (apis.CaregiverContext, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contextFn = fn
}

func (m *Memory) WithTx(ctx context.Context, fn TxFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, &txView{m: m})
}

// txView implements Tx by delegating to Memory's already-locked internals;
// it exists so call sites type-assert against Tx rather than *Memory.
type txView struct{ m *Memory }

func (t *txView) CreateShift(ctx context.Context, s apis.OpenShift) (apis.OpenShift, error) {
	return t.m.createShiftLocked(s)
}
func (t *txView) GetShift(ctx context.Context, id string) (apis.OpenShift, error) {
	return t.m.getShiftLocked(id)
}
func (t *txView) UpdateShift(ctx context.Context, id string, v int, mutate func(*apis.OpenShift)) (apis.OpenShift, error) {
	return t.m.updateShiftLocked(id, v, mutate)
}
func (t *txView) DeleteShift(ctx context.Context, id string) error { return t.m.deleteShiftLocked(id) }
func (t *txView) FindOpenShifts(ctx context.Context, f ShiftFilter, p Page) ([]apis.OpenShift, int, error) {
	return t.m.findOpenShiftsLocked(f, p)
}
func (t *txView) CreateProposal(ctx context.Context, p apis.AssignmentProposal) (apis.AssignmentProposal, error) {
	return t.m.createProposalLocked(p)
}
func (t *txView) GetProposal(ctx context.Context, id string) (apis.AssignmentProposal, error) {
	return t.m.getProposalLocked(id)
}
func (t *txView) UpdateProposal(ctx context.Context, id string, v int, mutate func(*apis.AssignmentProposal)) (apis.AssignmentProposal, error) {
	return t.m.updateProposalLocked(id, v, mutate)
}
func (t *txView) FindNonTerminalProposals(ctx context.Context, shiftID string) ([]apis.AssignmentProposal, error) {
	return t.m.findNonTerminalProposalsLocked(shiftID), nil
}
func (t *txView) FindProposalsForShift(ctx context.Context, shiftID string) ([]apis.AssignmentProposal, error) {
	return t.m.findProposalsForShiftLocked(shiftID), nil
}
func (t *txView) FindProposalsForCaregiver(ctx context.Context, caregiverID string) ([]apis.AssignmentProposal, error) {
	return t.m.findProposalsForCaregiverLocked(caregiverID), nil
}
func (t *txView) FindExpiredProposals(ctx context.Context, now time.Time) ([]apis.AssignmentProposal, error) {
	return t.m.findExpiredProposalsLocked(now), nil
}
func (t *txView) GetConfiguration(ctx context.Context, id string) (apis.MatchingConfiguration, error) {
	return t.m.getConfigurationLocked(id)
}
func (t *txView) GetEffectiveConfiguration(ctx context.Context, org, branch string) (apis.MatchingConfiguration, error) {
	return t.m.getEffectiveConfigurationLocked(org, branch)
}
func (t *txView) PutConfiguration(ctx context.Context, c apis.MatchingConfiguration) (apis.MatchingConfiguration, error) {
	return t.m.putConfigurationLocked(c)
}
func (t *txView) GetPreferences(ctx context.Context, caregiverID string) (apis.CaregiverPreferenceProfile, error) {
	return t.m.getPreferencesLocked(caregiverID)
}
func (t *txView) UpsertPreferences(ctx context.Context, p apis.CaregiverPreferenceProfile) (apis.CaregiverPreferenceProfile, error) {
	return t.m.upsertPreferencesLocked(p)
}
func (t *txView) CreateBulkMatchRequest(ctx context.Context, r apis.BulkMatchRequest) (apis.BulkMatchRequest, error) {
	return t.m.createBulkMatchRequestLocked(r)
}
func (t *txView) GetBulkMatchRequest(ctx context.Context, id string) (apis.BulkMatchRequest, error) {
	return t.m.getBulkMatchRequestLocked(id)
}
func (t *txView) UpdateBulkMatchRequest(ctx context.Context, id string, v int, mutate func(*apis.BulkMatchRequest)) (apis.BulkMatchRequest, error) {
	return t.m.updateBulkMatchRequestLocked(id, v, mutate)
}
func (t *txView) AppendMatchHistory(ctx context.Context, row apis.MatchHistory) (apis.MatchHistory, error) {
	return t.m.appendMatchHistoryLocked(row)
}
func (t *txView) FindMatchHistoryForShift(ctx context.Context, shiftID string) ([]apis.MatchHistory, error) {
	return t.m.findMatchHistoryForShiftLocked(shiftID), nil
}
func (t *txView) FindMatchHistorySince(ctx context.Context, since time.Time) ([]apis.MatchHistory, error) {
	return t.m.findMatchHistorySinceLocked(since), nil
}
func (t *txView) FindCandidatesForShift(ctx context.Context, shift apis.OpenShift) ([]apis.Caregiver, error) {
	return t.m.findCandidatesForShiftLocked(shift), nil
}
func (t *txView) CaregiverContext(ctx context.Context, caregiverID string, shift apis.OpenShift) (apis.CaregiverContext, error) {
	return t.m.caregiverContextLocked(ctx, caregiverID, shift)
}
func (t *txView) GetExperimentAssignment(ctx context.Context, shiftID string) (apis.ExperimentAssignment, error) {
	return t.m.getExperimentAssignmentLocked(shiftID)
}
func (t *txView) CreateExperimentAssignment(ctx context.Context, a apis.ExperimentAssignment) (apis.ExperimentAssignment, error) {
	return t.m.createExperimentAssignmentLocked(a)
}

// --- public (self-locking) Store methods ---

func (m *Memory) CreateShift(ctx context.Context, s apis.OpenShift) (apis.OpenShift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createShiftLocked(s)
}
func (m *Memory) GetShift(ctx context.Context, id string) (apis.OpenShift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getShiftLocked(id)
}
func (m *Memory) UpdateShift(ctx context.Context, id string, v int, mutate func(*apis.OpenShift)) (apis.OpenShift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateShiftLocked(id, v, mutate)
}
func (m *Memory) DeleteShift(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteShiftLocked(id)
}
func (m *Memory) FindOpenShifts(ctx context.Context, f ShiftFilter, p Page) ([]apis.OpenShift, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findOpenShiftsLocked(f, p)
}
func (m *Memory) CreateProposal(ctx context.Context, p apis.AssignmentProposal) (apis.AssignmentProposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createProposalLocked(p)
}
func (m *Memory) GetProposal(ctx context.Context, id string) (apis.AssignmentProposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getProposalLocked(id)
}
func (m *Memory) UpdateProposal(ctx context.Context, id string, v int, mutate func(*apis.AssignmentProposal)) (apis.AssignmentProposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateProposalLocked(id, v, mutate)
}
func (m *Memory) FindNonTerminalProposals(ctx context.Context, shiftID string) ([]apis.AssignmentProposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findNonTerminalProposalsLocked(shiftID), nil
}
func (m *Memory) FindProposalsForShift(ctx context.Context, shiftID string) ([]apis.AssignmentProposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findProposalsForShiftLocked(shiftID), nil
}
func (m *Memory) FindProposalsForCaregiver(ctx context.Context, caregiverID string) ([]apis.AssignmentProposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findProposalsForCaregiverLocked(caregiverID), nil
}
func (m *Memory) FindExpiredProposals(ctx context.Context, now time.Time) ([]apis.AssignmentProposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findExpiredProposalsLocked(now), nil
}
func (m *Memory) GetConfiguration(ctx context.Context, id string) (apis.MatchingConfiguration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getConfigurationLocked(id)
}
func (m *Memory) GetEffectiveConfiguration(ctx context.Context, org, branch string) (apis.MatchingConfiguration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getEffectiveConfigurationLocked(org, branch)
}
func (m *Memory) PutConfiguration(ctx context.Context, c apis.MatchingConfiguration) (apis.MatchingConfiguration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putConfigurationLocked(c)
}
func (m *Memory) GetPreferences(ctx context.Context, caregiverID string) (apis.CaregiverPreferenceProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPreferencesLocked(caregiverID)
}
func (m *Memory) UpsertPreferences(ctx context.Context, p apis.CaregiverPreferenceProfile) (apis.CaregiverPreferenceProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertPreferencesLocked(p)
}
func (m *Memory) CreateBulkMatchRequest(ctx context.Context, r apis.BulkMatchRequest) (apis.BulkMatchRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createBulkMatchRequestLocked(r)
}
func (m *Memory) GetBulkMatchRequest(ctx context.Context, id string) (apis.BulkMatchRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getBulkMatchRequestLocked(id)
}
func (m *Memory) UpdateBulkMatchRequest(ctx context.Context, id string, v int, mutate func(*apis.BulkMatchRequest)) (apis.BulkMatchRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateBulkMatchRequestLocked(id, v, mutate)
}
func (m *Memory) AppendMatchHistory(ctx context.Context, row apis.MatchHistory) (apis.MatchHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendMatchHistoryLocked(row)
}
func (m *Memory) FindMatchHistoryForShift(ctx context.Context, shiftID string) ([]apis.MatchHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findMatchHistoryForShiftLocked(shiftID), nil
}
func (m *Memory) FindMatchHistorySince(ctx context.Context, since time.Time) ([]apis.MatchHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findMatchHistorySinceLocked(since), nil
}
func (m *Memory) FindCandidatesForShift(ctx context.Context, shift apis.OpenShift) ([]apis.Caregiver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findCandidatesForShiftLocked(shift), nil
}
func (m *Memory) CaregiverContext(ctx context.Context, caregiverID string, shift apis.OpenShift) (apis.CaregiverContext, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.caregiverContextLocked(ctx, caregiverID, shift)
}
func (m *Memory) GetExperimentAssignment(ctx context.Context, shiftID string) (apis.ExperimentAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getExperimentAssignmentLocked(shiftID)
}
func (m *Memory) CreateExperimentAssignment(ctx context.Context, a apis.ExperimentAssignment) (apis.ExperimentAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createExperimentAssignmentLocked(a)
}

// --- unlocked core, callable from either the self-locking path or a tx ---

func (m *Memory) createShiftLocked(s apis.OpenShift) (apis.OpenShift, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now()
	s.CreatedAt, s.UpdatedAt = now, now
	s.Version = 1
	if s.Status == "" {
		s.Status = apis.ShiftNew
	}
	m.shifts[s.ID] = s
	return s, nil
}

func (m *Memory) getShiftLocked(id string) (apis.OpenShift, error) {
	s, ok := m.shifts[id]
	if !ok {
		return apis.OpenShift{}, apierrors.NotFound("shift", id)
	}
	return s, nil
}

func (m *Memory) updateShiftLocked(id string, expectedVersion int, mutate func(*apis.OpenShift)) (apis.OpenShift, error) {
	s, ok := m.shifts[id]
	if !ok {
		return apis.OpenShift{}, apierrors.NotFound("shift", id)
	}
	if s.Version != expectedVersion {
		return apis.OpenShift{}, apierrors.ErrStaleVersion
	}
	mutate(&s)
	s.Version++
	s.UpdatedAt = time.Now()
	m.shifts[id] = s
	return s, nil
}

func (m *Memory) deleteShiftLocked(id string) error {
	if _, ok := m.shifts[id]; !ok {
		return apierrors.NotFound("shift", id)
	}
	// cascades: all non-terminal proposals for the shift move to WITHDRAWN
	//.
	for pid, p := range m.proposals {
		if p.ShiftID == id && p.Status.IsNonTerminal() {
			p.Status = apis.ProposalWithdrawn
			p.Version++
			p.UpdatedAt = time.Now()
			m.proposals[pid] = p
		}
	}
	delete(m.shifts, id)
	return nil
}

func (m *Memory) findOpenShiftsLocked(f ShiftFilter, p Page) ([]apis.OpenShift, int, error) {
	var matched []apis.OpenShift
	for _, s := range m.shifts {
		if f.OrganizationID != "" && s.OrganizationID != f.OrganizationID {
			continue
		}
		if f.BranchID != "" && s.BranchID != f.BranchID {
			continue
		}
		if len(f.Status) > 0 && !lo.Contains(f.Status, s.Status) {
			continue
		}
		if !f.From.IsZero() && s.ScheduledDate.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && s.ScheduledDate.After(f.To) {
			continue
		}
		matched = append(matched, s)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority > matched[j].Priority
		}
		if !matched[i].ScheduledDate.Equal(matched[j].ScheduledDate) {
			return matched[i].ScheduledDate.Before(matched[j].ScheduledDate)
		}
		return matched[i].ID < matched[j].ID
	})
	total := len(matched)
	start := p.Offset
	if start > total {
		start = total
	}
	end := total
	if p.Limit > 0 && start+p.Limit < end {
		end = start + p.Limit
	}
	return matched[start:end], total, nil
}

func (m *Memory) createProposalLocked(p apis.AssignmentProposal) (apis.AssignmentProposal, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	p.Version = 1
	m.proposals[p.ID] = p
	return p, nil
}

func (m *Memory) getProposalLocked(id string) (apis.AssignmentProposal, error) {
	p, ok := m.proposals[id]
	if !ok {
		return apis.AssignmentProposal{}, apierrors.NotFound("proposal", id)
	}
	return p, nil
}

func (m *Memory) updateProposalLocked(id string, expectedVersion int, mutate func(*apis.AssignmentProposal)) (apis.AssignmentProposal, error) {
	p, ok := m.proposals[id]
	if !ok {
		return apis.AssignmentProposal{}, apierrors.NotFound("proposal", id)
	}
	if p.Version != expectedVersion {
		return apis.AssignmentProposal{}, apierrors.ErrStaleVersion
	}
	mutate(&p)
	p.Version++
	p.UpdatedAt = time.Now()
	m.proposals[id] = p
	return p, nil
}

func (m *Memory) findNonTerminalProposalsLocked(shiftID string) []apis.AssignmentProposal {
	var out []apis.AssignmentProposal
	for _, p := range m.proposals {
		if p.ShiftID == shiftID && p.Status.IsNonTerminal() {
			out = append(out, p)
		}
	}
	sortProposalsByID(out)
	return out
}

func (m *Memory) findProposalsForShiftLocked(shiftID string) []apis.AssignmentProposal {
	var out []apis.AssignmentProposal
	for _, p := range m.proposals {
		if p.ShiftID == shiftID {
			out = append(out, p)
		}
	}
	sortProposalsByID(out)
	return out
}

func (m *Memory) findProposalsForCaregiverLocked(caregiverID string) []apis.AssignmentProposal {
	var out []apis.AssignmentProposal
	for _, p := range m.proposals {
		if p.CaregiverID == caregiverID {
			out = append(out, p)
		}
	}
	sortProposalsByID(out)
	return out
}

func (m *Memory) findExpiredProposalsLocked(now time.Time) []apis.AssignmentProposal {
	var out []apis.AssignmentProposal
	for _, p := range m.proposals {
		if p.Status.IsNonTerminal() && !p.ExpiresAt.After(now) {
			out = append(out, p)
		}
	}
	sortProposalsByID(out)
	return out
}

func sortProposalsByID(ps []apis.AssignmentProposal) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
}

func (m *Memory) getConfigurationLocked(id string) (apis.MatchingConfiguration, error) {
	c, ok := m.configs[id]
	if !ok {
		return apis.MatchingConfiguration{}, apierrors.NotFound("configuration", id)
	}
	return c, nil
}

func (m *Memory) getEffectiveConfigurationLocked(org, branch string) (apis.MatchingConfiguration, error) {
	cacheKey := org + "/" + branch
	if cached, ok := m.configCache.Get(cacheKey); ok {
		return cached.(apis.MatchingConfiguration), nil
	}

	var base, override apis.MatchingConfiguration
	var haveBase, haveOverride bool
	for _, c := range m.configs {
		if c.OrganizationID == org && c.BranchID == "" {
			base, haveBase = c, true
		}
		if branch != "" && c.OrganizationID == org && c.BranchID == branch {
			override, haveOverride = c, true
		}
	}
	if !haveBase {
		base = apis.DefaultConfiguration(org)
	}
	effective := base
	if haveOverride {
		merged, err := apis.MergeOverride(base, override)
		if err != nil {
			return apis.MatchingConfiguration{}, err
		}
		effective = merged
	}
	m.configCache.Set(cacheKey, effective, gocache.DefaultExpiration)
	return effective, nil
}

func (m *Memory) putConfigurationLocked(c apis.MatchingConfiguration) (apis.MatchingConfiguration, error) {
	if err := c.Validate(); err != nil {
		return apis.MatchingConfiguration{}, apierrors.Validation("INVALID_CONFIGURATION", err.Error())
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now()
	if existing, ok := m.configs[c.ID]; ok {
		c.CreatedAt = existing.CreatedAt
		c.Version = existing.Version + 1
	} else {
		c.CreatedAt = now
		c.Version = 1
	}
	c.UpdatedAt = now
	m.configs[c.ID] = c
	m.configCache.Flush()
	return c, nil
}

func (m *Memory) getPreferencesLocked(caregiverID string) (apis.CaregiverPreferenceProfile, error) {
	p, ok := m.prefs[caregiverID]
	if !ok {
		return apis.CaregiverPreferenceProfile{}, apierrors.NotFound("preferences", caregiverID)
	}
	return p, nil
}

func (m *Memory) upsertPreferencesLocked(p apis.CaregiverPreferenceProfile) (apis.CaregiverPreferenceProfile, error) {
	if existing, ok := m.prefs[p.CaregiverID]; ok {
		p.Version = existing.Version + 1
	} else {
		p.Version = 1
	}
	p.UpdatedAt = time.Now()
	m.prefs[p.CaregiverID] = p
	return p, nil
}

func (m *Memory) createBulkMatchRequestLocked(r apis.BulkMatchRequest) (apis.BulkMatchRequest, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = time.Now()
	r.Version = 1
	if r.Status == "" {
		r.Status = apis.BulkPending
	}
	m.bulkJobs[r.ID] = r
	return r, nil
}

func (m *Memory) getBulkMatchRequestLocked(id string) (apis.BulkMatchRequest, error) {
	r, ok := m.bulkJobs[id]
	if !ok {
		return apis.BulkMatchRequest{}, apierrors.NotFound("bulkMatchRequest", id)
	}
	return r, nil
}

func (m *Memory) updateBulkMatchRequestLocked(id string, expectedVersion int, mutate func(*apis.BulkMatchRequest)) (apis.BulkMatchRequest, error) {
	r, ok := m.bulkJobs[id]
	if !ok {
		return apis.BulkMatchRequest{}, apierrors.NotFound("bulkMatchRequest", id)
	}
	if r.Version != expectedVersion {
		return apis.BulkMatchRequest{}, apierrors.ErrStaleVersion
	}
	mutate(&r)
	r.Version++
	m.bulkJobs[id] = r
	return r, nil
}

func (m *Memory) appendMatchHistoryLocked(row apis.MatchHistory) (apis.MatchHistory, error) {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	row.CreatedAt = time.Now()
	m.history = append(m.history, row)
	return row, nil
}

func (m *Memory) findMatchHistoryForShiftLocked(shiftID string) []apis.MatchHistory {
	var out []apis.MatchHistory
	for _, h := range m.history {
		if h.ShiftID == shiftID {
			out = append(out, h)
		}
	}
	return out
}

func (m *Memory) findMatchHistorySinceLocked(since time.Time) []apis.MatchHistory {
	var out []apis.MatchHistory
	for _, h := range m.history {
		if !h.CreatedAt.Before(since) {
			out = append(out, h)
		}
	}
	return out
}

// reliabilityCountsLocked tallies a caregiver's accept/reject/no-show
// history within reliabilityWindow, the raw input to scoring.ReliabilityScore.
func (m *Memory) reliabilityCountsLocked(caregiverID string) (accepts, rejects, noShows int) {
	cutoff := time.Now().Add(-reliabilityWindow)
	for _, h := range m.history {
		if h.CaregiverID != caregiverID || h.CreatedAt.Before(cutoff) {
			continue
		}
		switch h.Outcome {
		case apis.OutcomeAccepted:
			accepts++
		case apis.OutcomeRejected:
			rejects++
		case apis.OutcomeNoShow:
			noShows++
		}
	}
	return
}

func (m *Memory) findCandidatesForShiftLocked(shift apis.OpenShift) []apis.Caregiver {
	var out []apis.Caregiver
	for _, c := range m.caregivers {
		if c.OrganizationID != shift.OrganizationID {
			continue
		}
		if !c.Active || c.EmploymentStatus != apis.EmploymentActive {
			continue
		}
		if len(c.BranchIDs) > 0 && !lo.Contains(c.BranchIDs, shift.BranchID) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) caregiverContextLocked(ctx context.Context, caregiverID string, shift apis.OpenShift) (apis.CaregiverContext, error) {
	if m.contextFn != nil {
		return m.contextFn(ctx, caregiverID, shift)
	}
	c, ok := m.caregivers[caregiverID]
	if !ok {
		return apis.CaregiverContext{}, apierrors.NotFound("caregiver", caregiverID)
	}
	accepts, rejects, noShows := m.reliabilityCountsLocked(caregiverID)
	return apis.CaregiverContext{
		Caregiver:        c,
		ComplianceStatus: apis.ComplianceCompliant,
		ReliabilityScore: scoring.ReliabilityScore(accepts, rejects, noShows),
	}, nil
}

func (m *Memory) getExperimentAssignmentLocked(shiftID string) (apis.ExperimentAssignment, error) {
	a, ok := m.experiments[shiftID]
	if !ok {
		return apis.ExperimentAssignment{}, apierrors.NotFound("experimentAssignment", shiftID)
	}
	return a, nil
}

// createExperimentAssignmentLocked is write-once: a shift that already has
// an assignment keeps it, so a match retry never reshuffles a caregiver
// across variants mid-experiment.
func (m *Memory) createExperimentAssignmentLocked(a apis.ExperimentAssignment) (apis.ExperimentAssignment, error) {
	if existing, ok := m.experiments[a.ShiftID]; ok {
		return existing, nil
	}
	m.experiments[a.ShiftID] = a
	return a, nil
}
