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

package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/neighborhood-lab/care-commons-sub009/pkg/apis"
	apierrors "github.com/neighborhood-lab/care-commons-sub009/pkg/apis/errors"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/metrics"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/proposal"
)

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apierrors.Validation("MALFORMED_BODY", "request body is not valid JSON: "+err.Error())
	}
	return nil
}

func (s *Server) handleCreateShift(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var shift apis.OpenShift
	if err := decodeBody(r, &shift); err != nil {
		writeError(ctx, w, err)
		return
	}
	created, err := s.Coordinator.CreateShift(ctx, userFromRequest(r), shift)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeData(w, http.StatusCreated, created)
}

func (s *Server) handleMatchShift(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	proposals, err := s.Coordinator.MatchShift(ctx, userFromRequest(r), r.PathValue("id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeData(w, http.StatusOK, proposals)
}

func (s *Server) handleSelfSelectShift(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := s.Coordinator.SelfSelectShift(ctx, userFromRequest(r), r.PathValue("id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeData(w, http.StatusOK, p)
}

// respondRequest is the wire shape for POST /v1/proposals/{id}/respond;
// Coordinator.RespondToProposal overwrites Actor with the caller's own
// identity regardless of what is sent here.
type respondRequest struct {
	Accept            bool                  `json:"accept"`
	RejectionReason   string                `json:"rejectionReason,omitempty"`
	RejectionCategory apis.RejectionCategory `json:"rejectionCategory,omitempty"`
	ExpectedVersion   int                   `json:"expectedVersion"`
}

func (s *Server) handleRespondToProposal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req respondRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	p, err := s.Coordinator.RespondToProposal(ctx, userFromRequest(r), r.PathValue("id"), proposal.RespondOptions{
		Accept:            req.Accept,
		RejectionReason:   req.RejectionReason,
		RejectionCategory: req.RejectionCategory,
		ExpectedVersion:   req.ExpectedVersion,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeData(w, http.StatusOK, p)
}

func (s *Server) handleRunBulkMatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req apis.BulkMatchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	job, err := s.Coordinator.RunBulkMatch(ctx, userFromRequest(r), req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	status := http.StatusOK
	if job.UnmatchedShifts > 0 && job.MatchedShifts > 0 {
		status = http.StatusMultiStatus
	}
	writeData(w, status, job)
}

func (s *Server) handleUpsertPreferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var prefs apis.CaregiverPreferenceProfile
	if err := decodeBody(r, &prefs); err != nil {
		writeError(ctx, w, err)
		return
	}
	updated, err := s.Coordinator.UpsertPreferences(ctx, userFromRequest(r), prefs)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeData(w, http.StatusOK, updated)
}

func (s *Server) handlePutConfiguration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var cfg apis.MatchingConfiguration
	if err := decodeBody(r, &cfg); err != nil {
		writeError(ctx, w, err)
		return
	}
	updated, err := s.Coordinator.PutConfiguration(ctx, userFromRequest(r), cfg)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeData(w, http.StatusOK, updated)
}

// matchingKPIResponse is the wire shape for GET /metrics/matching: the
// headline KPI rollup, plus a per-variant A/B breakdown when an
// experiment produced any assignments in the window.
type matchingKPIResponse struct {
	metrics.KPI
	Experiment metrics.ExperimentResults `json:"experiment"`
}

// handleGetMatchingKPI reads an optional ?windowHours= query parameter,
// defaulting to the coordinator's own window when absent or invalid.
func (s *Server) handleGetMatchingKPI(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var window time.Duration
	if h := r.URL.Query().Get("windowHours"); h != "" {
		if hours, err := strconv.Atoi(h); err == nil && hours > 0 {
			window = time.Duration(hours) * time.Hour
		}
	}
	user := userFromRequest(r)
	kpi, err := s.Coordinator.GetMatchingKPI(ctx, user, window)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	results, err := s.Coordinator.GetExperimentResults(ctx, user, window)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeData(w, http.StatusOK, matchingKPIResponse{KPI: kpi, Experiment: results})
}
