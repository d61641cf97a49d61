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

// Package httpapi is the thin net/http adapter in front of
// pkg/coordinator: it translates requests into UserContext-carrying calls
// on the Coordinator, and translates EngineError kinds into the envelope
// and status codes the clients of this service expect. Nothing under
// pkg/apis, pkg/scoring, pkg/store, pkg/matching, pkg/proposal,
// pkg/optimizer, pkg/ml, pkg/coordinator, pkg/scheduler, or pkg/metrics
// may import this package or any HTTP library: the engine core has no
// idea it is being served over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/neighborhood-lab/care-commons-sub009/pkg/apis"
	apierrors "github.com/neighborhood-lab/care-commons-sub009/pkg/apis/errors"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/coordinator"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/log"
)

// Server wraps a Coordinator with the HTTP surface clients drive it through.
type Server struct {
	Coordinator *coordinator.Coordinator
	mux         *http.ServeMux
}

// New builds a Server with all routes registered.
func New(c *coordinator.Coordinator) *Server {
	s := &Server{Coordinator: c, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /v1/shifts", s.handleCreateShift)
	s.mux.HandleFunc("POST /v1/shifts/{id}/match", s.handleMatchShift)
	s.mux.HandleFunc("POST /v1/shifts/{id}/self-select", s.handleSelfSelectShift)
	s.mux.HandleFunc("POST /v1/proposals/{id}/respond", s.handleRespondToProposal)
	s.mux.HandleFunc("POST /v1/bulk-match", s.handleRunBulkMatch)
	s.mux.HandleFunc("PUT /v1/caregivers/{id}/preferences", s.handleUpsertPreferences)
	s.mux.HandleFunc("PUT /v1/configurations", s.handlePutConfiguration)
	s.mux.HandleFunc("GET /metrics/matching", s.handleGetMatchingKPI)
}

// envelope is the success-path response shape every handler returns.
type envelope struct {
	Data interface{} `json:"data"`
	Meta interface{} `json:"meta,omitempty"`
}

// errorEnvelope is the failure-path response shape, keyed off EngineError.
type errorEnvelope struct {
	Error   string                   `json:"error"`
	Code    string                   `json:"code"`
	Context []apis.EligibilityIssue `json:"context,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, envelope{Data: data})
}

// writeError maps an EngineError's Kind to the HTTP status clients
// expect and renders the {error, code, context} envelope. Errors that
// never went through pkg/apis/errors are treated as 500s so a missed
// wrap never leaks an ad-hoc string status.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL"
	var issues []apis.EligibilityIssue

	var ee *apierrors.EngineError
	if errors.As(err, &ee) {
		status = ee.Kind().HTTPStatus()
		code = ee.Code()
		issues = ee.Issues
	} else {
		log.FromContext(ctx).Error(err, "unhandled error reached the HTTP boundary")
	}
	writeJSON(w, status, errorEnvelope{Error: err.Error(), Code: code, Context: issues})
}

// userFromRequest extracts the authenticated caller. Real deployments
// terminate auth upstream (gateway/JWT) and forward identity headers;
// this reads the same shape so the core engine stays unaware of how
// authentication happens.
func userFromRequest(r *http.Request) apis.UserContext {
	return apis.UserContext{
		UserID:         r.Header.Get("X-User-Id"),
		OrganizationID: r.Header.Get("X-Organization-Id"),
		Roles:          splitCSV(r.Header.Get("X-Roles")),
		Permissions:    splitCSV(r.Header.Get("X-Permissions")),
		BranchIDs:      splitCSV(r.Header.Get("X-Branch-Ids")),
	}
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

