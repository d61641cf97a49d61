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

package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/neighborhood-lab/care-commons-sub009/pkg/apis"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/coordinator"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/httpapi"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/matching"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/optimizer"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/proposal"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/store"
)

func newTestServer(t *testing.T) (*httpapi.Server, store.Store) {
	t.Helper()
	mem := store.NewMemory()
	eval := matching.New(mem, nil)
	props := proposal.New(mem)
	opt := optimizer.New(mem, eval)
	return httpapi.New(coordinator.New(mem, eval, props, opt)), mem
}

func TestCreateShift_ForbiddenWithoutPermissionReturns400(t *testing.T) {
	g := NewWithT(t)
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(apis.OpenShift{})
	req := httptest.NewRequest("POST", "/v1/shifts", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	g.Expect(rec.Code).To(Equal(400))

	var resp struct {
		Code string `json:"code"`
	}
	g.Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
	g.Expect(resp.Code).To(Equal("FORBIDDEN"))
}

func TestCreateShift_WithPermissionReturns201(t *testing.T) {
	g := NewWithT(t)
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(apis.OpenShift{})
	req := httptest.NewRequest("POST", "/v1/shifts", bytes.NewReader(body))
	req.Header.Set("X-User-Id", "admin-1")
	req.Header.Set("X-Organization-Id", "org-1")
	req.Header.Set("X-Permissions", "shift:create")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	g.Expect(rec.Code).To(Equal(201))

	var resp struct {
		Data apis.OpenShift `json:"data"`
	}
	g.Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
	g.Expect(resp.Data.ID).NotTo(BeEmpty())
	g.Expect(resp.Data.Status).To(Equal(apis.ShiftNew))
}

func TestGetMatchingKPI_ForbiddenWithoutPermissionReturns400(t *testing.T) {
	g := NewWithT(t)
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/metrics/matching", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	g.Expect(rec.Code).To(Equal(400))
}

func TestGetMatchingKPI_WithPermissionReturnsKPIAndExperimentBreakdown(t *testing.T) {
	g := NewWithT(t)
	srv, mem := newTestServer(t)

	_, err := mem.AppendMatchHistory(context.Background(), apis.MatchHistory{ShiftID: "s1", CaregiverID: "cg-1", Outcome: apis.OutcomeProposed})
	g.Expect(err).NotTo(HaveOccurred())
	_, err = mem.AppendMatchHistory(context.Background(), apis.MatchHistory{ShiftID: "s1", CaregiverID: "cg-1", Outcome: apis.OutcomeAccepted})
	g.Expect(err).NotTo(HaveOccurred())

	req := httptest.NewRequest("GET", "/metrics/matching?windowHours=24", nil)
	req.Header.Set("X-User-Id", "admin-1")
	req.Header.Set("X-Organization-Id", "org-1")
	req.Header.Set("X-Permissions", "metrics:read")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	g.Expect(rec.Code).To(Equal(200))

	var resp struct {
		Data struct {
			AcceptanceRate float64 `json:"AcceptanceRate"`
			Experiment     struct {
				Variants map[string]struct{} `json:"Variants"`
			} `json:"experiment"`
		} `json:"data"`
	}
	g.Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
	g.Expect(resp.Data.AcceptanceRate).To(BeNumerically("~", 1.0, 0.001))
}

func TestRespondToProposal_UnknownIDReturns404(t *testing.T) {
	g := NewWithT(t)
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]bool{"accept": true})
	req := httptest.NewRequest("POST", "/v1/proposals/does-not-exist/respond", bytes.NewReader(body))
	req.Header.Set("X-User-Id", "cg-1")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	g.Expect(rec.Code).To(Equal(404))
}
