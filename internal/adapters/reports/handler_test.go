package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"carboncore/internal/allometry"
	"carboncore/internal/blob"
	"carboncore/internal/core"
	"carboncore/pkg/domain"
)

const handlerCoefficientsCSV = `species_name,region,a,b,wood_density
Picea abies,boreal,0.0778,2.3550,0.37
Quercus robur,temperate,0.1281,2.3836,0.58
`

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	store, err := allometry.LoadCSV(strings.NewReader(handlerCoefficientsCSV))
	if err != nil {
		t.Fatalf("load coefficients: %v", err)
	}
	simulator := core.NewSimulator(store, core.DefaultModelConfig())
	service := core.NewInMemoryService(core.NewDefaultRulesEngine(), simulator)

	worker := NewWorker(service, blob.NewMemory(), &MemoryAuditLog{})
	worker.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = worker.Stop(ctx)
	})

	handler := NewHandler(service)
	handler.Reports = worker
	return handler
}

func scenarioBody(t *testing.T) *bytes.Reader {
	t.Helper()
	payload, err := json.Marshal(domain.Scenario{
		Name:            "upland pilot",
		AreaHa:          50,
		ProjectYears:    40,
		AnnualMortality: 0.03,
		Mix: []domain.SpeciesMixEntry{
			{Species: "Picea abies", Region: domain.RegionBoreal, Percent: 100, Density: 1100},
		},
	})
	if err != nil {
		t.Fatalf("marshal scenario: %v", err)
	}
	return bytes.NewReader(payload)
}

func doRequest(t *testing.T, handler http.Handler, method, target string, body *bytes.Reader) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, body)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func createScenarioViaAPI(t *testing.T, handler *Handler) string {
	t.Helper()
	rec := doRequest(t, handler, http.MethodPost, "/api/v1/scenarios", scenarioBody(t))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create scenario: status %d body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Scenario domain.Scenario `json:"scenario"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if resp.Scenario.ID == "" {
		t.Fatalf("missing scenario id in %s", rec.Body.String())
	}
	return resp.Scenario.ID
}

func TestScenarioEndpoints(t *testing.T) {
	handler := newTestHandler(t)
	id := createScenarioViaAPI(t, handler)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/scenarios", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), id) {
		t.Fatalf("list scenarios: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/v1/scenarios/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get scenario: status %d", rec.Code)
	}

	update, _ := json.Marshal(domain.Scenario{
		Name:            "renamed pilot",
		AreaHa:          60,
		ProjectYears:    40,
		AnnualMortality: 0.03,
		Mix: []domain.SpeciesMixEntry{
			{Species: "Quercus robur", Region: domain.RegionTemperate, Percent: 100, Density: 900},
		},
	})
	rec = doRequest(t, handler, http.MethodPut, "/api/v1/scenarios/"+id, bytes.NewReader(update))
	if rec.Code != http.StatusOK {
		t.Fatalf("update scenario: status %d body %s", rec.Code, rec.Body.String())
	}
	var updated struct {
		Scenario domain.Scenario `json:"scenario"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode update response: %v", err)
	}
	if updated.Scenario.ID != id || updated.Scenario.Name != "renamed pilot" {
		t.Fatalf("update must preserve id and apply payload: %+v", updated.Scenario)
	}

	rec = doRequest(t, handler, http.MethodDelete, "/api/v1/scenarios/"+id, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete scenario: status %d", rec.Code)
	}
	rec = doRequest(t, handler, http.MethodGet, "/api/v1/scenarios/"+id, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted scenario: status %d", rec.Code)
	}
}

func TestCreateScenarioRuleViolation(t *testing.T) {
	handler := newTestHandler(t)

	payload, _ := json.Marshal(domain.Scenario{
		Name:            "overcommitted",
		AreaHa:          50,
		ProjectYears:    40,
		AnnualMortality: 0.03,
		Mix: []domain.SpeciesMixEntry{
			{Species: "Picea abies", Region: domain.RegionBoreal, Percent: 110, Density: 1100},
		},
	})
	rec := doRequest(t, handler, http.MethodPost, "/api/v1/scenarios", bytes.NewReader(payload))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "violations") {
		t.Fatalf("response missing violations: %s", rec.Body.String())
	}
}

func TestCreateScenarioBadPayload(t *testing.T) {
	handler := newTestHandler(t)
	rec := doRequest(t, handler, http.MethodPost, "/api/v1/scenarios", bytes.NewReader([]byte("{not json")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRunEndpoints(t *testing.T) {
	handler := newTestHandler(t)
	id := createScenarioViaAPI(t, handler)

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/scenarios/"+id+"/run", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("run scenario: status %d body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Run domain.Run `json:"run"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode run response: %v", err)
	}
	if resp.Run.Status != domain.RunStatusCompleted || len(resp.Run.Series) != 40 {
		t.Fatalf("unexpected run payload: status %s, %d years", resp.Run.Status, len(resp.Run.Series))
	}

	rec = doRequest(t, handler, http.MethodPost, "/api/v1/scenarios/"+id+"/run?format=csv", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("run scenario csv: status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("expected text/csv, got %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "year,trees_total") {
		t.Fatalf("csv body missing header: %q", rec.Body.String())
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/v1/runs", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), resp.Run.ID) {
		t.Fatalf("list runs: status %d body %s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+resp.Run.ID, nil)
	req.Header.Set("Accept", "text/csv")
	csvRec := httptest.NewRecorder()
	handler.ServeHTTP(csvRec, req)
	if csvRec.Code != http.StatusOK || !strings.HasPrefix(csvRec.Body.String(), "year,trees_total") {
		t.Fatalf("run csv via accept header: status %d body %q", csvRec.Code, csvRec.Body.String())
	}
	if cd := csvRec.Header().Get("Content-Disposition"); !strings.Contains(cd, resp.Run.ID) {
		t.Fatalf("csv attachment filename missing run id: %q", cd)
	}

	rec = doRequest(t, handler, http.MethodDelete, "/api/v1/runs/"+resp.Run.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete run: status %d", rec.Code)
	}
}

func TestRunScenarioNotFound(t *testing.T) {
	handler := newTestHandler(t)
	rec := doRequest(t, handler, http.MethodPost, "/api/v1/scenarios/missing/run", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body %s", rec.Code, rec.Body.String())
	}
}

func TestReportEndpoints(t *testing.T) {
	handler := newTestHandler(t)
	id := createScenarioViaAPI(t, handler)

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/scenarios/"+id+"/run", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("run scenario: status %d", rec.Code)
	}
	var runResp struct {
		Run domain.Run `json:"run"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &runResp); err != nil {
		t.Fatalf("decode run: %v", err)
	}

	reportReq, _ := json.Marshal(map[string]any{"run_id": runResp.Run.ID, "formats": []string{"csv"}, "requested_by": "auditor"})
	rec = doRequest(t, handler, http.MethodPost, "/api/v1/reports", bytes.NewReader(reportReq))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("enqueue report: status %d body %s", rec.Code, rec.Body.String())
	}
	var reportResp struct {
		Report ReportRecord `json:"report"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &reportResp); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if reportResp.Report.Status != ReportStatusQueued {
		t.Fatalf("expected queued report, got %s", reportResp.Report.Status)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		rec = doRequest(t, handler, http.MethodGet, "/api/v1/reports/"+reportResp.Report.ID, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("get report: status %d", rec.Code)
		}
		var poll struct {
			Report ReportRecord `json:"report"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &poll); err != nil {
			t.Fatalf("decode report poll: %v", err)
		}
		if poll.Report.Status == ReportStatusSucceeded {
			if len(poll.Report.Artifacts) != 1 || poll.Report.Artifacts[0].Format != FormatCSV {
				t.Fatalf("unexpected artifacts: %+v", poll.Report.Artifacts)
			}
			break
		}
		if poll.Report.Status == ReportStatusFailed {
			t.Fatalf("report failed: %s", poll.Report.Error)
		}
		if time.Now().After(deadline) {
			t.Fatalf("report never completed, last status %s", poll.Report.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestReportEndpointErrors(t *testing.T) {
	handler := newTestHandler(t)

	badFormat, _ := json.Marshal(map[string]any{"run_id": "whatever", "formats": []string{"xml"}})
	rec := doRequest(t, handler, http.MethodPost, "/api/v1/reports", bytes.NewReader(badFormat))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad format, got %d", rec.Code)
	}

	unknownRun, _ := json.Marshal(map[string]any{"run_id": "missing"})
	rec = doRequest(t, handler, http.MethodPost, "/api/v1/reports", bytes.NewReader(unknownRun))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown run, got %d", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/v1/reports/unknown", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown report, got %d", rec.Code)
	}
}

func TestUnknownRouteAndMethods(t *testing.T) {
	handler := newTestHandler(t)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/unknown", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	rec = doRequest(t, handler, http.MethodPatch, "/api/v1/scenarios", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	rec = doRequest(t, handler, http.MethodPost, "/api/v1/runs", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for runs post, got %d", rec.Code)
	}
}
