// Package reports exposes HTTP access to scenarios, simulation runs, and
// asynchronous report generation.
package reports

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"carboncore/internal/core"
	"carboncore/pkg/domain"
)

// ScenarioService exposes the scenario and run operations used by HTTP handlers.
type ScenarioService interface {
	CreateScenario(ctx context.Context, scenario core.Scenario) (core.Scenario, core.Result, error)
	UpdateScenario(ctx context.Context, id string, mutator func(*core.Scenario) error) (core.Scenario, core.Result, error)
	DeleteScenario(ctx context.Context, id string) (core.Result, error)
	GetScenario(id string) (core.Scenario, bool)
	ListScenarios() []core.Scenario
	RunScenario(ctx context.Context, scenarioID string) (core.Run, core.Result, error)
	GetRun(id string) (core.Run, bool)
	ListRuns() []core.Run
	DeleteRun(ctx context.Context, id string) (core.Result, error)
}

// Handler provides HTTP access to scenarios, runs, and reports.
type Handler struct {
	Service ScenarioService
	Reports ReportScheduler
}

// NewHandler constructs a scenario HTTP handler.
func NewHandler(service ScenarioService) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeError(w, http.StatusInternalServerError, "scenario service not configured")
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/api/v1/scenarios":
		h.handleScenarios(w, r)
	case strings.HasPrefix(path, "/api/v1/scenarios/"):
		h.handleScenario(w, r, strings.TrimPrefix(path, "/api/v1/scenarios/"))
	case path == "/api/v1/runs":
		h.handleRuns(w, r)
	case strings.HasPrefix(path, "/api/v1/runs/"):
		h.handleRun(w, r, strings.TrimPrefix(path, "/api/v1/runs/"))
	case path == "/api/v1/reports" || strings.HasPrefix(path, "/api/v1/reports/"):
		if h.Reports == nil {
			http.NotFound(w, r)
			return
		}
		h.handleReports(w, r, path)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleScenarios(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"scenarios": h.Service.ListScenarios()})
	case http.MethodPost:
		var scenario core.Scenario
		if err := json.NewDecoder(r.Body).Decode(&scenario); err != nil {
			writeError(w, http.StatusBadRequest, "invalid scenario payload")
			return
		}
		created, result, err := h.Service.CreateScenario(r.Context(), scenario)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"scenario": created, "violations": result.Violations})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleScenario(w http.ResponseWriter, r *http.Request, remainder string) {
	segments := strings.Split(remainder, "/")
	id := segments[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}

	if len(segments) == 2 && segments[1] == "run" {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleScenarioRun(w, r, id)
		return
	}
	if len(segments) != 1 {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		scenario, ok := h.Service.GetScenario(id)
		if !ok {
			writeError(w, http.StatusNotFound, "scenario not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"scenario": scenario})
	case http.MethodPut:
		var payload core.Scenario
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid scenario payload")
			return
		}
		updated, result, err := h.Service.UpdateScenario(r.Context(), id, func(sc *core.Scenario) error {
			payload.Base = sc.Base
			*sc = payload
			return nil
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"scenario": updated, "violations": result.Violations})
	case http.MethodDelete:
		if _, err := h.Service.DeleteScenario(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleScenarioRun(w http.ResponseWriter, r *http.Request, id string) {
	run, result, err := h.Service.RunScenario(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	switch negotiateFormat(r) {
	case "csv":
		streamCSV(w, run)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"run": run, "violations": result.Violations})
	}
}

func (h *Handler) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": h.Service.ListRuns()})
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request, id string) {
	if id == "" {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		run, ok := h.Service.GetRun(id)
		if !ok {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		switch negotiateFormat(r) {
		case "csv":
			streamCSV(w, run)
		default:
			writeJSON(w, http.StatusOK, map[string]any{"run": run})
		}
	case http.MethodDelete:
		if _, err := h.Service.DeleteRun(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type reportRequest struct {
	RunID       string   `json:"run_id"`
	Formats     []string `json:"formats"`
	RequestedBy string   `json:"requested_by"`
	Reason      string   `json:"reason"`
}

func (h *Handler) handleReports(w http.ResponseWriter, r *http.Request, path string) {
	if path == "/api/v1/reports" {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleReportCreate(w, r)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(path, "/api/v1/reports/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	record, ok := h.Reports.GetReport(id)
	if !ok {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": record})
}

func (h *Handler) handleReportCreate(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid report request payload")
		return
	}

	formats := make([]ReportFormat, 0, len(req.Formats))
	for _, f := range req.Formats {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "json":
			formats = append(formats, FormatJSON)
		case "csv":
			formats = append(formats, FormatCSV)
		default:
			writeError(w, http.StatusBadRequest, "unsupported report format")
			return
		}
	}

	record, err := h.Reports.EnqueueReport(r.Context(), ReportInput{
		RunID:       req.RunID,
		Formats:     formats,
		RequestedBy: req.RequestedBy,
		Reason:      req.Reason,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"report": record})
}

func negotiateFormat(r *http.Request) string {
	wanted := strings.ToLower(r.URL.Query().Get("format"))
	if wanted == "" {
		if strings.Contains(r.Header.Get("Accept"), "text/csv") {
			wanted = "csv"
		} else {
			wanted = "json"
		}
	}
	return wanted
}

func streamCSV(w http.ResponseWriter, run core.Run) {
	filename := fmt.Sprintf("run-%s-%s.csv", run.ID, time.Now().UTC().Format("20060102T150405Z"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(seriesHeader()); err != nil {
		return
	}
	for _, year := range run.Series {
		if err := writer.Write(seriesRow(year)); err != nil {
			return
		}
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	var violation domain.RuleViolationError
	if errors.As(err, &violation) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      violation.Error(),
			"violations": violation.Result.Violations,
		})
		return
	}
	var notFound core.ErrNotFound
	if errors.As(err, &notFound) {
		writeError(w, http.StatusNotFound, notFound.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
