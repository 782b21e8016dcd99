package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/zen-systems/contentflow/pkg/adapter"
	"github.com/zen-systems/contentflow/pkg/logger"
	"github.com/zen-systems/contentflow/pkg/pipeline"
	"github.com/zen-systems/contentflow/pkg/plans"
	"github.com/zen-systems/contentflow/pkg/router"
	"github.com/zen-systems/contentflow/pkg/schema"
	"github.com/zen-systems/contentflow/pkg/store"
)

// maxBodyBytes bounds plan request bodies.
const maxBodyBytes = 4 << 20

const defaultRunsLimit = 20

type runResponse struct {
	Success    bool                  `json:"success"`
	RunID      string                `json:"run_id"`
	Plan       string                `json:"plan"`
	Status     pipeline.Status       `json:"status"`
	Result     any                   `json:"result"`
	Steps      []pipeline.StepResult `json:"steps"`
	Files      map[string]any        `json:"files"`
	DurationMS int64                 `json:"duration_ms"`
}

type errorResponse struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	RunID   string   `json:"run_id,omitempty"`
	Missing []string `json:"missing_fields,omitempty"`

	// Set when a model provider failed the run.
	Provider       string `json:"provider,omitempty"`
	ProviderStatus int    `json:"provider_status,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":    "healthy",
		"timestamp": s.now().UTC().Format(time.RFC3339),
	}
	if s.deps.Version != "" {
		body["version"] = s.deps.Version
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handlePlans(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"plans": s.deps.Catalog.Summaries()})
}

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Tools == nil {
		writeJSON(w, http.StatusOK, map[string]any{"tools": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.deps.Tools.List()})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "run history is not enabled")
		return
	}
	q := r.URL.Query()
	limit := defaultRunsLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.deps.Runs.ListRuns(r.Context(), store.RunFilter{
		Pipeline: q.Get("pipeline"),
		Status:   q.Get("status"),
		Limit:    limit,
	})
	if err != nil {
		logger.FromContext(r.Context(), s.logger).Error("list runs failed", slog.String("error", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "run history is not enabled")
		return
	}
	run, err := s.deps.Runs.GetRun(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, store.ErrRunNotFound):
		writeJSONError(w, http.StatusNotFound, "run not found")
	case err != nil:
		logger.FromContext(r.Context(), s.logger).Error("get run failed", slog.String("error", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "failed to load run")
	default:
		writeJSON(w, http.StatusOK, run)
	}
}

// handleRunPlan executes the plan mounted at /api/{route} with the JSON
// body as its bindings.
func (s *Server) handleRunPlan(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context(), s.logger)

	plan, ok := s.deps.Catalog.ByRoute(r.PathValue("route"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "unknown plan: "+r.PathValue("route"))
		return
	}

	bindings, err := decodeBindings(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := plan.Prepare(s.deps.Workspace, bindings); err != nil {
		log.Warn("prefill failed", slog.String("plan", plan.ID), slog.String("error", err.Error()))
	}

	log.Info("running plan", slog.String("plan", plan.ID))
	res, err := plan.Run(r.Context(), s.deps.NewEngine(), bindings)
	if err != nil {
		resp := errorResponse{Error: err.Error()}
		if res != nil {
			resp.RunID = res.RunID
		}
		var missing *plans.MissingFieldsError
		if errors.As(err, &missing) {
			resp.Missing = missing.Fields
		}
		if adapterErr, ok := adapter.AsAdapterError(err); ok {
			resp.Provider = adapterErr.Provider
			resp.ProviderStatus = adapterErr.Status
		}
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			log.Error("plan failed", slog.String("plan", plan.ID), slog.String("error", err.Error()))
		}
		writeJSON(w, status, resp)
		return
	}

	files, err := s.deps.Workspace.ReadFolder(plan.Family)
	if err != nil {
		log.Warn("read output folder", slog.String("folder", plan.Family), slog.String("error", err.Error()))
		files = map[string]any{}
	}

	writeJSON(w, http.StatusOK, runResponse{
		Success:    true,
		RunID:      res.RunID,
		Plan:       plan.ID,
		Status:     res.Status,
		Result:     res.Output,
		Steps:      res.Steps,
		Files:      files,
		DurationMS: res.Duration().Milliseconds(),
	})
}

func decodeBindings(body io.Reader) (map[string]any, error) {
	bindings := map[string]any{}
	dec := json.NewDecoder(body)
	if err := dec.Decode(&bindings); err != nil {
		if errors.Is(err, io.EOF) {
			return bindings, nil
		}
		return nil, errors.New("invalid JSON body: " + err.Error())
	}
	if bindings == nil {
		bindings = map[string]any{}
	}
	return bindings, nil
}

// statusFor maps a run error to an HTTP status: caller mistakes are 4xx,
// upstream provider and tool failures 502.
func statusFor(err error) int {
	var (
		missingFields *plans.MissingFieldsError
		missingInput  *pipeline.MissingRequiredInputError
		invalid       *schema.ValidationError
		toolErr       *pipeline.ToolInvocationError
		adapterErr    *adapter.AdapterError
		promptErr     *pipeline.PromptStepError
	)
	switch {
	case errors.As(err, &missingFields), errors.As(err, &missingInput):
		return http.StatusBadRequest
	case errors.As(err, &invalid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pipeline.ErrBudgetExceeded):
		return http.StatusTooManyRequests
	case errors.As(err, &adapterErr), errors.As(err, &toolErr), errors.As(err, &promptErr),
		errors.Is(err, router.ErrNoAdapter):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func methodNotAllowed(allow string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", allow)
		writeJSONError(w, http.StatusMethodNotAllowed, "method "+r.Method+" not allowed")
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
