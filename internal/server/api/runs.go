package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/skunkworks/skunkscrape/internal/orchestrator"
	"github.com/skunkworks/skunkscrape/internal/plugin"
	"github.com/skunkworks/skunkscrape/internal/proxy"
	"github.com/skunkworks/skunkscrape/internal/store"
)

// defaultListLimit caps GET /api/runs when no limit is given.
const defaultListLimit = 50

// Runner launches plugins for a target. *orchestrator.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, target orchestrator.Target, params plugin.Params) ([]orchestrator.Result, error)
}

// RunsHandler starts runs and serves run history.
type RunsHandler struct {
	runner Runner
	store  *store.Store
	logger zerolog.Logger
}

// NewRunsHandler creates a RunsHandler. A nil store disables the history endpoints.
func NewRunsHandler(runner Runner, s *store.Store, logger zerolog.Logger) *RunsHandler {
	return &RunsHandler{runner: runner, store: s, logger: logger}
}

// ServeHTTP routes /api/runs and /api/runs/{id}.
func (h *RunsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/runs")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.get(w, r, path)
}

type createRunRequest struct {
	Plugin      string `json:"plugin"`
	Category    string `json:"category"`
	All         bool   `json:"all"`
	URL         string `json:"url"`
	Depth       int    `json:"depth"`
	ToWebhook   bool   `json:"to_webhook"`
	TargetLeads int    `json:"target_leads"`
	Proxy       string `json:"proxy"`
	ProxyLabel  string `json:"proxy_label"`
}

// target returns the single target the request names.
func (req createRunRequest) target() (orchestrator.Target, error) {
	named := 0
	var t orchestrator.Target
	if req.Plugin != "" {
		named++
		t = orchestrator.SinglePlugin(req.Plugin)
	}
	if req.Category != "" {
		named++
		t = orchestrator.Category(req.Category)
	}
	if req.All {
		named++
		t = orchestrator.All()
	}
	if named != 1 {
		return t, errors.New("exactly one of plugin, category or all is required")
	}
	return t, nil
}

func (req createRunRequest) params() (plugin.Params, error) {
	if req.Proxy != "" && req.ProxyLabel != "" {
		return plugin.Params{}, errors.New("proxy and proxy_label are mutually exclusive")
	}

	sel := proxy.ParseSelector(req.Proxy)
	if req.ProxyLabel != "" {
		sel = proxy.ByLabel(req.ProxyLabel)
	}

	p := plugin.Params{
		URL:         req.URL,
		Depth:       req.Depth,
		ToWebhook:   req.ToWebhook,
		TargetLeads: req.TargetLeads,
		Proxy:       sel,
	}
	return p, p.Validate()
}

type createRunResponse struct {
	BatchID   string                `json:"batch_id"`
	Succeeded int                   `json:"succeeded"`
	Failed    int                   `json:"failed"`
	Results   []orchestrator.Result `json:"results"`
}

type runResponse struct {
	ID         string   `json:"id"`
	BatchID    string   `json:"batch_id"`
	Plugin     string   `json:"plugin"`
	Argv       []string `json:"argv"`
	Proxy      string   `json:"proxy,omitempty"`
	Success    bool     `json:"success"`
	ExitCode   int      `json:"exit_code"`
	Reason     string   `json:"reason,omitempty"`
	StartedAt  string   `json:"started_at"`
	FinishedAt string   `json:"finished_at"`
}

type listRunsResponse struct {
	Runs []runResponse `json:"runs"`
}

// toResponse converts a store.Run to a runResponse.
func toResponse(run *store.Run) runResponse {
	return runResponse{
		ID:         run.ID,
		BatchID:    run.BatchID,
		Plugin:     run.Plugin,
		Argv:       run.Argv,
		Proxy:      run.Proxy,
		Success:    run.Success,
		ExitCode:   run.ExitCode,
		Reason:     run.Reason,
		StartedAt:  run.StartedAt.Format(time.RFC3339),
		FinishedAt: run.FinishedAt.Format(time.RFC3339),
	}
}

// create handles POST /api/runs. It blocks until every plugin of the batch
// has exited; a disconnecting client interrupts the running child.
func (h *RunsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	target, err := req.target()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	params, err := req.params()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := h.runner.Run(r.Context(), target, params)
	if err != nil {
		if plugin.IsUnknownTarget(err) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error().Err(err).Str("target", target.String()).Msg("Run request failed.")
		writeError(w, http.StatusInternalServerError, "Failed to run plugins")
		return
	}

	response := createRunResponse{Results: results}
	for _, res := range results {
		response.BatchID = res.BatchID
		if res.Outcome.Success {
			response.Succeeded++
		} else {
			response.Failed++
		}
	}
	writeJSON(w, http.StatusOK, response)
}

// list handles GET /api/runs. Optional query parameters: batch, plugin, limit.
func (h *RunsHandler) list(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "Run history is disabled")
		return
	}

	q := r.URL.Query()
	limit := defaultListLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	var (
		runs []*store.Run
		err  error
	)
	switch {
	case q.Get("batch") != "":
		runs, err = h.store.Runs().ListByBatch(q.Get("batch"))
	case q.Get("plugin") != "":
		runs, err = h.store.Runs().ListByPlugin(q.Get("plugin"), limit)
	default:
		runs, err = h.store.Runs().List(limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	response := listRunsResponse{
		Runs: make([]runResponse, 0, len(runs)),
	}
	for _, run := range runs {
		response.Runs = append(response.Runs, toResponse(run))
	}
	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/runs/{id}.
func (h *RunsHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "Run history is disabled")
		return
	}

	run, err := h.store.Runs().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}

	writeJSON(w, http.StatusOK, toResponse(run))
}
