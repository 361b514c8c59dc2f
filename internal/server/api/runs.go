package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/gazetrack/internal/store"
)

// RunsHandler serves stored Target Practice runs.
type RunsHandler struct {
	store *store.Store
}

// NewRunsHandler creates a new RunsHandler with the given store.
func NewRunsHandler(s *store.Store) *RunsHandler {
	return &RunsHandler{store: s}
}

// ServeHTTP routes /api/runs and /api/runs/{id}.
func (h *RunsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/api/runs"), "/")

	if id == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type runResponse struct {
	ID             string  `json:"id"`
	StartedAt      string  `json:"started_at"`
	EndedAt        string  `json:"ended_at"`
	DurationMs     int64   `json:"duration_ms"`
	TargetCount    int     `json:"target_count"`
	TargetRadius   float64 `json:"target_radius"`
	MeanAccuracy   float64 `json:"mean_accuracy"`
	MeanReactionMs int64   `json:"mean_reaction_ms"`
}

type listRunsResponse struct {
	Runs []runResponse `json:"runs"`
}

type runDetailResponse struct {
	runResponse
	Hits []store.Hit `json:"hits"`
}

func toRunResponse(run *store.Run) runResponse {
	return runResponse{
		ID:             run.ID,
		StartedAt:      run.StartedAt.Format(time.RFC3339),
		EndedAt:        run.EndedAt.Format(time.RFC3339),
		DurationMs:     run.EndedAt.Sub(run.StartedAt).Milliseconds(),
		TargetCount:    run.TargetCount,
		TargetRadius:   run.TargetRadius,
		MeanAccuracy:   run.MeanAccuracy,
		MeanReactionMs: run.MeanReactionMs,
	}
}

// list handles GET /api/runs?limit=N.
func (h *RunsHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := h.store.Runs().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	response := listRunsResponse{Runs: make([]runResponse, 0, len(runs))}
	for _, run := range runs {
		response.Runs = append(response.Runs, toRunResponse(run))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/runs/{id} and includes the hits.
func (h *RunsHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	run, err := h.store.Runs().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}

	hits, err := h.store.Runs().Hits(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get hits")
		return
	}
	if hits == nil {
		hits = []store.Hit{}
	}

	writeJSON(w, http.StatusOK, runDetailResponse{runResponse: toRunResponse(run), Hits: hits})
}

// delete handles DELETE /api/runs/{id}.
func (h *RunsHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Runs().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete run")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
