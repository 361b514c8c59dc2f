package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/gazetrack/internal/calibration"
	"github.com/ayusman/gazetrack/internal/session"
)

// Operator applies operator input to a running session.
type Operator interface {
	Snapshot() (session.FrameOutput, bool)
	SwitchMode(ctx context.Context, mode session.Mode) (session.Status, error)
	Confirm(ctx context.Context) (session.Status, error)
	Finalize(ctx context.Context) (session.Status, error)
}

// SessionHandler exposes the live session under /api/session.
type SessionHandler struct {
	op Operator
}

// NewSessionHandler creates a new SessionHandler for op.
func NewSessionHandler(op Operator) *SessionHandler {
	return &SessionHandler{op: op}
}

type modeRequest struct {
	Mode string `json:"mode"`
}

// ServeHTTP routes GET /api/session and the POST operator actions.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	action := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/api/session"), "/")

	if action == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		out, ok := h.op.Snapshot()
		if !ok {
			writeError(w, http.StatusServiceUnavailable, "No frame processed yet")
			return
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var (
		status session.Status
		err    error
	)
	switch action {
	case "mode":
		var req modeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		mode, perr := session.ParseMode(req.Mode)
		if perr != nil {
			writeError(w, http.StatusBadRequest, perr.Error())
			return
		}
		status, err = h.op.SwitchMode(r.Context(), mode)
	case "confirm":
		status, err = h.op.Confirm(r.Context())
	case "finalize":
		status, err = h.op.Finalize(r.Context())
	default:
		http.NotFound(w, r)
		return
	}

	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// statusFor maps session errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotCalibrated),
		errors.Is(err, session.ErrNotCalibrating),
		errors.Is(err, session.ErrNoSample),
		errors.Is(err, calibration.ErrNotSettled),
		errors.Is(err, calibration.ErrAllAnchorsRecorded):
		return http.StatusConflict
	case errors.Is(err, calibration.ErrDegenerateSample),
		errors.Is(err, calibration.ErrInsufficientPoints),
		errors.Is(err, calibration.ErrInsufficientVariance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
