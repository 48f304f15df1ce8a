package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"hauntedmap/internal/core"
	"hauntedmap/internal/session"
	"hauntedmap/internal/types"
)

// SessionManager is the session lifecycle contract the handler depends on.
type SessionManager interface {
	StartAutoRefresh(ctx context.Context, coords types.Coordinates, cb session.Callbacks) (session.Info, error)
	StopAutoRefresh(key string) bool
	ForceRefresh(ctx context.Context, key string) (session.Info, error)
	Get(key string) (session.Info, bool)
	TimeUntilNextRefresh(key string) (time.Duration, bool)
}

// createSessionRequest is the body for POST /v1/sessions.
type createSessionRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// sessionResponse is the session payload returned by all session endpoints.
// The countdown is reported in milliseconds so clients need no duration
// parsing.
type sessionResponse struct {
	session.Info
	NextRefreshMs int64 `json:"next_refresh_ms"`
}

// SessionsHandler maps HTTP requests to session manager operations.
type SessionsHandler struct {
	manager SessionManager
	logger  *slog.Logger
}

// NewSessionsHandler creates a SessionsHandler with the provided dependencies.
func NewSessionsHandler(manager SessionManager, logger *slog.Logger) *SessionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionsHandler{manager: manager, logger: logger}
}

// RegisterRoutes mounts the session endpoints onto the mux.
func (h *SessionsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.HandleCreate)
	r.Get("/{key}", h.HandleGet)
	r.Delete("/{key}", h.HandleDelete)
	r.Post("/{key}/refresh", h.HandleRefresh)
}

// HandleCreate handles POST /v1/sessions. It validates the coordinate,
// starts an auto-refreshing session, and returns the initial rating.
func (h *SessionsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if req.Latitude == nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"latitude is required", nil))
		return
	}
	if req.Longitude == nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"longitude is required", nil))
		return
	}
	if *req.Latitude < -90 || *req.Latitude > 90 {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidLat,
			"latitude must be in [-90, 90]", nil))
		return
	}
	if *req.Longitude < -180 || *req.Longitude > 180 {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidLon,
			"longitude must be in [-180, 180]", nil))
		return
	}

	coords := types.Coordinates{Latitude: *req.Latitude, Longitude: *req.Longitude}
	info, err := h.manager.StartAutoRefresh(r.Context(), coords, session.Callbacks{})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: h.toResponse(info)})
}

// HandleGet handles GET /v1/sessions/{key}: the session's last delivered
// rating and refresh timing.
func (h *SessionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	info, ok := h.manager.Get(key)
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundSession,
			"no session with key "+key, nil))
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: h.toResponse(info)})
}

// HandleDelete handles DELETE /v1/sessions/{key}. Deleting an unknown key
// returns 404; a repeated delete therefore also returns 404.
func (h *SessionsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	if !h.manager.StopAutoRefresh(key) {
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundSession,
			"no session with key "+key, nil))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleRefresh handles POST /v1/sessions/{key}/refresh. The forced
// recomputation leaves the recurring refresh schedule untouched.
func (h *SessionsHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	info, err := h.manager.ForceRefresh(r.Context(), key)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: h.toResponse(info)})
}

// toResponse attaches the live countdown to the session snapshot.
func (h *SessionsHandler) toResponse(info session.Info) sessionResponse {
	resp := sessionResponse{Info: info}
	if d, ok := h.manager.TimeUntilNextRefresh(info.Key); ok {
		resp.NextRefreshMs = d.Milliseconds()
	}
	return resp
}
