package core

import (
	"net/http"
)

// healthResponse is the JSON response body for the health check endpoint.
type healthResponse struct {
	Status         string `json:"status"`
	Service        string `json:"service"`
	Environment    string `json:"environment"`
	Version        string `json:"version,omitempty"`
	ActiveSessions *int   `json:"active_sessions,omitempty"`
}

// HandleHealth reports process liveness plus build metadata and the active
// session count when a counter is injected. The service has no hard
// dependencies to probe: the upstream adapters degrade to cached or default
// results, so an unreachable provider does not make the process unhealthy.
//
// This endpoint is public and mounted at GET /health.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:      "healthy",
		Service:     s.Config.Service,
		Environment: s.Config.Environment,
		Version:     s.Config.Build.Version,
	}
	if s.Sessions != nil {
		n := s.Sessions.Count()
		resp.ActiveSessions = &n
	}
	JSON(w, r, http.StatusOK, resp)
}
