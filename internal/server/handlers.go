package server

import (
	"encoding/json"
	"net/http"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"version": Version,
		"service": "allocator",
	}

	if s.container != nil && s.container.HistoryDB != nil {
		if err := s.container.HistoryDB.QuickCheck(r.Context()); err != nil {
			s.log.Warn().Err(err).Msg("History database health check failed")
			response["status"] = "degraded"
			s.writeJSON(w, http.StatusServiceUnavailable, response)
			return
		}
	}

	s.writeJSON(w, http.StatusOK, response)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
