package api

import (
	"net/http"

	"github.com/vrsandeep/litpush/internal/core"
)

func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]string{"version": core.Version})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DB().PingContext(r.Context()); err != nil {
		RespondWithError(w, http.StatusServiceUnavailable, "Database connection failed")
		return
	}
	status := map[string]string{"status": "ok", "cache": "disabled"}
	if rdb := s.app.Redis(); rdb != nil {
		status["cache"] = "ok"
		if err := rdb.Ping(r.Context()).Err(); err != nil {
			status["cache"] = "unavailable"
		}
	}
	RespondWithJSON(w, http.StatusOK, status)
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.app.Channels().Status(r.Context())
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve delivery channels")
		return
	}
	RespondWithJSON(w, http.StatusOK, statuses)
}
