package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vrsandeep/litpush/internal/cache"
	"github.com/vrsandeep/litpush/internal/models"
)

// invalidateRequest removes every entry of Query, or only the one exact
// entry when any parameter is given.
type invalidateRequest struct {
	Query        string                 `json:"query"`
	LookbackDays *int                   `json:"lookback_days,omitempty"`
	MaxResults   *int                   `json:"max_results,omitempty"`
	Filters      *models.QualityFilters `json:"filters,omitempty"`
}

func (req invalidateRequest) params() *cache.Params {
	if req.LookbackDays == nil && req.MaxResults == nil && req.Filters == nil {
		return nil
	}
	var p cache.Params
	if req.LookbackDays != nil {
		p.LookbackDays = *req.LookbackDays
	}
	if req.MaxResults != nil {
		p.MaxResults = *req.MaxResults
	}
	if req.Filters != nil {
		p.Filters = *req.Filters
	}
	return &p
}

func (s *Server) handleInvalidateCache(w http.ResponseWriter, r *http.Request) {
	c := s.app.Cache()
	if c == nil {
		RespondWithError(w, http.StatusServiceUnavailable, "Result cache is not configured")
		return
	}
	var payload invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if strings.TrimSpace(payload.Query) == "" {
		RespondWithError(w, http.StatusBadRequest, "query is required")
		return
	}

	removed, err := c.Invalidate(r.Context(), payload.Query, payload.params())
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to invalidate cache")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	c := s.app.Cache()
	if c == nil {
		RespondWithError(w, http.StatusServiceUnavailable, "Result cache is not configured")
		return
	}
	stats, err := c.Stats(r.Context())
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to read cache stats")
		return
	}
	RespondWithJSON(w, http.StatusOK, stats)
}
