package api

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/vrsandeep/litpush/internal/jobs"
	"github.com/vrsandeep/litpush/internal/models"
)

type jobsResponse struct {
	Pending []models.ScheduledJob `json:"pending"`
	Status  []jobs.JobStatus      `json:"status"`
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	pending := s.app.Scheduler().Pending()
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].RunAt.Equal(pending[j].RunAt) {
			return pending[i].RunAt.Before(pending[j].RunAt)
		}
		return pending[i].SubscriptionID < pending[j].SubscriptionID
	})
	RespondWithJSON(w, http.StatusOK, jobsResponse{Pending: pending, Status: s.app.Scheduler().Status()})
}

func (s *Server) handleListJobRuns(w http.ResponseWriter, r *http.Request) {
	var subID int64
	if v := r.URL.Query().Get("subscription_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			RespondWithError(w, http.StatusBadRequest, "Invalid subscription_id")
			return
		}
		subID = id
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			RespondWithError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = min(n, 500)
	}

	runs, err := s.app.Store().ListJobRuns(subID, limit)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve job runs")
		return
	}
	if runs == nil {
		runs = []models.JobOutcome{}
	}
	RespondWithJSON(w, http.StatusOK, runs)
}
