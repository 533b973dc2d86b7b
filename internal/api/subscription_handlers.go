package api

import (
	"errors"
	"net/http"

	"github.com/vrsandeep/litpush/internal/jobs"
	"github.com/vrsandeep/litpush/internal/store"
)

func (s *Server) handleScheduleSubscription(w http.ResponseWriter, r *http.Request) {
	subID, ok := idParam(r, "subID")
	if !ok {
		RespondWithError(w, http.StatusBadRequest, "Invalid subscription id")
		return
	}
	sub, err := s.app.Store().GetSubscriptionByID(subID)
	if errors.Is(err, store.ErrNotFound) {
		RespondWithError(w, http.StatusNotFound, "Subscription not found")
		return
	}
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to load subscription")
		return
	}

	job, err := s.app.Scheduler().ScheduleNext(r.Context(), sub)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to schedule subscription")
		return
	}
	if job == nil {
		RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Subscription is inactive; schedule cancelled."})
		return
	}
	RespondWithJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	subID, ok := idParam(r, "subID")
	if !ok {
		RespondWithError(w, http.StatusBadRequest, "Invalid subscription id")
		return
	}
	if err := s.app.Scheduler().Cancel(r.Context(), subID); err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to cancel subscription schedule")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRunSubscription(w http.ResponseWriter, r *http.Request) {
	subID, ok := idParam(r, "subID")
	if !ok {
		RespondWithError(w, http.StatusBadRequest, "Invalid subscription id")
		return
	}
	job, err := s.app.Scheduler().RunNow(r.Context(), subID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		RespondWithError(w, http.StatusNotFound, "Subscription not found")
	case errors.Is(err, jobs.ErrAlreadyRunning):
		RespondWithError(w, http.StatusConflict, err.Error()) // 409 Conflict if a run is already in progress
	case errors.Is(err, jobs.ErrQueueFull), errors.Is(err, jobs.ErrPoolStopped):
		RespondWithError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		RespondWithError(w, http.StatusConflict, err.Error())
	default:
		RespondWithJSON(w, http.StatusAccepted, map[string]string{
			"message": "Run has been queued.",
			"job_key": job.Key,
		})
	}
}
