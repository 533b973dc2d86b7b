package store_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/litpush/internal/models"
	"github.com/vrsandeep/litpush/internal/store"
)

func TestScheduledJobsOnePerSubscription(t *testing.T) {
	s := newStore(t)
	runAt := time.Date(2026, 5, 5, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveScheduledJob(models.ScheduledJob{Key: "sub:1:1", SubscriptionID: 1, RunAt: runAt, Priority: models.PriorityDefault, CreatedAt: runAt}))
	require.NoError(t, s.SaveScheduledJob(models.ScheduledJob{Key: "sub:1:2", SubscriptionID: 1, RunAt: runAt.Add(time.Hour), Priority: models.PriorityDefault, CreatedAt: runAt}))

	jobs, err := s.ListScheduledJobs()
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "sub:1:2", jobs[0].Key)
	assert.True(t, runAt.Add(time.Hour).Equal(jobs[0].RunAt))

	require.NoError(t, s.DeleteScheduledJob(1))
	_, err = s.GetScheduledJob(1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJobRuns(t *testing.T) {
	s := newStore(t)
	start := time.Date(2026, 5, 5, 9, 0, 0, 0, time.UTC)
	next := start.Add(24 * time.Hour)

	for i, status := range []models.JobStatus{models.JobSuccess, models.JobFailed} {
		require.NoError(t, s.InsertJobRun(models.JobOutcome{
			RunID:          uuid.NewString(),
			SubscriptionID: 7,
			Status:         status,
			NewArticles:    3,
			StartedAt:      start.Add(time.Duration(i) * time.Minute),
			FinishedAt:     start.Add(time.Duration(i) * time.Minute),
			NextRunAt:      &next,
		}))
	}
	require.NoError(t, s.InsertJobRun(models.JobOutcome{RunID: uuid.NewString(), SubscriptionID: 8, Status: models.JobSkipped, StartedAt: start.Add(-time.Minute), FinishedAt: start}))

	runs, err := s.ListJobRuns(7, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, models.JobFailed, runs[0].Status)
	require.NotNil(t, runs[0].NextRunAt)

	all, err := s.ListJobRuns(0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Nil(t, all[2].NextRunAt)
}
