package jobs_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/litpush/internal/jobs"
	"github.com/vrsandeep/litpush/internal/models"
)

func TestGocronRegistryFiresDueJob(t *testing.T) {
	r := jobs.NewGocronRegistry(nil)
	r.Start()
	defer r.Stop()

	fired := make(chan models.ScheduledJob, 1)
	job := models.ScheduledJob{Key: "sub:1:100", SubscriptionID: 1, RunAt: time.Now().Add(-time.Second)}
	require.NoError(t, r.Schedule(job, func(j models.ScheduledJob) { fired <- j }))

	select {
	case got := <-fired:
		assert.Equal(t, job.Key, got.Key)
	case <-time.After(3 * time.Second):
		t.Fatal("due job did not fire")
	}
	assert.Eventually(t, func() bool { return len(r.Pending()) == 0 }, time.Second, 10*time.Millisecond)
}

func TestGocronRegistryCancelAndIdempotence(t *testing.T) {
	r := jobs.NewGocronRegistry(nil)
	r.Start()
	defer r.Stop()

	fire := func(models.ScheduledJob) { t.Error("cancelled job fired") }
	future := time.Now().Add(time.Hour)
	job := models.ScheduledJob{Key: "sub:2:1", SubscriptionID: 2, RunAt: future}

	require.NoError(t, r.Schedule(job, fire))
	require.NoError(t, r.Schedule(job, fire))
	require.NoError(t, r.Schedule(models.ScheduledJob{Key: "sub:3:1", SubscriptionID: 3, RunAt: future.Add(time.Minute)}, func(models.ScheduledJob) {}))
	pending := r.Pending()
	require.Len(t, pending, 2, "same key armed once")
	assert.Equal(t, "sub:2:1", pending[0].Key)

	require.NoError(t, r.CancelSubscription(2))
	require.NoError(t, r.CancelSubscription(2), "cancel is idempotent")
	pending = r.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, int64(3), pending[0].SubscriptionID)
}
