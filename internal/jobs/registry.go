// Package jobs holds deferred job registration and the worker pool that
// executes subscription runs.
package jobs

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/vrsandeep/litpush/internal/logging"
	"github.com/vrsandeep/litpush/internal/models"
)

// DeferredRegistry arms jobs to fire at their RunAt instant.
type DeferredRegistry interface {
	// Schedule arms job. Scheduling a key that is already armed is a no-op.
	Schedule(job models.ScheduledJob, fire func(models.ScheduledJob)) error
	// CancelSubscription disarms every job of the subscription.
	CancelSubscription(subscriptionID int64) error
	// Pending lists armed jobs ordered by run time.
	Pending() []models.ScheduledJob
}

// GocronRegistry is a DeferredRegistry on a gocron scheduler. Each job is a
// one-shot gocron job tagged with its key and its subscription.
type GocronRegistry struct {
	s      *gocron.Scheduler
	now    func() time.Time
	logger *slog.Logger

	mu   sync.Mutex
	jobs map[string]models.ScheduledJob
}

func NewGocronRegistry(logger *slog.Logger) *GocronRegistry {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &GocronRegistry{
		s:      s,
		now:    time.Now,
		logger: logging.OrDiscard(logger).With("component", "registry"),
		jobs:   make(map[string]models.ScheduledJob),
	}
}

// Start begins firing due jobs in the background.
func (r *GocronRegistry) Start() {
	r.logger.Info("starting deferred job registry")
	r.s.StartAsync()
}

// Stop halts the scheduler. Armed jobs are dropped; durable rows re-arm them on
// the next start.
func (r *GocronRegistry) Stop() {
	r.s.Stop()
}

func subscriptionTag(id int64) string {
	return fmt.Sprintf("sub:%d", id)
}

func (r *GocronRegistry) Schedule(job models.ScheduledJob, fire func(models.ScheduledJob)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.Key]; ok {
		return nil
	}

	run := func() {
		r.mu.Lock()
		_, armed := r.jobs[job.Key]
		delete(r.jobs, job.Key)
		r.mu.Unlock()
		if !armed {
			// Cancelled while gocron was already dispatching it.
			return
		}
		fire(job)
	}

	sched := r.s.Every(1).Day()
	if job.RunAt.After(r.now()) {
		sched = sched.StartAt(job.RunAt)
	} else {
		sched = sched.StartImmediately()
	}
	if _, err := sched.LimitRunsTo(1).Tag(job.Key, subscriptionTag(job.SubscriptionID)).Do(run); err != nil {
		return fmt.Errorf("arm job %s: %w", job.Key, err)
	}
	r.jobs[job.Key] = job
	r.logger.Debug("job armed", "job_key", job.Key, "subscription_id", job.SubscriptionID, "run_at", job.RunAt)
	return nil
}

func (r *GocronRegistry) CancelSubscription(subscriptionID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, job := range r.jobs {
		if job.SubscriptionID == subscriptionID {
			delete(r.jobs, key)
		}
	}
	err := r.s.RemoveByTag(subscriptionTag(subscriptionID))
	if err != nil && !errors.Is(err, gocron.ErrJobNotFoundWithTag) {
		return fmt.Errorf("cancel jobs of subscription %d: %w", subscriptionID, err)
	}
	return nil
}

func (r *GocronRegistry) Pending() []models.ScheduledJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ScheduledJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunAt.Before(out[j].RunAt) })
	return out
}
