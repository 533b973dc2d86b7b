// Package scheduler owns every timing decision: when each subscription runs
// next, arming exactly one job for it and re-arming after every run.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vrsandeep/litpush/internal/ingest"
	"github.com/vrsandeep/litpush/internal/jobs"
	"github.com/vrsandeep/litpush/internal/logging"
	"github.com/vrsandeep/litpush/internal/models"
	"github.com/vrsandeep/litpush/internal/store"
)

// Runner executes one subscription run.
type Runner interface {
	RunForSubscription(ctx context.Context, sub *models.Subscription, user *models.User) (ingest.Result, error)
}

// Broadcaster receives every job outcome.
type Broadcaster interface {
	BroadcastJSON(v interface{})
}

// Store is the persistence the scheduler needs.
type Store interface {
	GetSubscriptionByID(id int64) (*models.Subscription, error)
	ListSubscriptions(f store.SubscriptionFilter) ([]*models.Subscription, error)
	GetUserByID(id int64) (*models.User, error)
	UpdateSubscriptionLastSearch(id int64, at time.Time) error
	SaveScheduledJob(job models.ScheduledJob) error
	GetScheduledJob(subscriptionID int64) (*models.ScheduledJob, error)
	ListScheduledJobs() ([]models.ScheduledJob, error)
	DeleteScheduledJob(subscriptionID int64) error
	InsertJobRun(o models.JobOutcome) error
}

// retryDelay is how long a fired job waits when the worker pool is full.
const retryDelay = time.Minute

// Options configures a Scheduler.
type Options struct {
	Location    *time.Location
	DefaultTime string
	Now         func() time.Time
}

// Scheduler is the recurring scheduler.
type Scheduler struct {
	store    Store
	registry jobs.DeferredRegistry
	pool     *jobs.Pool
	manager  *jobs.Manager
	runner   Runner
	hub      Broadcaster
	loc      *time.Location
	defTime  string
	now      func() time.Time
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func New(st Store, registry jobs.DeferredRegistry, pool *jobs.Pool, manager *jobs.Manager, runner Runner, hub Broadcaster, opts Options, logger *slog.Logger) *Scheduler {
	s := &Scheduler{
		store:    st,
		registry: registry,
		pool:     pool,
		manager:  manager,
		runner:   runner,
		hub:      hub,
		loc:      opts.Location,
		defTime:  opts.DefaultTime,
		now:      opts.Now,
		logger:   logging.OrDiscard(logger).With("component", "scheduler"),
		locks:    make(map[int64]*sync.Mutex),
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.defTime == "" {
		s.defTime = DefaultTimeOfDay
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.manager == nil {
		s.manager = jobs.NewManager()
	}
	return s
}

func (s *Scheduler) subscriptionLock(id int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// NextRun computes the next run of sub after now with the configured
// location and default time.
func (s *Scheduler) NextRun(sub *models.Subscription, now time.Time) time.Time {
	return NextRun(sub, now, s.loc, s.defTime)
}

// ScheduleNext arms the next run of sub, replacing whatever job was live for
// it. An inactive subscription is cancelled and nil is returned.
func (s *Scheduler) ScheduleNext(ctx context.Context, sub *models.Subscription) (*models.ScheduledJob, error) {
	return s.scheduleAfter(ctx, sub, s.now())
}

func (s *Scheduler) scheduleAfter(ctx context.Context, sub *models.Subscription, after time.Time) (*models.ScheduledJob, error) {
	lock := s.subscriptionLock(sub.ID)
	lock.Lock()
	defer lock.Unlock()

	if !sub.Active {
		return nil, s.cancelLocked(sub.ID)
	}

	runAt := s.NextRun(sub, after)
	key := JobKey(sub.ID, runAt)

	existing, err := s.store.GetScheduledJob(sub.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.Key == key {
		// Same computation as before; make sure it is armed and stop there.
		if err := s.registry.Schedule(*existing, s.fire); err != nil {
			return nil, err
		}
		return existing, nil
	}

	if err := s.cancelLocked(sub.ID); err != nil {
		return nil, err
	}
	job := models.ScheduledJob{
		Key:            key,
		SubscriptionID: sub.ID,
		RunAt:          runAt,
		Priority:       models.PriorityDefault,
		CreatedAt:      s.now(),
	}
	if err := s.store.SaveScheduledJob(job); err != nil {
		return nil, err
	}
	if err := s.registry.Schedule(job, s.fire); err != nil {
		return nil, err
	}
	s.logger.Info("next run scheduled", "subscription_id", sub.ID, "job_key", key, "run_at", runAt)
	return &job, nil
}

// Cancel removes the live job of a subscription from the registry and store.
func (s *Scheduler) Cancel(ctx context.Context, subscriptionID int64) error {
	lock := s.subscriptionLock(subscriptionID)
	lock.Lock()
	defer lock.Unlock()
	return s.cancelLocked(subscriptionID)
}

func (s *Scheduler) cancelLocked(subscriptionID int64) error {
	regErr := s.registry.CancelSubscription(subscriptionID)
	if regErr != nil {
		s.logger.Warn("registry cancel failed", "subscription_id", subscriptionID, "error", regErr)
	}
	if err := s.store.DeleteScheduledJob(subscriptionID); err != nil {
		return fmt.Errorf("cancel subscription %d: %w", subscriptionID, err)
	}
	return regErr
}

// fire is called by the registry when a job is due. It hands the run to the
// worker pool.
func (s *Scheduler) fire(job models.ScheduledJob) {
	if err := s.manager.Queued(job.SubscriptionID); err != nil {
		s.logger.Warn("run already in progress, skipping fire", "subscription_id", job.SubscriptionID, "job_key", job.Key)
		return
	}
	err := s.pool.Submit(jobs.Task{
		SubscriptionID: job.SubscriptionID,
		Key:            job.Key,
		Priority:       job.Priority,
		Run: func(ctx context.Context) {
			s.OnJobFired(ctx, job)
		},
	})
	if err == nil {
		return
	}
	s.manager.Release(job.SubscriptionID)
	if errors.Is(err, jobs.ErrPoolStopped) {
		return
	}
	// Keep the job alive rather than losing the schedule.
	s.logger.Warn("worker pool rejected job, retrying later", "job_key", job.Key, "error", err)
	s.retryLater(job)
}

// retryLater re-arms job retryDelay from now under the same key, replacing
// whatever was live for the subscription.
func (s *Scheduler) retryLater(job models.ScheduledJob) *models.ScheduledJob {
	lock := s.subscriptionLock(job.SubscriptionID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.cancelLocked(job.SubscriptionID); err != nil {
		s.logger.Warn("failed to clear job before retry", "job_key", job.Key, "error", err)
	}
	job.RunAt = s.now().Add(retryDelay)
	if err := s.store.SaveScheduledJob(job); err != nil {
		s.logger.Error("failed to persist retried job", "job_key", job.Key, "error", err)
	}
	if err := s.registry.Schedule(job, s.fire); err != nil {
		s.logger.Error("failed to re-arm retried job", "job_key", job.Key, "error", err)
		return nil
	}
	return &job
}

// RunNow queues an immediate run of the subscription outside its schedule.
// The run re-arms the regular schedule when it finishes.
func (s *Scheduler) RunNow(ctx context.Context, subscriptionID int64) (models.ScheduledJob, error) {
	sub, err := s.store.GetSubscriptionByID(subscriptionID)
	if err != nil {
		return models.ScheduledJob{}, err
	}
	if !sub.Active {
		return models.ScheduledJob{}, fmt.Errorf("subscription %d is inactive", subscriptionID)
	}
	now := s.now()
	job := models.ScheduledJob{
		Key:            fmt.Sprintf("run:%d:%d", subscriptionID, now.UnixNano()),
		SubscriptionID: subscriptionID,
		RunAt:          now,
		Priority:       models.PriorityImmediate,
		CreatedAt:      now,
	}
	if err := s.manager.Queued(subscriptionID); err != nil {
		return job, err
	}
	err = s.pool.Submit(jobs.Task{
		SubscriptionID: subscriptionID,
		Key:            job.Key,
		Priority:       job.Priority,
		Run: func(ctx context.Context) {
			s.OnJobFired(ctx, job)
		},
	})
	if err != nil {
		s.manager.Release(subscriptionID)
		return job, err
	}
	return job, nil
}

// OnJobFired executes a due job. Every exit path is converted into a
// JobOutcome; panics are recovered and reported as failed runs.
func (s *Scheduler) OnJobFired(ctx context.Context, job models.ScheduledJob) (outcome models.JobOutcome) {
	log := s.logger.With("subscription_id", job.SubscriptionID, "job_key", job.Key)
	outcome = models.JobOutcome{
		RunID:          uuid.NewString(),
		SubscriptionID: job.SubscriptionID,
		StartedAt:      s.now(),
	}
	s.manager.Begin(job.SubscriptionID)

	rearm := false
	var runErr error
	defer func() {
		if r := recover(); r != nil {
			log.Error("subscription run panicked", "panic", r)
			outcome.Status = models.JobFailed
			runErr = fmt.Errorf("panic: %v", r)
			outcome.Error = runErr.Error()
		}
		if rearm {
			s.rearmAfter(ctx, job, &outcome, log)
		}
		outcome.FinishedAt = s.now()
		s.finish(outcome, runErr, log)
	}()

	sub, user, reason, err := s.loadTargets(job.SubscriptionID)
	if err != nil {
		// The job may still be valid; a failed lookup must not retire it.
		rearm = true
		runErr = err
		outcome.Status = models.JobFailed
		outcome.Error = err.Error()
		return outcome
	}
	if reason != "" {
		outcome.Status = models.JobSkipped
		outcome.Error = reason
		log.Info("run skipped", "reason", reason)
		if err := s.Cancel(ctx, job.SubscriptionID); err != nil {
			log.Warn("failed to clear skipped job", "error", err)
		}
		return outcome
	}

	// From here on the subscription always gets its next run armed, even when
	// the pipeline fails or panics.
	rearm = true
	res, err := s.runner.RunForSubscription(ctx, sub, user)
	if lerr := s.store.UpdateSubscriptionLastSearch(sub.ID, outcome.StartedAt); lerr != nil {
		log.Error("failed to record last search", "error", lerr)
	}
	outcome.NewArticles = res.NewArticles
	outcome.Delivered = res.Delivered
	outcome.Evicted = res.Evicted
	switch {
	case err != nil:
		runErr = err
		outcome.Status = models.JobFailed
		outcome.Error = err.Error()
	case res.NewArticles == 0 && !res.Delivered:
		outcome.Status = models.JobNoop
	default:
		outcome.Status = models.JobSuccess
	}
	return outcome
}

// loadTargets returns a non-empty reason when the run must be skipped. Only a
// missing or inactive row is a reason; any other lookup failure is an error.
func (s *Scheduler) loadTargets(subscriptionID int64) (*models.Subscription, *models.User, string, error) {
	sub, err := s.store.GetSubscriptionByID(subscriptionID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, nil, "subscription not found", nil
	case err != nil:
		return nil, nil, "", fmt.Errorf("load subscription: %w", err)
	case !sub.Active:
		return nil, nil, "subscription inactive", nil
	}
	user, err := s.store.GetUserByID(sub.UserID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, nil, "user not found", nil
	case err != nil:
		return nil, nil, "", fmt.Errorf("load user: %w", err)
	case !user.Active:
		return nil, nil, "user inactive", nil
	}
	return sub, user, "", nil
}

func (s *Scheduler) rearmAfter(ctx context.Context, job models.ScheduledJob, outcome *models.JobOutcome, log *slog.Logger) {
	// Reload: the subscription may have been edited or retired during the run.
	sub, err := s.store.GetSubscriptionByID(job.SubscriptionID)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("subscription vanished during run, not re-arming", "error", err)
		return
	}
	if err != nil {
		log.Warn("could not reload subscription, retrying later", "error", err)
		if next := s.retryLater(job); next != nil {
			runAt := next.RunAt
			outcome.NextRunAt = &runAt
		}
		return
	}
	after := s.now()
	if job.RunAt.After(after) {
		after = job.RunAt
	}
	next, err := s.scheduleAfter(ctx, sub, after)
	if err != nil {
		log.Error("failed to re-arm subscription", "error", err)
		return
	}
	if next != nil {
		runAt := next.RunAt
		outcome.NextRunAt = &runAt
	}
}

func (s *Scheduler) finish(outcome models.JobOutcome, runErr error, log *slog.Logger) {
	message := fmt.Sprintf("%s: %d new articles", outcome.Status, outcome.NewArticles)
	if outcome.Status == models.JobSkipped {
		runErr = errors.New(outcome.Error)
	}
	s.manager.Finish(outcome.SubscriptionID, message, runErr)

	if err := s.store.InsertJobRun(outcome); err != nil {
		log.Error("failed to record job run", "error", err)
	}
	if s.hub != nil {
		s.hub.BroadcastJSON(outcome)
	}
	log.Info("subscription job finished", "status", outcome.Status, "new_articles", outcome.NewArticles,
		"delivered", outcome.Delivered, "error", outcome.Error, "next_run_at", outcome.NextRunAt)
}

// RearmAll is called on startup. Job rows that reference a missing or
// inactive subscription are removed; rows that came due while the process
// was down are fired right away; every other active subscription gets its
// next run armed.
func (s *Scheduler) RearmAll(ctx context.Context) (int, error) {
	rows, err := s.store.ListScheduledJobs()
	if err != nil {
		return 0, err
	}
	now := s.now()
	armed := 0
	fromRow := make(map[int64]bool)
	for _, row := range rows {
		sub, err := s.store.GetSubscriptionByID(row.SubscriptionID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			// Not provably orphaned; keep the row and arm it as stored.
			s.logger.Warn("could not load subscription of scheduled job", "job_key", row.Key, "error", err)
			if err := s.registry.Schedule(row, s.fire); err != nil {
				s.logger.Error("failed to arm scheduled job", "job_key", row.Key, "error", err)
				continue
			}
			fromRow[row.SubscriptionID] = true
			armed++
			continue
		}
		if err != nil || !sub.Active {
			s.logger.Error("orphaned scheduled job", "job_key", row.Key, "subscription_id", row.SubscriptionID, "defect", true)
			if err := s.Cancel(ctx, row.SubscriptionID); err != nil {
				s.logger.Warn("failed to remove orphaned job", "job_key", row.Key, "error", err)
			}
			continue
		}
		if row.RunAt.After(now) {
			continue
		}
		if err := s.registry.Schedule(row, s.fire); err != nil {
			s.logger.Error("failed to arm overdue job", "job_key", row.Key, "error", err)
			continue
		}
		s.logger.Info("overdue job armed", "job_key", row.Key, "subscription_id", row.SubscriptionID, "run_at", row.RunAt)
		fromRow[row.SubscriptionID] = true
		armed++
	}

	subs, err := s.store.ListSubscriptions(store.SubscriptionFilter{ActiveOnly: true})
	if err != nil {
		return armed, err
	}
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return armed, err
		}
		if fromRow[sub.ID] {
			continue
		}
		if _, err := s.ScheduleNext(ctx, sub); err != nil {
			s.logger.Error("failed to arm subscription", "subscription_id", sub.ID, "error", err)
			continue
		}
		armed++
	}
	s.logger.Info("subscriptions armed", "count", armed)
	return armed, nil
}

// Pending lists armed jobs.
func (s *Scheduler) Pending() []models.ScheduledJob {
	return s.registry.Pending()
}

// Status lists per-subscription run status.
func (s *Scheduler) Status() []jobs.JobStatus {
	return s.manager.GetStatus()
}
