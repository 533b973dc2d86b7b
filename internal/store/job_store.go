package store

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/vrsandeep/litpush/internal/models"
)

// SaveScheduledJob stores job as the live job of its subscription, replacing
// any previous row. The UNIQUE(subscription_id) constraint keeps at most one.
func (s *Store) SaveScheduledJob(job models.ScheduledJob) error {
	_, err := s.db.Exec(`
		INSERT INTO scheduled_jobs (job_key, subscription_id, run_at, priority, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(subscription_id) DO UPDATE SET
			job_key = excluded.job_key,
			run_at = excluded.run_at,
			priority = excluded.priority,
			created_at = excluded.created_at`,
		job.Key, job.SubscriptionID, job.RunAt.UTC(), job.Priority, job.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save scheduled job %s: %w", job.Key, err)
	}
	return nil
}

// GetScheduledJob returns the live job of a subscription.
func (s *Store) GetScheduledJob(subscriptionID int64) (*models.ScheduledJob, error) {
	var job models.ScheduledJob
	err := s.db.Get(&job, "SELECT job_key, subscription_id, run_at, priority, created_at FROM scheduled_jobs WHERE subscription_id = ?", subscriptionID)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("scheduled job of subscription %d", subscriptionID))
	}
	return &job, nil
}

// ListScheduledJobs returns all live jobs ordered by run time.
func (s *Store) ListScheduledJobs() ([]models.ScheduledJob, error) {
	var jobs []models.ScheduledJob
	err := s.db.Select(&jobs, "SELECT job_key, subscription_id, run_at, priority, created_at FROM scheduled_jobs ORDER BY run_at ASC")
	if err != nil {
		return nil, fmt.Errorf("list scheduled jobs: %w", err)
	}
	return jobs, nil
}

// DeleteScheduledJob removes the live job of a subscription, if any.
func (s *Store) DeleteScheduledJob(subscriptionID int64) error {
	_, err := s.db.Exec("DELETE FROM scheduled_jobs WHERE subscription_id = ?", subscriptionID)
	return err
}

// InsertJobRun appends a run outcome to the history.
func (s *Store) InsertJobRun(o models.JobOutcome) error {
	_, err := s.db.NamedExec(`
		INSERT INTO job_runs (run_id, subscription_id, status, new_articles, delivered, evicted, error, started_at, finished_at, next_run_at)
		VALUES (:run_id, :subscription_id, :status, :new_articles, :delivered, :evicted, :error, :started_at, :finished_at, :next_run_at)`, o)
	if err != nil {
		return fmt.Errorf("insert job run %s: %w", o.RunID, err)
	}
	return nil
}

// ListJobRuns returns the most recent outcomes, optionally for one subscription.
func (s *Store) ListJobRuns(subscriptionID int64, limit int) ([]models.JobOutcome, error) {
	q := builder.Select("run_id", "subscription_id", "status", "new_articles", "delivered", "evicted",
		"error", "started_at", "finished_at", "next_run_at").
		From("job_runs").OrderBy("started_at DESC", "run_id ASC")
	if subscriptionID != 0 {
		q = q.Where(sq.Eq{"subscription_id": subscriptionID})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	var runs []models.JobOutcome
	if err := s.db.Select(&runs, query, args...); err != nil {
		return nil, fmt.Errorf("list job runs: %w", err)
	}
	return runs, nil
}
