package models

import "time"

// Priority orders work in the job pool. Lower values run first.
type Priority int

const (
	PriorityImmediate Priority = iota
	PriorityDefault
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityImmediate:
		return "immediate"
	case PriorityLow:
		return "low"
	default:
		return "default"
	}
}

// ScheduledJob is a deferred execution of one subscription.
type ScheduledJob struct {
	Key            string    `db:"job_key" json:"key"`
	SubscriptionID int64     `db:"subscription_id" json:"subscription_id"`
	RunAt          time.Time `db:"run_at" json:"run_at"`
	Priority       Priority  `db:"priority" json:"priority"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// JobStatus is the result class of a subscription run.
type JobStatus string

const (
	JobSuccess JobStatus = "success"
	JobNoop    JobStatus = "noop"
	JobFailed  JobStatus = "failed"
	JobSkipped JobStatus = "skipped"
)

// JobOutcome is recorded for every fired job.
type JobOutcome struct {
	RunID          string     `db:"run_id" json:"run_id"`
	SubscriptionID int64      `db:"subscription_id" json:"subscription_id"`
	Status         JobStatus  `db:"status" json:"status"`
	NewArticles    int        `db:"new_articles" json:"new_articles"`
	Delivered      bool       `db:"delivered" json:"delivered"`
	Evicted        int        `db:"evicted" json:"evicted"`
	Error          string     `db:"error" json:"error,omitempty"`
	StartedAt      time.Time  `db:"started_at" json:"started_at"`
	FinishedAt     time.Time  `db:"finished_at" json:"finished_at"`
	NextRunAt      *time.Time `db:"next_run_at" json:"next_run_at,omitempty"`
}

// CacheEntry is the value stored under a result cache key.
type CacheEntry struct {
	Query      string      `json:"query"`
	FilterHash string      `json:"filter_hash,omitempty"`
	IDs        []string    `json:"ids"`
	Records    []RawRecord `json:"records"`
	CreatedAt  time.Time   `json:"created_at"`
	Hits       int64       `json:"-"`
}
