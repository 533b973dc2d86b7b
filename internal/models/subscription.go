package models

import "time"

// Frequency controls how often a subscription is searched.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// User is the subset of the account record this service reads.
type User struct {
	ID        int64     `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// QualityFilters narrows search results by journal metrics.
type QualityFilters struct {
	Quartiles       []string `json:"quartiles,omitempty"`
	MinImpactFactor float64  `json:"min_impact_factor,omitempty"`
	Categories      []string `json:"categories,omitempty"`
	TopOnly         bool     `json:"top_only,omitempty"`
	RequireISSN     bool     `json:"require_issn,omitempty"`
}

// NeedsJournal reports whether any filter depends on the journal metrics table.
func (f QualityFilters) NeedsJournal() bool {
	return len(f.Quartiles) > 0 || f.MinImpactFactor > 0 || len(f.Categories) > 0 || f.TopOnly
}

// Subscription is a user's standing literature query.
type Subscription struct {
	ID           int64          `json:"id"`
	UserID       int64          `json:"user_id"`
	Query        string         `json:"query"`
	Frequency    Frequency      `json:"frequency"`
	TimeOfDay    string         `json:"time_of_day"` // "HH:MM"
	Weekday      int            `json:"weekday"`      // time.Weekday, used by weekly
	DayOfMonth   int            `json:"day_of_month"` // used by monthly
	Active       bool           `json:"active"`
	LastSearchAt *time.Time     `json:"last_search_at,omitempty"`
	Filters      QualityFilters `json:"filters"`
	MaxResults   int            `json:"max_results"`
	LookbackDays int            `json:"lookback_days"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
