package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/vrsandeep/litpush/internal/models"
)

// subscriptionRow mirrors the subscriptions table; filters are stored as JSON text.
type subscriptionRow struct {
	ID           int64        `db:"id"`
	UserID       int64        `db:"user_id"`
	Query        string       `db:"query"`
	Frequency    string       `db:"frequency"`
	TimeOfDay    string       `db:"time_of_day"`
	Weekday      int          `db:"weekday"`
	DayOfMonth   int          `db:"day_of_month"`
	Active       bool         `db:"active"`
	LastSearchAt sql.NullTime `db:"last_search_at"`
	Filters      string       `db:"filters"`
	MaxResults   int          `db:"max_results"`
	LookbackDays int          `db:"lookback_days"`
	CreatedAt    time.Time    `db:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

var subscriptionColumns = []string{
	"id", "user_id", "query", "frequency", "time_of_day", "weekday", "day_of_month",
	"active", "last_search_at", "filters", "max_results", "lookback_days", "created_at", "updated_at",
}

// toSubscription never fails: undecodable filters fall back to no filtering.
func (s *Store) toSubscription(r subscriptionRow) *models.Subscription {
	sub := &models.Subscription{
		ID:           r.ID,
		UserID:       r.UserID,
		Query:        r.Query,
		Frequency:    models.Frequency(r.Frequency),
		TimeOfDay:    r.TimeOfDay,
		Weekday:      r.Weekday,
		DayOfMonth:   r.DayOfMonth,
		Active:       r.Active,
		MaxResults:   r.MaxResults,
		LookbackDays: r.LookbackDays,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.LastSearchAt.Valid {
		t := r.LastSearchAt.Time
		sub.LastSearchAt = &t
	}
	if r.Filters != "" {
		if err := json.Unmarshal([]byte(r.Filters), &sub.Filters); err != nil {
			s.logger.Warn("invalid filters, using defaults", "subscription_id", r.ID, "error", err)
			sub.Filters = models.QualityFilters{}
		}
	}
	return sub
}

// SubscriptionFilter narrows ListSubscriptions. Zero values match everything.
type SubscriptionFilter struct {
	UserID     int64
	ActiveOnly bool
}

// CreateSubscription inserts sub and fills in its ID and timestamps.
func (s *Store) CreateSubscription(sub *models.Subscription) error {
	filters, err := json.Marshal(sub.Filters)
	if err != nil {
		return fmt.Errorf("encode filters: %w", err)
	}
	if sub.Frequency == "" {
		sub.Frequency = models.FrequencyDaily
	}
	if sub.MaxResults <= 0 {
		sub.MaxResults = 50
	}
	if sub.LookbackDays <= 0 {
		sub.LookbackDays = 7
	}
	now := time.Now().UTC()
	res, err := s.db.Exec(`
		INSERT INTO subscriptions
		(user_id, query, frequency, time_of_day, weekday, day_of_month, active, filters, max_results, lookback_days, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.UserID, sub.Query, string(sub.Frequency), sub.TimeOfDay, sub.Weekday, sub.DayOfMonth,
		sub.Active, string(filters), sub.MaxResults, sub.LookbackDays, now, now)
	if err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	sub.ID, _ = res.LastInsertId()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	return nil
}

// GetSubscriptionByID retrieves a single subscription by its primary key.
func (s *Store) GetSubscriptionByID(id int64) (*models.Subscription, error) {
	query, args, err := builder.Select(subscriptionColumns...).From("subscriptions").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	var row subscriptionRow
	if err := s.db.Get(&row, query, args...); err != nil {
		return nil, notFound(err, fmt.Sprintf("subscription %d", id))
	}
	return s.toSubscription(row), nil
}

// ListSubscriptions returns subscriptions matching f ordered by id.
func (s *Store) ListSubscriptions(f SubscriptionFilter) ([]*models.Subscription, error) {
	q := builder.Select(subscriptionColumns...).From("subscriptions").OrderBy("id ASC")
	if f.UserID != 0 {
		q = q.Where(sq.Eq{"user_id": f.UserID})
	}
	if f.ActiveOnly {
		q = q.Where(sq.Eq{"active": true})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	var rows []subscriptionRow
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	subs := make([]*models.Subscription, 0, len(rows))
	for _, r := range rows {
		subs = append(subs, s.toSubscription(r))
	}
	return subs, nil
}

// UpdateSubscription saves the schedule, query and filter fields of sub.
func (s *Store) UpdateSubscription(sub *models.Subscription) error {
	filters, err := json.Marshal(sub.Filters)
	if err != nil {
		return fmt.Errorf("encode filters: %w", err)
	}
	sub.UpdatedAt = time.Now().UTC()
	_, err = s.db.Exec(`
		UPDATE subscriptions SET query = ?, frequency = ?, time_of_day = ?, weekday = ?, day_of_month = ?,
		active = ?, filters = ?, max_results = ?, lookback_days = ?, updated_at = ?
		WHERE id = ?`,
		sub.Query, string(sub.Frequency), sub.TimeOfDay, sub.Weekday, sub.DayOfMonth,
		sub.Active, string(filters), sub.MaxResults, sub.LookbackDays, sub.UpdatedAt, sub.ID)
	return err
}

// SetSubscriptionActive toggles a subscription.
func (s *Store) SetSubscriptionActive(id int64, active bool) error {
	_, err := s.db.Exec("UPDATE subscriptions SET active = ?, updated_at = ? WHERE id = ?", active, time.Now().UTC(), id)
	return err
}

// UpdateSubscriptionLastSearch records when the subscription was last executed.
func (s *Store) UpdateSubscriptionLastSearch(id int64, at time.Time) error {
	_, err := s.db.Exec("UPDATE subscriptions SET last_search_at = ? WHERE id = ?", at.UTC(), id)
	return err
}

// DeleteSubscription removes a subscription from the database.
func (s *Store) DeleteSubscription(id int64) error {
	_, err := s.db.Exec("DELETE FROM subscriptions WHERE id = ?", id)
	return err
}
