package models

import "time"

// DeliveryChannel is one rate-limited sending identity.
type DeliveryChannel struct {
	ID         int64      `db:"id" json:"id"`
	Name       string     `db:"name" json:"name"`
	Host       string     `db:"host" json:"host"`
	Port       int        `db:"port" json:"port"`
	Username   string     `db:"username" json:"username"`
	Password   string     `db:"password" json:"-"`
	FromAddr   string     `db:"from_addr" json:"from_addr"`
	DailyLimit int        `db:"daily_limit" json:"daily_limit"`
	SentToday  int        `db:"sent_today" json:"sent_today"`
	QuotaDate  string     `db:"quota_date" json:"quota_date"` // YYYY-MM-DD the counter belongs to
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	Active     bool       `db:"active" json:"active"`
}

// Available reports whether the channel can send one more message on day.
func (c DeliveryChannel) Available(day string) bool {
	if !c.Active {
		return false
	}
	sent := c.SentToday
	if c.QuotaDate != day {
		sent = 0
	}
	return sent < c.DailyLimit
}
