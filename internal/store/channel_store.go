package store

import (
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/vrsandeep/litpush/internal/models"
)

var channelColumns = []string{
	"id", "name", "host", "port", "username", "password", "from_addr",
	"daily_limit", "sent_today", "quota_date", "last_used_at", "active",
}

// CreateChannel inserts a delivery channel and sets its ID.
func (s *Store) CreateChannel(ch *models.DeliveryChannel) error {
	res, err := s.db.Exec(`
		INSERT INTO delivery_channels (name, host, port, username, password, from_addr, daily_limit, sent_today, quota_date, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ch.Name, ch.Host, ch.Port, ch.Username, ch.Password, ch.FromAddr, ch.DailyLimit, ch.SentToday, ch.QuotaDate, ch.Active)
	if err != nil {
		return fmt.Errorf("create channel %s: %w", ch.Name, err)
	}
	ch.ID, _ = res.LastInsertId()
	return nil
}

// EnsureChannel creates ch unless a channel with the same name exists, and
// returns the stored row either way.
func (s *Store) EnsureChannel(ch models.DeliveryChannel) (*models.DeliveryChannel, error) {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO delivery_channels (name, host, port, username, password, from_addr, daily_limit, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ch.Name, ch.Host, ch.Port, ch.Username, ch.Password, ch.FromAddr, ch.DailyLimit, ch.Active)
	if err != nil {
		return nil, fmt.Errorf("ensure channel %s: %w", ch.Name, err)
	}
	return s.getChannel(sq.Eq{"name": ch.Name})
}

// GetChannel retrieves a channel by id.
func (s *Store) GetChannel(id int64) (*models.DeliveryChannel, error) {
	return s.getChannel(sq.Eq{"id": id})
}

func (s *Store) getChannel(where sq.Eq) (*models.DeliveryChannel, error) {
	query, args, err := builder.Select(channelColumns...).From("delivery_channels").Where(where).ToSql()
	if err != nil {
		return nil, err
	}
	var ch models.DeliveryChannel
	if err := s.db.Get(&ch, query, args...); err != nil {
		return nil, notFound(err, "delivery channel")
	}
	return &ch, nil
}

// ListChannels returns channels in least-recently-used order; never-used
// channels come first.
func (s *Store) ListChannels(activeOnly bool) ([]models.DeliveryChannel, error) {
	q := builder.Select(channelColumns...).From("delivery_channels").
		OrderBy("last_used_at IS NOT NULL", "last_used_at ASC", "id ASC")
	if activeOnly {
		q = q.Where(sq.Eq{"active": true})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	var channels []models.DeliveryChannel
	if err := s.db.Select(&channels, query, args...); err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return channels, nil
}

// ResetStaleQuotas zeroes the counter of every channel whose quota date is not day.
func (s *Store) ResetStaleQuotas(day string) (int64, error) {
	res, err := s.db.Exec("UPDATE delivery_channels SET sent_today = 0, quota_date = ? WHERE quota_date != ?", day, day)
	if err != nil {
		return 0, fmt.Errorf("reset quotas: %w", err)
	}
	return res.RowsAffected()
}

// ConsumeChannelQuota counts one sent message against the channel for day.
// The update only applies while the channel is active and under its limit, so
// it reports false instead of ever exceeding daily_limit.
func (s *Store) ConsumeChannelQuota(id int64, day string, usedAt time.Time) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE delivery_channels SET
			sent_today = CASE WHEN quota_date = ? THEN sent_today + 1 ELSE 1 END,
			quota_date = ?,
			last_used_at = ?
		WHERE id = ? AND active = 1 AND (quota_date != ? OR sent_today < daily_limit) AND daily_limit > 0`,
		day, day, usedAt.UTC(), id, day)
	if err != nil {
		return false, fmt.Errorf("consume quota of channel %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// SetChannelActive enables or disables a channel.
func (s *Store) SetChannelActive(id int64, active bool) error {
	_, err := s.db.Exec("UPDATE delivery_channels SET active = ? WHERE id = ?", active, id)
	return err
}
