// Package delivery sends digests through a pool of rate-limited channels.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vrsandeep/litpush/internal/config"
	"github.com/vrsandeep/litpush/internal/logging"
	"github.com/vrsandeep/litpush/internal/models"
)

var (
	// ErrNoChannelAvailable means every active channel reached its daily limit.
	ErrNoChannelAvailable = errors.New("no delivery channel available")
	// ErrNoRecipient is returned for an empty destination address.
	ErrNoRecipient = errors.New("no recipient address")
)

// ChannelStore is the persistence the pool needs.
type ChannelStore interface {
	ListChannels(activeOnly bool) ([]models.DeliveryChannel, error)
	GetChannel(id int64) (*models.DeliveryChannel, error)
	EnsureChannel(ch models.DeliveryChannel) (*models.DeliveryChannel, error)
	ResetStaleQuotas(day string) (int64, error)
	ConsumeChannelQuota(id int64, day string, usedAt time.Time) (bool, error)
}

// ChannelStatus is the operator view of one channel.
type ChannelStatus struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Active     bool       `json:"active"`
	DailyLimit int        `json:"daily_limit"`
	SentToday  int        `json:"sent_today"`
	Remaining  int        `json:"remaining"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// Pool picks the least recently used channel with remaining quota for each
// message. Check, send and quota increment for one channel happen under that
// channel's lock, so a channel never goes over its limit within a process; the
// conditional UPDATE in the store keeps the bound across processes.
type Pool struct {
	store     ChannelStore
	transport Transport
	env       EnvironmentProvider
	loc       *time.Location
	now       func() time.Time
	logger    *slog.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewPool creates a pool. smtp backs the environment channel; loc defines
// the day boundary for quota resets.
func NewPool(st ChannelStore, transport Transport, smtp config.SMTPConfig, loc *time.Location, logger *slog.Logger) *Pool {
	if loc == nil {
		loc = time.UTC
	}
	return &Pool{
		store:     st,
		transport: transport,
		env:       EnvironmentProvider{SMTP: smtp},
		loc:       loc,
		now:       time.Now,
		logger:    logging.OrDiscard(logger).With("component", "delivery"),
		locks:     make(map[int64]*sync.Mutex),
	}
}

// SetClock replaces the time source. Used by tests.
func (p *Pool) SetClock(now func() time.Time) {
	p.now = now
}

func (p *Pool) channelLock(id int64) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[id]
	if !ok {
		l = &sync.Mutex{}
		p.locks[id] = l
	}
	return l
}

func (p *Pool) today() string {
	return p.now().In(p.loc).Format("2006-01-02")
}

func (p *Pool) provider(ch models.DeliveryChannel) CredentialProvider {
	if ch.Name == EnvironmentChannel && ch.Host == "" {
		return p.env
	}
	return ConfiguredProvider{Channel: ch}
}

// Send delivers one message and returns the name of the channel used. A
// transport failure is returned as is; other channels are not tried and no
// quota is consumed.
func (p *Pool) Send(ctx context.Context, to, subject, html, text string) (string, error) {
	if to == "" {
		return "", ErrNoRecipient
	}
	day := p.today()
	if n, err := p.store.ResetStaleQuotas(day); err != nil {
		return "", err
	} else if n > 0 {
		p.logger.Info("reset daily channel quotas", "day", day, "channels", n)
	}

	channels, err := p.store.ListChannels(true)
	if err != nil {
		return "", err
	}
	msg := Message{To: to, Subject: subject, HTML: html, Text: text}

	// Candidates are tried strictly in least recently used order. A channel
	// held by another send is waited for, then re-read under its lock.
	for _, ch := range channels {
		if !ch.Available(day) {
			continue
		}
		lock := p.channelLock(ch.ID)
		lock.Lock()
		name, sent, err := p.sendLocked(ctx, ch.ID, day, msg)
		lock.Unlock()
		if sent || err != nil {
			return name, err
		}
	}
	return "", ErrNoChannelAvailable
}

// sendLocked must be called with the channel lock held. It reports sent=false
// with a nil error when the channel turned out to be exhausted.
func (p *Pool) sendLocked(ctx context.Context, id int64, day string, msg Message) (string, bool, error) {
	ch, err := p.store.GetChannel(id)
	if err != nil {
		return "", false, err
	}
	if !ch.Available(day) {
		return ch.Name, false, nil
	}
	creds, err := p.provider(*ch).Credentials(ctx)
	if err != nil {
		return ch.Name, false, fmt.Errorf("credentials for channel %s: %w", ch.Name, err)
	}
	if err := p.transport.Send(ctx, creds, msg); err != nil {
		p.logger.Warn("delivery failed", "channel", ch.Name, "to", msg.To, "error", err)
		return ch.Name, false, fmt.Errorf("send via %s: %w", ch.Name, err)
	}

	// The message is out; failures below only affect accounting.
	ok, err := p.store.ConsumeChannelQuota(ch.ID, day, p.now())
	if err != nil {
		p.logger.Error("failed to record channel usage", "channel", ch.Name, "error", err)
	} else if !ok {
		p.logger.Error("channel quota exceeded by a concurrent sender", "channel", ch.Name, "defect", true)
	}
	p.logger.Debug("message delivered", "channel", ch.Name, "to", msg.To)
	return ch.Name, true, nil
}

// Status reports every channel with its remaining quota for today.
func (p *Pool) Status(ctx context.Context) ([]ChannelStatus, error) {
	day := p.today()
	channels, err := p.store.ListChannels(false)
	if err != nil {
		return nil, err
	}
	out := make([]ChannelStatus, 0, len(channels))
	for _, ch := range channels {
		sent := ch.SentToday
		if ch.QuotaDate != day {
			sent = 0
		}
		out = append(out, ChannelStatus{
			ID:         ch.ID,
			Name:       ch.Name,
			Active:     ch.Active,
			DailyLimit: ch.DailyLimit,
			SentToday:  sent,
			Remaining:  max(ch.DailyLimit-sent, 0),
			LastUsedAt: ch.LastUsedAt,
		})
	}
	return out, nil
}
