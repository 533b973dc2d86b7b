package store_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/litpush/internal/models"
)

func TestChannelQuota(t *testing.T) {
	s := newStore(t)
	ch := &models.DeliveryChannel{Name: "primary", Host: "smtp.example.org", Port: 587, DailyLimit: 2, Active: true}
	require.NoError(t, s.CreateChannel(ch))

	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		ok, err := s.ConsumeChannelQuota(ch.ID, "2026-05-04", now)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := s.ConsumeChannelQuota(ch.ID, "2026-05-04", now)
	require.NoError(t, err)
	assert.False(t, ok, "limit must not be exceeded")

	// A new day starts from one.
	ok, err = s.ConsumeChannelQuota(ch.ID, "2026-05-05", now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)
	got, err := s.GetChannel(ch.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SentToday)
	assert.Equal(t, "2026-05-05", got.QuotaDate)
	require.NotNil(t, got.LastUsedAt)

	reset, err := s.ResetStaleQuotas("2026-05-06")
	require.NoError(t, err)
	assert.Equal(t, int64(1), reset)
	got, err = s.GetChannel(ch.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.SentToday)
}

func TestListChannelsLeastRecentlyUsedFirst(t *testing.T) {
	s := newStore(t)
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, s.CreateChannel(&models.DeliveryChannel{Name: name, DailyLimit: 10, Active: true}))
	}
	chans, err := s.ListChannels(true)
	require.NoError(t, err)
	require.Len(t, chans, 3)

	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	_, err = s.ConsumeChannelQuota(chans[0].ID, "2026-05-04", now)
	require.NoError(t, err)
	_, err = s.ConsumeChannelQuota(chans[1].ID, "2026-05-04", now.Add(time.Minute))
	require.NoError(t, err)

	chans, err = s.ListChannels(true)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, []string{chans[0].Name, chans[1].Name, chans[2].Name})

	require.NoError(t, s.SetChannelActive(chans[0].ID, false))
	chans, err = s.ListChannels(true)
	require.NoError(t, err)
	assert.Len(t, chans, 2)
}

func TestEnsureChannelIsIdempotent(t *testing.T) {
	s := newStore(t)
	first, err := s.EnsureChannel(models.DeliveryChannel{Name: "environment", Host: "h", Port: 25, DailyLimit: 5, Active: true})
	require.NoError(t, err)
	second, err := s.EnsureChannel(models.DeliveryChannel{Name: "environment", Host: "other", Port: 25, DailyLimit: 9, Active: true})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "h", second.Host)
}
