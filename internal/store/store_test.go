package store_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/litpush/internal/models"
	"github.com/vrsandeep/litpush/internal/store"
	"github.com/vrsandeep/litpush/internal/testutil"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(testutil.SetupTestDB(t), nil)
}

func seedSubscription(t *testing.T, s *store.Store, query string) (*models.User, *models.Subscription) {
	t.Helper()
	user, err := s.CreateUser(query + "@example.org")
	require.NoError(t, err)
	sub := &models.Subscription{
		UserID:    user.ID,
		Query:     query,
		Frequency: models.FrequencyDaily,
		TimeOfDay: "09:00",
		Active:    true,
	}
	require.NoError(t, s.CreateSubscription(sub))
	return user, sub
}
