package store_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/litpush/internal/models"
	"github.com/vrsandeep/litpush/internal/store"
)

func TestUpsertArticleBackfillsISSN(t *testing.T) {
	s := newStore(t)

	tx, err := s.Begin()
	require.NoError(t, err)
	first, created, err := s.UpsertArticle(tx, models.RawRecord{PMID: "1", Title: "A", PublishedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := s.UpsertArticle(tx, models.RawRecord{PMID: "1", Title: "A", ISSN: "1234-5678", EISSN: "8765-4321"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	require.NoError(t, tx.Commit())

	got, err := s.GetArticleByPMID("1")
	require.NoError(t, err)
	assert.Equal(t, "1234-5678", got.ISSN)
	assert.Equal(t, "8765-4321", got.EISSN)
	require.NotNil(t, got.PublishedAt)

	// Known values are never overwritten.
	tx, err = s.Begin()
	require.NoError(t, err)
	_, _, err = s.UpsertArticle(tx, models.RawRecord{PMID: "1", ISSN: "0000-0000"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	got, err = s.GetArticleByPMID("1")
	require.NoError(t, err)
	assert.Equal(t, "1234-5678", got.ISSN)
}

func TestDeliveryRecords(t *testing.T) {
	s := newStore(t)
	user, sub := seedSubscription(t, s, "sepsis")

	tx, err := s.Begin()
	require.NoError(t, err)
	article, _, err := s.UpsertArticle(tx, models.RawRecord{PMID: "42", Title: "Sepsis"})
	require.NoError(t, err)

	inserted, err := s.InsertDeliveryRecord(tx, user.ID, article.ID, sub.ID)
	require.NoError(t, err)
	assert.True(t, inserted)
	inserted, err = s.InsertDeliveryRecord(tx, user.ID, article.ID, sub.ID)
	require.NoError(t, err)
	assert.False(t, inserted, "second insert for the same user and article must be ignored")

	exists, notified, err := s.DeliveryRecordState(tx, user.ID, article.ID)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.False(t, notified)
	require.NoError(t, tx.Commit())

	pending, err := s.ListPendingArticles(sub.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "42", pending[0].PMID)

	require.NoError(t, s.MarkNotified(sub.ID, []int64{article.ID}))
	pending, err = s.ListPendingArticles(sub.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	records, err := s.ListDeliveryRecords(user.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Notified)
}

func TestClaimPendingArticles(t *testing.T) {
	s := newStore(t)
	user, sub := seedSubscription(t, s, "sepsis")
	at := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

	tx, err := s.Begin()
	require.NoError(t, err)
	for _, pmid := range []string{"1", "2"} {
		article, _, err := s.UpsertArticle(tx, models.RawRecord{PMID: pmid, Title: "T" + pmid, PublishedAt: at})
		require.NoError(t, err)
		_, err = s.InsertDeliveryRecord(tx, user.ID, article.ID, sub.ID)
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())

	claimed, err := s.ClaimPendingArticles(sub.ID, "first", at, time.Minute)
	require.NoError(t, err)
	assert.Len(t, claimed, 2)

	again, err := s.ClaimPendingArticles(sub.ID, "second", at.Add(30*time.Second), time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again, "records held by a live claim are not handed out twice")

	require.NoError(t, s.ReleaseClaim("first"))
	again, err = s.ClaimPendingArticles(sub.ID, "second", at.Add(30*time.Second), time.Minute)
	require.NoError(t, err)
	assert.Len(t, again, 2, "released records are claimable")

	stale, err := s.ClaimPendingArticles(sub.ID, "third", at.Add(2*time.Minute), time.Minute)
	require.NoError(t, err)
	assert.Len(t, stale, 2, "an expired claim can be taken over")

	require.NoError(t, s.MarkClaimNotified("second"))
	pending, err := s.ListPendingArticles(sub.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 2, "a superseded claim marks nothing")

	require.NoError(t, s.MarkClaimNotified("third"))
	pending, err = s.ListPendingArticles(sub.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFindJournal(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.UpsertJournal(models.Journal{ISSN: "1111-1111", EISSN: "2222-2222", Quartile: "Q1", ImpactFactor: 12.5, Top: true}))

	tests := []struct {
		name        string
		issn, eissn string
		found       bool
	}{
		{"by print issn", "1111-1111", "", true},
		{"by electronic issn", "", "2222-2222", true},
		{"electronic given as print", "2222-2222", "", true},
		{"unknown", "9999-9999", "", false},
		{"no identifiers", "", "", false},
	}
	tx, err := s.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, err := s.FindJournal(tx, tt.issn, tt.eissn)
			if !tt.found {
				assert.ErrorIs(t, err, store.ErrNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Q1", j.Quartile)
			assert.True(t, j.Top)
		})
	}
}

func TestEvictOldestArticles(t *testing.T) {
	s := newStore(t)
	user, sub := seedSubscription(t, s, "asthma")

	tx, err := s.Begin()
	require.NoError(t, err)
	for i := 1; i <= 5; i++ {
		a, _, err := s.UpsertArticle(tx, models.RawRecord{PMID: fmt.Sprint(i)})
		require.NoError(t, err)
		_, err = s.InsertDeliveryRecord(tx, user.ID, a.ID, sub.ID)
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())

	removed, err := s.EvictOldestArticles(2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	n, err := s.CountArticles()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = s.GetArticleByPMID("1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetArticleByPMID("3")
	assert.NoError(t, err)

	records, err := s.ListDeliveryRecords(user.ID)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}
