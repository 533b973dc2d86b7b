package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/litpush/internal/cache"
	"github.com/vrsandeep/litpush/internal/models"
	"github.com/vrsandeep/litpush/internal/testutil"
)

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func seed(t *testing.T, ta *testutil.TestApp, query string) *models.Subscription {
	t.Helper()
	st := ta.App.Store()
	user, err := st.CreateUser(query + "@example.org")
	require.NoError(t, err)
	sub := &models.Subscription{UserID: user.ID, Query: query, Frequency: models.FrequencyDaily, TimeOfDay: "09:00", Active: true}
	require.NoError(t, st.CreateSubscription(sub))
	return sub
}

func TestHealthAndVersion(t *testing.T) {
	server, _ := testutil.SetupTestServer(t)
	router := server.Router()

	rr := do(t, router, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var health map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "ok", health["cache"])

	rr = do(t, router, http.MethodGet, "/api/version", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestScheduleAndCancel(t *testing.T) {
	server, ta := testutil.SetupTestServer(t)
	router := server.Router()
	sub := seed(t, ta, "sepsis")

	rr := do(t, router, http.MethodPost, "/api/subscriptions/1/schedule", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var job models.ScheduledJob
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &job))
	assert.Equal(t, sub.ID, job.SubscriptionID)
	assert.True(t, job.RunAt.After(time.Now()))
	assert.Equal(t, 9, job.RunAt.UTC().Hour())

	rr = do(t, router, http.MethodGet, "/api/jobs", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var jobs struct {
		Pending []models.ScheduledJob `json:"pending"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &jobs))
	require.Len(t, jobs.Pending, 1)
	assert.Equal(t, job.Key, jobs.Pending[0].Key)

	rr = do(t, router, http.MethodDelete, "/api/subscriptions/1/schedule", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, ta.App.Scheduler().Pending())
	_, err := ta.App.Store().GetScheduledJob(sub.ID)
	assert.Error(t, err)
}

func TestScheduleErrors(t *testing.T) {
	server, _ := testutil.SetupTestServer(t)
	router := server.Router()

	testCases := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"Unknown subscription", http.MethodPost, "/api/subscriptions/42/schedule", http.StatusNotFound},
		{"Invalid id", http.MethodPost, "/api/subscriptions/abc/schedule", http.StatusBadRequest},
		{"Run unknown subscription", http.MethodPost, "/api/subscriptions/42/run", http.StatusNotFound},
		{"Invalid runs filter", http.MethodGet, "/api/jobs/runs?subscription_id=x", http.StatusBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, router, tc.method, tc.path, nil)
			assert.Equal(t, tc.want, rr.Code, rr.Body.String())
		})
	}
}

func TestRunNowDeliversDigest(t *testing.T) {
	server, ta := testutil.SetupTestServer(t)
	router := server.Router()
	sub := seed(t, ta, "sepsis")
	yesterday := time.Now().AddDate(0, 0, -1)
	ta.Search.Set("sepsis", []models.RawRecord{
		{PMID: "1", Title: "A", Journal: "J", PublishedAt: yesterday},
		{PMID: "2", Title: "B", Journal: "J", PublishedAt: yesterday},
	})

	rr := do(t, router, http.MethodPost, "/api/subscriptions/1/run", nil)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	require.Eventually(t, func() bool {
		runs, err := ta.App.Store().ListJobRuns(sub.ID, 1)
		return err == nil && len(runs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	rr = do(t, router, http.MethodGet, "/api/jobs/runs?subscription_id=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var runs []models.JobOutcome
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, models.JobSuccess, runs[0].Status)
	assert.Equal(t, 2, runs[0].NewArticles)
	require.Len(t, ta.Transport.Sent(), 1)

	// The run re-armed the regular schedule.
	_, err := ta.App.Store().GetScheduledJob(sub.ID)
	assert.NoError(t, err)

	rr = do(t, router, http.MethodGet, "/api/channels", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var channels []struct {
		Name      string `json:"name"`
		SentToday int    `json:"sent_today"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &channels))
	require.Len(t, channels, 1)
	assert.Equal(t, "environment", channels[0].Name)
	assert.Equal(t, 1, channels[0].SentToday)
}

func TestCacheEndpoints(t *testing.T) {
	server, ta := testutil.SetupTestServer(t)
	router := server.Router()
	ctx := t.Context()
	c := ta.App.Cache()
	require.NotNil(t, c)

	p := cache.Params{LookbackDays: 7, MaxResults: 50}
	require.NoError(t, c.Store(ctx, "sepsis", p, []models.RawRecord{{PMID: "1"}}))
	_, err := c.Lookup(ctx, "sepsis", p)
	require.NoError(t, err)

	rr := do(t, router, http.MethodGet, "/api/cache/stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var stats cache.Stats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.ExactHits)

	rr = do(t, router, http.MethodPost, "/api/cache/invalidate", map[string]string{"query": "  SEPSIS "})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var removed map[string]int64
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &removed))
	assert.Equal(t, int64(2), removed["removed"], "relaxed and exact entries")

	res, err := c.Lookup(ctx, "sepsis", p)
	require.NoError(t, err)
	assert.Equal(t, cache.KindMiss, res.Kind)

	rr = do(t, router, http.MethodPost, "/api/cache/invalidate", map[string]string{"query": " "})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
