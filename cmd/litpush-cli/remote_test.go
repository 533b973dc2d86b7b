package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerRun(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/subscriptions/7/run":
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(`{"message":"Run has been queued.","job_key":"run:7:1"}`))
		case "/api/subscriptions/8/run":
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"error":"run in progress"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"Subscription not found"}`))
		}
	}))
	defer srv.Close()
	ctx := context.Background()

	key, err := triggerRun(ctx, srv.Client(), srv.URL+"/", 7)
	require.NoError(t, err)
	assert.Equal(t, "run:7:1", key)

	_, err = triggerRun(ctx, srv.Client(), srv.URL, 8)
	assert.True(t, errors.Is(err, errAlreadyRunning))

	_, err = triggerRun(ctx, srv.Client(), srv.URL, 9)
	assert.ErrorContains(t, err, "not found")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"POST /api/subscriptions/7/run",
		"POST /api/subscriptions/8/run",
		"POST /api/subscriptions/9/run",
	}, paths)
}

func TestTriggerRunServerDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := triggerRun(context.Background(), http.DefaultClient, url, 1)
	assert.ErrorContains(t, err, "contact server")
}
