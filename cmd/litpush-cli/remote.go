package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// errAlreadyRunning is returned when the server reports a run in progress.
var errAlreadyRunning = errors.New("a run is already in progress")

// triggerRun asks a running server to queue an immediate run of the
// subscription and returns the queued job key. The server's worker pool and
// run guard decide whether the run may start.
func triggerRun(ctx context.Context, client *http.Client, baseURL string, id int64) (string, error) {
	url := fmt.Sprintf("%s/api/subscriptions/%d/run", strings.TrimRight(baseURL, "/"), id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("contact server: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		JobKey string `json:"job_key"`
		Error  string `json:"error"`
	}
	// Error bodies are best effort; the status code decides.
	_ = json.NewDecoder(resp.Body).Decode(&body)

	switch resp.StatusCode {
	case http.StatusAccepted:
		return body.JobKey, nil
	case http.StatusConflict:
		return "", fmt.Errorf("subscription %d: %w: %s", id, errAlreadyRunning, body.Error)
	case http.StatusNotFound:
		return "", fmt.Errorf("subscription %d not found", id)
	default:
		return "", fmt.Errorf("server returned %d: %s", resp.StatusCode, body.Error)
	}
}
