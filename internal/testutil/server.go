// Shared test app and server setup, which simplifies all API tests.

package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/vrsandeep/litpush/internal/api"
	"github.com/vrsandeep/litpush/internal/config"
	"github.com/vrsandeep/litpush/internal/core"
	"github.com/vrsandeep/litpush/internal/jobs"
)

// TestApp is a fully wired core.App backed by an in-memory database,
// miniredis and fake search and mail ports.
type TestApp struct {
	App       *core.App
	Search    *FakeSearch
	Transport *FakeTransport
	Redis     *miniredis.Miniredis
}

// TestConfig returns the defaults used by SetupTestApp.
func TestConfig() *config.Config {
	return &config.Config{
		Timezone:  "UTC",
		Cache:     config.CacheConfig{Prefix: "test", BaseTTL: time.Hour, MinTTL: time.Minute, MaxTTL: 2 * time.Hour},
		Scheduler: config.SchedulerConfig{DefaultTime: "09:00", Workers: 2, QueueSize: 16},
		Retention: config.RetentionConfig{Ceiling: 1000, Batch: 100},
		Search:    config.SearchConfig{Timeout: time.Second},
		SMTP:      config.SMTPConfig{Host: "smtp.example.org", Port: 587, From: "digest@example.org", DailyLimit: 100},
	}
}

// SetupTestApp builds and starts an App for integration testing.
func SetupTestApp(t *testing.T) *TestApp {
	t.Helper()
	mr := miniredis.RunT(t)
	ta := &TestApp{
		Search:    &FakeSearch{},
		Transport: &FakeTransport{},
		Redis:     mr,
	}
	app, err := core.Build(TestConfig(), core.Deps{
		DB:        SetupTestDB(t),
		Redis:     redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		Search:    ta.Search,
		Transport: ta.Transport,
		Registry:  jobs.NewGocronRegistry(nil),
	}, nil)
	if err != nil {
		t.Fatalf("Failed to build test app: %v", err)
	}
	t.Cleanup(app.Close)
	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start test app: %v", err)
	}
	ta.App = app
	return ta
}

// SetupTestServer initializes a full core.App and api.Server for integration testing.
func SetupTestServer(t *testing.T) (*api.Server, *TestApp) {
	t.Helper()
	ta := SetupTestApp(t)
	return api.NewServer(ta.App), ta
}
