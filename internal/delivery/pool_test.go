package delivery_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/litpush/internal/config"
	"github.com/vrsandeep/litpush/internal/delivery"
	"github.com/vrsandeep/litpush/internal/models"
	"github.com/vrsandeep/litpush/internal/store"
	"github.com/vrsandeep/litpush/internal/testutil"
)

func newPool(t *testing.T, transport delivery.Transport, now *time.Time, channels ...models.DeliveryChannel) (*delivery.Pool, *store.Store) {
	t.Helper()
	st := store.New(testutil.SetupTestDB(t), nil)
	for i := range channels {
		require.NoError(t, st.CreateChannel(&channels[i]))
	}
	p := delivery.NewPool(st, transport, config.SMTPConfig{}, time.UTC, nil)
	p.SetClock(func() time.Time { return *now })
	return p, st
}

func channel(name string, limit int) models.DeliveryChannel {
	return models.DeliveryChannel{Name: name, Host: "smtp." + name + ".example.org", Port: 587, Username: name + "@example.org", DailyLimit: limit, Active: true}
}

func TestDailyLimit(t *testing.T) {
	now := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	transport := &testutil.FakeTransport{}
	p, _ := newPool(t, transport, &now, channel("only", 2))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		name, err := p.Send(ctx, "reader@example.org", "s", "<p>h</p>", "h")
		require.NoError(t, err)
		assert.Equal(t, "only", name)
	}
	_, err := p.Send(ctx, "reader@example.org", "s", "<p>h</p>", "h")
	assert.ErrorIs(t, err, delivery.ErrNoChannelAvailable)
	assert.Len(t, transport.Sent(), 2)

	// The next day the counter starts over.
	now = now.Add(24 * time.Hour)
	name, err := p.Send(ctx, "reader@example.org", "s", "<p>h</p>", "h")
	require.NoError(t, err)
	assert.Equal(t, "only", name)

	status, err := p.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status, 1)
	assert.Equal(t, 1, status[0].SentToday)
	assert.Equal(t, 1, status[0].Remaining)
}

func TestLeastRecentlyUsedRotation(t *testing.T) {
	now := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	p, _ := newPool(t, &testutil.FakeTransport{}, &now, channel("a", 10), channel("b", 10))
	ctx := context.Background()

	var names []string
	for i := 0; i < 4; i++ {
		now = now.Add(time.Minute)
		name, err := p.Send(ctx, "reader@example.org", "s", "", "t")
		require.NoError(t, err)
		names = append(names, name)
	}
	assert.Equal(t, []string{"a", "b", "a", "b"}, names)
}

func TestExhaustedChannelFallsThrough(t *testing.T) {
	now := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	p, _ := newPool(t, &testutil.FakeTransport{}, &now, channel("small", 1), channel("big", 5))
	ctx := context.Background()

	first, err := p.Send(ctx, "r@example.org", "s", "", "t")
	require.NoError(t, err)
	now = now.Add(time.Minute)
	second, err := p.Send(ctx, "r@example.org", "s", "", "t")
	require.NoError(t, err)
	now = now.Add(time.Minute)
	third, err := p.Send(ctx, "r@example.org", "s", "", "t")
	require.NoError(t, err)

	assert.Equal(t, "small", first)
	assert.Equal(t, "big", second)
	assert.Equal(t, "big", third, "small is exhausted")
}

func TestTransportFailureDoesNotConsumeQuota(t *testing.T) {
	now := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	transport := &testutil.FakeTransport{Err: errors.New("connection refused")}
	p, st := newPool(t, transport, &now, channel("a", 1), channel("b", 1))

	_, err := p.Send(context.Background(), "r@example.org", "s", "", "t")
	require.Error(t, err)
	assert.NotErrorIs(t, err, delivery.ErrNoChannelAvailable)
	assert.Equal(t, 1, transport.Attempts(), "other channels are not retried")

	chans, err := st.ListChannels(true)
	require.NoError(t, err)
	for _, ch := range chans {
		assert.Equal(t, 0, ch.SentToday, ch.Name)
		assert.Nil(t, ch.LastUsedAt, ch.Name)
	}

	transport.SetErr(nil)
	_, err = p.Send(context.Background(), "r@example.org", "s", "", "t")
	assert.NoError(t, err)
}

func TestConcurrentSendsNeverExceedLimit(t *testing.T) {
	now := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	transport := &testutil.FakeTransport{}
	p, st := newPool(t, transport, &now, channel("a", 3), channel("b", 2))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, exhausted int
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Send(context.Background(), "r@example.org", "s", "", "t")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, delivery.ErrNoChannelAvailable):
				exhausted++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, ok)
	assert.Equal(t, 7, exhausted)
	assert.Len(t, transport.Sent(), 5)

	chans, err := st.ListChannels(true)
	require.NoError(t, err)
	for _, ch := range chans {
		assert.Equal(t, ch.DailyLimit, ch.SentToday, ch.Name)
	}
}

func TestSendWithoutRecipient(t *testing.T) {
	now := time.Now()
	p, _ := newPool(t, &testutil.FakeTransport{}, &now, channel("a", 1))
	_, err := p.Send(context.Background(), "", "s", "", "t")
	assert.ErrorIs(t, err, delivery.ErrNoRecipient)
}

func TestResolveProvidersEnsuresEnvironmentChannel(t *testing.T) {
	st := store.New(testutil.SetupTestDB(t), nil)
	smtp := config.SMTPConfig{Host: "smtp.env.example.org", Port: 2525, Username: "env", Password: "pw", DailyLimit: 1}

	require.NoError(t, delivery.ResolveProviders(st, smtp, nil))
	require.NoError(t, delivery.ResolveProviders(st, smtp, nil))
	chans, err := st.ListChannels(true)
	require.NoError(t, err)
	require.Len(t, chans, 1)
	assert.Equal(t, delivery.EnvironmentChannel, chans[0].Name)
	assert.Empty(t, chans[0].Password, "environment secrets are not persisted")

	transport := &testutil.FakeTransport{}
	p := delivery.NewPool(st, transport, smtp, time.UTC, nil)
	_, err = p.Send(context.Background(), "r@example.org", "s", "", "t")
	require.NoError(t, err)
	sent := transport.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "smtp.env.example.org", sent[0].Creds.Host)
	assert.Equal(t, "pw", sent[0].Creds.Password)

	_, err = p.Send(context.Background(), "r@example.org", "s", "", "t")
	assert.ErrorIs(t, err, delivery.ErrNoChannelAvailable, "environment channel quota is tracked")
}

func TestResolveProvidersKeepsConfiguredChannels(t *testing.T) {
	st := store.New(testutil.SetupTestDB(t), nil)
	ch := channel("db", 5)
	require.NoError(t, st.CreateChannel(&ch))

	require.NoError(t, delivery.ResolveProviders(st, config.SMTPConfig{Host: "smtp.env.example.org"}, nil))
	chans, err := st.ListChannels(false)
	require.NoError(t, err)
	require.Len(t, chans, 1)
	assert.Equal(t, "db", chans[0].Name)
}

// gateTransport holds the first Send until release is closed.
type gateTransport struct {
	mu       sync.Mutex
	attempts int
	hosts    []string
	entered  chan struct{}
	release  chan struct{}
}

func (g *gateTransport) Send(ctx context.Context, creds delivery.Credentials, msg delivery.Message) error {
	g.mu.Lock()
	g.attempts++
	first := g.attempts == 1
	g.hosts = append(g.hosts, creds.Host)
	g.mu.Unlock()
	if first {
		close(g.entered)
		<-g.release
	}
	return nil
}

func (g *gateTransport) Attempts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attempts
}

func TestBusyLeastRecentlyUsedChannelIsWaitedFor(t *testing.T) {
	now := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	gate := &gateTransport{entered: make(chan struct{}), release: make(chan struct{})}
	// Neither channel has been used; a comes first by id.
	p, _ := newPool(t, gate, &now, channel("a", 10), channel("b", 10))
	ctx := context.Background()

	names := make([]string, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		names[0], _ = p.Send(ctx, "r1@example.org", "s", "", "t")
	}()
	<-gate.entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		names[1], _ = p.Send(ctx, "r2@example.org", "s", "", "t")
	}()

	assert.Never(t, func() bool { return gate.Attempts() > 1 }, 100*time.Millisecond, 5*time.Millisecond,
		"second send waits for the least recently used channel instead of jumping to b")
	close(gate.release)
	wg.Wait()

	assert.Equal(t, []string{"a", "a"}, names)
}
