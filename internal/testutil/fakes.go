package testutil

import (
	"context"
	"sync"

	"github.com/vrsandeep/litpush/internal/delivery"
	"github.com/vrsandeep/litpush/internal/models"
)

// SentMessage is one message captured by FakeTransport.
type SentMessage struct {
	Creds delivery.Credentials
	Msg   delivery.Message
}

// FakeTransport records messages instead of sending them. When Err is set,
// every Send fails with it.
type FakeTransport struct {
	mu       sync.Mutex
	Err      error
	sent     []SentMessage
	attempts int
}

func (f *FakeTransport) Send(ctx context.Context, creds delivery.Credentials, msg delivery.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.Err != nil {
		return f.Err
	}
	f.sent = append(f.sent, SentMessage{Creds: creds, Msg: msg})
	return nil
}

// SetErr changes the failure returned by later sends.
func (f *FakeTransport) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err = err
}

// Sent returns a copy of the delivered messages.
func (f *FakeTransport) Sent() []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentMessage(nil), f.sent...)
}

// Attempts counts every Send call, failed or not.
func (f *FakeTransport) Attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

// FakeSearch returns canned records per query and counts calls.
type FakeSearch struct {
	mu      sync.Mutex
	Results map[string][]models.RawRecord
	Err     error
	calls   int
}

func (f *FakeSearch) Search(ctx context.Context, query string, lookbackDays, maxResults int) ([]models.RawRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.Err != nil {
		return nil, f.Err
	}
	recs := f.Results[query]
	if maxResults > 0 && len(recs) > maxResults {
		recs = recs[:maxResults]
	}
	return append([]models.RawRecord(nil), recs...), nil
}

// Set replaces the records returned for query.
func (f *FakeSearch) Set(query string, recs []models.RawRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Results == nil {
		f.Results = make(map[string][]models.RawRecord)
	}
	f.Results[query] = recs
}

// SetErr makes later searches fail with err.
func (f *FakeSearch) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err = err
}

// Calls counts Search invocations.
func (f *FakeSearch) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
