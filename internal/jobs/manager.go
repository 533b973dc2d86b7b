package jobs

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrAlreadyRunning is returned by Begin when the subscription has a run in progress.
var ErrAlreadyRunning = errors.New("a run is already in progress for this subscription")

// JobStatus is the live status of one subscription's runs.
type JobStatus struct {
	SubscriptionID int64     `json:"subscription_id"`
	Status         string    `json:"status"` // "idle", "queued", "running", "success", "failed"
	Message        string    `json:"message"`
	StartTime      time.Time `json:"start_time,omitempty"`
	EndTime        time.Time `json:"end_time,omitempty"`
}

// Manager tracks which subscriptions are running and how their last run ended.
type Manager struct {
	mu     sync.Mutex
	status map[int64]*JobStatus
}

func NewManager() *Manager {
	return &Manager{status: make(map[int64]*JobStatus)}
}

func (m *Manager) get(id int64) *JobStatus {
	s, ok := m.status[id]
	if !ok {
		s = &JobStatus{SubscriptionID: id, Status: "idle"}
		m.status[id] = s
	}
	return s
}

// Queued marks a run as accepted by the pool but not started.
func (m *Manager) Queued(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.get(id)
	if s.Status == "running" || s.Status == "queued" {
		return ErrAlreadyRunning
	}
	s.Status = "queued"
	s.Message = "Waiting for a worker..."
	return nil
}

// Begin marks a run as started.
func (m *Manager) Begin(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.get(id)
	s.Status = "running"
	s.Message = "Run started..."
	s.StartTime = time.Now()
	s.EndTime = time.Time{}
}

// Finish records the end of a run. A nil err means success.
func (m *Manager) Finish(id int64, message string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.get(id)
	s.EndTime = time.Now()
	if err != nil {
		s.Status = "failed"
		s.Message = err.Error()
		return
	}
	s.Status = "success"
	s.Message = message
}

// Release resets a queued run that never started, e.g. after a rejected submit.
func (m *Manager) Release(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.get(id); s.Status == "queued" {
		s.Status = "idle"
		s.Message = ""
	}
}

// GetStatus returns a snapshot ordered by subscription id.
func (m *Manager) GetStatus() []JobStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	statuses := make([]JobStatus, 0, len(m.status))
	for _, s := range m.status {
		statuses = append(statuses, *s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].SubscriptionID < statuses[j].SubscriptionID })
	return statuses
}
