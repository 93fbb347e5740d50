package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/reviewd/reviewd/internal/models"
)

// Memory is an in-process job store. Jobs live for the process lifetime.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]*models.Job)}
}

// Create allocates a fresh job in status PENDING
func (m *Memory) Create(ctx context.Context, input models.JobInput) (*models.Job, error) {
	job := &models.Job{
		ID:          uuid.NewString(),
		Status:      models.StatusPending,
		Input:       input,
		SubmittedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	return copyJob(job), nil
}

// Get returns a copy of the job, or ErrNotFound
func (m *Memory) Get(ctx context.Context, id string) (*models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyJob(job), nil
}

// Apply performs a compare-and-set transition
func (m *Memory) Apply(ctx context.Context, id string, t Transition) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if job.Status.Terminal() || job.Status != t.From {
		return nil, ErrInvalidTransition
	}

	now := time.Now().UTC()
	job.Status = t.To
	switch {
	case t.To == models.StatusRunning:
		job.StartedAt = &now
	case t.To.Terminal():
		job.CompletedAt = &now
		job.Report = t.Report
		job.FailureReason = t.FailureReason
	}

	return copyJob(job), nil
}

// Running returns all jobs currently in status RUNNING
func (m *Memory) Running(ctx context.Context) ([]*models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var running []*models.Job
	for _, job := range m.jobs {
		if job.Status == models.StatusRunning {
			running = append(running, copyJob(job))
		}
	}
	return running, nil
}

// Close implements Store
func (m *Memory) Close() error { return nil }

// copyJob returns a caller-owned copy so no caller aliases the canonical
// record. The attached Report is immutable by contract and shared.
func copyJob(job *models.Job) *models.Job {
	c := *job
	if job.StartedAt != nil {
		t := *job.StartedAt
		c.StartedAt = &t
	}
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
