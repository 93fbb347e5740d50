// Package store holds job lifecycle state. The store is the only mutable
// state shared between the submission path, the worker pool, and the
// polling path; its sole mutation primitive is an atomic compare-and-set
// transition, which makes duplicate queue delivery safe by construction.
package store

import (
	"context"
	"errors"

	"github.com/reviewd/reviewd/internal/models"
)

var (
	// ErrNotFound indicates the requested job doesn't exist
	ErrNotFound = errors.New("job not found")
	// ErrInvalidTransition indicates the job's current status does not
	// permit the requested transition
	ErrInvalidTransition = errors.New("invalid job transition")
)

// Transition describes an atomic status change. From must match the
// job's current status for the change to apply. Report is attached on
// transitions to SUCCESS, FailureReason on transitions to FAILURE.
type Transition struct {
	From          models.JobStatus
	To            models.JobStatus
	Report        *models.Report
	FailureReason string
}

// Store is the job store contract. Every successful mutation is visible
// to subsequent Get calls by any caller.
type Store interface {
	// Create allocates a fresh job with a unique handle in status PENDING
	Create(ctx context.Context, input models.JobInput) (*models.Job, error)

	// Get returns a copy of the job, or ErrNotFound
	Get(ctx context.Context, id string) (*models.Job, error)

	// Apply performs the transition atomically and returns the updated
	// job. Returns ErrInvalidTransition if the current status does not
	// match t.From or is already terminal.
	Apply(ctx context.Context, id string, t Transition) (*models.Job, error)

	// Running returns all jobs currently in status RUNNING, for the
	// scheduler's watchdog
	Running(ctx context.Context) ([]*models.Job, error)

	// Close releases any backing resources
	Close() error
}
