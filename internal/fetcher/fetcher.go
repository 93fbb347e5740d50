// Package fetcher retrieves change-set content from a source-control host.
package fetcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/reviewd/reviewd/internal/models"
)

var (
	// ErrAuth indicates an invalid or insufficient credential; terminal
	// for the job, never retried
	ErrAuth = errors.New("source host authentication failed")

	// ErrNotFound indicates the repository or change set does not exist
	ErrNotFound = errors.New("repository or change set not found")

	// ErrUpstream indicates a transient host failure (network, rate
	// limit); retried a bounded number of times before escalating
	ErrUpstream = errors.New("source host unavailable")
)

// Fetcher retrieves the list of modified files and their diffs for a
// change set. Implementations must normalize file paths and skip
// binary/non-reviewable files deterministically.
type Fetcher interface {
	Fetch(ctx context.Context, repoRef string, number int, credential string) (*models.ChangeSet, error)
}

// HostError carries the upstream status code alongside the sentinel
type HostError struct {
	Status  int
	Message string
	Err     error
}

func (e *HostError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("source host error %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("source host error: %s", e.Message)
}

func (e *HostError) Unwrap() error { return e.Err }
