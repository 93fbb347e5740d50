package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/reviewd/reviewd/internal/fetcher"
	"github.com/reviewd/reviewd/internal/models"
	"github.com/reviewd/reviewd/internal/queue"
	"github.com/reviewd/reviewd/internal/store"
	"github.com/reviewd/reviewd/pkg/logger"
)

// ErrValidation indicates a malformed submission; no job is created
var ErrValidation = errors.New("invalid review request")

// Service coordinates business logic between the API and the job
// store/queue. Submission only records and enqueues; execution happens
// on the worker pool and callers observe progress by polling.
type Service struct {
	store  store.Store
	queue  queue.Queue
	logger *logger.Logger
}

// NewService creates a new service instance
func NewService(st store.Store, q queue.Queue, log *logger.Logger) *Service {
	return &Service{store: st, queue: q, logger: log}
}

// getLogger retrieves the request-scoped logger from context or falls
// back to the service logger
func (s *Service) getLogger(ctx context.Context) *logger.Logger {
	if ctxLogger := logger.FromContext(ctx); ctxLogger != nil {
		return ctxLogger
	}
	return s.logger
}

// SubmitJob validates the request, creates the job record, and enqueues
// it. Job creation and enqueue are one logical operation: when the
// enqueue fails, the fresh record is rolled back to FAILURE rather than
// left dangling in PENDING.
func (s *Service) SubmitJob(ctx context.Context, repoRef string, changeID int, credential string) (*models.Job, error) {
	log := s.getLogger(ctx)

	if _, _, err := fetcher.ParseRepoRef(repoRef); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if changeID <= 0 {
		return nil, fmt.Errorf("%w: change-set number must be positive", ErrValidation)
	}

	job, err := s.store.Create(ctx, models.JobInput{
		RepoRef:    repoRef,
		ChangeID:   changeID,
		Credential: credential,
	})
	if err != nil {
		log.Error("service: job creation failed", "repo", repoRef, "error", err)
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := s.queue.Enqueue(ctx, job.ID); err != nil {
		log.Error("service: enqueue failed, rolling back job",
			"job_id", job.ID,
			"error", err)
		if _, rbErr := s.store.Apply(ctx, job.ID, store.Transition{
			From:          models.StatusPending,
			To:            models.StatusFailure,
			FailureReason: "QueueUnavailable: job could not be scheduled",
		}); rbErr != nil {
			log.Error("service: rollback failed", "job_id", job.ID, "error", rbErr)
		}
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	log.Info("service: job submitted",
		"job_id", job.ID,
		"repo", repoRef,
		"change_id", changeID)

	return job, nil
}

// GetStatus returns the job's current status
func (s *Service) GetStatus(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		s.getLogger(ctx).Debug("service: job lookup failed", "job_id", jobID, "error", err)
		return nil, err
	}
	return job, nil
}

// GetResult returns the job with its report or failure reason. The
// report is present only when the job reached SUCCESS; a non-terminal
// job returns its status alone.
func (s *Service) GetResult(ctx context.Context, jobID string) (*models.Job, error) {
	return s.GetStatus(ctx, jobID)
}

// HealthCheck reports component health for the health endpoint
func (s *Service) HealthCheck(ctx context.Context) map[string]interface{} {
	health := map[string]interface{}{
		"status":  "healthy",
		"service": "reviewd-gateway",
		"checks":  make(map[string]interface{}),
	}
	checks := health["checks"].(map[string]interface{})

	storeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := s.store.Get(storeCtx, "health-probe"); err != nil && !errors.Is(err, store.ErrNotFound) {
		checks["store"] = map[string]interface{}{"status": "unhealthy", "error": err.Error()}
		health["status"] = "degraded"
	} else {
		checks["store"] = map[string]interface{}{"status": "healthy"}
	}

	checks["queue"] = map[string]interface{}{"status": "healthy"}

	return health
}
