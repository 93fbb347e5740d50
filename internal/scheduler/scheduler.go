// Package scheduler runs the worker pool that executes review jobs and
// the watchdog that reaps abandoned ones.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/reviewd/reviewd/internal/fetcher"
	"github.com/reviewd/reviewd/internal/llm"
	"github.com/reviewd/reviewd/internal/models"
	"github.com/reviewd/reviewd/internal/pipeline"
	"github.com/reviewd/reviewd/internal/queue"
	"github.com/reviewd/reviewd/internal/store"
	"github.com/reviewd/reviewd/pkg/logger"
)

// Runner executes the analysis pipeline for one change set
type Runner interface {
	Run(ctx context.Context, cs *models.ChangeSet) (*models.Report, error)
}

// Config contains worker pool settings
type Config struct {
	Workers          int
	JobTimeout       time.Duration
	WatchdogInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.JobTimeout == 0 {
		c.JobTimeout = 10 * time.Minute
	}
	if c.WatchdogInterval == 0 {
		c.WatchdogInterval = 30 * time.Second
	}
	return c
}

// Scheduler dequeues job handles and assigns each to exactly one worker.
// The queue delivers at least once; the store's compare-and-set
// transitions make duplicate delivery a no-op.
type Scheduler struct {
	store   store.Store
	queue   queue.Queue
	fetcher fetcher.Fetcher
	runner  Runner
	cfg     Config
	logger  *logger.Logger
	wg      sync.WaitGroup
}

// New creates a scheduler
func New(st store.Store, q queue.Queue, f fetcher.Fetcher, r Runner, cfg Config, log *logger.Logger) *Scheduler {
	return &Scheduler{
		store:   st,
		queue:   q,
		fetcher: f,
		runner:  r,
		cfg:     cfg.withDefaults(),
		logger:  log,
	}
}

// Start launches the worker pool and the watchdog. Workers run until ctx
// is canceled; call Wait to block until they drain.
func (s *Scheduler) Start(ctx context.Context) {
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
	s.wg.Add(1)
	go s.watchdog(ctx)

	s.logger.Info("scheduler started",
		"workers", s.cfg.Workers,
		"job_timeout", s.cfg.JobTimeout.String(),
		"watchdog_interval", s.cfg.WatchdogInterval.String())
}

// Wait blocks until all workers and the watchdog have stopped
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) worker(ctx context.Context, id int) {
	defer s.wg.Done()
	log := s.logger.With("worker", id)

	for {
		jobID, err := s.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrUnavailable) {
				log.Debug("worker stopping", "reason", err)
				return
			}
			log.Error("dequeue failed", "error", err)
			continue
		}
		s.process(ctx, jobID, log)
	}
}

// process executes one job end to end: PENDING→RUNNING, fetch, pipeline,
// RUNNING→terminal. Exactly one terminal write happens per job; a lost
// compare-and-set means another delivery or the watchdog got there first.
func (s *Scheduler) process(ctx context.Context, jobID string, log *logger.Logger) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		log.Warn("dequeued unknown job", "job_id", jobID, "error", err)
		return
	}

	if _, err := s.store.Apply(ctx, jobID, store.Transition{
		From: models.StatusPending,
		To:   models.StatusRunning,
	}); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			// at-least-once re-delivery of a job another worker owns
			log.Debug("skipping re-delivered job", "job_id", jobID, "status", job.Status)
			return
		}
		log.Error("failed to start job", "job_id", jobID, "error", err)
		return
	}

	log.Info("job started",
		"job_id", jobID,
		"repo", job.Input.RepoRef,
		"change_id", job.Input.ChangeID)

	jctx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	cs, err := s.fetcher.Fetch(jctx, job.Input.RepoRef, job.Input.ChangeID, job.Input.Credential)
	if err != nil {
		s.fail(ctx, jobID, failureReason(err), log)
		return
	}

	report, err := s.runner.Run(jctx, cs)
	if err != nil {
		s.fail(ctx, jobID, failureReason(err), log)
		return
	}

	if _, err := s.store.Apply(ctx, jobID, store.Transition{
		From:   models.StatusRunning,
		To:     models.StatusSuccess,
		Report: report,
	}); err != nil {
		// The watchdog may have timed the job out while we finished
		log.Warn("lost terminal write", "job_id", jobID, "error", err)
		return
	}

	log.Info("job succeeded",
		"job_id", jobID,
		"files", report.Summary.TotalFiles,
		"issues", report.Summary.TotalIssues,
		"critical", report.Summary.CriticalIssues)
}

func (s *Scheduler) fail(ctx context.Context, jobID, reason string, log *logger.Logger) {
	if _, err := s.store.Apply(ctx, jobID, store.Transition{
		From:          models.StatusRunning,
		To:            models.StatusFailure,
		FailureReason: reason,
	}); err != nil {
		log.Warn("lost terminal write", "job_id", jobID, "error", err)
		return
	}
	log.Warn("job failed", "job_id", jobID, "reason", reason)
}

// watchdog periodically forces jobs stuck RUNNING past their deadline to
// FAILURE, so no job stays RUNNING forever
func (s *Scheduler) watchdog(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reap(ctx)
		}
	}
}

func (s *Scheduler) reap(ctx context.Context) {
	jobs, err := s.store.Running(ctx)
	if err != nil {
		s.logger.Error("watchdog scan failed", "error", err)
		return
	}

	// One interval of grace past the job deadline lets the owning
	// worker's own failure write win in the normal case
	cutoff := s.cfg.JobTimeout + s.cfg.WatchdogInterval

	for _, job := range jobs {
		if job.StartedAt == nil || time.Since(*job.StartedAt) < cutoff {
			continue
		}
		if _, err := s.store.Apply(ctx, job.ID, store.Transition{
			From:          models.StatusRunning,
			To:            models.StatusFailure,
			FailureReason: "Timeout: job exceeded deadline",
		}); err != nil {
			continue
		}
		s.logger.Warn("watchdog reaped abandoned job",
			"job_id", job.ID,
			"started_at", job.StartedAt)
	}
}

// failureReason maps an execution error to the job's recorded failure
// reason
func failureReason(err error) string {
	switch {
	case errors.Is(err, fetcher.ErrAuth) || errors.Is(err, llm.ErrAuth):
		return fmt.Sprintf("AuthError: %v", err)
	case errors.Is(err, fetcher.ErrNotFound):
		return fmt.Sprintf("NotFoundError: %v", err)
	case errors.Is(err, fetcher.ErrUpstream):
		return fmt.Sprintf("UpstreamError: %v", err)
	case errors.Is(err, pipeline.ErrAnalysisFailed):
		return fmt.Sprintf("AnalysisFailed: %v", err)
	case errors.Is(err, context.DeadlineExceeded):
		return "Timeout: job exceeded deadline"
	default:
		return err.Error()
	}
}
