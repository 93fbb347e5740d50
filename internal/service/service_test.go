package service

import (
	"context"
	"errors"
	"testing"

	"github.com/reviewd/reviewd/internal/models"
	"github.com/reviewd/reviewd/internal/queue"
	"github.com/reviewd/reviewd/internal/store"
	"github.com/reviewd/reviewd/pkg/logger"
)

func newTestService(queueSize int) (*Service, store.Store, *queue.Memory) {
	st := store.NewMemory()
	q := queue.NewMemory(queueSize)
	return NewService(st, q, logger.New("error", "text")), st, q
}

func TestSubmitJob(t *testing.T) {
	svc, _, q := newTestService(8)
	ctx := context.Background()

	job, err := svc.SubmitJob(ctx, "org/repo", 42, "ghp_token")
	if err != nil {
		t.Fatalf("SubmitJob() error: %v", err)
	}
	if job.Status != models.StatusPending {
		t.Errorf("status = %s, want PENDING", job.Status)
	}
	if job.Input.Credential != "ghp_token" {
		t.Error("credential not carried on the job input")
	}

	// The handle must be on the queue for the workers
	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue() error: %v", err)
	}
	if got != job.ID {
		t.Errorf("enqueued handle = %s, want %s", got, job.ID)
	}
}

func TestSubmitJob_AcceptsFullURL(t *testing.T) {
	svc, _, _ := newTestService(8)

	job, err := svc.SubmitJob(context.Background(), "https://github.com/org/repo", 1, "")
	if err != nil {
		t.Fatalf("SubmitJob() error: %v", err)
	}
	if job.Input.RepoRef != "https://github.com/org/repo" {
		t.Errorf("RepoRef = %q, submission stores the reference as given", job.Input.RepoRef)
	}
}

func TestSubmitJob_Validation(t *testing.T) {
	svc, _, _ := newTestService(8)
	ctx := context.Background()

	tests := []struct {
		name     string
		repoRef  string
		changeID int
	}{
		{"missing repo", "", 1},
		{"malformed repo", "just-a-name", 1},
		{"zero change id", "org/repo", 0},
		{"negative change id", "org/repo", -5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SubmitJob(ctx, tt.repoRef, tt.changeID, "")
			if !errors.Is(err, ErrValidation) {
				t.Errorf("SubmitJob() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestSubmitJob_QueueFullRollsBack(t *testing.T) {
	svc, st, _ := newTestService(1)
	ctx := context.Background()

	// Fill the queue
	first, err := svc.SubmitJob(ctx, "org/repo", 1, "")
	if err != nil {
		t.Fatalf("first SubmitJob() error: %v", err)
	}

	second, err := svc.SubmitJob(ctx, "org/repo", 2, "")
	if !errors.Is(err, queue.ErrUnavailable) {
		t.Fatalf("second SubmitJob() error = %v, want ErrUnavailable", err)
	}
	if second != nil {
		t.Error("SubmitJob() returned a job despite enqueue failure")
	}

	// The first job is untouched, the second is rolled back to FAILURE
	got, _ := st.Get(ctx, first.ID)
	if got.Status != models.StatusPending {
		t.Errorf("first job status = %s", got.Status)
	}

	// Find the rolled-back record: it's the only non-PENDING job
	running, _ := st.Running(ctx)
	if len(running) != 0 {
		t.Errorf("running jobs = %v", running)
	}
}

func TestGetStatus_UnknownHandle(t *testing.T) {
	svc, _, _ := newTestService(8)

	_, err := svc.GetStatus(context.Background(), "nonexistent")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetStatus() error = %v, want ErrNotFound", err)
	}
}

func TestGetResult_CarriesReport(t *testing.T) {
	svc, st, _ := newTestService(8)
	ctx := context.Background()

	job, _ := svc.SubmitJob(ctx, "org/repo", 1, "")
	st.Apply(ctx, job.ID, store.Transition{From: models.StatusPending, To: models.StatusRunning})
	st.Apply(ctx, job.ID, store.Transition{
		From:   models.StatusRunning,
		To:     models.StatusSuccess,
		Report: &models.Report{Summary: models.Summary{TotalFiles: 2, TotalIssues: 3}},
	})

	got, err := svc.GetResult(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetResult() error: %v", err)
	}
	if got.Status != models.StatusSuccess || got.Report == nil {
		t.Fatalf("result = %+v", got)
	}
	if got.Report.Summary.TotalIssues != 3 {
		t.Errorf("summary = %+v", got.Report.Summary)
	}
}

func TestHealthCheck(t *testing.T) {
	svc, _, _ := newTestService(8)

	health := svc.HealthCheck(context.Background())
	if health["status"] != "healthy" {
		t.Errorf("status = %v", health["status"])
	}
	checks, ok := health["checks"].(map[string]interface{})
	if !ok {
		t.Fatalf("checks = %T", health["checks"])
	}
	if _, ok := checks["store"]; !ok {
		t.Error("store check missing")
	}
}
