package models

import "time"

// JobStatus represents the lifecycle state of a review job
type JobStatus string

const (
	StatusPending JobStatus = "PENDING"
	StatusRunning JobStatus = "RUNNING"
	StatusSuccess JobStatus = "SUCCESS"
	StatusFailure JobStatus = "FAILURE"
)

// Terminal reports whether the status permits no further transitions
func (s JobStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// JobInput identifies the change set a job reviews
type JobInput struct {
	RepoRef  string `json:"repo_ref"`
	ChangeID int    `json:"change_id"`
	// Credential is an optional per-job source-control token.
	// Never included in API responses.
	Credential string `json:"-"`
}

// Job is the canonical lifecycle record for one review request.
// The store owns the record; callers hold only the ID and re-read to
// observe current state.
type Job struct {
	ID          string     `json:"job_id"`
	Status      JobStatus  `json:"status"`
	Input       JobInput   `json:"input"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Report is set only when Status is SUCCESS
	Report *Report `json:"report,omitempty"`
	// FailureReason is set only when Status is FAILURE
	FailureReason string `json:"failure_reason,omitempty"`
}

// FileDiff is one modified file within a change set
type FileDiff struct {
	Path  string `json:"path"`
	Patch string `json:"patch"`
}

// ChangeSet is the fetched, filtered content of a change set.
// Read-only after the fetcher produces it.
type ChangeSet struct {
	RepoRef string     `json:"repo_ref"`
	Number  int        `json:"number"`
	Files   []FileDiff `json:"files"`
}

// Category classifies a finding
type Category string

const (
	CategoryBug         Category = "bug"
	CategorySecurity    Category = "security"
	CategoryPerformance Category = "performance"
	CategoryStyle       Category = "style"
)

// Finding is a single reported issue within a file
type Finding struct {
	Type        Category `json:"type"`
	Line        int      `json:"line,omitempty"`
	Description string   `json:"description"`
	Suggestion  string   `json:"suggestion,omitempty"`
	// Critical marks bug/security findings the stage flagged as critical
	Critical bool `json:"critical,omitempty"`
}

// FileFindings groups the findings for one file, in stage order
type FileFindings struct {
	Name   string    `json:"name"`
	Issues []Finding `json:"issues"`
}

// Summary holds aggregate counts for a report
type Summary struct {
	TotalFiles     int `json:"total_files"`
	TotalIssues    int `json:"total_issues"`
	CriticalIssues int `json:"critical_issues"`
}

// Report is the aggregated review result attached to a successful job.
// Immutable once attached.
type Report struct {
	Files   []FileFindings `json:"files"`
	Summary Summary        `json:"summary"`
	// Warnings records stages that failed for individual files without
	// failing the job
	Warnings []string `json:"warnings,omitempty"`
}
