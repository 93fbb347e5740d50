package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestJobStatus_Terminal(t *testing.T) {
	tests := []struct {
		status JobStatus
		want   bool
	}{
		{StatusPending, false},
		{StatusRunning, false},
		{StatusSuccess, true},
		{StatusFailure, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestJob_CredentialNeverSerialized(t *testing.T) {
	job := Job{
		ID:     "abc",
		Status: StatusPending,
		Input: JobInput{
			RepoRef:    "org/repo",
			ChangeID:   1,
			Credential: "ghp_supersecret",
		},
	}

	data, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if strings.Contains(string(data), "ghp_supersecret") {
		t.Errorf("credential leaked: %s", data)
	}
	if !strings.Contains(string(data), `"job_id":"abc"`) {
		t.Errorf("job handle field: %s", data)
	}
}
