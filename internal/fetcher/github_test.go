package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/reviewd/reviewd/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New("error", "text")
}

func newTestGitHub(t *testing.T, handler http.HandlerFunc) *GitHub {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGitHub(GitHubConfig{APIURL: srv.URL, Token: "test-token", MaxRetries: 1}, testLogger())
}

func TestFetch_FiltersAndNormalizes(t *testing.T) {
	g := newTestGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		if r.URL.Path != "/repos/org/repo/pulls/42/files" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[
			{"filename": "src/b.py", "status": "modified", "patch": "@@ -1 +1 @@\n-old\n+new"},
			{"filename": "/src/a.py", "status": "added", "patch": "@@ -0,0 +1 @@\n+print(1)"},
			{"filename": "gone.py", "status": "removed", "patch": "@@ -1 +0,0 @@\n-x"},
			{"filename": "logo.png", "status": "added", "patch": "@@ binary-ish"},
			{"filename": "big.bin", "status": "modified", "patch": ""},
			{"filename": "go.sum", "status": "modified", "patch": "@@ -1 +1 @@\n-a\n+b"}
		]`)
	})

	cs, err := g.Fetch(context.Background(), "org/repo", 42, "")
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if cs.RepoRef != "org/repo" || cs.Number != 42 {
		t.Errorf("change set ref = %s #%d", cs.RepoRef, cs.Number)
	}
	// removed, binary, image, and lockfile entries are dropped; the
	// leading slash is cleaned; files come back sorted by path
	if len(cs.Files) != 2 {
		t.Fatalf("files = %d, want 2: %+v", len(cs.Files), cs.Files)
	}
	if cs.Files[0].Path != "src/a.py" || cs.Files[1].Path != "src/b.py" {
		t.Errorf("file order = %s, %s", cs.Files[0].Path, cs.Files[1].Path)
	}
}

func TestFetch_Pagination(t *testing.T) {
	var pages atomic.Int32
	g := newTestGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		pages.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if page == "1" {
			fmt.Fprint(w, "[")
			for i := 0; i < 100; i++ {
				if i > 0 {
					fmt.Fprint(w, ",")
				}
				fmt.Fprintf(w, `{"filename": "f%03d.py", "status": "modified", "patch": "@@ x"}`, i)
			}
			fmt.Fprint(w, "]")
			return
		}
		fmt.Fprint(w, `[{"filename": "last.py", "status": "modified", "patch": "@@ x"}]`)
	})

	cs, err := g.Fetch(context.Background(), "org/repo", 1, "")
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if pages.Load() != 2 {
		t.Errorf("requests = %d, want 2", pages.Load())
	}
	if len(cs.Files) != 101 {
		t.Errorf("files = %d, want 101", len(cs.Files))
	}
}

func TestFetch_CredentialOverridesConfiguredToken(t *testing.T) {
	g := newTestGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer caller-token" {
			t.Errorf("Authorization = %q, want caller token", got)
		}
		fmt.Fprint(w, `[]`)
	})

	if _, err := g.Fetch(context.Background(), "org/repo", 1, "caller-token"); err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
}

func TestFetch_NoTokenAtAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not reach the host")
	}))
	defer srv.Close()
	g := NewGitHub(GitHubConfig{APIURL: srv.URL}, testLogger())

	_, err := g.Fetch(context.Background(), "org/repo", 1, "")
	if !errors.Is(err, ErrAuth) {
		t.Errorf("Fetch() error = %v, want ErrAuth", err)
	}
}

func TestFetch_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrAuth},
		{"forbidden", http.StatusForbidden, ErrAuth},
		{"not found", http.StatusNotFound, ErrNotFound},
		{"teapot", http.StatusTeapot, ErrUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			g := newTestGitHub(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			})

			_, err := g.Fetch(context.Background(), "org/repo", 1, "")
			if !errors.Is(err, tt.want) {
				t.Errorf("Fetch() error = %v, want %v", err, tt.want)
			}
			if calls.Load() != 1 {
				t.Errorf("calls = %d, non-retryable statuses must not retry", calls.Load())
			}
		})
	}
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	g := newTestGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `[{"filename": "a.py", "status": "modified", "patch": "@@ x"}]`)
	})

	cs, err := g.Fetch(context.Background(), "org/repo", 1, "")
	if err != nil {
		t.Fatalf("Fetch() error after retry: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if len(cs.Files) != 1 {
		t.Errorf("files = %d", len(cs.Files))
	}
}

func TestFetch_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	g := newTestGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := g.Fetch(context.Background(), "org/repo", 1, "")
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("Fetch() error = %v, want ErrUpstream", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want initial attempt plus one retry", calls.Load())
	}
}

func TestParseRepoRef(t *testing.T) {
	tests := []struct {
		in        string
		owner     string
		repo      string
		wantError bool
	}{
		{"org/repo", "org", "repo", false},
		{"  org/repo  ", "org", "repo", false},
		{"https://github.com/org/repo", "org", "repo", false},
		{"https://github.com/org/repo/", "org", "repo", false},
		{"https://github.com/org/repo.git", "org", "repo", false},
		{"http://github.com/org/repo", "org", "repo", false},
		{"repo", "", "", true},
		{"org/repo/extra", "", "", true},
		{"/repo", "", "", true},
		{"", "", "", true},
	}
	for _, tt := range tests {
		owner, repo, err := ParseRepoRef(tt.in)
		if tt.wantError {
			if err == nil {
				t.Errorf("ParseRepoRef(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRepoRef(%q) error: %v", tt.in, err)
			continue
		}
		if owner != tt.owner || repo != tt.repo {
			t.Errorf("ParseRepoRef(%q) = %s/%s, want %s/%s", tt.in, owner, repo, tt.owner, tt.repo)
		}
	}
}
