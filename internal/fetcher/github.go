package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/reviewd/reviewd/internal/models"
	"github.com/reviewd/reviewd/pkg/logger"
)

// extensions never worth sending to a reviewer
var skipExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true,
	".pdf": true, ".zip": true, ".gz": true, ".tar": true, ".jar": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".bin": true,
	".lock": true, ".sum": true,
}

// GitHub fetches pull request change sets via the GitHub REST API
type GitHub struct {
	apiURL     string
	token      string
	maxRetries int
	httpCli    *http.Client
	logger     *logger.Logger
}

// GitHubConfig configures the GitHub fetcher
type GitHubConfig struct {
	APIURL     string
	Token      string
	Timeout    time.Duration
	MaxRetries int
}

// NewGitHub creates a GitHub fetcher
func NewGitHub(cfg GitHubConfig, log *logger.Logger) *GitHub {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://api.github.com"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	return &GitHub{
		apiURL:     apiURL,
		token:      cfg.Token,
		maxRetries: retries,
		httpCli:    &http.Client{Timeout: timeout},
		logger:     log,
	}
}

// prFile is the subset of the pulls/files response the fetcher reads
type prFile struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Patch    string `json:"patch"`
}

// Fetch retrieves the change set for a pull request. The per-file
// unified patch comes from the pulls/files listing; binary files carry
// no patch and are skipped, as are removed files and files with
// non-reviewable extensions.
func (g *GitHub) Fetch(ctx context.Context, repoRef string, number int, credential string) (*models.ChangeSet, error) {
	owner, repo, err := ParseRepoRef(repoRef)
	if err != nil {
		return nil, err
	}

	token := credential
	if token == "" {
		token = g.token
	}
	if token == "" {
		return nil, fmt.Errorf("%w: no token configured", ErrAuth)
	}

	var files []prFile
	page := 1
	for {
		url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/files?per_page=100&page=%d",
			g.apiURL, owner, repo, number, page)

		body, err := g.get(ctx, url, token)
		if err != nil {
			return nil, err
		}

		var batch []prFile
		if err := json.Unmarshal(body, &batch); err != nil {
			return nil, &HostError{Message: "malformed files listing", Err: fmt.Errorf("%w: %v", ErrUpstream, err)}
		}
		files = append(files, batch...)
		if len(batch) < 100 {
			break
		}
		page++
	}

	cs := &models.ChangeSet{RepoRef: owner + "/" + repo, Number: number}
	for _, f := range files {
		if f.Status == "removed" {
			continue
		}
		if f.Patch == "" {
			// binary or too large to diff
			continue
		}
		clean := path.Clean(strings.TrimPrefix(f.Filename, "/"))
		if skipExtensions[strings.ToLower(path.Ext(clean))] {
			continue
		}
		cs.Files = append(cs.Files, models.FileDiff{Path: clean, Patch: f.Patch})
	}

	// The host returns files in a stable order, but sort anyway so the
	// same change set always yields the same file list
	sort.Slice(cs.Files, func(i, j int) bool { return cs.Files[i].Path < cs.Files[j].Path })

	g.logger.Debug("change set fetched",
		"repo", cs.RepoRef,
		"number", number,
		"files_listed", len(files),
		"files_reviewable", len(cs.Files))

	return cs, nil
}

// get performs an authenticated GET with bounded retry on transient
// failures
func (g *GitHub) get(ctx context.Context, url, token string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			g.logger.Warn("retrying source host request",
				"url", url, "attempt", attempt, "backoff", backoff.String())
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		body, retryable, err := g.getOnce(ctx, url, token)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, lastErr
}

func (g *GitHub) getOnce(ctx context.Context, url, token string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := g.httpCli.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, &HostError{Message: "request failed", Err: fmt.Errorf("%w: %v", ErrUpstream, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, &HostError{Message: "reading response", Err: fmt.Errorf("%w: %v", ErrUpstream, err)}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, false, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, false, &HostError{Status: resp.StatusCode, Message: "authentication failed", Err: ErrAuth}
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, &HostError{Status: resp.StatusCode, Message: "not found", Err: ErrNotFound}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, &HostError{Status: resp.StatusCode, Message: string(body), Err: ErrUpstream}
	default:
		return nil, false, &HostError{Status: resp.StatusCode, Message: string(body), Err: ErrUpstream}
	}
}

// ParseRepoRef accepts "owner/repo" or a full GitHub URL and returns the
// owner and repository name
func ParseRepoRef(repoRef string) (owner, repo string, err error) {
	ref := strings.TrimSpace(repoRef)
	ref = strings.TrimPrefix(ref, "https://github.com/")
	ref = strings.TrimPrefix(ref, "http://github.com/")
	ref = strings.Trim(ref, "/")
	ref = strings.TrimSuffix(ref, ".git")

	parts := strings.Split(ref, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository reference %q", repoRef)
	}
	return parts[0], parts[1], nil
}
