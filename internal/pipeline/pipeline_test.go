package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/reviewd/reviewd/internal/llm"
	"github.com/reviewd/reviewd/internal/models"
	"github.com/reviewd/reviewd/internal/stage"
	"github.com/reviewd/reviewd/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New("error", "text")
}

// scriptedStage returns per-file canned findings or errors, with an
// optional random delay to shake up completion order
type scriptedStage struct {
	name     string
	category models.Category
	findings map[string][]models.Finding
	errs     map[string]error
	jitter   time.Duration
}

func (s *scriptedStage) Name() string { return s.name }

func (s *scriptedStage) Analyze(ctx context.Context, file models.FileDiff) ([]models.Finding, error) {
	if s.jitter > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(rand.Int63n(int64(s.jitter)))):
		}
	}
	if err := s.errs[file.Path]; err != nil {
		return nil, err
	}
	return s.findings[file.Path], nil
}

func finding(cat models.Category, line int, desc string, critical bool) models.Finding {
	return models.Finding{Type: cat, Line: line, Description: desc, Critical: critical}
}

func changeSet(paths ...string) *models.ChangeSet {
	cs := &models.ChangeSet{RepoRef: "org/repo", Number: 1}
	for _, p := range paths {
		cs.Files = append(cs.Files, models.FileDiff{Path: p, Patch: "@@ -1 +1 @@\n+x"})
	}
	return cs
}

func TestRun_SingleFileSingleFinding(t *testing.T) {
	bug := &scriptedStage{
		name: "bug", category: models.CategoryBug,
		findings: map[string][]models.Finding{
			"main.py": {finding(models.CategoryBug, 42, "Possible unhandled exception", false)},
		},
	}
	c := New([]stage.Stage{bug}, 4, testLogger())

	report, err := c.Run(context.Background(), changeSet("main.py"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(report.Files) != 1 || report.Files[0].Name != "main.py" {
		t.Fatalf("files = %+v", report.Files)
	}
	issues := report.Files[0].Issues
	if len(issues) != 1 || issues[0].Line != 42 || issues[0].Description != "Possible unhandled exception" {
		t.Errorf("issues = %+v", issues)
	}
	want := models.Summary{TotalFiles: 1, TotalIssues: 1, CriticalIssues: 0}
	if report.Summary != want {
		t.Errorf("summary = %+v, want %+v", report.Summary, want)
	}
	if len(report.Warnings) != 0 {
		t.Errorf("warnings = %v", report.Warnings)
	}
}

func TestRun_DeterministicOrderUnderConcurrency(t *testing.T) {
	files := []string{"a.py", "b.py", "c.py", "d.py"}
	stages := []stage.Stage{
		&scriptedStage{name: "bug", jitter: 5 * time.Millisecond, findings: map[string][]models.Finding{
			"a.py": {finding(models.CategoryBug, 1, "bug in a", false)},
			"c.py": {finding(models.CategoryBug, 3, "bug in c", false)},
		}},
		&scriptedStage{name: "security", jitter: 5 * time.Millisecond, findings: map[string][]models.Finding{
			"a.py": {finding(models.CategorySecurity, 2, "leak in a", true)},
			"d.py": {finding(models.CategorySecurity, 9, "leak in d", false)},
		}},
	}
	c := New(stages, 3, testLogger())

	var first *models.Report
	for run := 0; run < 5; run++ {
		report, err := c.Run(context.Background(), changeSet(files...))
		if err != nil {
			t.Fatalf("Run() #%d error: %v", run, err)
		}
		if first == nil {
			first = report
			continue
		}
		if !reflect.DeepEqual(report, first) {
			t.Fatalf("run #%d produced a different report:\n%+v\nvs\n%+v", run, report, first)
		}
	}

	// File order follows the change set; within a file, stage order
	if got := []string{first.Files[0].Name, first.Files[1].Name, first.Files[2].Name, first.Files[3].Name}; !reflect.DeepEqual(got, files) {
		t.Errorf("file order = %v", got)
	}
	a := first.Files[0].Issues
	if len(a) != 2 || a[0].Type != models.CategoryBug || a[1].Type != models.CategorySecurity {
		t.Errorf("a.py issues out of stage order: %+v", a)
	}
	// Files with no findings still appear, with an empty issue list
	if first.Files[1].Issues == nil || len(first.Files[1].Issues) != 0 {
		t.Errorf("b.py issues = %+v, want empty", first.Files[1].Issues)
	}
}

func TestRun_DeduplicatesAcrossStages(t *testing.T) {
	// Two stages report the same issue with cosmetic phrasing differences
	s1 := &scriptedStage{name: "bug", findings: map[string][]models.Finding{
		"main.py": {finding(models.CategoryBug, 10, "Unchecked  error return.", false)},
	}}
	s2 := &scriptedStage{name: "second", findings: map[string][]models.Finding{
		"main.py": {
			finding(models.CategoryBug, 10, "unchecked error return", true),
			finding(models.CategoryBug, 11, "unchecked error return", false),
			finding(models.CategorySecurity, 10, "unchecked error return", false),
		},
	}}
	c := New([]stage.Stage{s1, s2}, 4, testLogger())

	report, err := c.Run(context.Background(), changeSet("main.py"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	issues := report.Files[0].Issues
	// Same line + category + normalized description collapses; a different
	// line or category does not
	if len(issues) != 3 {
		t.Fatalf("issues = %+v, want 3", issues)
	}
	// First occurrence wins
	if issues[0].Critical {
		t.Error("dedup kept the later duplicate instead of the first")
	}
	if report.Summary.TotalIssues != 3 {
		t.Errorf("TotalIssues = %d", report.Summary.TotalIssues)
	}
}

func TestRun_PartialStageFailureIsAWarning(t *testing.T) {
	ok := &scriptedStage{name: "bug", findings: map[string][]models.Finding{
		"main.py": {finding(models.CategoryBug, 5, "real issue", false)},
	}}
	broken := &scriptedStage{name: "security", errs: map[string]error{
		"main.py": errors.New("invalid findings JSON"),
	}}
	c := New([]stage.Stage{ok, broken}, 4, testLogger())

	report, err := c.Run(context.Background(), changeSet("main.py"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(report.Files[0].Issues) != 1 {
		t.Errorf("issues = %+v", report.Files[0].Issues)
	}
	if len(report.Warnings) != 1 || !strings.Contains(report.Warnings[0], "stage security failed for main.py") {
		t.Errorf("warnings = %v", report.Warnings)
	}
}

func TestRun_AllStagesFailAllFiles(t *testing.T) {
	failure := errors.New("invalid findings JSON")
	s1 := &scriptedStage{name: "bug", errs: map[string]error{"a.py": failure, "b.py": failure}}
	s2 := &scriptedStage{name: "security", errs: map[string]error{"a.py": failure, "b.py": failure}}
	c := New([]stage.Stage{s1, s2}, 4, testLogger())

	_, err := c.Run(context.Background(), changeSet("a.py", "b.py"))
	if !errors.Is(err, ErrAnalysisFailed) {
		t.Errorf("Run() error = %v, want ErrAnalysisFailed", err)
	}
}

func TestRun_AuthErrorEscalates(t *testing.T) {
	ok := &scriptedStage{name: "bug", findings: map[string][]models.Finding{}}
	auth := &scriptedStage{name: "security", errs: map[string]error{
		"main.py": fmt.Errorf("security stage: %w", llm.ErrAuth),
	}}
	c := New([]stage.Stage{ok, auth}, 4, testLogger())

	_, err := c.Run(context.Background(), changeSet("main.py"))
	if !errors.Is(err, llm.ErrAuth) {
		t.Errorf("Run() error = %v, want ErrAuth escalated", err)
	}
}

func TestRun_EmptyChangeSet(t *testing.T) {
	c := New([]stage.Stage{&scriptedStage{name: "bug"}}, 4, testLogger())

	report, err := c.Run(context.Background(), changeSet())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if report.Summary.TotalFiles != 0 || report.Summary.TotalIssues != 0 {
		t.Errorf("summary = %+v", report.Summary)
	}
}

func TestRun_CriticalCountsBugAndSecurityOnly(t *testing.T) {
	s := &scriptedStage{name: "mixed", findings: map[string][]models.Finding{
		"main.py": {
			finding(models.CategoryBug, 1, "critical bug", true),
			finding(models.CategorySecurity, 2, "critical hole", true),
			finding(models.CategoryPerformance, 3, "critical slowness", true),
			finding(models.CategoryStyle, 4, "critical naming", true),
		},
	}}
	c := New([]stage.Stage{s}, 4, testLogger())

	report, err := c.Run(context.Background(), changeSet("main.py"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if report.Summary.CriticalIssues != 2 {
		t.Errorf("CriticalIssues = %d, want 2 (bug and security only)", report.Summary.CriticalIssues)
	}
	if report.Summary.TotalIssues != 4 {
		t.Errorf("TotalIssues = %d", report.Summary.TotalIssues)
	}
}

func TestNormalizeDescription(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Unchecked error return.", "unchecked error return"},
		{"  Multiple   spaces here ", "multiple spaces here"},
		{"Trailing punctuation!;", "trailing punctuation"},
		{"already normal", "already normal"},
	}
	for _, tt := range tests {
		if got := normalizeDescription(tt.in); got != tt.want {
			t.Errorf("normalizeDescription(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
