// Package pipeline orchestrates the analysis stages over a change set and
// merges their findings into one report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/reviewd/reviewd/internal/llm"
	"github.com/reviewd/reviewd/internal/models"
	"github.com/reviewd/reviewd/internal/stage"
	"github.com/reviewd/reviewd/pkg/logger"
)

// ErrAnalysisFailed indicates every stage failed for every file
var ErrAnalysisFailed = errors.New("analysis failed for all files")

// Coordinator runs the configured stages over each file of a change set.
// Stage invocations are independent; a failing stage contributes zero
// findings for that file and a warning, never a job failure, unless all
// stages fail for all files.
type Coordinator struct {
	stages []stage.Stage
	limit  int64
	logger *logger.Logger
}

// New creates a coordinator. limit bounds concurrent stage calls across
// the whole change set so the reasoning backend isn't overwhelmed.
func New(stages []stage.Stage, limit int, log *logger.Logger) *Coordinator {
	if limit <= 0 {
		limit = 4
	}
	return &Coordinator{stages: stages, limit: int64(limit), logger: log}
}

// cell holds one (file, stage) invocation outcome, buffered so the merge
// can assemble results in deterministic order regardless of completion
// order
type cell struct {
	findings []models.Finding
	err      error
}

// Run executes every stage for every file and merges the findings into a
// report. The report preserves file order and, within a file, stage
// order; duplicates are collapsed.
func (c *Coordinator) Run(ctx context.Context, cs *models.ChangeSet) (*models.Report, error) {
	cells := make([][]cell, len(cs.Files))
	for i := range cells {
		cells[i] = make([]cell, len(c.stages))
	}

	sem := semaphore.NewWeighted(c.limit)
	g, gctx := errgroup.WithContext(ctx)

dispatch:
	for fi := range cs.Files {
		for si := range c.stages {
			fi, si := fi, si
			file := cs.Files[fi]
			st := c.stages[si]

			// Acquire fails only when the group context is done, which
			// means a stage already escalated
			if err := sem.Acquire(gctx, 1); err != nil {
				break dispatch
			}
			g.Go(func() error {
				defer sem.Release(1)

				findings, err := st.Analyze(gctx, file)
				if err != nil {
					// A bad backend credential dooms every remaining
					// call; escalate instead of degrading
					if errors.Is(err, llm.ErrAuth) {
						return err
					}
					c.logger.Warn("stage failed",
						"stage", st.Name(),
						"file", file.Path,
						"error", err)
					cells[fi][si] = cell{err: err}
					return nil
				}
				cells[fi][si] = cell{findings: findings}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(cs.Files) > 0 && c.allFailed(cells) {
		return nil, ErrAnalysisFailed
	}

	return c.merge(cs, cells), nil
}

func (c *Coordinator) allFailed(cells [][]cell) bool {
	for fi := range cells {
		for si := range cells[fi] {
			if cells[fi][si].err == nil {
				return false
			}
		}
	}
	return true
}

// merge assembles the report in file order, stage order, collapsing
// duplicate findings across stages
func (c *Coordinator) merge(cs *models.ChangeSet, cells [][]cell) *models.Report {
	report := &models.Report{
		Files: make([]models.FileFindings, 0, len(cs.Files)),
	}

	for fi, file := range cs.Files {
		group := models.FileFindings{Name: file.Path, Issues: []models.Finding{}}
		seen := make(map[string]bool)

		for si, st := range c.stages {
			res := cells[fi][si]
			if res.err != nil {
				report.Warnings = append(report.Warnings,
					fmt.Sprintf("stage %s failed for %s: %v", st.Name(), file.Path, res.err))
				continue
			}
			for _, f := range res.findings {
				key := dedupKey(file.Path, f)
				if seen[key] {
					continue
				}
				seen[key] = true
				group.Issues = append(group.Issues, f)

				report.Summary.TotalIssues++
				if f.Critical && (f.Type == models.CategoryBug || f.Type == models.CategorySecurity) {
					report.Summary.CriticalIssues++
				}
			}
		}
		report.Files = append(report.Files, group)
	}

	report.Summary.TotalFiles = len(cs.Files)
	return report
}

// dedupKey identifies semantically identical findings across stages:
// same file, same category, same line, same normalized description.
// Stage outputs phrase equivalent findings differently, so the
// description is lowercased, whitespace-collapsed, and stripped of
// trailing punctuation before comparison.
func dedupKey(path string, f models.Finding) string {
	return fmt.Sprintf("%s|%s|%d|%s", path, f.Type, f.Line, normalizeDescription(f.Description))
}

func normalizeDescription(desc string) string {
	desc = strings.ToLower(strings.TrimSpace(desc))
	desc = strings.Join(strings.Fields(desc), " ")
	return strings.TrimRight(desc, ".,;:!")
}
