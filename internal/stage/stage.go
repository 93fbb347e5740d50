// Package stage defines the analysis stage contract and the LLM-backed
// stage implementations. A stage reviews one file diff for one category
// of issue; the pipeline treats all stages uniformly through the Stage
// interface, so new specializations are added here without touching
// orchestration.
package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/reviewd/reviewd/internal/llm"
	"github.com/reviewd/reviewd/internal/models"
)

// Stage is a single specialized reviewer
type Stage interface {
	// Name identifies the stage in warnings and logs
	Name() string

	// Analyze reviews one file and returns its findings. Auth failures
	// from the backend are returned wrapped around llm.ErrAuth; the
	// pipeline escalates those and absorbs everything else.
	Analyze(ctx context.Context, file models.FileDiff) ([]models.Finding, error)
}

// rawFinding is the JSON structure stages ask the model to return
type rawFinding struct {
	Line        int    `json:"line"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion"`
	Critical    bool   `json:"critical"`
}

// llmStage reviews files by prompting a reasoning backend
type llmStage struct {
	name      string
	category  models.Category
	focus     string
	client    llm.Client
	timeout   time.Duration
	maxTokens int
}

func (s *llmStage) Name() string { return s.name }

func (s *llmStage) Analyze(ctx context.Context, file models.FileDiff) ([]models.Finding, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.Complete(ctx, llm.CompleteRequest{
		SystemPrompt: s.systemPrompt(),
		UserPrompt:   s.userPrompt(file),
		MaxTokens:    s.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%s stage: %w", s.name, err)
	}

	findings, err := s.parseFindings(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("%s stage: %w", s.name, err)
	}
	return findings, nil
}

func (s *llmStage) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You are a strict, expert code reviewer specializing in ")
	b.WriteString(string(s.category))
	b.WriteString(" issues.\n\n")
	b.WriteString(s.focus)
	b.WriteString(`

Rules:
1. Only review the changes shown in the diff. Do not comment on unchanged code.
2. Report only ` + string(s.category) + ` issues. Other categories are handled elsewhere.
3. Be concise and actionable. Every finding must include a concrete suggestion.
4. Reference line numbers from the new side of the diff hunks.
5. Set "critical": true only for issues likely to cause real damage in production.

You MUST respond with ONLY a JSON array of findings. No markdown, no explanation, no preamble.

Each finding must have this exact structure:
{
  "line": 1,
  "description": "What is wrong and why it matters",
  "suggestion": "How to fix it",
  "critical": false
}

If there are no issues, respond with an empty array: []`)
	return b.String()
}

func (s *llmStage) userPrompt(file models.FileDiff) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Review the following diff for file %s.\n", file.Path)
	b.WriteString("\n--- BEGIN DIFF ---\n")
	b.WriteString(file.Patch)
	b.WriteString("\n--- END DIFF ---\n")
	return b.String()
}

// parseFindings decodes the model output, tolerating markdown code fences
func (s *llmStage) parseFindings(content string) ([]models.Finding, error) {
	content = stripFences(content)

	var raw []rawFinding
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("invalid findings JSON: %w", err)
	}

	findings := make([]models.Finding, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r.Description) == "" {
			continue
		}
		findings = append(findings, models.Finding{
			Type:        s.category,
			Line:        r.Line,
			Description: r.Description,
			Suggestion:  r.Suggestion,
			Critical:    r.Critical,
		})
	}
	return findings, nil
}

// stripFences removes a surrounding markdown code fence, if present
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return content
	}
	end := len(lines)
	if strings.TrimSpace(lines[end-1]) == "```" {
		end--
	}
	return strings.TrimSpace(strings.Join(lines[1:end], "\n"))
}
