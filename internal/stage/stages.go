package stage

import (
	"time"

	"github.com/reviewd/reviewd/internal/llm"
	"github.com/reviewd/reviewd/internal/models"
)

// Options configures the LLM-backed stages
type Options struct {
	Timeout   time.Duration
	MaxTokens int
}

func (o Options) withDefaults() Options {
	if o.Timeout == 0 {
		o.Timeout = 120 * time.Second
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = 4096
	}
	return o
}

// NewBug creates the bug-hunting stage
func NewBug(client llm.Client, opts Options) Stage {
	return newLLMStage("bug", models.CategoryBug, client, opts,
		"Hunt for logical errors, unhandled edge cases, off-by-one errors, "+
			"nil/null dereferences, race conditions, resource leaks, and error "+
			"paths that swallow or misreport failures.")
}

// NewSecurity creates the security review stage
func NewSecurity(client llm.Client, opts Options) Stage {
	return newLLMStage("security", models.CategorySecurity, client, opts,
		"Hunt for injection vulnerabilities, missing input validation, "+
			"hardcoded secrets, insecure cryptography, path traversal, unsafe "+
			"deserialization, and authorization gaps.")
}

// NewPerformance creates the performance review stage
func NewPerformance(client llm.Client, opts Options) Stage {
	return newLLMStage("performance", models.CategoryPerformance, client, opts,
		"Hunt for unnecessary allocations, quadratic or worse algorithms on "+
			"unbounded input, N+1 query patterns, blocking calls on hot paths, "+
			"and missing caching where it obviously pays off.")
}

// NewStyle creates the style and maintainability stage
func NewStyle(client llm.Client, opts Options) Stage {
	return newLLMStage("style", models.CategoryStyle, client, opts,
		"Hunt for misleading names, dead code, duplicated logic, violations "+
			"of the language's idioms, and formatting that hurts readability. "+
			"Skip pure formatting nits a linter would catch.")
}

// Default returns the standard stage set in report order
func Default(client llm.Client, opts Options) []Stage {
	return []Stage{
		NewBug(client, opts),
		NewSecurity(client, opts),
		NewPerformance(client, opts),
		NewStyle(client, opts),
	}
}

func newLLMStage(name string, category models.Category, client llm.Client, opts Options, focus string) Stage {
	opts = opts.withDefaults()
	return &llmStage{
		name:      name,
		category:  category,
		focus:     focus,
		client:    client,
		timeout:   opts.Timeout,
		maxTokens: opts.MaxTokens,
	}
}
