package grader

import (
	"context"
	"fmt"
	"strings"

	"github.com/stellarlinkco/eval-studio/internal/suite"
)

// Grader defines a scoring strategy over a model response.
type Grader interface {
	Name() string
	Grade(ctx context.Context, input string, expected string, actual string) (*Verdict, error)
}

// Verdict holds the outcome of grading one response.
type Verdict struct {
	Score     float64 // 0.0 - 1.0
	Passed    bool
	Reasoning string
}

// GradingError reports that a judge response could not be turned into a
// score. It is a per-case failure, not a run failure.
type GradingError struct {
	Grader string
	Output string
	Err    error
}

// Error formats the grading failure.
func (e *GradingError) Error() string {
	if e == nil {
		return "grader: grading error <nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("grader: %s: %v", e.Grader, e.Err)
	}
	return fmt.Sprintf("grader: %s: unusable output", e.Grader)
}

// Unwrap exposes the underlying cause.
func (e *GradingError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Registry stores graders keyed by scoring method.
type Registry struct {
	graders map[suite.ScoringMethod]Grader
}

// NewRegistry creates an empty grader registry.
func NewRegistry() *Registry {
	return &Registry{
		graders: make(map[suite.ScoringMethod]Grader),
	}
}

// Register adds a grader under the given scoring method.
func (r *Registry) Register(method suite.ScoringMethod, g Grader) {
	if r == nil {
		panic("grader: register on nil registry")
	}
	if g == nil {
		panic("grader: register nil grader")
	}
	if strings.TrimSpace(string(method)) == "" {
		panic("grader: register empty scoring method")
	}
	if r.graders == nil {
		r.graders = make(map[suite.ScoringMethod]Grader)
	}
	r.graders[method] = g
}

// Get returns the grader for a scoring method if present.
func (r *Registry) Get(method suite.ScoringMethod) (Grader, bool) {
	if r == nil || r.graders == nil {
		return nil, false
	}
	g, ok := r.graders[method]
	return g, ok
}
