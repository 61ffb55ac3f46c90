package grader

import (
	"context"
	"fmt"
	"strings"
)

// ExactMatchGrader checks case-insensitive, whitespace-trimmed equality
// between the expected and actual output. Deterministic, no external calls.
type ExactMatchGrader struct{}

// Name returns the grader identifier.
func (ExactMatchGrader) Name() string {
	return "exact_match"
}

// Grade compares the actual output to the expected string. The score is
// exactly 1.0 on match and 0.0 otherwise, never a fractional value.
func (ExactMatchGrader) Grade(ctx context.Context, input string, expected string, actual string) (*Verdict, error) {
	matched := strings.EqualFold(strings.TrimSpace(actual), strings.TrimSpace(expected))
	if matched {
		return &Verdict{
			Score:     1.0,
			Passed:    true,
			Reasoning: "exact match",
		}, nil
	}
	return &Verdict{
		Score:     0.0,
		Passed:    false,
		Reasoning: fmt.Sprintf("expected %q, got %q", expected, actual),
	}, nil
}
