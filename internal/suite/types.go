package suite

import "fmt"

// ScoringMethod selects the grading strategy for a test case.
type ScoringMethod string

const (
	ScoringExactMatch ScoringMethod = "exact_match"
	ScoringLLMJudge   ScoringMethod = "llm_judge"
)

// Valid reports whether the scoring method is a known variant.
func (m ScoringMethod) Valid() bool {
	switch m {
	case ScoringExactMatch, ScoringLLMJudge:
		return true
	default:
		return false
	}
}

// TestCase defines a single evaluation case. Immutable once loaded.
type TestCase struct {
	Input          string        `json:"input"`
	ExpectedOutput string        `json:"expected_output"`
	ScoringMethod  ScoringMethod `json:"scoring_method"`
	Tags           []string      `json:"tags,omitempty"`
}

// ValidationError reports why a suite failed to load. A suite either loads
// entirely or not at all.
type ValidationError struct {
	CaseIndex int // -1 for suite-level problems
	Reason    string
}

// Error formats the validation failure.
func (e *ValidationError) Error() string {
	if e == nil {
		return "suite: validation error <nil>"
	}
	if e.CaseIndex < 0 {
		return fmt.Sprintf("suite: %s", e.Reason)
	}
	return fmt.Sprintf("suite: cases[%d]: %s", e.CaseIndex, e.Reason)
}
