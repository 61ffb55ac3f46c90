package run

import (
	"time"

	"github.com/stellarlinkco/eval-studio/internal/suite"
)

// Status is the lifecycle state of a run. Transitions are one-directional:
// pending -> running -> completed | failed (pending may also fail directly
// when the machinery breaks before execution starts).
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is final. A terminal run is immutable
// except for the act of reading it.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving to the given status is legal.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusRunning || to == StatusFailed
	case StatusRunning:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

// Run is one execution of a test suite.
type Run struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Model        string           `json:"model"`
	SystemPrompt string           `json:"system_prompt,omitempty"`
	Status       Status           `json:"status"`
	Error        string           `json:"error,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	TestCases    []suite.TestCase `json:"test_cases"`
	Results      []Result         `json:"results"`
	Summary      *Summary         `json:"summary,omitempty"`
}

// Result is the outcome of one test case within a run. Results[i] always
// corresponds to TestCases[i], regardless of concurrent completion order.
type Result struct {
	CaseIndex    int     `json:"case_index"`
	ActualOutput string  `json:"actual_output"`
	Score        float64 `json:"score"`
	Passed       bool    `json:"passed"`
	Reasoning    string  `json:"reasoning"`
	LatencyMs    int64   `json:"latency_ms"`
	Error        string  `json:"error,omitempty"`
}

// Summary holds derived statistics over a run's results. It is always
// recomputable from the results themselves.
type Summary struct {
	PassCount    int     `json:"pass_count"`
	AvgScore     float64 `json:"avg_score"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}
