package store

import (
	"context"
	"errors"
	"time"

	"github.com/stellarlinkco/eval-studio/internal/suite"
)

var (
	// ErrNotFound reports an unknown run id.
	ErrNotFound = errors.New("store: run not found")
	// ErrStatusConflict reports a status update whose expected prior status
	// did not match. Status transitions are compare-and-swap so a run's
	// lifecycle never regresses and no two executors drive the same run.
	ErrStatusConflict = errors.New("store: run status conflict")
)

// RunWriter defines persistence for run state transitions and results.
type RunWriter interface {
	CreateRun(ctx context.Context, run *RunRecord) error
	// UpdateRunStatus atomically moves a run from one status to another.
	// Returns ErrStatusConflict if the run is not currently in from.
	UpdateRunStatus(ctx context.Context, id string, from, to string) error
	// MarkRunFailed moves a non-terminal run to failed with a reason.
	MarkRunFailed(ctx context.Context, id string, reason string) error
	SaveResult(ctx context.Context, runID string, result *ResultRecord) error
	SetRunSummary(ctx context.Context, id string, summary *SummaryRecord) error
}

// RunReader defines read access to run state.
type RunReader interface {
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]*RunListing, error)
}

// Store defines persistence for evaluation runs.
type Store interface {
	RunWriter
	RunReader
	Close() error
}

// RunRecord stores one evaluation run.
type RunRecord struct {
	ID           string
	Name         string
	Model        string
	SystemPrompt string
	Status       string
	Error        string
	CreatedAt    time.Time
	TestCases    []suite.TestCase // JSON serialized
	Results      []ResultRecord   // ordered by case index
	Summary      *SummaryRecord   // present only once terminal
}

// ResultRecord stores a single per-case outcome.
type ResultRecord struct {
	CaseIndex    int
	ActualOutput string
	Score        float64
	Passed       bool
	Reasoning    string
	LatencyMs    int64
	Error        string
	CreatedAt    time.Time
}

// SummaryRecord stores derived run statistics.
type SummaryRecord struct {
	PassCount    int
	AvgScore     float64
	AvgLatencyMs float64
}

// RunListing is a row in a run index.
type RunListing struct {
	ID          string
	Name        string
	Status      string
	CreatedAt   time.Time
	ResultCount int
	AvgScore    *float64
}
