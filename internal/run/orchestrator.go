package run

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/stellarlinkco/eval-studio/internal/grader"
	"github.com/stellarlinkco/eval-studio/internal/llm"
	"github.com/stellarlinkco/eval-studio/internal/store"
	"github.com/stellarlinkco/eval-studio/internal/suite"
)

// Config defines orchestrator behavior and thresholds.
type Config struct {
	Concurrency    int           // Max concurrent model calls
	Timeout        time.Duration // Per-case model call bound
	JudgeThreshold float64       // Pass cutoff for llm_judge cases
	MaxTokens      int
}

// Orchestrator drives execution of evaluation runs. It is the only component
// that mutates run state, and it does so through the store's atomic updates.
type Orchestrator struct {
	provider llm.Provider
	graders  *grader.Registry
	store    store.Store
	cfg      Config

	sem chan struct{}
}

// NewOrchestrator creates an Orchestrator with defaults and registers the
// grading strategies.
func NewOrchestrator(provider llm.Provider, st store.Store, cfg Config) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.JudgeThreshold <= 0 {
		cfg.JudgeThreshold = grader.DefaultJudgeThreshold
	}
	if cfg.JudgeThreshold > 1 {
		cfg.JudgeThreshold = 1
	}

	o := &Orchestrator{
		provider: provider,
		store:    st,
		cfg:      cfg,
		sem:      make(chan struct{}, cfg.Concurrency),
	}

	reg := grader.NewRegistry()
	reg.Register(suite.ScoringExactMatch, grader.ExactMatchGrader{})
	reg.Register(suite.ScoringLLMJudge, &grader.ModelJudgeGrader{
		Provider:  provider,
		Threshold: cfg.JudgeThreshold,
		MaxTokens: cfg.MaxTokens,
	})
	o.graders = reg

	return o
}

// CreateRun validates the suite and persists a new pending run. The suite is
// validated wholesale before anything is created.
func (o *Orchestrator) CreateRun(ctx context.Context, cases []suite.TestCase, name string, systemPrompt string) (*Run, error) {
	if o == nil {
		return nil, errors.New("run: nil orchestrator")
	}
	if ctx == nil {
		return nil, errors.New("run: nil context")
	}
	if o.store == nil {
		return nil, errors.New("run: nil store")
	}
	if err := suite.Validate(cases); err != nil {
		return nil, err
	}

	id, err := newRunID()
	if err != nil {
		return nil, fmt.Errorf("run: generate run id: %w", err)
	}

	model := ""
	if o.provider != nil {
		model = o.provider.Model()
	}

	r := &Run{
		ID:           id,
		Name:         name,
		Model:        model,
		SystemPrompt: systemPrompt,
		Status:       StatusPending,
		CreatedAt:    time.Now().UTC(),
		TestCases:    cases,
	}

	if err := o.store.CreateRun(ctx, toRunRecord(r)); err != nil {
		return nil, fmt.Errorf("run: create run: %w", err)
	}
	return r, nil
}

// Execute creates a run for the given suite and drives it to a terminal
// status. Callers always get back a terminated run or an error explaining why
// no run exists.
func (o *Orchestrator) Execute(ctx context.Context, cases []suite.TestCase, name string, systemPrompt string) (*Run, error) {
	r, err := o.CreateRun(ctx, cases, name, systemPrompt)
	if err != nil {
		return nil, err
	}
	return o.ExecuteRun(ctx, r)
}

// ExecuteRun drives a pending run to completion. Per-case failures (model
// errors, timeouts, unusable judge output) degrade single results; only
// failures of the machinery itself mark the whole run failed.
func (o *Orchestrator) ExecuteRun(ctx context.Context, r *Run) (*Run, error) {
	if o == nil {
		return nil, errors.New("run: nil orchestrator")
	}
	if ctx == nil {
		return nil, errors.New("run: nil context")
	}
	if r == nil {
		return nil, errors.New("run: nil run")
	}
	if o.provider == nil {
		return nil, errors.New("run: nil llm provider")
	}
	if o.store == nil {
		return nil, errors.New("run: nil store")
	}

	// The compare-and-swap doubles as an execution lock: a second executor
	// for the same run id loses the swap and stops here.
	if err := o.store.UpdateRunStatus(ctx, r.ID, string(StatusPending), string(StatusRunning)); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return nil, fmt.Errorf("run: run %q already executing or terminal: %w", r.ID, err)
		}
		return o.failRun(ctx, r, fmt.Errorf("run: mark running: %w", err))
	}
	r.Status = StatusRunning

	// Store writes survive cancellation of the driving context: a canceled
	// run still terminates in the store, never sticking at running with a
	// partial result set.
	persistCtx := context.WithoutCancel(ctx)

	results := make([]Result, len(r.TestCases))

	var (
		wg         sync.WaitGroup
		persistMu  sync.Mutex
		persistErr error
	)
	recordPersistErr := func(err error) {
		persistMu.Lock()
		defer persistMu.Unlock()
		if persistErr == nil {
			persistErr = err
		}
	}

	for i := range r.TestCases {
		idx := i
		tc := r.TestCases[i]

		wg.Add(1)
		go func() {
			defer wg.Done()

			var res Result
			if err := o.acquire(ctx); err != nil {
				res = Result{
					CaseIndex: idx,
					Reasoning: "case not executed",
					Error:     fmt.Sprintf("model invocation: %v", err),
				}
			} else {
				res = o.runCase(ctx, idx, tc, r.SystemPrompt)
				o.release()
			}
			results[idx] = res

			if err := o.store.SaveResult(persistCtx, r.ID, toResultRecord(&res)); err != nil {
				recordPersistErr(fmt.Errorf("run: save result %d: %w", idx, err))
			}
		}()
	}
	wg.Wait()

	r.Results = results

	if persistErr != nil {
		return o.failRun(persistCtx, r, persistErr)
	}

	summary, err := Summarize(results)
	if err != nil {
		return o.failRun(persistCtx, r, fmt.Errorf("run: summarize: %w", err))
	}
	if err := o.store.SetRunSummary(persistCtx, r.ID, &store.SummaryRecord{
		PassCount:    summary.PassCount,
		AvgScore:     summary.AvgScore,
		AvgLatencyMs: summary.AvgLatencyMs,
	}); err != nil {
		return o.failRun(persistCtx, r, fmt.Errorf("run: save summary: %w", err))
	}
	if err := o.store.UpdateRunStatus(persistCtx, r.ID, string(StatusRunning), string(StatusCompleted)); err != nil {
		return o.failRun(persistCtx, r, fmt.Errorf("run: mark completed: %w", err))
	}

	r.Summary = &summary
	r.Status = StatusCompleted
	return r, nil
}

// runCase invokes the model and the grader for one test case. Every failure
// becomes a zero-score result; nothing here aborts the run.
func (o *Orchestrator) runCase(ctx context.Context, idx int, tc suite.TestCase, systemPrompt string) Result {
	caseCtx := ctx
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		caseCtx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	text, latency, err := llm.Invoke(caseCtx, o.provider, systemPrompt, tc.Input, o.cfg.MaxTokens)
	res := Result{CaseIndex: idx, LatencyMs: latency}
	if err != nil {
		res.Reasoning = "model call failed"
		res.Error = fmt.Sprintf("model invocation: %v", err)
		return res
	}
	res.ActualOutput = text

	g, ok := o.graders.Get(tc.ScoringMethod)
	if !ok {
		res.Reasoning = "grading failed"
		res.Error = fmt.Sprintf("no grader for scoring method %q", tc.ScoringMethod)
		return res
	}

	verdict, err := g.Grade(caseCtx, tc.Input, tc.ExpectedOutput, text)
	if err != nil {
		res.Reasoning = "grading failed"
		res.Error = fmt.Sprintf("grading: %v", err)
		return res
	}
	if verdict == nil {
		res.Reasoning = "grading failed"
		res.Error = "grading: nil verdict"
		return res
	}

	res.Score = clampScore(verdict.Score)
	res.Passed = verdict.Passed
	res.Reasoning = verdict.Reasoning
	return res
}

// failRun marks the run failed with a top-level reason. The marking runs on a
// context detached from cancellation and is best-effort: the original error
// wins either way.
func (o *Orchestrator) failRun(ctx context.Context, r *Run, cause error) (*Run, error) {
	_ = o.store.MarkRunFailed(context.WithoutCancel(ctx), r.ID, cause.Error())
	r.Status = StatusFailed
	r.Error = cause.Error()
	return r, cause
}

func (o *Orchestrator) acquire(ctx context.Context) error {
	if o.sem == nil {
		return errors.New("run: nil semaphore")
	}
	select {
	case o.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) release() {
	<-o.sem
}

func toRunRecord(r *Run) *store.RunRecord {
	return &store.RunRecord{
		ID:           r.ID,
		Name:         r.Name,
		Model:        r.Model,
		SystemPrompt: r.SystemPrompt,
		Status:       string(r.Status),
		Error:        r.Error,
		CreatedAt:    r.CreatedAt,
		TestCases:    r.TestCases,
	}
}

func toResultRecord(res *Result) *store.ResultRecord {
	return &store.ResultRecord{
		CaseIndex:    res.CaseIndex,
		ActualOutput: res.ActualOutput,
		Score:        res.Score,
		Passed:       res.Passed,
		Reasoning:    res.Reasoning,
		LatencyMs:    res.LatencyMs,
		Error:        res.Error,
	}
}

// FromRecord rebuilds a domain run from its stored form.
func FromRecord(rec *store.RunRecord) *Run {
	if rec == nil {
		return nil
	}

	r := &Run{
		ID:           rec.ID,
		Name:         rec.Name,
		Model:        rec.Model,
		SystemPrompt: rec.SystemPrompt,
		Status:       Status(rec.Status),
		Error:        rec.Error,
		CreatedAt:    rec.CreatedAt,
		TestCases:    rec.TestCases,
	}
	for _, rr := range rec.Results {
		r.Results = append(r.Results, Result{
			CaseIndex:    rr.CaseIndex,
			ActualOutput: rr.ActualOutput,
			Score:        rr.Score,
			Passed:       rr.Passed,
			Reasoning:    rr.Reasoning,
			LatencyMs:    rr.LatencyMs,
			Error:        rr.Error,
		})
	}
	if rec.Summary != nil {
		r.Summary = &Summary{
			PassCount:    rec.Summary.PassCount,
			AvgScore:     rec.Summary.AvgScore,
			AvgLatencyMs: rec.Summary.AvgLatencyMs,
		}
	}
	return r
}

func clampScore(score float64) float64 {
	if score != score { // NaN
		return 0
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func newRunID() (string, error) {
	var buf [8]byte
	if _, err := io.ReadFull(rand.Reader, buf[:]); err != nil {
		return "", err
	}
	return fmt.Sprintf("run_%s_%x", time.Now().UTC().Format("20060102T150405Z"), buf), nil
}
