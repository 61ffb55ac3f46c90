package grader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/stellarlinkco/eval-studio/internal/llm"
)

// DefaultJudgeThreshold is the score cutoff at or above which a judged case
// counts as passed. The cutoff is deliberately an explicit, configurable
// constant rather than an implicit behavior of the judge prompt.
const DefaultJudgeThreshold = 0.7

// ModelJudgeGrader asks an LLM to rate the actual output against the expected
// output on a continuous 0.0-1.0 scale.
type ModelJudgeGrader struct {
	Provider  llm.Provider
	Threshold float64 // Pass cutoff; defaults to DefaultJudgeThreshold
	MaxTokens int
}

// Name returns the grader identifier.
func (*ModelJudgeGrader) Name() string {
	return "llm_judge"
}

const judgePromptTemplate = `You are evaluating an AI assistant's response against an expected output.

## Original Input
{{.Input}}

## Expected Output
{{.Expected}}

## Actual Response
{{.Actual}}

## Instructions
Score how well the actual response satisfies the intent of the expected output.
- 1.0 = correct and complete
- 0.5 = partially correct
- 0.0 = incorrect or irrelevant

Output ONLY valid JSON in this exact format:
{"score": <decimal between 0.0 and 1.0>, "reasoning": "<one sentence explanation>"}`

var judgePromptTmpl = template.Must(template.New("model_judge").Parse(judgePromptTemplate))

type judgePromptData struct {
	Input    string
	Expected string
	Actual   string
}

type judgeOutput struct {
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// Grade invokes the judge model and normalizes the result. The returned score
// is clamped into [0.0, 1.0] even if the judge claims otherwise; unparsable
// judge output is a *GradingError.
func (g *ModelJudgeGrader) Grade(ctx context.Context, input string, expected string, actual string) (*Verdict, error) {
	if g == nil {
		return nil, errors.New("llm_judge: nil grader")
	}
	if g.Provider == nil {
		return nil, errors.New("llm_judge: nil llm provider")
	}

	threshold := g.Threshold
	if threshold <= 0 {
		threshold = DefaultJudgeThreshold
	}
	if threshold > 1 {
		threshold = 1
	}
	maxTokens := g.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}

	var promptBuf bytes.Buffer
	if err := judgePromptTmpl.Execute(&promptBuf, judgePromptData{
		Input:    input,
		Expected: expected,
		Actual:   actual,
	}); err != nil {
		return nil, fmt.Errorf("llm_judge: render prompt: %w", err)
	}

	resp, err := g.Provider.Complete(ctx, &llm.Request{
		Messages:  []llm.Message{{Role: "user", Content: promptBuf.String()}},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("llm_judge: llm: %w", err)
	}
	if resp == nil {
		return nil, errors.New("llm_judge: nil llm response")
	}

	raw := strings.TrimSpace(llm.Text(resp))
	var out judgeOutput
	if err := llm.ParseJSON(raw, &out); err != nil {
		return nil, &GradingError{Grader: "llm_judge", Output: raw, Err: err}
	}

	score := clampScore(out.Score)
	reasoning := strings.TrimSpace(out.Reasoning)
	if reasoning == "" {
		reasoning = "no reasoning provided"
	}

	return &Verdict{
		Score:     score,
		Passed:    score >= threshold,
		Reasoning: reasoning,
	}, nil
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
