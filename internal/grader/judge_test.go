package grader

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stellarlinkco/eval-studio/internal/llm"
)

type fakeProvider struct {
	reply string
	err   error

	lastReq *llm.Request
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "fake-model" }

func (f *fakeProvider) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{
		Content: []llm.ContentBlock{{Type: "text", Text: f.reply}},
	}, nil
}

func TestModelJudgeGrade(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{reply: `{"score": 0.85, "reasoning": "Covers the key points."}`}
	g := &ModelJudgeGrader{Provider: p}

	v, err := g.Grade(context.Background(), "Summarize X", "A summary of X", "X, in short")
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if v.Score != 0.85 {
		t.Fatalf("Score = %v, want 0.85", v.Score)
	}
	if !v.Passed {
		t.Fatalf("Passed = false at score 0.85 with default threshold")
	}
	if v.Reasoning != "Covers the key points." {
		t.Fatalf("Reasoning = %q", v.Reasoning)
	}

	prompt := p.lastReq.Messages[0].Content
	for _, want := range []string{"Summarize X", "A summary of X", "X, in short"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestModelJudgeThreshold(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		reply     string
		threshold float64
		passed    bool
	}{
		{"at default threshold", `{"score": 0.7, "reasoning": "ok"}`, 0, true},
		{"below default threshold", `{"score": 0.69, "reasoning": "ok"}`, 0, false},
		{"custom threshold pass", `{"score": 0.5, "reasoning": "ok"}`, 0.5, true},
		{"custom threshold fail", `{"score": 0.5, "reasoning": "ok"}`, 0.9, false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			g := &ModelJudgeGrader{
				Provider:  &fakeProvider{reply: tc.reply},
				Threshold: tc.threshold,
			}
			v, err := g.Grade(context.Background(), "q", "e", "a")
			if err != nil {
				t.Fatalf("Grade: %v", err)
			}
			if v.Passed != tc.passed {
				t.Fatalf("Passed = %v, want %v", v.Passed, tc.passed)
			}
		})
	}
}

func TestModelJudgeClampsScore(t *testing.T) {
	t.Parallel()

	{
		g := &ModelJudgeGrader{Provider: &fakeProvider{reply: `{"score": 3.0, "reasoning": "x"}`}}
		v, err := g.Grade(context.Background(), "q", "e", "a")
		if err != nil {
			t.Fatalf("Grade: %v", err)
		}
		if v.Score != 1.0 {
			t.Fatalf("Score = %v, want clamped 1.0", v.Score)
		}
	}
	{
		g := &ModelJudgeGrader{Provider: &fakeProvider{reply: `{"score": -0.5, "reasoning": "x"}`}}
		v, err := g.Grade(context.Background(), "q", "e", "a")
		if err != nil {
			t.Fatalf("Grade: %v", err)
		}
		if v.Score != 0.0 {
			t.Fatalf("Score = %v, want clamped 0.0", v.Score)
		}
	}
}

func TestModelJudgeFencedOutput(t *testing.T) {
	t.Parallel()

	g := &ModelJudgeGrader{
		Provider: &fakeProvider{reply: "```json\n{\"score\": 0.9, \"reasoning\": \"good\"}\n```"},
	}
	v, err := g.Grade(context.Background(), "q", "e", "a")
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if v.Score != 0.9 {
		t.Fatalf("Score = %v, want 0.9", v.Score)
	}
}

func TestModelJudgeUnparsableOutput(t *testing.T) {
	t.Parallel()

	g := &ModelJudgeGrader{Provider: &fakeProvider{reply: "I would rate this a 7 out of 10."}}
	_, err := g.Grade(context.Background(), "q", "e", "a")

	var gerr *GradingError
	if !errors.As(err, &gerr) {
		t.Fatalf("expected GradingError, got %v", err)
	}
	if gerr.Grader != "llm_judge" {
		t.Fatalf("Grader = %q", gerr.Grader)
	}
	if gerr.Output != "I would rate this a 7 out of 10." {
		t.Fatalf("Output = %q", gerr.Output)
	}
}

func TestModelJudgeEmptyReasoning(t *testing.T) {
	t.Parallel()

	g := &ModelJudgeGrader{Provider: &fakeProvider{reply: `{"score": 1.0}`}}
	v, err := g.Grade(context.Background(), "q", "e", "a")
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if v.Reasoning != "no reasoning provided" {
		t.Fatalf("Reasoning = %q", v.Reasoning)
	}
}

func TestModelJudgeProviderError(t *testing.T) {
	t.Parallel()

	g := &ModelJudgeGrader{Provider: &fakeProvider{err: errors.New("boom")}}
	_, err := g.Grade(context.Background(), "q", "e", "a")
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("got %v, want wrapped provider error", err)
	}

	var gerr *GradingError
	if errors.As(err, &gerr) {
		t.Fatalf("provider failure must not be a GradingError")
	}
}

func TestModelJudgeNilProvider(t *testing.T) {
	t.Parallel()

	g := &ModelJudgeGrader{}
	if _, err := g.Grade(context.Background(), "q", "e", "a"); err == nil {
		t.Fatalf("expected error for nil provider")
	}
}
