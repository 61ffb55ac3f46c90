package llm

import (
	"context"
	"errors"
	"time"
)

// Provider abstracts a chat-completion model backend.
type Provider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, req *Request) (*Response, error)
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Messages    []Message
	System      string
	MaxTokens   int
	Temperature float64
}

type ContentBlock struct {
	Type string `json:"type"` // "text"
	Text string `json:"text,omitempty"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type Response struct {
	Content    []ContentBlock
	Usage      Usage
	StopReason string
}

// Invoke sends a single user message (with an optional system prompt) and
// returns the text output plus wall-clock latency in milliseconds. The latency
// is measured even when the call fails, so timed-out calls report their
// time-to-failure.
func Invoke(ctx context.Context, p Provider, system string, input string, maxTokens int) (string, int64, error) {
	if p == nil {
		return "", 0, errors.New("llm: nil provider")
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	start := time.Now()
	resp, err := p.Complete(ctx, &Request{
		Messages:  []Message{{Role: "user", Content: input}},
		System:    system,
		MaxTokens: maxTokens,
	})
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return "", latency, err
	}
	if resp == nil {
		return "", latency, errors.New("llm: nil response")
	}
	return Text(resp), latency, nil
}
