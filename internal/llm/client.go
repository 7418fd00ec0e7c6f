// Package llm abstracts the outbound completion call behind one small
// interface with an OpenAI-compatible and a Gemini implementation.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/umldraft/umlbot/internal/config"
)

type Message struct {
	Role    string
	Content string
}

type Request struct {
	System      string
	Messages    []Message
	Temperature *float64
	MaxTokens   *int
}

// Client performs a single outbound model call. Implementations do not
// retry; failures surface once and the caller decides what to do.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
	CompleteStream(ctx context.Context, req Request) (Stream, error)
}

// Stream yields response tokens one Next/Delta pair at a time.
type Stream interface {
	Next() bool
	Delta() string
	Err() error
	Close() error
}

// New builds the client selected by LLM_PROVIDER.
func New(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai":
		return NewOpenAI(cfg), nil
	case "gemini":
		return NewGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
