package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/umldraft/umlbot/internal/config"
	"github.com/umldraft/umlbot/internal/models"
)

type GeminiClient struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, cfg config.LLMConfig) (*GeminiClient, error) {
	apiKey := cfg.GeminiAPIKey
	if apiKey == "" {
		apiKey = cfg.APIKey
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{client: cli, model: cfg.Model}, nil
}

func (c *GeminiClient) Complete(ctx context.Context, req Request) (string, error) {
	contents, gcfg := c.buildRequest(req)

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, gcfg)
	if err != nil {
		return "", fmt.Errorf("gemini completion: %w", err)
	}
	text := visibleText(resp)
	if text == "" {
		return "", fmt.Errorf("gemini completion: empty response")
	}
	return text, nil
}

func (c *GeminiClient) CompleteStream(ctx context.Context, req Request) (Stream, error) {
	contents, gcfg := c.buildRequest(req)

	s := &geminiStream{events: make(chan geminiEvent, 32)}
	go func() {
		defer close(s.events)
		for resp, err := range c.client.Models.GenerateContentStream(ctx, c.model, contents, gcfg) {
			if err != nil {
				s.events <- geminiEvent{err: err}
				return
			}
			if text := visibleText(resp); text != "" {
				s.events <- geminiEvent{delta: text}
			}
		}
	}()
	return s, nil
}

func (c *GeminiClient) buildRequest(req Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	var systemParts []string
	if req.System != "" {
		systemParts = append(systemParts, req.System)
	}

	for _, m := range req.Messages {
		switch m.Role {
		case models.RoleSystem:
			systemParts = append(systemParts, m.Content)
		case models.RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{Text: m.Content}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: m.Content}},
			})
		}
	}

	gcfg := &genai.GenerateContentConfig{}
	if len(systemParts) > 0 {
		gcfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: strings.Join(systemParts, "\n\n")}},
		}
	}
	if req.Temperature != nil {
		gcfg.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.MaxTokens != nil {
		gcfg.MaxOutputTokens = int32(*req.MaxTokens)
	}
	return contents, gcfg
}

type geminiEvent struct {
	delta string
	err   error
}

type geminiStream struct {
	events chan geminiEvent
	delta  string
	err    error
}

func (s *geminiStream) Next() bool {
	if s.err != nil {
		return false
	}
	ev, ok := <-s.events
	if !ok {
		return false
	}
	if ev.err != nil {
		s.err = ev.err
		return false
	}
	s.delta = ev.delta
	return true
}

func (s *geminiStream) Delta() string { return s.delta }

func (s *geminiStream) Err() error { return s.err }

func (s *geminiStream) Close() error {
	// Drain so the producer goroutine can finish.
	for range s.events {
	}
	return nil
}

func visibleText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought || part.Text == "" {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}
