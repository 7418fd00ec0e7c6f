package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umldraft/umlbot/internal/llm"
	"github.com/umldraft/umlbot/internal/models"
	"github.com/umldraft/umlbot/internal/prompt"
	"github.com/umldraft/umlbot/internal/render"
	"github.com/umldraft/umlbot/internal/session"
)

const goodResponse = "Here is your diagram:\n```plantuml\n@startuml\nAlice -> Bob: login\n@enduml\n```"
const goodCode = "@startuml\nAlice -> Bob: login\n@enduml"

type fakeLLM struct {
	response  string
	err       error
	deltas    []string
	streamErr error

	requests []llm.Request
}

func (f *fakeLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeLLM) CompleteStream(_ context.Context, req llm.Request) (llm.Stream, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &fakeStream{deltas: f.deltas, err: f.streamErr}, nil
}

type fakeStream struct {
	deltas []string
	cur    string
	idx    int
	err    error
	closed bool
}

func (s *fakeStream) Next() bool {
	if s.idx >= len(s.deltas) {
		return false
	}
	s.cur = s.deltas[s.idx]
	s.idx++
	return true
}

func (s *fakeStream) Delta() string { return s.cur }
func (s *fakeStream) Err() error    { return s.err }
func (s *fakeStream) Close() error  { s.closed = true; return nil }

type fakeRenderer struct {
	result *render.Result
	err    error
	calls  []string
}

func (f *fakeRenderer) Render(_ context.Context, code string) (*render.Result, error) {
	f.calls = append(f.calls, code)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeCache struct {
	data map[string]string
	gets int
	sets int
}

func (f *fakeCache) Get(_ context.Context, key string) (string, bool, error) {
	f.gets++
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeCache) Set(_ context.Context, key, value string) error {
	f.sets++
	f.data[key] = value
	return nil
}

func okRenderer() *fakeRenderer {
	return &fakeRenderer{result: &render.Result{
		ImageBase64: "aW1hZ2U=",
		ImageURL:    "http://localhost:8080/png/ENC",
		ContentType: "image/png",
	}}
}

func newTestService(t *testing.T, client llm.Client, renderer Renderer) *DiagramService {
	t.Helper()
	store := session.NewStore(session.StoreConfig{MaxSessions: 16, TTL: time.Minute})
	return NewDiagramService(log.New(io.Discard, "", 0), client, renderer, prompt.Default(), store, 10)
}

func TestGenerateSuccess(t *testing.T) {
	client := &fakeLLM{response: goodResponse}
	renderer := okRenderer()
	svc := newTestService(t, client, renderer)

	resp, err := svc.Generate(context.Background(), &models.GenerateRequest{
		Description: "a user logging into a website",
		DiagramType: models.SequenceDiagram,
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusOK, resp.Status)
	assert.Equal(t, goodCode, resp.PlantUMLCode)
	assert.Equal(t, "aW1hZ2U=", resp.ImageBase64)
	assert.Equal(t, "http://localhost:8080/png/ENC", resp.ImageURL)

	require.Len(t, renderer.calls, 1)
	assert.Equal(t, goodCode, renderer.calls[0])

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	require.Len(t, req.Messages, 1)
	assert.Contains(t, req.Messages[0].Content, "a user logging into a website")
	assert.Contains(t, req.Messages[0].Content, string(models.SequenceDiagram))
	assert.NotEmpty(t, req.System)
}

func TestGeneratePassesGenerationParams(t *testing.T) {
	client := &fakeLLM{response: goodResponse}
	svc := newTestService(t, client, okRenderer())

	temp := 0.2
	maxTokens := 512
	_, err := svc.Generate(context.Background(), &models.GenerateRequest{
		Description: "an order pipeline",
		DiagramType: models.ClassDiagram,
		Generation:  &models.GenerationParams{Temperature: &temp, MaxTokens: &maxTokens},
	})
	require.NoError(t, err)

	require.Len(t, client.requests, 1)
	require.NotNil(t, client.requests[0].Temperature)
	assert.Equal(t, 0.2, *client.requests[0].Temperature)
	require.NotNil(t, client.requests[0].MaxTokens)
	assert.Equal(t, 512, *client.requests[0].MaxTokens)
}

func TestGenerateLLMFailureReturnsStub(t *testing.T) {
	client := &fakeLLM{err: errors.New("connection refused")}
	renderer := okRenderer()
	svc := newTestService(t, client, renderer)

	resp, err := svc.Generate(context.Background(), &models.GenerateRequest{
		Description: "a payment flow",
		DiagramType: models.ActivityDiagram,
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusError, resp.Status)
	assert.Contains(t, resp.PlantUMLCode, "@startuml")
	assert.Contains(t, resp.PlantUMLCode, "a payment flow")
	assert.Contains(t, resp.Message, "connection refused")
	assert.Empty(t, resp.ImageBase64)
	assert.Empty(t, renderer.calls, "render must not run after a failed generation")
}

func TestGenerateNoBlockKeepsPriorCode(t *testing.T) {
	client := &fakeLLM{response: "Sorry, I can only discuss UML diagrams."}
	renderer := okRenderer()
	svc := newTestService(t, client, renderer)

	prior := "@startuml\nactor User\n@enduml"
	resp, err := svc.Generate(context.Background(), &models.GenerateRequest{
		Description: "what is the weather",
		DiagramType: models.UseCaseDiagram,
		Code:        prior,
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusError, resp.Status)
	assert.Equal(t, prior, resp.PlantUMLCode)
	assert.Contains(t, resp.Message, "Previous diagram preserved")
	assert.Empty(t, renderer.calls)
}

func TestGenerateNoBlockNoPriorCodeReturnsStub(t *testing.T) {
	client := &fakeLLM{response: "no markup here"}
	svc := newTestService(t, client, okRenderer())

	resp, err := svc.Generate(context.Background(), &models.GenerateRequest{
		Description: "a login flow",
		DiagramType: models.SequenceDiagram,
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusError, resp.Status)
	assert.Contains(t, resp.PlantUMLCode, "@startuml")
	assert.Contains(t, resp.PlantUMLCode, "a login flow")
	assert.Contains(t, resp.Message, "fallback stub")
}

func TestGenerateRenderFailure(t *testing.T) {
	client := &fakeLLM{response: goodResponse}
	renderer := &fakeRenderer{err: fmt.Errorf("%w: server returned 502", render.ErrRenderFailed)}
	svc := newTestService(t, client, renderer)

	resp, err := svc.Generate(context.Background(), &models.GenerateRequest{
		Description: "a user logging in",
		DiagramType: models.SequenceDiagram,
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusError, resp.Status)
	assert.Equal(t, goodCode, resp.PlantUMLCode, "markup survives a render failure")
	assert.Empty(t, resp.ImageBase64)
	assert.Contains(t, resp.Message, "render failed")
}

func TestGenerateNormalizesDoubledBraces(t *testing.T) {
	client := &fakeLLM{response: "@startuml\nclass User {{\n  +name\n}}\n@enduml"}
	svc := newTestService(t, client, okRenderer())

	resp, err := svc.Generate(context.Background(), &models.GenerateRequest{
		Description: "a user entity",
		DiagramType: models.ClassDiagram,
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusOK, resp.Status)
	assert.NotContains(t, resp.PlantUMLCode, "{{")
	assert.NotContains(t, resp.PlantUMLCode, "}}")
}

func TestGenerateServesFromCache(t *testing.T) {
	client := &fakeLLM{response: goodResponse}
	renderer := okRenderer()
	svc := newTestService(t, client, renderer)
	cache := &fakeCache{data: map[string]string{}}
	svc.SetCacheClient(cache)

	req := &models.GenerateRequest{
		Description: "a user logging into a website",
		DiagramType: models.SequenceDiagram,
	}

	first, err := svc.Generate(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, models.StatusOK, first.Status)
	require.Len(t, client.requests, 1)
	require.Equal(t, 1, cache.sets)

	second, err := svc.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOK, second.Status)
	assert.Equal(t, first.PlantUMLCode, second.PlantUMLCode)
	assert.Len(t, client.requests, 1, "cache hit must not call the model")
}

func TestRenderEndpoint(t *testing.T) {
	renderer := okRenderer()
	svc := newTestService(t, &fakeLLM{}, renderer)

	resp, err := svc.Render(context.Background(), &models.RenderRequest{PlantUMLCode: goodCode})
	require.NoError(t, err)
	assert.Equal(t, models.StatusOK, resp.Status)
	assert.Equal(t, "aW1hZ2U=", resp.ImageBase64)

	renderer.err = fmt.Errorf("%w: boom", render.ErrRenderFailed)
	resp, err = svc.Render(context.Background(), &models.RenderRequest{PlantUMLCode: goodCode})
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, resp.Status)
	assert.Contains(t, resp.Message, "boom")
}

func TestCacheKeyDistinguishesInputs(t *testing.T) {
	base := turn{diagramType: models.SequenceDiagram, description: "a login"}
	same := turn{diagramType: models.SequenceDiagram, description: "a login"}
	assert.Equal(t, cacheKey(base), cacheKey(same))

	for name, other := range map[string]turn{
		"type":    {diagramType: models.ClassDiagram, description: "a login"},
		"desc":    {diagramType: models.SequenceDiagram, description: "a logout"},
		"theme":   {diagramType: models.SequenceDiagram, description: "a login", theme: "plain"},
		"code":    {diagramType: models.SequenceDiagram, description: "a login", priorCode: "@startuml\n@enduml"},
		"history": {diagramType: models.SequenceDiagram, description: "a login", history: "user: hi"},
	} {
		assert.NotEqual(t, cacheKey(base), cacheKey(other), "field %s must affect the key", name)
	}
}

func TestGenerateOmitsOptionalPromptSections(t *testing.T) {
	client := &fakeLLM{response: goodResponse}
	svc := newTestService(t, client, okRenderer())

	_, err := svc.Generate(context.Background(), &models.GenerateRequest{
		Description: "a bare request",
		DiagramType: models.ComponentDiagram,
	})
	require.NoError(t, err)

	require.Len(t, client.requests, 1)
	sent := client.requests[0].Messages[0].Content
	assert.False(t, strings.Contains(sent, "{"), "prompt has unresolved placeholders: %s", sent)
	assert.NotContains(t, sent, "Theme:")
	assert.NotContains(t, sent, "Current PlantUML code:")
}
