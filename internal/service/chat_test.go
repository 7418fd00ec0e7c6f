package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umldraft/umlbot/internal/models"
	"github.com/umldraft/umlbot/internal/plantuml"
	"github.com/umldraft/umlbot/internal/render"
)

func TestCreateAndGetSession(t *testing.T) {
	svc := newTestService(t, &fakeLLM{}, okRenderer())

	snap := svc.CreateSession()
	require.NotEmpty(t, snap.SessionID)
	assert.Equal(t, models.PhaseIdle, snap.Phase)
	assert.Equal(t, models.DefaultDiagramType, snap.DiagramType)
	assert.True(t, plantuml.IsDelimited(snap.Code))
	assert.Empty(t, snap.Messages)

	got, err := svc.Session(snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, snap.SessionID, got.SessionID)

	_, err = svc.Session("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDeleteSession(t *testing.T) {
	svc := newTestService(t, &fakeLLM{}, okRenderer())
	snap := svc.CreateSession()

	require.NoError(t, svc.DeleteSession(snap.SessionID))
	assert.ErrorIs(t, svc.DeleteSession(snap.SessionID), ErrSessionNotFound)

	_, err := svc.Session(snap.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestChatSuccess(t *testing.T) {
	client := &fakeLLM{response: goodResponse}
	svc := newTestService(t, client, okRenderer())
	snap := svc.CreateSession()

	resp, err := svc.Chat(context.Background(), snap.SessionID, &models.ChatRequest{
		Message:     "a user logging into a website",
		DiagramType: models.SequenceDiagram,
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusOK, resp.Status)
	assert.Equal(t, goodCode, resp.PlantUMLCode)
	assert.Equal(t, goodResponse, resp.Reply)
	assert.Equal(t, "aW1hZ2U=", resp.ImageBase64)

	after, err := svc.Session(snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseReady, after.Phase)
	assert.Equal(t, models.SequenceDiagram, after.DiagramType)
	assert.Equal(t, goodCode, after.Code)

	require.Len(t, after.Messages, 2)
	assert.Equal(t, models.RoleUser, after.Messages[0].Role)
	assert.Equal(t, "a user logging into a website", after.Messages[0].Content)
	assert.Equal(t, models.RoleAssistant, after.Messages[1].Role)
	assert.Equal(t, goodResponse, after.Messages[1].Content)
}

func TestChatSessionNotFound(t *testing.T) {
	svc := newTestService(t, &fakeLLM{response: goodResponse}, okRenderer())
	_, err := svc.Chat(context.Background(), "missing", &models.ChatRequest{Message: "hi"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestChatNoBlockPreservesDiagram(t *testing.T) {
	client := &fakeLLM{response: goodResponse}
	svc := newTestService(t, client, okRenderer())
	snap := svc.CreateSession()

	_, err := svc.Chat(context.Background(), snap.SessionID, &models.ChatRequest{
		Message:     "a user logging into a website",
		DiagramType: models.SequenceDiagram,
	})
	require.NoError(t, err)

	client.response = "I can only help with UML diagrams."
	resp, err := svc.Chat(context.Background(), snap.SessionID, &models.ChatRequest{
		Message: "what is the weather today",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusError, resp.Status)
	assert.Equal(t, goodCode, resp.PlantUMLCode, "previous markup must survive")
	assert.Equal(t, "aW1hZ2U=", resp.ImageBase64, "previous image must survive")
	assert.Contains(t, resp.Message, "Previous diagram preserved")

	after, err := svc.Session(snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseFailed, after.Phase)
	assert.Equal(t, goodCode, after.Code)

	last := after.Messages[len(after.Messages)-1]
	assert.Equal(t, models.RoleError, last.Role)
	assert.Contains(t, last.Content, "Previous diagram preserved")
}

func TestChatLLMFailurePreservesDiagram(t *testing.T) {
	client := &fakeLLM{response: goodResponse}
	renderer := okRenderer()
	svc := newTestService(t, client, renderer)
	snap := svc.CreateSession()

	_, err := svc.Chat(context.Background(), snap.SessionID, &models.ChatRequest{
		Message: "a login flow", DiagramType: models.SequenceDiagram,
	})
	require.NoError(t, err)
	renderCalls := len(renderer.calls)

	client.err = errors.New("rate limited")
	resp, err := svc.Chat(context.Background(), snap.SessionID, &models.ChatRequest{
		Message: "add a database",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusError, resp.Status)
	assert.Equal(t, goodCode, resp.PlantUMLCode)
	assert.Contains(t, resp.Message, "rate limited")
	assert.Len(t, renderer.calls, renderCalls, "render must not run after a failed model call")

	after, err := svc.Session(snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseFailed, after.Phase)
	assert.Equal(t, goodCode, after.Code)
}

func TestChatRenderFailureKeepsStaleImage(t *testing.T) {
	client := &fakeLLM{response: goodResponse}
	renderer := okRenderer()
	svc := newTestService(t, client, renderer)
	snap := svc.CreateSession()

	_, err := svc.Chat(context.Background(), snap.SessionID, &models.ChatRequest{
		Message: "a login flow", DiagramType: models.SequenceDiagram,
	})
	require.NoError(t, err)

	updated := "@startuml\nAlice -> Bob: login\nBob -> DB: check\n@enduml"
	client.response = "```plantuml\n" + updated + "\n```"
	renderer.err = fmt.Errorf("%w: server returned 502", render.ErrRenderFailed)

	resp, err := svc.Chat(context.Background(), snap.SessionID, &models.ChatRequest{
		Message: "add a database check",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusError, resp.Status)
	assert.Equal(t, updated, resp.PlantUMLCode, "markup advances even when the image does not")
	assert.Equal(t, "aW1hZ2U=", resp.ImageBase64, "stale image stays visible")

	after, err := svc.Session(snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseFailed, after.Phase)
	assert.Equal(t, updated, after.Code)
	assert.Equal(t, "aW1hZ2U=", after.ImageBase64)
}

func TestChatPassesHistoryToPrompt(t *testing.T) {
	client := &fakeLLM{response: goodResponse}
	svc := newTestService(t, client, okRenderer())
	snap := svc.CreateSession()

	_, err := svc.Chat(context.Background(), snap.SessionID, &models.ChatRequest{
		Message: "a login flow", DiagramType: models.SequenceDiagram,
	})
	require.NoError(t, err)

	_, err = svc.Chat(context.Background(), snap.SessionID, &models.ChatRequest{
		Message: "add a password reset",
	})
	require.NoError(t, err)

	require.Len(t, client.requests, 2)
	second := client.requests[1].Messages[0].Content
	assert.Contains(t, second, "user: a login flow")
	assert.Contains(t, second, goodCode, "current code goes into the prompt")
}

func TestChatHistoryExcludesErrorMessages(t *testing.T) {
	history := formatHistory([]models.ChatMessage{
		{Role: models.RoleUser, Content: "draw it"},
		{Role: models.RoleError, Content: "render failed"},
		{Role: models.RoleAssistant, Content: "@startuml\n@enduml"},
	})
	assert.NotContains(t, history, "render failed")
	assert.Contains(t, history, "user: draw it")
	assert.Contains(t, history, "assistant: @startuml")
}

func TestUpdateDiagramCodeEdit(t *testing.T) {
	svc := newTestService(t, &fakeLLM{}, okRenderer())
	snap := svc.CreateSession()

	edited := "@startuml\nactor Admin\n@enduml"
	got, err := svc.UpdateDiagram(snap.SessionID, &models.DiagramUpdateRequest{Code: &edited})
	require.NoError(t, err)
	assert.Equal(t, edited, got.Code)
	assert.Empty(t, got.ImageBase64, "edit invalidates the rendered image")

	bad := "actor Admin"
	_, err = svc.UpdateDiagram(snap.SessionID, &models.DiagramUpdateRequest{Code: &bad})
	assert.ErrorIs(t, err, ErrInvalidDiagramCode)

	empty := ""
	got, err = svc.UpdateDiagram(snap.SessionID, &models.DiagramUpdateRequest{Code: &empty})
	require.NoError(t, err)
	assert.Empty(t, got.Code, "clearing the markup is allowed")
}

func TestUpdateDiagramTypeSwitch(t *testing.T) {
	svc := newTestService(t, &fakeLLM{}, okRenderer())

	t.Run("untouched skeleton is replaced", func(t *testing.T) {
		snap := svc.CreateSession()
		got, err := svc.UpdateDiagram(snap.SessionID, &models.DiagramUpdateRequest{
			DiagramType: models.ClassDiagram,
		})
		require.NoError(t, err)
		assert.Equal(t, models.ClassDiagram, got.DiagramType)
		assert.Equal(t, plantuml.DefaultSkeleton(models.ClassDiagram), got.Code)
	})

	t.Run("user content survives the switch", func(t *testing.T) {
		snap := svc.CreateSession()
		edited := "@startuml\nactor Admin\n@enduml"
		_, err := svc.UpdateDiagram(snap.SessionID, &models.DiagramUpdateRequest{Code: &edited})
		require.NoError(t, err)

		got, err := svc.UpdateDiagram(snap.SessionID, &models.DiagramUpdateRequest{
			DiagramType: models.ClassDiagram,
		})
		require.NoError(t, err)
		assert.Equal(t, models.ClassDiagram, got.DiagramType)
		assert.Equal(t, edited, got.Code)
	})

	t.Run("missing session", func(t *testing.T) {
		_, err := svc.UpdateDiagram("missing", &models.DiagramUpdateRequest{
			DiagramType: models.ClassDiagram,
		})
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestChatStreamSuccess(t *testing.T) {
	deltas := []string{"@startuml\n", "Alice -> Bob: login\n", "@enduml"}
	client := &fakeLLM{deltas: deltas}
	svc := newTestService(t, client, okRenderer())
	snap := svc.CreateSession()

	ch, err := svc.ChatStream(context.Background(), snap.SessionID, &models.ChatRequest{
		Message: "a login flow", DiagramType: models.SequenceDiagram,
	})
	require.NoError(t, err)

	var got []models.StreamChunk
	for chunk := range ch {
		got = append(got, chunk)
	}
	require.Len(t, got, len(deltas)+1)

	for i, d := range deltas {
		assert.Equal(t, d, got[i].Delta)
		assert.False(t, got[i].Done)
	}

	final := got[len(got)-1]
	assert.True(t, final.Done)
	assert.Equal(t, models.StatusOK, final.Status)
	assert.Equal(t, goodCode, final.PlantUMLCode)
	assert.Equal(t, "aW1hZ2U=", final.ImageBase64)

	after, err := svc.Session(snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseReady, after.Phase)
	assert.Equal(t, goodCode, after.Code)
}

func TestChatStreamNoBlock(t *testing.T) {
	client := &fakeLLM{deltas: []string{"sorry, ", "no diagram"}}
	svc := newTestService(t, client, okRenderer())
	snap := svc.CreateSession()

	ch, err := svc.ChatStream(context.Background(), snap.SessionID, &models.ChatRequest{
		Message: "what time is it",
	})
	require.NoError(t, err)

	var final models.StreamChunk
	for chunk := range ch {
		final = chunk
	}
	assert.True(t, final.Done)
	assert.Equal(t, models.StatusError, final.Status)
	assert.Contains(t, final.Message, "Previous diagram preserved")

	after, err := svc.Session(snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseFailed, after.Phase)
}

func TestChatStreamSlowConsumerGetsFinalChunk(t *testing.T) {
	deltas := []string{"@startuml\n", "Alice -> Bob: login\n", "@enduml"}
	client := &fakeLLM{deltas: deltas}
	svc := newTestService(t, client, okRenderer())
	snap := svc.CreateSession()

	ch, err := svc.ChatStream(context.Background(), snap.SessionID, &models.ChatRequest{
		Message: "a login flow", DiagramType: models.SequenceDiagram,
	})
	require.NoError(t, err)

	// A consumer that lags behind the producer must still receive every
	// chunk, the terminal one included.
	var got []models.StreamChunk
	for chunk := range ch {
		got = append(got, chunk)
		time.Sleep(20 * time.Millisecond)
	}

	require.Len(t, got, len(deltas)+1)
	final := got[len(got)-1]
	assert.True(t, final.Done, "terminal chunk must survive a slow consumer")
	assert.Equal(t, models.StatusOK, final.Status)
	assert.Equal(t, goodCode, final.PlantUMLCode)
	assert.Equal(t, "aW1hZ2U=", final.ImageBase64)
}

func TestChatStreamServesFromCache(t *testing.T) {
	client := &fakeLLM{response: goodResponse, deltas: []string{"unused"}}
	svc := newTestService(t, client, okRenderer())
	cache := &fakeCache{data: map[string]string{}}
	svc.SetCacheClient(cache)

	req := &models.ChatRequest{Message: "a login flow", DiagramType: models.SequenceDiagram}

	first := svc.CreateSession()
	_, err := svc.Chat(context.Background(), first.SessionID, req)
	require.NoError(t, err)
	require.Equal(t, 1, cache.sets)
	callsAfterChat := len(client.requests)

	// A fresh session with the same turn hits the cached markup.
	second := svc.CreateSession()
	ch, err := svc.ChatStream(context.Background(), second.SessionID, req)
	require.NoError(t, err)

	var got []models.StreamChunk
	for chunk := range ch {
		got = append(got, chunk)
	}
	require.Len(t, got, 1, "cache hit is served as a single terminal chunk")
	assert.True(t, got[0].Done)
	assert.Equal(t, models.StatusOK, got[0].Status)
	assert.Equal(t, goodCode, got[0].PlantUMLCode)
	assert.Equal(t, "aW1hZ2U=", got[0].ImageBase64)
	assert.Len(t, client.requests, callsAfterChat, "cache hit must not open a model stream")

	after, err := svc.Session(second.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseReady, after.Phase)
	assert.Equal(t, goodCode, after.Code)
}

func TestChatStreamCancelledClientFailsSession(t *testing.T) {
	client := &fakeLLM{deltas: []string{"@startuml\n", "Alice -> Bob\n", "@enduml"}}
	svc := newTestService(t, client, okRenderer())
	snap := svc.CreateSession()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := svc.ChatStream(ctx, snap.SessionID, &models.ChatRequest{Message: "a login flow"})
	require.NoError(t, err)

	cancel()
	for range ch {
	}

	after, serr := svc.Session(snap.SessionID)
	require.NoError(t, serr)
	assert.Equal(t, models.PhaseFailed, after.Phase,
		"an abandoned stream must not leave the session generating")
}

func TestChatStreamSetupFailure(t *testing.T) {
	client := &fakeLLM{err: errors.New("bad api key")}
	svc := newTestService(t, client, okRenderer())
	snap := svc.CreateSession()

	_, err := svc.ChatStream(context.Background(), snap.SessionID, &models.ChatRequest{
		Message: "a login flow",
	})
	require.ErrorIs(t, err, ErrGenerationFailed)

	after, serr := svc.Session(snap.SessionID)
	require.NoError(t, serr)
	assert.Equal(t, models.PhaseFailed, after.Phase)
}

func TestChatStreamSessionNotFound(t *testing.T) {
	svc := newTestService(t, &fakeLLM{}, okRenderer())
	_, err := svc.ChatStream(context.Background(), "missing", &models.ChatRequest{Message: "hi"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
