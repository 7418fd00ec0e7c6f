package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/umldraft/umlbot/internal/models"
	"github.com/umldraft/umlbot/internal/plantuml"
	"github.com/umldraft/umlbot/internal/session"
)

func (s *DiagramService) CreateSession() *models.SessionSnapshot {
	sess := s.sessions.Create()
	s.logger.Printf("created session %s\n", sess.ID)
	return sess.Snapshot()
}

func (s *DiagramService) Session(id string) (*models.SessionSnapshot, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.Snapshot(), nil
}

func (s *DiagramService) DeleteSession(id string) error {
	if !s.sessions.Delete(id) {
		return ErrSessionNotFound
	}
	s.logger.Printf("deleted session %s\n", id)
	return nil
}

// UpdateDiagram applies a manual edit and/or a diagram type switch.
// Switching type replaces the markup only while it is still the untouched
// default skeleton; anything the user or the model produced stays put.
func (s *DiagramService) UpdateDiagram(id string, req *models.DiagramUpdateRequest) (*models.SessionSnapshot, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}

	d := sess.Diagram()
	if req.Code != nil {
		code := strings.TrimSpace(*req.Code)
		if code != "" && !plantuml.IsDelimited(code) {
			return nil, ErrInvalidDiagramCode
		}
		d.Code = code
		d.ImageBase64 = ""
		d.ImageURL = ""
	}
	if req.DiagramType != "" && req.DiagramType != d.Type {
		previous := d.Type
		d.Type = req.DiagramType
		if d.Code == "" || d.Code == plantuml.DefaultSkeleton(previous) {
			d.Code = plantuml.DefaultSkeleton(req.DiagramType)
			d.ImageBase64 = ""
			d.ImageURL = ""
		}
	}
	sess.SetDiagram(d)
	return sess.Snapshot(), nil
}

// Chat runs one conversational turn: the user message lands in the
// transcript, the pipeline runs against the session's history and current
// code, and the session moves Generating → Ready or Failed. On failure the
// previous diagram stays exactly as it was.
func (s *DiagramService) Chat(ctx context.Context, id string, req *models.ChatRequest) (*models.ChatResponse, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}

	t, d := s.beginTurn(sess, req)

	code, raw, err := s.generateCode(ctx, t)
	if err != nil {
		msg := s.failTurn(sess, err)
		return &models.ChatResponse{
			Status:       models.StatusError,
			PlantUMLCode: d.Code,
			ImageBase64:  d.ImageBase64,
			ImageURL:     d.ImageURL,
			Message:      msg,
		}, nil
	}

	sess.Append(models.RoleAssistant, raw)

	result, rerr := s.render(ctx, code)
	if rerr != nil {
		// Markup advanced, image did not. The stale image stays visible.
		sess.Append(models.RoleError, rerr.Error())
		sess.SetDiagram(session.DiagramState{
			Type:        t.diagramType,
			Code:        code,
			ImageBase64: d.ImageBase64,
			ImageURL:    d.ImageURL,
		})
		sess.SetPhase(models.PhaseFailed)
		return &models.ChatResponse{
			Status:       models.StatusError,
			Reply:        raw,
			PlantUMLCode: code,
			ImageBase64:  d.ImageBase64,
			ImageURL:     d.ImageURL,
			Message:      rerr.Error(),
		}, nil
	}

	sess.SetDiagram(session.DiagramState{
		Type:        t.diagramType,
		Code:        code,
		ImageBase64: result.ImageBase64,
		ImageURL:    result.ImageURL,
	})
	sess.SetPhase(models.PhaseReady)

	return &models.ChatResponse{
		Status:       models.StatusOK,
		Reply:        raw,
		PlantUMLCode: code,
		ImageBase64:  result.ImageBase64,
		ImageURL:     result.ImageURL,
		Message:      msgGenerated,
	}, nil
}

// ChatStream is Chat with the model tokens relayed over a channel as they
// arrive. The final chunk carries the extracted code and rendered image. A
// cached turn is served as a single terminal chunk without opening a model
// stream.
func (s *DiagramService) ChatStream(ctx context.Context, id string, req *models.ChatRequest) (<-chan models.StreamChunk, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}

	t, d := s.beginTurn(sess, req)
	key := cacheKey(t)

	if s.cache != nil {
		cached, found, cerr := s.cache.Get(ctx, key)
		if cerr != nil {
			s.logger.Printf("cache get error: %v\n", cerr)
		}
		if found {
			s.logger.Println(msgServedFromCache)
			ch := make(chan models.StreamChunk, 1)
			go func() {
				defer close(ch)
				s.finishStream(ctx, ch, sess, t, d, cached, cached)
			}()
			return ch, nil
		}
	}

	userPrompt := s.template.Render(promptVars(t))
	stream, err := s.llm.CompleteStream(ctx, llmRequest(userPrompt, t))
	if err != nil {
		s.failTurn(sess, fmt.Errorf("%w: %v", ErrGenerationFailed, err))
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	ch := make(chan models.StreamChunk, 1)

	go func() {
		defer close(ch)
		defer stream.Close()

		var builder strings.Builder
		for stream.Next() {
			delta := stream.Delta()
			builder.WriteString(delta)
			if !sendChunk(ctx, ch, models.StreamChunk{Delta: delta}) {
				s.failTurn(sess, fmt.Errorf("%w: %v", ErrGenerationFailed, ctx.Err()))
				return
			}
		}
		if serr := stream.Err(); serr != nil {
			s.failTurn(sess, fmt.Errorf("%w: %v", ErrGenerationFailed, serr))
			sendChunk(ctx, ch, models.StreamChunk{Err: serr})
			return
		}

		raw := builder.String()
		code, err := s.extract(ctx, key, raw)
		if err != nil {
			msg := s.failTurn(sess, err)
			sendChunk(ctx, ch, models.StreamChunk{
				Status:       models.StatusError,
				PlantUMLCode: d.Code,
				ImageBase64:  d.ImageBase64,
				ImageURL:     d.ImageURL,
				Message:      msg,
				Done:         true,
			})
			return
		}

		s.finishStream(ctx, ch, sess, t, d, code, raw)
	}()

	return ch, nil
}

// finishStream runs the tail of a streamed turn: transcript append, render,
// session update and the terminal chunk. The terminal chunk carries the
// result; it blocks until the consumer takes it.
func (s *DiagramService) finishStream(ctx context.Context, ch chan<- models.StreamChunk, sess *session.Session, t turn, d session.DiagramState, code, raw string) {
	sess.Append(models.RoleAssistant, raw)

	result, rerr := s.render(ctx, code)
	if rerr != nil {
		sess.Append(models.RoleError, rerr.Error())
		sess.SetDiagram(session.DiagramState{
			Type:        t.diagramType,
			Code:        code,
			ImageBase64: d.ImageBase64,
			ImageURL:    d.ImageURL,
		})
		sess.SetPhase(models.PhaseFailed)
		sendChunk(ctx, ch, models.StreamChunk{
			Status:       models.StatusError,
			PlantUMLCode: code,
			ImageBase64:  d.ImageBase64,
			ImageURL:     d.ImageURL,
			Message:      rerr.Error(),
			Done:         true,
		})
		return
	}

	sess.SetDiagram(session.DiagramState{
		Type:        t.diagramType,
		Code:        code,
		ImageBase64: result.ImageBase64,
		ImageURL:    result.ImageURL,
	})
	sess.SetPhase(models.PhaseReady)
	sendChunk(ctx, ch, models.StreamChunk{
		Status:       models.StatusOK,
		PlantUMLCode: code,
		ImageBase64:  result.ImageBase64,
		ImageURL:     result.ImageURL,
		Message:      msgGenerated,
		Done:         true,
	})
}

// sendChunk delivers a chunk, blocking until the consumer takes it. A
// cancelled context is checked first so an abandoned stream stops instead
// of racing the consumer's drain.
func sendChunk(ctx context.Context, ch chan<- models.StreamChunk, msg models.StreamChunk) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}
	select {
	case ch <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// beginTurn snapshots the state a turn works against, appends the user
// message and flips the session to Generating.
func (s *DiagramService) beginTurn(sess *session.Session, req *models.ChatRequest) (turn, session.DiagramState) {
	d := sess.Diagram()

	diagramType := d.Type
	if req.DiagramType != "" {
		diagramType = req.DiagramType
	}

	history := formatHistory(sess.Recent(s.historyLimit))
	sess.Append(models.RoleUser, req.Message)
	sess.SetPhase(models.PhaseGenerating)

	return turn{
		diagramType: diagramType,
		description: req.Message,
		theme:       req.Theme,
		priorCode:   d.Code,
		history:     history,
		generation:  req.Generation,
	}, d
}

// failTurn records the failure in the transcript and returns the message
// shown to the client. Diagram state is deliberately untouched.
func (s *DiagramService) failTurn(sess *session.Session, err error) string {
	var msg string
	if errors.Is(err, plantuml.ErrNoBlock) {
		msg = msgKeptPrevious
	} else {
		msg = err.Error()
	}
	sess.Append(models.RoleError, msg)
	sess.SetPhase(models.PhaseFailed)
	return msg
}

func formatHistory(msgs []models.ChatMessage) string {
	var sb strings.Builder
	for _, m := range msgs {
		if m.Role == models.RoleError {
			continue
		}
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
