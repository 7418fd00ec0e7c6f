package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/umldraft/umlbot/internal/llm"
	"github.com/umldraft/umlbot/internal/metrics"
	"github.com/umldraft/umlbot/internal/models"
	"github.com/umldraft/umlbot/internal/plantuml"
	"github.com/umldraft/umlbot/internal/prompt"
	"github.com/umldraft/umlbot/internal/render"
	"github.com/umldraft/umlbot/internal/session"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrGenerationFailed = errors.New("generation failed")
	// ErrInvalidDiagramCode rejects user edits that drop the delimiters.
	ErrInvalidDiagramCode = errors.New("diagram code must be delimited by @startuml and @enduml, or empty")
)

type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
}

type Renderer interface {
	Render(ctx context.Context, code string) (*render.Result, error)
}

// DiagramService runs the whole pipeline: prompt construction, the model
// call, markup extraction and the render call. One request makes at most
// two outbound calls, in that order, and the render call only happens when
// extraction succeeded. Nothing here retries; the user retries.
type DiagramService struct {
	logger       *log.Logger
	llm          llm.Client
	renderer     Renderer
	template     *prompt.Template
	sessions     *session.Store
	cache        Cache
	historyLimit int
}

func NewDiagramService(
	logger *log.Logger,
	llmClient llm.Client,
	renderer Renderer,
	template *prompt.Template,
	sessions *session.Store,
	historyLimit int,
) *DiagramService {
	return &DiagramService{
		logger:       logger,
		llm:          llmClient,
		renderer:     renderer,
		template:     template,
		sessions:     sessions,
		historyLimit: historyLimit,
	}
}

func (s *DiagramService) SetCacheClient(cache Cache) {
	s.cache = cache
}

// turn carries everything one generation attempt needs.
type turn struct {
	diagramType models.DiagramType
	description string
	theme       string
	priorCode   string
	history     string
	generation  *models.GenerationParams
}

// Generate handles the stateless /api/generate path.
func (s *DiagramService) Generate(ctx context.Context, req *models.GenerateRequest) (*models.GenerateResponse, error) {
	t := turn{
		diagramType: req.DiagramType,
		description: req.Description,
		theme:       req.Theme,
		priorCode:   req.Code,
		generation:  req.Generation,
	}

	code, _, err := s.generateCode(ctx, t)
	if err != nil {
		code, msg := s.fallbackFor(t, err)
		return &models.GenerateResponse{
			Status:       models.StatusError,
			PlantUMLCode: code,
			Message:      msg,
		}, nil
	}

	result, err := s.render(ctx, code)
	if err != nil {
		return &models.GenerateResponse{
			Status:       models.StatusError,
			PlantUMLCode: code,
			Message:      err.Error(),
		}, nil
	}

	return &models.GenerateResponse{
		Status:       models.StatusOK,
		PlantUMLCode: code,
		ImageBase64:  result.ImageBase64,
		ImageURL:     result.ImageURL,
		Message:      msgGenerated,
	}, nil
}

// Render re-renders already generated markup, e.g. after a manual edit.
func (s *DiagramService) Render(ctx context.Context, req *models.RenderRequest) (*models.RenderResponse, error) {
	result, err := s.render(ctx, req.PlantUMLCode)
	if err != nil {
		return &models.RenderResponse{
			Status:  models.StatusError,
			Message: err.Error(),
		}, nil
	}
	return &models.RenderResponse{
		Status:      models.StatusOK,
		ImageBase64: result.ImageBase64,
		ImageURL:    result.ImageURL,
		Message:     msgRendered,
	}, nil
}

// generateCode runs prompt → model → extraction and returns the cleaned
// markup together with the raw model response. A cache hit skips the model
// call entirely.
func (s *DiagramService) generateCode(ctx context.Context, t turn) (code string, raw string, err error) {
	start := time.Now()
	status := models.StatusError
	defer func() {
		metrics.GenerationTotal(status, string(t.diagramType))
		metrics.GenerationDuration(status, time.Since(start))
	}()

	key := cacheKey(t)
	if s.cache != nil {
		cached, found, cerr := s.cache.Get(ctx, key)
		if cerr != nil {
			s.logger.Printf("cache get error: %v\n", cerr)
		}
		if found {
			s.logger.Println(msgServedFromCache)
			status = models.StatusOK
			return cached, cached, nil
		}
	}

	userPrompt := s.template.Render(promptVars(t))

	raw, err = s.llm.Complete(ctx, llmRequest(userPrompt, t))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	code, err = s.extract(ctx, key, raw)
	if err != nil {
		return "", raw, err
	}
	status = models.StatusOK
	return code, raw, nil
}

// extract isolates the diagram block from a raw response and caches it.
func (s *DiagramService) extract(ctx context.Context, key, raw string) (string, error) {
	code, err := plantuml.Extract(raw)
	if err != nil {
		return "", err
	}
	code = plantuml.NormalizeBraces(code)

	if s.cache != nil {
		if cerr := s.cache.Set(ctx, key, code); cerr != nil {
			s.logger.Printf("failed to set cache: %v\n", cerr)
		}
	}
	return code, nil
}

// fallbackFor decides what markup to show after a failed attempt: the prior
// code when there is one, otherwise a commented stub. Never empty markup,
// never a destructive clear.
func (s *DiagramService) fallbackFor(t turn, err error) (code, msg string) {
	if errors.Is(err, plantuml.ErrNoBlock) {
		msg = msgKeptPrevious
	} else {
		msg = err.Error()
	}
	if t.priorCode != "" {
		return t.priorCode, msg
	}
	if errors.Is(err, plantuml.ErrNoBlock) {
		msg = "No diagram markup found in the response. " + msgFallbackStub
	} else {
		msg = msg + " " + msgFallbackStub
	}
	return plantuml.FallbackStub(t.diagramType, t.description), msg
}

func (s *DiagramService) render(ctx context.Context, code string) (*render.Result, error) {
	start := time.Now()
	result, err := s.renderer.Render(ctx, code)

	status := models.StatusOK
	if err != nil {
		status = models.StatusError
		s.logger.Printf("render error: %v\n", err)
	}
	metrics.RenderTotal(status)
	metrics.RenderDuration(status, time.Since(start))
	return result, err
}

func promptVars(t turn) prompt.Vars {
	return prompt.Vars{
		DiagramType: string(t.diagramType),
		Description: t.description,
		Theme:       t.theme,
		History:     t.history,
		Code:        t.priorCode,
	}
}

func llmRequest(userPrompt string, t turn) llm.Request {
	req := llm.Request{
		System:   systemPrompt,
		Messages: []llm.Message{{Role: models.RoleUser, Content: userPrompt}},
	}
	if t.generation != nil {
		req.Temperature = t.generation.Temperature
		req.MaxTokens = t.generation.MaxTokens
	}
	return req
}

func cacheKey(t turn) string {
	data := strings.Join([]string{
		string(t.diagramType),
		t.description,
		t.theme,
		t.priorCode,
		t.history,
	}, "\x00")
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
