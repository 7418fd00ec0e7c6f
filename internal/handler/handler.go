package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/bytedance/sonic"

	"github.com/umldraft/umlbot/internal/models"
	"github.com/umldraft/umlbot/internal/service"
)

type diagramService interface {
	Generate(ctx context.Context, req *models.GenerateRequest) (*models.GenerateResponse, error)
	Render(ctx context.Context, req *models.RenderRequest) (*models.RenderResponse, error)
	CreateSession() *models.SessionSnapshot
	Session(id string) (*models.SessionSnapshot, error)
	DeleteSession(id string) error
	UpdateDiagram(id string, req *models.DiagramUpdateRequest) (*models.SessionSnapshot, error)
	Chat(ctx context.Context, id string, req *models.ChatRequest) (*models.ChatResponse, error)
	ChatStream(ctx context.Context, id string, req *models.ChatRequest) (<-chan models.StreamChunk, error)
}

type DiagramHandler struct {
	service diagramService
}

func NewDiagramHandler(service diagramService) *DiagramHandler {
	return &DiagramHandler{
		service: service,
	}
}

type errorResponse struct {
	Status  string `json:"status" example:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Status: models.StatusError, Message: msg})
}

// writeServiceError maps service failures onto HTTP codes. Pipeline
// failures never land here; they travel inside a 200 envelope.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidDiagramCode):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
