package handler

import (
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"

	"github.com/umldraft/umlbot/internal/models"
)

// Generate godoc
// @Summary Generate a diagram from a description
// @Description Turns a natural-language description into PlantUML markup and a rendered image.
// @Tags diagrams
// @Accept json
// @Produce json
// @Param request body models.GenerateRequest true "Generate request"
// @Success 200 {object} models.GenerateResponse
// @Failure 400 {object} handler.errorResponse
// @Failure 500 {object} handler.errorResponse
// @Router /api/generate [post]
func (h *DiagramHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateRequest
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("request validation failed: %s", err))
		return
	}

	resp, err := h.service.Generate(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Render godoc
// @Summary Render PlantUML markup
// @Description Renders an already generated (possibly hand-edited) PlantUML snippet into an image.
// @Tags diagrams
// @Accept json
// @Produce json
// @Param request body models.RenderRequest true "Render request"
// @Success 200 {object} models.RenderResponse
// @Failure 400 {object} handler.errorResponse
// @Failure 500 {object} handler.errorResponse
// @Router /api/render [post]
func (h *DiagramHandler) Render(w http.ResponseWriter, r *http.Request) {
	var req models.RenderRequest
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("request validation failed: %s", err))
		return
	}

	resp, err := h.service.Render(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
