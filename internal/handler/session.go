package handler

import (
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"

	"github.com/umldraft/umlbot/internal/models"
)

// CreateSession godoc
// @Summary Start a new chat session
// @Tags sessions
// @Produce json
// @Success 201 {object} models.SessionSnapshot
// @Router /api/sessions [post]
func (h *DiagramHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, h.service.CreateSession())
}

// GetSession godoc
// @Summary Fetch transcript and diagram state
// @Tags sessions
// @Produce json
// @Param sessionID path string true "Session ID"
// @Success 200 {object} models.SessionSnapshot
// @Failure 404 {object} handler.errorResponse
// @Router /api/sessions/{sessionID} [get]
func (h *DiagramHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Session(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// DeleteSession godoc
// @Summary Drop a session and all of its state
// @Tags sessions
// @Param sessionID path string true "Session ID"
// @Success 204
// @Failure 404 {object} handler.errorResponse
// @Router /api/sessions/{sessionID} [delete]
func (h *DiagramHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteSession(chi.URLParam(r, "sessionID")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateDiagram godoc
// @Summary Switch diagram type or apply a manual edit
// @Tags sessions
// @Accept json
// @Produce json
// @Param sessionID path string true "Session ID"
// @Param request body models.DiagramUpdateRequest true "Update request"
// @Success 200 {object} models.SessionSnapshot
// @Failure 400 {object} handler.errorResponse
// @Failure 404 {object} handler.errorResponse
// @Router /api/sessions/{sessionID}/diagram [put]
func (h *DiagramHandler) UpdateDiagram(w http.ResponseWriter, r *http.Request) {
	var req models.DiagramUpdateRequest
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("request validation failed: %s", err))
		return
	}

	snap, err := h.service.UpdateDiagram(chi.URLParam(r, "sessionID"), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Chat godoc
// @Summary Submit a chat turn
// @Description Runs the full pipeline against the session history and updates the session diagram.
// @Tags sessions
// @Accept json
// @Produce json
// @Param sessionID path string true "Session ID"
// @Param request body models.ChatRequest true "Chat request"
// @Success 200 {object} models.ChatResponse
// @Failure 400 {object} handler.errorResponse
// @Failure 404 {object} handler.errorResponse
// @Router /api/sessions/{sessionID}/chat [post]
func (h *DiagramHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("request validation failed: %s", err))
		return
	}

	resp, err := h.service.Chat(r.Context(), chi.URLParam(r, "sessionID"), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ChatStream godoc
// @Summary Submit a chat turn, streamed
// @Description Same as chat, but model tokens arrive as SSE message events; the final event carries code and image.
// @Tags sessions
// @Accept json
// @Produce text/event-stream
// @Param sessionID path string true "Session ID"
// @Param request body models.ChatRequest true "Chat request"
// @Success 200 {object} models.StreamChunk "Stream of tokens (SSE)"
// @Failure 400 {object} handler.errorResponse
// @Failure 404 {object} handler.errorResponse
// @Router /api/sessions/{sessionID}/chat/stream [post]
func (h *DiagramHandler) ChatStream(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("request validation failed: %s", err))
		return
	}

	stream, err := h.service.ChatStream(r.Context(), chi.URLParam(r, "sessionID"), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher := http.NewResponseController(w)

	for chunk := range stream {
		if chunk.Err != nil {
			fmt.Fprintf(w, "event: error\ndata: %v\n\n", chunk.Err)
			_ = flusher.Flush()
			return
		}

		data, err := sonic.Marshal(chunk)
		if err != nil {
			fmt.Fprintf(w, "event: error\ndata: marshal error %v\n\n", err)
			_ = flusher.Flush()
			return
		}

		fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
		_ = flusher.Flush()

		if chunk.Done {
			fmt.Fprintf(w, "event: done\ndata: {}\n\n")
			_ = flusher.Flush()
			return
		}
	}
}
