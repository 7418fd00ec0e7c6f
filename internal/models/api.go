package models

import "fmt"

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// GenerateRequest asks for a diagram from a natural-language description.
// Code, when set, carries the previously generated markup so the model can
// revise instead of starting over.
type GenerateRequest struct {
	Description string      `json:"description" example:"a user logging into a website"`
	DiagramType DiagramType `json:"diagram_type" example:"Sequence"`
	Theme       string      `json:"theme,omitempty" example:"plain"`
	Code        string      `json:"code,omitempty"`

	Generation *GenerationParams `json:"generation,omitempty"`
}

func (r GenerateRequest) Validate() error {
	if r.Description == "" {
		return fmt.Errorf("description is empty")
	}
	if r.DiagramType == "" {
		return fmt.Errorf("diagram_type is empty")
	}
	if !r.DiagramType.Valid() {
		return fmt.Errorf("unsupported diagram_type %q", r.DiagramType)
	}
	return nil
}

// GenerationParams holds optional OpenAI-like generation parameters.
type GenerationParams struct {
	Temperature *float64 `json:"temperature,omitempty" example:"0.7"`
	MaxTokens   *int     `json:"max_tokens,omitempty" example:"1024"`
}

type GenerateResponse struct {
	Status       string `json:"status" example:"ok"`
	PlantUMLCode string `json:"plantuml_code"`
	ImageBase64  string `json:"image_base64,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
	Message      string `json:"message,omitempty"`
}

type RenderRequest struct {
	PlantUMLCode string `json:"plantuml_code"`
}

func (r RenderRequest) Validate() error {
	if r.PlantUMLCode == "" {
		return fmt.Errorf("plantuml_code is empty")
	}
	return nil
}

type RenderResponse struct {
	Status      string `json:"status" example:"ok"`
	ImageBase64 string `json:"image_base64,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	Message     string `json:"message,omitempty"`
}

// ChatRequest submits one conversational turn against a session.
type ChatRequest struct {
	Message     string      `json:"message" example:"add a password reset flow"`
	DiagramType DiagramType `json:"diagram_type,omitempty" example:"Sequence"`
	Theme       string      `json:"theme,omitempty"`

	Generation *GenerationParams `json:"generation,omitempty"`
}

func (r ChatRequest) Validate() error {
	if r.Message == "" {
		return fmt.Errorf("message is empty")
	}
	if r.DiagramType != "" && !r.DiagramType.Valid() {
		return fmt.Errorf("unsupported diagram_type %q", r.DiagramType)
	}
	return nil
}

type ChatResponse struct {
	Status       string `json:"status" example:"ok"`
	Reply        string `json:"reply,omitempty"`
	PlantUMLCode string `json:"plantuml_code"`
	ImageBase64  string `json:"image_base64,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
	Message      string `json:"message,omitempty"`
}

// DiagramUpdateRequest switches the diagram type and/or replaces the markup
// with a user edit.
type DiagramUpdateRequest struct {
	DiagramType DiagramType `json:"diagram_type,omitempty"`
	Code        *string     `json:"code,omitempty"`
}

func (r DiagramUpdateRequest) Validate() error {
	if r.DiagramType == "" && r.Code == nil {
		return fmt.Errorf("nothing to update")
	}
	if r.DiagramType != "" && !r.DiagramType.Valid() {
		return fmt.Errorf("unsupported diagram_type %q", r.DiagramType)
	}
	return nil
}

// SessionSnapshot is a read-only view of a session returned to clients.
type SessionSnapshot struct {
	SessionID   string        `json:"session_id"`
	Phase       Phase         `json:"phase"`
	DiagramType DiagramType   `json:"diagram_type"`
	Code        string        `json:"code"`
	ImageBase64 string        `json:"image_base64,omitempty"`
	ImageURL    string        `json:"image_url,omitempty"`
	Messages    []ChatMessage `json:"messages"`
}

// StreamChunk is one SSE frame of a streaming chat turn. Either Delta is set
// (a token from the model), or Done is set together with the final diagram
// fields. Err never crosses the wire; it terminates the stream.
type StreamChunk struct {
	Status       string `json:"status,omitempty"`
	Delta        string `json:"delta,omitempty"`
	PlantUMLCode string `json:"plantuml_code,omitempty"`
	ImageBase64  string `json:"image_base64,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
	Message      string `json:"message,omitempty"`
	Done         bool   `json:"done,omitempty"`
	Err          error  `json:"-"`
}
