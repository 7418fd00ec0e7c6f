// Package prompt builds the text sent to the model from a human-edited
// template file, or from a built-in fallback with the same placeholders.
package prompt

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// TemplateError covers every way a template can be unusable: unreadable
// file, unknown placeholder, or a missing required one. Template problems
// block a request before any outbound call is made.
type TemplateError struct {
	Reason string
}

func (e *TemplateError) Error() string {
	return "prompt template: " + e.Reason
}

const (
	PlaceholderDiagramType = "diagram_type"
	PlaceholderDescription = "description"
	PlaceholderTheme       = "theme"
	PlaceholderHistory     = "history"
	PlaceholderCode        = "current_code"
)

var requiredPlaceholders = []string{PlaceholderDiagramType, PlaceholderDescription}

var knownPlaceholders = map[string]bool{
	PlaceholderDiagramType: true,
	PlaceholderDescription: true,
	PlaceholderTheme:       true,
	PlaceholderHistory:     true,
	PlaceholderCode:        true,
}

var placeholderRe = regexp.MustCompile(`\{([a-z_]+)\}`)

const defaultTemplate = `You are an expert in UML and PlantUML.
Convert the following description into a PlantUML {diagram_type} diagram.

Conversation so far:
{history}
Current PlantUML code: {current_code}
Theme: {theme}

Request: {description}

Respond with the complete updated diagram inside @startuml and @enduml markers.
Return only the PlantUML code.`

// Vars are the concrete values substituted into a template. Theme, History
// and Code are optional; lines referencing them are stripped when empty.
type Vars struct {
	DiagramType string
	Description string
	Theme       string
	History     string
	Code        string
}

type Template struct {
	text string
}

// New validates raw template text: every {name} token must be a known
// placeholder and the required ones must be present. Validating up front
// means Render can never leave a token unresolved.
func New(text string) (*Template, error) {
	found := map[string]bool{}
	for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if !knownPlaceholders[name] {
			return nil, &TemplateError{Reason: fmt.Sprintf("unknown placeholder {%s}", name)}
		}
		found[name] = true
	}
	var missing []string
	for _, name := range requiredPlaceholders {
		if !found[name] {
			missing = append(missing, "{"+name+"}")
		}
	}
	if len(missing) > 0 {
		return nil, &TemplateError{Reason: "missing required placeholders: " + strings.Join(missing, ", ")}
	}
	return &Template{text: text}, nil
}

// Load reads a template file and validates it.
func Load(path string) (*Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &TemplateError{Reason: fmt.Sprintf("read %s: %v", path, err)}
	}
	return New(string(raw))
}

// Default returns the built-in template used when no file is configured.
func Default() *Template {
	return &Template{text: defaultTemplate}
}

// Render substitutes vars into the template. Lines whose only placeholders
// are optional and empty are dropped rather than left dangling.
func (t *Template) Render(v Vars) string {
	values := map[string]string{
		PlaceholderDiagramType: v.DiagramType,
		PlaceholderDescription: v.Description,
		PlaceholderTheme:       v.Theme,
		PlaceholderHistory:     v.History,
		PlaceholderCode:        v.Code,
	}

	lines := strings.Split(t.text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if dropLine(line, values) {
			continue
		}
		kept = append(kept, line)
	}

	out := strings.Join(kept, "\n")
	return placeholderRe.ReplaceAllStringFunc(out, func(tok string) string {
		name := placeholderRe.FindStringSubmatch(tok)[1]
		return values[name]
	})
}

// dropLine reports whether a line references at least one placeholder and
// all of its placeholders resolve to empty optional values.
func dropLine(line string, values map[string]string) bool {
	matches := placeholderRe.FindAllStringSubmatch(line, -1)
	if len(matches) == 0 {
		return false
	}
	for _, m := range matches {
		name := m[1]
		if values[name] != "" {
			return false
		}
		required := false
		for _, r := range requiredPlaceholders {
			if r == name {
				required = true
			}
		}
		if required {
			return false
		}
	}
	return true
}
