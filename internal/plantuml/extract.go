package plantuml

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNoBlock reports that a model response carried no recognizable diagram
// markup. Callers decide what to fall back to; the extractor never guesses.
var ErrNoBlock = errors.New("no plantuml block found")

var (
	fencedBlockRe  = regexp.MustCompile("(?is)```(?:plantuml)?\\s*(.*?)```")
	umlBlockRe     = regexp.MustCompile(`(?is)@startuml.*?@enduml`)
	fenceMarkerRe  = regexp.MustCompile("(?m)^```(?:plantuml)?\\s*|```$")
	openBracesRe   = regexp.MustCompile(`\{+`)
	closedBracesRe = regexp.MustCompile(`\}+`)
)

// Extract returns the last well-formed diagram block in text. It looks
// inside triple-backtick fences first, then for bare @startuml/@enduml
// spans, strips any fence markers and surrounding whitespace, and keeps
// only blocks that carry both delimiters. Extract is pure and idempotent:
// feeding its own output back yields the same markup.
func Extract(text string) (string, error) {
	var blocks []string
	for _, m := range fencedBlockRe.FindAllStringSubmatch(text, -1) {
		blocks = append(blocks, m[1])
	}
	blocks = append(blocks, umlBlockRe.FindAllString(text, -1)...)

	var valid []string
	for _, b := range blocks {
		b = strings.TrimSpace(fenceMarkerRe.ReplaceAllString(strings.TrimSpace(b), ""))
		if IsDelimited(b) {
			valid = append(valid, b)
		}
	}
	if len(valid) == 0 {
		return "", ErrNoBlock
	}
	return valid[len(valid)-1], nil
}

// IsDelimited reports whether markup carries both start and end tokens.
// Matching is case-insensitive.
func IsDelimited(code string) bool {
	lower := strings.ToLower(code)
	return strings.Contains(lower, "@startuml") && strings.Contains(lower, "@enduml")
}

// NormalizeBraces collapses doubled curly braces into single ones. Models
// occasionally emit {{ ... }} for container nodes, which the render server
// rejects.
func NormalizeBraces(code string) string {
	code = openBracesRe.ReplaceAllString(code, "{")
	return closedBracesRe.ReplaceAllString(code, "}")
}
