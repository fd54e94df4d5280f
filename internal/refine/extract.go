package refine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSON pulls a single well-formed JSON object out of a model
// response. It tolerates fenced code blocks, surrounding prose, and
// leading/trailing noise: first a direct parse of the trimmed (and
// unfenced) text is attempted, then a scan for balanced brace pairs that
// tracks nesting depth and string-literal escaping, trying each candidate
// span until one parses.
func extractJSON(raw string) (json.RawMessage, error) {
	trimmed := stripFences(strings.TrimSpace(raw))

	if isJSONObject(trimmed) {
		return json.RawMessage(trimmed), nil
	}

	for _, candidate := range balancedObjectSpans(trimmed) {
		if isJSONObject(candidate) {
			return json.RawMessage(candidate), nil
		}
	}

	return nil, fmt.Errorf("no valid JSON object found in response")
}

func isJSONObject(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "{") && json.Valid([]byte(s))
}

// stripFences removes a surrounding ``` code fence, with or without a
// language tag.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) > 0 && strings.HasPrefix(lines[0], "```") {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.HasPrefix(lines[len(lines)-1], "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// balancedObjectSpans returns every top-level {...} span in s, in order of
// appearance. Braces inside string literals are ignored, as are escaped
// quotes inside those literals.
func balancedObjectSpans(s string) []string {
	var spans []string
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					spans = append(spans, s[start:i+1])
					start = -1
				}
			}
		}
	}
	return spans
}
