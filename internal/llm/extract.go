package llm

import (
	"encoding/json"
	"strings"

	"github.com/examforge/examforge/internal/apperr"
)

// ExtractJSONObject returns the first well-formed JSON object embedded in
// text. Models sometimes wrap their payload in prose or markdown fences;
// this is the single place that tolerance lives.
func ExtractJSONObject(text string) (string, error) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		candidate, ok := balancedObject(text[start:])
		if ok && json.Valid([]byte(candidate)) {
			return candidate, nil
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += 1 + next
	}
	return "", apperr.New(apperr.KindValidation, "no JSON object found in model response").WithRaw(text)
}

// balancedObject returns the prefix of s that forms a brace-balanced
// object, honoring strings and escapes. s must start with '{'.
func balancedObject(s string) (string, bool) {
	depth := 0
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
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}
