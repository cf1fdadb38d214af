package invoice

import (
	"encoding/json"
	"regexp"
	"strings"
)

// fencedBlock matches a ``` fenced block, optionally labeled json
var fencedBlock = regexp.MustCompile("(?s)```[ \\t]*(?:json|JSON)?[ \\t]*\\r?\\n?(.*?)```")

// ExtractJSON recovers a single JSON object from model output.
// It tries, in order: the whole trimmed text, the first fenced code block,
// and the span from the first '{' to the last '}'. It never panics; ok is
// false when no strategy yields an object.
//
// Stray unmatched braces after the real object defeat the last strategy.
func ExtractJSON(text string) (map[string]any, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, false
	}

	if obj, ok := decodeObject(trimmed); ok {
		return obj, true
	}

	if m := fencedBlock.FindStringSubmatch(trimmed); m != nil {
		if obj, ok := decodeObject(strings.TrimSpace(m[1])); ok {
			return obj, true
		}
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		if obj, ok := decodeObject(trimmed[start : end+1]); ok {
			return obj, true
		}
	}

	return nil, false
}

func decodeObject(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	if obj == nil {
		// literal null
		return nil, false
	}
	return obj, true
}
