package scanning

import (
	"encoding/json"
	"strings"
)

// Normalize turns a model reply into a JSON value.
// Markdown fences are stripped first. Text that still isn't valid JSON is
// returned as {"raw_text": <cleaned text>} so nothing the model said is lost.
func Normalize(raw string) any {
	text := stripFences(raw)

	var data any
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return map[string]any{"raw_text": text}
	}
	return data
}

// stripFences removes a leading ``` / ```lang line and a trailing ``` marker
func stripFences(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		// Drop the language tag, if any, up to the first line break
		if idx := strings.IndexAny(text, "\r\n"); idx != -1 && isLanguageTag(text[:idx]) {
			text = text[idx:]
		} else if isLanguageTag(text) {
			text = ""
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	return strings.TrimSpace(text)
}

func isLanguageTag(s string) bool {
	s = strings.TrimSpace(s)
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' || r == '+') {
			return false
		}
	}
	return true
}
