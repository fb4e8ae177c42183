package modelapi

import (
	"encoding/json"
	"fmt"
	"strings"
)

// JSONInstruction is appended as a trailing user turn by a provider's
// GenerateJSON implementation when the underlying API has no native
// structured-output mode: it asks the model to answer with nothing but
// the JSON object, describing the expected shape via schema so the
// model has something concrete to match.
func JSONInstruction(schema map[string]any) string {
	var b strings.Builder
	b.WriteString("Respond with a single JSON object only, no surrounding prose or markdown fences, matching this schema:\n")
	encoded, err := json.Marshal(schema)
	if err == nil {
		b.Write(encoded)
	}
	return b.String()
}

// ExtractJSON pulls a JSON object out of a model's plain-text response,
// tolerating a markdown code fence or leading/trailing commentary -
// the common failure mode of asking a chat-completion API for JSON
// without a native structured-output mode.
func ExtractJSON(text string) (json.RawMessage, error) {
	candidate := stripFence(text)
	start := strings.IndexByte(candidate, '{')
	end := strings.LastIndexByte(candidate, '}')
	if start < 0 || end < start {
		return nil, fmt.Errorf("modelapi: no JSON object found in response")
	}
	candidate = candidate[start : end+1]

	var v any
	if err := json.Unmarshal([]byte(candidate), &v); err != nil {
		return nil, fmt.Errorf("modelapi: invalid JSON in response: %w", err)
	}
	return json.RawMessage(candidate), nil
}

func stripFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimPrefix(trimmed, "json")
	trimmed = strings.TrimPrefix(trimmed, "JSON")
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
