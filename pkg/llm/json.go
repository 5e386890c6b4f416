package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/wehubfusion/Minerva/pkg/engine"
)

// DecodeJSON unmarshals model output into v. Models routinely wrap JSON in
// markdown code fences or emit slightly broken JSON (single quotes, trailing
// commas), so the raw text is stripped of fences first and repaired with
// jsonrepair when plain unmarshalling fails.
func DecodeJSON(raw string, v any) error {
	content := StripCodeFences(raw)
	if err := json.Unmarshal([]byte(content), v); err == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(content)
	if err != nil {
		return fmt.Errorf("%w: repair failed: %v", engine.ErrMalformedResponse, err)
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("%w: %v", engine.ErrMalformedResponse, err)
	}
	return nil
}

// StripCodeFences removes a surrounding markdown code fence, with or without
// a language tag, and trims whitespace.
func StripCodeFences(raw string) string {
	content := strings.TrimSpace(raw)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```")
	if idx := strings.Index(content, "\n"); idx >= 0 {
		// Drop the language tag line ("json", "text", ...).
		first := strings.TrimSpace(content[:idx])
		if first == "" || !strings.ContainsAny(first, "{}[]\"") {
			content = content[idx+1:]
		}
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}
