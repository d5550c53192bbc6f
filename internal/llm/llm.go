// Package llm defines the narrow port the engine uses for generated
// content. The engine never blocks on it for rules resolution: every
// caller carries a deadline and a deterministic fallback.
package llm

import (
	"context"
	"encoding/json"
	"strings"

	apperrors "github.com/tta-solo/engine/internal/platform/errors"
)

// Client generates narrative text and schema-shaped JSON. Implementations
// must respect the context deadline; callers treat a timeout as a signal
// to fall back to templates, never as a fatal error.
type Client interface {
	// GenerateStructured asks for a single JSON object matching the
	// schema description and returns the raw bytes, validated as JSON.
	GenerateStructured(ctx context.Context, prompt, schema string) ([]byte, error)

	// GenerateNarrative asks for free prose.
	GenerateNarrative(ctx context.Context, prompt string) (string, error)
}

// extractJSON pulls the first JSON object out of a model response, which
// may wrap it in prose or a code fence.
func extractJSON(text string) ([]byte, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return nil, apperrors.WithMetadata(apperrors.CodeLLMBadResponse,
			"response contains no JSON object",
			map[string]string{"response": truncate(text, 200)})
	}
	raw := []byte(text[start : end+1])
	if !json.Valid(raw) {
		return nil, apperrors.WithMetadata(apperrors.CodeLLMBadResponse,
			"response JSON does not parse",
			map[string]string{"response": truncate(text, 200)})
	}
	return raw, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
