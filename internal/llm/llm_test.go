package llm

import (
	"context"
	"testing"

	apperrors "github.com/tta-solo/engine/internal/platform/errors"
)

func TestExtractJSONFromProse(t *testing.T) {
	raw, err := extractJSON("Here is the NPC you asked for:\n```json\n{\"name\": \"Grim\", \"role\": \"smith\"}\n```\nLet me know if you need more.")
	if err != nil {
		t.Fatalf("extractJSON: %v", err)
	}
	if string(raw) != `{"name": "Grim", "role": "smith"}` {
		t.Fatalf("raw = %s", raw)
	}
}

func TestExtractJSONRejectsNonJSON(t *testing.T) {
	for _, text := range []string{"no object here", "{broken", "{\"a\": }"} {
		if _, err := extractJSON(text); apperrors.CodeOf(err) != apperrors.CodeLLMBadResponse {
			t.Fatalf("extractJSON(%q) err = %v, want bad response", text, err)
		}
	}
}

func TestScriptedReplaysInOrder(t *testing.T) {
	ctx := context.Background()
	s := NewScripted().
		QueueStructured(`{"name": "Grim"}`).
		QueueNarrative("The door creaks open.")

	raw, err := s.GenerateStructured(ctx, "make an npc", "{}")
	if err != nil {
		t.Fatalf("GenerateStructured: %v", err)
	}
	if string(raw) != `{"name": "Grim"}` {
		t.Fatalf("raw = %s", raw)
	}

	text, err := s.GenerateNarrative(ctx, "describe the door")
	if err != nil {
		t.Fatalf("GenerateNarrative: %v", err)
	}
	if text != "The door creaks open." {
		t.Fatalf("text = %q", text)
	}

	if len(s.Prompts) != 2 || s.Prompts[0] != "make an npc" {
		t.Fatalf("prompts = %v", s.Prompts)
	}

	// The queue is drained: further calls surface as unavailable so the
	// caller's fallback path runs.
	if _, err := s.GenerateNarrative(ctx, "again"); apperrors.CodeOf(err) != apperrors.CodeLLMUnavailable {
		t.Fatalf("drained err = %v", err)
	}
}

func TestScriptedHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewScripted().QueueNarrative("never delivered")
	if _, err := s.GenerateNarrative(ctx, "x"); apperrors.CodeOf(err) != apperrors.CodeLLMTimeout {
		t.Fatalf("err = %v, want timeout", err)
	}
}
