package llm

import (
	"context"

	apperrors "github.com/tta-solo/engine/internal/platform/errors"
)

// Scripted is a Client that replays queued responses, for tests and for
// offline demo sessions. Prompts are recorded so tests can assert what
// the engine asked for.
type Scripted struct {
	structured [][]byte
	narratives []string
	err        error

	Prompts []string
}

// NewScripted returns an empty scripted client; with nothing queued every
// call fails as unavailable, which exercises fallback paths.
func NewScripted() *Scripted {
	return &Scripted{}
}

// QueueStructured appends a raw JSON response.
func (s *Scripted) QueueStructured(raw string) *Scripted {
	s.structured = append(s.structured, []byte(raw))
	return s
}

// QueueNarrative appends a prose response.
func (s *Scripted) QueueNarrative(text string) *Scripted {
	s.narratives = append(s.narratives, text)
	return s
}

// Fail makes every subsequent call return err.
func (s *Scripted) Fail(err error) *Scripted {
	s.err = err
	return s
}

func (s *Scripted) GenerateStructured(ctx context.Context, prompt, _ string) ([]byte, error) {
	s.Prompts = append(s.Prompts, prompt)
	if err := s.pending(ctx); err != nil {
		return nil, err
	}
	if len(s.structured) == 0 {
		return nil, apperrors.New(apperrors.CodeLLMUnavailable, "no structured response queued")
	}
	out := s.structured[0]
	s.structured = s.structured[1:]
	return out, nil
}

func (s *Scripted) GenerateNarrative(ctx context.Context, prompt string) (string, error) {
	s.Prompts = append(s.Prompts, prompt)
	if err := s.pending(ctx); err != nil {
		return "", err
	}
	if len(s.narratives) == 0 {
		return "", apperrors.New(apperrors.CodeLLMUnavailable, "no narrative response queued")
	}
	out := s.narratives[0]
	s.narratives = s.narratives[1:]
	return out, nil
}

func (s *Scripted) pending(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CodeLLMTimeout, "context done before generation", err)
	}
	return s.err
}
