package llm

import (
	"context"
	"errors"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"

	apperrors "github.com/tta-solo/engine/internal/platform/errors"
	"github.com/tta-solo/engine/internal/telemetry"
)

const (
	// callTimeout bounds one generation including retries; past it the
	// caller falls back to templates.
	callTimeout = 5 * time.Second

	maxTokens  = 1024
	maxRetries = 2
)

// Anthropic is the Client backed by the Anthropic Messages API.
type Anthropic struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropic builds a client for the given API key and model name.
func NewAnthropic(apiKey, model string) *Anthropic {
	return &Anthropic{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

func (a *Anthropic) GenerateStructured(ctx context.Context, prompt, schema string) ([]byte, error) {
	full := prompt + "\n\nRespond with a single JSON object matching this schema and nothing else:\n" + schema
	text, err := a.complete(ctx, "structured", full)
	if err != nil {
		return nil, err
	}
	return extractJSON(text)
}

func (a *Anthropic) GenerateNarrative(ctx context.Context, prompt string) (string, error) {
	return a.complete(ctx, "narrative", prompt)
}

func (a *Anthropic) complete(ctx context.Context, purpose, prompt string) (string, error) {
	ctx, span := telemetry.StartLLMCall(ctx, purpose)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	var msg *anthropic.Message
	op := func() error {
		var err error
		msg, err = a.client.Messages.New(ctx, params)
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", apperrors.Wrap(apperrors.CodeLLMTimeout, "generation timed out", err)
		}
		return "", apperrors.Wrap(apperrors.CodeLLMUnavailable, "generation failed", err)
	}
	if len(msg.Content) == 0 {
		return "", apperrors.New(apperrors.CodeLLMBadResponse, "response has no content blocks")
	}
	return msg.Content[0].Text, nil
}
