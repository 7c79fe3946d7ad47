package engine

import (
	"context"
	"strings"
	"time"

	"articled/internal/backend"
)

// Result is the typed outcome of a successful generation. Callers that need
// the failure side get a typed error instead of a stringified one, so "no
// output" and "error" stay distinguishable downstream.
type Result struct {
	Model           string
	Text            string
	TruncatedPrompt bool
	Duration        time.Duration
}

// Generate produces an article for prompt using the named model. The first
// call for a model triggers the blocking load. The sampling configuration is
// fixed policy; only the length budget comes from the caller.
func (e *Engine) Generate(ctx context.Context, name, prompt string, maxNewTokens int) (Result, error) {
	if name == "" {
		name = e.defaultModel
		if name == "" {
			return Result{}, ErrUnsupportedModel("(unspecified)")
		}
	}
	if maxNewTokens <= 0 {
		maxNewTokens = defaultMaxNewTokens
	}

	inst, err := e.Acquire(ctx, name)
	if err != nil {
		return Result{}, err
	}

	release, err := e.beginGeneration(ctx, inst)
	if err != nil {
		return Result{}, err
	}
	defer release()

	start := time.Now()
	sendPrompt, truncated := truncateToTokenBudget(prompt, promptTokenBudget)

	raw, err := inst.handle.Generate(ctx, sendPrompt, backend.Params{
		MaxNewTokens:      maxNewTokens,
		Temperature:       temperature,
		RepetitionPenalty: repetitionPenalty,
		BeamWidth:         beamWidth,
		EarlyStopping:     earlyStopping,
	})
	if err != nil {
		e.setLastError(err)
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, generationFailureError{name: name, err: err}
	}

	text := stripPromptEcho(raw, sendPrompt)
	if text == "" {
		text = placeholderResponse
	}
	return Result{
		Model:           name,
		Text:            text,
		TruncatedPrompt: truncated,
		Duration:        time.Since(start),
	}, nil
}

// stripPromptEcho drops a leading echo of the prompt from decoded text.
// Exact-prefix match only: case or whitespace differences leave the echo in
// place.
func stripPromptEcho(decoded, prompt string) string {
	if prompt != "" && strings.HasPrefix(decoded, prompt) {
		decoded = decoded[len(prompt):]
	}
	return strings.TrimSpace(decoded)
}

func (e *Engine) setLastError(err error) {
	e.mu.Lock()
	e.lastError = err.Error()
	e.mu.Unlock()
}
