package interfaces

import "context"

// OpinionProvider is the black-box LLM call: prompt in, raw text out.
// It may fail or run past its context deadline; the coordinator owns
// prompt construction, parsing, retries and fallback.
type OpinionProvider interface {
	Model() string
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
