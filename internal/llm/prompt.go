package llm

import (
	"encoding/json"
	"fmt"

	"crypto-llm-trader/internal/types"
)

const defaultSystemPrompt = "You are a disciplined crypto portfolio manager. " +
	"You receive a deterministic technical signal and a market context summary. " +
	"Output STRICT JSON only, no prose outside the JSON object."

const opinionSchemaText = `{
  "direction": "long | short | flat",
  "confidence": "number between 0 and 1",
  "rationale": "string"
}`

const strictRetryPreamble = "Your previous response was not valid JSON matching the schema. " +
	"Respond with EXACTLY one JSON object and nothing else. Do not use markdown fences.\n\n"

// buildUserPrompt composes the opinion request from the signal state
// and the textual market context. strict tightens the instructions for
// the bounded retry after a malformed response.
func buildUserPrompt(sig types.Signal, marketContext string, strict bool) string {
	state := map[string]any{
		"symbol":              sig.Symbol,
		"direction":           sig.Direction,
		"confidence":          sig.Confidence,
		"timeframe_breakdown": sig.Breakdown,
		"technical_summary":   sig.Reasoning,
	}
	stateB, _ := json.Marshal(state)

	prompt := fmt.Sprintf(
		"Technical signal:\n%s\n\nMarket context:\n%s\n\nSchema:\n%s\n\nRespond ONLY with compact JSON matching the schema.",
		string(stateB), marketContext, opinionSchemaText,
	)
	if strict {
		prompt = strictRetryPreamble + prompt
	}
	return prompt
}
