package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"crypto-llm-trader/internal/types"
)

// opinionSchema validates the structured output against the same
// direction/confidence domain as the deterministic signal.
const opinionSchema = `{
  "type": "object",
  "required": ["direction", "confidence", "rationale"],
  "properties": {
    "direction": {"type": "string", "enum": ["long", "short", "flat"]},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "rationale": {"type": "string"}
  }
}`

var compiledOpinionSchema = jsonschema.MustCompileString("opinion.json", opinionSchema)

// parseOpinion extracts the JSON object from the raw model output and
// validates it. Models like to wrap JSON in markdown fences or prose;
// both are tolerated, anything structurally invalid is not.
func parseOpinion(raw, symbol string) (types.Opinion, error) {
	body, ok := extractJSON(raw)
	if !ok {
		return types.Opinion{}, fmt.Errorf("no JSON object in response")
	}

	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return types.Opinion{}, fmt.Errorf("malformed JSON: %w", err)
	}
	if err := compiledOpinionSchema.Validate(doc); err != nil {
		return types.Opinion{}, fmt.Errorf("schema violation: %w", err)
	}

	parsed := gjson.Parse(body)
	return types.Opinion{
		Symbol:     symbol,
		Direction:  types.Direction(strings.ToLower(parsed.Get("direction").String())),
		Confidence: parsed.Get("confidence").Float(),
		Rationale:  parsed.Get("rationale").String(),
		Valid:      true,
	}, nil
}

const codeFence = "```"

// extractJSON locates the first JSON object in the text: inside a
// markdown fence if present, otherwise by brace scanning.
func extractJSON(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if body, ok := extractFromFence(raw); ok {
		return body, true
	}
	return extractObject(raw)
}

func extractFromFence(raw string) (string, bool) {
	start := strings.Index(raw, codeFence)
	if start == -1 {
		return "", false
	}
	rest := raw[start+len(codeFence):]
	end := strings.Index(rest, codeFence)
	if end == -1 {
		return "", false
	}
	block := strings.TrimLeft(rest[:end], "\r\n")
	// Drop a language tag line like "json".
	if idx := strings.Index(block, "\n"); idx != -1 {
		first := strings.TrimSpace(block[:idx])
		if first != "" && !strings.ContainsAny(first, "{[") {
			block = block[idx+1:]
		}
	}
	return extractObject(strings.TrimSpace(block))
}

func extractObject(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", false
	}
	body := raw[start : end+1]
	if !gjson.Valid(body) {
		return "", false
	}
	return body, true
}
