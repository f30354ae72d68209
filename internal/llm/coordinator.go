package llm

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"

	"crypto-llm-trader/internal/interfaces"
	"crypto-llm-trader/internal/logger"
	"crypto-llm-trader/internal/trace"
	"crypto-llm-trader/internal/types"
)

// ErrProviderDisabled is returned by providers that never produce an
// opinion (noop mode). The coordinator falls back immediately without
// burning the retry budget.
var ErrProviderDisabled = errors.New("opinion provider disabled")

// CallRecord is the audit entry for one provider attempt, success or
// failure.
type CallRecord struct {
	CallID    string        `json:"call_id"`
	Symbol    string        `json:"symbol"`
	Model     string        `json:"model"`
	Attempt   int           `json:"attempt"`
	Prompt    string        `json:"prompt"`
	Response  string        `json:"response,omitempty"`
	Error     string        `json:"error,omitempty"`
	Valid     bool          `json:"valid"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// CallRecorder receives one record per provider attempt. Recording
// failures never fail the cycle.
type CallRecorder interface {
	RecordLLMCall(rec CallRecord) error
}

// Config bounds the coordinator's retry and timeout behavior.
type Config struct {
	Timeout     time.Duration // per attempt
	MaxAttempts int           // total attempts, including the first
	System      string        // system prompt override
}

// Coordinator wraps the opinion request/response contract with the
// language model: prompt construction, structured-output validation,
// one bounded retry with a stricter prompt, and fallback to the
// deterministic signal. A cycle always completes; no failure escapes
// as an error.
type Coordinator struct {
	provider interfaces.OpinionProvider
	recorder CallRecorder
	cfg      Config
}

func NewCoordinator(provider interfaces.OpinionProvider, recorder CallRecorder, cfg Config) *Coordinator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 2
	}
	return &Coordinator{provider: provider, recorder: recorder, cfg: cfg}
}

// Opine requests a qualitative opinion for the signal. The returned
// opinion is always usable: on malformed output, provider error, or
// timeout it carries the deterministic direction with Valid=false and
// the reason in FallbackReason.
func (c *Coordinator) Opine(ctx context.Context, sig types.Signal, marketContext string) types.Opinion {
	ctx, span := trace.StartSpan(ctx, "llm.Opine", trace.WithSymbol(sig.Symbol))
	defer span.End()

	callID := uuid.NewString()
	system := c.cfg.System
	if system == "" {
		system = defaultSystemPrompt
	}

	bo := &backoff.Backoff{Min: 500 * time.Millisecond, Max: 5 * time.Second, Factor: 2}
	var lastReason string
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		prompt := buildUserPrompt(sig, marketContext, attempt > 1)

		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		start := time.Now()
		raw, err := c.provider.Generate(attemptCtx, system, prompt)
		cancel()

		rec := CallRecord{
			CallID:    callID,
			Symbol:    sig.Symbol,
			Model:     c.provider.Model(),
			Attempt:   attempt,
			Prompt:    prompt,
			Response:  raw,
			StartedAt: start,
			Duration:  time.Since(start),
		}

		switch {
		case errors.Is(err, ErrProviderDisabled):
			rec.Error = err.Error()
			c.record(ctx, rec)
			return c.fallback(sig, callID, "provider disabled")

		case errors.Is(err, context.DeadlineExceeded):
			// Timed out: fall back immediately, never block the cycle
			// on a second slow call.
			rec.Error = err.Error()
			c.record(ctx, rec)
			return c.fallback(sig, callID, "timeout")

		case err != nil:
			rec.Error = err.Error()
			c.record(ctx, rec)
			lastReason = "provider error: " + err.Error()

		default:
			op, perr := parseOpinion(raw, sig.Symbol)
			if perr == nil {
				rec.Valid = true
				c.record(ctx, rec)
				op.Model = c.provider.Model()
				op.CallID = callID
				op.Timestamp = time.Now().Unix()
				return op
			}
			rec.Error = perr.Error()
			c.record(ctx, rec)
			lastReason = "invalid response: " + perr.Error()
		}

		if attempt < c.cfg.MaxAttempts {
			select {
			case <-time.After(bo.Duration()):
			case <-ctx.Done():
				return c.fallback(sig, callID, "cancelled")
			}
		}
	}
	return c.fallback(sig, callID, lastReason)
}

// fallback copies the deterministic direction so the LLM is never the
// sole source of truth.
func (c *Coordinator) fallback(sig types.Signal, callID, reason string) types.Opinion {
	return types.Opinion{
		Symbol:         sig.Symbol,
		Direction:      sig.Direction,
		Confidence:     sig.Confidence,
		Rationale:      "deterministic fallback: " + reason,
		Valid:          false,
		FallbackReason: reason,
		Model:          c.provider.Model(),
		CallID:         callID,
		Timestamp:      time.Now().Unix(),
	}
}

func (c *Coordinator) record(ctx context.Context, rec CallRecord) {
	logger.LLMCall(ctx, rec.Symbol, rec.Model, rec.CallID, rec.Valid,
		"attempt", rec.Attempt,
		"duration_ms", rec.Duration.Milliseconds(),
		"error", rec.Error,
	)
	if c.recorder == nil {
		return
	}
	if err := c.recorder.RecordLLMCall(rec); err != nil {
		logger.Warn(ctx, "Failed to record LLM call", "call_id", rec.CallID, "error", err)
	}
}
