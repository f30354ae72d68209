package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-llm-trader/internal/types"
)

// fakeProvider returns scripted responses/errors per attempt.
type fakeProvider struct {
	responses []string
	errs      []error
	delay     time.Duration
	calls     int
	prompts   []string
}

func (f *fakeProvider) Model() string { return "fake-model" }

func (f *fakeProvider) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	i := f.calls
	f.calls++
	f.prompts = append(f.prompts, userPrompt)

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	resp := ""
	if i < len(f.responses) {
		resp = f.responses[i]
	}
	return resp, err
}

type captureRecorder struct {
	records []CallRecord
}

func (c *captureRecorder) RecordLLMCall(rec CallRecord) error {
	c.records = append(c.records, rec)
	return nil
}

func testSignal() types.Signal {
	return types.Signal{
		Symbol:     "BTCUSDT",
		Direction:  types.Long,
		Confidence: 0.6,
		Score:      0.6,
		Reasoning:  "[1D] RSI: 25.0, MACD: Bullish, BB: Oversold, Trend: Strong (ADX: 31.0)",
	}
}

const validResponse = `{"direction":"long","confidence":0.7,"rationale":"oversold bounce with trend support"}`

func TestOpineValidResponse(t *testing.T) {
	provider := &fakeProvider{responses: []string{validResponse}}
	rec := &captureRecorder{}
	c := NewCoordinator(provider, rec, Config{Timeout: time.Second, MaxAttempts: 2})

	op := c.Opine(context.Background(), testSignal(), "")

	assert.True(t, op.Valid)
	assert.Equal(t, types.Long, op.Direction)
	assert.InDelta(t, 0.7, op.Confidence, 1e-9)
	assert.Equal(t, "fake-model", op.Model)
	assert.NotEmpty(t, op.CallID)
	assert.Equal(t, 1, provider.calls)

	require.Len(t, rec.records, 1)
	assert.True(t, rec.records[0].Valid)
	assert.Equal(t, op.CallID, rec.records[0].CallID)
}

func TestOpineFencedResponse(t *testing.T) {
	fenced := "Here is my take:\n```json\n" + validResponse + "\n```\n"
	provider := &fakeProvider{responses: []string{fenced}}
	c := NewCoordinator(provider, nil, Config{Timeout: time.Second, MaxAttempts: 2})

	op := c.Opine(context.Background(), testSignal(), "")

	assert.True(t, op.Valid)
	assert.Equal(t, types.Long, op.Direction)
}

func TestOpineMalformedThenValid(t *testing.T) {
	provider := &fakeProvider{responses: []string{"I think it goes up!", validResponse}}
	rec := &captureRecorder{}
	c := NewCoordinator(provider, rec, Config{Timeout: time.Second, MaxAttempts: 2})

	op := c.Opine(context.Background(), testSignal(), "")

	assert.True(t, op.Valid)
	assert.Equal(t, 2, provider.calls)
	// The retry prompt gets stricter, not repeated verbatim.
	require.Len(t, provider.prompts, 2)
	assert.NotEqual(t, provider.prompts[0], provider.prompts[1])

	require.Len(t, rec.records, 2)
	assert.False(t, rec.records[0].Valid)
	assert.True(t, rec.records[1].Valid)
	assert.Equal(t, rec.records[0].CallID, rec.records[1].CallID)
}

func TestOpineAlwaysMalformedFallsBack(t *testing.T) {
	provider := &fakeProvider{responses: []string{"nonsense", "more nonsense"}}
	c := NewCoordinator(provider, nil, Config{Timeout: time.Second, MaxAttempts: 2})

	sig := testSignal()
	op := c.Opine(context.Background(), sig, "")

	assert.False(t, op.Valid)
	assert.Equal(t, sig.Direction, op.Direction)
	assert.InDelta(t, sig.Confidence, op.Confidence, 1e-9)
	assert.NotEmpty(t, op.FallbackReason)
	assert.Equal(t, 2, provider.calls)
}

func TestOpineSchemaViolationFallsBack(t *testing.T) {
	// Parseable JSON, but direction is outside the enum.
	bad := `{"direction":"sideways","confidence":0.5,"rationale":"drift"}`
	provider := &fakeProvider{responses: []string{bad, bad}}
	c := NewCoordinator(provider, nil, Config{Timeout: time.Second, MaxAttempts: 2})

	op := c.Opine(context.Background(), testSignal(), "")

	assert.False(t, op.Valid)
	assert.Equal(t, types.Long, op.Direction)
}

func TestOpineTimeoutFallsBackImmediately(t *testing.T) {
	provider := &fakeProvider{delay: 200 * time.Millisecond, responses: []string{validResponse}}
	c := NewCoordinator(provider, nil, Config{Timeout: 20 * time.Millisecond, MaxAttempts: 3})

	op := c.Opine(context.Background(), testSignal(), "")

	assert.False(t, op.Valid)
	assert.Equal(t, "timeout", op.FallbackReason)
	// No retry after a timeout.
	assert.Equal(t, 1, provider.calls)
}

func TestOpineProviderDisabled(t *testing.T) {
	provider := &fakeProvider{errs: []error{ErrProviderDisabled}}
	c := NewCoordinator(provider, nil, Config{Timeout: time.Second, MaxAttempts: 3})

	op := c.Opine(context.Background(), testSignal(), "")

	assert.False(t, op.Valid)
	assert.Equal(t, "provider disabled", op.FallbackReason)
	assert.Equal(t, 1, provider.calls)
}

func TestOpineProviderErrorRetries(t *testing.T) {
	provider := &fakeProvider{
		errs:      []error{errors.New("rate limited"), nil},
		responses: []string{"", validResponse},
	}
	c := NewCoordinator(provider, nil, Config{Timeout: time.Second, MaxAttempts: 2})

	op := c.Opine(context.Background(), testSignal(), "")

	assert.True(t, op.Valid)
	assert.Equal(t, 2, provider.calls)
}

func TestParseOpinion(t *testing.T) {
	op, err := parseOpinion(validResponse, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", op.Symbol)
	assert.Equal(t, types.Long, op.Direction)

	_, err = parseOpinion(`{"direction":"long","confidence":1.4,"rationale":"x"}`, "BTCUSDT")
	assert.Error(t, err)

	_, err = parseOpinion("", "BTCUSDT")
	assert.Error(t, err)
}
