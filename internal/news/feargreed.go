package news

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"crypto-llm-trader/internal/api"
)

// FearGreed is one reading of the alternative.me crypto Fear & Greed
// index (0 = extreme fear, 100 = extreme greed).
type FearGreed struct {
	Value          int
	Classification string
	Timestamp      int64
}

// FearGreedClient fetches the market-wide sentiment index.
type FearGreedClient struct {
	client *api.Client
}

func NewFearGreedClient(timeout time.Duration) *FearGreedClient {
	return &FearGreedClient{
		client: api.New(
			api.WithBaseURL("https://api.alternative.me"),
			api.WithTimeout(timeout),
			api.WithRetry(api.RetryPolicy{Attempts: 3, MinWait: time.Second, MaxWait: 5 * time.Second}),
			api.WithLogging(true),
		),
	}
}

// Current returns the latest index reading.
func (f *FearGreedClient) Current(ctx context.Context) (FearGreed, error) {
	body, err := f.client.Get(ctx, "/fng/?limit=1")
	if err != nil {
		return FearGreed{}, fmt.Errorf("fear & greed fetch: %w", err)
	}

	entry := gjson.Get(string(body), "data.0")
	if !entry.Exists() {
		return FearGreed{}, fmt.Errorf("fear & greed: unexpected response shape")
	}
	return FearGreed{
		Value:          int(entry.Get("value").Int()),
		Classification: entry.Get("value_classification").String(),
		Timestamp:      entry.Get("timestamp").Int(),
	}, nil
}
