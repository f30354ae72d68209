package market

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/adshao/go-binance/v2"

	"crypto-llm-trader/internal/interfaces"
	"crypto-llm-trader/internal/types"
)

const maxKlineLimit = 1000

// BinanceSource fetches klines from the Binance spot REST API. Read
// only: no keys are required for market data.
type BinanceSource struct {
	client *binance.Client
}

var _ interfaces.MarketData = (*BinanceSource)(nil)

func NewBinanceSource(baseURL string) *BinanceSource {
	client := binance.NewClient("", "")
	if baseURL != "" {
		client.BaseURL = strings.TrimSpace(baseURL)
	}
	return &BinanceSource{client: client}
}

func (s *BinanceSource) RecentCandles(ctx context.Context, symbol string, tf types.Timeframe, n int) ([]types.Candle, error) {
	if symbol == "" {
		return nil, errors.New("symbol is required")
	}
	if n <= 0 {
		n = 100
	}
	if n > maxKlineLimit {
		n = maxKlineLimit
	}

	kls, err := s.client.NewKlinesService().
		Symbol(strings.ToUpper(symbol)).
		Interval(string(tf)).
		Limit(n).
		Do(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]types.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, types.Candle{
			OpenTime: kl.OpenTime,
			Open:     parseFloat(kl.Open),
			High:     parseFloat(kl.High),
			Low:      parseFloat(kl.Low),
			Close:    parseFloat(kl.Close),
			Volume:   parseFloat(kl.Volume),
		})
	}
	return dedupeSorted(out), nil
}

func (s *BinanceSource) LastPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := s.client.NewListPricesService().Symbol(strings.ToUpper(symbol)).Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(prices) == 0 {
		return 0, errors.New("no price for symbol " + symbol)
	}
	return parseFloat(prices[0].Price), nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// dedupeSorted enforces the bar contract: strictly increasing open
// times, duplicate timestamps dropped idempotently (last write wins).
func dedupeSorted(candles []types.Candle) []types.Candle {
	if len(candles) < 2 {
		return candles
	}
	sort.SliceStable(candles, func(i, j int) bool { return candles[i].OpenTime < candles[j].OpenTime })
	out := candles[:1]
	for _, c := range candles[1:] {
		if c.OpenTime == out[len(out)-1].OpenTime {
			out[len(out)-1] = c
			continue
		}
		out = append(out, c)
	}
	return out
}
