package summary

import (
	"encoding/csv"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-llm-trader/internal/auditlog"
	"crypto-llm-trader/internal/types"
)

func appendDecision(t *testing.T, symbol string, action types.Action, applied bool, size float64, opinionValid bool) {
	t.Helper()
	err := auditlog.AppendDecision(types.CycleResult{
		Symbol: symbol,
		Decision: types.Decision{
			Symbol:       symbol,
			Action:       action,
			SizeFraction: size,
			Confidence:   0.5,
		},
		Signal:  types.Signal{Symbol: symbol},
		Opinion: types.Opinion{Symbol: symbol, Valid: opinionValid},
		Applied: applied,
	})
	require.NoError(t, err)
}

func TestSummarizeDay(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())

	appendDecision(t, "BTCUSDT", types.OpenLong, true, 0.05, true)
	appendDecision(t, "BTCUSDT", types.Hold, true, 0, false)
	appendDecision(t, "BTCUSDT", types.Close, true, 0, true)
	appendDecision(t, "ETHUSDT", types.OpenShort, false, 0.02, true)

	path, err := SummarizeDay(time.Now().UTC())
	require.NoError(t, err)
	require.NotEmpty(t, path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	// Header, BTCUSDT, ETHUSDT, TOTAL.
	require.Len(t, rows, 4)

	assert.Equal(t, "symbol", rows[0][0])
	assert.Equal(t, "BTCUSDT", rows[1][0])
	assert.Equal(t, "3", rows[1][1]) // cycles
	assert.Equal(t, "1", rows[1][2]) // opens
	assert.Equal(t, "1", rows[1][3]) // closes
	assert.Equal(t, "1", rows[1][4]) // holds
	assert.Equal(t, "1", rows[1][6]) // llm fallbacks

	assert.Equal(t, "ETHUSDT", rows[2][0])
	assert.Equal(t, "1", rows[2][5]) // rejected at apply

	assert.Equal(t, "TOTAL", rows[3][0])
	assert.Equal(t, "4", rows[3][1])
}

func TestSummarizeDayNoLog(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())

	path, err := SummarizeDay(time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestShouldRunNow(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())

	// No decision log for yesterday: nothing to summarize.
	ok, _ := ShouldRunNow()
	assert.False(t, ok)
}
