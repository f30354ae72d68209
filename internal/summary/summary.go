package summary

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"crypto-llm-trader/internal/auditlog"
	"crypto-llm-trader/internal/types"
)

type aggRow struct {
	Symbol        string
	Cycles        int
	Opens         int
	Closes        int
	Holds         int
	Rejected      int
	LLMFallbacks  int
	ConfidenceSum float64
	SizeSum       float64
}

func logDir() string {
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

func decisionsFile(t time.Time) string {
	d := t.UTC().Format("2006-01-02")
	return filepath.Join(logDir(), "decisions", d+".jsonl")
}

func summaryCSVPath(t time.Time) string {
	d := t.UTC().Format("2006-01-02")
	return filepath.Join(logDir(), "summary", d+".csv")
}

// SummarizeDay aggregates the day's decision log into a per-symbol CSV
// and returns its path. A missing log file yields no output and no
// error.
func SummarizeDay(t time.Time) (string, error) {
	inPath := decisionsFile(t)
	if _, err := os.Stat(inPath); err != nil {
		return "", nil
	}
	f, err := os.Open(inPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	aggs := map[string]*aggRow{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var entry auditlog.DecisionEntry
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			continue
		}
		row := aggs[entry.Symbol]
		if row == nil {
			row = &aggRow{Symbol: entry.Symbol}
			aggs[entry.Symbol] = row
		}
		row.Cycles++
		row.ConfidenceSum += entry.Decision.Confidence
		switch types.Action(entry.Action) {
		case types.OpenLong, types.OpenShort:
			if entry.Applied {
				row.Opens++
				row.SizeSum += entry.Decision.SizeFraction
			} else {
				row.Rejected++
			}
		case types.Close:
			row.Closes++
		default:
			row.Holds++
		}
		if !entry.Opinion.Valid {
			row.LLMFallbacks++
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	if len(aggs) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(aggs))
	for k := range aggs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	outPath := summaryCSVPath(t)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()
	w := csv.NewWriter(out)
	defer w.Flush()

	headers := []string{"symbol", "cycles", "opens", "closes", "holds", "rejected", "llm_fallbacks", "avg_confidence", "total_size_fraction"}
	if err := w.Write(headers); err != nil {
		return "", err
	}
	var totalCycles, totalOpens int
	for _, k := range keys {
		r := aggs[k]
		avgConf := 0.0
		if r.Cycles > 0 {
			avgConf = r.ConfidenceSum / float64(r.Cycles)
		}
		rec := []string{
			r.Symbol,
			strconv.Itoa(r.Cycles),
			strconv.Itoa(r.Opens),
			strconv.Itoa(r.Closes),
			strconv.Itoa(r.Holds),
			strconv.Itoa(r.Rejected),
			strconv.Itoa(r.LLMFallbacks),
			fmt.Sprintf("%.4f", avgConf),
			fmt.Sprintf("%.4f", r.SizeSum),
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
		totalCycles += r.Cycles
		totalOpens += r.Opens
	}
	_ = w.Write([]string{"TOTAL", strconv.Itoa(totalCycles), strconv.Itoa(totalOpens), "", "", "", "", "", ""})
	return outPath, nil
}

// SummarizeToday summarizes the current UTC day.
func SummarizeToday() (string, error) { return SummarizeDay(time.Now().UTC()) }

// ShouldRunNow reports whether yesterday's summary is still missing.
// Crypto has no session close, so the trigger is UTC day rollover.
func ShouldRunNow() (bool, string) {
	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	outPath := summaryCSVPath(yesterday)
	if _, err := os.Stat(outPath); os.IsNotExist(err) {
		if _, err := os.Stat(decisionsFile(yesterday)); err == nil {
			return true, outPath
		}
	}
	return false, outPath
}

// SummarizeYesterday writes yesterday's summary if its decision log
// exists.
func SummarizeYesterday() (string, error) {
	return SummarizeDay(time.Now().UTC().AddDate(0, 0, -1))
}
