package auditlog

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"crypto-llm-trader/internal/llm"
	"crypto-llm-trader/internal/types"
)

var mu sync.Mutex

// DecisionEntry is one JSONL line in the decisions log: the full cycle
// outcome plus its inputs, enough to replay why a decision was made.
type DecisionEntry struct {
	Time     string                `json:"time"`
	Symbol   string                `json:"symbol"`
	Action   string                `json:"action"`
	Applied  bool                  `json:"applied"`
	Decision types.Decision        `json:"decision"`
	Signal   types.Signal          `json:"signal"`
	Risk     *types.RiskAssessment `json:"risk,omitempty"`
	Opinion  types.Opinion         `json:"opinion"`
	Reason   string                `json:"reason,omitempty"`
}

// CallEntry is one JSONL line in the llm log: a single provider call
// with prompt, response, and outcome.
type CallEntry struct {
	Time       string `json:"time"`
	CallID     string `json:"call_id"`
	Symbol     string `json:"symbol"`
	Model      string `json:"model"`
	Attempt    int    `json:"attempt"`
	Valid      bool   `json:"valid"`
	Error      string `json:"error,omitempty"`
	Prompt     string `json:"prompt"`
	Response   string `json:"response"`
	DurationMS int64  `json:"duration_ms"`
}

func logDir() string {
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

// Days roll over at UTC midnight. Crypto has no session close, so the
// calendar day is the only natural boundary.
func decisionsFilepath(t time.Time) string {
	d := t.UTC().Format("2006-01-02")
	return filepath.Join(logDir(), "decisions", d+".jsonl")
}

func llmFilepath(t time.Time) string {
	d := t.UTC().Format("2006-01-02")
	return filepath.Join(logDir(), "llm", d+".jsonl")
}

func appendLine(path string, v any) error {
	mu.Lock()
	defer mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// AppendDecision writes one cycle result to today's decisions file.
func AppendDecision(result types.CycleResult) error {
	now := time.Now().UTC()
	return appendLine(decisionsFilepath(now), DecisionEntry{
		Time:     now.Format("2006-01-02 15:04:05"),
		Symbol:   result.Symbol,
		Action:   string(result.Decision.Action),
		Applied:  result.Applied,
		Decision: result.Decision,
		Signal:   result.Signal,
		Risk:     result.Risk,
		Opinion:  result.Opinion,
		Reason:   result.Reason,
	})
}

// AppendLLMCall writes one provider call record to today's llm file.
func AppendLLMCall(rec llm.CallRecord) error {
	now := time.Now().UTC()
	return appendLine(llmFilepath(now), CallEntry{
		Time:       now.Format("2006-01-02 15:04:05"),
		CallID:     rec.CallID,
		Symbol:     rec.Symbol,
		Model:      rec.Model,
		Attempt:    rec.Attempt,
		Valid:      rec.Valid,
		Error:      rec.Error,
		Prompt:     rec.Prompt,
		Response:   rec.Response,
		DurationMS: rec.Duration.Milliseconds(),
	})
}

// CompressOlder gzips log files whose mtime is older than the
// retention window and removes the originals.
func CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	root := logDir()
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if filepath.Ext(p) != ".jsonl" {
			return nil
		}
		info, er := os.Stat(p)
		if er != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		gz := p + ".gz"
		if _, e2 := os.Stat(gz); e2 == nil {
			_ = os.Remove(p)
			return nil
		}
		in, e3 := os.Open(p)
		if e3 != nil {
			return nil
		}
		defer in.Close()
		out, e4 := os.OpenFile(gz, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if e4 != nil {
			return nil
		}
		gw := gzip.NewWriter(out)
		if _, e5 := io.Copy(gw, in); e5 == nil {
			_ = gw.Close()
			_ = out.Close()
			_ = os.Remove(p)
		} else {
			_ = gw.Close()
			_ = out.Close()
		}
		return nil
	})
}

// Recorder adapts the package-level append functions to the engine and
// coordinator recording interfaces.
type Recorder struct{}

func NewRecorder() *Recorder { return &Recorder{} }

func (Recorder) RecordDecision(_ context.Context, result types.CycleResult) error {
	return AppendDecision(result)
}

func (Recorder) RecordLLMCall(rec llm.CallRecord) error {
	return AppendLLMCall(rec)
}
