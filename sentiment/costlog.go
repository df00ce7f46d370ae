package sentiment

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// CostEntry is one line of the append-only API usage log.
type CostEntry struct {
	Timestamp    string            `json:"timestamp"`
	Model        string            `json:"model"`
	InputTokens  int               `json:"input_tokens"`
	OutputTokens int               `json:"output_tokens"`
	TotalTokens  int               `json:"total_tokens"`
	Cost         float64           `json:"cost"`
	Metadata     map[string]string `json:"metadata"`
}

// CostSummary aggregates entries for reporting.
type CostSummary struct {
	TotalRequests     int     `json:"total_requests"`
	TotalInputTokens  int     `json:"total_input_tokens"`
	TotalOutputTokens int     `json:"total_output_tokens"`
	TotalCost         float64 `json:"total_cost"`
}

// CostLog appends usage records to a newline-delimited JSON file and keeps
// an in-memory tally for the current run. Appends are serialized with a
// mutex; request goroutines call Log after their own work completes.
type CostLog struct {
	mu      sync.Mutex
	f       *os.File
	w       *bufio.Writer
	session []CostEntry
}

// OpenCostLog opens (creating if needed) the JSONL cost log at path.
func OpenCostLog(path string) (*CostLog, error) {
	if path == "" {
		return nil, errors.New("OpenCostLog: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("OpenCostLog: mkdir log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("OpenCostLog: open: %w", err)
	}
	return &CostLog{f: f, w: bufio.NewWriter(f)}, nil
}

// Log appends one request's usage. The entry is flushed to disk before Log
// returns so a crashed run still has its audit trail.
func (l *CostLog) Log(model string, inputTokens, outputTokens int, cost float64, metadata map[string]string) error {
	entry := CostEntry{
		Timestamp:    time.Now().Format(time.RFC3339Nano),
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalTokens:  inputTokens + outputTokens,
		Cost:         cost,
		Metadata:     metadata,
	}
	if entry.Metadata == nil {
		entry.Metadata = map[string]string{}
	}

	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("CostLog.Log: marshal: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("CostLog.Log: write: %w", err)
	}
	if err := l.w.Flush(); err != nil {
		return fmt.Errorf("CostLog.Log: flush: %w", err)
	}
	l.session = append(l.session, entry)
	return nil
}

// SessionSummary tallies the entries logged through this CostLog instance.
func (l *CostLog) SessionSummary() CostSummary {
	l.mu.Lock()
	defer l.mu.Unlock()

	var s CostSummary
	for _, e := range l.session {
		s.TotalRequests++
		s.TotalInputTokens += e.InputTokens
		s.TotalOutputTokens += e.OutputTokens
		s.TotalCost += e.Cost
	}
	return s
}

// Close flushes and closes the underlying file.
func (l *CostLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		_ = l.f.Close()
		return fmt.Errorf("CostLog.Close: flush: %w", err)
	}
	return l.f.Close()
}

// LoadCostEntries reads every entry from a cost log file. A missing file is
// an empty history, not an error.
func LoadCostEntries(path string) ([]CostEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("LoadCostEntries: open: %w", err)
	}
	defer f.Close()

	var entries []CostEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e CostEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("LoadCostEntries: unmarshal line: %w", err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("LoadCostEntries: scan: %w", err)
	}
	return entries, nil
}

// ProjectCost rolls up the full log history grouped by model.
func ProjectCost(path string) (CostSummary, map[string]CostSummary, error) {
	entries, err := LoadCostEntries(path)
	if err != nil {
		return CostSummary{}, nil, fmt.Errorf("ProjectCost: %w", err)
	}

	var total CostSummary
	byModel := make(map[string]CostSummary)
	for _, e := range entries {
		total.TotalRequests++
		total.TotalInputTokens += e.InputTokens
		total.TotalOutputTokens += e.OutputTokens
		total.TotalCost += e.Cost

		m := byModel[e.Model]
		m.TotalRequests++
		m.TotalInputTokens += e.InputTokens
		m.TotalOutputTokens += e.OutputTokens
		m.TotalCost += e.Cost
		byModel[e.Model] = m
	}
	return total, byModel, nil
}
