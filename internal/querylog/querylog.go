// Package querylog is the append-only JSONL record of every query the
// engine serves, successes and failures alike. One line per query
// attempt; writes are serialized so lines never interleave.
package querylog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	cperrors "github.com/clearpath-ai/clearpath-rag/internal/errors"
)

// Entry is one query log record. Field set and names are the on-disk
// schema; readers downstream depend on them.
type Entry struct {
	RequestID      string    `json:"request_id"`
	Timestamp      time.Time `json:"timestamp"`
	Query          string    `json:"query"`
	Classification string    `json:"classification"`
	ModelUsed      string    `json:"model_used"`
	TokensInput    int       `json:"tokens_input"`
	TokensOutput   int       `json:"tokens_output"`
	LatencyMS      float64   `json:"latency_ms"`
	RetrievalCount int       `json:"retrieval_count"`
	RetrievalScore []float64 `json:"retrieval_scores"`
	EvaluatorFlags []string  `json:"evaluator_flags"`
	Error          *string   `json:"error"`
}

// Page is a window over the log for paginated reads.
type Page struct {
	Logs   []Entry `json:"logs"`
	Total  int     `json:"total"`
	Offset int     `json:"offset"`
	Limit  int     `json:"limit"`
}

// Log appends entries to a JSONL file and reads them back.
type Log struct {
	mu   sync.Mutex
	path string
}

// New creates a log writing to path. The parent directory is created
// on first append.
func New(path string) *Log {
	return &Log{path: path}
}

// Append writes one entry as a single JSON line. A zero timestamp is
// stamped with the current UTC time. Slice fields are normalized so the
// line always carries arrays, never null.
func (l *Log) Append(e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.RetrievalScore == nil {
		e.RetrievalScore = []float64{}
	}
	if e.EvaluatorFlags == nil {
		e.EvaluatorFlags = []string{}
	}

	line, err := json.Marshal(e)
	if err != nil {
		return cperrors.New(cperrors.ErrCodeLogWrite, "encode log entry", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return cperrors.New(cperrors.ErrCodeLogWrite, "create log directory", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return cperrors.New(cperrors.ErrCodeLogWrite, "open query log", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return cperrors.New(cperrors.ErrCodeLogWrite, "write query log", err)
	}
	return nil
}

// All reads every entry in file order. Corrupt lines are skipped, never
// fatal; a missing file reads as empty.
func (l *Log) All() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, cperrors.New(cperrors.ErrCodeLogWrite, "open query log", err)
	}
	defer func() { _ = f.Close() }()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, cperrors.New(cperrors.ErrCodeLogWrite, "read query log", err)
	}
	return entries, nil
}

// Recent returns the last n entries, newest first.
func (l *Log) Recent(n int) ([]Entry, error) {
	entries, err := l.All()
	if err != nil {
		return nil, err
	}

	if n > len(entries) {
		n = len(entries)
	}
	out := make([]Entry, 0, n)
	for i := len(entries) - 1; i >= len(entries)-n; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

// ReadPage returns a window of entries in file order plus the total
// count.
func (l *Log) ReadPage(offset, limit int) (*Page, error) {
	entries, err := l.All()
	if err != nil {
		return nil, err
	}

	total := len(entries)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	return &Page{
		Logs:   entries[offset:end],
		Total:  total,
		Offset: offset,
		Limit:  limit,
	}, nil
}
