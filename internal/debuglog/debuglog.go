// Package debuglog records raw per-turn model request/response pairs
// to a file for post-mortem inspection, the way the teacher's own
// internal/debuglog package traces a session's wire traffic — minus
// its terminal display formatting, which belongs to this repo's
// out-of-scope UI-rendering surface rather than ambient logging.
package debuglog

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/samsaffron/turnsched/internal/modelapi"
)

// Entry is one traced turn: the request sent to the model and the text
// plus tool calls it produced.
type Entry struct {
	Turn      int               `json:"turn"`
	Timestamp time.Time         `json:"timestamp"`
	Request   modelapi.Request  `json:"request"`
	Text      string            `json:"text"`
	ToolCalls []modelapi.Part   `json:"tool_calls,omitempty"`
	Err       string            `json:"error,omitempty"`
}

// Logger appends one JSON-encoded Entry per line to a file, so a trace
// can be tailed or parsed line-by-line without loading the whole file.
type Logger struct {
	mu sync.Mutex
	f  *os.File
}

// Open appends to (or creates) the trace file at path.
func Open(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("debuglog: open %s: %w", path, err)
	}
	return &Logger{f: f}, nil
}

// Close closes the underlying file.
func (l *Logger) Close() error {
	return l.f.Close()
}

// RecordTurn appends one Entry, stamped with now.
func (l *Logger) RecordTurn(now time.Time, turn int, req modelapi.Request, text string, toolCalls []modelapi.Part, turnErr error) error {
	entry := Entry{Turn: turn, Timestamp: now, Request: req, Text: text, ToolCalls: toolCalls}
	if turnErr != nil {
		entry.Err = turnErr.Error()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("debuglog: marshal entry: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.f.Write(data)
	return err
}
