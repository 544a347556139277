// Package sink delivers terminal task events to their destinations: a JSONL
// file under the output directory, stdout, or a Postgres table.
package sink

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/itchlabs/itch/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// emittedEvent is the wire shape of one event line. Err is flattened to a
// string because error values do not round-trip through JSON.
type emittedEvent struct {
	Outcome  schemas.Outcome `json:"outcome"`
	TaskID   string          `json:"task_id"`
	Attempts int             `json:"attempts,omitempty"`
	Record   *schemas.Record `json:"record,omitempty"`
	Error    string          `json:"error,omitempty"`
}

func toEmitted(ev schemas.Event) emittedEvent {
	out := emittedEvent{
		Outcome:  ev.Outcome,
		TaskID:   ev.TaskID,
		Attempts: ev.Attempts,
		Record:   ev.Record,
	}
	if ev.Err != nil {
		out.Error = ev.Err.Error()
	}
	return out
}

// JSONL writes one JSON object per event to a file, creating the output
// directory if needed. Writes are serialized; Close flushes the buffer.
type JSONL struct {
	mu  sync.Mutex
	f   *os.File
	buf *bufio.Writer
}

var _ schemas.Sink = (*JSONL)(nil)

// NewJSONL opens (and truncates) the given file for event output.
func NewJSONL(path string) (*JSONL, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating output file: %w", err)
	}
	return &JSONL{f: f, buf: bufio.NewWriter(f)}, nil
}

func (s *JSONL) Emit(_ context.Context, ev schemas.Event) error {
	line, err := json.Marshal(toEmitted(ev))
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.buf.Write(line); err != nil {
		return err
	}
	return s.buf.WriteByte('\n')
}

func (s *JSONL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.buf.Flush(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

// Writer streams events as JSON lines to an arbitrary writer, typically
// stdout. It never closes the underlying writer.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

var _ schemas.Sink = (*Writer)(nil)

// NewWriter wraps w in a sink.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (s *Writer) Emit(_ context.Context, ev schemas.Event) error {
	line, err := json.Marshal(toEmitted(ev))
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = fmt.Fprintf(s.w, "%s\n", line)
	return err
}

func (s *Writer) Close() error { return nil }

// Multi fans one event out to several sinks. Emit reports the first
// failure but still offers the event to every sink; Close closes all.
type Multi struct {
	sinks []schemas.Sink
}

var _ schemas.Sink = (*Multi)(nil)

// NewMulti combines sinks. A single sink is returned unwrapped.
func NewMulti(sinks ...schemas.Sink) schemas.Sink {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return &Multi{sinks: sinks}
}

func (m *Multi) Emit(ctx context.Context, ev schemas.Event) error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Emit(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Multi) Close() error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
