package sink_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itchlabs/itch/api/schemas"
	"github.com/itchlabs/itch/internal/sink"
)

func sampleEvents() []schemas.Event {
	return []schemas.Event{
		{
			TaskID:   "game-001",
			Outcome:  schemas.OutcomeSucceeded,
			Attempts: 1,
			Record: &schemas.Record{
				ID:          "urn:uuid:9b2f8a44-1f64-4a0e-8f94-0a2d2c9a3b11",
				TaskID:      "game-001",
				ExtractedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
				Fields: map[string]any{
					"title": "Voidwalker",
					"price": 2.99,
					"tags":  []any{"Adventure", "Puzzle"},
				},
			},
		},
		{
			TaskID:   "game-002",
			Outcome:  schemas.OutcomeFailed,
			Attempts: 3,
			Err:      &schemas.NavigationTimeout{URL: "https://example.com/g/2", Timeout: 45 * time.Second},
		},
	}
}

func TestJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "records.jsonl")

	s, err := sink.NewJSONL(path)
	require.NoError(t, err, "the output directory is created on demand")

	for _, ev := range sampleEvents() {
		require.NoError(t, s.Emit(context.Background(), ev))
	}
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2, "one JSON object per event")

	var succeeded map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &succeeded))
	assert.Equal(t, "succeeded", succeeded["outcome"])
	assert.Equal(t, "game-001", succeeded["task_id"])
	record, ok := succeeded["record"].(map[string]any)
	require.True(t, ok)
	fields, ok := record["fields"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Voidwalker", fields["title"])
	assert.Equal(t, 2.99, fields["price"])
	assert.NotContains(t, succeeded, "error")

	var failed map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &failed))
	assert.Equal(t, "failed", failed["outcome"])
	assert.Equal(t, float64(3), failed["attempts"])
	assert.Contains(t, failed["error"], "did not become ready")
	assert.NotContains(t, failed, "record")
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	s := sink.NewWriter(&buf)

	require.NoError(t, s.Emit(context.Background(), sampleEvents()[0]))
	require.NoError(t, s.Close())

	assert.True(t, strings.HasSuffix(buf.String(), "\n"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "game-001", line["task_id"])
}

type failingSink struct{ err error }

func (f *failingSink) Emit(context.Context, schemas.Event) error { return f.err }
func (f *failingSink) Close() error                              { return f.err }

func TestMulti(t *testing.T) {
	var a, b bytes.Buffer
	broken := &failingSink{err: errors.New("disk full")}

	m := sink.NewMulti(sink.NewWriter(&a), broken, sink.NewWriter(&b))

	err := m.Emit(context.Background(), sampleEvents()[0])
	assert.EqualError(t, err, "disk full")

	// The failure of one sink must not starve the others.
	assert.NotZero(t, a.Len())
	assert.NotZero(t, b.Len())

	assert.EqualError(t, m.Close(), "disk full")
}

func TestNewMulti_SingleSinkUnwrapped(t *testing.T) {
	w := sink.NewWriter(&bytes.Buffer{})
	assert.Equal(t, schemas.Sink(w), sink.NewMulti(w))
}
