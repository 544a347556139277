package sink_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/itchlabs/itch/api/schemas"
	"github.com/itchlabs/itch/internal/sink"
)

func TestImages_DownloadsSucceededRecords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cover.png":
			w.Write([]byte("png-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	dir := filepath.Join(t.TempDir(), "images")
	var buf bytes.Buffer
	s, err := sink.NewImages(sink.NewWriter(&buf), dir, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	ev := schemas.Event{
		TaskID:   "game-001",
		Outcome:  schemas.OutcomeSucceeded,
		Attempts: 1,
		Record: &schemas.Record{
			ID:          "urn:uuid:9b2f8a44-1f64-4a0e-8f94-0a2d2c9a3b11",
			TaskID:      "game-001",
			ExtractedAt: time.Now().UTC(),
			Fields:      map[string]any{"cover_url": server.URL + "/cover.png"},
			Downloads:   []string{server.URL + "/cover.png"},
		},
	}
	require.NoError(t, s.Emit(context.Background(), ev))

	data, err := os.ReadFile(filepath.Join(dir, "game-001-cover.png"))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	// The wrapped sink still saw the event.
	assert.Contains(t, buf.String(), "game-001")
}

// TestImages_DownloadFailureDoesNotFailEmit verifies a broken image URL is
// logged and skipped; the record was already extracted and delivered.
func TestImages_DownloadFailureDoesNotFailEmit(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	dir := filepath.Join(t.TempDir(), "images")
	var buf bytes.Buffer
	s, err := sink.NewImages(sink.NewWriter(&buf), dir, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	ev := schemas.Event{
		TaskID:  "game-001",
		Outcome: schemas.OutcomeSucceeded,
		Record: &schemas.Record{
			TaskID:    "game-001",
			Fields:    map[string]any{},
			Downloads: []string{server.URL + "/gone.png"},
		},
	}
	require.NoError(t, s.Emit(context.Background(), ev))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NotZero(t, buf.Len(), "the event itself is still delivered")
}

func TestImages_FailedEventsDownloadNothing(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer server.Close()

	dir := filepath.Join(t.TempDir(), "images")
	s, err := sink.NewImages(sink.NewWriter(&bytes.Buffer{}), dir, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	ev := schemas.Event{
		TaskID:  "game-002",
		Outcome: schemas.OutcomeFailed,
		Err:     &schemas.NavigationTimeout{URL: "https://example.com", Timeout: time.Second},
	}
	require.NoError(t, s.Emit(context.Background(), ev))
	assert.Zero(t, requests)
}
