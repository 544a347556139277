package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/itchlabs/itch/api/schemas"
	"github.com/itchlabs/itch/internal/browser"
	"github.com/itchlabs/itch/internal/config"
	"github.com/itchlabs/itch/internal/drivertest"
	"github.com/itchlabs/itch/internal/navigate"
	"github.com/itchlabs/itch/internal/pipeline"
)

func TestExpandHarvests(t *testing.T) {
	logger := zap.NewNop()
	drv := (&drivertest.Driver{}).Add("a.game-link",
		&drivertest.Element{Attrs: map[string]string{"href": "https://example.com/g/1"}},
		&drivertest.Element{Attrs: map[string]string{"href": "https://example.com/g/2"}},
	)

	mgr := browser.NewManager(config.Default().Browser, logger,
		browser.WithSpawner(func(ctx context.Context) (*browser.Session, error) {
			return browser.NewSession(drv, logger, nil), nil
		}))
	defer mgr.Shutdown(context.Background())

	nav := navigate.New(config.NavigatorConfig{
		LoadTimeout:     50 * time.Millisecond,
		ActionTimeout:   50 * time.Millisecond,
		LookupAttempts:  2,
		LookupBaseDelay: time.Millisecond,
	}, logger)

	harvests := []schemas.Harvest{{
		ID:       "new-releases",
		URL:      "https://example.com/new",
		Selector: "a.game-link",
		Schema:   "game",
	}}

	tasks, err := pipeline.ExpandHarvests(context.Background(), mgr, nav, harvests, logger)
	require.NoError(t, err)

	require.Len(t, tasks, 2)
	assert.Equal(t, schemas.Task{ID: "new-releases-001", URL: "https://example.com/g/1", Schema: "game"}, tasks[0])
	assert.Equal(t, schemas.Task{ID: "new-releases-002", URL: "https://example.com/g/2", Schema: "game"}, tasks[1])

	assert.Equal(t, []string{"https://example.com/new"}, drv.NavigatedURLs,
		"only the listing page is loaded during expansion")
}

// TestDedupeTasks covers the collision between explicit task IDs and the
// generated harvested ones; the first occurrence wins.
func TestDedupeTasks(t *testing.T) {
	tasks := []schemas.Task{
		{ID: "new-releases-001", URL: "https://example.com/explicit", Schema: "game"},
		{ID: "game-002", URL: "https://example.com/g/2", Schema: "game"},
		{ID: "new-releases-001", URL: "https://example.com/harvested", Schema: "game"},
	}

	deduped := pipeline.DedupeTasks(tasks, zap.NewNop())

	require.Len(t, deduped, 2)
	assert.Equal(t, "new-releases-001", deduped[0].ID)
	assert.Equal(t, "https://example.com/explicit", deduped[0].URL)
	assert.Equal(t, "game-002", deduped[1].ID)
}

func TestDedupeTasks_NoDuplicates(t *testing.T) {
	tasks := []schemas.Task{
		{ID: "a", URL: "https://example.com/a", Schema: "game"},
		{ID: "b", URL: "https://example.com/b", Schema: "game"},
	}
	assert.Equal(t, tasks, pipeline.DedupeTasks(tasks, zap.NewNop()))
}

func TestExpandHarvests_Empty(t *testing.T) {
	tasks, err := pipeline.ExpandHarvests(context.Background(), nil, nil, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, tasks, "no harvests means no session is acquired")
}
