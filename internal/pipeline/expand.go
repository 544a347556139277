package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/itchlabs/itch/api/schemas"
	"github.com/itchlabs/itch/internal/browser"
	"github.com/itchlabs/itch/internal/navigate"
)

// ExpandHarvests visits each harvest's listing page, collects the matched
// hrefs (paging through listings when a next control is configured), and
// turns every collected URL into a concrete task. Harvest expansion happens
// before the pipeline run so the run itself still sees a fixed, ordered
// task list.
func ExpandHarvests(
	ctx context.Context,
	mgr *browser.Manager,
	nav *navigate.Navigator,
	harvests []schemas.Harvest,
	logger *zap.Logger,
) ([]schemas.Task, error) {
	if len(harvests) == 0 {
		return nil, nil
	}
	logger = logger.Named("harvest")

	s, err := mgr.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		mgr.Release(s, s.HealthState())
	}()

	var tasks []schemas.Task
	for _, h := range harvests {
		if err := nav.Load(ctx, s, h.URL, h.Ready); err != nil {
			return nil, fmt.Errorf("loading harvest page %q: %w", h.ID, err)
		}

		hrefs, err := nav.CollectHrefs(ctx, s, h.Selector, h.NextSelector, h.MaxPages, h.Limit)
		if err != nil {
			return nil, fmt.Errorf("harvesting %q: %w", h.ID, err)
		}

		logger.Info("Harvest expanded.",
			zap.String("harvest_id", h.ID),
			zap.Int("urls", len(hrefs)))

		for i, url := range hrefs {
			tasks = append(tasks, schemas.Task{
				ID:     fmt.Sprintf("%s-%03d", h.ID, i+1),
				URL:    url,
				Schema: h.Schema,
			})
		}
	}
	return tasks, nil
}

// DedupeTasks drops every task whose ID already appeared earlier in the list,
// keeping the first occurrence. Harvested IDs are generated, so the combined
// explicit+harvested list can collide even though the task file validated
// clean; a duplicate would emit two events under one TaskID.
func DedupeTasks(tasks []schemas.Task, logger *zap.Logger) []schemas.Task {
	seen := make(map[string]bool, len(tasks))
	out := make([]schemas.Task, 0, len(tasks))
	for _, t := range tasks {
		if seen[t.ID] {
			logger.Warn("Dropping task with duplicate id.",
				zap.String("task_id", t.ID), zap.String("url", t.URL))
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	return out
}
