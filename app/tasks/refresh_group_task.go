package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/rss-blend/app/aggregator"
	"github.com/lysyi3m/rss-blend/app/feed"
)

// RefreshGroupTask reloads every source of a group and rewrites its cache
// entries. With a loader set, the group definition is reread first.
type RefreshGroupTask struct {
	Task
	Group     *feed.Group
	refresher Refresher
	loader    GroupLoader
}

func NewRefreshGroupTask(group *feed.Group, refresher Refresher) *RefreshGroupTask {
	return &RefreshGroupTask{
		Task:      NewTask(TaskTypeRefreshGroup, group.Name),
		Group:     group,
		refresher: refresher,
	}
}

// NewReloadGroupTask rereads the group through loader before refreshing.
func NewReloadGroupTask(group *feed.Group, refresher Refresher, loader GroupLoader) *RefreshGroupTask {
	t := NewRefreshGroupTask(group, refresher)
	t.loader = loader
	return t
}

func (t *RefreshGroupTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	group := t.Group
	if t.loader != nil {
		reloaded, err := t.loader.LoadGroup(t.GroupName)
		if err != nil {
			return fmt.Errorf("failed to reload group: %w", err)
		}
		group = reloaded
	}

	result, err := t.refresher.Refresh(ctx, group.Query)
	if err != nil {
		return fmt.Errorf("failed to refresh group: %w", err)
	}

	failed := 0
	for _, source := range result.Report.Sources {
		if source.Status != aggregator.StatusFetched {
			failed++
		}
	}

	slog.Info("Task completed",
		"type", "RefreshGroup",
		"group", t.GroupName,
		"duration", t.GetDuration(),
		"sources", len(result.Report.Sources),
		"failed", failed,
		"records", result.Report.Total,
		"diagnostics", len(result.Report.Diagnostics()))

	return nil
}
