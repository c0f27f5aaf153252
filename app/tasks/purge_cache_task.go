package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/rss-blend/app/cache"
)

// PurgeCacheTask removes expired entries from backends that keep them.
type PurgeCacheTask struct {
	Task
	purger cache.Purger
}

func NewPurgeCacheTask(purger cache.Purger) *PurgeCacheTask {
	return &PurgeCacheTask{
		Task:   NewTask(TaskTypePurgeCache, ""),
		purger: purger,
	}
}

func (t *PurgeCacheTask) Execute(ctx context.Context) error {
	purged, err := t.purger.PurgeExpired(ctx)
	if err != nil {
		return fmt.Errorf("failed to purge cache: %w", err)
	}

	if purged == 0 {
		slog.Debug("Task completed", "type", "PurgeCache", "purged", purged)
		return nil
	}

	slog.Info("Task completed",
		"type", "PurgeCache",
		"duration", t.GetDuration(),
		"purged", purged)

	return nil
}
