package tasks

import (
	"context"

	"github.com/lysyi3m/rss-blend/app/aggregator"
	"github.com/lysyi3m/rss-blend/app/feed"
)

// TaskSchedulerInterface is the part of the scheduler the HTTP layer and
// main use: lifecycle control and ad-hoc task submission.
//
//	scheduler := NewScheduler(groupCache, agg, backend, workerCount, interval)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewRefreshGroupTask(...))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}

// Refresher reloads a query while bypassing cached results.
type Refresher interface {
	Refresh(ctx context.Context, q feed.Query) (*aggregator.Result, error)
}

// GroupLoader rereads a group definition from its source.
type GroupLoader interface {
	LoadGroup(name string) (*feed.Group, error)
}
