package api

import (
	"context"

	"github.com/lysyi3m/rss-blend/app/aggregator"
	"github.com/lysyi3m/rss-blend/app/cache"
	"github.com/lysyi3m/rss-blend/app/feed"
	"github.com/lysyi3m/rss-blend/app/tasks"
)

type AggregatorInterface interface {
	Aggregate(ctx context.Context, q feed.Query) (*aggregator.Result, error)
	Refresh(ctx context.Context, q feed.Query) (*aggregator.Result, error)
}

var _ AggregatorInterface = (*aggregator.Aggregator)(nil)

type Handler struct {
	groupCache *feed.GroupCache
	aggregator AggregatorInterface
	backend    cache.Backend
	scheduler  tasks.TaskSchedulerInterface
}
