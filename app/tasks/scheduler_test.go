package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/rss-blend/app/aggregator"
	"github.com/lysyi3m/rss-blend/app/cache"
	"github.com/lysyi3m/rss-blend/app/feed"
)

type fakeGroups struct {
	groups map[string]*feed.Group
}

func (f *fakeGroups) GetEnabledGroups() map[string]*feed.Group {
	return f.groups
}

func (f *fakeGroups) LoadGroup(name string) (*feed.Group, error) {
	group, ok := f.groups[name]
	if !ok {
		return nil, errors.New("not found")
	}
	return group, nil
}

type fakeRefresher struct {
	mu       sync.Mutex
	failures int
	queries  []feed.Query
	done     chan struct{}
}

func (f *fakeRefresher) Refresh(ctx context.Context, q feed.Query) (*aggregator.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failures > 0 {
		f.failures--
		return nil, errors.New("temporary failure")
	}
	f.queries = append(f.queries, q)
	if f.done != nil {
		f.done <- struct{}{}
	}
	return &aggregator.Result{Report: aggregator.Report{
		Sources: []aggregator.SourceReport{{ID: "a", Status: aggregator.StatusFetched}},
	}}, nil
}

func testGroup(name string, interval int) *feed.Group {
	return &feed.Group{
		Name: name,
		Query: feed.Query{
			Conditions: feed.Sources{{ID: "a", URL: "https://a.example.com"}},
		},
		Settings: feed.GroupSettings{Enabled: true, RefreshInterval: interval},
	}
}

func TestScheduler_EnqueueTasksRespectsRefreshInterval(t *testing.T) {
	groups := &fakeGroups{groups: map[string]*feed.Group{
		"a": testGroup("a", 3600),
		"b": testGroup("b", 60),
	}}
	s := NewScheduler(groups, &fakeRefresher{}, nil, 1, time.Minute)
	defer s.Stop()

	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	s.enqueueTasks(now)
	assert.Len(t, s.taskQueue, 2)

	s.enqueueTasks(now.Add(30 * time.Second))
	assert.Len(t, s.taskQueue, 2, "no group is due yet")

	s.enqueueTasks(now.Add(2 * time.Minute))
	assert.Len(t, s.taskQueue, 3, "only the short-interval group is due")

	first := <-s.taskQueue
	assert.Equal(t, TaskTypeRefreshGroup, first.GetType())
	assert.Equal(t, "a", first.GetGroupName())
}

func TestScheduler_EnqueuesPurgeForPurgingBackends(t *testing.T) {
	s := NewScheduler(&fakeGroups{}, &fakeRefresher{}, cache.NewMemoryBackend(), 1, time.Minute)
	defer s.Stop()

	s.enqueueTasks(time.Now())
	require.Len(t, s.taskQueue, 1)

	task := <-s.taskQueue
	assert.Equal(t, TaskTypePurgeCache, task.GetType())
	assert.NoError(t, task.Execute(context.Background()))
}

func TestScheduler_RunsAndRetries(t *testing.T) {
	refresher := &fakeRefresher{failures: 1, done: make(chan struct{}, 1)}
	groups := &fakeGroups{groups: map[string]*feed.Group{"a": testGroup("a", 3600)}}

	s := NewScheduler(groups, refresher, nil, 2, time.Hour)
	s.retryDelay = time.Millisecond
	s.Start()
	defer s.Stop()

	select {
	case <-refresher.done:
	case <-time.After(5 * time.Second):
		t.Fatal("group was not refreshed after a retry")
	}

	refresher.mu.Lock()
	defer refresher.mu.Unlock()
	require.Len(t, refresher.queries, 1)
	assert.Equal(t, "https://a.example.com", refresher.queries[0].Conditions[0].URL)
}

func TestScheduler_EnqueueAfterStop(t *testing.T) {
	s := NewScheduler(&fakeGroups{}, &fakeRefresher{}, nil, 1, time.Minute)
	s.Stop()

	err := s.EnqueueTask(NewRefreshGroupTask(testGroup("a", 60), &fakeRefresher{}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScheduler_QueueFull(t *testing.T) {
	s := NewScheduler(&fakeGroups{}, &fakeRefresher{}, nil, 1, time.Minute)
	defer s.Stop()

	for i := 0; i < taskQueueSize; i++ {
		require.NoError(t, s.EnqueueTask(NewRefreshGroupTask(testGroup("a", 60), &fakeRefresher{})))
	}
	assert.Error(t, s.EnqueueTask(NewRefreshGroupTask(testGroup("a", 60), &fakeRefresher{})))
}

func TestRefreshGroupTask_Reload(t *testing.T) {
	stale := testGroup("a", 60)
	fresh := testGroup("a", 60)
	fresh.Conditions = feed.Sources{{ID: "b", URL: "https://b.example.com"}}

	refresher := &fakeRefresher{}
	task := NewReloadGroupTask(stale, refresher, &fakeGroups{groups: map[string]*feed.Group{"a": fresh}})
	task.Start()
	require.NoError(t, task.Execute(context.Background()))

	require.Len(t, refresher.queries, 1)
	assert.Equal(t, "https://b.example.com", refresher.queries[0].Conditions[0].URL)

	missing := NewReloadGroupTask(testGroup("gone", 60), refresher, &fakeGroups{})
	assert.Error(t, missing.Execute(context.Background()))
}

func TestTask_Retries(t *testing.T) {
	task := NewTask(TaskTypeRefreshGroup, "a")
	assert.NotEmpty(t, task.GetID())
	other := NewTask(TaskTypeRefreshGroup, "a")
	assert.NotEqual(t, task.GetID(), other.GetID())

	for i := 0; i < DefaultMaxRetries; i++ {
		assert.True(t, task.CanRetry())
		task.IncrementRetryCount()
	}
	assert.False(t, task.CanRetry())
	assert.Equal(t, time.Duration(0), task.GetDuration())
}
