package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lysyi3m/rss-blend/app/cache"
	"github.com/lysyi3m/rss-blend/app/feed"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const (
	taskQueueSize = 300
	taskTimeout   = 5 * time.Minute
	maxRetryDelay = 30 * time.Second
)

// GroupSource lists the groups the scheduler keeps warm.
type GroupSource interface {
	GetEnabledGroups() map[string]*feed.Group
}

type Scheduler struct {
	groups      GroupSource
	refresher   Refresher
	purger      cache.Purger
	interval    time.Duration
	workerCount int
	retryDelay  time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface

	mu        sync.Mutex
	nextFetch map[string]time.Time
}

// NewScheduler builds a scheduler. backend is purged of expired entries on
// every tick when it keeps them.
func NewScheduler(groups GroupSource, refresher Refresher, backend cache.Backend, workerCount int, interval time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	purger, _ := backend.(cache.Purger)
	if workerCount <= 0 {
		workerCount = 1
	}

	return &Scheduler{
		groups:      groups,
		refresher:   refresher,
		purger:      purger,
		interval:    interval,
		workerCount: workerCount,
		retryDelay:  time.Second,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, taskQueueSize),
		nextFetch:   make(map[string]time.Time),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueTasks(time.Now())

		for {
			select {
			case <-s.ctx.Done():
				return
			case now := <-ticker.C:
				s.enqueueTasks(now)
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

// enqueueTasks queues a refresh for every enabled group whose refresh
// interval elapsed, then a cache purge.
func (s *Scheduler) enqueueTasks(now time.Time) {
	groups := s.groups.GetEnabledGroups()
	if len(groups) == 0 {
		slog.Debug("No enabled groups found")
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		group := groups[name]
		if !s.due(name, now) {
			continue
		}

		if err := s.EnqueueTask(NewRefreshGroupTask(group, s.refresher)); err != nil {
			slog.Warn("Failed to enqueue RefreshGroupTask", "group", name, "error", err)
			continue
		}
		s.markScheduled(name, now.Add(time.Duration(group.Settings.RefreshInterval)*time.Second))
	}

	if s.purger != nil {
		if err := s.EnqueueTask(NewPurgeCacheTask(s.purger)); err != nil {
			slog.Warn("Failed to enqueue PurgeCacheTask", "error", err)
		}
	}
}

func (s *Scheduler) due(name string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, ok := s.nextFetch[name]
	if ok && next.After(now) {
		slog.Debug("Group not due for refresh yet", "group", name, "next_fetch_at", next)
		return false
	}
	return true
}

func (s *Scheduler) markScheduled(name string, next time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextFetch[name] = next
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		return
	}

	task.IncrementRetryCount()
	retryDelay := s.retryDelay * time.Duration(1<<uint(task.GetRetryCount()-1))
	if retryDelay > maxRetryDelay {
		retryDelay = maxRetryDelay
	}

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "group", task.GetGroupName(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

	go func() {
		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
		case <-time.After(retryDelay):
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
			}
		}
	}()
}
