package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/rss-blend/app/aggregator"
	"github.com/lysyi3m/rss-blend/app/cache"
	"github.com/lysyi3m/rss-blend/app/feed"
	"github.com/lysyi3m/rss-blend/app/tasks"
)

const testAPIKey = "secret"

type fakeAggregator struct {
	mu      sync.Mutex
	err     error
	queries []feed.Query
}

func (f *fakeAggregator) Aggregate(ctx context.Context, q feed.Query) (*aggregator.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return &aggregator.Result{
		Records: []feed.Record{{"link": "https://a.example.com/1", "title": "One"}},
		Report:  aggregator.Report{Key: "feeds:query:test", Total: 1},
	}, nil
}

func (f *fakeAggregator) Refresh(ctx context.Context, q feed.Query) (*aggregator.Result, error) {
	return f.Aggregate(ctx, q)
}

func (f *fakeAggregator) lastQuery(t *testing.T) feed.Query {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.queries)
	return f.queries[len(f.queries)-1]
}

type fakeScheduler struct {
	err   error
	tasks []tasks.TaskInterface
}

func (f *fakeScheduler) Start() {}
func (f *fakeScheduler) Stop()  {}

func (f *fakeScheduler) EnqueueTask(task tasks.TaskInterface) error {
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, task)
	return nil
}

type failingBackend struct {
	*cache.MemoryBackend
}

func (failingBackend) Ping(ctx context.Context) error {
	return errors.New("connection refused")
}

func newTestServer(t *testing.T, agg *fakeAggregator, sched *fakeScheduler, backend cache.Backend, apiKey string) *gin.Engine {
	t.Helper()

	dir := t.TempDir()
	group := `
feeds:
  alpha: "https://alpha.example.com/rss.xml"
  beta: "https://beta.example.com/atom.xml"
limit: 10
settings:
  enabled: true
  refresh_interval: 600
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "news.yml"), []byte(group), 0644))

	groupCache := feed.NewGroupCache(dir)
	require.NoError(t, groupCache.Run())

	handler := NewHandler(groupCache, agg, backend, sched)
	return NewServer(handler, apiKey)
}

func serve(r http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetGroupFeed(t *testing.T) {
	agg := &fakeAggregator{}
	r := newTestServer(t, agg, &fakeScheduler{}, cache.NewMemoryBackend(), "")

	w := serve(r, http.MethodGet, "/groups/news", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-Feed-Items"))
	assert.Equal(t, "news", w.Header().Get("X-Group-Name"))
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))

	var result aggregator.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Len(t, result.Records, 1)
	assert.Equal(t, "https://a.example.com/1", result.Records[0].Link())

	q := agg.lastQuery(t)
	assert.Equal(t, 10, q.Limit)
	require.Len(t, q.Conditions, 2)
	assert.Equal(t, "alpha", q.Conditions[0].ID)
}

func TestGetGroupFeedLimitOverride(t *testing.T) {
	agg := &fakeAggregator{}
	r := newTestServer(t, agg, &fakeScheduler{}, nil, "")

	w := serve(r, http.MethodGet, "/groups/news?limit=3", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, agg.lastQuery(t).Limit)

	w = serve(r, http.MethodGet, "/groups/news?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(r, http.MethodGet, "/groups/news?limit=-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetGroupFeedNotFound(t *testing.T) {
	r := newTestServer(t, &fakeAggregator{}, &fakeScheduler{}, nil, "")

	w := serve(r, http.MethodGet, "/groups/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAggregateErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		body string
	}{
		{"no sources", aggregator.ErrNoSources, http.StatusUnprocessableEntity, `{"error":"no sources configured"}`},
		{"invalid query", fmt.Errorf("%w: invalid order direction", aggregator.ErrInvalidQuery), http.StatusBadRequest, ""},
		{"internal", errors.New("boom"), http.StatusInternalServerError, `{"error":"Aggregation failed"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestServer(t, &fakeAggregator{err: tt.err}, &fakeScheduler{}, nil, "")

			w := serve(r, http.MethodGet, "/groups/news", "", nil)
			assert.Equal(t, tt.code, w.Code)
			if tt.body != "" {
				assert.JSONEq(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestHealth(t *testing.T) {
	r := newTestServer(t, &fakeAggregator{}, &fakeScheduler{}, cache.NewMemoryBackend(), "")

	w := serve(r, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["cache"])
	assert.Equal(t, float64(1), health["loaded_groups"])
}

func TestHealthCacheUnavailable(t *testing.T) {
	backend := failingBackend{cache.NewMemoryBackend()}
	r := newTestServer(t, &fakeAggregator{}, &fakeScheduler{}, backend, "")

	w := serve(r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestAPIDisabledWithoutKey(t *testing.T) {
	r := newTestServer(t, &fakeAggregator{}, &fakeScheduler{}, nil, "")

	w := serve(r, http.MethodGet, "/api/groups", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPIAuthentication(t *testing.T) {
	r := newTestServer(t, &fakeAggregator{}, &fakeScheduler{}, nil, testAPIKey)

	w := serve(r, http.MethodGet, "/api/groups", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, http.MethodGet, "/api/groups", "", map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, http.MethodGet, "/api/groups", "", map[string]string{"Authorization": "Bearer " + testAPIKey})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIListGroups(t *testing.T) {
	r := newTestServer(t, &fakeAggregator{}, &fakeScheduler{}, nil, testAPIKey)

	w := serve(r, http.MethodGet, "/api/groups", "", map[string]string{"X-API-Key": testAPIKey})
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Groups []map[string]interface{} `json:"groups"`
		Total  int                      `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Total)
	require.Len(t, body.Groups, 1)
	assert.Equal(t, "news", body.Groups[0]["name"])
	assert.Equal(t, float64(2), body.Groups[0]["feeds"])
	assert.Equal(t, "10m0s", body.Groups[0]["refresh_interval"])
}

func TestAPIGetGroupDetails(t *testing.T) {
	r := newTestServer(t, &fakeAggregator{}, &fakeScheduler{}, nil, testAPIKey)
	headers := map[string]string{"X-API-Key": testAPIKey}

	w := serve(r, http.MethodGet, "/api/groups/news", "", headers)
	require.Equal(t, http.StatusOK, w.Code)

	var group feed.Group
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &group))
	assert.Equal(t, "news", group.Name)
	require.Len(t, group.Conditions, 2)
	assert.Equal(t, "beta", group.Conditions[1].ID)

	w = serve(r, http.MethodGet, "/api/groups/missing", "", headers)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPIAggregate(t *testing.T) {
	agg := &fakeAggregator{}
	r := newTestServer(t, agg, &fakeScheduler{}, nil, testAPIKey)
	headers := map[string]string{"X-API-Key": testAPIKey}

	body := `{"feeds": {"b": "https://b.example.com/rss", "a": "https://a.example.com/rss"}, "limit": 5, "order": {"field": "date", "direction": "asc"}}`
	w := serve(r, http.MethodPost, "/api/aggregate", body, headers)
	require.Equal(t, http.StatusOK, w.Code)

	q := agg.lastQuery(t)
	assert.Equal(t, 5, q.Limit)
	assert.Equal(t, feed.Ascending, q.Order.Direction)
	require.Len(t, q.Conditions, 2)
	assert.Equal(t, "b", q.Conditions[0].ID)
	assert.Equal(t, "a", q.Conditions[1].ID)

	w = serve(r, http.MethodPost, "/api/aggregate", `{"feeds": `, headers)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPIAggregateNoSources(t *testing.T) {
	agg := &fakeAggregator{err: aggregator.ErrNoSources}
	r := newTestServer(t, agg, &fakeScheduler{}, nil, testAPIKey)

	w := serve(r, http.MethodPost, "/api/aggregate", `{"feeds": {}}`, map[string]string{"X-API-Key": testAPIKey})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"error":"no sources configured"}`, w.Body.String())
}

func TestAPIRefreshGroup(t *testing.T) {
	sched := &fakeScheduler{}
	r := newTestServer(t, &fakeAggregator{}, sched, nil, testAPIKey)
	headers := map[string]string{"X-API-Key": testAPIKey}

	w := serve(r, http.MethodPost, "/api/groups/news/refresh", "", headers)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, sched.tasks, 1)
	assert.Equal(t, tasks.TaskTypeRefreshGroup, sched.tasks[0].GetType())
	assert.Equal(t, "news", sched.tasks[0].GetGroupName())

	w = serve(r, http.MethodPost, "/api/groups/missing/refresh", "", headers)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPIRefreshGroupQueueFull(t *testing.T) {
	sched := &fakeScheduler{err: errors.New("task queue is full")}
	r := newTestServer(t, &fakeAggregator{}, sched, nil, testAPIKey)

	w := serve(r, http.MethodPost, "/api/groups/news/refresh", "", map[string]string{"X-API-Key": testAPIKey})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	r := newTestServer(t, &fakeAggregator{}, &fakeScheduler{}, nil, "")

	w := serve(r, http.MethodOptions, "/groups/news", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
