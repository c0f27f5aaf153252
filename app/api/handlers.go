package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/rss-blend/app/aggregator"
	"github.com/lysyi3m/rss-blend/app/cache"
	"github.com/lysyi3m/rss-blend/app/feed"
	"github.com/lysyi3m/rss-blend/app/tasks"
)

const healthTimeout = 5 * time.Second

func NewHandler(groupCache *feed.GroupCache, agg AggregatorInterface, backend cache.Backend,
	scheduler tasks.TaskSchedulerInterface) *Handler {
	return &Handler{
		groupCache: groupCache,
		aggregator: agg,
		backend:    backend,
		scheduler:  scheduler,
	}
}

// GetGroupFeed aggregates a configured group. ?limit overrides the group's
// limit for this request only.
func (h *Handler) GetGroupFeed(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing group name parameter"})
		return
	}

	group, err := h.groupCache.GetGroup(name)
	if err != nil {
		slog.Error("Group configuration not found", "group", name, "error", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "Group configuration not found"})
		return
	}

	q := group.Query
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		q.Limit = limit
	}

	result, err := h.aggregator.Aggregate(c.Request.Context(), q)
	if err != nil {
		writeAggregateError(c, name, err)
		return
	}

	c.Header("X-Feed-Items", strconv.Itoa(len(result.Records)))
	c.Header("X-Group-Name", name)
	c.Header("X-Cache", cacheStatus(result))

	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp":     time.Now().In(time.Local).Format(time.RFC3339),
		"loaded_groups": h.groupCache.GetGroupCount(),
	}

	status := http.StatusOK
	if h.backend != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		if err := h.backend.Ping(ctx); err != nil {
			slog.Error("Cache backend unreachable", "error", err)
			health["cache"] = "unavailable"
			health["cache_error"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			health["cache"] = "ok"
		}
	}

	c.JSON(status, health)
}

func (h *Handler) APIListGroups(c *gin.Context) {
	names := h.groupCache.GetGroupNames()
	groups := make([]map[string]interface{}, 0, len(names))

	for _, name := range names {
		group, err := h.groupCache.GetGroup(name)
		if err != nil {
			continue
		}
		groups = append(groups, map[string]interface{}{
			"name":             group.Name,
			"feeds":            len(group.Conditions),
			"enabled":          group.Settings.Enabled,
			"limit":            group.Limit,
			"cache":            group.Feed.Cache,
			"refresh_interval": (time.Duration(group.Settings.RefreshInterval) * time.Second).String(),
			"filters":          len(group.Filters),
		})
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"groups": groups,
		"total":  len(groups),
	})
}

func (h *Handler) APIGetGroupDetails(c *gin.Context) {
	name := c.Param("name")

	group, err := h.groupCache.GetGroup(name)
	if err != nil {
		slog.Error("Group configuration not found", "group", name, "error", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "Group configuration not found"})
		return
	}

	c.JSON(http.StatusOK, group)
}

// APIAggregate runs an ad-hoc query posted as JSON.
func (h *Handler) APIAggregate(c *gin.Context) {
	var q feed.Query
	if err := c.ShouldBindJSON(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid query",
			"details": err.Error(),
		})
		return
	}

	result, err := h.aggregator.Aggregate(c.Request.Context(), q)
	if err != nil {
		writeAggregateError(c, "", err)
		return
	}

	c.Header("X-Feed-Items", strconv.Itoa(len(result.Records)))
	c.Header("X-Cache", cacheStatus(result))

	c.JSON(http.StatusOK, result)
}

func (h *Handler) APIRefreshGroup(c *gin.Context) {
	name := c.Param("name")

	group, err := h.groupCache.GetGroup(name)
	if err != nil {
		slog.Error("Group configuration not found", "group", name, "error", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "Group configuration not found"})
		return
	}

	refreshTask := tasks.NewReloadGroupTask(group, h.aggregator, h.groupCache)
	if err := h.scheduler.EnqueueTask(refreshTask); err != nil {
		slog.Error("Error enqueueing refresh task", "group", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to enqueue refresh task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Group reload and refresh enqueued successfully",
		"group": gin.H{
			"name":  name,
			"feeds": len(group.Conditions),
		},
		"tasks": []gin.H{
			{
				"id":   refreshTask.ID,
				"type": refreshTask.Type,
			},
		},
	})
}

func writeAggregateError(c *gin.Context, group string, err error) {
	switch {
	case errors.Is(err, aggregator.ErrNoSources):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, aggregator.ErrInvalidQuery):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		slog.Error("Aggregation failed", "group", group, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Aggregation failed"})
	}
}

func cacheStatus(result *aggregator.Result) string {
	if result.Report.Cached {
		return "HIT"
	}
	return "MISS"
}
