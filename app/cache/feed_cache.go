package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/rss-blend/app/feed"
)

const (
	queryKeyPrefix  = "feeds:query"
	sourceKeyPrefix = "feeds:source"
)

// FeedCache lays the two cache levels over a Backend: the combined sorted
// result of a query, and the normalized records of a single source URL.
type FeedCache struct {
	backend Backend
}

func NewFeedCache(backend Backend) *FeedCache {
	return &FeedCache{backend: backend}
}

type queryFingerprint struct {
	Sources   feed.Sources        `json:"sources"`
	SortField string              `json:"sort_field"`
	Direction feed.Direction      `json:"direction"`
	Limit     int                 `json:"limit"`
	Fields    feed.FieldOverrides `json:"fields"`
	Root      string              `json:"root"`
	Explicit  bool                `json:"explicit"`
	Filters   []feed.Filter       `json:"filters"`
	Location  string              `json:"location"`
}

type sourceFingerprint struct {
	URL       string              `json:"url"`
	ID        string              `json:"id"`
	SortField string              `json:"sort_field"`
	Fields    feed.FieldOverrides `json:"fields"`
	Root      string              `json:"root"`
	Explicit  bool                `json:"explicit"`
	Location  string              `json:"location"`
}

// QueryKey identifies the combined result of q. Queries that differ in any
// option affecting the result get different keys.
func QueryKey(q feed.Query, location *time.Location) string {
	return generateKey(queryKeyPrefix, queryFingerprint{
		Sources:   q.Conditions,
		SortField: q.Order.Field,
		Direction: q.Order.Direction,
		Limit:     q.Limit,
		Fields:    q.Fields,
		Root:      q.Feed.Root,
		Explicit:  q.Explicit,
		Filters:   q.Filters,
		Location:  locationName(location),
	})
}

// SourceKey identifies the normalized records of one source under the
// normalization options of q.
func SourceKey(source feed.Source, q feed.Query, location *time.Location) string {
	return generateKey(sourceKeyPrefix, sourceFingerprint{
		URL:       source.URL,
		ID:        source.ID,
		SortField: q.Order.Field,
		Fields:    q.Fields,
		Root:      q.Feed.Root,
		Explicit:  q.Explicit,
		Location:  locationName(location),
	})
}

func generateKey(prefix string, fingerprint any) string {
	// Struct fields and map keys marshal in a fixed order.
	data, _ := json.Marshal(fingerprint)
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s:%x", prefix, hash[:8])
}

func locationName(location *time.Location) string {
	if location == nil {
		return time.UTC.String()
	}
	return location.String()
}

// GetRecords returns the cached combined result stored under key.
func (c *FeedCache) GetRecords(ctx context.Context, key string) ([]feed.Record, bool) {
	var records []feed.Record
	if !c.get(ctx, key, &records) {
		return nil, false
	}
	return records, true
}

func (c *FeedCache) SetRecords(ctx context.Context, key string, records []feed.Record, ttl time.Duration) {
	c.set(ctx, key, records, ttl)
}

// GetSource returns the cached records of one source keyed by sort key.
func (c *FeedCache) GetSource(ctx context.Context, key string) (map[string]feed.Record, bool) {
	var records map[string]feed.Record
	if !c.get(ctx, key, &records) {
		return nil, false
	}
	if records == nil {
		records = map[string]feed.Record{}
	}
	return records, true
}

func (c *FeedCache) SetSource(ctx context.Context, key string, records map[string]feed.Record, ttl time.Duration) {
	c.set(ctx, key, records, ttl)
}

// A backend failure degrades to a miss.
func (c *FeedCache) get(ctx context.Context, key string, dest any) bool {
	data, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		slog.Warn("Cache read failed", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		slog.Warn("Discarding invalid cache entry", "key", key, "error", err)
		if err := c.backend.Delete(ctx, key); err != nil {
			slog.Debug("Failed to delete invalid cache entry", "key", key, "error", err)
		}
		return false
	}
	return true
}

func (c *FeedCache) set(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		slog.Warn("Failed to encode cache entry", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, data, ttl); err != nil {
		slog.Warn("Cache write failed", "key", key, "error", err)
	}
}
