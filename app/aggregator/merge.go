package aggregator

import (
	"slices"

	"github.com/lysyi3m/rss-blend/app/feed"
)

// Merge unions per-source record maps. On a key collision the record of
// the earlier map is kept.
func Merge(sources ...map[string]feed.Record) map[string]feed.Record {
	size := 0
	for _, s := range sources {
		size += len(s)
	}

	merged := make(map[string]feed.Record, size)
	for _, s := range sources {
		for key, record := range s {
			if _, exists := merged[key]; exists {
				continue
			}
			merged[key] = record
		}
	}
	return merged
}

// Order returns the non-empty records of merged sorted by key.
func Order(merged map[string]feed.Record, direction feed.Direction) []feed.Record {
	keys := make([]string, 0, len(merged))
	for key, record := range merged {
		if record == nil || record.Empty() {
			continue
		}
		keys = append(keys, key)
	}

	slices.Sort(keys)
	if direction == feed.Descending {
		slices.Reverse(keys)
	}

	records := make([]feed.Record, len(keys))
	for i, key := range keys {
		records[i] = merged[key]
	}
	return records
}

func truncate(records []feed.Record, limit int) []feed.Record {
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return slices.Clone(records)
}
