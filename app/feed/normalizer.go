package feed

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// TimestampLayout is the canonical rendering of record dates and date
// sort keys.
const TimestampLayout = "2006-01-02 15:04:05"

// undatedPrefix starts the sort key of records whose date cannot be read.
// It orders before every real timestamp.
const undatedPrefix = "0000-00-00 00:00:00"

var (
	ErrMissingLink     = errors.New("item does not have a valid link element")
	ErrMissingDate     = errors.New("item has no date")
	ErrUnparseableDate = errors.New("item date could not be parsed")
)

// FieldsFor builds the field map for one resolved feed: the caller's
// overrides plus the shape's date and link hints, and the description hint
// when explicit is set.
func FieldsFor(resolved Resolved, overrides FieldOverrides, explicit bool) *FieldMap {
	fields := DefaultFieldMap().Merge(overrides).
		WithHint("date", resolved.DateKey).
		WithHint("link", resolved.LinkKey)
	if explicit {
		fields = fields.WithHint("description", resolved.DescKey)
	}
	return fields
}

type Normalizer struct {
	fields    *FieldMap
	sortField string
	location  *time.Location
}

func NewNormalizer(fields *FieldMap, sortField string, location *time.Location) *Normalizer {
	if fields == nil {
		fields = DefaultFieldMap()
	}
	if sortField == "" {
		sortField = DefaultSortField
	}
	if location == nil {
		location = time.UTC
	}
	return &Normalizer{fields: fields, sortField: sortField, location: location}
}

// Normalized is one accepted item. DateErr is set when the record's date
// could not be turned into a timestamp; the record is still usable.
type Normalized struct {
	Record  Record
	SortKey string
	DateErr error
}

// Normalize converts one raw item. Items without a link are rejected with
// ErrMissingLink.
func (n *Normalizer) Normalize(item Node, source, channel string) (Normalized, error) {
	record := Record{}

	for _, field := range n.fields.Fields() {
		for _, key := range n.fields.Candidates(field) {
			child, ok := item.Child(key)
			if !ok {
				continue
			}
			if value, ok := Extract(child); ok && value != "" {
				record[field] = value
				break
			}
		}
	}

	if record.Link() == "" {
		return Normalized{}, fmt.Errorf("feed %s: %w", source, ErrMissingLink)
	}

	if source != "" {
		record["source"] = source
	}
	if channel != "" {
		record["channel"] = channel
	}

	result := Normalized{Record: record}

	timestamp, dateErr := n.parseDate(record["date"])
	if dateErr == nil {
		record["date"] = timestamp
	}
	result.DateErr = dateErr

	if n.sortField != DefaultSortField && record[n.sortField] != "" {
		result.SortKey = record[n.sortField]
	} else if dateErr == nil {
		result.SortKey = timestamp
	} else {
		result.SortKey = undatedKey(record)
	}

	return result, nil
}

func (n *Normalizer) parseDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrMissingDate
	}

	t, err := dateparse.ParseIn(raw, n.location)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnparseableDate, raw)
	}
	return t.In(n.location).Format(TimestampLayout), nil
}

func undatedKey(record Record) string {
	id := record["guid"]
	if id == "" {
		id = record.Link()
	}
	return undatedPrefix + "|" + record["source"] + "|" + id
}
