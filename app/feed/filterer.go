package feed

import (
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
)

type Filterer struct{}

func NewFilterer() *Filterer {
	return &Filterer{}
}

// Run returns the records that pass every filter, preserving order.
func (f *Filterer) Run(records []Record, filters []Filter) []Record {
	if len(filters) == 0 {
		return records
	}

	kept := make([]Record, 0, len(records))
	for _, record := range records {
		if isFiltered, reason := f.applyFilters(record, filters); isFiltered {
			slog.Debug("Record filtered", "link", record.Link(), "source", record["source"], "reason", reason)
			continue
		}
		kept = append(kept, record)
	}

	return kept
}

func (f *Filterer) applyFilters(record Record, filters []Filter) (bool, string) {
	for _, filter := range filters {
		value := record[filter.Field]

		for _, exclude := range filter.Excludes {
			if f.matchesFilter(value, exclude) {
				return true, fmt.Sprintf("Excluded by %s filter: contains '%s'", filter.Field, exclude)
			}
		}

		if len(filter.Includes) > 0 {
			matched := false
			for _, include := range filter.Includes {
				if f.matchesFilter(value, include) {
					matched = true
					break
				}
			}
			if !matched {
				return true, fmt.Sprintf("Excluded by %s filter: does not contain any of %v", filter.Field, filter.Includes)
			}
		}
	}

	return false, ""
}

func (f *Filterer) matchesFilter(value, pattern string) bool {
	// A Caser is stateful, so each call gets its own.
	fold := cases.Fold()
	return strings.Contains(fold.String(value), fold.String(pattern))
}

// ValidateFilters rejects filters without rules or without a field.
func ValidateFilters(filters []Filter) error {
	for i, filter := range filters {
		if filter.Field == "" {
			return fmt.Errorf("filter at index %d has no field", i)
		}
		if len(filter.Includes) == 0 && len(filter.Excludes) == 0 {
			return fmt.Errorf("filter at index %d must have at least one include or exclude rule", i)
		}
	}
	return nil
}
