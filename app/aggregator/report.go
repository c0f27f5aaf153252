package aggregator

import (
	"github.com/lysyi3m/rss-blend/app/feed"
)

type DiagnosticKind string

const (
	SourceUnavailable     DiagnosticKind = "source_unavailable"
	UnrecognizedFeedShape DiagnosticKind = "unrecognized_feed_shape"
	MissingLink           DiagnosticKind = "missing_link"
	UnparseableDate       DiagnosticKind = "unparseable_date"
)

// Diagnostic is a non-fatal problem met while loading one source.
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind"`
	Source  string         `json:"source"`
	Message string         `json:"message"`
}

type SourceStatus string

const (
	StatusFetched      SourceStatus = "fetched"
	StatusCached       SourceStatus = "cached"
	StatusUnavailable  SourceStatus = "unavailable"
	StatusUnrecognized SourceStatus = "unrecognized"
)

type SourceReport struct {
	ID          string       `json:"id"`
	URL         string       `json:"url"`
	Status      SourceStatus `json:"status"`
	Shape       feed.Shape   `json:"shape,omitempty"`
	Records     int          `json:"records"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// Report describes how a result was produced. Sources is empty when the
// whole result came from the combined cache.
type Report struct {
	Key     string         `json:"key"`
	Cached  bool           `json:"cached"`
	Total   int            `json:"total"`
	Sources []SourceReport `json:"sources,omitempty"`
}

// Diagnostics returns the diagnostics of all sources in source order.
func (r Report) Diagnostics() []Diagnostic {
	var out []Diagnostic
	for _, s := range r.Sources {
		out = append(out, s.Diagnostics...)
	}
	return out
}

type Result struct {
	Records []feed.Record `json:"records"`
	Report  Report        `json:"report"`
}
