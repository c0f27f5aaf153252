package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Record is one normalized feed item. "link" is always present.
type Record map[string]string

func (r Record) Link() string {
	return r["link"]
}

// Empty reports whether the record carries no non-blank value.
func (r Record) Empty() bool {
	for _, v := range r {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Source is one feed of a query, identified by a caller-chosen ID.
type Source struct {
	ID  string `json:"id" yaml:"id"`
	URL string `json:"url" yaml:"url"`
}

// Sources keeps feeds in declaration order. Both YAML and JSON accept either
// an ordered mapping of id to URL or a list of {id, url} objects.
type Sources []Source

func (s *Sources) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.MappingNode:
		out := make(Sources, 0, len(value.Content)/2)
		for i := 0; i+1 < len(value.Content); i += 2 {
			out = append(out, Source{ID: value.Content[i].Value, URL: value.Content[i+1].Value})
		}
		*s = out
		return nil
	case yaml.SequenceNode:
		var out []Source
		if err := value.Decode(&out); err != nil {
			return err
		}
		*s = out
		return nil
	default:
		return fmt.Errorf("feeds must be a mapping or a list, got %s", value.ShortTag())
	}
}

func (s *Sources) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var out []Source
		if err := json.Unmarshal(data, &out); err != nil {
			return err
		}
		*s = out
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return err
	}
	out := Sources{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		id, ok := tok.(string)
		if !ok {
			return fmt.Errorf("feeds: unexpected key %v", tok)
		}
		var url string
		if err := dec.Decode(&url); err != nil {
			return fmt.Errorf("feeds: %s: %w", id, err)
		}
		out = append(out, Source{ID: id, URL: url})
	}
	*s = out
	return nil
}

type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// ParseDirection accepts asc/ascending and desc/descending in any case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc", "ascending":
		return Ascending, nil
	case "desc", "descending", "":
		return Descending, nil
	default:
		return "", fmt.Errorf("invalid order direction %q", s)
	}
}

type Order struct {
	Field     string    `json:"field" yaml:"field"`
	Direction Direction `json:"direction" yaml:"direction"`
}

type Settings struct {
	Cache   bool   `json:"cache" yaml:"cache"`
	Expires string `json:"expires" yaml:"expires"`
	Root    string `json:"root" yaml:"root"`
}

type Filter struct {
	Field    string   `json:"field" yaml:"field"`
	Includes []string `json:"includes" yaml:"includes"`
	Excludes []string `json:"excludes" yaml:"excludes"`
}

const (
	DefaultLimit     = 20
	DefaultSortField = "date"
	DefaultExpires   = "+1 hour"
)

// Query describes one aggregation request.
type Query struct {
	Conditions Sources        `json:"feeds" yaml:"feeds"`
	Fields     FieldOverrides `json:"fields,omitempty" yaml:"fields"`
	Order      Order          `json:"order" yaml:"order"`
	Limit      int            `json:"limit" yaml:"limit"`
	Explicit   bool           `json:"explicit" yaml:"explicit"`
	Feed       Settings       `json:"feed" yaml:"feed"`
	Filters    []Filter       `json:"filters,omitempty" yaml:"filters"`
}

// WithDefaults fills unset options. An unrecognized direction is an error.
func (q Query) WithDefaults() (Query, error) {
	if q.Order.Field == "" {
		q.Order.Field = DefaultSortField
	}
	dir, err := ParseDirection(string(q.Order.Direction))
	if err != nil {
		return q, err
	}
	q.Order.Direction = dir
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Feed.Expires == "" {
		q.Feed.Expires = DefaultExpires
	}
	return q, nil
}
