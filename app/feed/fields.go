package feed

import (
	"fmt"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"
)

// FieldMap maps canonical record fields to the ordered element names that
// may carry them.
type FieldMap struct {
	order      []string
	candidates map[string][]string
}

var baseFields = []struct {
	name string
	keys []string
}{
	{"title", []string{"title"}},
	{"guid", []string{"guid", "id"}},
	{"date", []string{"date", "pubDate", "published", "updated"}},
	{"link", []string{"link", "origLink"}},
	{"image", []string{"image", "thumbnail"}},
	{"author", []string{"author", "writer", "editor", "user"}},
	{"description", []string{"description", "desc", "summary", "content", "text"}},
}

func DefaultFieldMap() *FieldMap {
	m := &FieldMap{candidates: make(map[string][]string, len(baseFields))}
	for _, f := range baseFields {
		m.order = append(m.order, f.name)
		m.candidates[f.name] = slices.Clone(f.keys)
	}
	return m
}

func (m *FieldMap) clone() *FieldMap {
	c := &FieldMap{
		order:      slices.Clone(m.order),
		candidates: make(map[string][]string, len(m.candidates)),
	}
	for k, v := range m.candidates {
		c.candidates[k] = slices.Clone(v)
	}
	return c
}

// Merge returns a copy with the overrides appended after the existing keys
// of each field. Fields not yet known are added as given.
func (m *FieldMap) Merge(overrides FieldOverrides) *FieldMap {
	c := m.clone()
	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		keys := overrides[name]
		if len(keys) == 0 {
			keys = []string{name}
		}
		for _, key := range keys {
			c.add(name, key)
		}
	}
	return c
}

// WithHint returns a copy with key appended to the field's candidates.
func (m *FieldMap) WithHint(field, key string) *FieldMap {
	if key == "" {
		return m
	}
	c := m.clone()
	c.add(field, key)
	return c
}

func (m *FieldMap) add(field, key string) {
	keys, ok := m.candidates[field]
	if !ok {
		m.order = append(m.order, field)
	}
	if !slices.Contains(keys, key) {
		m.candidates[field] = append(keys, key)
	}
}

func (m *FieldMap) Fields() []string {
	return slices.Clone(m.order)
}

func (m *FieldMap) Candidates(field string) []string {
	return slices.Clone(m.candidates[field])
}

// FieldOverrides holds caller-supplied candidate keys per field. In YAML it
// may be written as a mapping (field: key or field: [keys]) or as a plain
// list of element names that map onto fields of the same name.
type FieldOverrides map[string][]string

func (f *FieldOverrides) UnmarshalYAML(value *yaml.Node) error {
	out := FieldOverrides{}

	switch value.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := value.Decode(&names); err != nil {
			return err
		}
		for _, name := range names {
			out[name] = []string{name}
		}

	case yaml.MappingNode:
		for i := 0; i+1 < len(value.Content); i += 2 {
			name := value.Content[i].Value
			keys, err := decodeKeys(value.Content[i+1])
			if err != nil {
				return fmt.Errorf("field %q: %w", name, err)
			}
			out[name] = keys
		}

	default:
		return fmt.Errorf("fields must be a mapping or a list, got %s", value.ShortTag())
	}

	*f = out
	return nil
}

func decodeKeys(value *yaml.Node) ([]string, error) {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Value == "" {
			return nil, nil
		}
		return []string{value.Value}, nil
	case yaml.SequenceNode:
		var keys []string
		if err := value.Decode(&keys); err != nil {
			return nil, err
		}
		return keys, nil
	default:
		return nil, fmt.Errorf("expected a key or a list of keys")
	}
}
