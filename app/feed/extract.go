package feed

import "strings"

// DefaultCandidates is the priority order used to pull a value out of an
// attributed node.
var DefaultCandidates = []string{"value", "href", "src", "name", "label"}

// Extract resolves a scalar string out of n. Lists resolve through their
// first element. Attributed nodes try each candidate child in order and then
// fall back to their "attributes" child.
func Extract(n Node, candidates ...string) (string, bool) {
	if len(candidates) == 0 {
		candidates = DefaultCandidates
	}
	return extract(n, candidates, true)
}

func extract(n Node, candidates []string, descend bool) (string, bool) {
	switch n.Kind() {
	case KindScalar:
		return strings.TrimSpace(n.Text()), true

	case KindList:
		items := n.Items()
		if len(items) == 0 {
			return "", false
		}
		return extract(items[0], candidates, descend)

	case KindAttributed:
		for _, name := range candidates {
			child, ok := n.Child(name)
			if !ok || name == AttributesKey {
				continue
			}
			if value, ok := extract(child, candidates, false); ok && value != "" {
				return value, true
			}
		}
		if !descend {
			return "", false
		}
		if attrs, ok := n.Child(AttributesKey); ok {
			return extract(attrs, candidates, false)
		}
		return "", false
	}

	return "", false
}
