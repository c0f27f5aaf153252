package feed

import "strings"

// Kind tags the variant held by a Node.
type Kind int

const (
	KindInvalid Kind = iota
	KindScalar
	KindList
	KindAttributed
)

// Reserved child names of an attributed node.
const (
	ValueKey      = "value"
	AttributesKey = "attributes"
)

// Node is the generic decoded feed tree: a scalar, an ordered list, or an
// attributed map of named children. The zero Node is invalid and behaves as
// absent everywhere it is consumed.
type Node struct {
	kind     Kind
	text     string
	items    []Node
	children map[string]Node
}

func Scalar(text string) Node {
	return Node{kind: KindScalar, text: text}
}

func List(items ...Node) Node {
	return Node{kind: KindList, items: items}
}

func Attributed(children map[string]Node) Node {
	if children == nil {
		children = map[string]Node{}
	}
	return Node{kind: KindAttributed, children: children}
}

func (n Node) Kind() Kind {
	return n.kind
}

func (n Node) IsValid() bool {
	return n.kind != KindInvalid
}

// Text returns the scalar text, or "" for other kinds.
func (n Node) Text() string {
	if n.kind != KindScalar {
		return ""
	}
	return n.text
}

// Items returns the list elements, or nil for other kinds.
func (n Node) Items() []Node {
	if n.kind != KindList {
		return nil
	}
	return n.items
}

// Child returns the named child of an attributed node. A list is looked up
// through its first element.
func (n Node) Child(name string) (Node, bool) {
	switch n.kind {
	case KindAttributed:
		child, ok := n.children[name]
		return child, ok && child.IsValid()
	case KindList:
		if len(n.items) == 0 {
			return Node{}, false
		}
		return n.items[0].Child(name)
	default:
		return Node{}, false
	}
}

// Has reports whether the named child exists.
func (n Node) Has(name string) bool {
	_, ok := n.Child(name)
	return ok
}

// Lookup resolves a dotted path such as "channel.item".
func (n Node) Lookup(path string) (Node, bool) {
	path = strings.Trim(path, ". ")
	if path == "" {
		return Node{}, false
	}

	current := n
	for _, part := range strings.Split(path, ".") {
		next, ok := current.Child(part)
		if !ok {
			return Node{}, false
		}
		current = next
	}
	return current, true
}

// Elements returns the node as a sequence: the items of a list, or the node
// itself for any other valid kind.
func (n Node) Elements() []Node {
	switch n.kind {
	case KindInvalid:
		return nil
	case KindList:
		return n.items
	default:
		return []Node{n}
	}
}
