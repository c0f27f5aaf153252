package feed

import "strings"

type Shape string

const (
	ShapeUnknown Shape = "unknown"
	ShapeCustom  Shape = "custom"
	ShapeRSS     Shape = "rss"
	ShapeRDF     Shape = "rdf"
	ShapeAtom    Shape = "atom"
	ShapeJSON    Shape = "json"
)

// Resolved describes the item list of a decoded feed and the element names
// its shape uses for dates, descriptions and links.
type Resolved struct {
	Shape   Shape
	Items   []Node
	Title   string
	DateKey string
	DescKey string
	LinkKey string
}

// Recognized reports whether any known shape matched.
func (r Resolved) Recognized() bool {
	return r.Shape != ShapeUnknown
}

// Resolve detects the shape of a decoded feed. A custom root path, when
// present in the tree, wins over shape detection and carries no hints.
func Resolve(root Node, customRoot string) Resolved {
	if customRoot != "" {
		if items, ok := root.Lookup(customRoot); ok {
			return Resolved{Shape: ShapeCustom, Items: items.Elements()}
		}
	}

	if channel, ok := root.Child("channel"); ok {
		if items, ok := channel.Child("item"); ok {
			return Resolved{
				Shape:   ShapeRSS,
				Items:   items.Elements(),
				Title:   childText(channel, "title"),
				DateKey: "pubDate",
				DescKey: "description",
			}
		}
	}

	if items, ok := root.Child("item"); ok {
		title := childText(root, "title")
		if title == "" {
			if channel, ok := root.Child("channel"); ok {
				title = childText(channel, "title")
			}
		}
		return Resolved{
			Shape:   ShapeRDF,
			Items:   items.Elements(),
			Title:   title,
			DateKey: "date",
			DescKey: "description",
		}
	}

	if entries, ok := root.Child("entry"); ok {
		return Resolved{
			Shape:   ShapeAtom,
			Items:   entries.Elements(),
			Title:   childText(root, "title"),
			DateKey: "updated",
			DescKey: "summary",
		}
	}

	if items, ok := root.Child("items"); ok && strings.Contains(strings.ToLower(childText(root, "version")), "jsonfeed") {
		return Resolved{
			Shape:   ShapeJSON,
			Items:   items.Elements(),
			Title:   childText(root, "title"),
			DateKey: "date_published",
			DescKey: "content_html",
			LinkKey: "url",
		}
	}

	return Resolved{Shape: ShapeUnknown}
}

func childText(n Node, name string) string {
	child, ok := n.Child(name)
	if !ok {
		return ""
	}
	value, _ := Extract(child)
	return value
}
