package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"
	xpp "github.com/mmcdole/goxpp"
	"golang.org/x/net/html/charset"
)

var ErrEmptyDocument = errors.New("document has no root element")

// Decoder turns raw feed bytes into a Node tree. XML documents become an
// attributed tree rooted at the document element's content; JSON documents
// map objects, arrays and scalars onto the same three kinds.
type Decoder struct{}

func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) Decode(data []byte) (Node, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Node{}, ErrEmptyDocument
	}

	if gofeed.DetectFeedType(bytes.NewReader(data)) == gofeed.FeedTypeJSON {
		return d.decodeJSON(data)
	}
	return d.decodeXML(data)
}

func (d *Decoder) decodeJSON(data []byte) (Node, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Node{}, fmt.Errorf("failed to decode JSON feed: %w", err)
	}
	return fromJSON(raw), nil
}

func fromJSON(v any) Node {
	switch t := v.(type) {
	case map[string]any:
		children := make(map[string]Node, len(t))
		for k, child := range t {
			if n := fromJSON(child); n.IsValid() {
				children[k] = n
			}
		}
		return Attributed(children)
	case []any:
		items := make([]Node, 0, len(t))
		for _, child := range t {
			if n := fromJSON(child); n.IsValid() {
				items = append(items, n)
			}
		}
		return List(items...)
	case string:
		return Scalar(t)
	case float64:
		return Scalar(strconv.FormatFloat(t, 'f', -1, 64))
	case bool:
		return Scalar(strconv.FormatBool(t))
	default:
		return Node{}
	}
}

func (d *Decoder) decodeXML(data []byte) (Node, error) {
	p := xpp.NewXMLPullParser(bytes.NewReader(data), false, charset.NewReaderLabel)

	for {
		event, err := p.Next()
		if err != nil {
			return Node{}, fmt.Errorf("failed to read XML document: %w", err)
		}
		if event == xpp.EndDocument {
			return Node{}, ErrEmptyDocument
		}
		if event == xpp.StartTag {
			break
		}
	}

	b := &treeBuilder{parser: p}
	root := b.element()
	if b.err != nil {
		// A truncated document still yields whatever was built.
		slog.Debug("XML document ended early", "error", b.err)
	}
	return root, nil
}

type treeBuilder struct {
	parser *xpp.XMLPullParser
	err    error
}

// element consumes the element the parser is positioned on, up to and
// including its end tag. Children are keyed by local name; where a prefixed
// element (media:content, atom:link) shares a name with an unprefixed
// sibling, the unprefixed ones come first.
func (b *treeBuilder) element() Node {
	attrs := attributeNode(b.parser)
	children := map[string]Node{}
	prefixed := map[string]Node{}
	var text strings.Builder

	for b.err == nil {
		event, err := b.parser.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			b.err = err
			break
		}

		switch event {
		case xpp.StartTag:
			name := b.parser.Name
			if hasPrefix(b.parser) {
				appendChild(prefixed, name, b.element())
			} else {
				appendChild(children, name, b.element())
			}
		case xpp.Text:
			text.WriteString(b.parser.Text)
		case xpp.EndTag:
			return buildElement(attrs, mergeChildren(children, prefixed), text.String())
		case xpp.EndDocument:
			b.err = io.ErrUnexpectedEOF
		}
	}

	return buildElement(attrs, mergeChildren(children, prefixed), text.String())
}

// hasPrefix reports whether the current start tag was written with a
// namespace prefix. An undeclared prefix is left in Space as-is.
func hasPrefix(p *xpp.XMLPullParser) bool {
	if p.Space == "" {
		return false
	}
	prefix, declared := p.Spaces[p.Space]
	return !declared || prefix != ""
}

func mergeChildren(children, prefixed map[string]Node) map[string]Node {
	for name, node := range prefixed {
		existing, ok := children[name]
		if !ok {
			children[name] = node
			continue
		}
		children[name] = List(append(existing.Elements(), node.Elements()...)...)
	}
	return children
}

func attributeNode(p *xpp.XMLPullParser) Node {
	attrs := map[string]Node{}
	for _, attr := range p.Attrs {
		if attr.Name.Space == "xmlns" || attr.Name.Local == "xmlns" {
			continue
		}
		attrs[attr.Name.Local] = Scalar(attr.Value)
	}
	if len(attrs) == 0 {
		return Node{}
	}
	return Attributed(attrs)
}

func appendChild(children map[string]Node, name string, child Node) {
	existing, ok := children[name]
	switch {
	case !ok:
		children[name] = child
	case existing.Kind() == KindList:
		// Elements never decode to lists, so a list here holds repeats.
		children[name] = List(append(existing.Items(), child)...)
	default:
		children[name] = List(existing, child)
	}
}

func buildElement(attrs Node, children map[string]Node, text string) Node {
	trimmed := strings.TrimSpace(text)

	if !attrs.IsValid() && len(children) == 0 {
		return Scalar(text)
	}

	if trimmed != "" {
		children[ValueKey] = Scalar(text)
	}
	if attrs.IsValid() {
		children[AttributesKey] = attrs
	}
	return Attributed(children)
}
