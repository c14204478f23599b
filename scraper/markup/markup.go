// Package markup abstracts the element queries the extractors need so that
// any HTML parser can back them. The default implementation uses goquery.
package markup

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Node is a located element (or a whole document).
type Node interface {
	// Locate returns the first descendant matching loc.
	Locate(loc Locator) (Node, bool)
	// LocateAll returns every descendant matching loc in document order.
	LocateAll(loc Locator) []Node
	// Text returns the combined text content of the node.
	Text() string
	// Attr returns the value of the named attribute.
	Attr(name string) (string, bool)
}

// Locator identifies elements by kind plus a class, id or attribute predicate.
type Locator struct {
	Kind string
	// Class holds whitespace-separated class names; all must be present.
	Class string
	ID    string
	Attr  string
	Value string
	// Contains matches Attr values containing Value instead of equal to it.
	Contains bool
}

// Selector renders the locator as a CSS selector.
func (l Locator) Selector() string {
	var b strings.Builder
	b.WriteString(l.Kind)
	if l.ID != "" {
		b.WriteString("#" + l.ID)
	}
	for _, c := range strings.Fields(l.Class) {
		b.WriteString("." + c)
	}
	if l.Attr != "" {
		switch {
		case l.Value == "":
			fmt.Fprintf(&b, "[%s]", l.Attr)
		case l.Contains:
			fmt.Fprintf(&b, "[%s*=%q]", l.Attr, l.Value)
		default:
			fmt.Fprintf(&b, "[%s=%q]", l.Attr, l.Value)
		}
	}
	if b.Len() == 0 {
		return "*"
	}
	return b.String()
}

type selectionNode struct {
	sel *goquery.Selection
}

// Parse reads an HTML document.
func Parse(r io.Reader) (Node, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return selectionNode{sel: doc.Selection}, nil
}

// ParseString reads an HTML document from a string.
func ParseString(html string) (Node, error) {
	return Parse(strings.NewReader(html))
}

func (n selectionNode) Locate(loc Locator) (Node, bool) {
	found := n.sel.Find(loc.Selector()).First()
	if found.Length() == 0 {
		return nil, false
	}
	return selectionNode{sel: found}, true
}

func (n selectionNode) LocateAll(loc Locator) []Node {
	found := n.sel.Find(loc.Selector())
	nodes := make([]Node, 0, found.Length())
	found.Each(func(_ int, s *goquery.Selection) {
		nodes = append(nodes, selectionNode{sel: s})
	})
	return nodes
}

func (n selectionNode) Text() string {
	return n.sel.Text()
}

func (n selectionNode) Attr(name string) (string, bool) {
	return n.sel.Attr(name)
}

// Text locates loc under parent and returns its trimmed text with every
// character in strip removed. A nil parent or a missing element yields ("", false).
func Text(parent Node, loc Locator, strip string) (string, bool) {
	if parent == nil {
		return "", false
	}
	el, ok := parent.Locate(loc)
	if !ok {
		return "", false
	}
	txt := strings.TrimSpace(el.Text())
	for _, ch := range strip {
		txt = strings.ReplaceAll(txt, string(ch), "")
	}
	return txt, true
}

// OptionalText is Text returning nil when the element is absent.
func OptionalText(parent Node, loc Locator, strip string) *string {
	txt, ok := Text(parent, loc, strip)
	if !ok {
		return nil
	}
	return &txt
}

// Locate is parent.Locate that tolerates a nil parent.
func Locate(parent Node, loc Locator) (Node, bool) {
	if parent == nil {
		return nil, false
	}
	return parent.Locate(loc)
}

// LocateAll is parent.LocateAll that tolerates a nil parent.
func LocateAll(parent Node, loc Locator) []Node {
	if parent == nil {
		return nil
	}
	return parent.LocateAll(loc)
}
