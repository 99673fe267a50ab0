// Package sanitize strips non-content markup from portal pages before they are sent for extraction.
package sanitize

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Elements removed together with their content.
const droppedElements = "script, style, noscript"

// HTML removes script, style and noscript blocks, blanks every href and src
// attribute value (the attributes themselves are kept), and returns the document
// pretty-printed one node per line. Running it on its own output changes nothing.
// Markup that cannot be parsed is returned unchanged.
func HTML(raw string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return raw
	}

	doc.Find(droppedElements).Remove()
	doc.Find("[href]").SetAttr("href", "")
	doc.Find("[src]").SetAttr("src", "")

	var b strings.Builder
	for _, n := range doc.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			render(&b, c, 0)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Elements whose text children are not entity-decoded by the parser.
var rawTextElements = map[atom.Atom]bool{
	atom.Iframe:    true,
	atom.Noembed:   true,
	atom.Noframes:  true,
	atom.Xmp:       true,
	atom.Plaintext: true,
}

func render(b *strings.Builder, n *html.Node, depth int) {
	indent := strings.Repeat(" ", depth)

	switch n.Type {
	case html.DoctypeNode:
		b.WriteString("<!DOCTYPE ")
		b.WriteString(n.Data)
		b.WriteString(">\n")

	case html.CommentNode:
		b.WriteString(indent)
		b.WriteString("<!--")
		b.WriteString(n.Data)
		b.WriteString("-->\n")

	case html.TextNode:
		text := strings.TrimSpace(n.Data)
		if text == "" {
			return
		}
		b.WriteString(indent)
		if n.Parent != nil && rawTextElements[n.Parent.DataAtom] {
			b.WriteString(text)
		} else {
			b.WriteString(html.EscapeString(text))
		}
		b.WriteString("\n")

	case html.ElementNode:
		b.WriteString(indent)
		b.WriteString("<")
		b.WriteString(n.Data)
		for _, a := range n.Attr {
			b.WriteString(" ")
			if a.Namespace != "" {
				b.WriteString(a.Namespace)
				b.WriteString(":")
			}
			b.WriteString(a.Key)
			b.WriteString(`="`)
			b.WriteString(html.EscapeString(a.Val))
			b.WriteString(`"`)
		}
		b.WriteString(">\n")

		if isVoid(n) {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			render(b, c, depth+1)
		}

		b.WriteString(indent)
		b.WriteString("</")
		b.WriteString(n.Data)
		b.WriteString(">\n")
	}
}

func isVoid(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Area, atom.Base, atom.Br, atom.Col, atom.Embed, atom.Hr, atom.Img,
		atom.Input, atom.Keygen, atom.Link, atom.Meta, atom.Param, atom.Source,
		atom.Track, atom.Wbr:
		return true
	}
	return false
}
