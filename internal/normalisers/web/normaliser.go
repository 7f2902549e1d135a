package web

import (
	"bytes"
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/custodia-labs/campusrag/internal/core/domain"
	"github.com/custodia-labs/campusrag/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// blockedSelectors are structural elements removed before text
// extraction. They contribute boilerplate, not content.
var blockedSelectors = []string{
	"script", "style", "noscript", "template",
	"nav", "footer", "header", "aside",
	"iframe", "svg", "canvas",
	"form", "button", "input", "select", "textarea",
}

// blockElements force a line break in the text stream.
var blockElements = map[string]bool{
	"p": true, "div": true, "li": true, "ul": true, "ol": true,
	"table": true, "tr": true, "blockquote": true, "pre": true,
	"section": true, "article": true, "figure": true,
	"figcaption": true, "br": true, "hr": true, "dl": true,
	"dt": true, "dd": true, "main": true, "body": true,
}

// Normaliser converts raw page markup into the canonical text stream
// with heading and image offsets. For a fixed input the output is
// byte-identical across runs.
type Normaliser struct{}

// New creates a web page normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// Normalise processes one fetched page. The content container is
// <main> if present, then <article>, then <body> with the structural
// block-list removed. Returns domain.ErrEmptyContent when no text
// survives extraction.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawPage) (*domain.NormalizedPage, error) {
	if raw == nil || len(raw.HTML) == 0 {
		return nil, domain.ErrInvalidInput
	}

	sourceURL := raw.FinalURL
	if sourceURL == "" {
		sourceURL = raw.URL
	}
	canonical, err := CanonicalURL(sourceURL)
	if err != nil {
		return nil, domain.ErrInvalidInput
	}
	base, err := url.Parse(sourceURL)
	if err != nil {
		return nil, domain.ErrInvalidInput
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw.HTML))
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	lang, _ := doc.Find("html").First().Attr("lang")

	// Remove boilerplate before selecting the container so a <body>
	// fallback is already clean.
	for _, sel := range blockedSelectors {
		doc.Find(sel).Remove()
	}

	var container *goquery.Selection
	for _, tag := range []string{"main", "article", "body"} {
		sel := doc.Find(tag)
		if sel.Length() > 0 {
			container = sel.First()
			break
		}
	}
	if container == nil || len(container.Nodes) == 0 {
		return nil, domain.ErrEmptyContent
	}

	sb := &streamBuilder{base: base}
	sb.walk(container.Nodes[0], "")

	if strings.TrimSpace(sb.text.String()) == "" {
		return nil, domain.ErrEmptyContent
	}

	if title == "" && len(sb.headings) > 0 {
		title = sb.headings[0].Text
	}

	return &domain.NormalizedPage{
		Page: domain.Page{
			ID:           uuid.New().String(),
			URL:          sourceURL,
			CanonicalURL: canonical,
			Title:        title,
			Text:         sb.text.String(),
			Headings:     sb.headings,
			Language:     lang,
			FetchedAt:    raw.FetchedAt,
		},
		Images: sb.images,
	}, nil
}

// streamBuilder accumulates the normalised text stream while
// recording heading and image offsets. Separators are written lazily
// so offsets always point at the next character to be emitted.
type streamBuilder struct {
	text     strings.Builder
	pending  byte // 0, ' ' or '\n'
	headings []domain.Heading
	images   []domain.ImageElement
	base     *url.URL
}

func (s *streamBuilder) flush() {
	if s.pending != 0 && s.text.Len() > 0 {
		s.text.WriteByte(s.pending)
	}
	s.pending = 0
}

func (s *streamBuilder) sep(b byte) {
	// Newline wins over space.
	if s.pending != '\n' {
		s.pending = b
	}
}

func (s *streamBuilder) walk(node *html.Node, caption string) {
	switch node.Type {
	case html.TextNode:
		words := strings.Fields(node.Data)
		if len(words) > 0 {
			s.flush()
			s.text.WriteString(strings.Join(words, " "))
			s.pending = ' '
		}
		return

	case html.ElementNode:
		name := node.Data

		if level := headingLevel(name); level > 0 {
			text := collapseText(node)
			if text != "" {
				s.sep('\n')
				s.flush()
				s.headings = append(s.headings, domain.Heading{
					Level:  level,
					Text:   text,
					Offset: s.text.Len(),
				})
				s.text.WriteString(text)
				s.pending = '\n'
			}
			return
		}

		if name == "img" {
			s.addImage(node, caption)
			return
		}

		if name == "figure" {
			caption = collapseText(findChild(node, "figcaption"))
		}

		block := blockElements[name]
		if block {
			s.sep('\n')
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			s.walk(c, caption)
		}
		if block {
			s.sep('\n')
		}
	}
}

func (s *streamBuilder) addImage(node *html.Node, caption string) {
	src := attr(node, "src")
	if src == "" {
		src = attr(node, "data-src")
	}
	resolved := ResolveURL(src, s.base)
	if resolved == "" {
		return
	}

	s.flush()
	s.images = append(s.images, domain.ImageElement{
		URL:     resolved,
		Alt:     strings.TrimSpace(attr(node, "alt")),
		Caption: caption,
		Width:   atoiAttr(node, "width"),
		Height:  atoiAttr(node, "height"),
		Offset:  s.text.Len(),
	})
}

func headingLevel(name string) int {
	if len(name) == 2 && name[0] == 'h' && name[1] >= '1' && name[1] <= '6' {
		return int(name[1] - '0')
	}
	return 0
}

func attr(node *html.Node, key string) string {
	for _, a := range node.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func atoiAttr(node *html.Node, key string) int {
	v, err := strconv.Atoi(strings.TrimSuffix(attr(node, key), "px"))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// collapseText returns the whitespace-collapsed text of a subtree.
func collapseText(node *html.Node) string {
	if node == nil {
		return ""
	}
	var parts []string
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			parts = append(parts, strings.Fields(n.Data)...)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(node)
	return strings.Join(parts, " ")
}

func findChild(node *html.Node, name string) *html.Node {
	var found *html.Node
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == name {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(node)
	return found
}
