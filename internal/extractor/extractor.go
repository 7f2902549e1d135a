// Package extractor builds ImageRecords from a page's image elements:
// rejection heuristics, bounded context windows, and heading lineage.
// Extraction is a pure function of the page and the window size, so
// repeated runs produce identical records apart from generated IDs.
package extractor

import (
	"net/url"
	"path"
	"regexp"

	"github.com/google/uuid"

	"github.com/custodia-labs/campusrag/internal/core/domain"
)

// iconPattern matches file names of icons, logos and sprites that
// never depict page content.
var iconPattern = regexp.MustCompile(`(?i)(^|[/_.-])(icon|logo|sprite|favicon|spacer|bullet|arrow|badge)s?([/_.-]|$)`)

// Extractor computes the textual context of a page's images.
type Extractor struct {
	window           int
	iconMaxPixels    int
	borderlineMargin int
}

// Option configures the extractor.
type Option func(*Extractor)

// WithWindow sets W, the context window half-width in characters.
func WithWindow(w int) Option {
	return func(e *Extractor) {
		if w > 0 {
			e.window = w
		}
	}
}

// WithIconThreshold sets the rejection pixel threshold and the
// borderline margin above it.
func WithIconThreshold(maxPixels, margin int) Option {
	return func(e *Extractor) {
		if maxPixels > 0 {
			e.iconMaxPixels = maxPixels
		}
		if margin >= 0 {
			e.borderlineMargin = margin
		}
	}
}

// New creates an extractor with the given options.
func New(opts ...Option) *Extractor {
	defaults := domain.DefaultIngestSettings()
	e := &Extractor{
		window:           defaults.ContextWindow,
		iconMaxPixels:    defaults.IconMaxPixels,
		borderlineMargin: defaults.BorderlineMargin,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract produces one ImageRecord per retained image. Rejected
// images (icons, logos, tiny assets) produce no record at all.
// Quality scores are attached later by the scorer.
func (e *Extractor) Extract(page *domain.Page, images []domain.ImageElement) []domain.ImageRecord {
	var records []domain.ImageRecord
	seen := make(map[string]bool, len(images))

	for _, img := range images {
		if seen[img.URL] {
			// URL uniqueness is per page.
			continue
		}
		reject, borderline := e.classify(img)
		if reject {
			continue
		}
		seen[img.URL] = true

		snippet, span := e.contextWindow(page.Text, img.Offset)

		records = append(records, domain.ImageRecord{
			ID:             uuid.New().String(),
			PageID:         page.ID,
			URL:            img.URL,
			Alt:            img.Alt,
			Caption:        img.Caption,
			HeaderLineage:  lineageAt(page.Headings, img.Offset),
			ContextSnippet: snippet,
			ContextSpan:    span,
			DOMPosition:    img.Offset,
			Borderline:     borderline,
		})
	}
	return records
}

// classify applies the icon/logo/sprite heuristic. The second result
// marks images that narrowly escaped the size rejection.
func (e *Extractor) classify(img domain.ImageElement) (reject, borderline bool) {
	if iconPattern.MatchString(fileName(img.URL)) {
		return true, false
	}

	// Physical dimensions, when known.
	if img.Width > 0 && img.Height > 0 {
		if img.Width <= e.iconMaxPixels || img.Height <= e.iconMaxPixels {
			return true, false
		}
		limit := e.iconMaxPixels + e.borderlineMargin
		if img.Width <= limit || img.Height <= limit {
			return false, true
		}
	}
	return false, false
}

// contextWindow returns the [offset-W, offset+W] substring clipped to
// the page and trimmed to whole-word boundaries, plus its final span.
func (e *Extractor) contextWindow(text string, offset int) (string, domain.Span) {
	if text == "" {
		return "", domain.Span{}
	}
	if offset < 0 {
		offset = 0
	}
	if offset > len(text) {
		offset = len(text)
	}

	start := offset - e.window
	if start < 0 {
		start = 0
	}
	end := offset + e.window
	if end > len(text) {
		end = len(text)
	}

	// Trim a leading partial word.
	if start > 0 && !isSpace(text[start-1]) {
		for start < end && !isSpace(text[start]) {
			start++
		}
	}
	// Trim a trailing partial word.
	if end < len(text) && !isSpace(text[end]) {
		for end > start && !isSpace(text[end-1]) {
			end--
		}
	}
	// Drop surrounding whitespace.
	for start < end && isSpace(text[start]) {
		start++
	}
	for end > start && isSpace(text[end-1]) {
		end--
	}

	return text[start:end], domain.Span{Start: start, End: end}
}

// lineageAt returns the heading texts containing the given offset,
// nearest heading first, out to the H1. Empty when no heading
// precedes the offset.
func lineageAt(headings []domain.Heading, offset int) []string {
	type frame struct {
		level int
		text  string
	}
	var stack []frame
	for _, h := range headings {
		if h.Offset > offset {
			break
		}
		for len(stack) > 0 && stack[len(stack)-1].level >= h.Level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, frame{level: h.Level, text: h.Text})
	}
	if len(stack) == 0 {
		return nil
	}
	lineage := make([]string, len(stack))
	for i, f := range stack {
		lineage[len(stack)-1-i] = f.text
	}
	return lineage
}

func fileName(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return path.Base(parsed.Path)
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t'
}
