package domain

import "time"

// Page represents a single crawled page after normalisation.
// It is the canonical representation the ingest pipeline works on:
// a plain-text stream with character offsets, plus the ordered
// heading outline of the original document.
type Page struct {
	// ID is the unique identifier for the page.
	ID string

	// URL is the address the page was fetched from.
	URL string

	// CanonicalURL deduplicates pages: two URLs normalising to the
	// same canonical form are the same page.
	CanonicalURL string

	// Title is the document title.
	Title string

	// Text is the normalised plain-text stream. Every offset stored
	// on headings, chunks and images indexes into this string.
	Text string

	// Headings is the document outline, strictly ordered by Offset.
	Headings []Heading

	// Language is a pass-through language tag (e.g. "en"), empty if
	// the document did not declare one.
	Language string

	// Simhash is the 64-bit signature of Text used for near-duplicate
	// detection across pages.
	Simhash uint64

	// FetchedAt is when the page was fetched.
	FetchedAt time.Time
}

// Heading is a single heading in a page's outline.
type Heading struct {
	// Level is the heading level, 1 for H1 through 6 for H6.
	Level int

	// Text is the heading text.
	Text string

	// Offset is the start offset of the heading text in Page.Text.
	Offset int
}

// Span is a half-open [Start, End) character range in a page's
// normalised text stream.
type Span struct {
	Start int
	End   int
}

// Len returns the number of characters covered by the span.
func (s Span) Len() int {
	if s.End <= s.Start {
		return 0
	}
	return s.End - s.Start
}

// Overlap returns the number of characters shared with other.
func (s Span) Overlap(other Span) int {
	start := s.Start
	if other.Start > start {
		start = other.Start
	}
	end := s.End
	if other.End < end {
		end = other.End
	}
	if end <= start {
		return 0
	}
	return end - start
}

// RawPage is the fetcher's output: unparsed markup plus response
// metadata. The normaliser only processes successful fetches with
// non-empty bytes.
type RawPage struct {
	// URL is the requested address.
	URL string

	// FinalURL is the address after redirects.
	FinalURL string

	// StatusCode is the HTTP status of the response.
	StatusCode int

	// HTML is the raw response body.
	HTML []byte

	// FetchedAt is when the response was received.
	FetchedAt time.Time
}

// ImageElement is an image found in a page's content container,
// positioned in the normalised text stream. It is the extractor's
// input, before rejection heuristics and context extraction run.
type ImageElement struct {
	// URL is the resolved absolute image URL.
	URL string

	// Alt is the alt attribute, possibly empty.
	Alt string

	// Caption is the text of an enclosing figcaption, else empty.
	Caption string

	// Width and Height are the declared pixel dimensions, 0 when
	// the markup does not state them.
	Width  int
	Height int

	// Offset is the position of the image in the normalised text
	// stream, used for context-window and overlap math.
	Offset int
}

// NormalizedPage is the normaliser's output for one fetched page.
type NormalizedPage struct {
	Page   Page
	Images []ImageElement
}
