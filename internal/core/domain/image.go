package domain

// ImageRecord is a retained image with the textual context that
// explains it. Created during ingest of one page, immutable after
// scoring, deleted when its page is deleted.
type ImageRecord struct {
	// ID is the unique identifier for the image record.
	ID string

	// PageID links to the owning Page.
	PageID string

	// URL is the resolved absolute image URL. Unique per page; the
	// same asset may recur across pages with its own record each.
	URL string

	// Alt is the alt attribute text.
	Alt string

	// Caption is the figcaption text, empty when the image is not
	// wrapped in a caption element.
	Caption string

	// HeaderLineage is the ancestor heading texts containing the
	// image offset, nearest heading first, out to the H1.
	HeaderLineage []string

	// ContextSnippet is the bounded text window around the image
	// position, trimmed to whole-word boundaries.
	ContextSnippet string

	// ContextSpan is the span of ContextSnippet in the page text,
	// after clipping to page boundaries. Overlap math against chunk
	// spans uses this span.
	ContextSpan Span

	// DOMPosition is the image offset in the normalised text stream.
	DOMPosition int

	// QualityScore is the static quality prior in [0,1], computed
	// once at ingest and never updated.
	QualityScore float64

	// Borderline records that the size/logo rejection heuristic
	// narrowly missed rejecting this image. The scorer penalises it.
	Borderline bool

	// IsPrimary marks the single image that dominates a person or
	// entity page.
	IsPrimary bool

	// DedupGroup is shared by records pointing at the identical
	// asset, used for diversity filtering at answer assembly.
	DedupGroup string
}
