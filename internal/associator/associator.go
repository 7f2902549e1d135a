// Package associator links images to the chunks whose text span
// overlaps their context window, and provides the near-duplicate
// detection primitives used at the batch barrier.
package associator

import (
	"github.com/custodia-labs/campusrag/internal/core/domain"
)

// fallbackWeight is the attachment weight of the nearest-chunk
// fallback for images whose window overlaps no chunk. Weaker than an
// overlap-derived attachment.
const fallbackWeight = 0.5

// Associator populates chunk/image links for one page.
type Associator struct {
	threshold float64
}

// Option configures the associator.
type Option func(*Associator)

// WithThreshold sets the window-overlap fraction above which an
// image attaches to a chunk.
func WithThreshold(t float64) Option {
	return func(a *Associator) {
		if t > 0 && t < 1 {
			a.threshold = t
		}
	}
}

// New creates an associator with the given options.
func New(opts ...Option) *Associator {
	a := &Associator{threshold: domain.DefaultIngestSettings().OverlapThreshold}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Link attaches every image to the chunk(s) explaining it and marks
// the primary image of person pages. Chunks and images are mutated
// in place. An image is never left unassociated when the page has at
// least one chunk.
func (a *Associator) Link(page *domain.Page, chunks []domain.Chunk, images []domain.ImageRecord) {
	if len(chunks) == 0 {
		return
	}

	for i := range images {
		img := &images[i]
		img.DedupGroup = AssetGroup(img.URL)

		attached := a.attach(chunks, img)
		if !attached {
			nearest := nearestChunk(chunks, img.DOMPosition)
			chunks[nearest].LinkedImages = append(chunks[nearest].LinkedImages,
				domain.ImageLink{ImageID: img.ID, Weight: fallbackWeight})
		}
	}

	// A person page with exactly one retained image is dominated by it.
	if len(images) == 1 && domain.IsPeoplePage(page.URL) {
		images[0].IsPrimary = true
	}
}

// attach applies the overlap rule. The fraction is relative to the
// image's window length, not the chunk's: a short overlap relative
// to a long chunk can still be the image's entire context.
func (a *Associator) attach(chunks []domain.Chunk, img *domain.ImageRecord) bool {
	window := img.ContextSpan
	winLen := window.Len()
	if winLen == 0 {
		return false
	}

	type overlap struct {
		idx  int
		frac float64
	}
	var overlaps []overlap
	total := 0.0
	for i := range chunks {
		ov := window.Overlap(chunks[i].Span)
		if ov == 0 {
			continue
		}
		frac := float64(ov) / float64(winLen)
		overlaps = append(overlaps, overlap{idx: i, frac: frac})
		total += frac
	}
	if len(overlaps) == 0 {
		return false
	}

	// Any chunk covering more than the threshold share of the window
	// gets a full-weight attachment.
	dominant := false
	for _, o := range overlaps {
		if o.frac > a.threshold {
			chunks[o.idx].LinkedImages = append(chunks[o.idx].LinkedImages,
				domain.ImageLink{ImageID: img.ID, Weight: 1.0})
			dominant = true
		}
	}
	if dominant {
		return true
	}

	// Window straddles adjacent chunks with no single dominant one:
	// attach to each with weight proportional to its share. Weights
	// are independent signals and need not sum to 1.
	if total > a.threshold {
		for _, o := range overlaps {
			chunks[o.idx].LinkedImages = append(chunks[o.idx].LinkedImages,
				domain.ImageLink{ImageID: img.ID, Weight: o.frac})
		}
		return true
	}
	return false
}

// nearestChunk returns the index of the chunk closest to the given
// offset, preferring the earlier chunk on ties.
func nearestChunk(chunks []domain.Chunk, offset int) int {
	best := 0
	bestDist := -1
	for i := range chunks {
		d := spanDistance(chunks[i].Span, offset)
		if bestDist < 0 || d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

func spanDistance(span domain.Span, offset int) int {
	if offset >= span.Start && offset < span.End {
		return 0
	}
	if offset < span.Start {
		return span.Start - offset
	}
	return offset - span.End + 1
}
