// Package segmenter splits a normalised page into heading-scoped,
// token-bounded, overlapping chunks - the units of retrieval.
package segmenter

import (
	"strings"

	"github.com/google/uuid"

	"github.com/custodia-labs/campusrag/internal/core/domain"
)

// Segmenter produces chunks within a target token band. A heading
// boundary always forces a chunk close, so a chunk never spans two
// sections. Consecutive chunks of one section share an overlap seed.
type Segmenter struct {
	minTokens     int
	maxTokens     int
	overlapTokens int
}

// Option configures the segmenter.
type Option func(*Segmenter)

// WithTokenBand sets the target token band.
func WithTokenBand(min, max int) Option {
	return func(s *Segmenter) {
		if min > 0 && max >= min {
			s.minTokens = min
			s.maxTokens = max
		}
	}
}

// WithOverlap sets the overlap seed length in tokens.
func WithOverlap(tokens int) Option {
	return func(s *Segmenter) {
		if tokens >= 0 {
			s.overlapTokens = tokens
		}
	}
}

// New creates a segmenter with the given options.
func New(opts ...Option) *Segmenter {
	defaults := domain.DefaultIngestSettings()
	s := &Segmenter{
		minTokens:     defaults.MinTokens,
		maxTokens:     defaults.MaxTokens,
		overlapTokens: defaults.OverlapTokens,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.overlapTokens >= s.minTokens {
		s.overlapTokens = s.minTokens / 4
	}
	return s
}

// section is a heading-delimited region of the page text.
type section struct {
	span domain.Span
	path []string
}

// unit is a sentence-or-paragraph-sized piece of a section. Unit
// spans tile their section exactly.
type unit struct {
	span   domain.Span
	tokens int
}

// Segment splits the page text into chunks. A page with no headings
// is one implicit top-level section with an empty section path.
func (s *Segmenter) Segment(page *domain.Page) []domain.Chunk {
	if page == nil || page.Text == "" {
		return nil
	}

	var chunks []domain.Chunk
	position := 0
	for _, sec := range sections(page) {
		for _, span := range s.splitSection(page.Text, sec.span) {
			text := page.Text[span.Start:span.End]
			chunks = append(chunks, domain.Chunk{
				ID:          uuid.New().String(),
				PageID:      page.ID,
				Text:        text,
				TokenCount:  len(strings.Fields(text)),
				SectionPath: sec.path,
				Span:        span,
				Position:    position,
			})
			position++
		}
	}
	return chunks
}

// sections derives the heading-delimited regions of the page,
// tracking the heading ancestor stack for section paths.
func sections(page *domain.Page) []section {
	textLen := len(page.Text)
	if len(page.Headings) == 0 {
		return []section{{span: domain.Span{Start: 0, End: textLen}}}
	}

	var secs []section

	// Prologue before the first heading.
	if page.Headings[0].Offset > 0 {
		secs = append(secs, section{span: domain.Span{Start: 0, End: page.Headings[0].Offset}})
	}

	type frame struct {
		level int
		title string
	}
	var stack []frame

	for i, h := range page.Headings {
		for len(stack) > 0 && stack[len(stack)-1].level >= h.Level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, frame{level: h.Level, title: h.Text})

		end := textLen
		if i+1 < len(page.Headings) {
			end = page.Headings[i+1].Offset
		}
		if end <= h.Offset {
			continue
		}

		path := make([]string, len(stack))
		for j, f := range stack {
			path[j] = f.title
		}
		secs = append(secs, section{span: domain.Span{Start: h.Offset, End: end}, path: path})
	}
	return secs
}

// splitSection greedily packs sentence units into chunks within the
// token band, carrying an overlap seed between consecutive chunks.
func (s *Segmenter) splitSection(text string, span domain.Span) []domain.Span {
	units := splitUnits(text, span)
	if len(units) == 0 {
		return nil
	}

	var spans []domain.Span
	chunkStart := span.Start
	tokens := 0

	for i, u := range units {
		// Close before adding when the band is already satisfied and
		// this unit would overflow it.
		if tokens >= s.minTokens && tokens+u.tokens > s.maxTokens {
			end := units[i-1].span.End
			spans = append(spans, domain.Span{Start: chunkStart, End: end})
			chunkStart = s.overlapStart(units[:i], end)
			tokens = countTokens(text, chunkStart, end)
		}

		tokens += u.tokens

		if tokens >= s.maxTokens {
			end := u.span.End
			spans = append(spans, domain.Span{Start: chunkStart, End: end})
			if i+1 < len(units) {
				chunkStart = s.overlapStart(units[:i+1], end)
				tokens = countTokens(text, chunkStart, end)
			} else {
				chunkStart = end
				tokens = 0
			}
		}
	}

	// Final chunk of the section may be shorter than the band.
	if chunkStart < span.End && (len(spans) == 0 || spans[len(spans)-1].End < span.End) {
		spans = append(spans, domain.Span{Start: chunkStart, End: span.End})
	}
	return spans
}

// overlapStart walks whole units backwards from end until the
// overlap seed is covered, landing on a sentence boundary.
func (s *Segmenter) overlapStart(units []unit, end int) int {
	covered := 0
	start := end
	for i := len(units) - 1; i >= 0; i-- {
		if covered >= s.overlapTokens {
			break
		}
		covered += units[i].tokens
		start = units[i].span.Start
	}
	return start
}

func countTokens(text string, start, end int) int {
	return len(strings.Fields(text[start:end]))
}

// sentenceEnd reports whether text[i] terminates a sentence.
func sentenceEnd(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}

// splitUnits splits a section into sentence/paragraph units whose
// spans tile the section exactly. Boundaries fall after terminal
// punctuation followed by whitespace, and at newlines.
func splitUnits(text string, span domain.Span) []unit {
	var units []unit
	start := span.Start
	i := span.Start

	flush := func(end int) {
		if end <= start {
			return
		}
		piece := text[start:end]
		units = append(units, unit{
			span:   domain.Span{Start: start, End: end},
			tokens: len(strings.Fields(piece)),
		})
		start = end
	}

	for i < span.End {
		c := text[i]
		if c == '\n' {
			// Newline belongs to the unit it terminates.
			flush(i + 1)
			i++
			continue
		}
		if sentenceEnd(c) && i+1 < span.End && (text[i+1] == ' ' || text[i+1] == '\n') {
			// Consume the whitespace run into this unit.
			j := i + 1
			for j < span.End && (text[j] == ' ' || text[j] == '\n') {
				j++
			}
			flush(j)
			i = j
			continue
		}
		i++
	}
	flush(span.End)
	return units
}
