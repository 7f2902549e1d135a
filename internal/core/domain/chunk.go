package domain

// Chunk is a heading-scoped, token-bounded span of a page's text and
// the unit of retrieval. Created by the segmenter; embeddings and
// entities attached during indexing; immutable afterwards.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// PageID links to the owning Page.
	PageID string

	// Text is the chunk text, including the overlap seed carried in
	// from the previous chunk of the same section.
	Text string

	// TokenCount is the whitespace token count of Text.
	TokenCount int

	// SectionPath is the heading lineage active at chunk start,
	// outermost heading first.
	SectionPath []string

	// Span is the chunk's range in the page's normalised text.
	// Consecutive chunks of one section overlap by the configured
	// overlap length.
	Span Span

	// Position is the ordinal position within the page, used for
	// deterministic tie-breaking.
	Position int

	// LinkedImages are images whose context window overlaps this
	// chunk's span, with attachment weights in [0,1].
	LinkedImages []ImageLink

	// Entities maps entity kind ("person", "org", "gpe") to surface
	// strings extracted from Text.
	Entities map[string][]string

	// Embedding is the dense vector representation.
	Embedding []float32

	// QualityPrior is a static signal derived from linked image
	// quality, used only to break rerank-score ties.
	QualityPrior float64
}

// ImageLink attaches an image to a chunk with a relevance weight.
// Weights are independent signals, not a probability distribution.
type ImageLink struct {
	ImageID string
	Weight  float64
}

// CandidateSource tags which retrieval leg produced a candidate.
type CandidateSource string

const (
	SourceDense  CandidateSource = "dense"
	SourceSparse CandidateSource = "sparse"
	SourceBoth   CandidateSource = "both"
)

// Candidate is a query-time scoring record for one chunk. It is
// never persisted.
type Candidate struct {
	// ChunkID is the candidate chunk.
	ChunkID string

	// RetrievalScore is the fused pre-rerank score.
	RetrievalScore float64

	// RerankScore is the cross-encoder score; nil until computed.
	RerankScore *float64

	// BoostApplied is the entity boost multiplier applied to
	// RetrievalScore (1.0 when no boost matched).
	BoostApplied float64

	// Source records which candidate set(s) produced this chunk.
	Source CandidateSource
}

// RankKey returns the score used for final ordering: the rerank
// score when available, otherwise the fused retrieval score.
func (c Candidate) RankKey() float64 {
	if c.RerankScore != nil {
		return *c.RerankScore
	}
	return c.RetrievalScore
}
