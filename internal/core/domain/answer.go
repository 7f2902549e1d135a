package domain

// QueryOptions configures a query.
type QueryOptions struct {
	// Limit is the maximum number of context chunks (default 6).
	Limit int
}

// SourceRef is a citation for one context chunk.
type SourceRef struct {
	// URL is the source page URL.
	URL string `json:"url"`

	// SectionPath is the heading lineage of the cited chunk.
	SectionPath []string `json:"section_path"`
}

// AnswerImage is a supporting image paired with the context snippet
// that justified its selection.
type AnswerImage struct {
	URL            string `json:"url"`
	ContextSnippet string `json:"context_snippet"`
}

// ContextChunk is one selected chunk in the answer context.
type ContextChunk struct {
	Text   string    `json:"text"`
	Source SourceRef `json:"source"`
	Score  float64   `json:"score"`
}

// AnswerContext is the assembled result of a query: ordered cited
// chunks, selected images, and an optional generated answer.
type AnswerContext struct {
	// Answer is the generated answer text. When no answer service is
	// configured it falls back to the top chunk text.
	Answer string `json:"answer_text"`

	// Chunks are the selected context chunks in rank order.
	Chunks []ContextChunk `json:"chunks"`

	// Sources are the citations in the same order as Chunks.
	Sources []SourceRef `json:"sources"`

	// Images are the selected supporting images.
	Images []AnswerImage `json:"images"`
}

// IngestReport summarises one ingest batch. Per-page failures never
// abort a batch, so the report carries counts rather than errors.
type IngestReport struct {
	PagesIngested      int
	PagesEmpty         int
	PagesFailed        int
	DuplicatesExcluded int
	Chunks             int
	Images             int
}
