package domain

// IngestSettings holds the tunables of the indexing pipeline. All
// magnitudes the design leaves open (window size, token band, bonus
// values) live here rather than being baked into logic.
type IngestSettings struct {
	// ContextWindow is W: the half-width in characters of an image's
	// context window [offset-W, offset+W].
	ContextWindow int

	// MinTokens and MaxTokens bound the chunk token band. The final
	// chunk of a section may fall below MinTokens.
	MinTokens int
	MaxTokens int

	// OverlapTokens is the trailing text carried forward as the seed
	// of the next chunk within a section.
	OverlapTokens int

	// IconMaxPixels rejects images whose declared width or height is
	// at or below this threshold.
	IconMaxPixels int

	// BorderlineMargin widens IconMaxPixels for the borderline-size
	// penalty: images within the margin above the threshold escape
	// rejection but are penalised by the scorer.
	BorderlineMargin int

	// OverlapThreshold is the context-window overlap fraction above
	// which an image attaches to a chunk.
	OverlapThreshold float64

	// SimhashHammingMax is the maximum Hamming distance between two
	// page text signatures still considered near-duplicates.
	SimhashHammingMax int

	// AltBonus, CaptionBonus, PeoplePathBonus and BorderlinePenalty
	// are the static quality score adjustments.
	AltBonus          float64
	CaptionBonus      float64
	PeoplePathBonus   float64
	BorderlinePenalty float64

	// Workers is the page-parallelism of the ingest pipeline.
	Workers int
}

// RetrievalSettings holds the tunables of query-time retrieval.
type RetrievalSettings struct {
	// DenseTopK and SparseTopK size the two candidate sets.
	DenseTopK  int
	SparseTopK int

	// RerankCandidates caps how many boosted candidates go to the
	// cross-encoder.
	RerankCandidates int

	// RerankBatchSize is the batch size for cross-encoder calls.
	RerankBatchSize int

	// RerankThreshold is the minimum rerank score a chunk must clear
	// before the assembler will use it.
	RerankThreshold float64

	// EntityBoost multiplies the retrieval score of candidates whose
	// entities match a query entity.
	EntityBoost float64

	// ImageEntityBoost is the additive bonus for images whose alt,
	// caption or context snippet matches a query entity.
	ImageEntityBoost float64

	// PrimaryImageBonus is the additive bonus for primary images.
	PrimaryImageBonus float64

	// MaxImagesPerChunk caps image selection per context chunk.
	MaxImagesPerChunk int

	// DefaultLimit is the number of context chunks returned when the
	// caller does not specify one.
	DefaultLimit int
}

// DefaultIngestSettings returns the ingest tunables' defaults.
func DefaultIngestSettings() IngestSettings {
	return IngestSettings{
		ContextWindow:     512,
		MinTokens:         400,
		MaxTokens:         800,
		OverlapTokens:     120,
		IconMaxPixels:     64,
		BorderlineMargin:  32,
		OverlapThreshold:  0.5,
		SimhashHammingMax: 3,
		AltBonus:          0.15,
		CaptionBonus:      0.1,
		PeoplePathBonus:   0.15,
		BorderlinePenalty: 0.1,
		Workers:           4,
	}
}

// DefaultRetrievalSettings returns the retrieval tunables' defaults.
func DefaultRetrievalSettings() RetrievalSettings {
	return RetrievalSettings{
		DenseTopK:         50,
		SparseTopK:        200,
		RerankCandidates:  100,
		RerankBatchSize:   16,
		RerankThreshold:   0.25,
		EntityBoost:       1.25,
		ImageEntityBoost:  0.2,
		PrimaryImageBonus: 0.1,
		MaxImagesPerChunk: 3,
		DefaultLimit:      6,
	}
}
