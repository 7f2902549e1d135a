// Package vector provides an in-memory dense index with snapshot
// reads: searches run against an immutable copy of the vector set, so
// a background re-ingest never serves a half-updated chunk set to an
// in-flight query.
package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/custodia-labs/campusrag/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// entry is one normalised vector. Vectors are unit-length at insert
// so search is a plain dot product.
type entry struct {
	chunkID string
	vector  []float32
}

// Index is a copy-on-write cosine similarity index. Writers swap in a
// new snapshot under the lock; readers grab the current snapshot once
// and never block on writers.
type Index struct {
	mu       sync.RWMutex
	snapshot []entry
	byID     map[string]int
}

// New creates an empty index.
func New() *Index {
	return &Index{byID: make(map[string]int)}
}

// Warm bulk-loads vectors, replacing the current snapshot. Used at
// startup to rebuild the index from the page store.
func (idx *Index) Warm(vectors map[string][]float32) {
	snapshot := make([]entry, 0, len(vectors))
	byID := make(map[string]int, len(vectors))
	for chunkID, vec := range vectors {
		if len(vec) == 0 {
			continue
		}
		byID[chunkID] = len(snapshot)
		snapshot = append(snapshot, entry{chunkID: chunkID, vector: normalise(vec)})
	}

	idx.mu.Lock()
	idx.snapshot = snapshot
	idx.byID = byID
	idx.mu.Unlock()
}

// Add inserts or replaces the vector for the given chunk ID.
func (idx *Index) Add(_ context.Context, chunkID string, embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("vector: empty embedding for chunk %s", chunkID)
	}
	normalised := normalise(embedding)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	next := make([]entry, len(idx.snapshot), len(idx.snapshot)+1)
	copy(next, idx.snapshot)

	if pos, ok := idx.byID[chunkID]; ok {
		next[pos] = entry{chunkID: chunkID, vector: normalised}
	} else {
		idx.byID[chunkID] = len(next)
		next = append(next, entry{chunkID: chunkID, vector: normalised})
	}
	idx.snapshot = next
	return nil
}

// Delete removes a vector from the index. Deleting an absent chunk is
// a no-op.
func (idx *Index) Delete(_ context.Context, chunkID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	pos, ok := idx.byID[chunkID]
	if !ok {
		return nil
	}

	next := make([]entry, 0, len(idx.snapshot)-1)
	byID := make(map[string]int, len(idx.snapshot)-1)
	for i, e := range idx.snapshot {
		if i == pos {
			continue
		}
		byID[e.chunkID] = len(next)
		next = append(next, e)
	}
	idx.snapshot = next
	idx.byID = byID
	return nil
}

// Search finds the k nearest neighbours to the query vector by cosine
// similarity.
func (idx *Index) Search(_ context.Context, query []float32, k int) ([]driven.VectorHit, error) {
	if k <= 0 {
		return nil, nil
	}

	idx.mu.RLock()
	snapshot := idx.snapshot
	idx.mu.RUnlock()

	if len(snapshot) == 0 {
		return nil, nil
	}

	q := normalise(query)
	hits := make([]driven.VectorHit, 0, len(snapshot))
	for _, e := range snapshot {
		if len(e.vector) != len(q) {
			continue
		}
		hits = append(hits, driven.VectorHit{ChunkID: e.chunkID, Similarity: dot(q, e.vector)})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Len returns the number of indexed vectors.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.snapshot)
}

// Close releases resources.
func (idx *Index) Close() error {
	idx.mu.Lock()
	idx.snapshot = nil
	idx.byID = make(map[string]int)
	idx.mu.Unlock()
	return nil
}

func normalise(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return append([]float32(nil), vec...)
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
