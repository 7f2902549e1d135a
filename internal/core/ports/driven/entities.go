package driven

import "context"

// EntityService extracts named entities from text. Used for both
// chunk indexing and query understanding.
type EntityService interface {
	// Extract returns a mapping from entity kind ("person", "org",
	// "gpe") to the set of surface strings found in text.
	Extract(ctx context.Context, text string) (map[string][]string, error)

	// Close releases resources.
	Close() error
}
