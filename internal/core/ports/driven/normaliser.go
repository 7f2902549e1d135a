package driven

import (
	"context"

	"github.com/custodia-labs/campusrag/internal/core/domain"
)

// Normaliser turns raw page markup into the canonical representation:
// a plain-text stream with a monotonic offset for every character, an
// ordered heading outline, and the content images positioned in that
// stream.
type Normaliser interface {
	// Normalise processes one fetched page. A page with no
	// extractable text returns domain.ErrEmptyContent.
	Normalise(ctx context.Context, raw *domain.RawPage) (*domain.NormalizedPage, error)
}
