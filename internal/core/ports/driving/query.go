package driving

import (
	"context"

	"github.com/custodia-labs/campusrag/internal/core/domain"
)

// QueryService answers free-text questions from the index: hybrid
// candidate generation, entity boosting, reranking and context
// assembly with supporting images.
type QueryService interface {
	// Query returns the assembled answer context, or
	// domain.ErrInsufficientContext when no candidate clears the
	// confidence threshold.
	Query(ctx context.Context, query string, opts domain.QueryOptions) (*domain.AnswerContext, error)
}
