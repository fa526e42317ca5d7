package answer

import (
	"context"

	"github.com/plantwise-cloud/pestsearch/internal/domain/document"
	"github.com/plantwise-cloud/pestsearch/internal/domain/hit"
	"github.com/plantwise-cloud/pestsearch/internal/normalize"
	"github.com/plantwise-cloud/pestsearch/internal/retrieve"
)

// Retriever fans per-field similarity searches out and joins them into
// per-category hit lists.
type Retriever interface {
	Collect(ctx context.Context, req retrieve.Request) (map[document.Category][]hit.Hit, error)
}

// CannedMatcher matches a query against operator-curated canned queries.
type CannedMatcher interface {
	Match(ctx context.Context, text string) (*normalize.Match, error)
}
