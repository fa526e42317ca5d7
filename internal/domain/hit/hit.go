package hit

import "github.com/plantwise-cloud/pestsearch/internal/domain/document"

// SubHit records which nested sub-item produced a nested field match.
type SubHit struct {
	Path  string // nested collection, e.g. "media" or "turns"
	ID    string
	Score float64
}

// Hit is one similarity-search result for one (query vector, field) pair.
// Score is true cosine similarity in [-1, 1].
type Hit struct {
	Doc   document.Document
	Field string
	Score float64
	Sub   *SubHit
}

// FusedResult is one deduplicated, scored entry ready for presentation.
type FusedResult struct {
	Doc            document.Document
	CategoryScores map[document.Category]float64
	WeightedScore  float64
	Evidence       []Hit // best field-level hits, descending by score
}

// Score returns the category score and whether any hit produced it.
func (f FusedResult) Score(c document.Category) (float64, bool) {
	s, ok := f.CategoryScores[c]
	return s, ok
}
