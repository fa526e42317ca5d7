package db

// KNNQuery is the input for a vector similarity search against one
// embedded field of one index.
type KNNQuery struct {
	IndexName    string
	VectorField  string // e.g. "damage_vec"
	Vector       []float32
	K            int
	ReturnFields []string
	Filter       string // raw FT.SEARCH pre-filter expression, optional
}

// SearchResult is the output of a search operation. Entry scores are cosine
// similarity shifted by +1.0 into [0, 2], keeping them non-negative for
// scoring-function compatibility.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
