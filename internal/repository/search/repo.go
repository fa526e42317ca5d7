package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/plantwise-cloud/pestsearch/internal/db"
	"github.com/plantwise-cloud/pestsearch/internal/domain/document"
	"github.com/plantwise-cloud/pestsearch/internal/domain/hit"
)

// KeyPrefix namespaces every pestsearch key in the store.
const KeyPrefix = "pestsearch:"

// docReturnFields are the presentation fields the ingest batch writes into
// every document hash alongside the per-field vectors.
var docReturnFields = []string{"name", "url", "crossref"}

// store is the consumer interface for search operations (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Repo issues per-field KNN searches against the per-source indexes built by
// the offline ingest batch. Scores are passed through as the store returns
// them: cosine similarity shifted by +1.0 into [0, 2].
type Repo struct {
	store store
}

// New creates a search repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// indexName returns the FT index for a source collection.
func indexName(source document.Source) string {
	return fmt.Sprintf("%s%s:idx", KeyPrefix, source)
}

// nestedIndexName returns the FT index for a nested sub-item collection.
func nestedIndexName(source document.Source, path string) string {
	return fmt.Sprintf("%s%s:%s:idx", KeyPrefix, source, path)
}

// Search runs one KNN query against one embedded field of one source
// collection. Documents lacking the field are simply absent from the index
// for that vector, never an error.
func (r *Repo) Search(
	ctx context.Context, source document.Source, field string, vec []float32, topK int,
) ([]hit.Hit, error) {
	q := &db.KNNQuery{
		IndexName:    indexName(source),
		VectorField:  field + "_vec",
		Vector:       vec,
		K:            topK,
		ReturnFields: append([]string{field}, docReturnFields...),
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search %s.%s: %w", source, field, err)
	}
	if sr == nil || sr.Total == 0 {
		return nil, nil
	}

	prefix := fmt.Sprintf("%s%s:", KeyPrefix, source)
	hits := make([]hit.Hit, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		doc := parseDocument(strings.TrimPrefix(entry.Key, prefix), source, field, entry.Fields)
		hits = append(hits, hit.Hit{Doc: doc, Field: field, Score: entry.Score})
	}
	return hits, nil
}

// SearchNested runs one KNN query against a per-sub-item index (image
// captions, Q&A turns) and aggregates child hits per parent document with
// "max": the best-scoring sub-item's score becomes the parent Hit's score,
// and that sub-item is recorded as SubHit evidence.
func (r *Repo) SearchNested(
	ctx context.Context, source document.Source, path string, vec []float32, topK, innerK int,
) ([]hit.Hit, error) {
	if innerK <= 0 {
		innerK = 1
	}

	q := &db.KNNQuery{
		IndexName:    nestedIndexName(source, path),
		VectorField:  "text_vec",
		Vector:       vec,
		K:            topK * innerK,
		ReturnFields: append([]string{"parent", "text"}, docReturnFields...),
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search nested %s.%s: %w", source, path, err)
	}
	if sr == nil || sr.Total == 0 {
		return nil, nil
	}

	prefix := fmt.Sprintf("%s%s:%s:", KeyPrefix, source, path)

	// Group children by parent, keeping only the best-scoring child.
	best := make(map[string]hit.Hit)
	order := make([]string, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		parent := entry.Fields["parent"]
		if parent == "" {
			continue
		}
		if existing, ok := best[parent]; ok && existing.Score >= entry.Score {
			continue
		} else if !ok {
			order = append(order, parent)
		}

		doc := parseDocument(parent, source, path, entry.Fields)
		childID := strings.TrimPrefix(entry.Key, prefix)
		best[parent] = hit.Hit{
			Doc:   doc,
			Field: path,
			Score: entry.Score,
			Sub: &hit.SubHit{
				Path:  path,
				ID:    childID,
				Score: entry.Score,
			},
		}
	}

	hits := make([]hit.Hit, 0, len(order))
	for _, parent := range order {
		hits = append(hits, best[parent])
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// parseDocument builds a domain document from the flat hash fields the ingest
// batch denormalizes into every indexed entry.
func parseDocument(id string, source document.Source, field string, fields map[string]string) document.Document {
	doc := document.Document{
		ID:       id,
		Source:   source,
		Name:     fields["name"],
		URL:      fields["url"],
		CrossRef: fields["crossref"],
		Fields:   map[string]string{},
	}
	if text, ok := fields[field]; ok && text != "" {
		doc.Fields[field] = text
	} else if text := fields["text"]; text != "" {
		doc.Fields[field] = text
	}
	return doc
}
