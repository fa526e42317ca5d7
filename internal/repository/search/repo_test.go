package search

import (
	"context"
	"errors"
	"testing"

	"github.com/plantwise-cloud/pestsearch/internal/db"
	"github.com/plantwise-cloud/pestsearch/internal/domain/document"
)

// --- Mocks ---

type mockStore struct {
	result  *db.SearchResult
	err     error
	lastQ   *db.KNNQuery
	queries []*db.KNNQuery
}

func (m *mockStore) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	m.lastQ = q
	m.queries = append(m.queries, q)
	return m.result, m.err
}

// --- Tests ---

func TestSearchBuildsQuery(t *testing.T) {
	store := &mockStore{result: &db.SearchResult{}}
	repo := New(store)

	_, err := repo.Search(context.Background(), document.SourceDisease, "description", []float32{1, 2}, 7)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	q := store.lastQ
	if q.IndexName != "pestsearch:disease-item:idx" {
		t.Errorf("index = %q", q.IndexName)
	}
	if q.VectorField != "description_vec" {
		t.Errorf("vector field = %q", q.VectorField)
	}
	if q.K != 7 {
		t.Errorf("k = %d", q.K)
	}
}

func TestSearchParsesEntries(t *testing.T) {
	store := &mockStore{result: &db.SearchResult{
		Total: 1,
		Entries: []db.SearchEntry{{
			Key:   "pestsearch:disease-item:d42",
			Score: 1.73,
			Fields: map[string]string{
				"name":        "Aphid",
				"url":         "https://kb.example.org/d42",
				"crossref":    "xr-aphid",
				"description": "small sap-sucking insects",
			},
		}},
	}}
	repo := New(store)

	hits, err := repo.Search(context.Background(), document.SourceDisease, "description", []float32{1}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits", len(hits))
	}

	h := hits[0]
	if h.Doc.ID != "d42" {
		t.Errorf("id = %q, want key prefix stripped", h.Doc.ID)
	}
	if h.Doc.Name != "Aphid" || h.Doc.CrossRef != "xr-aphid" {
		t.Errorf("doc = %+v", h.Doc)
	}
	if h.Field != "description" || h.Score != 1.73 {
		t.Errorf("hit = field %q score %g", h.Field, h.Score)
	}
	if h.Doc.Fields["description"] != "small sap-sucking insects" {
		t.Errorf("field text missing: %+v", h.Doc.Fields)
	}
}

func TestSearchEmptyResult(t *testing.T) {
	store := &mockStore{result: &db.SearchResult{Total: 0}}
	repo := New(store)

	hits, err := repo.Search(context.Background(), document.SourceReference, "body", []float32{1}, 10)
	if err != nil || hits != nil {
		t.Errorf("empty index must yield nil hits, got %v, %v", hits, err)
	}
}

func TestSearchStoreError(t *testing.T) {
	werr := errors.New("connection refused")
	store := &mockStore{err: werr}
	repo := New(store)

	_, err := repo.Search(context.Background(), document.SourceDisease, "damage", []float32{1}, 10)
	if !errors.Is(err, werr) {
		t.Errorf("store error not wrapped: %v", err)
	}
}

func TestSearchNestedAggregatesByParent(t *testing.T) {
	store := &mockStore{result: &db.SearchResult{
		Total: 4,
		Entries: []db.SearchEntry{
			{Key: "pestsearch:disease-item:media:m1", Score: 1.9, Fields: map[string]string{
				"parent": "d1", "name": "Aphid", "url": "https://kb.example.org/d1", "text": "aphid colony close-up",
			}},
			{Key: "pestsearch:disease-item:media:m2", Score: 1.6, Fields: map[string]string{
				"parent": "d1", "name": "Aphid", "url": "https://kb.example.org/d1", "text": "leaf underside",
			}},
			{Key: "pestsearch:disease-item:media:m3", Score: 1.7, Fields: map[string]string{
				"parent": "d2", "name": "Thrips", "url": "https://kb.example.org/d2", "text": "silvered leaves",
			}},
			{Key: "pestsearch:disease-item:media:m4", Score: 1.4, Fields: map[string]string{
				// Orphan rows are skipped.
				"parent": "", "text": "unlabeled",
			}},
		},
	}}
	repo := New(store)

	hits, err := repo.SearchNested(context.Background(), document.SourceDisease, "media", []float32{1}, 10, 3)
	if err != nil {
		t.Fatalf("SearchNested: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2 parents", len(hits))
	}

	if hits[0].Doc.ID != "d1" || hits[0].Score != 1.9 {
		t.Errorf("best parent = %s score %g, want d1 at max child score", hits[0].Doc.ID, hits[0].Score)
	}
	if sub := hits[0].Sub; sub == nil || sub.ID != "m1" || sub.Path != "media" {
		t.Errorf("sub evidence = %+v", hits[0].Sub)
	}
	if hits[1].Doc.ID != "d2" || hits[1].Score != 1.7 {
		t.Errorf("second parent = %s score %g", hits[1].Doc.ID, hits[1].Score)
	}

	// Child pool is oversampled so topK parents can survive aggregation.
	if store.lastQ.K != 30 {
		t.Errorf("nested k = %d, want topK*innerK", store.lastQ.K)
	}
	if store.lastQ.IndexName != "pestsearch:disease-item:media:idx" {
		t.Errorf("nested index = %q", store.lastQ.IndexName)
	}
}

func TestSearchNestedTruncatesToTopK(t *testing.T) {
	entries := make([]db.SearchEntry, 0, 5)
	for i := 0; i < 5; i++ {
		entries = append(entries, db.SearchEntry{
			Key:   "pestsearch:community-answer:turns:t" + string(rune('0'+i)),
			Score: 1.5 - float64(i)*0.1,
			Fields: map[string]string{
				"parent": "q" + string(rune('0'+i)),
				"text":   "turn",
			},
		})
	}
	store := &mockStore{result: &db.SearchResult{Total: 5, Entries: entries}}
	repo := New(store)

	hits, err := repo.SearchNested(context.Background(), document.SourceCommunity, "turns", []float32{1}, 2, 3)
	if err != nil {
		t.Fatalf("SearchNested: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("got %d hits, want topK=2", len(hits))
	}
}
