package answer

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/plantwise-cloud/pestsearch/internal/domain"
	"github.com/plantwise-cloud/pestsearch/internal/domain/document"
	"github.com/plantwise-cloud/pestsearch/internal/domain/hit"
	"github.com/plantwise-cloud/pestsearch/internal/domain/query"
	"github.com/plantwise-cloud/pestsearch/internal/format"
	"github.com/plantwise-cloud/pestsearch/internal/fuse"
	"github.com/plantwise-cloud/pestsearch/internal/normalize"
	"github.com/plantwise-cloud/pestsearch/internal/querybuilder"
	"github.com/plantwise-cloud/pestsearch/internal/retrieve"
)

// --- Mocks ---

type mockEmbedder struct {
	calls     int
	lastTexts []string
	err       error
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.calls++
	m.lastTexts = texts
	if m.err != nil {
		return domain.BatchEmbeddingResult{}, m.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0, 0}
	}
	return domain.BatchEmbeddingResult{Embeddings: out}, nil
}

type mockRetriever struct {
	hits    map[document.Category][]hit.Hit
	err     error
	lastReq retrieve.Request
	called  bool
}

func (m *mockRetriever) Collect(_ context.Context, req retrieve.Request) (map[document.Category][]hit.Hit, error) {
	m.called = true
	m.lastReq = req
	return m.hits, m.err
}

type mockCanned struct {
	match *normalize.Match
	err   error
}

func (m *mockCanned) Match(_ context.Context, _ string) (*normalize.Match, error) {
	return m.match, m.err
}

func newService(retr Retriever, canned CannedMatcher, embed domain.BatchEmbedder) *Service {
	return New(
		querybuilder.New(normalize.NewNormalizer(nil)),
		embed,
		retr,
		canned,
		fuse.New(nil),
		format.New(),
		fuse.DefaultConfig(),
		zap.NewNop(),
	)
}

func diseaseHits(name string, score float64) map[document.Category][]hit.Hit {
	doc := document.Document{
		ID: "d1", Source: document.SourceDisease, Name: name,
		URL:    "https://kb.example.org/d1",
		Fields: map[string]string{"name": name},
	}
	return map[document.Category][]hit.Hit{
		document.CategoryName: {{Doc: doc, Field: "name", Score: score}},
	}
}

// --- Tests ---

func TestSubmitQueryHappyPath(t *testing.T) {
	retr := &mockRetriever{hits: diseaseHits("Aphid", 0.9)}
	embed := &mockEmbedder{}
	svc := newService(retr, nil, embed)

	resp, err := svc.SubmitQuery(context.Background(), Request{ProblemText: "aphids on roses"})
	if err != nil {
		t.Fatalf("SubmitQuery: %v", err)
	}
	if resp.NoResults || len(resp.Results) != 1 {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Results[0].Title != "Aphid" {
		t.Errorf("title = %q", resp.Results[0].Title)
	}
	if embed.calls != 1 {
		t.Errorf("embed calls = %d, want one batch", embed.calls)
	}
	if resp.Debug != nil {
		t.Error("debug echo present without debug request")
	}
}

func TestSubmitQueryEmbedsOneBatch(t *testing.T) {
	retr := &mockRetriever{hits: map[document.Category][]hit.Hit{}}
	embed := &mockEmbedder{}
	svc := newService(retr, nil, embed)

	req := Request{
		ProblemText:      "something eating leaves",
		DamageText:       "holes in leaves",
		Groups:           []query.Group{{{Role: query.RolePlant, Value: "rose"}}},
		PriorRefinements: []string{"tomato"},
	}
	if _, err := svc.SubmitQuery(context.Background(), req); err != nil {
		t.Fatalf("SubmitQuery: %v", err)
	}

	// primary + prior refinement + new refinement + damage, one call.
	if embed.calls != 1 {
		t.Fatalf("embed calls = %d", embed.calls)
	}
	want := []string{"something eating leaves", "tomato", "rose", "holes in leaves"}
	if len(embed.lastTexts) != len(want) {
		t.Fatalf("embedded texts = %v", embed.lastTexts)
	}
	for i := range want {
		if embed.lastTexts[i] != want[i] {
			t.Errorf("text[%d] = %q, want %q", i, embed.lastTexts[i], want[i])
		}
	}

	if len(retr.lastReq.Refinements) != 2 {
		t.Errorf("refinement vectors = %d, want 2", len(retr.lastReq.Refinements))
	}
	if retr.lastReq.Damage == nil {
		t.Error("damage vector missing")
	}
}

func TestSubmitQueryNoDamageVector(t *testing.T) {
	retr := &mockRetriever{hits: map[document.Category][]hit.Hit{}}
	svc := newService(retr, nil, &mockEmbedder{})

	if _, err := svc.SubmitQuery(context.Background(), Request{ProblemText: "aphids"}); err != nil {
		t.Fatalf("SubmitQuery: %v", err)
	}
	if retr.lastReq.Damage != nil {
		t.Error("damage vector built without damage text")
	}
}

func TestSubmitQueryMalformed(t *testing.T) {
	retr := &mockRetriever{}
	svc := newService(retr, nil, &mockEmbedder{})

	_, err := svc.SubmitQuery(context.Background(), Request{ProblemText: "   "})
	if !errors.Is(err, domain.ErrMalformedQuery) {
		t.Errorf("err = %v, want ErrMalformedQuery", err)
	}
	if retr.called {
		t.Error("malformed query must be rejected before retrieval")
	}
}

func TestSubmitQueryEmbedFailure(t *testing.T) {
	embed := &mockEmbedder{err: domain.ErrEmbeddingProviderError}
	svc := newService(&mockRetriever{}, nil, embed)

	_, err := svc.SubmitQuery(context.Background(), Request{ProblemText: "aphids"})
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Errorf("err = %v", err)
	}
}

func TestSubmitQueryRetrievalFailure(t *testing.T) {
	retr := &mockRetriever{err: domain.ErrRetrievalUnavailable}
	svc := newService(retr, nil, &mockEmbedder{})

	_, err := svc.SubmitQuery(context.Background(), Request{ProblemText: "aphids"})
	if !errors.Is(err, domain.ErrRetrievalUnavailable) {
		t.Errorf("err = %v", err)
	}
}

func TestSubmitQueryNoResults(t *testing.T) {
	retr := &mockRetriever{hits: map[document.Category][]hit.Hit{}}
	svc := newService(retr, nil, &mockEmbedder{})

	resp, err := svc.SubmitQuery(context.Background(), Request{ProblemText: "aphids"})
	if err != nil {
		t.Fatalf("empty hits are not an error: %v", err)
	}
	if !resp.NoResults {
		t.Error("no_results must be set")
	}
}

func TestSubmitQueryCannedShortCircuit(t *testing.T) {
	retr := &mockRetriever{hits: diseaseHits("Aphid", 0.9)}
	canned := &mockCanned{match: &normalize.Match{
		Query:      "How do I get rid of aphids?",
		Similarity: 0.93,
		Answers: []normalize.Answer{{
			Key:    "canned:aphids",
			Title:  "Aphid control guide",
			URL:    "https://kb.example.org/faq",
			Source: document.SourceReference,
			Body:   "Spray with insecticidal soap.",
		}},
	}}
	svc := newService(retr, canned, &mockEmbedder{})

	resp, err := svc.SubmitQuery(context.Background(), Request{
		ProblemText: "how do I get rid of aphids",
		Debug:       true,
	})
	if err != nil {
		t.Fatalf("SubmitQuery: %v", err)
	}

	if len(resp.Results) != 2 {
		t.Fatalf("results = %+v", resp.Results)
	}
	if resp.Results[0].Title != "Aphid control guide" {
		t.Errorf("canned answer must rank first, got %q", resp.Results[0].Title)
	}
	if resp.Results[0].Score != 0.93 {
		t.Errorf("canned score = %g, want match similarity", resp.Results[0].Score)
	}
	if resp.Debug == nil || resp.Debug.CannedQuery != "How do I get rid of aphids?" {
		t.Errorf("debug echo = %+v", resp.Debug)
	}
}

func TestSubmitQueryCannedDropsDuplicateRetrieved(t *testing.T) {
	dup := document.Document{
		ID: "d1", Source: document.SourceReference, Name: "Aphid control guide",
		URL: "https://kb.example.org/faq", CrossRef: "canned:aphids",
	}
	retr := &mockRetriever{hits: map[document.Category][]hit.Hit{
		document.CategoryName: {{Doc: dup, Field: "title", Score: 0.99}},
	}}
	canned := &mockCanned{match: &normalize.Match{
		Query:      "How do I get rid of aphids?",
		Similarity: 0.9,
		Answers: []normalize.Answer{{
			Key: "canned:aphids", Title: "Aphid control guide",
			URL: "https://kb.example.org/faq", Source: document.SourceReference,
		}},
	}}
	svc := newService(retr, canned, &mockEmbedder{})

	resp, err := svc.SubmitQuery(context.Background(), Request{ProblemText: "get rid of aphids"})
	if err != nil {
		t.Fatalf("SubmitQuery: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Errorf("retrieved duplicate of a canned answer must be dropped: %+v", resp.Results)
	}
}

func TestSubmitQueryCannedFailureOnlyWarns(t *testing.T) {
	retr := &mockRetriever{hits: diseaseHits("Aphid", 0.9)}
	canned := &mockCanned{err: errors.New("embed probe failed")}
	svc := newService(retr, canned, &mockEmbedder{})

	resp, err := svc.SubmitQuery(context.Background(), Request{ProblemText: "aphids"})
	if err != nil {
		t.Fatalf("canned failure must not fail the turn: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Errorf("normal ranking lost: %+v", resp.Results)
	}
}

func TestSubmitQueryDebugEcho(t *testing.T) {
	retr := &mockRetriever{hits: map[document.Category][]hit.Hit{}}
	svc := newService(retr, nil, &mockEmbedder{})

	resp, err := svc.SubmitQuery(context.Background(), Request{
		ProblemText: "aphids on roses",
		DamageText:  "curled leaves",
		Groups:      []query.Group{{{Role: query.RolePlant, Value: "rose"}}},
		Debug:       true,
	})
	if err != nil {
		t.Fatalf("SubmitQuery: %v", err)
	}
	dbg := resp.Debug
	if dbg == nil {
		t.Fatal("debug echo missing")
	}
	if dbg.PrimaryQuery != "aphids on roses" || dbg.DamageQuery != "curled leaves" {
		t.Errorf("debug = %+v", dbg)
	}
	if len(dbg.Refinements) != 1 || dbg.Refinements[0] != "rose" {
		t.Errorf("refinements = %v", dbg.Refinements)
	}
}

func TestSubmitQueryConfigOverride(t *testing.T) {
	retr := &mockRetriever{hits: diseaseHits("Aphid", 0.4)}
	svc := newService(retr, nil, &mockEmbedder{})

	// Default cutoff drops a 0.4-cosine name-only match after weighting;
	// a permissive override keeps it.
	strict, err := svc.SubmitQuery(context.Background(), Request{ProblemText: "aphids"})
	if err != nil {
		t.Fatalf("SubmitQuery: %v", err)
	}
	if len(strict.Results) != 0 {
		t.Fatalf("baseline results = %+v", strict.Results)
	}

	override := fuse.DefaultConfig()
	override.ScoreCutoff = 0.0
	override.HardcodedCutoff = 0.0
	loose, err := svc.SubmitQuery(context.Background(), Request{ProblemText: "aphids", Config: &override})
	if err != nil {
		t.Fatalf("SubmitQuery with override: %v", err)
	}
	if len(loose.Results) != 1 {
		t.Errorf("override results = %+v", loose.Results)
	}

	bad := fuse.DefaultConfig()
	bad.TopN = 0
	_, err = svc.SubmitQuery(context.Background(), Request{ProblemText: "aphids", Config: &bad})
	if !errors.Is(err, domain.ErrMalformedQuery) {
		t.Errorf("invalid override err = %v, want ErrMalformedQuery", err)
	}
}
