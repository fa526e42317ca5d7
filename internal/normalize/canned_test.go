package normalize

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/plantwise-cloud/pestsearch/internal/domain"
)

// --- Mocks ---

type mockEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.BatchEmbeddingResult{}, m.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := m.vectors[t]
		if !ok {
			v = []float32{0, 0, 1} // far from every canned vector
		}
		out[i] = v
	}
	return domain.BatchEmbeddingResult{Embeddings: out}, nil
}

func writeCannedFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "canned.yaml")
	data := `canned:
  - query: "How do I get rid of aphids?"
    answers:
      - key: "canned:aphids"
        title: "Aphid control guide"
        url: "https://kb.example.org/aphids"
        source: "reference-note"
        body: "Spray with insecticidal soap."
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// --- Tests ---

func TestCannedIndexMatch(t *testing.T) {
	embed := &mockEmbedder{vectors: map[string][]float32{
		// Canned query after stopword stripping.
		"aphids": {1, 0, 0},
		// An incoming phrasing close to it and one far from it.
		"kill aphids plants": {0.95, 0.3122, 0},
		"prune tomato":       {0, 1, 0},
	}}

	idx, err := BuildCannedIndex(context.Background(), writeCannedFile(t), embed, 0.85, zap.NewNop())
	if err != nil {
		t.Fatalf("BuildCannedIndex: %v", err)
	}
	if idx.Size() != 1 {
		t.Fatalf("index size = %d, want 1", idx.Size())
	}
	if embed.calls != 1 {
		t.Errorf("canned queries must embed in one startup batch, got %d calls", embed.calls)
	}

	m, err := idx.Match(context.Background(), "how can I kill the aphids on my plants")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if m == nil {
		t.Fatal("want a confident match")
	}
	if m.Similarity < 0.85 {
		t.Errorf("similarity = %g, below threshold", m.Similarity)
	}
	if len(m.Answers) != 1 || m.Answers[0].Key != "canned:aphids" {
		t.Errorf("answers = %+v", m.Answers)
	}

	far, err := idx.Match(context.Background(), "should I prune my tomato")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if far != nil {
		t.Errorf("dissimilar query matched: %+v", far)
	}
}

func TestCannedIndexMissingResource(t *testing.T) {
	embed := &mockEmbedder{}
	idx, err := BuildCannedIndex(context.Background(),
		filepath.Join(t.TempDir(), "nope.yaml"), embed, 0.85, zap.NewNop())
	if err != nil {
		t.Fatalf("missing resource must not fail startup: %v", err)
	}
	if idx.Size() != 0 {
		t.Errorf("size = %d, want 0", idx.Size())
	}

	m, err := idx.Match(context.Background(), "anything")
	if err != nil || m != nil {
		t.Errorf("empty index must never match, got %+v, %v", m, err)
	}
	if embed.calls != 0 {
		t.Error("empty index must not embed probes")
	}
}

func TestCannedIndexEmbedFailure(t *testing.T) {
	embed := &mockEmbedder{err: errors.New("provider down")}
	if _, err := BuildCannedIndex(context.Background(), writeCannedFile(t), embed, 0.85, zap.NewNop()); err == nil {
		t.Error("startup embed failure must surface")
	}
}

func TestCannedIndexStopwordOnlyProbe(t *testing.T) {
	embed := &mockEmbedder{vectors: map[string][]float32{"aphids": {1, 0, 0}}}
	idx, err := BuildCannedIndex(context.Background(), writeCannedFile(t), embed, 0.85, zap.NewNop())
	if err != nil {
		t.Fatalf("BuildCannedIndex: %v", err)
	}

	m, err := idx.Match(context.Background(), "how do I")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if m != nil {
		t.Errorf("stopword-only probe matched: %+v", m)
	}
}
