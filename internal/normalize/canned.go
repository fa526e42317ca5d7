package normalize

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/plantwise-cloud/pestsearch/internal/domain"
	"github.com/plantwise-cloud/pestsearch/internal/domain/document"
)

// Answer is one prebuilt result entry attached to a canned query.
type Answer struct {
	Key    string          `yaml:"key"` // canonical content key
	Title  string          `yaml:"title"`
	URL    string          `yaml:"url"`
	Source document.Source `yaml:"source"`
	Body   string          `yaml:"body"`
}

// Match is a confident canned-query hit.
type Match struct {
	Query      string
	Similarity float64
	Answers    []Answer
}

type cannedEntry struct {
	query   string
	vector  []float32
	answers []Answer
}

// CannedIndex matches incoming queries against operator-curated canned
// queries. A confident match short-circuits normal ranking: the prebuilt
// answer set is surfaced first and retrieved duplicates are suppressed.
type CannedIndex struct {
	embed     domain.BatchEmbedder
	threshold float64
	entries   []cannedEntry
}

// cannedFile is the YAML shape of the canned-answer resource.
type cannedFile struct {
	Canned []struct {
		Query   string   `yaml:"query"`
		Answers []Answer `yaml:"answers"`
	} `yaml:"canned"`
}

// BuildCannedIndex loads the canned-answer resource and embeds every canned
// query once, in a single batch. An empty or missing resource yields an index
// that never matches.
func BuildCannedIndex(
	ctx context.Context, path string, embed domain.BatchEmbedder, threshold float64, logger *zap.Logger,
) (*CannedIndex, error) {
	idx := &CannedIndex{embed: embed, threshold: threshold}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		logger.Warn("Canned-answer resource unavailable, fast path disabled",
			zap.String("path", path), zap.Error(err))
		return idx, nil
	}

	var f cannedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse canned answers: %w", err)
	}
	if len(f.Canned) == 0 {
		return idx, nil
	}

	texts := make([]string, len(f.Canned))
	for i, c := range f.Canned {
		texts[i] = StripStopwords(c.Query)
	}

	res, err := embed.BatchEmbed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed canned queries: %w", err)
	}

	idx.entries = make([]cannedEntry, len(f.Canned))
	for i, c := range f.Canned {
		idx.entries[i] = cannedEntry{
			query:   c.Query,
			vector:  res.Embeddings[i],
			answers: c.Answers,
		}
	}

	logger.Info("Canned-answer index built", zap.Int("entries", len(idx.entries)))
	return idx, nil
}

// Size returns the number of canned queries in the index.
func (ci *CannedIndex) Size() int { return len(ci.entries) }

// Match strips stopwords, embeds the remainder and compares it against every
// canned query vector. Returns nil when the best similarity stays below the
// configured threshold.
func (ci *CannedIndex) Match(ctx context.Context, text string) (*Match, error) {
	if len(ci.entries) == 0 {
		return nil, nil
	}

	stripped := StripStopwords(text)
	if stripped == "" {
		return nil, nil
	}

	res, err := ci.embed.BatchEmbed(ctx, []string{stripped})
	if err != nil {
		return nil, fmt.Errorf("embed canned probe: %w", err)
	}
	probe := res.Embeddings[0]

	bestIdx := -1
	bestSim := math.Inf(-1)
	for i := range ci.entries {
		sim := Cosine(probe, ci.entries[i].vector)
		if sim > bestSim {
			bestSim = sim
			bestIdx = i
		}
	}

	if bestIdx < 0 || bestSim < ci.threshold {
		return nil, nil
	}

	return &Match{
		Query:      ci.entries[bestIdx].query,
		Similarity: bestSim,
		Answers:    ci.entries[bestIdx].answers,
	}, nil
}

// stopwords removed before matching canned queries. The list is deliberately
// small: canned queries are short and heavy on question boilerplate.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"do": {}, "does": {}, "did": {}, "how": {}, "what": {}, "which": {},
	"can": {}, "could": {}, "should": {}, "would": {}, "i": {}, "my": {},
	"me": {}, "to": {}, "of": {}, "on": {}, "in": {}, "for": {}, "with": {},
	"and": {}, "or": {}, "it": {}, "this": {}, "that": {}, "there": {},
	"please": {}, "help": {}, "have": {}, "has": {}, "get": {}, "rid": {},
}

// StripStopwords removes stopword tokens, lowercases, and collapses whitespace.
func StripStopwords(text string) string {
	fields := strings.Fields(strings.ToLower(text))
	kept := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'")
		if f == "" {
			continue
		}
		if _, ok := stopwords[f]; ok {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

// Cosine computes cosine similarity between two vectors. Mismatched lengths
// or zero vectors yield -1 (never a confident match).
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return -1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return -1
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
