package querybuilder

import (
	"sort"
	"strings"

	"github.com/plantwise-cloud/pestsearch/internal/domain"
	"github.com/plantwise-cloud/pestsearch/internal/domain/query"
	"github.com/plantwise-cloud/pestsearch/internal/normalize"
)

// Builder assembles the texts to embed from free-form problem text and the
// structured slot terms extracted upstream.
type Builder struct {
	norm *normalize.Normalizer
}

// New creates a query builder.
func New(norm *normalize.Normalizer) *Builder {
	return &Builder{norm: norm}
}

// Build normalizes the problem text and derives one refinement string per
// term group. Refinements from prior turns always come first and are never
// replaced: refinement count is monotonically non-decreasing across turns of
// the same session.
func (b *Builder) Build(
	problemText string, groups []query.Group, prior []string,
) (primary string, refinements []string, err error) {
	primary = b.norm.Normalize(problemText)
	if strings.TrimSpace(primary) == "" {
		return "", nil, domain.ErrMalformedQuery
	}

	refinements = append(refinements, prior...)
	for _, g := range groups {
		if r := b.buildRefinement(g); r != "" {
			refinements = append(refinements, r)
		}
	}
	return primary, refinements, nil
}

// buildRefinement dedupes a group's terms, orders them by fixed role order
// then entity-type rank, and concatenates the values into one string.
func (b *Builder) buildRefinement(g query.Group) string {
	terms := dedupeTerms(g)

	sort.SliceStable(terms, func(i, j int) bool {
		if terms[i].Role.Rank() != terms[j].Role.Rank() {
			return terms[i].Role.Rank() < terms[j].Role.Rank()
		}
		return terms[i].EntityType < terms[j].EntityType
	})

	values := make([]string, 0, len(terms))
	for _, t := range terms {
		if v := strings.TrimSpace(t.Value); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return ""
	}
	return b.norm.Normalize(strings.Join(values, " "))
}

// dedupeTerms drops exact duplicate tuples (role, entity type, lowercased value).
func dedupeTerms(g query.Group) []query.Term {
	type key struct {
		role       query.Role
		entityType int
		value      string
	}
	seen := make(map[key]struct{}, len(g))
	out := make([]query.Term, 0, len(g))
	for _, t := range g {
		k := key{t.Role, t.EntityType, strings.ToLower(t.Value)}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, t)
	}
	return out
}
