package fuse

import (
	"sort"

	"go.uber.org/zap"

	"github.com/plantwise-cloud/pestsearch/internal/domain/document"
	"github.com/plantwise-cloud/pestsearch/internal/domain/hit"
)

// maxEvidence caps the field-level hits kept per result for highlighting.
const maxEvidence = 3

// Engine merges per-field hits into one ranked FusedResult per logical
// document. Fusion is a pure function of (hits, config, debug): identical
// inputs always produce identical outputs. The logger only reports
// data-quality warnings and never influences the result.
type Engine struct {
	logger *zap.Logger
}

// New creates a fusion engine.
func New(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// entry accumulates per-category evidence for one canonical key.
type entry struct {
	doc      document.Document
	scores   map[document.Category]float64
	evidence []hit.Hit
}

// Fuse deduplicates hits by canonical content key, max-merges per-category
// scores, weights them into one scalar, downweights the configured
// lower-trust source, sorts, and filters by cutoff and URL presence.
// Debug skips cutoff, URL and top-N filtering and returns everything.
func (e *Engine) Fuse(
	hits map[document.Category][]hit.Hit, cfg Config, debug bool,
) []hit.FusedResult {
	byKey := make(map[string]*entry)
	var order []string

	// Category iteration follows the fixed document.Categories order and hit
	// lists keep their input order, so first-seen identity is deterministic.
	for _, cat := range document.Categories {
		for _, h := range hits[cat] {
			key := h.Doc.CanonicalKey()
			en, ok := byKey[key]
			if !ok {
				en = &entry{
					doc:    cloneDoc(h.Doc),
					scores: make(map[document.Category]float64, len(document.Categories)),
				}
				byKey[key] = en
				order = append(order, key)
			} else {
				e.mergeDoc(en, h.Doc, key)
			}

			// Max-merge: one strong field match is sufficient evidence;
			// averaging would penalize partial field coverage.
			if s, seen := en.scores[cat]; !seen || h.Score > s {
				en.scores[cat] = h.Score
			}
			en.evidence = append(en.evidence, h)
		}
	}

	topicalOnly := len(hits[document.CategoryName]) == 0 && len(hits[document.CategoryDamage]) == 0

	results := make([]hit.FusedResult, 0, len(order))
	for _, key := range order {
		en := byKey[key]
		results = append(results, hit.FusedResult{
			Doc:            en.doc,
			CategoryScores: en.scores,
			WeightedScore:  e.weight(en, cfg, topicalOnly),
			Evidence:       topEvidence(en.evidence),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].WeightedScore > results[j].WeightedScore
	})

	if debug {
		return results
	}

	filtered := results[:0]
	for _, r := range results {
		if r.Doc.URL == "" {
			continue // not presentable without a resolvable link
		}
		if r.WeightedScore < cfg.ScoreCutoff {
			continue
		}
		filtered = append(filtered, r)
	}
	results = filtered

	if len(results) > cfg.TopN {
		results = results[:cfg.TopN]
	}
	return results
}

// weight combines category scores. When a document has no damage evidence its
// damage weight mass is redistributed, half to name and half to topical; the
// redistribution is per document, not global. In the topical-only execution
// path the pre-weight max category score ranks directly.
func (e *Engine) weight(en *entry, cfg Config, topicalOnly bool) float64 {
	var weighted float64
	if topicalOnly {
		for _, s := range en.scores {
			if s > weighted {
				weighted = s
			}
		}
	} else {
		wName, wTopical, wDamage := cfg.NameWeight, cfg.TopicalWeight, cfg.DamageWeight
		if _, hasDamage := en.scores[document.CategoryDamage]; !hasDamage {
			wName += 0.5 * wDamage
			wTopical += 0.5 * wDamage
			wDamage = 0
		}
		weighted = wName*en.scores[document.CategoryName] +
			wTopical*en.scores[document.CategoryTopical] +
			wDamage*en.scores[document.CategoryDamage]
	}

	if cfg.DownweightSource != "" && en.doc.Source == cfg.DownweightSource && cfg.DownweightFactor > 0 {
		weighted *= cfg.DownweightFactor
	}
	return weighted
}

// mergeDoc reconciles a later index entry mapped to an existing canonical
// key. Conflicting presentation data is an ingest defect: it is logged as a
// data-quality warning and fusion proceeds on the first-seen document.
func (e *Engine) mergeDoc(en *entry, doc document.Document, key string) {
	if en.doc.URL == "" && doc.URL != "" {
		en.doc.URL = doc.URL
	}
	if en.doc.URL != "" && doc.URL != "" && en.doc.URL != doc.URL {
		e.logger.Warn("Conflicting documents share a canonical key",
			zap.String("key", key),
			zap.String("kept_id", en.doc.ID),
			zap.String("dropped_id", doc.ID))
	}
	for f, text := range doc.Fields {
		if _, ok := en.doc.Fields[f]; !ok {
			en.doc.Fields[f] = text
		}
	}
}

// cloneDoc copies the document so fusion never mutates caller-owned hits.
func cloneDoc(doc document.Document) document.Document {
	fields := make(map[string]string, len(doc.Fields))
	for k, v := range doc.Fields {
		fields[k] = v
	}
	doc.Fields = fields
	return doc
}

// topEvidence returns the best field-level hits, descending by score.
func topEvidence(evidence []hit.Hit) []hit.Hit {
	sorted := make([]hit.Hit, len(evidence))
	copy(sorted, evidence)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
	if len(sorted) > maxEvidence {
		sorted = sorted[:maxEvidence]
	}
	return sorted
}

// MergeCanned places the canned answer set first and appends retrieved
// results after it. A retrieved result whose canonical key duplicates a
// canned document is dropped regardless of score; the rest must clear the
// stricter hardcoded cutoff to appear next to hand-curated answers.
func MergeCanned(canned, retrieved []hit.FusedResult, hardcodedCutoff float64) []hit.FusedResult {
	taken := make(map[string]struct{}, len(canned))
	for _, c := range canned {
		taken[c.Doc.CanonicalKey()] = struct{}{}
	}

	out := make([]hit.FusedResult, 0, len(canned)+len(retrieved))
	out = append(out, canned...)
	for _, r := range retrieved {
		if _, dup := taken[r.Doc.CanonicalKey()]; dup {
			continue
		}
		if r.WeightedScore < hardcodedCutoff {
			continue
		}
		out = append(out, r)
	}
	return out
}
