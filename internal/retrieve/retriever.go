package retrieve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/plantwise-cloud/pestsearch/internal/domain"
	"github.com/plantwise-cloud/pestsearch/internal/domain/document"
	"github.com/plantwise-cloud/pestsearch/internal/domain/hit"
	"github.com/plantwise-cloud/pestsearch/internal/metrics"
)

// maxConcurrentSearches bounds the per-turn fan-out width.
const maxConcurrentSearches = 8

// Store is the consumer interface over the search repository.
type Store interface {
	Search(ctx context.Context, source document.Source, field string, vec []float32, topK int) ([]hit.Hit, error)
	SearchNested(ctx context.Context, source document.Source, path string, vec []float32, topK, innerK int) ([]hit.Hit, error)
}

// Retriever fans similarity searches out across every relevant
// (source, field, vector) pair and joins them into per-category hit lists.
// Store scores arrive shifted by +1.0; the retriever un-shifts them so all
// downstream components operate on true cosine similarity.
type Retriever struct {
	store  Store
	logger *zap.Logger
	topK   int
	innerK int
}

// New creates a retriever.
func New(store Store, logger *zap.Logger, topK, innerK int) *Retriever {
	if topK <= 0 {
		topK = 10
	}
	if innerK <= 0 {
		innerK = 3
	}
	return &Retriever{store: store, logger: logger, topK: topK, innerK: innerK}
}

// Request carries the query vectors for one conversational turn.
type Request struct {
	Primary     []float32
	Refinements [][]float32 // entity-name vectors built from structured refinements
	Damage      []float32   // nil when the turn supplied no damage detail
}

// task is one planned similarity search.
type task struct {
	category document.Category
	source   document.Source
	field    string
	nested   bool
	vec      []float32
	primary  bool // uses the primary query vector
}

// Collect runs the full search plan concurrently and joins before fusion.
// A field whose search fails transiently contributes an empty hit list; only
// when every primary-vector search fails is a hard error returned. Hit order
// within each category follows the deterministic plan order, so fusion ties
// resolve identically across runs.
func (r *Retriever) Collect(ctx context.Context, req Request) (map[document.Category][]hit.Hit, error) {
	if len(req.Primary) == 0 {
		return nil, fmt.Errorf("primary vector is required: %w", domain.ErrMalformedQuery)
	}

	tasks := r.plan(req)
	results := make([][]hit.Hit, len(tasks))
	failed := make([]bool, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSearches)

	for i, t := range tasks {
		g.Go(func() error {
			start := time.Now()
			hits, err := r.run(gctx, t)
			metrics.RetrievalFieldDuration.
				WithLabelValues(string(t.source), string(t.category)).
				Observe(time.Since(start).Seconds())

			if err != nil {
				// Deadline expiry is a hard failure for the whole turn.
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed[i] = true
				metrics.RetrievalFieldFailuresTotal.
					WithLabelValues(string(t.source), string(t.category)).Inc()
				r.logger.Warn("Field search degraded to empty hits",
					zap.String("source", string(t.source)),
					zap.String("field", t.field),
					zap.String("category", string(t.category)),
					zap.Error(err))
				return nil
			}

			results[i] = unshift(hits)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("retrieval interrupted: %w", err)
	}

	var primaryTotal, primaryFailed int
	for i, t := range tasks {
		if t.primary {
			primaryTotal++
			if failed[i] {
				primaryFailed++
			}
		}
	}
	if primaryTotal > 0 && primaryFailed == primaryTotal {
		return nil, fmt.Errorf("all primary field searches failed: %w", domain.ErrRetrievalUnavailable)
	}

	out := make(map[document.Category][]hit.Hit)
	for i, t := range tasks {
		if len(results[i]) > 0 {
			out[t.category] = append(out[t.category], results[i]...)
		}
	}
	return out, nil
}

// plan enumerates every (source, field, vector) search for the request:
// topical fields (plus nested sub-item collections) against the primary
// vector, name fields against the primary and each refinement vector, and
// damage fields against the damage vector only, when present.
func (r *Retriever) plan(req Request) []task {
	var tasks []task

	for _, source := range document.Sources {
		for _, field := range document.FieldsFor(source, document.CategoryTopical) {
			tasks = append(tasks, task{
				category: document.CategoryTopical, source: source,
				field: field, vec: req.Primary, primary: true,
			})
		}
		for _, path := range document.NestedPaths(source) {
			tasks = append(tasks, task{
				category: document.CategoryTopical, source: source,
				field: path, nested: true, vec: req.Primary, primary: true,
			})
		}

		for _, field := range document.FieldsFor(source, document.CategoryName) {
			tasks = append(tasks, task{
				category: document.CategoryName, source: source,
				field: field, vec: req.Primary, primary: true,
			})
			for _, ref := range req.Refinements {
				tasks = append(tasks, task{
					category: document.CategoryName, source: source,
					field: field, vec: ref,
				})
			}
		}

		if len(req.Damage) > 0 {
			for _, field := range document.FieldsFor(source, document.CategoryDamage) {
				tasks = append(tasks, task{
					category: document.CategoryDamage, source: source,
					field: field, vec: req.Damage,
				})
			}
		}
	}

	return tasks
}

func (r *Retriever) run(ctx context.Context, t task) ([]hit.Hit, error) {
	if t.nested {
		return r.store.SearchNested(ctx, t.source, t.field, t.vec, r.topK, r.innerK)
	}
	return r.store.Search(ctx, t.source, t.field, t.vec, r.topK)
}

// unshift converts store scores from shifted [0, 2] back to cosine [-1, 1].
func unshift(hits []hit.Hit) []hit.Hit {
	for i := range hits {
		hits[i].Score -= 1.0
		if hits[i].Sub != nil {
			sub := *hits[i].Sub
			sub.Score -= 1.0
			hits[i].Sub = &sub
		}
	}
	return hits
}

// IsUnavailable reports whether err represents total retrieval failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, domain.ErrRetrievalUnavailable)
}
