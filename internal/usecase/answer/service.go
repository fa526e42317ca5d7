package answer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/plantwise-cloud/pestsearch/internal/domain"
	"github.com/plantwise-cloud/pestsearch/internal/domain/document"
	"github.com/plantwise-cloud/pestsearch/internal/domain/hit"
	"github.com/plantwise-cloud/pestsearch/internal/domain/query"
	"github.com/plantwise-cloud/pestsearch/internal/format"
	"github.com/plantwise-cloud/pestsearch/internal/fuse"
	"github.com/plantwise-cloud/pestsearch/internal/metrics"
	"github.com/plantwise-cloud/pestsearch/internal/normalize"
	"github.com/plantwise-cloud/pestsearch/internal/querybuilder"
	"github.com/plantwise-cloud/pestsearch/internal/retrieve"
)

// Request is one conversational turn submitted by the dialogue layer.
// For multi-turn refinement the caller concatenates the original problem text
// with the new detail and passes every accumulated refinement string back in
// PriorRefinements; the engine itself holds no cross-turn state.
type Request struct {
	ProblemText      string
	DamageText       string
	Groups           []query.Group
	PriorRefinements []string
	Debug            bool

	// Config overrides the deployment fusion config for this call only,
	// typically together with Debug. Nil means deployment defaults.
	Config *fuse.Config
}

// Service orchestrates one turn: normalize and build queries, embed, fan out
// retrieval, fuse, merge canned answers, format.
type Service struct {
	builder *querybuilder.Builder
	embed   domain.BatchEmbedder
	retr    Retriever
	canned  CannedMatcher
	engine  *fuse.Engine
	fmtr    *format.Formatter
	cfg     fuse.Config
	logger  *zap.Logger
}

// New creates an answer service. canned can be nil (fast path disabled).
func New(
	builder *querybuilder.Builder,
	embed domain.BatchEmbedder,
	retr Retriever,
	canned CannedMatcher,
	engine *fuse.Engine,
	fmtr *format.Formatter,
	cfg fuse.Config,
	logger *zap.Logger,
) *Service {
	return &Service{
		builder: builder,
		embed:   embed,
		retr:    retr,
		canned:  canned,
		engine:  engine,
		fmtr:    fmtr,
		cfg:     cfg,
		logger:  logger,
	}
}

// SubmitQuery runs one turn end to end. Malformed queries are rejected before
// any retrieval call; total embedding or retrieval failure is surfaced as a
// hard error so the caller can distinguish "system unavailable" from "no
// relevant documents".
func (s *Service) SubmitQuery(ctx context.Context, req Request) (format.Response, error) {
	cfg := s.cfg
	if req.Config != nil {
		if err := req.Config.Validate(); err != nil {
			return format.Response{}, fmt.Errorf("request config: %w: %w", domain.ErrMalformedQuery, err)
		}
		cfg = *req.Config
	}

	primary, refinements, err := s.builder.Build(req.ProblemText, req.Groups, req.PriorRefinements)
	if err != nil {
		return format.Response{}, fmt.Errorf("build query: %w", err)
	}

	damage := strings.TrimSpace(req.DamageText)

	texts := make([]string, 0, len(refinements)+2)
	texts = append(texts, primary)
	texts = append(texts, refinements...)
	if damage != "" {
		texts = append(texts, damage)
	}

	emb, err := s.embed.BatchEmbed(ctx, texts)
	if err != nil {
		return format.Response{}, fmt.Errorf("embed queries: %w", err)
	}

	rreq := retrieve.Request{
		Primary:     emb.Embeddings[0],
		Refinements: emb.Embeddings[1 : 1+len(refinements)],
	}
	if damage != "" {
		rreq.Damage = emb.Embeddings[len(emb.Embeddings)-1]
	}

	// The canned fast path never blocks normal ranking: a match failure only
	// disables the short-circuit for this turn.
	var cannedMatch *normalize.Match
	var cannedQuery string
	if s.canned != nil {
		m, err := s.canned.Match(ctx, primary)
		if err != nil {
			s.logger.Warn("Canned query match failed", zap.Error(err))
		} else if m != nil {
			cannedMatch = m
			cannedQuery = m.Query
			s.logger.Info("Canned query matched",
				zap.String("canned_query", m.Query),
				zap.Float64("similarity", m.Similarity))
		}
	}

	hits, err := s.retr.Collect(ctx, rreq)
	if err != nil {
		return format.Response{}, fmt.Errorf("retrieve: %w", err)
	}

	fused := s.engine.Fuse(hits, cfg, req.Debug)

	if cannedMatch != nil {
		fused = fuse.MergeCanned(cannedResults(cannedMatch), fused, cfg.HardcodedCutoff)
		if !req.Debug && len(fused) > cfg.TopN {
			fused = fused[:cfg.TopN]
		}
	}

	metrics.FusionResultsCount.Observe(float64(len(fused)))

	var dbg *format.Debug
	if req.Debug {
		dbg = &format.Debug{
			PrimaryQuery: primary,
			Refinements:  refinements,
			DamageQuery:  damage,
			CannedQuery:  cannedQuery,
		}
	}

	return s.fmtr.Format(fused, dbg), nil
}

// cannedResults converts a canned match's prebuilt answers into fused results
// carrying the match similarity as their score.
func cannedResults(m *normalize.Match) []hit.FusedResult {
	out := make([]hit.FusedResult, 0, len(m.Answers))
	for _, a := range m.Answers {
		fields := map[string]string{}
		if a.Body != "" {
			fields["body"] = a.Body
		}
		out = append(out, hit.FusedResult{
			Doc: document.Document{
				Source:   a.Source,
				Name:     a.Title,
				URL:      a.URL,
				CrossRef: a.Key,
				Fields:   fields,
			},
			WeightedScore: m.Similarity,
		})
	}
	return out
}
