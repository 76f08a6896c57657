package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/driftwoodlabs/raggate/config"
)

var tracer = otel.Tracer("raggate.retrieval")

// Grounding is the pipeline's output for one turn: the newline-joined
// document texts handed to the completion stage, and the deduplicated
// citation URLs surfaced to the client. The two are independent: a source
// is cited whenever its match passed the score filter, even if its text was
// dropped by a failed fetch or by reranking.
type Grounding struct {
	Context string
	Sources []string

	// Documents is the number of matches that passed the score filter.
	Documents int
}

// Pipeline orchestrates the retrieval stages. It is stateless; every
// collaborator call takes the request context, and a failed embed or search
// aborts the turn while per-document fetch and rerank failures degrade it.
type Pipeline struct {
	embedder Embedder
	index    VectorIndex
	docs     DocumentStore
	reranker Reranker // nil disables reranking
	cfg      config.RetrievalConfig
}

// NewPipeline wires the pipeline's collaborators. reranker may be nil, in
// which case fetch order is always kept.
func NewPipeline(embedder Embedder, index VectorIndex, docs DocumentStore,
	reranker Reranker, cfg config.RetrievalConfig) *Pipeline {
	return &Pipeline{
		embedder: embedder,
		index:    index,
		docs:     docs,
		reranker: reranker,
		cfg:      cfg,
	}
}

// Retrieve runs the full pipeline for one utterance. notify, when non-nil,
// is invoked at the embed and search boundaries.
func (p *Pipeline) Retrieve(ctx context.Context, utterance string, notify StageNotifier) (*Grounding, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.Retrieve")
	defer span.End()

	// Embed. A failure here is fatal to the turn.
	emit(notify, StageEmbedding)
	vector, err := p.embedder.Embed(ctx, utterance)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return nil, fmt.Errorf("failed to embed utterance: %w", err)
	}

	// Vector search.
	emit(notify, StageSearching)
	matches, err := p.index.Query(ctx, vector, p.cfg.TopK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "vector search failed")
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	span.SetAttributes(attribute.Int("retrieval.matches", len(matches)))

	// Score filter: precision over recall, below-threshold matches are
	// discarded silently.
	relevant := matches[:0:0]
	for _, m := range matches {
		if m.Score > p.cfg.RelevanceThreshold {
			relevant = append(relevant, m)
		}
	}
	span.SetAttributes(attribute.Int("retrieval.relevant", len(relevant)))

	// Citations come from the score-filtered match set, before fetch and
	// rerank can drop texts.
	sources := dedupeSources(relevant)

	// Fetch. Missing or failing documents are excluded, not retried;
	// partial context is acceptable.
	texts := make([]string, 0, len(relevant))
	for _, m := range relevant {
		text, err := p.docs.Get(ctx, m.DocKey)
		if err != nil {
			slog.Warn("dropping document from grounding context",
				"docKey", m.DocKey, "error", err)
			continue
		}
		texts = append(texts, text)
	}
	span.SetAttributes(attribute.Int("retrieval.fetched", len(texts)))

	texts = p.maybeRerank(ctx, utterance, texts)

	return &Grounding{
		Context:   strings.Join(texts, "\n"),
		Sources:   sources,
		Documents: len(relevant),
	}, nil
}

// maybeRerank reorders and truncates texts through the reranking
// collaborator when there are enough of them to be worth it. Any rerank
// failure keeps fetch order.
func (p *Pipeline) maybeRerank(ctx context.Context, utterance string, texts []string) []string {
	if p.reranker == nil || len(texts) <= p.cfg.RerankThreshold {
		return texts
	}
	ctx, span := tracer.Start(ctx, "Pipeline.maybeRerank")
	defer span.End()

	ranked, err := p.reranker.Rerank(ctx, utterance, texts, p.cfg.RerankTopN)
	if err != nil {
		slog.Warn("reranker unavailable, keeping fetch order", "error", err)
		span.RecordError(err)
		return texts
	}

	reordered := make([]string, 0, len(ranked))
	for _, idx := range ranked {
		if idx < 0 || idx >= len(texts) {
			slog.Warn("reranker returned out-of-range index", "index", idx, "documents", len(texts))
			continue
		}
		reordered = append(reordered, texts[idx])
	}
	if len(reordered) > p.cfg.RerankTopN {
		reordered = reordered[:p.cfg.RerankTopN]
	}
	span.SetAttributes(attribute.Int("retrieval.reranked", len(reordered)))
	return reordered
}

// dedupeSources extracts source URLs in match order, keeping first
// occurrences.
func dedupeSources(matches []Match) []string {
	seen := make(map[string]struct{}, len(matches))
	sources := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.SourceURL == "" {
			continue
		}
		if _, dup := seen[m.SourceURL]; dup {
			continue
		}
		seen[m.SourceURL] = struct{}{}
		sources = append(sources, m.SourceURL)
	}
	return sources
}

func emit(notify StageNotifier, stage Stage) {
	if notify != nil {
		notify(stage)
	}
}
