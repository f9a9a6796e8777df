package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/snapknow/internal/metrics"
	"github.com/raphaelgruber/snapknow/internal/models"
	"github.com/raphaelgruber/snapknow/internal/retry"
)

// QueryOptions tunes one retrieval request. Nil fields fall back to the
// configured defaults.
type QueryOptions struct {
	Threshold *float64
	TopK      *int
	Filter    models.ListFilter
}

// Retrieval embeds queries, searches the vector index, and synthesizes
// answers over the hits.
type Retrieval struct {
	store    Store
	embedder Embedder
	model    AnswerModel
	policy   retry.Policy
	metrics  *metrics.Collector
	logger   *slog.Logger

	defaultThreshold float64
	defaultTopK      int
}

// NewRetrieval creates the retrieval engine with its default search
// parameters.
func NewRetrieval(st Store, embedder Embedder, model AnswerModel, policy retry.Policy, threshold float64, topK int, collector *metrics.Collector, logger *slog.Logger) *Retrieval {
	if collector == nil {
		collector = metrics.NewCollector()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if topK <= 0 {
		topK = 10
	}
	return &Retrieval{
		store:            st,
		embedder:         embedder,
		model:            model,
		policy:           policy,
		metrics:          collector,
		logger:           logger,
		defaultThreshold: threshold,
		defaultTopK:      topK,
	}
}

func (r *Retrieval) resolve(opts QueryOptions) (threshold float64, topK int) {
	threshold = r.defaultThreshold
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}
	topK = r.defaultTopK
	if opts.TopK != nil && *opts.TopK > 0 {
		topK = *opts.TopK
	}
	return threshold, topK
}

// Retrieve embeds the query and returns the matching completed records,
// best first.
func (r *Retrieval) Retrieve(ctx context.Context, query string, opts QueryOptions) ([]models.SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty query")
	}
	threshold, topK := r.resolve(opts)

	embedding, _, err := retry.Do(ctx, "embed query", r.policy, func(ctx context.Context) ([]float32, error) {
		return r.embedder.Embed(ctx, query)
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	start := time.Now()
	hits, err := r.store.SearchByVector(ctx, embedding, opts.Filter, threshold, topK)
	r.metrics.RecordTiming(metrics.OpDBSearch, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	r.logger.Debug("retrieval complete", "query_len", len(query), "hits", len(hits), "threshold", threshold, "top_k", topK)
	return hits, nil
}

// Answer retrieves context for the query and synthesizes an answer in one
// call. The hits used as context are returned alongside the answer.
func (r *Retrieval) Answer(ctx context.Context, query string, opts QueryOptions) (string, []models.SearchHit, error) {
	hits, err := r.Retrieve(ctx, query, opts)
	if err != nil {
		return "", nil, err
	}
	if len(hits) == 0 {
		return "No relevant knowledge found for this query.", nil, nil
	}

	answer, err := r.model.SynthesizeAnswer(ctx, query, knowledgeContext(hits))
	if err != nil {
		return "", nil, fmt.Errorf("synthesize answer: %w", err)
	}
	return answer, hits, nil
}

// knowledgeContext formats hits into the context block handed to the
// synthesis model.
func knowledgeContext(hits []models.SearchHit) string {
	parts := make([]string, 0, len(hits))
	for i, hit := range hits {
		var b strings.Builder
		fmt.Fprintf(&b, "[%d] %s (%s > %s > %s, similarity %.2f)\n",
			i+1, hit.Title, hit.Category, hit.Subcategory, hit.Topic, hit.Similarity)
		if hit.Paraphrased != nil {
			if hit.Paraphrased.Summary != "" {
				b.WriteString(hit.Paraphrased.Summary)
				b.WriteString("\n")
			}
			for _, d := range hit.Paraphrased.Details {
				fmt.Fprintf(&b, "- %s: %s\n", d.Concept, d.ExpandedInformation)
			}
		}
		if hit.RawData != "" {
			raw := hit.RawData
			if len(raw) > 1000 {
				raw = raw[:1000] + "..."
			}
			b.WriteString(raw)
			b.WriteString("\n")
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "\n---\n")
}
