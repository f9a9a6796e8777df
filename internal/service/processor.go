package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/snapknow/internal/extract"
	"github.com/raphaelgruber/snapknow/internal/metrics"
	"github.com/raphaelgruber/snapknow/internal/models"
	"github.com/raphaelgruber/snapknow/internal/retry"
	"github.com/raphaelgruber/snapknow/internal/source"
	"github.com/raphaelgruber/snapknow/internal/store"
)

// Processing step names, recorded in the comments field on failure.
const (
	stepDownload   = "download"
	stepTaxonomy   = "taxonomy"
	stepExtraction = "extraction"
	stepEmbedding  = "embedding"
	stepFinalize   = "finalize"
)

// Per-call deadlines. Each external call is bounded on its own, independent
// of the retry backoff schedule; a timeout classifies as retryable.
const (
	downloadTimeout = 30 * time.Second
	extractTimeout  = 2 * time.Minute
	embedTimeout    = 30 * time.Second
)

// Processor runs the full pipeline for a single knowledge record: claim,
// download, extract, classify, embed, complete.
type Processor struct {
	store      Store
	resolver   Resolver
	extractors extract.Source
	embedder   Embedder
	taxonomy   TaxonomySource
	policy     retry.Policy
	metrics    *metrics.Collector
	logger     *slog.Logger
}

// NewProcessor wires the pipeline collaborators together.
func NewProcessor(st Store, resolver Resolver, extractors extract.Source, embedder Embedder, tax TaxonomySource, policy retry.Policy, collector *metrics.Collector, logger *slog.Logger) *Processor {
	if collector == nil {
		collector = metrics.NewCollector()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		store:      st,
		resolver:   resolver,
		extractors: extractors,
		embedder:   embedder,
		taxonomy:   tax,
		policy:     policy,
		metrics:    collector,
		logger:     logger,
	}
}

// Process claims one record and runs it through the pipeline with the named
// extractor (empty selects the default). Losing the claim to a concurrent
// worker is not an error; the record is simply dropped here and finished
// elsewhere. The returned record reflects the terminal state (completed or
// failed); a nil record with nil error means the claim was lost.
func (p *Processor) Process(ctx context.Context, id, extractorID string) (*models.Knowledge, error) {
	// Claiming moves the record off failed, so the stale diagnostics from the
	// previous run go away with the claim itself.
	record, err := p.store.Transition(ctx, id,
		[]models.Status{models.StatusPending, models.StatusFailed},
		models.StatusProcessing, store.TransitionFields{ClearError: true})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			p.metrics.RecordConflict()
			p.logger.Debug("claim lost to concurrent processor", "id", id)
			return nil, nil
		}
		return nil, fmt.Errorf("claim record %s: %w", id, err)
	}

	p.logger.Info("processing record", "id", id, "image", record.Image)

	// attemptsUsed accumulates the attempts consumed by every external call
	// in this run, successful or not; retry_count carries the cumulative
	// total across the record's history.
	attemptsUsed := 0

	fail := func(step string, attempts int, cause error) (*models.Knowledge, error) {
		p.metrics.RecordFailed()
		p.logger.Warn("record failed", "id", id, "step", step, "attempts", attempts, "error", cause)

		msg := cause.Error()
		comment := fmt.Sprintf("failed at step: %s", step)
		failed, terr := p.store.Transition(ctx, id,
			[]models.Status{models.StatusProcessing}, models.StatusFailed,
			store.TransitionFields{
				LastError:  &msg,
				Comments:   &comment,
				RetryDelta: attemptsUsed + attempts,
			})
		if terr != nil {
			return nil, fmt.Errorf("mark record %s failed after %s error: %w", id, step, terr)
		}
		return failed, nil
	}

	// Download the image.
	img, attempts, err := retry.Do(ctx, "download "+record.Image, p.policy, func(ctx context.Context) (*source.Image, error) {
		ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
		defer cancel()
		return p.resolver.Resolve(ctx, record.Image)
	})
	if err != nil {
		return fail(stepDownload, attempts, err)
	}
	attemptsUsed += attempts

	// The taxonomy is fetched fresh per record so growth from concurrent
	// jobs is visible to the extractor.
	tax, err := p.taxonomy.Current(ctx)
	if err != nil {
		return fail(stepTaxonomy, 1, err)
	}

	// Extract structured knowledge from the image. The extractor is selected
	// per job, so concurrent batches can use different providers.
	extractor, err := p.extractors.Extractor(extractorID)
	if err != nil {
		return fail(stepExtraction, 1, err)
	}
	extractStart := time.Now()
	out, attempts, err := retry.Do(ctx, "extract "+record.Image, p.policy, func(ctx context.Context) (*extract.Output, error) {
		ctx, cancel := context.WithTimeout(ctx, extractTimeout)
		defer cancel()
		return extractor.Extract(ctx, img.Data, img.MimeType, tax)
	})
	p.metrics.RecordTiming(metrics.OpExtraction, time.Since(extractStart))
	if err != nil {
		return fail(stepExtraction, attempts, err)
	}
	attemptsUsed += attempts

	// Persist any new labels the extractor proposed.
	if out.IsNewCategory || out.IsNewSubcategory || out.IsNewTopic {
		if err := p.taxonomy.Grow(ctx, out.Category, out.Subcategory, out.Topic); err != nil {
			return fail(stepTaxonomy, 1, err)
		}
	}

	// Embed the raw transcription. The paraphrase and labels stay out of the
	// vector so a query phrased as the source text matches it exactly.
	embedStart := time.Now()
	embedding, attempts, err := retry.Do(ctx, "embed "+record.Image, p.policy, func(ctx context.Context) ([]float32, error) {
		ctx, cancel := context.WithTimeout(ctx, embedTimeout)
		defer cancel()
		return p.embedder.Embed(ctx, out.RawData)
	})
	p.metrics.RecordTiming(metrics.OpEmbedding, time.Since(embedStart))
	if err != nil {
		return fail(stepEmbedding, attempts, err)
	}
	attemptsUsed += attempts

	paraphrase := out.Paraphrased
	completed, err := p.store.Transition(ctx, id,
		[]models.Status{models.StatusProcessing}, models.StatusCompleted,
		store.TransitionFields{
			Title:       &out.Title,
			Category:    &out.Category,
			Subcategory: &out.Subcategory,
			Topic:       &out.Topic,
			RawData:     &out.RawData,
			Paraphrased: &paraphrase,
			Embedding:   embedding,
			ClearError:  true,
			RetryDelta:  attemptsUsed,
		})
	if err != nil {
		return fail(stepFinalize, 1, err)
	}

	p.metrics.RecordCompleted()
	p.logger.Info("record completed",
		"id", id,
		"category", out.Category,
		"subcategory", out.Subcategory,
		"topic", out.Topic,
		"attempts", attemptsUsed)
	return completed, nil
}
