package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/panjf2000/ants/v2"

	"github.com/raphaelgruber/snapknow/internal/metrics"
	"github.com/raphaelgruber/snapknow/internal/models"
)

// ErrNotFailed is returned when a retry is requested for a record that is
// not in the failed state.
var ErrNotFailed = errors.New("record is not failed")

// BatchItem describes one locator's fate in an ingestion request.
type BatchItem struct {
	ID           string `json:"id"`
	Locator      string `json:"locator"`
	Deduplicated bool   `json:"deduplicated"`
	Error        string `json:"error,omitempty"`
}

// Dispatcher accepts ingestion requests, deduplicates them against existing
// records, and hands batches to a bounded worker pool. Records within a
// batch are processed sequentially; concurrency comes from the pool running
// multiple batches.
type Dispatcher struct {
	store     Store
	processor *Processor
	jobs      *JobManager
	pool      *ants.Pool
	metrics   *metrics.Collector
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher backed by a worker pool of the given
// size.
func NewDispatcher(st Store, processor *Processor, jobs *JobManager, poolSize int, collector *metrics.Collector, logger *slog.Logger) (*Dispatcher, error) {
	if poolSize <= 0 {
		poolSize = 2
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := ants.NewPool(poolSize, ants.WithNonblocking(false))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	return &Dispatcher{
		store:     st,
		processor: processor,
		jobs:      jobs,
		pool:      pool,
		metrics:   collector,
		logger:    logger,
	}, nil
}

// Close releases the worker pool. In-flight batches finish first.
func (d *Dispatcher) Close() {
	d.pool.Release()
}

// Ingest registers records for the given image locators and queues them for
// background processing with the named extractor (empty selects the default).
// It returns immediately with the job and the per-locator outcome: completed
// duplicates are returned as-is, incomplete duplicates are reset and
// reprocessed, new locators get fresh records.
func (d *Dispatcher) Ingest(ctx context.Context, locators []string, extractorID string) (*Job, []BatchItem, error) {
	if len(locators) == 0 {
		return nil, nil, fmt.Errorf("no images to ingest")
	}

	items := make([]BatchItem, 0, len(locators))
	var queued []string

	for _, locator := range locators {
		item := BatchItem{Locator: locator}

		existing, err := d.store.GetKnowledgeByImage(ctx, locator)
		if err != nil {
			return nil, nil, fmt.Errorf("check existing record for %s: %w", locator, err)
		}

		switch {
		case existing == nil:
			record, err := d.store.CreateKnowledge(ctx, locator, sourceURL(locator))
			if err != nil {
				return nil, nil, fmt.Errorf("create record for %s: %w", locator, err)
			}
			item.ID = models.MustRecordIDString(record.ID)
			queued = append(queued, item.ID)

		case existing.Status == models.StatusCompleted:
			// Already ingested; point the caller at the existing record.
			item.ID = models.MustRecordIDString(existing.ID)
			item.Deduplicated = true
			d.metrics.RecordDeduplicated()
			d.logger.Info("ingest deduplicated", "locator", locator, "id", item.ID)

		default:
			// A stale pending/processing/failed record for the same image
			// starts over from scratch.
			id := models.MustRecordIDString(existing.ID)
			if _, err := d.store.ResetKnowledge(ctx, id); err != nil {
				return nil, nil, fmt.Errorf("reset record for %s: %w", locator, err)
			}
			item.ID = id
			queued = append(queued, id)
		}

		items = append(items, item)
	}

	job := d.jobs.CreateJob("ingest", queued)
	d.submit(job, extractorID)
	return job, items, nil
}

// RetryRecord queues a single failed record for reprocessing.
func (d *Dispatcher) RetryRecord(ctx context.Context, id string) (*Job, error) {
	record, err := d.store.GetKnowledge(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Status != models.StatusFailed {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotFailed, id, record.Status)
	}

	job := d.jobs.CreateJob("retry", []string{id})
	d.submit(job, "")
	return job, nil
}

// RetryFailed queues every failed record, optionally filtered by category,
// for reprocessing.
func (d *Dispatcher) RetryFailed(ctx context.Context, category string, limit int) (*Job, error) {
	failed, err := d.store.FailedKnowledge(ctx, category, limit)
	if err != nil {
		return nil, err
	}
	if len(failed) == 0 {
		return nil, fmt.Errorf("no failed records to retry")
	}

	ids := make([]string, len(failed))
	for i, record := range failed {
		ids[i] = models.MustRecordIDString(record.ID)
	}

	job := d.jobs.CreateJob("retry", ids)
	d.submit(job, "")
	return job, nil
}

// submit hands a job's records to the pool as one sequential task. The pool
// blocks submissions while every worker is busy, so handing off happens on a
// detached goroutine; callers get their job back without waiting for a free
// worker.
func (d *Dispatcher) submit(job *Job, extractorID string) {
	run := func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("batch goroutine panicked", "job_id", job.ID, "panic", r)
				job.Finish()
			}
		}()

		// The request context is gone once the HTTP response went out;
		// background work runs on its own context.
		ctx := context.Background()
		job.SetRunning()

		for _, id := range job.Snapshot().RecordIDs {
			record, err := d.processor.Process(ctx, id, extractorID)
			switch {
			case err != nil:
				job.RecordOutcome(id, true, err.Error())
			case record == nil:
				// Claim lost to a concurrent processor; the record is in
				// good hands elsewhere.
				job.RecordOutcome(id, false, "")
			case record.Status == models.StatusFailed:
				msg := ""
				if record.LastError != nil {
					msg = *record.LastError
				}
				job.RecordOutcome(id, true, msg)
			default:
				job.RecordOutcome(id, false, "")
			}
		}
		job.Finish()
	}

	go func() {
		if err := d.pool.Submit(run); err != nil {
			// The pool is gone (shutdown); records stay pending and the job
			// reports why.
			d.logger.Error("submit batch", "job_id", job.ID, "error", err)
			for _, id := range job.Snapshot().RecordIDs {
				job.RecordOutcome(id, true, fmt.Sprintf("not processed: %v", err))
			}
			job.Finish()
		}
	}()
}

// sourceURL records the original URL for remote images; local paths and
// file-service references have none.
func sourceURL(locator string) string {
	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		return locator
	}
	return ""
}
