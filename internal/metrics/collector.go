// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sync"
	"time"
)

// OperationMetrics holds aggregated timings for a single operation type.
type OperationMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`
}

// PipelineCounts tracks ingestion outcomes since startup.
type PipelineCounts struct {
	Completed    int64 `json:"completed"`
	Failed       int64 `json:"failed"`
	Deduplicated int64 `json:"deduplicated"`
	Conflicts    int64 `json:"conflicts"`
}

// Snapshot represents the full server statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64            `json:"uptime_seconds"`
	Extraction    *OperationSnapshot `json:"extraction,omitempty"`
	Embedding     *OperationSnapshot `json:"embedding,omitempty"`
	LLMStream     *OperationSnapshot `json:"llm_stream,omitempty"`
	DBSearch      *OperationSnapshot `json:"db_search,omitempty"`
	Pipeline      PipelineCounts     `json:"pipeline"`
}

// Operation names for the collector.
const (
	OpExtraction = "extraction"
	OpEmbedding  = "embedding"
	OpLLMStream  = "llm_stream"
	OpDBSearch   = "db_search"
)

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
	pipeline  PipelineCounts
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{
			MinTime: time.Duration(math.MaxInt64),
		}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// RecordCompleted counts a record that finished the pipeline successfully.
func (c *Collector) RecordCompleted() { c.addPipeline(func(p *PipelineCounts) { p.Completed++ }) }

// RecordFailed counts a record that exhausted or fatally failed the pipeline.
func (c *Collector) RecordFailed() { c.addPipeline(func(p *PipelineCounts) { p.Failed++ }) }

// RecordDeduplicated counts an ingestion request that matched an existing
// completed record.
func (c *Collector) RecordDeduplicated() {
	c.addPipeline(func(p *PipelineCounts) { p.Deduplicated++ })
}

// RecordConflict counts a processing claim lost to a concurrent worker.
func (c *Collector) RecordConflict() { c.addPipeline(func(p *PipelineCounts) { p.Conflicts++ }) }

func (c *Collector) addPipeline(f func(*PipelineCounts)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f(&c.pipeline)
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	return &OperationSnapshot{
		Count:       m.Count,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Extraction:    snapshotOp(c.ops[OpExtraction]),
		Embedding:     snapshotOp(c.ops[OpEmbedding]),
		LLMStream:     snapshotOp(c.ops[OpLLMStream]),
		DBSearch:      snapshotOp(c.ops[OpDBSearch]),
		Pipeline:      c.pipeline,
	}
}
