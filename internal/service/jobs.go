package service

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the state of a background batch job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job tracks one background ingestion batch. Durable knowledge state lives
// on the records themselves; jobs only exist for progress reporting and are
// not persisted across restarts.
type Job struct {
	ID          string
	Type        string // "ingest", "retry"
	Status      JobStatus
	RecordIDs   []string
	Progress    int
	Total       int
	Completed   int
	Failed      int
	Errors      []string
	StartedAt   time.Time
	CompletedAt *time.Time

	mu sync.RWMutex
}

// JobManager tracks background jobs in memory.
type JobManager struct {
	jobs map[string]*Job
	mu   sync.RWMutex
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{jobs: make(map[string]*Job)}
}

// CreateJob registers a new pending job over the given record IDs.
func (m *JobManager) CreateJob(jobType string, recordIDs []string) *Job {
	job := &Job{
		ID:        uuid.New().String()[:8], // Short ID for convenience
		Type:      jobType,
		Status:    JobStatusPending,
		RecordIDs: recordIDs,
		Total:     len(recordIDs),
		StartedAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	slog.Info("job created", "job_id", job.ID, "type", jobType, "records", len(recordIDs))
	return job
}

// GetJob retrieves a job by ID, or nil.
func (m *JobManager) GetJob(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// ListJobs returns all jobs, most recent first.
func (m *JobManager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	slices.SortFunc(jobs, func(a, b *Job) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return jobs
}

// SetRunning marks the job as running.
func (j *Job) SetRunning() {
	j.mu.Lock()
	j.Status = JobStatusRunning
	j.mu.Unlock()
}

// RecordOutcome advances progress with the outcome of one record.
func (j *Job) RecordOutcome(recordID string, failed bool, errMsg string) {
	j.mu.Lock()
	j.Progress++
	if failed {
		j.Failed++
		j.Errors = append(j.Errors, recordID+": "+errMsg)
	} else {
		j.Completed++
	}
	j.mu.Unlock()
}

// Finish marks the job terminal: failed if any record failed, completed
// otherwise.
func (j *Job) Finish() {
	j.mu.Lock()
	now := time.Now()
	j.CompletedAt = &now
	if j.Failed > 0 {
		j.Status = JobStatusFailed
	} else {
		j.Status = JobStatusCompleted
	}
	j.mu.Unlock()

	snap := j.Snapshot()
	slog.Info("job finished", "job_id", snap.ID, "completed", snap.Completed, "failed", snap.Failed)
}

// Snapshot returns a thread-safe copy of job state.
func (j *Job) Snapshot() Job {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return Job{
		ID:          j.ID,
		Type:        j.Type,
		Status:      j.Status,
		RecordIDs:   slices.Clone(j.RecordIDs),
		Progress:    j.Progress,
		Total:       j.Total,
		Completed:   j.Completed,
		Failed:      j.Failed,
		Errors:      slices.Clone(j.Errors),
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}
