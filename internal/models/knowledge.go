package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Status is the lifecycle state of a knowledge record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ConceptDetail is one concept with its expanded explanation, part of the
// paraphrased extraction output.
type ConceptDetail struct {
	Concept             string `json:"concept"`
	ExpandedInformation string `json:"expanded_information"`
}

// Paraphrase is the structured paraphrased version of extracted content:
// a summary plus an ordered list of concept details.
type Paraphrase struct {
	Summary string          `json:"summary"`
	Details []ConceptDetail `json:"details"`
}

// Knowledge is one extracted image stored with its embedding.
//
// Lifecycle invariants the store enforces:
//   - Embedding is non-empty iff Status == completed.
//   - LastError is set only while Status == failed.
//   - RetryCount accumulates attempts across the record's history and resets
//     only when the record is re-submitted as a brand-new ingestion.
type Knowledge struct {
	ID          surrealmodels.RecordID `json:"id,omitempty"`
	Category    string                 `json:"category"`
	Subcategory string                 `json:"subcategory"`
	Topic       string                 `json:"topic"`
	Title       string                 `json:"title"`
	RawData     string                 `json:"raw_data"`
	Paraphrased *Paraphrase            `json:"paraphrased_data,omitempty"`
	Image       string                 `json:"image"`
	URL         string                 `json:"url,omitempty"`
	Status      Status                 `json:"status"`
	LastError   *string                `json:"last_error,omitempty"`
	Comments    *string                `json:"comments,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	Embedding   []float32              `json:"embedding,omitempty"`
	CreatedAt   time.Time              `json:"created_at,omitempty"`
	UpdatedAt   time.Time              `json:"updated_at,omitempty"`
}

// SearchHit is one vector-search result with its cosine similarity.
type SearchHit struct {
	Knowledge
	Similarity float64 `json:"similarity"`
}

// ListFilter narrows a knowledge listing. Empty fields match everything.
type ListFilter struct {
	Category    string
	Subcategory string
	Topic       string
	Status      Status
}

// Page is offset pagination for listings.
type Page struct {
	Number int
	Size   int
}

// Offset returns the row offset for the page.
func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}
