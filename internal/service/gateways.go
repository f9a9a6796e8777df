// Package service provides the ingestion pipeline and retrieval logic.
package service

import (
	"context"

	"github.com/raphaelgruber/snapknow/internal/models"
	"github.com/raphaelgruber/snapknow/internal/source"
	"github.com/raphaelgruber/snapknow/internal/store"
)

// Store is the persistence surface the services depend on. *store.Client
// implements it; tests substitute an in-memory fake.
type Store interface {
	CreateKnowledge(ctx context.Context, image, url string) (*models.Knowledge, error)
	GetKnowledge(ctx context.Context, id string) (*models.Knowledge, error)
	GetKnowledgeByImage(ctx context.Context, image string) (*models.Knowledge, error)
	ListKnowledge(ctx context.Context, filter models.ListFilter, page models.Page) ([]models.Knowledge, int, error)
	FailedKnowledge(ctx context.Context, category string, limit int) ([]models.Knowledge, error)
	Transition(ctx context.Context, id string, guards []models.Status, to models.Status, fields store.TransitionFields) (*models.Knowledge, error)
	ResetKnowledge(ctx context.Context, id string) (*models.Knowledge, error)
	DeleteKnowledge(ctx context.Context, id string) error
	SearchByVector(ctx context.Context, embedding []float32, filter models.ListFilter, threshold float64, limit int) ([]models.SearchHit, error)
	GetTaxonomy(ctx context.Context) (*models.Taxonomy, error)
	SaveTaxonomy(ctx context.Context, taxonomy *models.Taxonomy) error
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Resolver turns an image locator into image bytes.
type Resolver interface {
	Resolve(ctx context.Context, locator string) (*source.Image, error)
}

// TaxonomySource provides the taxonomy per job and persists growth.
type TaxonomySource interface {
	Current(ctx context.Context) (*models.Taxonomy, error)
	Grow(ctx context.Context, category, subcategory, topic string) error
}

// AnswerModel synthesizes answers from retrieved context.
type AnswerModel interface {
	SynthesizeAnswer(ctx context.Context, query string, knowledgeContext string) (string, error)
	StreamAnswer(ctx context.Context, query string, knowledgeContext string, onChunk func(chunk string) error) error
}
