// Package taxonomy manages the three-level classification hierarchy used to
// label extracted knowledge.
package taxonomy

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/snapknow/internal/models"
)

// Store is the persistence surface the provider needs.
type Store interface {
	GetTaxonomy(ctx context.Context) (*models.Taxonomy, error)
	SaveTaxonomy(ctx context.Context, taxonomy *models.Taxonomy) error
}

// Provider loads the taxonomy for each job and persists growth when the
// extractor proposes new labels.
type Provider struct {
	store  Store
	logger *slog.Logger
}

// NewProvider creates a taxonomy provider backed by the given store.
func NewProvider(store Store, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{store: store, logger: logger}
}

// Current returns the stored taxonomy. Each processing job fetches a fresh
// copy so concurrent growth from other jobs is visible.
func (p *Provider) Current(ctx context.Context) (*models.Taxonomy, error) {
	tax, err := p.store.GetTaxonomy(ctx)
	if err != nil {
		return nil, fmt.Errorf("load taxonomy: %w", err)
	}
	return tax, nil
}

// Grow merges one label path into the stored taxonomy and persists it if
// anything was added. Re-reads before merging so a concurrent Grow from
// another job is not overwritten wholesale; last writer still wins on the
// document, but both paths are present in its copy.
func (p *Provider) Grow(ctx context.Context, category, subcategory, topic string) error {
	tax, err := p.store.GetTaxonomy(ctx)
	if err != nil {
		return fmt.Errorf("load taxonomy for growth: %w", err)
	}

	catAdded, subAdded, topicAdded := tax.Merge(category, subcategory, topic)
	if !catAdded && !subAdded && !topicAdded {
		return nil
	}

	p.logger.Info("taxonomy grown",
		"category", category,
		"subcategory", subcategory,
		"topic", topic,
		"new_category", catAdded,
		"new_subcategory", subAdded,
		"new_topic", topicAdded)

	if err := p.store.SaveTaxonomy(ctx, tax); err != nil {
		return fmt.Errorf("save grown taxonomy: %w", err)
	}
	return nil
}

// seedFile is the YAML shape of a taxonomy seed.
type seedFile struct {
	Categories []models.TaxonomyCategory `yaml:"categories"`
}

// Seed loads a YAML seed file into the store if the stored taxonomy is
// empty. An already-populated taxonomy is left alone so seeding is safe to
// run on every startup.
func (p *Provider) Seed(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}

	existing, err := p.store.GetTaxonomy(ctx)
	if err != nil {
		return fmt.Errorf("check existing taxonomy: %w", err)
	}
	if len(existing.Categories) > 0 {
		p.logger.Debug("taxonomy already populated, skipping seed", "categories", len(existing.Categories))
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read taxonomy seed: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse taxonomy seed: %w", err)
	}
	if len(seed.Categories) == 0 {
		return fmt.Errorf("taxonomy seed %s contains no categories", path)
	}

	if err := p.store.SaveTaxonomy(ctx, &models.Taxonomy{Categories: seed.Categories}); err != nil {
		return fmt.Errorf("save seeded taxonomy: %w", err)
	}
	p.logger.Info("taxonomy seeded", "path", path, "categories", len(seed.Categories))
	return nil
}
