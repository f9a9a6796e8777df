package taxonomy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/snapknow/internal/models"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	tax   models.Taxonomy
	saves int
}

func (m *memStore) GetTaxonomy(ctx context.Context) (*models.Taxonomy, error) {
	cp := m.tax
	return &cp, nil
}

func (m *memStore) SaveTaxonomy(ctx context.Context, taxonomy *models.Taxonomy) error {
	m.tax = *taxonomy
	m.saves++
	return nil
}

func TestGrowPersistsOnlyNewLabels(t *testing.T) {
	store := &memStore{tax: models.Taxonomy{Categories: []models.TaxonomyCategory{
		{
			Name: "Mathematics",
			Subcategories: []models.TaxonomySubcategory{
				{Name: "geometry", Topics: []string{"triangles"}},
			},
		},
	}}}
	p := NewProvider(store, nil)
	ctx := context.Background()

	// Existing path is a no-op.
	require.NoError(t, p.Grow(ctx, "Mathematics", "geometry", "triangles"))
	assert.Equal(t, 0, store.saves)

	// A new topic under an existing branch persists.
	require.NoError(t, p.Grow(ctx, "Mathematics", "geometry", "circles"))
	assert.Equal(t, 1, store.saves)
	assert.True(t, store.tax.HasTopic("Mathematics", "geometry", "circles"))

	// A whole new category persists.
	require.NoError(t, p.Grow(ctx, "Physics", "mechanics", "momentum"))
	assert.Equal(t, 2, store.saves)
	assert.True(t, store.tax.HasCategory("Physics"))
	assert.True(t, store.tax.HasSubcategory("Physics", "mechanics"))
}

func TestSeedPopulatesEmptyStore(t *testing.T) {
	seedYAML := `categories:
  - name: Mathematics
    subcategories:
      - name: geometry
        topics: [triangles, circles]
  - name: History
    subcategories:
      - name: rome
        topics: [punic wars]
`
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0644))

	store := &memStore{}
	p := NewProvider(store, nil)
	ctx := context.Background()

	require.NoError(t, p.Seed(ctx, path))
	assert.Len(t, store.tax.Categories, 2)
	assert.True(t, store.tax.HasTopic("Mathematics", "geometry", "circles"))

	// Seeding again must not clobber the populated taxonomy.
	store.tax.Merge("Physics", "mechanics", "momentum")
	require.NoError(t, p.Seed(ctx, path))
	assert.True(t, store.tax.HasCategory("Physics"))
}

func TestSeedRejectsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("categories: []\n"), 0644))

	p := NewProvider(&memStore{}, nil)
	assert.Error(t, p.Seed(context.Background(), path))
}

func TestSeedNoPathIsNoop(t *testing.T) {
	store := &memStore{}
	p := NewProvider(store, nil)
	require.NoError(t, p.Seed(context.Background(), ""))
	assert.Equal(t, 0, store.saves)
}
