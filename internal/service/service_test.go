package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/snapknow/internal/extract"
	"github.com/raphaelgruber/snapknow/internal/models"
	"github.com/raphaelgruber/snapknow/internal/retry"
	"github.com/raphaelgruber/snapknow/internal/source"
	"github.com/raphaelgruber/snapknow/internal/store"
)

// fastPolicy keeps retry backoff out of test runtime.
func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: 1}
}

func transitionFields() store.TransitionFields {
	return store.TransitionFields{}
}

// fakeStore is an in-memory Store with real guarded-transition semantics.
type fakeStore struct {
	mu      sync.Mutex
	seq     int
	records map[string]*models.Knowledge
	tax     models.Taxonomy
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*models.Knowledge)}
}

func knowledgeID(id string) surrealmodels.RecordID {
	return surrealmodels.RecordID{Table: "knowledge", ID: id}
}

func (f *fakeStore) CreateKnowledge(ctx context.Context, image, url string) (*models.Knowledge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := fmt.Sprintf("rec-%d", f.seq)
	k := &models.Knowledge{
		ID:     knowledgeID(id),
		Image:  image,
		URL:    url,
		Topic:  "general",
		Status: models.StatusPending,
	}
	f.records[id] = k
	cp := *k
	return &cp, nil
}

func (f *fakeStore) GetKnowledge(ctx context.Context, id string) (*models.Knowledge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *k
	return &cp, nil
}

func (f *fakeStore) GetKnowledgeByImage(ctx context.Context, image string) (*models.Knowledge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range f.records {
		if k.Image == image {
			cp := *k
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListKnowledge(ctx context.Context, filter models.ListFilter, page models.Page) ([]models.Knowledge, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Knowledge
	for _, k := range f.records {
		if filter.Status != "" && k.Status != filter.Status {
			continue
		}
		if filter.Category != "" && k.Category != filter.Category {
			continue
		}
		out = append(out, *k)
	}
	return out, len(out), nil
}

func (f *fakeStore) FailedKnowledge(ctx context.Context, category string, limit int) ([]models.Knowledge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Knowledge
	for _, k := range f.records {
		if k.Status != models.StatusFailed {
			continue
		}
		if category != "" && k.Category != category {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, *k)
	}
	return out, nil
}

func (f *fakeStore) Transition(ctx context.Context, id string, guards []models.Status, to models.Status, fields store.TransitionFields) (*models.Knowledge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	inGuard := false
	for _, g := range guards {
		if k.Status == g {
			inGuard = true
			break
		}
	}
	if !inGuard {
		return nil, store.ErrConflict
	}

	k.Status = to
	if fields.Title != nil {
		k.Title = *fields.Title
	}
	if fields.Category != nil {
		k.Category = *fields.Category
	}
	if fields.Subcategory != nil {
		k.Subcategory = *fields.Subcategory
	}
	if fields.Topic != nil {
		k.Topic = *fields.Topic
	}
	if fields.RawData != nil {
		k.RawData = *fields.RawData
	}
	if fields.Paraphrased != nil {
		cp := *fields.Paraphrased
		k.Paraphrased = &cp
	}
	if fields.Embedding != nil {
		k.Embedding = fields.Embedding
	}
	switch {
	case fields.ClearError:
		k.LastError = nil
		k.Comments = nil
	case fields.LastError != nil:
		k.LastError = fields.LastError
		k.Comments = fields.Comments
	}
	k.RetryCount += fields.RetryDelta

	cp := *k
	return &cp, nil
}

func (f *fakeStore) ResetKnowledge(ctx context.Context, id string) (*models.Knowledge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	comment := "reprocessing: source already existed"
	k.Status = models.StatusPending
	k.Category = ""
	k.Subcategory = ""
	k.Topic = "general"
	k.Title = ""
	k.RawData = ""
	k.Paraphrased = nil
	k.Embedding = nil
	k.LastError = nil
	k.Comments = &comment
	k.RetryCount = 0
	cp := *k
	return &cp, nil
}

func (f *fakeStore) DeleteKnowledge(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.records, id)
	return nil
}

func (f *fakeStore) SearchByVector(ctx context.Context, embedding []float32, filter models.ListFilter, threshold float64, limit int) ([]models.SearchHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var hits []models.SearchHit
	for _, k := range f.records {
		if k.Status != models.StatusCompleted {
			continue
		}
		if limit > 0 && len(hits) >= limit {
			break
		}
		hits = append(hits, models.SearchHit{Knowledge: *k, Similarity: 0.9})
	}
	return hits, nil
}

func (f *fakeStore) GetTaxonomy(ctx context.Context) (*models.Taxonomy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := f.tax
	return &cp, nil
}

func (f *fakeStore) SaveTaxonomy(ctx context.Context, taxonomy *models.Taxonomy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tax = *taxonomy
	return nil
}

// status reads a record's current state directly, for assertions.
func (f *fakeStore) status(id string) models.Knowledge {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.records[id]
}

// fakeResolver serves canned image bytes, optionally failing first.
type fakeResolver struct {
	mu          sync.Mutex
	failures    int
	err         error
	calls       int
	sawDeadline bool
}

func (f *fakeResolver) Resolve(ctx context.Context, locator string) (*source.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	_, f.sawDeadline = ctx.Deadline()
	if f.failures > 0 {
		f.failures--
		return nil, f.err
	}
	return &source.Image{Data: []byte{0xFF, 0xD8}, MimeType: "image/jpeg", Locator: locator}, nil
}

// fakeExtractor returns a fixed extraction output, optionally failing first.
type fakeExtractor struct {
	mu          sync.Mutex
	out         extract.Output
	failures    int
	err         error
	calls       int
	sawDeadline bool
	onExtract   func()
}

func (f *fakeExtractor) Extract(ctx context.Context, image []byte, mimeType string, taxonomy *models.Taxonomy) (*extract.Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	_, f.sawDeadline = ctx.Deadline()
	if f.onExtract != nil {
		f.onExtract()
	}
	if f.failures > 0 {
		f.failures--
		return nil, f.err
	}
	cp := f.out
	return &cp, nil
}

// recordingSource serves one extractor and records the identifiers asked for.
type recordingSource struct {
	mu  sync.Mutex
	ids []string
	e   extract.Extractor
}

func (r *recordingSource) Extractor(id string) (extract.Extractor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return r.e, nil
}

// fakeEmbedder returns a fixed vector, optionally failing first.
type fakeEmbedder struct {
	mu          sync.Mutex
	failures    int
	err         error
	calls       int
	lastText    string
	sawDeadline bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastText = text
	_, f.sawDeadline = ctx.Deadline()
	if f.failures > 0 {
		f.failures--
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

// fakeAnswerModel echoes a canned answer, in one piece or chunked.
type fakeAnswerModel struct {
	answer string
	err    error
}

func (f *fakeAnswerModel) SynthesizeAnswer(ctx context.Context, query, knowledgeContext string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeAnswerModel) StreamAnswer(ctx context.Context, query, knowledgeContext string, onChunk func(string) error) error {
	if f.err != nil {
		return f.err
	}
	for _, word := range strings.SplitAfter(f.answer, " ") {
		if err := onChunk(word); err != nil {
			return err
		}
	}
	return nil
}

func validOutput() extract.Output {
	return extract.Output{
		Category:    "Mathematics",
		Subcategory: "geometry",
		Topic:       "triangles",
		Title:       "Pythagorean Theorem",
		RawData:     "a^2 + b^2 = c^2",
		Paraphrased: models.Paraphrase{
			Summary: "Relates triangle side lengths.",
			Details: []models.ConceptDetail{
				{Concept: "hypotenuse", ExpandedInformation: "Side opposite the right angle."},
			},
		},
	}
}

func baseTaxonomy() models.Taxonomy {
	return models.Taxonomy{Categories: []models.TaxonomyCategory{
		{
			Name: "Mathematics",
			Subcategories: []models.TaxonomySubcategory{
				{Name: "geometry", Topics: []string{"triangles"}},
			},
		},
	}}
}
