package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/snapknow/internal/extract"
	"github.com/raphaelgruber/snapknow/internal/models"
	"github.com/raphaelgruber/snapknow/internal/retry"
	"github.com/raphaelgruber/snapknow/internal/store"
	"github.com/raphaelgruber/snapknow/internal/taxonomy"
)

func newTestProcessor(st *fakeStore, resolver *fakeResolver, extractor *fakeExtractor, embedder *fakeEmbedder) *Processor {
	return NewProcessor(st, resolver, extract.Static(extractor), embedder,
		taxonomy.NewProvider(st, nil), fastPolicy(), nil, nil)
}

func TestProcessHappyPath(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	st.tax = baseTaxonomy()
	resolver := &fakeResolver{}
	extractor := &fakeExtractor{out: validOutput()}
	embedder := &fakeEmbedder{}
	p := newTestProcessor(st, resolver, extractor, embedder)

	created, err := st.CreateKnowledge(ctx, "notes.jpg", "")
	require.NoError(t, err)
	id := models.MustRecordIDString(created.ID)

	record, err := p.Process(ctx, id, "")
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, models.StatusCompleted, record.Status)
	assert.Equal(t, "Pythagorean Theorem", record.Title)
	assert.Equal(t, "Mathematics", record.Category)
	assert.Equal(t, "geometry", record.Subcategory)
	assert.Equal(t, "triangles", record.Topic)
	assert.NotEmpty(t, record.Embedding)
	assert.Nil(t, record.LastError)
	assert.Equal(t, 3, record.RetryCount, "one attempt per external call: download, extract, embed")
}

func TestProcessEmbedsRawTextOnly(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	st.tax = baseTaxonomy()
	embedder := &fakeEmbedder{}
	p := newTestProcessor(st, &fakeResolver{}, &fakeExtractor{out: validOutput()}, embedder)

	created, _ := st.CreateKnowledge(ctx, "notes.jpg", "")
	_, err := p.Process(ctx, models.MustRecordIDString(created.ID), "")
	require.NoError(t, err)

	assert.Equal(t, "a^2 + b^2 = c^2", embedder.lastText,
		"the vector comes from the raw transcription, not the title, labels, or paraphrase")
}

func TestProcessTransientFailuresRecover(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	st.tax = baseTaxonomy()
	resolver := &fakeResolver{failures: 1, err: errors.New("connection reset by peer")}
	extractor := &fakeExtractor{out: validOutput()}
	embedder := &fakeEmbedder{failures: 1, err: errors.New("API error (status 503)")}
	p := newTestProcessor(st, resolver, extractor, embedder)

	created, _ := st.CreateKnowledge(ctx, "flaky.jpg", "")
	id := models.MustRecordIDString(created.ID)

	record, err := p.Process(ctx, id, "")
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, models.StatusCompleted, record.Status)
	assert.Equal(t, 5, record.RetryCount, "two download attempts, one extraction, two embeds")
	assert.Equal(t, 2, resolver.calls)
	assert.Equal(t, 2, embedder.calls)
}

func TestProcessExtractionExhaustionFails(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	st.tax = baseTaxonomy()
	extractor := &fakeExtractor{failures: 99, err: errors.New("API error (status 503): overloaded")}
	embedder := &fakeEmbedder{}
	p := newTestProcessor(st, &fakeResolver{}, extractor, embedder)

	created, _ := st.CreateKnowledge(ctx, "always-503.jpg", "")
	id := models.MustRecordIDString(created.ID)

	record, err := p.Process(ctx, id, "")
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, models.StatusFailed, record.Status)
	assert.Equal(t, 3, extractor.calls, "transient errors retry up to the attempt budget")
	assert.Equal(t, 4, record.RetryCount, "one download attempt plus three extraction attempts")
	require.NotNil(t, record.LastError)
	assert.Contains(t, *record.LastError, "503")
	require.NotNil(t, record.Comments)
	assert.Equal(t, "failed at step: extraction", *record.Comments)
	assert.Nil(t, record.Embedding)
	assert.Equal(t, 0, embedder.calls, "embedding never runs after extraction fails")
}

func TestProcessFatalErrorStopsImmediately(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	st.tax = baseTaxonomy()
	extractor := &fakeExtractor{failures: 99, err: retry.Permanent(errors.New("category \"Astrology\" not in taxonomy and not flagged as new"))}
	p := newTestProcessor(st, &fakeResolver{}, extractor, &fakeEmbedder{})

	created, _ := st.CreateKnowledge(ctx, "bad-label.jpg", "")
	id := models.MustRecordIDString(created.ID)

	record, err := p.Process(ctx, id, "")
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, models.StatusFailed, record.Status)
	assert.Equal(t, 1, extractor.calls, "fatal errors are not retried")
	assert.Equal(t, 2, record.RetryCount, "one download attempt plus the fatal extraction attempt")
}

func TestProcessClaimConflictDropsQuietly(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	st.tax = baseTaxonomy()
	resolver := &fakeResolver{}
	p := newTestProcessor(st, resolver, &fakeExtractor{out: validOutput()}, &fakeEmbedder{})

	created, _ := st.CreateKnowledge(ctx, "contested.jpg", "")
	id := models.MustRecordIDString(created.ID)

	// Another worker already claimed it.
	_, err := st.Transition(ctx, id, []models.Status{models.StatusPending}, models.StatusProcessing, store.TransitionFields{})
	require.NoError(t, err)

	record, err := p.Process(ctx, id, "")
	require.NoError(t, err)
	assert.Nil(t, record, "losing the claim is not an error")
	assert.Equal(t, 0, resolver.calls, "no pipeline work after a lost claim")
	assert.Equal(t, models.StatusProcessing, st.status(id).Status)
}

func TestProcessRetryAccumulatesAcrossRuns(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	st.tax = baseTaxonomy()
	extractor := &fakeExtractor{failures: 3, err: errors.New("request timed out"), out: validOutput()}
	p := newTestProcessor(st, &fakeResolver{}, extractor, &fakeEmbedder{})

	created, _ := st.CreateKnowledge(ctx, "slow.jpg", "")
	id := models.MustRecordIDString(created.ID)

	// First run: one download attempt plus three exhausted extraction
	// attempts.
	record, err := p.Process(ctx, id, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, record.Status)
	assert.Equal(t, 4, record.RetryCount)

	// Manual retry succeeds cleanly and still advances the count: every
	// external call of the second run is on the record's tab too.
	record, err = p.Process(ctx, id, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, record.Status)
	assert.Equal(t, 7, record.RetryCount, "4 from the failed run plus 3 clean calls")
	assert.Nil(t, record.LastError, "completion clears the failure diagnostics")
}

func TestProcessClaimClearsFailureDiagnostics(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	st.tax = baseTaxonomy()
	extractor := &fakeExtractor{failures: 1, err: retry.Permanent(errors.New("unreadable image")), out: validOutput()}
	p := newTestProcessor(st, &fakeResolver{}, extractor, &fakeEmbedder{})

	created, _ := st.CreateKnowledge(ctx, "smudged.jpg", "")
	id := models.MustRecordIDString(created.ID)

	record, err := p.Process(ctx, id, "")
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, record.Status)
	require.NotNil(t, record.LastError)

	// While the retry run is in flight the record must not look failed
	// anymore: claiming it wipes last_error along with the status change.
	var midFlight models.Knowledge
	extractor.onExtract = func() { midFlight = st.status(id) }

	record, err = p.Process(ctx, id, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, record.Status)

	assert.Equal(t, models.StatusProcessing, midFlight.Status)
	assert.Nil(t, midFlight.LastError, "diagnostics are cleared by the claim, not only at completion")
	assert.Nil(t, midFlight.Comments)
}

func TestProcessBoundsEveryExternalCall(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	st.tax = baseTaxonomy()
	resolver := &fakeResolver{}
	extractor := &fakeExtractor{out: validOutput()}
	embedder := &fakeEmbedder{}
	p := newTestProcessor(st, resolver, extractor, embedder)

	created, _ := st.CreateKnowledge(ctx, "notes.jpg", "")
	_, err := p.Process(ctx, models.MustRecordIDString(created.ID), "")
	require.NoError(t, err)

	assert.True(t, resolver.sawDeadline, "download runs under a deadline")
	assert.True(t, extractor.sawDeadline, "extraction runs under a deadline")
	assert.True(t, embedder.sawDeadline, "embedding runs under a deadline")
}

func TestProcessGrowsTaxonomy(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	st.tax = baseTaxonomy()
	out := validOutput()
	out.Subcategory = "topology"
	out.Topic = "knots"
	out.IsNewSubcategory = true
	p := newTestProcessor(st, &fakeResolver{}, &fakeExtractor{out: out}, &fakeEmbedder{})

	created, _ := st.CreateKnowledge(ctx, "knots.jpg", "")
	id := models.MustRecordIDString(created.ID)

	record, err := p.Process(ctx, id, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, record.Status)

	tax, err := st.GetTaxonomy(ctx)
	require.NoError(t, err)
	assert.True(t, tax.HasSubcategory("Mathematics", "topology"))
	assert.True(t, tax.HasTopic("Mathematics", "topology", "knots"))
}
