package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/snapknow/internal/models"
)

// CreateKnowledge inserts a new pending record for an image source.
func (c *Client) CreateKnowledge(ctx context.Context, image, url string) (*models.Knowledge, error) {
	id := uuid.New().String()
	results, err := surrealdb.Query[[]models.Knowledge](ctx, c.db, `
		CREATE type::record("knowledge", $id) CONTENT {
			image: $image,
			url: $url,
			status: "pending"
		} RETURN AFTER
	`, map[string]any{"id": id, "image": image, "url": url})
	if err != nil {
		return nil, fmt.Errorf("create knowledge: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create knowledge: empty result")
	}
	return &(*results)[0].Result[0], nil
}

// GetKnowledge retrieves a record by ID. Returns ErrNotFound if missing.
func (c *Client) GetKnowledge(ctx context.Context, id string) (*models.Knowledge, error) {
	results, err := surrealdb.Query[[]models.Knowledge](ctx, c.db, `
		SELECT * FROM type::record("knowledge", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get knowledge: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, ErrNotFound
	}
	return &(*results)[0].Result[0], nil
}

// GetKnowledgeByImage looks a record up by its image locator.
// Returns (nil, nil) when no record references the locator.
func (c *Client) GetKnowledgeByImage(ctx context.Context, image string) (*models.Knowledge, error) {
	results, err := surrealdb.Query[[]models.Knowledge](ctx, c.db, `
		SELECT * FROM knowledge WHERE image = $image LIMIT 1
	`, map[string]any{"image": image})
	if err != nil {
		return nil, fmt.Errorf("get knowledge by image: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

func filterClauses(filter models.ListFilter, vars map[string]any) string {
	var clauses []string
	if filter.Category != "" && !strings.EqualFold(filter.Category, "all") {
		clauses = append(clauses, "category = $category")
		vars["category"] = filter.Category
	}
	if filter.Subcategory != "" && !strings.EqualFold(filter.Subcategory, "all") {
		clauses = append(clauses, "subcategory = $subcategory")
		vars["subcategory"] = filter.Subcategory
	}
	if filter.Topic != "" && !strings.EqualFold(filter.Topic, "all") {
		clauses = append(clauses, "topic = $topic")
		vars["topic"] = filter.Topic
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = $status")
		vars["status"] = string(filter.Status)
	}
	if len(clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(clauses, " AND ")
}

// ListKnowledge returns one page of records, newest first, plus the total
// count matching the filter.
func (c *Client) ListKnowledge(ctx context.Context, filter models.ListFilter, page models.Page) ([]models.Knowledge, int, error) {
	if page.Size <= 0 {
		page.Size = 20
	}
	vars := map[string]any{"limit": page.Size, "offset": page.Offset()}
	where := filterClauses(filter, vars)

	sql := fmt.Sprintf(`
		SELECT * FROM knowledge %s ORDER BY created_at DESC LIMIT $limit START $offset
	`, where)
	results, err := surrealdb.Query[[]models.Knowledge](ctx, c.db, sql, vars)
	if err != nil {
		return nil, 0, fmt.Errorf("list knowledge: %w", err)
	}

	countSQL := fmt.Sprintf(`SELECT count() AS total FROM knowledge %s GROUP ALL`, where)
	counts, err := surrealdb.Query[[]struct {
		Total int `json:"total"`
	}](ctx, c.db, countSQL, vars)
	if err != nil {
		return nil, 0, fmt.Errorf("count knowledge: %w", err)
	}

	var records []models.Knowledge
	if results != nil && len(*results) > 0 {
		records = (*results)[0].Result
	}
	total := 0
	if counts != nil && len(*counts) > 0 && len((*counts)[0].Result) > 0 {
		total = (*counts)[0].Result[0].Total
	}
	return records, total, nil
}

// FailedKnowledge returns failed records, newest first, optionally filtered
// by category and bounded by limit.
func (c *Client) FailedKnowledge(ctx context.Context, category string, limit int) ([]models.Knowledge, error) {
	if limit <= 0 {
		limit = 100
	}
	vars := map[string]any{"limit": limit}
	categoryClause := ""
	if category != "" {
		categoryClause = "AND category = $category"
		vars["category"] = category
	}
	sql := fmt.Sprintf(`
		SELECT * FROM knowledge WHERE status = "failed" %s ORDER BY created_at DESC LIMIT $limit
	`, categoryClause)

	results, err := surrealdb.Query[[]models.Knowledge](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed knowledge: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.Knowledge{}, nil
	}
	return (*results)[0].Result, nil
}

// TransitionFields carries the field updates applied together with a status
// transition. Nil pointers leave the stored value untouched.
type TransitionFields struct {
	Title       *string
	Category    *string
	Subcategory *string
	Topic       *string
	RawData     *string
	Paraphrased *models.Paraphrase
	Embedding   []float32

	// LastError sets the diagnostic text; ClearError nulls it. Setting both
	// is a programming error and ClearError wins.
	LastError  *string
	ClearError bool
	Comments   *string

	// RetryDelta is added to retry_count. It reflects attempts actually
	// consumed by the caller, so retry_count accumulates across runs.
	RetryDelta int
}

// Transition atomically moves a record from one of the guard statuses to the
// target status, applying field updates in the same statement. If the record
// is currently outside the guard set the update matches nothing and
// ErrConflict is returned; a concurrent processor owns the record. Returns
// ErrNotFound if the id does not exist at all.
func (c *Client) Transition(ctx context.Context, id string, guards []models.Status, to models.Status, fields TransitionFields) (*models.Knowledge, error) {
	guardStrs := make([]string, len(guards))
	for i, g := range guards {
		guardStrs[i] = string(g)
	}

	vars := map[string]any{
		"id":     id,
		"to":     string(to),
		"guards": guardStrs,
	}

	set := []string{"status = $to", "updated_at = time::now()"}
	addField := func(column, param string, value any) {
		set = append(set, fmt.Sprintf("%s = $%s", column, param))
		vars[param] = value
	}

	if fields.Title != nil {
		addField("title", "title", *fields.Title)
	}
	if fields.Category != nil {
		addField("category", "category", *fields.Category)
	}
	if fields.Subcategory != nil {
		addField("subcategory", "subcategory", *fields.Subcategory)
	}
	if fields.Topic != nil {
		addField("topic", "topic", *fields.Topic)
	}
	if fields.RawData != nil {
		addField("raw_data", "raw_data", *fields.RawData)
	}
	if fields.Paraphrased != nil {
		addField("paraphrased_data", "paraphrased_data", *fields.Paraphrased)
	}
	if fields.Embedding != nil {
		addField("embedding", "embedding", fields.Embedding)
	}
	switch {
	case fields.ClearError:
		set = append(set, "last_error = NONE", "comments = NONE")
	case fields.LastError != nil:
		addField("last_error", "last_error", *fields.LastError)
		if fields.Comments != nil {
			addField("comments", "comments", *fields.Comments)
		}
	}
	if fields.RetryDelta != 0 {
		set = append(set, "retry_count += $retry_delta")
		vars["retry_delta"] = fields.RetryDelta
	}

	sql := fmt.Sprintf(`
		UPDATE type::record("knowledge", $id)
		SET %s
		WHERE status IN $guards
		RETURN AFTER
	`, strings.Join(set, ", "))

	results, err := surrealdb.Query[[]models.Knowledge](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("transition to %s: %w", to, wrapQueryError(err))
	}
	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return &(*results)[0].Result[0], nil
	}

	// Guard did not match: distinguish a missing record from a lost race.
	if _, err := c.GetKnowledge(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrConflict
}

// ResetKnowledge returns an existing record to a clean pending state for a
// brand-new ingestion of the same source: extraction fields cleared, embedding
// nulled, retry_count back to zero.
func (c *Client) ResetKnowledge(ctx context.Context, id string) (*models.Knowledge, error) {
	results, err := surrealdb.Query[[]models.Knowledge](ctx, c.db, `
		UPDATE type::record("knowledge", $id) SET
			status = "pending",
			category = "",
			subcategory = "",
			topic = "general",
			title = "",
			raw_data = "",
			paraphrased_data = NONE,
			embedding = NONE,
			last_error = NONE,
			comments = $comments,
			retry_count = 0,
			updated_at = time::now()
		RETURN AFTER
	`, map[string]any{"id": id, "comments": "reprocessing: source already existed"})
	if err != nil {
		return nil, fmt.Errorf("reset knowledge: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, ErrNotFound
	}
	return &(*results)[0].Result[0], nil
}

// DeleteKnowledge removes a record. Returns ErrNotFound for unknown ids.
func (c *Client) DeleteKnowledge(ctx context.Context, id string) error {
	if _, err := c.GetKnowledge(ctx, id); err != nil {
		return err
	}
	_, err := surrealdb.Query[any](ctx, c.db, `
		DELETE type::record("knowledge", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("delete knowledge: %w", err)
	}
	return nil
}

// SearchByVector runs filtered approximate nearest-neighbor search over
// completed records. Results are ordered by descending cosine similarity,
// truncated to limit, and exclude hits below threshold.
func (c *Client) SearchByVector(ctx context.Context, embedding []float32, filter models.ListFilter, threshold float64, limit int) ([]models.SearchHit, error) {
	if limit <= 0 {
		limit = 10
	}
	vars := map[string]any{
		"emb":       embedding,
		"threshold": threshold,
		"limit":     limit,
	}
	filter.Status = ""
	where := filterClauses(filter, vars)
	extra := ""
	if where != "" {
		extra = "AND " + strings.TrimPrefix(where, "WHERE ")
	}

	// KNN over the HNSW index with ef=40; candidate set is 2x limit so the
	// threshold filter does not starve the result list.
	sql := fmt.Sprintf(`
		SELECT *, vector::similarity::cosine(embedding, $emb) AS similarity
		FROM knowledge
		WHERE embedding <|%d,40|> $emb
			AND status = "completed"
			AND vector::similarity::cosine(embedding, $emb) >= $threshold
			%s
		ORDER BY similarity DESC
		LIMIT $limit
	`, limit*2, extra)

	results, err := surrealdb.Query[[]models.SearchHit](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.SearchHit{}, nil
	}
	return (*results)[0].Result, nil
}

// taxonomyDoc is the stored shape of the taxonomy config document.
type taxonomyDoc struct {
	Categories []models.TaxonomyCategory `json:"categories"`
}

// GetTaxonomy reads the taxonomy document. An absent document yields an
// empty taxonomy, not an error.
func (c *Client) GetTaxonomy(ctx context.Context) (*models.Taxonomy, error) {
	results, err := surrealdb.Query[[]taxonomyDoc](ctx, c.db, `
		SELECT categories FROM type::record("config", "taxonomy")
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("get taxonomy: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return &models.Taxonomy{}, nil
	}
	return &models.Taxonomy{Categories: (*results)[0].Result[0].Categories}, nil
}

// SaveTaxonomy replaces the taxonomy document.
func (c *Client) SaveTaxonomy(ctx context.Context, taxonomy *models.Taxonomy) error {
	categories := taxonomy.Categories
	if categories == nil {
		categories = []models.TaxonomyCategory{}
	}
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("config", "taxonomy") SET
			categories = $categories,
			updated_at = time::now()
	`, map[string]any{"categories": categories})
	if err != nil {
		return fmt.Errorf("save taxonomy: %w", err)
	}
	return nil
}
