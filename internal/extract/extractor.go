// Package extract turns images into structured knowledge using a multimodal
// LLM.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/raphaelgruber/snapknow/internal/llm"
	"github.com/raphaelgruber/snapknow/internal/models"
	"github.com/raphaelgruber/snapknow/internal/retry"
)

// Output is the structured result of extracting one image.
type Output struct {
	Category    string            `json:"category"`
	Subcategory string            `json:"subcategory"`
	Topic       string            `json:"topic"`
	Title       string            `json:"title"`
	RawData     string            `json:"raw_data"`
	Paraphrased models.Paraphrase `json:"paraphrased_data"`

	// The model sets these when it proposes labels that are not in the
	// taxonomy it was given. Unflagged unknown labels are rejected.
	IsNewCategory    bool `json:"is_new_category"`
	IsNewSubcategory bool `json:"is_new_subcategory"`
	IsNewTopic       bool `json:"is_new_topic"`
}

// Extractor extracts structured knowledge from an image.
type Extractor interface {
	Extract(ctx context.Context, image []byte, mimeType string, taxonomy *models.Taxonomy) (*Output, error)
}

// VisionExtractor implements Extractor over a multimodal chat model.
type VisionExtractor struct {
	model  *llm.Model
	logger *slog.Logger
}

// NewVisionExtractor wraps a vision-capable model as an Extractor.
func NewVisionExtractor(model *llm.Model, logger *slog.Logger) *VisionExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &VisionExtractor{model: model, logger: logger}
}

// Extract sends the image and the current taxonomy to the model and parses
// the structured response. Taxonomy violations and malformed responses are
// permanent errors; transport failures pass through for retry classification.
func (v *VisionExtractor) Extract(ctx context.Context, image []byte, mimeType string, taxonomy *models.Taxonomy) (*Output, error) {
	if len(image) == 0 {
		return nil, retry.Permanent(fmt.Errorf("empty image"))
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, extractionSystemPrompt),
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.BinaryPart(mimeType, image),
				llms.TextPart(extractionUserPrompt(taxonomy)),
			},
		},
	}

	start := time.Now()
	resp, err := v.model.Raw().GenerateContent(ctx, messages)
	if err != nil {
		v.logger.Warn("extraction call failed", "model", v.model.Model(), "error", err)
		return nil, fmt.Errorf("extract: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("extract: no response choices")
	}

	out, err := ParseOutput(resp.Choices[0].Content)
	if err != nil {
		return nil, err
	}
	if err := ValidateAgainstTaxonomy(out, taxonomy); err != nil {
		return nil, err
	}

	v.logger.Debug("extraction complete",
		"model", v.model.Model(),
		"category", out.Category,
		"subcategory", out.Subcategory,
		"topic", out.Topic,
		"duration_ms", time.Since(start).Milliseconds())
	return out, nil
}

// ValidateAgainstTaxonomy rejects labels that are neither in the taxonomy nor
// flagged as new by the model. These are permanent: the same image and
// taxonomy produce the same labels, so retrying cannot help.
func ValidateAgainstTaxonomy(out *Output, taxonomy *models.Taxonomy) error {
	if taxonomy == nil {
		taxonomy = &models.Taxonomy{}
	}

	if !out.IsNewCategory && !taxonomy.HasCategory(out.Category) {
		return retry.Permanent(fmt.Errorf("category %q not in taxonomy and not flagged as new", out.Category))
	}
	// A new category implies its subcategory and topic are new too.
	if out.IsNewCategory {
		return nil
	}

	if !out.IsNewSubcategory && !taxonomy.HasSubcategory(out.Category, out.Subcategory) {
		return retry.Permanent(fmt.Errorf("subcategory %q not in taxonomy under %q and not flagged as new", out.Subcategory, out.Category))
	}
	if out.IsNewSubcategory {
		return nil
	}

	if !out.IsNewTopic && !taxonomy.HasTopic(out.Category, out.Subcategory, out.Topic) {
		return retry.Permanent(fmt.Errorf("topic %q not in taxonomy under %q/%q and not flagged as new", out.Topic, out.Category, out.Subcategory))
	}
	return nil
}
