package extract

import (
	"fmt"
	"strings"

	"github.com/raphaelgruber/snapknow/internal/models"
)

const extractionSystemPrompt = `You are a knowledge extraction specialist. You analyze images of educational content (notes, slides, diagrams, book pages, screenshots) and extract their knowledge in a structured form.

You MUST respond with a single JSON object and nothing else. No prose, no markdown fences.

The JSON object has exactly these fields:
{
  "category": "top-level subject area, Title Case",
  "subcategory": "narrower area within the category, lowercase",
  "topic": "specific topic within the subcategory, lowercase",
  "title": "short descriptive title for this piece of knowledge",
  "raw_data": "faithful transcription of all text and information visible in the image",
  "paraphrased_data": {
    "summary": "one or two sentence summary of the knowledge",
    "details": [
      {"concept": "key concept name", "expanded_information": "clear explanation of the concept"}
    ]
  },
  "is_new_category": false,
  "is_new_subcategory": false,
  "is_new_topic": false
}

Classification rules:
- Prefer an existing category, subcategory and topic from the provided taxonomy whenever one fits.
- Only propose a new label when nothing in the taxonomy fits, and then set the matching is_new_* flag to true.
- A new category implies a new subcategory and topic under it.
- If the image contains no extractable knowledge, still transcribe what is visible and classify as best you can.`

// extractionUserPrompt renders the current taxonomy into the user message so
// the model classifies against real labels.
func extractionUserPrompt(taxonomy *models.Taxonomy) string {
	var b strings.Builder
	b.WriteString("Known taxonomy:\n")
	if taxonomy == nil || len(taxonomy.Categories) == 0 {
		b.WriteString("(empty; every label you propose is new)\n")
	} else {
		for _, cat := range taxonomy.Categories {
			fmt.Fprintf(&b, "- %s\n", cat.Name)
			for _, sub := range cat.Subcategories {
				fmt.Fprintf(&b, "  - %s", sub.Name)
				if len(sub.Topics) > 0 {
					fmt.Fprintf(&b, ": %s", strings.Join(sub.Topics, ", "))
				}
				b.WriteString("\n")
			}
		}
	}
	b.WriteString("\nExtract the knowledge from this image as the JSON object described in your instructions.")
	return b.String()
}
