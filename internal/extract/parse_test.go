package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/snapknow/internal/models"
	"github.com/raphaelgruber/snapknow/internal/retry"
)

const validResponse = `{
	"category": "mathematics",
	"subcategory": "Geometry",
	"topic": "Triangles",
	"title": "Pythagorean Theorem",
	"raw_data": "a^2 + b^2 = c^2 for right triangles",
	"paraphrased_data": {
		"summary": "Relates the side lengths of right triangles.",
		"details": [
			{"concept": "hypotenuse", "expanded_information": "The side opposite the right angle."}
		]
	},
	"is_new_category": false,
	"is_new_subcategory": false,
	"is_new_topic": false
}`

func TestParseOutputNormalizesLabels(t *testing.T) {
	out, err := ParseOutput(validResponse)
	require.NoError(t, err)

	assert.Equal(t, "Mathematics", out.Category, "category is Title Case")
	assert.Equal(t, "geometry", out.Subcategory, "subcategory is lowercase")
	assert.Equal(t, "triangles", out.Topic, "topic is lowercase")
	assert.Equal(t, "Pythagorean Theorem", out.Title)
	assert.Equal(t, "Relates the side lengths of right triangles.", out.Paraphrased.Summary)
	require.Len(t, out.Paraphrased.Details, 1)
	assert.Equal(t, "hypotenuse", out.Paraphrased.Details[0].Concept)
}

func TestParseOutputStripsFences(t *testing.T) {
	for name, wrapped := range map[string]string{
		"json fence":  "```json\n" + validResponse + "\n```",
		"bare fence":  "```\n" + validResponse + "\n```",
		"whitespace":  "\n\n  " + validResponse + "  \n",
		"inline open": "```json\n" + validResponse + "\n```\n",
	} {
		t.Run(name, func(t *testing.T) {
			out, err := ParseOutput(wrapped)
			require.NoError(t, err)
			assert.Equal(t, "Mathematics", out.Category)
		})
	}
}

func TestParseOutputTopicDefaultsToGeneral(t *testing.T) {
	out, err := ParseOutput(`{
		"category": "History",
		"subcategory": "rome",
		"title": "Punic Wars",
		"raw_data": "Three wars between Rome and Carthage."
	}`)
	require.NoError(t, err)
	assert.Equal(t, "general", out.Topic)
}

func TestParseOutputRejectsMalformed(t *testing.T) {
	for name, raw := range map[string]string{
		"empty":        "",
		"not json":     "I could not read the image, sorry.",
		"missing text": `{"category": "Math", "subcategory": "algebra", "title": "x"}`,
		"no category":  `{"subcategory": "algebra", "title": "x", "raw_data": "y"}`,
		"no title":     `{"category": "Math", "subcategory": "algebra", "raw_data": "y"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseOutput(raw)
			require.Error(t, err)
			assert.Equal(t, retry.Fatal, retry.DefaultClassifier(err), "parse failures must not be retried")
		})
	}
}

func TestValidateAgainstTaxonomy(t *testing.T) {
	tax := &models.Taxonomy{Categories: []models.TaxonomyCategory{
		{
			Name: "Mathematics",
			Subcategories: []models.TaxonomySubcategory{
				{Name: "geometry", Topics: []string{"triangles"}},
			},
		},
	}}

	tests := []struct {
		name    string
		out     Output
		wantErr bool
	}{
		{
			name: "known labels pass",
			out:  Output{Category: "Mathematics", Subcategory: "geometry", Topic: "triangles"},
		},
		{
			name:    "unknown category without flag fails",
			out:     Output{Category: "Astrology", Subcategory: "houses", Topic: "general"},
			wantErr: true,
		},
		{
			name: "new category flag admits whole branch",
			out:  Output{Category: "Physics", Subcategory: "mechanics", Topic: "momentum", IsNewCategory: true},
		},
		{
			name:    "unknown subcategory without flag fails",
			out:     Output{Category: "Mathematics", Subcategory: "topology", Topic: "knots"},
			wantErr: true,
		},
		{
			name: "new subcategory flag admits its topic",
			out:  Output{Category: "Mathematics", Subcategory: "topology", Topic: "knots", IsNewSubcategory: true},
		},
		{
			name:    "unknown topic without flag fails",
			out:     Output{Category: "Mathematics", Subcategory: "geometry", Topic: "fractals"},
			wantErr: true,
		},
		{
			name: "new topic flag passes",
			out:  Output{Category: "Mathematics", Subcategory: "geometry", Topic: "fractals", IsNewTopic: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAgainstTaxonomy(&tt.out, tax)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, retry.Fatal, retry.DefaultClassifier(err), "taxonomy violations must not be retried")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
