package extract

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/raphaelgruber/snapknow/internal/retry"
)

// ParseOutput decodes the model's response into an Output and normalizes its
// labels. Models frequently wrap JSON in markdown fences despite instructions,
// so fences are stripped before decoding. A response that still fails to
// decode, or lacks required fields, is a permanent error.
func ParseOutput(raw string) (*Output, error) {
	cleaned := stripFences(raw)
	if cleaned == "" {
		return nil, retry.Permanent(fmt.Errorf("empty extraction response"))
	}

	var out Output
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, retry.Permanent(fmt.Errorf("malformed extraction response: %w", err))
	}

	out.Category = titleCase(out.Category)
	out.Subcategory = strings.ToLower(strings.TrimSpace(out.Subcategory))
	out.Topic = strings.ToLower(strings.TrimSpace(out.Topic))
	out.Title = strings.TrimSpace(out.Title)
	out.RawData = strings.TrimSpace(out.RawData)
	if out.Topic == "" {
		out.Topic = "general"
	}

	switch {
	case out.Category == "":
		return nil, retry.Permanent(fmt.Errorf("extraction response missing category"))
	case out.Subcategory == "":
		return nil, retry.Permanent(fmt.Errorf("extraction response missing subcategory"))
	case out.Title == "":
		return nil, retry.Permanent(fmt.Errorf("extraction response missing title"))
	case out.RawData == "":
		return nil, retry.Permanent(fmt.Errorf("extraction response missing raw_data"))
	}

	return &out, nil
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag, and trims whitespace.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop the language tag on the opening fence line.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		if first == "" || isLanguageTag(first) {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func isLanguageTag(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// titleCase uppercases the first letter of each word, lowercasing the rest.
func titleCase(s string) string {
	words := strings.Fields(strings.TrimSpace(s))
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
