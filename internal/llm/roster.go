package llm

import (
	"fmt"
	"sort"

	"github.com/raphaelgruber/snapknow/internal/config"
)

// Extractor identifiers clients may select per ingestion request.
const (
	ExtractorWeb   = "web"   // remote API-backed vision model
	ExtractorLocal = "local" // locally hosted vision model
)

// Roster maps extractor identifiers to their vision models. Which entries
// exist depends on configuration: "web" needs an OpenAI key, "local" needs an
// Ollama host.
type Roster struct {
	models    map[string]*Model
	defaultID string
}

// NewRoster builds the extractor roster from configuration. The default
// extractor follows SNAPKNOW_EXTRACT_PROVIDER.
func NewRoster(cfg config.Config) (*Roster, error) {
	models := make(map[string]*Model)

	if cfg.OpenAIAPIKey != "" {
		llm, err := newChatModel(config.ProviderOpenAI, cfg.ExtractModel, cfg)
		if err != nil {
			return nil, fmt.Errorf("bind %s extractor: %w", ExtractorWeb, err)
		}
		models[ExtractorWeb] = &Model{llm: llm, modelName: cfg.ExtractModel}
	}
	if cfg.OllamaHost != "" {
		llm, err := newChatModel(config.ProviderOllama, cfg.ExtractLocalModel, cfg)
		if err != nil {
			return nil, fmt.Errorf("bind %s extractor: %w", ExtractorLocal, err)
		}
		models[ExtractorLocal] = &Model{llm: llm, modelName: cfg.ExtractLocalModel}
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("no extractors available: set OPENAI_API_KEY or OLLAMA_HOST")
	}

	defaultID := ExtractorWeb
	if cfg.ExtractProvider == config.ProviderOllama {
		defaultID = ExtractorLocal
	}
	if _, ok := models[defaultID]; !ok {
		// Fall back to whichever extractor is bound.
		for id := range models {
			defaultID = id
		}
	}

	return &Roster{models: models, defaultID: defaultID}, nil
}

// Select returns the model for an extractor identifier. An empty identifier
// selects the default.
func (r *Roster) Select(id string) (*Model, error) {
	if id == "" {
		id = r.defaultID
	}
	model, ok := r.models[id]
	if !ok {
		return nil, fmt.Errorf("unknown extractor %q (available: %v)", id, r.IDs())
	}
	return model, nil
}

// DefaultID returns the identifier selected when a request names none.
func (r *Roster) DefaultID() string {
	return r.defaultID
}

// IDs lists the bound extractor identifiers, sorted.
func (r *Roster) IDs() []string {
	ids := make([]string, 0, len(r.models))
	for id := range r.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
