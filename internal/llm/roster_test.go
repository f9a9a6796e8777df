package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/snapknow/internal/config"
)

func rosterConfig() config.Config {
	return config.Config{
		ExtractProvider:   config.ProviderOpenAI,
		ExtractModel:      "gpt-4o",
		ExtractLocalModel: "llama3.2-vision",
		OpenAIAPIKey:      "test-key",
		OllamaHost:        "http://localhost:11434",
	}
}

func TestRosterBindsConfiguredExtractors(t *testing.T) {
	roster, err := NewRoster(rosterConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{ExtractorLocal, ExtractorWeb}, roster.IDs())
	assert.Equal(t, ExtractorWeb, roster.DefaultID())

	web, err := roster.Select("")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", web.Model(), "empty identifier selects the default")

	local, err := roster.Select(ExtractorLocal)
	require.NoError(t, err)
	assert.Equal(t, "llama3.2-vision", local.Model())

	_, err = roster.Select("nope")
	assert.Error(t, err)
}

func TestRosterDefaultFollowsProvider(t *testing.T) {
	cfg := rosterConfig()
	cfg.ExtractProvider = config.ProviderOllama
	roster, err := NewRoster(cfg)
	require.NoError(t, err)
	assert.Equal(t, ExtractorLocal, roster.DefaultID())
}

func TestRosterFallsBackWhenDefaultUnbound(t *testing.T) {
	cfg := rosterConfig()
	cfg.OpenAIAPIKey = ""
	roster, err := NewRoster(cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{ExtractorLocal}, roster.IDs())
	assert.Equal(t, ExtractorLocal, roster.DefaultID(), "default falls back to the bound extractor")
}

func TestRosterRequiresAtLeastOneExtractor(t *testing.T) {
	cfg := rosterConfig()
	cfg.OpenAIAPIKey = ""
	cfg.OllamaHost = ""
	_, err := NewRoster(cfg)
	assert.Error(t, err)
}
