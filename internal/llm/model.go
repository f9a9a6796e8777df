package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/raphaelgruber/snapknow/internal/config"
)

// Model wraps a langchaingo chat model for text generation.
type Model struct {
	llm       llms.Model
	modelName string
}

// NewModel creates the answer-synthesis model from configuration.
func NewModel(cfg config.Config) (*Model, error) {
	llm, err := newChatModel(cfg.LLMProvider, cfg.LLMModel, cfg)
	if err != nil {
		return nil, err
	}
	return &Model{llm: llm, modelName: cfg.LLMModel}, nil
}

func newChatModel(provider config.Provider, modelName string, cfg config.Config) (llms.Model, error) {
	switch provider {
	case config.ProviderOllama:
		model, err := ollama.New(
			ollama.WithModel(modelName),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}
		return model, nil

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err := openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(modelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}
		return model, nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

// Raw returns the underlying langchaingo model for multimodal calls.
func (m *Model) Raw() llms.Model {
	return m.llm
}

// Model returns the model name.
func (m *Model) Model() string {
	return m.modelName
}

// Generate generates text based on a prompt.
func (m *Model) Generate(ctx context.Context, prompt string) (string, error) {
	response, err := llms.GenerateFromSinglePrompt(ctx, m.llm, prompt)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return response, nil
}

// GenerateWithSystem generates text with a system prompt.
func (m *Model) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	response, err := m.llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generate with system: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	return response.Choices[0].Content, nil
}

const synthesisSystemPrompt = `You are a helpful knowledge assistant. Answer the user's question based ONLY on the provided context.
If the context doesn't contain enough information to answer the question, say so.
Be concise and cite specific information from the context where relevant.`

// SynthesizeAnswer generates an answer from retrieved context and a query.
func (m *Model) SynthesizeAnswer(ctx context.Context, query string, knowledgeContext string) (string, error) {
	return m.GenerateWithSystem(ctx, synthesisSystemPrompt, synthesisUserPrompt(query, knowledgeContext))
}

// StreamAnswer generates an answer like SynthesizeAnswer but delivers it
// incrementally through onChunk as tokens arrive. Returning an error from
// onChunk aborts the generation.
func (m *Model) StreamAnswer(ctx context.Context, query string, knowledgeContext string, onChunk func(chunk string) error) error {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, synthesisSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, synthesisUserPrompt(query, knowledgeContext)),
	}

	_, err := m.llm.GenerateContent(ctx, messages,
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			return onChunk(string(chunk))
		}),
	)
	if err != nil {
		return fmt.Errorf("stream answer: %w", err)
	}
	return nil
}

func synthesisUserPrompt(query, knowledgeContext string) string {
	return fmt.Sprintf(`Context:
%s

Question: %s

Answer:`, knowledgeContext, query)
}
