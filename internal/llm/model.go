// Package llm wraps langchaingo chat models for transcript annotation.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/vidrag/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Model annotates transcript passages with a langchaingo chat model.
type Model struct {
	chat llms.Model
	name string
}

// NewModel builds the chat model selected by cfg.LLMProvider.
func NewModel(cfg config.Config) (*Model, error) {
	chat, err := newChat(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s model: %w", cfg.LLMProvider, err)
	}
	return NewModelFrom(chat, cfg.LLMModel), nil
}

func newChat(cfg config.Config) (llms.Model, error) {
	switch cfg.LLMProvider {
	case config.ProviderOllama:
		return ollama.New(ollama.WithModel(cfg.LLMModel), ollama.WithServerURL(cfg.OllamaHost))
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, errors.New("OpenAI API key required")
		}
		return openai.New(openai.WithToken(cfg.OpenAIAPIKey), openai.WithModel(cfg.LLMModel))
	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, errors.New("Anthropic API key required")
		}
		return anthropic.New(anthropic.WithToken(cfg.AnthropicAPIKey), anthropic.WithModel(cfg.LLMModel))
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.LLMProvider)
	}
}

// NewModelFrom wraps an existing langchaingo model.
func NewModelFrom(chat llms.Model, name string) *Model {
	return &Model{chat: chat, name: name}
}

// Model returns the LLM model name.
func (m *Model) Model() string { return m.name }

// GenerateWithSystem sends a system and a user message at temperature 0 and
// returns the first choice.
func (m *Model) GenerateWithSystem(ctx context.Context, system, user string) (string, error) {
	start := time.Now()
	resp, err := m.chat.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}, llms.WithTemperature(0))
	if err != nil {
		return "", fmt.Errorf("generate: %w", wrapFatalError(err))
	}
	slog.Debug("llm generation complete", "model", m.name, "duration_ms", time.Since(start).Milliseconds())

	if len(resp.Choices) == 0 {
		return "", errors.New("no response choices")
	}
	return resp.Choices[0].Content, nil
}

// Annotations are the entities and topics the model found in a passage.
type Annotations struct {
	Entities []string
	Topics   []string
}

const annotateSystemPrompt = `You annotate passages of video transcripts for search.

Extract:
- ENTITY: named people, organizations, places and products mentioned in the passage
- TOPIC: short lowercase labels (1-3 words) for what the passage is about

Output format (one per line, nothing else):
ENTITY|name
TOPIC|label

Guidelines:
- Keep entity names as written in the passage (e.g. "Elon Musk", "SpaceX")
- Emit at most 8 entities and 5 topics
- If nothing applies, output nothing`

// ExtractEntitiesAndTopics asks the model to annotate one transcript passage.
func (m *Model) ExtractEntitiesAndTopics(ctx context.Context, text string) (Annotations, error) {
	userPrompt := fmt.Sprintf("Passage:\n%s\n\nAnnotations:", text)

	out, err := m.GenerateWithSystem(ctx, annotateSystemPrompt, userPrompt)
	if err != nil {
		return Annotations{}, err
	}
	return ParseAnnotations(out), nil
}

// ParseAnnotations reads ENTITY|name and TOPIC|label lines, ignoring anything else.
func ParseAnnotations(output string) Annotations {
	var a Annotations
	for _, line := range strings.Split(output, "\n") {
		line = strings.Trim(strings.TrimSpace(line), "-* ")
		kind, value, ok := strings.Cut(line, "|")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if value == "" {
			continue
		}
		switch strings.ToUpper(strings.TrimSpace(kind)) {
		case "ENTITY":
			a.Entities = append(a.Entities, value)
		case "TOPIC":
			a.Topics = append(a.Topics, strings.ToLower(value))
		}
	}
	return a
}
