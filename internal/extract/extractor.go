// Package extract annotates transcript segments with named entities and topics.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/vidrag/internal/llm"
	"github.com/raphaelgruber/vidrag/internal/models"
)

// Annotations are the normalized entity and topic sets for one text.
type Annotations struct {
	Entities []string
	Topics   []string
}

// Empty reports whether nothing was found.
func (a Annotations) Empty() bool {
	return len(a.Entities) == 0 && len(a.Topics) == 0
}

func normalized(entities, topics []string) Annotations {
	return Annotations{Entities: models.NormalizeSet(entities), Topics: models.NormalizeSet(topics)}
}

// Extractor finds entities and topics in a passage of text.
type Extractor interface {
	Extract(ctx context.Context, text string) (Annotations, error)
}

// LLM extracts annotations with a chat model.
type LLM struct {
	model *llm.Model
}

// NewLLM creates an LLM-backed extractor.
func NewLLM(model *llm.Model) *LLM {
	return &LLM{model: model}
}

// Extract asks the model for ENTITY/TOPIC lines.
func (e *LLM) Extract(ctx context.Context, text string) (Annotations, error) {
	a, err := e.model.ExtractEntitiesAndTopics(ctx, text)
	if err != nil {
		return Annotations{}, fmt.Errorf("llm extract: %w", err)
	}
	return normalized(a.Entities, a.Topics), nil
}

// Chain tries extractors in order and returns the first non-empty result.
// A failing extractor is skipped; the last error is returned only when every
// extractor failed.
type Chain struct {
	extractors []Extractor
}

// NewChain builds a fallback chain.
func NewChain(extractors ...Extractor) *Chain {
	return &Chain{extractors: extractors}
}

// Extract runs the chain.
func (c *Chain) Extract(ctx context.Context, text string) (Annotations, error) {
	var (
		errs      []error
		succeeded bool
	)
	for i, ex := range c.extractors {
		a, err := ex.Extract(ctx, text)
		if err != nil {
			slog.Warn("extractor failed, trying next", "index", i, "error", err, "fatal", errors.Is(err, llm.ErrFatalAPI))
			errs = append(errs, err)
			continue
		}
		succeeded = true
		if !a.Empty() {
			return a, nil
		}
	}
	if !succeeded && len(errs) > 0 {
		return Annotations{}, errors.Join(errs...)
	}
	return Annotations{Entities: []string{}, Topics: []string{}}, nil
}
