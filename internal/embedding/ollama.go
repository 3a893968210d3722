package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

const (
	// DefaultOllamaModel is the embedding model that produces 384-dimensional vectors.
	DefaultOllamaModel = "all-minilm:l6-v2"

	// DefaultOllamaDimension is the dimension for all-minilm:l6-v2.
	DefaultOllamaDimension = 384

	// ollamaBatchSize caps the segments sent in one /api/embed call.
	ollamaBatchSize = 32
)

// OllamaClient embeds segment text with a local Ollama server. Inputs longer
// than the model context are truncated server-side.
type OllamaClient struct {
	api       *api.Client
	model     string
	dimension int
}

var _ Embedder = (*OllamaClient)(nil)

// NewOllamaClient connects to host, or to OLLAMA_HOST when host is empty.
func NewOllamaClient(host, model string, dimension int) (*OllamaClient, error) {
	c, err := ollamaAPI(host)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	if dimension == 0 {
		dimension = DefaultOllamaDimension
	}
	return &OllamaClient{api: c, model: model, dimension: dimension}, nil
}

func ollamaAPI(host string) (*api.Client, error) {
	if host == "" {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama client from environment: %w", err)
		}
		return c, nil
	}
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host %q: %w", host, err)
	}
	return api.NewClient(base, http.DefaultClient), nil
}

func (c *OllamaClient) Model() string  { return c.model }
func (c *OllamaClient) Dimension() int { return c.dimension }

// Embed embeds a single text.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in chunks of ollamaBatchSize. Blank texts get a zero
// vector without a round trip.
func (c *OllamaClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var pending []int
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			out[i] = Zero(c.dimension)
			continue
		}
		pending = append(pending, i)
	}

	truncate := true
	for start := 0; start < len(pending); start += ollamaBatchSize {
		idx := pending[start:min(start+ollamaBatchSize, len(pending))]
		input := make([]string, len(idx))
		for j, i := range idx {
			input[j] = texts[i]
		}

		resp, err := c.api.Embed(ctx, &api.EmbedRequest{
			Model:    c.model,
			Input:    input,
			Truncate: &truncate,
		})
		if err != nil {
			return nil, fmt.Errorf("ollama embed %d texts with %s: %w", len(input), c.model, err)
		}
		if len(resp.Embeddings) != len(input) {
			return nil, fmt.Errorf("ollama returned %d embeddings for %d texts", len(resp.Embeddings), len(input))
		}
		if err := checkDimensions(resp.Embeddings, c.dimension); err != nil {
			return nil, fmt.Errorf("%w (model: %s)", err, c.model)
		}
		for j, i := range idx {
			out[i] = resp.Embeddings[j]
		}
	}
	return out, nil
}
