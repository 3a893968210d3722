// Package embedding provides text embedding generation with multiple backend support.
package embedding

import (
	"context"
	"fmt"
)

// Embedder defines the interface for text embedding providers.
type Embedder interface {
	// Embed generates an embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the name of the embedding model being used.
	Model() string

	// Dimension returns the embedding vector dimension.
	// It must match the HNSW index dimension in the SurrealDB schema.
	Dimension() int
}

// ProviderType identifies the embedding provider.
type ProviderType string

const (
	// ProviderOllama uses a local Ollama server.
	ProviderOllama ProviderType = "ollama"

	// ProviderOpenAI uses the OpenAI embeddings API.
	ProviderOpenAI ProviderType = "openai"

	// ProviderVoyage uses the Voyage AI embeddings API.
	ProviderVoyage ProviderType = "voyage"

	// ProviderBedrock uses Amazon Titan text embeddings on Bedrock.
	ProviderBedrock ProviderType = "bedrock"

	// ProviderHash uses the offline feature-hashing embedder.
	ProviderHash ProviderType = "hash"
)

// Config holds configuration for creating an Embedder.
type Config struct {
	Provider ProviderType

	// Model is the provider-specific model name. Empty selects the provider default.
	Model string

	// Dimension is the required output dimension. 0 selects the provider default.
	Dimension int

	OllamaHost   string
	OpenAIAPIKey string
	VoyageAPIKey string
	AWSRegion    string
}

// New creates an Embedder based on the provided configuration.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	switch cfg.Provider {
	case ProviderOllama, "":
		return NewOllamaClient(cfg.OllamaHost, cfg.Model, cfg.Dimension)

	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider requires API key")
		}
		return NewOpenAIClient(cfg.OpenAIAPIKey, cfg.Model, cfg.Dimension), nil

	case ProviderVoyage:
		if cfg.VoyageAPIKey == "" {
			return nil, fmt.Errorf("voyage provider requires API key")
		}
		return NewVoyageClient(cfg.VoyageAPIKey, cfg.Model, cfg.Dimension), nil

	case ProviderBedrock:
		return NewBedrockClient(ctx, cfg.AWSRegion, cfg.Model, cfg.Dimension)

	case ProviderHash:
		return NewHashEmbedder(cfg.Dimension), nil

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}

// checkDimensions verifies every vector has the expected length.
func checkDimensions(vectors [][]float32, want int) error {
	for i, v := range vectors {
		if len(v) != want {
			return fmt.Errorf("embedding %d dimension mismatch: got %d, want %d", i, len(v), want)
		}
	}
	return nil
}
