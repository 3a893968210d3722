package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultVoyageModel is the default Voyage AI embedding model.
	DefaultVoyageModel = "voyage-3"

	// DefaultVoyageDimension is the dimension for voyage-3.
	DefaultVoyageDimension = 1024

	// VoyageAPIEndpoint is the Voyage AI API endpoint.
	VoyageAPIEndpoint = "https://api.voyageai.com/v1/embeddings"

	// voyageBatchSize is the API limit on inputs per request.
	voyageBatchSize = 128
)

// VoyageClient embeds text through the Voyage AI REST API.
type VoyageClient struct {
	apiKey    string
	model     string
	dimension int
	endpoint  string
	http      *http.Client
}

var _ Embedder = (*VoyageClient)(nil)

// NewVoyageClient creates a Voyage AI embedding client.
func NewVoyageClient(apiKey, model string, dimension int) *VoyageClient {
	if model == "" {
		model = DefaultVoyageModel
	}
	if dimension == 0 {
		dimension = DefaultVoyageDimension
	}
	return &VoyageClient{
		apiKey:    apiKey,
		model:     model,
		dimension: dimension,
		endpoint:  VoyageAPIEndpoint,
		http:      &http.Client{Timeout: time.Minute},
	}
}

// WithEndpoint points the client at a different API URL.
func (c *VoyageClient) WithEndpoint(endpoint string) *VoyageClient {
	c.endpoint = endpoint
	return c
}

func (c *VoyageClient) Model() string  { return c.model }
func (c *VoyageClient) Dimension() int { return c.dimension }

// Embed embeds a single text.
func (c *VoyageClient) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts, splitting them into API-sized requests.
func (c *VoyageClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += voyageBatchSize {
		chunk := texts[start:min(start+voyageBatchSize, len(texts))]
		vecs, err := c.post(ctx, chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	if err := checkDimensions(out, c.dimension); err != nil {
		return nil, fmt.Errorf("%w (model: %s)", err, c.model)
	}
	return out, nil
}

type voyageRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type voyageResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// post sends one request and returns vectors in input order.
func (c *VoyageClient) post(ctx context.Context, input []string) ([][]float32, error) {
	body, err := json.Marshal(voyageRequest{Input: input, Model: c.model})
	if err != nil {
		return nil, fmt.Errorf("marshal voyage request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create voyage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voyage request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("voyage embed: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var decoded voyageResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode voyage response: %w", err)
	}
	if len(decoded.Data) != len(input) {
		return nil, fmt.Errorf("voyage returned %d embeddings for %d texts", len(decoded.Data), len(input))
	}

	vecs := make([][]float32, len(input))
	for _, d := range decoded.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, fmt.Errorf("voyage embedding index %d out of range", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}
