package embed

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIProvider embeds text through any OpenAI-compatible embeddings
// endpoint. Voyage, Ollama's OpenAI shim, and self-hosted gateways all speak
// this protocol, so one client covers the managed-mode provider surface.
type OpenAIProvider struct {
	client    openai.Client
	model     string
	maxTokens int
}

// OpenAIOptions configure an OpenAIProvider.
type OpenAIOptions struct {
	// APIKey authenticates requests; may be empty for local endpoints.
	APIKey string
	// BaseURL overrides the endpoint; empty uses the OpenAI default.
	BaseURL string
	// Model is the embedding model (default: text-embedding-3-small).
	Model string
	// MaxInputTokens overrides the model token limit; zero resolves from
	// the model table.
	MaxInputTokens int
}

// NewOpenAIProvider creates a provider for an OpenAI-compatible endpoint.
func NewOpenAIProvider(opts OpenAIOptions) *OpenAIProvider {
	if opts.Model == "" {
		opts.Model = "text-embedding-3-small"
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	return &OpenAIProvider{
		client:    openai.NewClient(clientOpts...),
		model:     opts.Model,
		maxTokens: opts.MaxInputTokens,
	}
}

// ID identifies the provider family.
func (p *OpenAIProvider) ID() string { return "openai" }

// Model names the embedding model.
func (p *OpenAIProvider) Model() string { return p.model }

// MaxInputTokens returns the configured cap, or the model table value.
func (p *OpenAIProvider) MaxInputTokens() int {
	if p.maxTokens > 0 {
		return p.maxTokens
	}
	return MaxInputTokensFor(p.model)
}

// EmbedQuery embeds a single query string.
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts index-aligned with the input.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	// The API rejects empty strings; pad them so alignment survives.
	inputs := make([]string, len(texts))
	for i, t := range texts {
		if t == "" {
			t = " "
		}
		inputs[i] = TruncateForModel(t, p.MaxInputTokens())
	}

	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: inputs,
		},
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vecs := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, f := range d.Embedding {
			vec[j] = float32(f)
		}
		vecs[i] = vec
	}
	return vecs, nil
}

// Close releases provider resources.
func (p *OpenAIProvider) Close() error { return nil }
