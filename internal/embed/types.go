// Package embed defines the embedding provider contract and the embedding
// lifecycle helpers: bounded retry with exponential backoff, per-item status
// assignment, query memoization, and model token limits.
package embed

import (
	"context"
)

// Status records the embedding outcome for a stored item. The status is
// always assigned; a chunk whose embedding failed is still written so
// full-text search can find it.
type Status string

const (
	// StatusSuccess means a vector was computed and stored.
	StatusSuccess Status = "success"
	// StatusFailed means retries were exhausted; the item has no vector.
	StatusFailed Status = "failed"
	// StatusPending means embedding was not attempted (disabled or
	// deferred for the item).
	StatusPending Status = "pending"
)

// Provider computes embedding vectors. Implementations are external
// collaborators (HTTP services or deterministic local fallbacks); the
// pipeline owns retry, batching, and status, never vector math.
type Provider interface {
	// ID identifies the provider family, e.g. "openai" or "static".
	ID() string
	// Model names the embedding model.
	Model() string
	// MaxInputTokens is the provider's input cap; zero means unknown and
	// the model table decides.
	MaxInputTokens() int
	// EmbedQuery embeds a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch embeds texts and returns vectors index-aligned with the
	// input slice.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Close releases provider resources.
	Close() error
}
