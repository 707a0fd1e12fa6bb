package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// StaticProvider generates embeddings with a hash-based scheme. It needs no
// network and no model files, which makes it the offline fallback and the
// test double of choice. Vectors are deterministic for equal input.
type StaticProvider struct {
	dims int

	mu     sync.RWMutex
	closed bool
}

// Feature weights for vector generation.
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var tokenRe = regexp.MustCompile(`[a-zA-Z0-9]+`)

// NewStaticProvider creates a static provider emitting vectors of the given
// width.
func NewStaticProvider(dims int) *StaticProvider {
	if dims <= 0 {
		dims = 1024
	}
	return &StaticProvider{dims: dims}
}

// ID identifies the provider family.
func (p *StaticProvider) ID() string { return "static" }

// Model names the embedding model.
func (p *StaticProvider) Model() string { return "static" }

// MaxInputTokens is unbounded for the static provider.
func (p *StaticProvider) MaxInputTokens() int { return 0 }

// EmbedQuery embeds a single query string.
func (p *StaticProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, fmt.Errorf("provider is closed")
	}
	p.mu.RUnlock()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, p.dims), nil
	}

	return normalizeVector(p.generateVector(trimmed)), nil
}

// EmbedBatch embeds texts index-aligned with the input.
func (p *StaticProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.EmbedQuery(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		results[i] = vec
	}
	return results, nil
}

// Close releases resources.
func (p *StaticProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// generateVector hashes word tokens and character trigrams into buckets.
func (p *StaticProvider) generateVector(text string) []float32 {
	vector := make([]float32, p.dims)

	for _, token := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		vector[hashToIndex(token, p.dims)] += tokenWeight
	}

	normalized := normalizeForNgrams(text)
	for _, ngram := range extractNgrams(normalized, ngramSize) {
		vector[hashToIndex(ngram, p.dims)] += ngramWeight
	}

	return vector
}

func normalizeForNgrams(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func extractNgrams(text string, n int) []string {
	if len(text) < n {
		return nil
	}
	ngrams := make([]string, 0, len(text)-n+1)
	for i := 0; i <= len(text)-n; i++ {
		ngrams = append(ngrams, text[i:i+n])
	}
	return ngrams
}

func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

// normalizeVector scales a vector to unit length. Zero vectors pass through.
func normalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= norm
	}
	return v
}
