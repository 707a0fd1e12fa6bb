package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultQueryCacheSize is the default number of query embeddings kept in
// memory. At 1024 dimensions * 4 bytes * 1000 entries that is about 4MB.
const DefaultQueryCacheSize = 1000

// CachedProvider wraps a Provider with an in-process LRU so repeated
// queries skip the network round trip. The durable cross-run cache lives in
// the embedding_cache collection; this layer only shields hot queries.
type CachedProvider struct {
	inner Provider
	cache *lru.Cache[string, []float32]
}

// NewCachedProvider wraps inner with an LRU of the given size.
func NewCachedProvider(inner Provider, cacheSize int) *CachedProvider {
	if cacheSize <= 0 {
		cacheSize = DefaultQueryCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedProvider{
		inner: inner,
		cache: cache,
	}
}

// cacheKey hashes text and model together so a model switch never serves
// stale vectors.
func (c *CachedProvider) cacheKey(text string) string {
	combined := text + "\x00" + c.inner.Model()
	hash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(hash[:])
}

// ID identifies the provider family (passthrough).
func (c *CachedProvider) ID() string { return c.inner.ID() }

// Model names the embedding model (passthrough).
func (c *CachedProvider) Model() string { return c.inner.Model() }

// MaxInputTokens passes through to the inner provider.
func (c *CachedProvider) MaxInputTokens() int { return c.inner.MaxInputTokens() }

// EmbedQuery returns a cached vector when available, otherwise computes and
// caches it.
func (c *CachedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}

	vec, err := c.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Add(key, vec)
	return vec, nil
}

// EmbedBatch checks the cache per text and only sends misses to the inner
// provider, preserving input alignment.
func (c *CachedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	missIndices := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		if vec, ok := c.cache.Get(c.cacheKey(text)); ok {
			results[i] = vec
		} else {
			missIndices = append(missIndices, i)
			missTexts = append(missTexts, text)
		}
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	fresh, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("provider returned %d vectors for %d texts", len(fresh), len(missTexts))
	}

	for j, idx := range missIndices {
		results[idx] = fresh[j]
		c.cache.Add(c.cacheKey(texts[idx]), fresh[j])
	}

	return results, nil
}

// Close closes the inner provider.
func (c *CachedProvider) Close() error { return c.inner.Close() }

// Inner returns the wrapped provider.
func (c *CachedProvider) Inner() Provider { return c.inner }
