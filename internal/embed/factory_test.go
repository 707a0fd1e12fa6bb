package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/recall/internal/config"
)

func TestNewProvider_NoneConfigured(t *testing.T) {
	p, err := NewProvider(config.EmbeddingConfig{}, 1024)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestNewProvider_Static(t *testing.T) {
	p, err := NewProvider(config.EmbeddingConfig{Provider: "static"}, 64)
	require.NoError(t, err)
	require.NotNil(t, p)
	defer p.Close()

	// Wrapped in the query cache, static underneath.
	cached, ok := p.(*CachedProvider)
	require.True(t, ok)
	assert.IsType(t, &StaticProvider{}, cached.Inner())

	vec, err := p.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 64)
}

func TestNewProvider_CaseInsensitive(t *testing.T) {
	p, err := NewProvider(config.EmbeddingConfig{Provider: "Static"}, 16)
	require.NoError(t, err)
	require.NotNil(t, p)
	defer p.Close()
	assert.Equal(t, "static", p.ID())
}

func TestNewProvider_OpenAIRequiresCredentials(t *testing.T) {
	_, err := NewProvider(config.EmbeddingConfig{Provider: "openai"}, 1024)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apiKey or baseUrl")
}

func TestNewProvider_OpenAIWithBaseURL(t *testing.T) {
	// A base URL alone is enough: local OpenAI-compatible servers do not
	// require a key.
	p, err := NewProvider(config.EmbeddingConfig{
		Provider: "openai",
		BaseURL:  "http://localhost:11434/v1",
		Model:    "nomic-embed-text",
	}, 1024)
	require.NoError(t, err)
	require.NotNil(t, p)
	defer p.Close()

	assert.Equal(t, "openai", p.ID())
	assert.Equal(t, "nomic-embed-text", p.Model())
}

func TestNewProvider_Unknown(t *testing.T) {
	_, err := NewProvider(config.EmbeddingConfig{Provider: "llamafile"}, 1024)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown embedding provider")
}
