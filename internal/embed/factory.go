package embed

import (
	"fmt"
	"strings"

	"github.com/openclaw/recall/internal/config"
)

// NewProvider builds the embedding provider selected by cfg, wrapped in the
// query LRU. Returns (nil, nil) when no provider is configured; automated
// deployments run without one because Atlas embeds server-side.
func NewProvider(cfg config.EmbeddingConfig, dims int) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "":
		return nil, nil
	case "static":
		return NewCachedProvider(NewStaticProvider(dims), DefaultQueryCacheSize), nil
	case "openai":
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("openai provider requires an apiKey or baseUrl")
		}
		p := NewOpenAIProvider(OpenAIOptions{
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Model,
			MaxInputTokens: cfg.MaxInputTokens,
		})
		return NewCachedProvider(p, DefaultQueryCacheSize), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
