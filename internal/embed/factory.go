package embed

import (
	"fmt"

	"github.com/clearpath-ai/clearpath-rag/internal/config"
)

// NewEmbedder creates an embedder from configuration. The backend is
// selected by cfg.Embed.Backend ("http" or "static") and the result is
// wrapped with an LRU query cache.
func NewEmbedder(cfg *config.Config) (Embedder, error) {
	var inner Embedder
	switch cfg.Embed.Backend {
	case "", "http":
		inner = NewHTTPEmbedder(HTTPConfig{
			Host:      cfg.Embed.Host,
			Model:     cfg.Embed.Model,
			BatchSize: cfg.Embed.BatchSize,
		})
	case "static":
		inner = NewStaticEmbedder()
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", cfg.Embed.Backend)
	}

	return NewCachedEmbedder(inner, cfg.Embed.CacheSize), nil
}
