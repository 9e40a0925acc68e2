package embedding

import "billboard/internal/config"

// NewEmbedder selects the embedder configured by EMBEDDING_PROVIDER.
func NewEmbedder(cfg *config.Config) Embedder {
	if cfg.EmbeddingProvider == "http" {
		return NewHTTPEmbedder(cfg.EmbeddingAPIURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	}
	return NewHashEmbedder(cfg.EmbeddingDimensions)
}
