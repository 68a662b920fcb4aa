// Package embedder converts text into dense vectors.
//
// One provider is selected at construction time and its dimensionality is
// immutable afterwards: collections are created with the embedder's
// dimension, so switching models requires a new collection.
package embedder

import (
	"context"
	"fmt"

	"github.com/balidesk/oracle/pkg/config"
)

// Embedder converts text to vector embeddings.
type Embedder interface {
	// Embed converts a single text (typically a query) to a vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts to vectors, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// Model returns the model name being used.
	Model() string

	// Provider returns the provider identifier ("openai", "local").
	Provider() string

	// Close releases any resources.
	Close() error
}

// New creates an embedder from configuration.
func New(cfg config.EmbedderConfig) (Embedder, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIEmbedder(OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			BatchSize: cfg.BatchSize,
		})
	case "local":
		return NewLocalEmbedder(LocalConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			BatchSize: cfg.BatchSize,
		})
	default:
		return nil, fmt.Errorf("unsupported embedder provider: %s", cfg.Provider)
	}
}
