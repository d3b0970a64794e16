// Package embedding turns record text into vectors for the providers that
// embed locally (memory, qdrant, pgvector).
package embedding

import (
	"context"
	"fmt"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
	Close() error
}

// Config selects and configures an embedder.
type Config struct {
	Provider   string // onnx, ollama, openai, mock
	Dimensions int
	CacheSize  int

	ModelPath string
	MaxTokens int

	OllamaURL   string
	OllamaModel string

	OpenAIURL   string
	OpenAIKey   string
	OpenAIModel string
}

// NewEmbedder creates the embedder named by cfg.Provider. When CacheSize is
// positive the embedder is wrapped in an LRU cache.
func NewEmbedder(cfg Config) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch cfg.Provider {
	case "onnx":
		e, err = NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
	case "ollama":
		e, err = NewOllamaEmbedder(cfg.OllamaURL, cfg.OllamaModel, cfg.Dimensions)
	case "openai":
		e, err = NewOpenAIEmbedder(cfg.OpenAIURL, cfg.OpenAIKey, cfg.OpenAIModel)
	case "mock", "":
		e = NewMockEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize > 0 {
		e = NewCachedEmbedder(e, cfg.CacheSize)
	}
	return e, nil
}

// embedEach calls embed for each text in order.
func embedEach(ctx context.Context, texts []string, embed func(context.Context, string) ([]float32, error)) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}
