package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/ruiji/internal/config"
	"github.com/hyperjump/ruiji/internal/embedding"
	"github.com/hyperjump/ruiji/internal/keyword"
	"github.com/hyperjump/ruiji/internal/vector"
)

// New creates the provider configured for recordType. Providers that embed
// locally share embedder; it may be nil for the keyword provider.
func New(ctx context.Context, cfg *config.Config, recordType string, embedder embedding.Embedder, opts Options) (Provider, error) {
	if err := ValidateRecordType(recordType); err != nil {
		return nil, err
	}
	kind := cfg.Provider.Type
	if spec, ok := cfg.TypeSpec(recordType); ok {
		kind = cfg.ProviderFor(spec)
	}

	needsEmbedder := kind != "keyword"
	if needsEmbedder && embedder == nil {
		return nil, fmt.Errorf("provider %s for %s requires an embedder", kind, recordType)
	}

	switch kind {
	case "memory":
		idx, err := vector.NewMemoryIndex(embedder.Dimensions())
		if err != nil {
			return nil, err
		}
		path := ""
		if cfg.Storage.VectorIndexPath != "" {
			path = filepath.Join(cfg.Storage.VectorIndexPath, recordType+".idx")
		}
		return NewLocalProvider(embedder, idx, path, opts)

	case "keyword":
		path := ""
		if cfg.Storage.KeywordIndexPath != "" {
			if err := os.MkdirAll(cfg.Storage.KeywordIndexPath, 0755); err != nil {
				return nil, fmt.Errorf("create keyword index dir: %w", err)
			}
			path = filepath.Join(cfg.Storage.KeywordIndexPath, recordType+".bleve")
		}
		idx, err := keyword.NewBleveIndex(path)
		if err != nil {
			return nil, err
		}
		return NewKeywordProvider(idx, cfg.Provider.Keyword.Fuzziness, opts), nil

	case "qdrant":
		return NewQdrantProvider(cfg.Provider.Qdrant.Addr, cfg.Provider.Qdrant.CollectionPrefix, embedder, opts)

	case "pgvector":
		p, err := NewPgvectorProvider(cfg.Provider.Pgvector.DSN, cfg.Provider.Pgvector.TableSuffix, embedder, opts)
		if err != nil {
			return nil, err
		}
		if err := p.db.PingContext(ctx); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("connect pgvector: %w", err)
		}
		return p, nil

	default:
		return nil, fmt.Errorf("unknown provider type: %s", kind)
	}
}
