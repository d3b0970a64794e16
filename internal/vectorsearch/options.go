package vectorsearch

import (
	"sort"

	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/provider"
	"github.com/hyperjump/ruiji/internal/storage"
)

const (
	DefaultLimit          = 1
	DefaultMaxDistance    = 2.0
	DefaultAskContextSize = 4
	DefaultBatchSize      = 1000
	DefaultEmbeddingField = "embedding"
)

// Option configures a Searchable at declaration time.
type Option func(*Searchable)

// WithSerializer replaces the default JSON representation.
func WithSerializer(fn Serializer) Option {
	return func(s *Searchable) {
		s.serializer = fn
	}
}

// WithEmbeddingField names the field holding a stored embedding. It is
// excluded from the default representation.
func WithEmbeddingField(name string) Option {
	return func(s *Searchable) {
		if name != "" {
			s.embeddingField = name
		}
	}
}

// WithExcludeFields leaves additional fields out of the default representation.
func WithExcludeFields(fields ...string) Option {
	return func(s *Searchable) {
		s.exclude = append(s.exclude, fields...)
	}
}

// WithBatchSize sets how many records ReembedAll loads at a time.
func WithBatchSize(n int) Option {
	return func(s *Searchable) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Searchable) {
		if l != nil {
			s.log = l
		}
	}
}

// WithStore resolves this record type through a different store than the
// registry's.
func WithStore(store storage.Storage) Option {
	return func(s *Searchable) {
		if store != nil {
			s.store = store
		}
	}
}

type searchOptions struct {
	limit       int
	filters     []storage.Filter
	maxDistance float64
}

// SearchOption configures SimilaritySearch and SimilaritySearchWithDistance.
type SearchOption func(*searchOptions)

// Limit sets how many nearest records the provider returns. Defaults to 1.
func Limit(k int) SearchOption {
	return func(o *searchOptions) {
		if k > 0 {
			o.limit = k
		}
	}
}

// Where adds an equality filter applied when resolving hits in the store.
func Where(field string, value interface{}) SearchOption {
	return func(o *searchOptions) {
		o.filters = append(o.filters, storage.Filter{Field: field, Value: value})
	}
}

// Filters adds one equality filter per map entry, in key order.
func Filters(filters map[string]interface{}) SearchOption {
	return func(o *searchOptions) {
		keys := make([]string, 0, len(filters))
		for k := range filters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			o.filters = append(o.filters, storage.Filter{Field: k, Value: filters[k]})
		}
	}
}

// MaxDistance drops hits farther than d. Defaults to 2.0. Zero keeps exact
// matches only; negative values are ignored.
func MaxDistance(d float64) SearchOption {
	return func(o *searchOptions) {
		if d >= 0 {
			o.maxDistance = d
		}
	}
}

type askOptions struct {
	k       int
	onChunk provider.ChunkFunc
}

// AskOption configures Ask.
type AskOption func(*askOptions)

// ContextSize sets how many records are retrieved as context. Defaults to 4.
func ContextSize(k int) AskOption {
	return func(o *askOptions) {
		if k > 0 {
			o.k = k
		}
	}
}

// OnChunk streams each completion chunk to fn as it arrives.
func OnChunk(fn provider.ChunkFunc) AskOption {
	return func(o *askOptions) {
		o.onChunk = fn
	}
}
