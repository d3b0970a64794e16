package vectorsearch

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/provider"
	"github.com/hyperjump/ruiji/internal/storage"
	"github.com/hyperjump/ruiji/pkg/utils"
)

// Registry holds the searchable binding of every declared record type.
// Providers passed to Declare are owned by the registry and closed by Close.
type Registry struct {
	mu       sync.RWMutex
	store    storage.Storage
	bindings map[string]*Searchable
	log      *zap.Logger
}

// NewRegistry creates an empty registry resolving records through store.
func NewRegistry(store storage.Storage, log *zap.Logger) *Registry {
	return &Registry{
		store:    store,
		bindings: make(map[string]*Searchable),
		log:      utils.Named(log, "vectorsearch"),
	}
}

// Declare makes recordType searchable through p. Providers that keep schema
// per record type are bound to it first and serve that type only. Declaring a
// type again replaces its binding; the replaced provider is closed unless
// another type still uses it.
func (r *Registry) Declare(ctx context.Context, recordType string, p provider.Provider, opts ...Option) (*Searchable, error) {
	if err := provider.ValidateRecordType(recordType); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("declare %s: nil provider", recordType)
	}
	if binder, ok := p.(provider.SchemaBinder); ok {
		if owner := r.ownerOf(p, recordType); owner != "" {
			return nil, fmt.Errorf("declare %s: %w: %s serves %s", recordType, ErrProviderShared, p.Name(), owner)
		}
		if err := binder.BindRecordType(ctx, recordType); err != nil {
			return nil, fmt.Errorf("bind %s to %s: %w", recordType, p.Name(), err)
		}
	}

	opts = append([]Option{WithLogger(r.log)}, opts...)
	s := newSearchable(recordType, p, r.store, opts...)

	r.mu.Lock()
	prev := r.bindings[recordType]
	r.bindings[recordType] = s
	orphaned := prev != nil && prev.provider != p && !r.inUseLocked(prev.provider)
	r.mu.Unlock()

	if prev != nil {
		r.log.Info("replaced searchable binding",
			zap.String("record_type", recordType),
			zap.String("previous", prev.provider.Name()),
			zap.String("provider", p.Name()))
	} else {
		r.log.Info("declared searchable",
			zap.String("record_type", recordType),
			zap.String("provider", p.Name()))
	}
	if orphaned {
		if err := prev.provider.Close(); err != nil {
			r.log.Warn("close replaced provider", zap.Error(err))
		}
	}
	return s, nil
}

// ownerOf returns a record type other than recordType bound to p, if any.
func (r *Registry) ownerOf(p provider.Provider, recordType string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.typesLocked() {
		if t != recordType && r.bindings[t].provider == p {
			return t
		}
	}
	return ""
}

func (r *Registry) inUseLocked(p provider.Provider) bool {
	for _, s := range r.bindings {
		if s.provider == p {
			return true
		}
	}
	return false
}

// Get returns the binding of recordType or ErrNotSearchable.
func (r *Registry) Get(recordType string) (*Searchable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.bindings[recordType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotSearchable, recordType)
	}
	return s, nil
}

// Types returns the declared record types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.typesLocked()
}

func (r *Registry) providers() []provider.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[provider.Provider]bool, len(r.bindings))
	var out []provider.Provider
	for _, t := range r.typesLocked() {
		p := r.bindings[t].provider
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

func (r *Registry) typesLocked() []string {
	types := make([]string, 0, len(r.bindings))
	for t := range r.bindings {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Persist writes every in-process provider index to disk.
func (r *Registry) Persist() error {
	var err error
	for _, p := range r.providers() {
		if ps, ok := p.(provider.Persister); ok {
			err = multierr.Append(err, ps.Persist())
		}
	}
	return err
}

// Close closes every bound provider.
func (r *Registry) Close() error {
	var err error
	for _, p := range r.providers() {
		err = multierr.Append(err, p.Close())
	}
	return err
}
