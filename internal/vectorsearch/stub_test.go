package vectorsearch

import (
	"context"
	"sync"

	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/provider"
)

type call struct {
	texts []string
	ids   []string
}

// stubProvider records every call and returns canned results.
type stubProvider struct {
	name string

	mu      sync.Mutex
	adds    []call
	updates []call
	queries []string
	ks      []int
	closed  int
	bound   []string

	hits    []models.Hit
	chunks  []string
	err     error
	failIDs map[string]error
}

func newStub(name string) *stubProvider {
	return &stubProvider{name: name}
}

func (p *stubProvider) AddTexts(_ context.Context, texts, ids []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.adds = append(p.adds, call{texts, ids})
	return p.failFor(ids)
}

func (p *stubProvider) UpdateTexts(_ context.Context, texts, ids []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, call{texts, ids})
	return p.failFor(ids)
}

func (p *stubProvider) failFor(ids []string) error {
	if p.err != nil {
		return p.err
	}
	for _, id := range ids {
		if err, ok := p.failIDs[id]; ok {
			return err
		}
	}
	return nil
}

func (p *stubProvider) SimilaritySearch(_ context.Context, query string, k int) ([]models.Hit, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queries = append(p.queries, query)
	p.ks = append(p.ks, k)
	if p.err != nil {
		return nil, p.err
	}
	return p.hits, nil
}

func (p *stubProvider) Ask(ctx context.Context, question string, k int, onChunk provider.ChunkFunc) (*provider.Completion, error) {
	p.mu.Lock()
	p.queries = append(p.queries, question)
	p.ks = append(p.ks, k)
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	var text string
	for _, c := range p.chunks {
		if onChunk != nil {
			onChunk(c)
		}
		text += c
	}
	return &provider.Completion{Text: text, Sources: p.hits, Model: p.name}, nil
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

// binderStub is a stubProvider that keeps schema per record type.
type binderStub struct {
	*stubProvider
	bindErr error
}

func (b *binderStub) BindRecordType(_ context.Context, recordType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bound = append(b.bound, recordType)
	return b.bindErr
}

// persistStub is a stubProvider with an in-process index.
type persistStub struct {
	*stubProvider
	persisted int
}

func (p *persistStub) Persist() error {
	p.persisted++
	return nil
}

// removerStub is a stubProvider that can drop texts.
type removerStub struct {
	*stubProvider
	removed   []string
	removeErr error
}

func (r *removerStub) RemoveTexts(_ context.Context, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, ids...)
	return r.removeErr
}
