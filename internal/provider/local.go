package provider

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/embedding"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/vector"
)

// LocalProvider embeds texts in-process and keeps them in a vector index.
type LocalProvider struct {
	embedder embedding.Embedder
	index    vector.VectorIndex
	path     string
	opts     Options
	log      *zap.Logger
}

// NewLocalProvider creates a provider over index. When path is set the index
// is loaded from it now and written back by Persist.
func NewLocalProvider(embedder embedding.Embedder, index vector.VectorIndex, path string, opts Options) (*LocalProvider, error) {
	if err := index.Load(path); err != nil {
		return nil, fmt.Errorf("load vector index %s: %w", path, err)
	}
	return &LocalProvider{
		embedder: embedder,
		index:    index,
		path:     path,
		opts:     opts,
		log:      opts.logger("local"),
	}, nil
}

// AddTexts embeds and indexes texts under ids.
func (p *LocalProvider) AddTexts(ctx context.Context, texts, ids []string) error {
	return p.upsert(ctx, texts, ids)
}

// UpdateTexts re-embeds texts and replaces the entries for ids.
func (p *LocalProvider) UpdateTexts(ctx context.Context, texts, ids []string) error {
	return p.upsert(ctx, texts, ids)
}

func (p *LocalProvider) upsert(ctx context.Context, texts, ids []string) error {
	if err := checkPairs(texts, ids); err != nil {
		return err
	}
	vecs, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	entries := make([]vector.Entry, len(ids))
	for i, id := range ids {
		entries[i] = vector.Entry{ID: id, Text: texts[i], Vector: vecs[i]}
	}
	if err := p.index.Upsert(ctx, entries); err != nil {
		return err
	}
	p.log.Debug("indexed", zap.Int("count", len(ids)), zap.Int("size", p.index.Size()))
	return nil
}

// RemoveTexts drops the entries of ids from the index.
func (p *LocalProvider) RemoveTexts(ctx context.Context, ids []string) error {
	if err := p.index.Remove(ctx, ids); err != nil {
		return err
	}
	p.log.Debug("removed", zap.Int("count", len(ids)), zap.Int("size", p.index.Size()))
	return nil
}

// SimilaritySearch returns the k nearest records with their cosine distance.
func (p *LocalProvider) SimilaritySearch(ctx context.Context, query string, k int) ([]models.Hit, error) {
	results, err := p.search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	hits := make([]models.Hit, len(results))
	for i, r := range results {
		hits[i] = models.NewHit(r.ID, r.Distance)
	}
	return hits, nil
}

func (p *LocalProvider) search(ctx context.Context, query string, k int) ([]*vector.VectorResult, error) {
	qv, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return p.index.Search(ctx, qv, k)
}

// Ask answers question from the k nearest record texts.
func (p *LocalProvider) Ask(ctx context.Context, question string, k int, onChunk ChunkFunc) (*Completion, error) {
	return answer(ctx, p.opts, p.log, func(ctx context.Context, q string, k int) ([]passage, error) {
		results, err := p.search(ctx, q, k)
		if err != nil {
			return nil, err
		}
		out := make([]passage, len(results))
		for i, r := range results {
			out[i] = passage{hit: models.NewHit(r.ID, r.Distance), text: r.Text}
		}
		return out, nil
	}, question, k, onChunk)
}

// Size returns the number of indexed records.
func (p *LocalProvider) Size() int {
	return p.index.Size()
}

// Persist writes the index to its path, if any.
func (p *LocalProvider) Persist() error {
	if p.path == "" {
		return nil
	}
	return p.index.Save(p.path)
}

// Name returns "memory/" followed by the embedder name.
func (p *LocalProvider) Name() string {
	return "memory/" + p.embedder.Name()
}

// Close closes the index. The embedder is shared and closed by its owner.
func (p *LocalProvider) Close() error {
	return p.index.Close()
}
