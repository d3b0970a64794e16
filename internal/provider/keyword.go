package provider

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/keyword"
	"github.com/hyperjump/ruiji/internal/models"
)

// KeywordProvider serves similarity search from a BM25 index. Distance is
// 1 - score/topScore, so the best hit is at 0 and weaker hits approach 1.
type KeywordProvider struct {
	index keyword.KeywordIndex
	fuzzy *keyword.SearchOptions
	opts  Options
	log   *zap.Logger
}

// NewKeywordProvider creates a provider over index. fuzziness > 0 enables
// typo-tolerant matching.
func NewKeywordProvider(index keyword.KeywordIndex, fuzziness int, opts Options) *KeywordProvider {
	p := &KeywordProvider{index: index, opts: opts, log: opts.logger("keyword")}
	if fuzziness > 0 {
		p.fuzzy = &keyword.SearchOptions{FuzzyEnabled: true, Fuzziness: fuzziness}
	}
	return p
}

// AddTexts indexes texts under ids.
func (p *KeywordProvider) AddTexts(ctx context.Context, texts, ids []string) error {
	if err := checkPairs(texts, ids); err != nil {
		return err
	}
	return p.index.IndexBatch(ctx, ids, texts)
}

// UpdateTexts replaces the indexed texts of ids.
func (p *KeywordProvider) UpdateTexts(ctx context.Context, texts, ids []string) error {
	return p.AddTexts(ctx, texts, ids)
}

// RemoveTexts deletes the indexed texts of ids.
func (p *KeywordProvider) RemoveTexts(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if err := p.index.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
	}
	return nil
}

func (p *KeywordProvider) search(ctx context.Context, query string, k int) ([]passage, error) {
	results, err := p.index.Search(ctx, query, k, p.fuzzy)
	if err != nil {
		return nil, err
	}
	out := make([]passage, len(results))
	if len(results) == 0 {
		return out, nil
	}
	top := results[0].Score
	for i, r := range results {
		d := 1.0
		if top > 0 {
			d = 1 - r.Score/top
		}
		out[i] = passage{hit: models.NewHit(r.ID, d), text: r.Text}
	}
	return out, nil
}

// SimilaritySearch returns the k best keyword matches.
func (p *KeywordProvider) SimilaritySearch(ctx context.Context, query string, k int) ([]models.Hit, error) {
	passages, err := p.search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	hits := make([]models.Hit, len(passages))
	for i, ps := range passages {
		hits[i] = ps.hit
	}
	return hits, nil
}

// Ask answers question from the k best keyword matches.
func (p *KeywordProvider) Ask(ctx context.Context, question string, k int, onChunk ChunkFunc) (*Completion, error) {
	return answer(ctx, p.opts, p.log, p.search, question, k, onChunk)
}

// Name returns "keyword".
func (p *KeywordProvider) Name() string {
	return "keyword"
}

// Close closes the index.
func (p *KeywordProvider) Close() error {
	return p.index.Close()
}
