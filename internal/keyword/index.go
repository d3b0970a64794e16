// Package keyword provides the BM25 full-text index behind the keyword provider.
package keyword

import "context"

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// FuzzyEnabled enables fuzzy matching for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum Levenshtein edit distance for fuzzy matching (1 or 2).
	// Default is 1 when FuzzyEnabled is true.
	Fuzziness int
}

// KeywordIndex defines keyword search operations over record text.
type KeywordIndex interface {
	// Index stores text under id, replacing any previous text.
	Index(ctx context.Context, id, text string) error
	IndexBatch(ctx context.Context, ids, texts []string) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	// Text returns the stored text of id.
	Text(ctx context.Context, id string) (string, bool, error)
	Delete(ctx context.Context, id string) error
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit.
type KeywordResult struct {
	ID    string
	Score float64
	Text  string
}
