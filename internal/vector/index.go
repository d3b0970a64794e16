// Package vector provides the local nearest-neighbour index behind the
// memory provider.
package vector

import "context"

// VectorIndex stores vectors with their source text and searches them by
// cosine distance.
type VectorIndex interface {
	// Upsert inserts entries, replacing any entry with the same ID.
	Upsert(ctx context.Context, entries []Entry) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Get(id string) (Entry, bool)
	Remove(ctx context.Context, ids []string) error
	Save(path string) error
	Load(path string) error
	Size() int
	Close() error
}

// Entry is an indexed vector and the text it was embedded from.
type Entry struct {
	ID     string
	Text   string
	Vector []float32
}

// VectorResult is a single search hit.
type VectorResult struct {
	ID       string
	Text     string
	Distance float64 // cosine distance, 0 (same direction) to 2 (opposite)
}
