package benchmark

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/embedding"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/provider"
	"github.com/hyperjump/ruiji/internal/storage"
	"github.com/hyperjump/ruiji/internal/vector"
	"github.com/hyperjump/ruiji/internal/vectorsearch"
)

func BenchmarkMemoryIndexSearch(b *testing.B) {
	idx, _ := vector.NewMemoryIndex(384)
	ctx := context.Background()
	entries := make([]vector.Entry, 1000)
	for i := range entries {
		v := make([]float32, 384)
		v[0] = float32(i) / 1000
		v[1] = 1
		entries[i] = vector.Entry{ID: fmt.Sprintf("r%04d", i), Vector: v}
	}
	if err := idx.Upsert(ctx, entries); err != nil {
		b.Fatal(err)
	}
	query := make([]float32, 384)
	query[0] = 1.0
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.Search(ctx, query, 10)
	}
}

func BenchmarkMockEmbedder_Embed(b *testing.B) {
	e := embedding.NewMockEmbedder(384)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, "benchmark query text for embedding")
	}
}

func BenchmarkJSONSerializer(b *testing.B) {
	serialize := vectorsearch.JSONSerializer("embedding")
	rec := &models.Record{ID: "r1", Type: "recipes", Fields: map[string]interface{}{
		"title": "Green curry", "cuisine": "thai", "servings": 4, "vegan": true,
		"steps": []interface{}{"pound the paste", "fry", "simmer with coconut milk"},
	}}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = serialize(rec)
	}
}

func BenchmarkSearchable_SimilaritySearch(b *testing.B) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(filepath.Join(b.TempDir(), "bench.db"))
	if err != nil {
		b.Fatal(err)
	}
	defer store.Close()
	idx, _ := vector.NewMemoryIndex(128)
	p, err := provider.NewLocalProvider(embedding.NewMockEmbedder(128), idx, "", provider.Options{})
	if err != nil {
		b.Fatal(err)
	}
	reg := vectorsearch.NewRegistry(store, zap.NewNop())
	defer reg.Close()
	sr, err := reg.Declare(ctx, "recipes", p)
	if err != nil {
		b.Fatal(err)
	}
	for i := 0; i < 500; i++ {
		_, err := sr.Save(ctx, models.RecordInput{
			ID:     fmt.Sprintf("r%04d", i),
			Fields: map[string]interface{}{"title": fmt.Sprintf("recipe number %d", i), "cuisine": []string{"thai", "french", "mexican"}[i%3]},
		})
		if err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q, err := sr.SimilaritySearch(ctx, "recipe number 42", vectorsearch.Limit(10), vectorsearch.Where("cuisine", "thai"))
		if err != nil {
			b.Fatal(err)
		}
		if _, err := q.All(ctx); err != nil {
			b.Fatal(err)
		}
	}
}
