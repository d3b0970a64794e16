package embedding

import (
	"context"
	"testing"

	"github.com/hyperjump/ruiji/pkg/utils"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(64)
	ctx := context.Background()
	a, _ := e.Embed(ctx, "Fluffy pancakes with syrup")
	b, _ := e.Embed(ctx, "Fluffy pancakes with syrup")
	if len(a) != 64 {
		t.Fatalf("dimensions: got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("embedding is not deterministic")
		}
	}
}

func TestMockEmbedder_SharedWordsAreCloser(t *testing.T) {
	e := NewMockEmbedder(256)
	ctx := context.Background()
	doc, _ := e.Embed(ctx, "fluffy pancakes with maple syrup")
	near, _ := e.Embed(ctx, "pancakes")
	far, _ := e.Embed(ctx, "grilled salmon")

	if utils.CosineDistance(doc, near) >= utils.CosineDistance(doc, far) {
		t.Errorf("expected pancakes to be closer: near=%f far=%f",
			utils.CosineDistance(doc, near), utils.CosineDistance(doc, far))
	}
}

func TestMockEmbedder_EmptyText(t *testing.T) {
	e := NewMockEmbedder(8)
	v, err := e.Embed(context.Background(), "  ...  ")
	if err != nil {
		t.Fatal(err)
	}
	for _, x := range v {
		if x != 0 {
			t.Fatalf("expected zero vector, got %v", v)
		}
	}
}

func TestMockEmbedder_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMockEmbedder(8).Embed(ctx, "x"); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestNewEmbedder(t *testing.T) {
	e, err := NewEmbedder(Config{Provider: "mock", Dimensions: 32, CacheSize: 10})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.(*CachedEmbedder); !ok {
		t.Errorf("expected cached embedder, got %T", e)
	}
	if e.Dimensions() != 32 {
		t.Errorf("dimensions: got %d", e.Dimensions())
	}

	if _, err := NewEmbedder(Config{Provider: "word2vec"}); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := NewEmbedder(Config{Provider: "openai"}); err == nil {
		t.Error("expected error for openai without key")
	}
}
