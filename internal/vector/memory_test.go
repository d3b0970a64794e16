package vector

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryIndex_UpsertSearch(t *testing.T) {
	idx, err := NewMemoryIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	entries := []Entry{
		{ID: "a", Text: "alpha", Vector: []float32{1, 0, 0}},
		{ID: "b", Text: "beta", Vector: []float32{0.9, 0.1, 0}},
		{ID: "c", Text: "gamma", Vector: []float32{0, 1, 0}},
		{ID: "d", Text: "delta", Vector: []float32{-1, 0, 0}},
	}
	if err := idx.Upsert(ctx, entries); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 4 {
		t.Errorf("Size=%d", idx.Size())
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if results[0].ID != "a" || results[0].Text != "alpha" || results[0].Distance > 1e-6 {
		t.Errorf("top result: %+v", results[0])
	}
	if results[1].ID != "b" {
		t.Errorf("second result should be b, got %s", results[1].ID)
	}
	if math.Abs(results[2].Distance-1) > 1e-6 {
		t.Errorf("orthogonal distance: got %f", results[2].Distance)
	}
	if math.Abs(results[3].Distance-2) > 1e-6 {
		t.Errorf("opposite distance: got %f", results[3].Distance)
	}

	top, _ := idx.Search(ctx, []float32{1, 0, 0}, 1)
	if len(top) != 1 {
		t.Errorf("k=1: got %d results", len(top))
	}
}

func TestMemoryIndex_UpsertReplaces(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Upsert(ctx, []Entry{{ID: "x", Text: "old", Vector: []float32{1, 0}}})
	_ = idx.Upsert(ctx, []Entry{{ID: "x", Text: "new", Vector: []float32{0, 1}}})

	if idx.Size() != 1 {
		t.Fatalf("expected size 1 after replace, got %d", idx.Size())
	}
	e, ok := idx.Get("x")
	if !ok || e.Text != "new" || e.Vector[1] != 1 {
		t.Errorf("Get after replace: %+v %v", e, ok)
	}
}

func TestMemoryIndex_UpsertRejectsWrongDimension(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	err := idx.Upsert(context.Background(), []Entry{
		{ID: "ok", Vector: []float32{1, 0}},
		{ID: "bad", Vector: []float32{1, 0, 0}},
	})
	if err == nil {
		t.Fatal("expected dimension error")
	}
	if idx.Size() != 0 {
		t.Errorf("no entry should be applied, size=%d", idx.Size())
	}
}

func TestMemoryIndex_Remove(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Upsert(ctx, []Entry{{ID: "x", Vector: []float32{1, 0}}, {ID: "y", Vector: []float32{0, 1}}})
	if err := idx.Remove(ctx, []string{"x", "unknown"}); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 1 {
		t.Errorf("expected size 1, got %d", idx.Size())
	}
	if _, ok := idx.Get("x"); ok {
		t.Error("x should be removed")
	}
	if e, ok := idx.Get("y"); !ok || e.ID != "y" {
		t.Error("y should remain addressable")
	}
}

func TestMemoryIndex_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "vectors.idx")
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Upsert(ctx, []Entry{
		{ID: "r1", Text: `{"title":"Pancakes"}`, Vector: []float32{0.6, 0.8}},
		{ID: "r2", Text: "", Vector: []float32{1, 0}},
	})
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, _ := NewMemoryIndex(2)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 2 {
		t.Fatalf("loaded size: %d", loaded.Size())
	}
	e, ok := loaded.Get("r1")
	if !ok || e.Text != `{"title":"Pancakes"}` || e.Vector[1] != 0.8 {
		t.Errorf("loaded r1: %+v", e)
	}

	wrongDim, _ := NewMemoryIndex(3)
	if err := wrongDim.Load(path); err == nil {
		t.Error("expected dimension mismatch error")
	}

	missing, _ := NewMemoryIndex(2)
	if err := missing.Load(filepath.Join(t.TempDir(), "none.idx")); err != nil {
		t.Errorf("missing file should not be an error: %v", err)
	}

	garbage := filepath.Join(t.TempDir(), "garbage.idx")
	_ = os.WriteFile(garbage, []byte("not an index"), 0644)
	if err := missing.Load(garbage); err == nil {
		t.Error("expected error for garbage file")
	}
}
