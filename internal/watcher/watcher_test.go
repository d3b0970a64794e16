package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/ruiji/internal/fixtures"
)

type recordingHandler struct {
	mu       sync.Mutex
	imported []string
	removed  []string
}

func (h *recordingHandler) ImportFile(_ context.Context, path string) (fixtures.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.imported = append(h.imported, path)
	return fixtures.Result{Files: 1}, nil
}

func (h *recordingHandler) RemoveFile(_ context.Context, path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removed = append(h.removed, path)
	return nil
}

func (h *recordingHandler) snapshot() ([]string, []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.imported...), append([]string(nil), h.removed...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func hasSuffix(paths []string, suffix string) bool {
	for _, p := range paths {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

func startWatcher(t *testing.T, dir string, h Handler) *Watcher {
	t.Helper()
	w := New([]string{dir}, []string{".json", ".yaml"}, true, h, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		w.Stop()
		cancel()
	})
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	return w
}

func TestWatcher_ImportsDebouncedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	h := &recordingHandler{}
	startWatcher(t, dir, h)

	path := filepath.Join(dir, "r.json")
	for i := 0; i < 3; i++ {
		if err := writeFile(path, `{"id":"r"}`); err != nil {
			t.Fatal(err)
		}
	}
	if err := writeFile(filepath.Join(dir, "notes.txt"), "skip"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		imported, _ := h.snapshot()
		return len(imported) > 0
	})
	time.Sleep(150 * time.Millisecond)
	imported, _ := h.snapshot()
	if len(imported) != 1 || !strings.HasSuffix(imported[0], "r.json") {
		t.Errorf("expected a single debounced import of r.json, got %v", imported)
	}
}

func TestWatcher_RemoveForwarded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "r.yaml")
	if err := writeFile(path, "id: r\n"); err != nil {
		t.Fatal(err)
	}
	h := &recordingHandler{}
	startWatcher(t, dir, h)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		_, removed := h.snapshot()
		return hasSuffix(removed, "r.yaml")
	})
}

func TestWatcher_NewDirectory(t *testing.T) {
	dir := t.TempDir()
	h := &recordingHandler{}
	startWatcher(t, dir, h)

	nested := filepath.Join(dir, "recipes", "thai")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := writeFile(filepath.Join(nested, "curry.json"), `{"id":"curry"}`); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		imported, _ := h.snapshot()
		return hasSuffix(imported, "curry.json")
	})
}

func TestWatcher_SyncImportsExisting(t *testing.T) {
	dir := t.TempDir()
	_ = writeFile(filepath.Join(dir, "a.json"), "{}")
	_ = os.MkdirAll(filepath.Join(dir, "sub"), 0755)
	_ = writeFile(filepath.Join(dir, "sub", "b.yaml"), "{}")
	_ = writeFile(filepath.Join(dir, "c.txt"), "")

	h := &recordingHandler{}
	w := startWatcher(t, dir, h)
	w.Sync()

	imported, _ := h.snapshot()
	if len(imported) != 2 || !hasSuffix(imported, "a.json") || !hasSuffix(imported, "b.yaml") {
		t.Errorf("imported: %v", imported)
	}
}

func TestWatcher_StartCreatesMissingDir(t *testing.T) {
	root := filepath.Join(t.TempDir(), "watch", "me")
	startWatcher(t, root, &recordingHandler{})
	if _, err := os.Stat(root); err != nil {
		t.Errorf("directory should exist after Start: %v", err)
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.json", []string{".json"}, true},
		{"/a/b.JSON", []string{"json"}, true},
		{"/a/b.yml", []string{".yaml"}, false},
		{"/a/b", nil, true},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.extensions); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir, path string
		want      bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.json", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
	}
	for _, tt := range tests {
		if got := inDir(tt.dir, tt.path); got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}
