package main

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hyperjump/ruiji/internal/models"
	"go.uber.org/zap"
)

func TestSearchArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"recipes", "green curry", "-limit", "5"},
			expected: []string{"-limit", "5", "recipes", "green curry"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-limit", "5", "recipes", "green curry"},
			expected: []string{"-limit", "5", "recipes", "green curry"},
		},
		{
			name:     "positionals only returns unchanged",
			args:     []string{"recipes", "green curry"},
			expected: []string{"recipes", "green curry"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := searchArgsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("searchArgsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"curry"}, "curry"},
		{"multiple words", []string{"green", "curry"}, "green curry"},
		{"single quoted phrase", []string{"green curry"}, "green curry"},
		{"empty", []string{}, ""},
		{"whitespace", []string{"  ", ""}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildSearchQuery(tt.args); got != tt.expected {
				t.Errorf("buildSearchQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestParseFilterValue(t *testing.T) {
	tests := []struct {
		in   string
		want interface{}
	}{
		{"true", true},
		{"false", false},
		{"null", nil},
		{"42", int64(42)},
		{"1.5", 1.5},
		{"thai", "thai"},
	}
	for _, tt := range tests {
		if got := parseFilterValue(tt.in); got != tt.want {
			t.Errorf("parseFilterValue(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestWhereFlag(t *testing.T) {
	w := whereFlag{}
	if err := w.Set("cuisine=thai"); err != nil {
		t.Fatal(err)
	}
	if err := w.Set("servings=4"); err != nil {
		t.Fatal(err)
	}
	if w["cuisine"] != "thai" || w["servings"] != int64(4) {
		t.Errorf("where: %v", w)
	}
	if err := w.Set("novalue"); err == nil {
		t.Error("expected error without '='")
	}
	if err := w.Set("=x"); err == nil {
		t.Error("expected error for empty field")
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "./test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s (canon %s), want %s (canon %s)", resolved, resolvedCanon, configPath, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "./test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
}

func TestInitializeComponents(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
storage:
  database_path: "./data/records.db"
  vector_index_path: "./data/vectors"
  keyword_index_path: "./data/bleve"
embedding:
  provider: mock
  dimensions: 32
provider:
  type: memory
types:
  - name: recipes
    exclude_fields: [notes]
  - name: articles
    provider: keyword
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer components.Close()

	if got := components.Registry.Types(); !reflect.DeepEqual(got, []string{"articles", "recipes"}) {
		t.Fatalf("declared types: %v", got)
	}
	recipes, err := components.Registry.Get("recipes")
	if err != nil {
		t.Fatal(err)
	}
	rec, err := recipes.Save(ctx, models.RecordInput{
		ID:     "curry",
		Fields: map[string]interface{}{"title": "Green curry", "notes": "secret"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID != "curry" {
		t.Errorf("saved id: %s", rec.ID)
	}
	if err := components.Registry.Persist(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "data", "vectors", "recipes.idx")); err != nil {
		t.Errorf("persisted index: %v", err)
	}

	articles, _ := components.Registry.Get("articles")
	if articles.Provider().Name() != "keyword" {
		t.Errorf("articles provider: %s", articles.Provider().Name())
	}
}
