// Package config provides configuration loading and structs for the ruiji server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool             `yaml:"debug"`
	Server    ServerConfig     `yaml:"server"`
	Storage   StorageConfig    `yaml:"storage"`
	Embedding EmbeddingConfig  `yaml:"embedding"`
	LLM       LLMConfig        `yaml:"llm"`
	Provider  ProviderConfig   `yaml:"provider"`
	Search    SearchConfig     `yaml:"search"`
	Types     []RecordTypeSpec `yaml:"types"`
	Watch     WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the record database and local indices.
type StorageConfig struct {
	DatabasePath     string `yaml:"database_path"`
	VectorIndexPath  string `yaml:"vector_index_path"`
	KeywordIndexPath string `yaml:"keyword_index_path"`
}

// EmbeddingConfig selects and configures the embedder used by providers that
// embed locally (memory, qdrant, pgvector).
type EmbeddingConfig struct {
	Provider    string `yaml:"provider"` // onnx, ollama, openai, mock
	ModelPath   string `yaml:"model_path"`
	Dimensions  int    `yaml:"dimensions"`
	MaxTokens   int    `yaml:"max_tokens"`
	CacheSize   int    `yaml:"cache_size"`
	OllamaURL   string `yaml:"ollama_url"`
	OllamaModel string `yaml:"ollama_model"`
	OpenAIKey   string `yaml:"openai_key"`
	OpenAIModel string `yaml:"openai_model"`
}

// LLMConfig configures the completion model used to answer questions.
type LLMConfig struct {
	Provider     string  `yaml:"provider"` // ollama, openai, none
	URL          string  `yaml:"url"`
	Model        string  `yaml:"model"`
	APIKey       string  `yaml:"api_key"`
	Temperature  float64 `yaml:"temperature"`
	SystemPrompt string  `yaml:"system_prompt"`
}

// ProviderConfig selects the default vector search provider and holds the
// settings for each backend.
type ProviderConfig struct {
	Type     string         `yaml:"type"` // memory, keyword, qdrant, pgvector
	Keyword  KeywordConfig  `yaml:"keyword"`
	Qdrant   QdrantConfig   `yaml:"qdrant"`
	Pgvector PgvectorConfig `yaml:"pgvector"`
}

// KeywordConfig tunes the bleve keyword provider.
type KeywordConfig struct {
	Fuzziness int `yaml:"fuzziness"` // 0 disables typo-tolerant matching
}

// QdrantConfig holds the Qdrant gRPC address and collection prefix.
type QdrantConfig struct {
	Addr             string `yaml:"addr"`
	CollectionPrefix string `yaml:"collection_prefix"`
}

// PgvectorConfig holds the Postgres DSN for the pgvector provider.
type PgvectorConfig struct {
	DSN         string `yaml:"dsn"`
	TableSuffix string `yaml:"table_suffix"`
}

// SearchConfig holds the defaults for similarity search and re-embedding.
type SearchConfig struct {
	DefaultLimit       int     `yaml:"default_limit"`
	MaxLimit           int     `yaml:"max_limit"`
	DefaultMaxDistance float64 `yaml:"default_max_distance"`
	DefaultAskK        int     `yaml:"default_ask_k"`
	BatchSize          int     `yaml:"batch_size"`
}

// RecordTypeSpec declares a searchable record type.
type RecordTypeSpec struct {
	Name           string   `yaml:"name"`
	Provider       string   `yaml:"provider,omitempty"` // overrides provider.type for this record type
	EmbeddingField string   `yaml:"embedding_field,omitempty"`
	ExcludeFields  []string `yaml:"exclude_fields,omitempty"`
}

// WatchConfig holds the directories whose record files are imported and watched.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ProviderFor returns the provider type for a record type, falling back to
// the default provider.
func (c *Config) ProviderFor(spec RecordTypeSpec) string {
	if spec.Provider != "" {
		return spec.Provider
	}
	return c.Provider.Type
}

// TypeSpec returns the declared record type with the given name.
func (c *Config) TypeSpec(name string) (RecordTypeSpec, bool) {
	for _, t := range c.Types {
		if t.Name == name {
			return t, true
		}
	}
	return RecordTypeSpec{}, false
}

// Load reads and parses the config file at path, applies environment
// overrides and defaults, and expands paths.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnv(&cfg)
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	cfg.Storage.KeywordIndexPath = expandPath(cfg.Storage.KeywordIndexPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks that record type names are unique and provider types known.
func Validate(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Types))
	for _, t := range cfg.Types {
		if t.Name == "" {
			return fmt.Errorf("record type without name")
		}
		if seen[t.Name] {
			return fmt.Errorf("record type declared twice: %s", t.Name)
		}
		seen[t.Name] = true
		if !knownProvider(cfg.ProviderFor(t)) {
			return fmt.Errorf("record type %s: unknown provider %q", t.Name, cfg.ProviderFor(t))
		}
	}
	return nil
}

func knownProvider(name string) bool {
	switch name {
	case "memory", "keyword", "qdrant", "pgvector":
		return true
	}
	return false
}

// applyEnv fills secrets from the environment when the file leaves them empty.
func applyEnv(cfg *Config) {
	if cfg.Embedding.OpenAIKey == "" {
		cfg.Embedding.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.LLM.APIKey == "" && cfg.LLM.Provider == "openai" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Provider.Pgvector.DSN == "" {
		cfg.Provider.Pgvector.DSN = os.Getenv("RUIJI_PGVECTOR_DSN")
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
