package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/ruiji/data/db/records.db"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "/usr/local/var/ruiji/data/indices/vectors"
	}
	if cfg.Storage.KeywordIndexPath == "" {
		cfg.Storage.KeywordIndexPath = "/usr/local/var/ruiji/data/indices/bleve"
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/ruiji/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.OllamaURL == "" {
		cfg.Embedding.OllamaURL = "http://localhost:11434"
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "none"
	}
	if cfg.LLM.URL == "" {
		switch cfg.LLM.Provider {
		case "ollama":
			cfg.LLM.URL = "http://localhost:11434"
		case "openai":
			cfg.LLM.URL = "https://api.openai.com/v1"
		}
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.2
	}

	if cfg.Provider.Type == "" {
		cfg.Provider.Type = "memory"
	}
	if cfg.Provider.Qdrant.Addr == "" {
		cfg.Provider.Qdrant.Addr = "localhost:6334"
	}
	if cfg.Provider.Qdrant.CollectionPrefix == "" {
		cfg.Provider.Qdrant.CollectionPrefix = "ruiji_"
	}
	if cfg.Provider.Pgvector.TableSuffix == "" {
		cfg.Provider.Pgvector.TableSuffix = "_embeddings"
	}

	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 1
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Search.DefaultMaxDistance == 0 {
		cfg.Search.DefaultMaxDistance = 2.0
	}
	if cfg.Search.DefaultAskK == 0 {
		cfg.Search.DefaultAskK = 4
	}
	if cfg.Search.BatchSize == 0 {
		cfg.Search.BatchSize = 1000
	}

	for i := range cfg.Types {
		if cfg.Types[i].EmbeddingField == "" {
			cfg.Types[i].EmbeddingField = "embedding"
		}
	}

	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".json", ".yaml", ".yml"}
	}
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
