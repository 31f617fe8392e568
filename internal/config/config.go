// Package config loads and validates the engine configuration.
//
// Configuration is resolved in three layers, later layers winning:
//  1. Built-in defaults.
//  2. An optional YAML config file.
//  3. CLEARPATH_* environment variables (a .env file is honored).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default values for the RAG parameters. These mirror the documented
// behavior of the retrieval pipeline and should not be changed casually:
// the chunking and threshold values are part of the engine contract.
const (
	DefaultChunkSize           = 512
	DefaultChunkOverlap        = 64
	DefaultTopK                = 5
	DefaultSimilarityThreshold = 0.35
	DefaultEmbeddingDim        = 384

	DefaultSimpleModel  = "llama-3.1-8b-instant"
	DefaultComplexModel = "llama-3.3-70b-versatile"

	DefaultMaxFileSizeBytes = 50 * 1024 * 1024
	DefaultMaxQueryChars    = 2000

	DefaultQueryRatePerMinute  = 30
	DefaultIngestRatePerMinute = 5
)

// Config is the complete engine configuration.
type Config struct {
	// GroqAPIKey authenticates against the Groq OpenAI-compatible API.
	// Required for serving; CLEARPATH_GROQ_API_KEY.
	GroqAPIKey string `yaml:"groq_api_key"`

	// GroqBaseURL is the OpenAI-compatible endpoint base URL.
	GroqBaseURL string `yaml:"groq_base_url"`

	Paths  PathsConfig  `yaml:"paths"`
	RAG    RAGConfig    `yaml:"rag"`
	Models ModelsConfig `yaml:"models"`
	Embed  EmbedConfig  `yaml:"embeddings"`
	Server ServerConfig `yaml:"server"`
	Limits LimitsConfig `yaml:"limits"`
}

// PathsConfig configures on-disk locations.
type PathsConfig struct {
	// IndexDir holds index.faiss and index.pkl.
	IndexDir string `yaml:"index_dir"`
	// PDFDir is where uploaded PDFs are stored.
	PDFDir string `yaml:"pdf_dir"`
	// QueryLogPath is the append-only JSONL query log file.
	QueryLogPath string `yaml:"query_log_path"`
	// AppLogPath is the application (slog) log file. Empty disables file logging.
	AppLogPath string `yaml:"app_log_path"`
}

// RAGConfig configures chunking and retrieval.
type RAGConfig struct {
	ChunkSize           int     `yaml:"chunk_size"`
	ChunkOverlap        int     `yaml:"chunk_overlap"`
	TopK                int     `yaml:"top_k"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	EmbeddingDim        int     `yaml:"embedding_dim"`
}

// ModelsConfig maps router classes to Groq model identifiers.
type ModelsConfig struct {
	Simple  string `yaml:"simple"`
	Complex string `yaml:"complex"`
}

// EmbedConfig configures the embedding backend.
type EmbedConfig struct {
	// Backend selects the embedder: "http" (default) or "static".
	Backend string `yaml:"backend"`
	// Host is the embedding server endpoint for the http backend.
	Host string `yaml:"host"`
	// Model is the embedding model identifier.
	Model string `yaml:"model"`
	// BatchSize is the ingestion batch size.
	BatchSize int `yaml:"batch_size"`
	// CacheSize is the query-embedding LRU cache size.
	CacheSize int `yaml:"cache_size"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	LogLevel       string   `yaml:"log_level"`
}

// LimitsConfig holds transport-level limits. Rate limits are recorded here
// for the HTTP layer; the core engine does not enforce them.
type LimitsConfig struct {
	MaxFileSizeBytes    int64 `yaml:"max_file_size_bytes"`
	MaxQueryChars       int   `yaml:"max_query_chars"`
	QueryRatePerMinute  int   `yaml:"query_rate_per_minute"`
	IngestRatePerMinute int   `yaml:"ingest_rate_per_minute"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		GroqBaseURL: "https://api.groq.com/openai/v1",
		Paths: PathsConfig{
			IndexDir:     "data/faiss_index",
			PDFDir:       "data/pdfs",
			QueryLogPath: "data/logs/queries.jsonl",
			AppLogPath:   "",
		},
		RAG: RAGConfig{
			ChunkSize:           DefaultChunkSize,
			ChunkOverlap:        DefaultChunkOverlap,
			TopK:                DefaultTopK,
			SimilarityThreshold: DefaultSimilarityThreshold,
			EmbeddingDim:        DefaultEmbeddingDim,
		},
		Models: ModelsConfig{
			Simple:  DefaultSimpleModel,
			Complex: DefaultComplexModel,
		},
		Embed: EmbedConfig{
			Backend:   "http",
			Host:      "http://localhost:11434",
			Model:     "all-minilm:l6-v2",
			BatchSize: 32,
			CacheSize: 1000,
		},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8000,
			AllowedOrigins: []string{"http://localhost:5173"},
			LogLevel:       "info",
		},
		Limits: LimitsConfig{
			MaxFileSizeBytes:    DefaultMaxFileSizeBytes,
			MaxQueryChars:       DefaultMaxQueryChars,
			QueryRatePerMinute:  DefaultQueryRatePerMinute,
			IngestRatePerMinute: DefaultIngestRatePerMinute,
		},
	}
}

// Load reads the configuration from an optional YAML file and the
// environment. A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	// Best effort: a .env file in the working directory supplies env vars.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overrides config values from CLEARPATH_* environment variables.
func (c *Config) applyEnv() {
	setStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setFloat := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}

	setStr("CLEARPATH_GROQ_API_KEY", &c.GroqAPIKey)
	setStr("CLEARPATH_GROQ_BASE_URL", &c.GroqBaseURL)

	setStr("CLEARPATH_FAISS_INDEX_PATH", &c.Paths.IndexDir)
	setStr("CLEARPATH_PDF_DIR", &c.Paths.PDFDir)
	setStr("CLEARPATH_LOG_FILE_PATH", &c.Paths.QueryLogPath)
	setStr("CLEARPATH_APP_LOG_PATH", &c.Paths.AppLogPath)

	setInt("CLEARPATH_CHUNK_SIZE", &c.RAG.ChunkSize)
	setInt("CLEARPATH_CHUNK_OVERLAP", &c.RAG.ChunkOverlap)
	setInt("CLEARPATH_TOP_K", &c.RAG.TopK)
	setFloat("CLEARPATH_SIMILARITY_THRESHOLD", &c.RAG.SimilarityThreshold)
	setInt("CLEARPATH_EMBEDDING_DIM", &c.RAG.EmbeddingDim)

	setStr("CLEARPATH_SIMPLE_MODEL", &c.Models.Simple)
	setStr("CLEARPATH_COMPLEX_MODEL", &c.Models.Complex)

	setStr("CLEARPATH_EMBED_BACKEND", &c.Embed.Backend)
	setStr("CLEARPATH_EMBED_HOST", &c.Embed.Host)
	setStr("CLEARPATH_EMBED_MODEL", &c.Embed.Model)

	setStr("CLEARPATH_LOG_LEVEL", &c.Server.LogLevel)
	setInt("CLEARPATH_PORT", &c.Server.Port)

	if v := os.Getenv("CLEARPATH_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		out := origins[:0]
		for _, o := range origins {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
		c.Server.AllowedOrigins = out
	}
}

// Validate checks that the configuration is usable for serving.
// requireKey controls whether the Groq API key must be present
// (CLI commands that never call the generation API pass false).
func (c *Config) Validate(requireKey bool) error {
	if requireKey && c.GroqAPIKey == "" {
		return fmt.Errorf("CLEARPATH_GROQ_API_KEY is required")
	}
	if c.RAG.EmbeddingDim <= 0 {
		return fmt.Errorf("embedding_dim must be positive, got %d", c.RAG.EmbeddingDim)
	}
	if c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("chunk_overlap (%d) must be smaller than chunk_size (%d)",
			c.RAG.ChunkOverlap, c.RAG.ChunkSize)
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.RAG.TopK)
	}
	if c.RAG.SimilarityThreshold < 0 || c.RAG.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0, 1], got %g", c.RAG.SimilarityThreshold)
	}
	switch c.Embed.Backend {
	case "http", "static":
	default:
		return fmt.Errorf("unknown embeddings backend %q (want http or static)", c.Embed.Backend)
	}
	return nil
}

// IndexPath returns the path of the binary index artifact.
func (c *Config) IndexPath() string {
	return filepath.Join(c.Paths.IndexDir, "index.faiss")
}

// SidecarPath returns the path of the metadata sidecar artifact.
func (c *Config) SidecarPath() string {
	return filepath.Join(c.Paths.IndexDir, "index.pkl")
}
