// Package config loads the YAML configuration for the vectra CLI.
package config

import (
	"errors"
	"os"

	"gopkg.in/yaml.v3"
)

// EmbedderConfig configures the OpenAI-compatible embeddings client.
type EmbedderConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Model             string  `yaml:"model"`
	MaxTokens         int     `yaml:"max_tokens"`
	Dimensions        int     `yaml:"dimensions,omitempty"`
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	ChunkSize      int      `yaml:"chunk_size"`
	ChunkOverlap   int      `yaml:"chunk_overlap"`
	Separators     []string `yaml:"separators,omitempty"`
	KeepSeparators bool     `yaml:"keep_separators,omitempty"`
}

// S3StorageConfig contains the bucket details for S3-backed indexes.
type S3StorageConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix,omitempty"`
}

// MinIOStorageConfig contains connection details for MinIO-backed indexes.
type MinIOStorageConfig struct {
	Endpoint     string `yaml:"endpoint"`
	AccessKeyEnv string `yaml:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env"`
	UseSSL       bool   `yaml:"use_ssl"`
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix,omitempty"`
}

// StorageConfig selects the storage backend for the index folder.
type StorageConfig struct {
	Type  string              `yaml:"type"` // local, s3, minio
	S3    *S3StorageConfig    `yaml:"s3,omitempty"`
	MinIO *MinIOStorageConfig `yaml:"minio,omitempty"`
}

// IndexConfig configures the index itself.
type IndexConfig struct {
	Folder         string   `yaml:"folder"`
	IndexedFields  []string `yaml:"indexed_fields,omitempty"`
	DeleteIfExists bool     `yaml:"delete_if_exists,omitempty"`
}

// AppConfig is the root CLI configuration structure.
type AppConfig struct {
	Index    IndexConfig    `yaml:"index"`
	Storage  StorageConfig  `yaml:"storage"`
	Embedder EmbedderConfig `yaml:"embedder"`
	Chunker  ChunkerConfig  `yaml:"chunker"`
	LogLevel string         `yaml:"log_level,omitempty"`
}

// Load reads a config from path. A missing file returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Index.Folder == "" {
		cfg.Index.Folder = "./index"
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "local"
	}
	if cfg.Embedder.BaseURL == "" {
		cfg.Embedder.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embedder.APIKeyEnv == "" {
		cfg.Embedder.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedder.Model == "" {
		cfg.Embedder.Model = "text-embedding-3-small"
	}
	if cfg.Embedder.MaxTokens == 0 {
		cfg.Embedder.MaxTokens = 8000
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 400
	}
	if cfg.Chunker.ChunkOverlap == 0 {
		cfg.Chunker.ChunkOverlap = 40
	}
}
