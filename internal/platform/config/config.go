package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	vdomain "github.com/jinford/semsearch/internal/module/vectorindex/domain"
	"github.com/joho/godotenv"
)

// 埋め込みプロバイダ
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// ベクトルインデックスのバックエンド
const (
	BackendPgvector = "pgvector"
	BackendQdrant   = "qdrant"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// providerDefaults はプロバイダごとのデフォルトのモデルと次元数
var providerDefaults = map[string]struct {
	model     string
	dimension int
}{
	ProviderGemini: {model: "gemini-embedding-001", dimension: 3072},
	ProviderOpenAI: {model: "text-embedding-3-small", dimension: 1536},
	ProviderOllama: {model: "nomic-embed-text", dimension: 768},
}

// Config はアプリケーション全体の設定を保持します
type Config struct {
	Chunking  ChunkingConfig
	Embedding EmbeddingConfig
	Index     IndexConfig
	Pipeline  PipelineConfig
	Loader    LoaderConfig

	// バックエンドごとの接続設定
	Database DatabaseConfig
	Qdrant   QdrantConfig
	SQLite   SQLiteConfig

	Log LogConfig
}

// ChunkingConfig はチャンク分割の設定
type ChunkingConfig struct {
	Size    int
	Overlap int
}

// EmbeddingConfig は埋め込みプロバイダとクォータ管理の設定
type EmbeddingConfig struct {
	Provider  string
	Model     string
	Dimension int
	TaskType  string

	GoogleAPIKey  string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OllamaHost    string

	MaxAttempts       int
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
	RequestsPerMinute int
}

// IndexConfig はベクトルインデックスの設定
type IndexConfig struct {
	Backend     string
	Name        string
	Metric      string
	MaxAttempts int
}

// PipelineConfig はインデックス構築と検索の設定
type PipelineConfig struct {
	BatchSize      int
	MaxBatchTokens int
	TopK           int
}

// LoaderConfig は文書読み込みの設定
type LoaderConfig struct {
	MaxDocumentChars int
	MaxPDFPages      int
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// QdrantConfig は Qdrant の gRPC 接続設定
type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// SQLiteConfig は組み込みインデックスの設定
type SQLiteConfig struct {
	Path string
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level  string
	Format string
}

// Default はデフォルト値の設定を返します
func Default() *Config {
	return &Config{
		Chunking: ChunkingConfig{Size: 1000, Overlap: 200},
		Embedding: EmbeddingConfig{
			Provider:    ProviderGemini,
			OllamaHost:  "http://localhost:11434",
			MaxAttempts: 3,
			BaseBackoff: time.Second,
			MaxBackoff:  16 * time.Second,
		},
		Index: IndexConfig{
			Backend:     BackendPgvector,
			Name:        "semantic-search",
			Metric:      string(vdomain.MetricCosine),
			MaxAttempts: 3,
		},
		Pipeline: PipelineConfig{BatchSize: 16, TopK: 5},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "semsearch",
			DBName:  "semsearch",
			SSLMode: "disable",
		},
		Qdrant: QdrantConfig{Host: "localhost", Port: 6334},
		SQLite: SQLiteConfig{Path: "semsearch.db"},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load は設定を読み込みます
// 優先順位は 環境変数（.env を含む）> 設定ファイル > デフォルト値 です
func Load(envFilePath, configFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := Default()
	if configFilePath != "" {
		if err := LoadFile(cfg, configFilePath); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	cfg.applyProviderDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Chunking.Size = getEnvAsInt("CHUNK_SIZE", cfg.Chunking.Size)
	cfg.Chunking.Overlap = getEnvAsInt("CHUNK_OVERLAP", cfg.Chunking.Overlap)

	e := &cfg.Embedding
	e.Provider = strings.ToLower(getEnv("EMBEDDING_PROVIDER", e.Provider))
	e.Model = getEnv("EMBEDDING_MODEL", e.Model)
	e.Dimension = getEnvAsInt("EMBEDDING_DIMENSION", e.Dimension)
	e.TaskType = getEnv("EMBEDDING_TASK_TYPE", e.TaskType)
	e.GoogleAPIKey = getEnv("GOOGLE_API_KEY", e.GoogleAPIKey)
	e.OpenAIAPIKey = getEnv("OPENAI_API_KEY", e.OpenAIAPIKey)
	e.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", e.OpenAIBaseURL)
	e.OllamaHost = getEnv("OLLAMA_HOST", e.OllamaHost)
	e.MaxAttempts = getEnvAsInt("EMBED_MAX_ATTEMPTS", e.MaxAttempts)
	e.BaseBackoff = getEnvAsDuration("EMBED_BASE_BACKOFF", e.BaseBackoff)
	e.MaxBackoff = getEnvAsDuration("EMBED_MAX_BACKOFF", e.MaxBackoff)
	e.RequestsPerMinute = getEnvAsInt("EMBED_REQUESTS_PER_MINUTE", e.RequestsPerMinute)

	cfg.Index.Backend = strings.ToLower(getEnv("INDEX_BACKEND", cfg.Index.Backend))
	cfg.Index.Name = getEnv("INDEX_NAME", cfg.Index.Name)
	cfg.Index.Metric = getEnv("INDEX_METRIC", cfg.Index.Metric)
	cfg.Index.MaxAttempts = getEnvAsInt("INDEX_MAX_ATTEMPTS", cfg.Index.MaxAttempts)

	cfg.Pipeline.BatchSize = getEnvAsInt("BATCH_SIZE", cfg.Pipeline.BatchSize)
	cfg.Pipeline.MaxBatchTokens = getEnvAsInt("MAX_BATCH_TOKENS", cfg.Pipeline.MaxBatchTokens)
	cfg.Pipeline.TopK = getEnvAsInt("TOP_K", cfg.Pipeline.TopK)

	cfg.Loader.MaxDocumentChars = getEnvAsInt("MAX_DOCUMENT_CHARS", cfg.Loader.MaxDocumentChars)
	cfg.Loader.MaxPDFPages = getEnvAsInt("MAX_PDF_PAGES", cfg.Loader.MaxPDFPages)

	cfg.Database = DatabaseConfig{
		Host:     getEnv("DB_HOST", cfg.Database.Host),
		Port:     getEnvAsInt("DB_PORT", cfg.Database.Port),
		User:     getEnv("DB_USER", cfg.Database.User),
		Password: getEnv("DB_PASSWORD", cfg.Database.Password),
		DBName:   getEnv("DB_NAME", cfg.Database.DBName),
		SSLMode:  getEnv("DB_SSLMODE", cfg.Database.SSLMode),
	}
	cfg.Qdrant = QdrantConfig{
		Host:   getEnv("QDRANT_HOST", cfg.Qdrant.Host),
		Port:   getEnvAsInt("QDRANT_PORT", cfg.Qdrant.Port),
		APIKey: getEnv("QDRANT_API_KEY", cfg.Qdrant.APIKey),
		UseTLS: getEnvAsBool("QDRANT_USE_TLS", cfg.Qdrant.UseTLS),
	}
	cfg.SQLite.Path = getEnv("SQLITE_PATH", cfg.SQLite.Path)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
}

// applyProviderDefaults はモデルと次元数が未指定の場合にプロバイダのデフォルト値を設定します
func (c *Config) applyProviderDefaults() {
	d, ok := providerDefaults[c.Embedding.Provider]
	if !ok {
		return
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = d.model
	}
	if c.Embedding.Dimension == 0 && c.Embedding.Model == d.model {
		c.Embedding.Dimension = d.dimension
	}
}

// Validate は設定値の整合性を検証します
func (c *Config) Validate() error {
	var errs []error

	if c.Chunking.Size <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE must be positive: %d", c.Chunking.Size))
	}
	if c.Chunking.Overlap < 0 {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP must not be negative: %d", c.Chunking.Overlap))
	}
	if c.Chunking.Size > 0 && c.Chunking.Overlap >= c.Chunking.Size {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", c.Chunking.Overlap, c.Chunking.Size))
	}

	if _, ok := providerDefaults[c.Embedding.Provider]; !ok {
		errs = append(errs, fmt.Errorf("unknown EMBEDDING_PROVIDER %q (gemini, openai, ollama)", c.Embedding.Provider))
	}
	if c.Embedding.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_DIMENSION must be set for model %q", c.Embedding.Model))
	}
	if c.Embedding.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("EMBED_MAX_ATTEMPTS must be positive: %d", c.Embedding.MaxAttempts))
	}
	if c.Embedding.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("EMBED_REQUESTS_PER_MINUTE must not be negative: %d", c.Embedding.RequestsPerMinute))
	}

	switch c.Index.Backend {
	case BackendPgvector, BackendQdrant, BackendSQLite, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown INDEX_BACKEND %q (pgvector, qdrant, sqlite, memory)", c.Index.Backend))
	}
	metric, err := vdomain.ParseMetric(c.Index.Metric)
	if err != nil {
		errs = append(errs, err)
	}
	if err := (vdomain.Spec{Name: c.Index.Name, Dimension: max(c.Embedding.Dimension, 1), Metric: metric}).Validate(); err != nil {
		errs = append(errs, fmt.Errorf("invalid INDEX_NAME: %w", err))
	}

	if c.Pipeline.BatchSize <= 0 || c.Pipeline.BatchSize > 100 {
		errs = append(errs, fmt.Errorf("BATCH_SIZE must be between 1 and 100: %d", c.Pipeline.BatchSize))
	}
	if c.Pipeline.TopK <= 0 {
		errs = append(errs, fmt.Errorf("TOP_K must be positive: %d", c.Pipeline.TopK))
	}

	return errors.Join(errs...)
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数を time.Duration として取得します（"500ms", "2s" など）
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
