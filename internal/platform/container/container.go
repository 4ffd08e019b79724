package container

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	embedadapter "github.com/jinford/semsearch/internal/module/embedding/adapter"
	embedapp "github.com/jinford/semsearch/internal/module/embedding/application"
	embeddomain "github.com/jinford/semsearch/internal/module/embedding/domain"
	"github.com/jinford/semsearch/internal/module/indexing/adapter/chunker"
	"github.com/jinford/semsearch/internal/module/indexing/adapter/loader"
	indexapp "github.com/jinford/semsearch/internal/module/indexing/application"
	indexdomain "github.com/jinford/semsearch/internal/module/indexing/domain"
	searchapp "github.com/jinford/semsearch/internal/module/search/application"
	vadapter "github.com/jinford/semsearch/internal/module/vectorindex/adapter"
	"github.com/jinford/semsearch/internal/module/vectorindex/adapter/memory"
	"github.com/jinford/semsearch/internal/module/vectorindex/adapter/pg"
	"github.com/jinford/semsearch/internal/module/vectorindex/adapter/qdrant"
	"github.com/jinford/semsearch/internal/module/vectorindex/adapter/sqlite"
	vdomain "github.com/jinford/semsearch/internal/module/vectorindex/domain"
	"github.com/jinford/semsearch/internal/platform/config"
	"github.com/jinford/semsearch/internal/shared/failure"
)

// Container はアプリケーションの依存関係を保持する
// WithoutEmbedder を指定した場合、埋め込みを使うサービス（IndexService, Pipeline, QueryEngine, Guard）は nil になる
type Container struct {
	Config       *config.Config
	IndexService *indexapp.IndexService
	Pipeline     *indexapp.Pipeline
	QueryEngine  *searchapp.QueryEngine
	Guard        *embedapp.QuotaGuard
	Chunker      *chunker.RecursiveChunker
	Store        vdomain.Store
	Reporter     *failure.Reporter

	logger *slog.Logger
}

type containerOptions struct {
	logger          *slog.Logger
	embedder        embeddomain.Embedder
	store           vdomain.Store
	reporter        *failure.Reporter
	withoutEmbedder bool
}

// Option は Container 構築時のオプション
type Option func(*containerOptions)

// WithLogger はロガーを差し替える
func WithLogger(logger *slog.Logger) Option {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithEmbedder はカスタム Embedder を注入する
func WithEmbedder(embedder embeddomain.Embedder) Option {
	return func(opts *containerOptions) {
		opts.embedder = embedder
	}
}

// WithVectorIndex はベクトルインデックスを差し替える
func WithVectorIndex(store vdomain.Store) Option {
	return func(opts *containerOptions) {
		opts.store = store
	}
}

// WithReporter は終端エラーの出力先を差し替える
func WithReporter(reporter *failure.Reporter) Option {
	return func(opts *containerOptions) {
		opts.reporter = reporter
	}
}

// WithoutEmbedder は埋め込みプロバイダに接続せずにコンテナを作る（info, delete-index 用）
func WithoutEmbedder() Option {
	return func(opts *containerOptions) {
		opts.withoutEmbedder = true
	}
}

// New は設定からコンテナを生成する
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Container, error) {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.reporter == nil {
		options.reporter = failure.NewReporter(os.Stderr)
	}
	log := options.logger

	// VectorIndex
	store := options.store
	if store == nil {
		var err error
		store, err = newStore(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s index: %w", cfg.Index.Backend, err)
		}
	}
	store = vadapter.NewRetrying(store, vadapter.RetryOptions{MaxAttempts: cfg.Index.MaxAttempts}, log)

	splitter, err := chunker.New(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create chunker: %w", err)
	}

	c := &Container{
		Config:   cfg,
		Chunker:  splitter,
		Store:    store,
		Reporter: options.reporter,
		logger:   log,
	}
	if options.withoutEmbedder {
		return c, nil
	}

	// Embedder
	embedder := options.embedder
	if embedder == nil {
		var err error
		embedder, err = newEmbedder(ctx, cfg)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to create %s embedder: %w", cfg.Embedding.Provider, err)
		}
	}

	guardOpts := embedapp.Options{
		MaxAttempts:       cfg.Embedding.MaxAttempts,
		BaseBackoff:       cfg.Embedding.BaseBackoff,
		MaxBackoff:        cfg.Embedding.MaxBackoff,
		RequestsPerMinute: cfg.Embedding.RequestsPerMinute,
		UsageURL:          usageURL(cfg.Embedding.Provider),
		Reporter:          options.reporter,
	}
	c.Guard = embedapp.NewQuotaGuard(embedder, guardOpts, log)

	queryGuard := c.Guard
	if qe, ok := embedder.(embeddomain.QueryEmbedder); ok {
		queryGuard = embedapp.NewQuotaGuard(qe.ForQuery(), guardOpts, log)
	}

	// TokenCounter
	var tokenCounter indexdomain.TokenCounter
	if cfg.Pipeline.MaxBatchTokens > 0 {
		counter, err := embedadapter.NewTokenCounter()
		if err != nil {
			log.Warn("Token encoding unavailable, estimating tokens", "error", err)
			counter = &embedadapter.TokenCounter{}
		}
		tokenCounter = counter
	}

	// Pipeline / IndexService
	c.Pipeline = indexapp.NewPipeline(splitter, c.Guard, store, indexapp.Options{
		BatchSize:      cfg.Pipeline.BatchSize,
		MaxBatchTokens: cfg.Pipeline.MaxBatchTokens,
		TokenCounter:   tokenCounter,
		Reporter:       options.reporter,
	}, log)

	docLoader := loader.New(loader.Options{
		MaxDocumentChars: cfg.Loader.MaxDocumentChars,
		MaxPDFPages:      cfg.Loader.MaxPDFPages,
	}, log)
	c.IndexService = indexapp.NewIndexService(docLoader, c.Pipeline, log)

	// QueryEngine
	c.QueryEngine = searchapp.NewQueryEngine(queryGuard, store, searchapp.Options{
		DefaultTopK: cfg.Pipeline.TopK,
		Reporter:    options.reporter,
	}, log)

	return c, nil
}

// IndexSpec は設定から作成するインデックスの条件を返す
func (c *Container) IndexSpec() vdomain.Spec {
	return vdomain.Spec{
		Name:      c.Config.Index.Name,
		Dimension: c.Config.Embedding.Dimension,
		Metric:    vdomain.Metric(c.Config.Index.Metric),
	}
}

// EnsureIndex はインデックスを作成するか、既存インデックスの次元数を確認する
// 次元数が異なる場合は診断を出力して終端エラーを返す
func (c *Container) EnsureIndex(ctx context.Context) error {
	err := c.Store.Ensure(ctx, c.IndexSpec())
	if err == nil {
		return nil
	}
	if _, ok := failure.KindOf(err); !ok {
		return fmt.Errorf("failed to ensure index: %w", err)
	}

	t := failure.NewTerminal(err, failure.Progress{Operation: "ensure_index", Total: 1, Unit: "indexes"}, 1, "")
	c.Reporter.Report(t)
	return t
}

// Close は内部リソースを解放する
func (c *Container) Close() {
	if c == nil || c.Store == nil {
		return
	}
	if err := c.Store.Close(); err != nil {
		c.logger.Warn("Failed to close vector index", "error", err)
	}
}

func newStore(ctx context.Context, cfg *config.Config) (vdomain.Store, error) {
	name := cfg.Index.Name
	switch cfg.Index.Backend {
	case config.BackendPgvector:
		pool, err := pg.Connect(ctx, pg.ConnectionParams{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			return nil, err
		}
		return pg.New(pool, name), nil
	case config.BackendQdrant:
		return qdrant.Dial(qdrant.Config{
			Host:   cfg.Qdrant.Host,
			Port:   cfg.Qdrant.Port,
			APIKey: cfg.Qdrant.APIKey,
			UseTLS: cfg.Qdrant.UseTLS,
		}, name)
	case config.BackendSQLite:
		return sqlite.Open(cfg.SQLite.Path, name)
	case config.BackendMemory:
		return memory.New(name), nil
	}
	return nil, fmt.Errorf("unknown index backend: %q", cfg.Index.Backend)
}

func newEmbedder(ctx context.Context, cfg *config.Config) (embeddomain.Embedder, error) {
	e := cfg.Embedding
	switch e.Provider {
	case config.ProviderGemini:
		return embedadapter.NewGeminiEmbedder(ctx, e.GoogleAPIKey, e.Model, e.Dimension, e.TaskType)
	case config.ProviderOpenAI:
		return embedadapter.NewOpenAIEmbedder(e.OpenAIAPIKey, e.OpenAIBaseURL, e.Model, e.Dimension)
	case config.ProviderOllama:
		return embedadapter.NewOllamaEmbedder(e.OllamaHost, e.Model, e.Dimension)
	}
	return nil, fmt.Errorf("unknown embedding provider: %q", e.Provider)
}

func usageURL(provider string) string {
	switch provider {
	case config.ProviderGemini:
		return embedadapter.GeminiUsageURL
	case config.ProviderOpenAI:
		return embedadapter.OpenAIUsageURL
	}
	return ""
}
