package container

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	embeddomain "github.com/jinford/semsearch/internal/module/embedding/domain"
	embedtest "github.com/jinford/semsearch/internal/module/embedding/testing"
	indexdomain "github.com/jinford/semsearch/internal/module/indexing/domain"
	"github.com/jinford/semsearch/internal/module/vectorindex/adapter/memory"
	"github.com/jinford/semsearch/internal/platform/config"
	"github.com/jinford/semsearch/internal/shared/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig(dim int) *config.Config {
	cfg := config.Default()
	cfg.Index.Backend = config.BackendMemory
	cfg.Index.Name = "container-test"
	cfg.Embedding.Model = "fake-embedding"
	cfg.Embedding.Dimension = dim
	cfg.Chunking.Size = 200
	cfg.Chunking.Overlap = 20
	return cfg
}

func TestContainer_IndexAndSearch(t *testing.T) {
	// Setup
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.md"), []byte("goroutines and channels make concurrency simple"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bread.txt"), []byte("knead the sourdough and let it rise overnight"), 0o644))

	c, err := New(ctx, testConfig(32),
		WithLogger(testLogger()),
		WithEmbedder(&embedtest.MockEmbedder{Dim: 32}),
		WithReporter(failure.NewReporter(&bytes.Buffer{})),
	)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.EnsureIndex(ctx))

	// Execute
	result, err := c.IndexService.IndexPath(ctx, indexdomain.IndexParams{Dir: dir})
	require.NoError(t, err)

	results, err := c.QueryEngine.Search(ctx, "knead the sourdough and let it rise overnight", 1, nil)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, result.DocumentsProcessed)
	assert.Equal(t, 2, result.ChunksEmbedded)
	require.Len(t, results, 1)
	assert.Equal(t, filepath.ToSlash(filepath.Join(dir, "bread.txt")), results[0].Metadata[indexdomain.MetadataSource])
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)

	stats, err := c.Store.Describe(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.RecordCount)
	assert.Equal(t, 32, stats.Dimension)
	assert.Equal(t, usageURL(c.Config.Embedding.Provider), c.Guard.UsageURL())
}

func TestContainer_EnsureIndexDimensionMismatch(t *testing.T) {
	// Setup
	ctx := context.Background()
	store := memory.New("container-test")

	var out bytes.Buffer
	first, err := New(ctx, testConfig(8), WithVectorIndex(store), WithoutEmbedder(), WithLogger(testLogger()))
	require.NoError(t, err)
	require.NoError(t, first.EnsureIndex(ctx))

	second, err := New(ctx, testConfig(16), WithVectorIndex(store), WithoutEmbedder(),
		WithLogger(testLogger()), WithReporter(failure.NewReporter(&out)))
	require.NoError(t, err)

	// Execute
	err = second.EnsureIndex(ctx)

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrDimensionMismatch)
	assert.Contains(t, out.String(), "delete-index")
}

func TestContainer_WithoutEmbedder(t *testing.T) {
	c, err := New(context.Background(), testConfig(8), WithoutEmbedder(), WithLogger(testLogger()))

	require.NoError(t, err)
	assert.Nil(t, c.Guard)
	assert.Nil(t, c.IndexService)
	assert.Nil(t, c.QueryEngine)
	assert.NotNil(t, c.Store)
	require.NotNil(t, c.Chunker)
	assert.Equal(t, c.Config.Chunking.Size, c.Chunker.Size())
	assert.Equal(t, c.Config.Chunking.Overlap, c.Chunker.Overlap())
}

func TestContainer_MissingAPIKey(t *testing.T) {
	cfg := testConfig(8)
	cfg.Embedding.Provider = config.ProviderOpenAI
	cfg.Embedding.OpenAIAPIKey = ""

	_, err := New(context.Background(), cfg, WithLogger(testLogger()))

	require.Error(t, err)
	assert.ErrorIs(t, err, embeddomain.ErrAPIKeyNotSet)
}

func TestContainer_SQLiteBackend(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(8)
	cfg.Index.Backend = config.BackendSQLite
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "index.db")

	c, err := New(ctx, cfg, WithoutEmbedder(), WithLogger(testLogger()))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.EnsureIndex(ctx))
	stats, err := c.Store.Describe(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", stats.Backend)
	assert.Equal(t, 0, stats.RecordCount)
}

func TestUsageURL(t *testing.T) {
	assert.Contains(t, usageURL(config.ProviderGemini), "ai.google.dev")
	assert.Contains(t, usageURL(config.ProviderOpenAI), "openai.com")
	assert.Empty(t, usageURL(config.ProviderOllama))
}
