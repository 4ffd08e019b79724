package application_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	embedapp "github.com/jinford/semsearch/internal/module/embedding/application"
	embedtest "github.com/jinford/semsearch/internal/module/embedding/testing"
	"github.com/jinford/semsearch/internal/module/indexing/adapter/chunker"
	"github.com/jinford/semsearch/internal/module/indexing/application"
	"github.com/jinford/semsearch/internal/module/indexing/domain"
	testutil "github.com/jinford/semsearch/internal/module/indexing/testing"
	"github.com/jinford/semsearch/internal/module/vectorindex/adapter/memory"
	vdomain "github.com/jinford/semsearch/internal/module/vectorindex/domain"
	"github.com/jinford/semsearch/internal/shared/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDimension = 64

func newIndex(t *testing.T, dim int) *memory.Index {
	t.Helper()
	idx := memory.New("test-index")
	require.NoError(t, idx.Ensure(context.Background(), vdomain.Spec{Name: "test-index", Dimension: dim}))
	return idx
}

func newChunker(t *testing.T) *chunker.RecursiveChunker {
	t.Helper()
	c, err := chunker.New(chunker.DefaultChunkSize, chunker.DefaultChunkOverlap)
	require.NoError(t, err)
	return c
}

func newGuard(embedder *embedtest.MockEmbedder) *embedapp.QuotaGuard {
	return embedapp.NewQuotaGuard(embedder, embedapp.Options{MaxAttempts: 1}, testLogger())
}

// wordCounter は単語数をトークン数として数える
type wordCounter struct{}

func (wordCounter) CountTokens(text string) int { return len(strings.Fields(text)) }

// failingIndex は Upsert だけ失敗させる
type failingIndex struct {
	*memory.Index
	err error
}

func (f *failingIndex) Upsert(context.Context, []vdomain.Record) (int, error) {
	return 0, f.err
}

func TestPipeline_BuildIndex_Success(t *testing.T) {
	// Setup
	ctx := context.Background()
	docs := testutil.TestDocuments(5, 1)
	idx := newIndex(t, testDimension)
	embedder := &embedtest.MockEmbedder{Dim: testDimension}

	pipeline := application.NewPipeline(newChunker(t), newGuard(embedder), idx,
		application.Options{BatchSize: 2}, testLogger())

	// Execute
	result, err := pipeline.BuildIndex(ctx, docs)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 5, result.DocumentsProcessed)
	assert.Equal(t, 5, result.ChunksTotal)
	assert.Equal(t, 5, result.ChunksEmbedded)
	assert.Equal(t, 0, result.ChunksFailed)
	assert.Equal(t, 3, result.Batches)
	assert.Equal(t, 3, embedder.CallCount())

	stats, err := idx.Describe(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.RecordCount)
}

func TestPipeline_BuildIndex_QuotaExceededMidRun(t *testing.T) {
	// Setup
	ctx := context.Background()
	docs := testutil.TestDocuments(20, 1)
	idx := newIndex(t, testDimension)

	calls := 0
	fake := embedtest.NewFakeEmbedder(testDimension)
	embedder := &embedtest.MockEmbedder{
		Dim: testDimension,
		EmbedFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			calls++
			if calls == 4 {
				return nil, failure.RateLimit("test.embed", 429, errors.New("RESOURCE_EXHAUSTED: quota exceeded"))
			}
			return fake.Embed(ctx, texts)
		},
	}

	pipeline := application.NewPipeline(newChunker(t), newGuard(embedder), idx,
		application.Options{BatchSize: 2}, testLogger())

	// Execute
	result, err := pipeline.BuildIndex(ctx, docs)

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrQuotaExceeded)
	assert.ErrorIs(t, err, failure.ErrRateLimitExceeded)

	terminal, ok := failure.AsTerminal(err)
	require.True(t, ok)
	assert.Equal(t, "build_index", terminal.Operation)
	assert.Equal(t, 6, terminal.Completed)
	assert.Equal(t, 20, terminal.Total)
	assert.Equal(t, 14, terminal.Remaining())
	assert.Equal(t, 1, terminal.Attempts)

	require.NotNil(t, result)
	assert.Equal(t, 6, result.ChunksEmbedded)
	assert.Equal(t, 14, result.ChunksFailed)
	assert.Equal(t, 6, result.DocumentsProcessed)
	assert.Equal(t, 3, result.Batches)
	assert.Equal(t, 4, embedder.CallCount(), "rate limit must not be retried")

	stats, err := idx.Describe(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, stats.RecordCount, "records written before the failure are kept")
}

func TestPipeline_BuildIndex_Idempotent(t *testing.T) {
	// Setup
	ctx := context.Background()
	docs := testutil.TestDocuments(4, 3)
	idx := newIndex(t, testDimension)
	c, err := chunker.New(40, 10)
	require.NoError(t, err)

	pipeline := application.NewPipeline(c, newGuard(&embedtest.MockEmbedder{Dim: testDimension}), idx,
		application.Options{BatchSize: 5}, testLogger())

	// Execute
	first, err := pipeline.BuildIndex(ctx, docs)
	require.NoError(t, err)
	before, err := idx.Describe(ctx)
	require.NoError(t, err)

	second, err := pipeline.BuildIndex(ctx, docs)
	require.NoError(t, err)
	after, err := idx.Describe(ctx)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, first.ChunksTotal, second.ChunksTotal)
	assert.Equal(t, first.ChunksTotal, before.RecordCount)
	assert.Equal(t, before.RecordCount, after.RecordCount)
}

func TestPipeline_BuildIndex_ChunkRetrievesItself(t *testing.T) {
	// Setup
	ctx := context.Background()
	docs := testutil.TestDocuments(6, 2)
	idx := newIndex(t, testDimension)
	fake := embedtest.NewFakeEmbedder(testDimension)

	pipeline := application.NewPipeline(newChunker(t), newGuard(&embedtest.MockEmbedder{Dim: testDimension}), idx,
		application.Options{}, testLogger())

	_, err := pipeline.BuildIndex(ctx, docs)
	require.NoError(t, err)

	target := docs[3].Text
	vectors, err := fake.Embed(ctx, []string{target})
	require.NoError(t, err)

	// Execute
	results, err := idx.Query(ctx, vectors[0], 3, nil)

	// Assert
	require.NotEmpty(t, results)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)

	var found bool
	for _, r := range results {
		if r.Text == target {
			found = true
			assert.InDelta(t, 1.0, r.Score, 1e-5)
			assert.Equal(t, docs[3].Source, r.Metadata[domain.MetadataSource])
			assert.Equal(t, domain.RecordID(docs[3].Source, 0), r.ID)
		}
	}
	assert.True(t, found, "a chunk's own text should retrieve it")
}

func TestPipeline_BuildIndex_ProgressAndBatchOrder(t *testing.T) {
	// Setup
	ctx := context.Background()
	docs := testutil.TestDocuments(5, 1)
	var batches [][]string
	guard := &testutil.MockGuard{
		EmbedFunc: func(ctx context.Context, texts []string, progress failure.Progress) ([][]float32, error) {
			batches = append(batches, texts)
			out := make([][]float32, len(texts))
			for i := range out {
				out[i] = []float32{1, 0, 0, 0}
			}
			return out, nil
		},
	}

	pipeline := application.NewPipeline(newChunker(t), guard, newIndex(t, 4),
		application.Options{BatchSize: 2}, testLogger())

	// Execute
	_, err := pipeline.BuildIndex(ctx, docs)

	// Assert
	require.NoError(t, err)
	require.Len(t, batches, 3)
	assert.Equal(t, docs[0].Text, batches[0][0])
	assert.Equal(t, docs[4].Text, batches[2][0])

	progress := guard.Progress()
	require.Len(t, progress, 3)
	for i, p := range progress {
		assert.Equal(t, "build_index", p.Operation)
		assert.Equal(t, 5, p.Total)
		assert.Equal(t, i*2, p.Completed)
		assert.Equal(t, "chunks", p.Unit)
	}
}

func TestPipeline_BuildIndex_Cancellation(t *testing.T) {
	// Setup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	guard := &testutil.MockGuard{
		EmbedFunc: func(ctx context.Context, texts []string, progress failure.Progress) ([][]float32, error) {
			cancel()
			out := make([][]float32, len(texts))
			for i := range out {
				out[i] = []float32{0, 1, 0, 0}
			}
			return out, nil
		},
	}
	idx := newIndex(t, 4)

	pipeline := application.NewPipeline(newChunker(t), guard, idx,
		application.Options{BatchSize: 2}, testLogger())

	// Execute
	result, err := pipeline.BuildIndex(ctx, testutil.TestDocuments(6, 1))

	// Assert
	require.ErrorIs(t, err, context.Canceled)
	_, isTerminal := failure.AsTerminal(err)
	assert.False(t, isTerminal)
	assert.Equal(t, 2, result.ChunksEmbedded)
	assert.Equal(t, 4, result.ChunksFailed)
	assert.Len(t, guard.Progress(), 1)
}

func TestPipeline_BuildIndex_UpsertUnavailable(t *testing.T) {
	// Setup
	idx := &failingIndex{
		Index: newIndex(t, 4),
		err:   failure.IndexUnavailable("test.upsert", errors.New("connection refused")),
	}

	pipeline := application.NewPipeline(newChunker(t), &testutil.MockGuard{}, idx,
		application.Options{BatchSize: 3}, testLogger())

	// Execute
	result, err := pipeline.BuildIndex(context.Background(), testutil.TestDocuments(4, 1))

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrIndexUnavailable)
	assert.NotErrorIs(t, err, failure.ErrQuotaExceeded)

	terminal, ok := failure.AsTerminal(err)
	require.True(t, ok)
	assert.Equal(t, failure.KindIndexUnavailable, terminal.Kind)
	assert.Equal(t, 4, terminal.Remaining())
	assert.Equal(t, 0, result.ChunksEmbedded)
}

func TestPipeline_BuildIndex_DimensionMismatchWritesNothing(t *testing.T) {
	// Setup
	ctx := context.Background()
	idx := newIndex(t, 8)

	pipeline := application.NewPipeline(newChunker(t), &testutil.MockGuard{}, idx,
		application.Options{}, testLogger())

	// Execute
	_, err := pipeline.BuildIndex(ctx, testutil.TestDocuments(2, 1))

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrDimensionMismatch)

	terminal, ok := failure.AsTerminal(err)
	require.True(t, ok)
	assert.Equal(t, failure.KindDimensionMismatch, terminal.Kind)

	stats, err := idx.Describe(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.RecordCount)
}

func TestPipeline_BuildIndex_EmptyDocumentsCountAsProcessed(t *testing.T) {
	// Setup
	docs := []*domain.Document{
		testutil.TestDocument("empty-1.txt", ""),
		testutil.TestDocument("a.txt", "alpha beta gamma"),
		testutil.TestDocument("empty-2.txt", ""),
		testutil.TestDocument("b.txt", "delta epsilon"),
		testutil.TestDocument("empty-3.txt", ""),
	}

	pipeline := application.NewPipeline(newChunker(t), &testutil.MockGuard{}, newIndex(t, 4),
		application.Options{BatchSize: 1}, testLogger())

	// Execute
	result, err := pipeline.BuildIndex(context.Background(), docs)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 5, result.DocumentsProcessed)
	assert.Equal(t, 2, result.ChunksEmbedded)
	assert.Equal(t, 2, result.Batches)
}

func TestPipeline_BuildIndex_NoChunks(t *testing.T) {
	// Setup
	guard := &testutil.MockGuard{
		EmbedFunc: func(ctx context.Context, texts []string, progress failure.Progress) ([][]float32, error) {
			t.Fatal("Embed should not be called")
			return nil, nil
		},
	}
	pipeline := application.NewPipeline(newChunker(t), guard, newIndex(t, 4), application.Options{}, testLogger())

	// Execute
	result, err := pipeline.BuildIndex(context.Background(), nil)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 0, result.ChunksTotal)
	assert.Equal(t, 0, result.Batches)
}

func TestPipeline_BuildIndex_TokenLimitedBatches(t *testing.T) {
	// Setup
	docs := []*domain.Document{
		testutil.TestDocument("a.txt", "one two three four"),
		testutil.TestDocument("b.txt", "five six"),
		testutil.TestDocument("c.txt", "seven eight nine"),
		testutil.TestDocument("d.txt", strings.Repeat("word ", 12)),
		testutil.TestDocument("e.txt", "ten"),
	}
	var sizes []int
	guard := &testutil.MockGuard{
		EmbedFunc: func(ctx context.Context, texts []string, progress failure.Progress) ([][]float32, error) {
			sizes = append(sizes, len(texts))
			out := make([][]float32, len(texts))
			for i := range out {
				out[i] = []float32{0, 0, 1, 0}
			}
			return out, nil
		},
	}

	pipeline := application.NewPipeline(newChunker(t), guard, newIndex(t, 4), application.Options{
		BatchSize:      10,
		MaxBatchTokens: 8,
		TokenCounter:   wordCounter{},
	}, testLogger())

	// Execute
	result, err := pipeline.BuildIndex(context.Background(), docs)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 5, result.ChunksEmbedded)
	// 4+2 | 3 | 12（単独でも1件は送る） | 1
	assert.Equal(t, []int{2, 1, 1, 1}, sizes)
}

func TestNewPipeline_BatchSizeCapped(t *testing.T) {
	// Setup
	docs := testutil.TestDocuments(150, 1)
	var sizes []int
	guard := &testutil.MockGuard{
		EmbedFunc: func(ctx context.Context, texts []string, progress failure.Progress) ([][]float32, error) {
			sizes = append(sizes, len(texts))
			out := make([][]float32, len(texts))
			for i := range out {
				out[i] = []float32{1, 1, 0, 0}
			}
			return out, nil
		},
	}

	pipeline := application.NewPipeline(newChunker(t), guard, newIndex(t, 4),
		application.Options{BatchSize: 500}, testLogger())

	// Execute
	_, err := pipeline.BuildIndex(context.Background(), docs)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []int{100, 50}, sizes)
}
