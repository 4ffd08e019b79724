// Package indextest はすべてのベクトルインデックス実装が満たすべき振る舞いを検証します
package indextest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jinford/semsearch/internal/module/vectorindex/domain"
	"github.com/jinford/semsearch/internal/shared/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Dimension は契約テストで使うベクトルの次元数
const Dimension = 4

// Factory は空の（まだ Ensure していない）ストアを作成します
type Factory func(t *testing.T, name string) domain.Store

// Record は契約テスト用のレコードを作成します
func Record(id string, vector []float32, source, text string) domain.Record {
	return domain.Record{
		ID:     id,
		Vector: vector,
		Metadata: map[string]string{
			"text":   text,
			"source": source,
		},
	}
}

// ID は契約テスト用の決定的なUUIDを返します
func ID(n int) string {
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", n)
}

// Run は契約テストを実行します
func Run(t *testing.T, newStore Factory) {
	t.Run("describe before ensure", func(t *testing.T) {
		store := newStore(t, "contract-missing")
		_, err := store.Describe(context.Background())
		assert.ErrorIs(t, err, domain.ErrIndexNotFound)
	})

	t.Run("ensure is idempotent and checks dimension", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t, "contract-ensure")

		spec := domain.Spec{Name: "contract-ensure", Dimension: Dimension, Metric: domain.MetricCosine}
		require.NoError(t, store.Ensure(ctx, spec))
		require.NoError(t, store.Ensure(ctx, spec))

		spec.Dimension = Dimension + 1
		err := store.Ensure(ctx, spec)
		assert.True(t, errors.Is(err, failure.ErrDimensionMismatch), "got %v", err)

		stats, err := store.Describe(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.RecordCount)
		assert.Equal(t, Dimension, stats.Dimension)
		assert.Equal(t, domain.MetricCosine, stats.Metric)
	})

	t.Run("upsert is idempotent", func(t *testing.T) {
		ctx := context.Background()
		store := ensured(t, newStore, "contract-upsert")

		records := []domain.Record{
			Record(ID(1), []float32{1, 0, 0, 0}, "a.md", "alpha"),
			Record(ID(2), []float32{0, 1, 0, 0}, "a.md", "beta"),
			Record(ID(3), []float32{0, 0, 1, 0}, "b.md", "gamma"),
		}

		n, err := store.Upsert(ctx, records)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		// 同じIDで上書き
		records[0].Metadata["text"] = "alpha v2"
		n, err = store.Upsert(ctx, records)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		stats, err := store.Describe(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.RecordCount)

		results, err := store.Query(ctx, []float32{1, 0, 0, 0}, 1, nil)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, ID(1), results[0].ID)
		assert.Equal(t, "alpha v2", results[0].Text)
	})

	t.Run("dimension mismatch writes nothing", func(t *testing.T) {
		ctx := context.Background()
		store := ensured(t, newStore, "contract-dim")

		records := []domain.Record{
			Record(ID(1), []float32{1, 0, 0, 0}, "a.md", "ok"),
			Record(ID(2), []float32{1, 0, 0}, "a.md", "short"),
		}

		n, err := store.Upsert(ctx, records)
		assert.Equal(t, 0, n)
		assert.True(t, errors.Is(err, failure.ErrDimensionMismatch), "got %v", err)

		stats, err := store.Describe(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.RecordCount)
	})

	t.Run("query orders by similarity and respects k and filter", func(t *testing.T) {
		ctx := context.Background()
		store := ensured(t, newStore, "contract-query")

		_, err := store.Upsert(ctx, []domain.Record{
			Record(ID(1), []float32{1, 0, 0, 0}, "a.md", "exact"),
			Record(ID(2), []float32{0.9, 0.1, 0, 0}, "b.md", "close"),
			Record(ID(3), []float32{0.5, 0.5, 0, 0}, "a.md", "middle"),
			Record(ID(4), []float32{0, 0, 0, 1}, "b.md", "far"),
		})
		require.NoError(t, err)

		results, err := store.Query(ctx, []float32{1, 0, 0, 0}, 3, nil)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, []string{"exact", "close", "middle"}, texts(results))
		assert.InDelta(t, 1.0, results[0].Score, 1e-4)
		for i := 1; i < len(results); i++ {
			assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
		}
		assert.Equal(t, "a.md", results[0].Metadata["source"])

		filtered, err := store.Query(ctx, []float32{1, 0, 0, 0}, 10,
			&domain.Filter{Equals: map[string]string{"source": "b.md"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"close", "far"}, texts(filtered))

		_, err = store.Query(ctx, []float32{1, 0}, 3, nil)
		assert.True(t, errors.Is(err, failure.ErrDimensionMismatch))
	})

	t.Run("drop removes the index", func(t *testing.T) {
		ctx := context.Background()
		store := ensured(t, newStore, "contract-drop")

		_, err := store.Upsert(ctx, []domain.Record{Record(ID(1), []float32{1, 0, 0, 0}, "a.md", "x")})
		require.NoError(t, err)

		dropped, err := store.Drop(ctx)
		require.NoError(t, err)
		assert.True(t, dropped)

		dropped, err = store.Drop(ctx)
		require.NoError(t, err)
		assert.False(t, dropped)

		_, err = store.Describe(ctx)
		assert.ErrorIs(t, err, domain.ErrIndexNotFound)
	})
}

func ensured(t *testing.T, newStore Factory, name string) domain.Store {
	t.Helper()
	store := newStore(t, name)
	require.NoError(t, store.Ensure(context.Background(), domain.Spec{Name: name, Dimension: Dimension, Metric: domain.MetricCosine}))
	return store
}

func texts(results []domain.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Text
	}
	return out
}
