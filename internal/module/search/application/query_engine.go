package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jinford/semsearch/internal/module/search/domain"
	vdomain "github.com/jinford/semsearch/internal/module/vectorindex/domain"
	"github.com/jinford/semsearch/internal/shared/failure"
)

// DefaultTopK は k を指定しない場合の取得件数
const DefaultTopK = 5

const operationSearch = "search"

// Options は QueryEngine の設定です
type Options struct {
	DefaultTopK int
	// Reporter はインデックス読み取りの終端エラーを出力する（nil の場合は出力しない）
	Reporter *failure.Reporter
}

// QueryEngine はクエリを埋め込み、類似度の高いチャンクを返します
type QueryEngine struct {
	embedder domain.Embedder
	index    domain.Index
	opts     Options
	log      *slog.Logger
}

// NewQueryEngine は新しい QueryEngine を作成します
func NewQueryEngine(embedder domain.Embedder, index domain.Index, opts Options, log *slog.Logger) *QueryEngine {
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = DefaultTopK
	}
	return &QueryEngine{
		embedder: embedder,
		index:    index,
		opts:     opts,
		log:      log,
	}
}

// Search はクエリに類似するチャンクをスコアの降順で最大 k 件返します
// インデックスが存在しないか空の場合は埋め込みを行わずに空の結果を返します
func (e *QueryEngine) Search(ctx context.Context, query string, k int, filter *vdomain.Filter) ([]vdomain.Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrEmptyQuery
	}
	if k <= 0 {
		k = e.opts.DefaultTopK
	}

	progress := failure.Progress{Operation: operationSearch, Completed: 0, Total: 1, Unit: "queries"}

	stats, err := e.index.Describe(ctx)
	if errors.Is(err, vdomain.ErrIndexNotFound) {
		e.log.Info("Index does not exist, returning no results", "index", stats.Name)
		return []vdomain.Result{}, nil
	}
	if err != nil {
		return nil, e.indexFailure(ctx, "describe index", err, progress)
	}
	if stats.RecordCount == 0 {
		e.log.Info("Index is empty, returning no results", "index", stats.Name)
		return []vdomain.Result{}, nil
	}
	if k > stats.RecordCount {
		k = stats.RecordCount
	}

	vectors, err := e.embedder.Embed(ctx, []string{query}, progress)
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 query embedding, got %d", len(vectors))
	}

	results, err := e.index.Query(ctx, vectors[0], k, filter)
	if err != nil {
		return nil, e.indexFailure(ctx, "query index", err, progress)
	}

	e.log.Info("Search completed",
		"index", stats.Name,
		"k", k,
		"results", len(results),
	)

	return results, nil
}

// indexFailure は分類済みのインデックスエラーを終端エラーに変換します
func (e *QueryEngine) indexFailure(ctx context.Context, op string, err error, progress failure.Progress) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if _, ok := failure.KindOf(err); !ok {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	t := failure.NewTerminal(err, progress, 1, "")
	e.opts.Reporter.Report(t)
	return t
}
