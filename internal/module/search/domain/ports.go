package domain

import (
	"context"
	"errors"

	vdomain "github.com/jinford/semsearch/internal/module/vectorindex/domain"
	"github.com/jinford/semsearch/internal/shared/failure"
)

// ErrEmptyQuery は空白のみのクエリを指定した場合のエラー
var ErrEmptyQuery = errors.New("query must not be empty")

// Embedder はクォータ管理済みの埋め込みポートです
type Embedder interface {
	Embed(ctx context.Context, texts []string, progress failure.Progress) ([][]float32, error)
}

// Index は検索で使うベクトルインデックスの読み取り操作です
type Index interface {
	Query(ctx context.Context, vector []float32, k int, filter *vdomain.Filter) ([]vdomain.Result, error)
	Describe(ctx context.Context) (vdomain.Stats, error)
}
