package domain

import (
	"context"

	"github.com/jinford/semsearch/internal/shared/failure"
)

// Embedder はクォータ管理済みの埋め込みポートです
// 失敗時は *failure.Terminal（またはコンテキストのエラー）を返します
type Embedder interface {
	// Embed は入力と同じ順序でベクトルを返します
	Embed(ctx context.Context, texts []string, progress failure.Progress) ([][]float32, error)
}
