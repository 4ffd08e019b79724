package domain

import (
	"context"
)

// Chunker は文書をチャンクに分割する戦略インターフェース
type Chunker interface {
	// Split は文書を順序付きのチャンク列に分割します（副作用なし）
	Split(doc *Document) []*Chunk
}

// DocumentLoader は文書を読み込むインターフェース
type DocumentLoader interface {
	// LoadFile は単一ファイルを読み込みます
	LoadFile(ctx context.Context, path string) (*Document, error)

	// LoadDirectory はディレクトリ配下の対象ファイルを読み込みます
	LoadDirectory(ctx context.Context, dir string) ([]*Document, error)
}

// TokenCounter はテキストのトークン数を数えるインターフェース
type TokenCounter interface {
	CountTokens(text string) int
}
