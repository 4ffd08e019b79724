package domain

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// === Document / Chunk ===

// Document はローダーが読み込んだ1つの文書を表します
// 読み込み後は不変で、所有者は呼び出し側です
type Document struct {
	// Source は文書の識別子（ファイルパスなど）
	Source string `json:"source"`
	// Text は文書の本文
	Text string `json:"text"`
	// Metadata はローダーが付与した追加情報（format など）
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Chunk は文書の部分文字列です
// 埋め込み後は破棄され、ベクトルとメタデータのみがインデックスに残ります
type Chunk struct {
	// Source は元文書の識別子
	Source string `json:"source"`
	// Index は文書内でのチャンク番号（0始まり）
	Index int `json:"index"`
	// Offset は文書内での開始位置（rune単位）
	Offset int `json:"offset"`
	// Text はチャンクの本文
	Text string `json:"text"`
}

// Len はチャンクの長さ（rune単位）を返します
func (c *Chunk) Len() int {
	return len([]rune(c.Text))
}

// End はチャンクの終了位置（rune単位、排他的）を返します
func (c *Chunk) End() int {
	return c.Offset + c.Len()
}

// === IndexRecord ID ===

// recordNamespace はレコードIDを導出するための UUID 名前空間です
var recordNamespace = uuid.MustParse("7c4f6a2e-3b1d-5e8f-9a0c-2d6b8e4f1a37")

// RecordID は (文書識別子, チャンク番号) から決定的なレコードIDを導出します
// 同じ文書を再インデックスすると同じIDになり、上書き（冪等なupsert）になります
func RecordID(source string, index int) string {
	key := fmt.Sprintf("%s#%d", source, index)
	return uuid.NewSHA1(recordNamespace, []byte(key)).String()
}

// メタデータのキー
const (
	MetadataText       = "text"
	MetadataSource     = "source"
	MetadataChunkIndex = "chunk_index"
	MetadataOffset     = "offset"
)

// RecordMetadata はチャンクと元文書からレコードのメタデータを組み立てます
func RecordMetadata(doc *Document, chunk *Chunk) map[string]string {
	md := make(map[string]string, len(doc.Metadata)+4)
	for k, v := range doc.Metadata {
		md[k] = v
	}
	md[MetadataText] = chunk.Text
	md[MetadataSource] = chunk.Source
	md[MetadataChunkIndex] = strconv.Itoa(chunk.Index)
	md[MetadataOffset] = strconv.Itoa(chunk.Offset)
	return md
}

// === IndexParams ===

// IndexParams はインデックス化の対象を指定するパラメータ
// Dir と File のどちらか一方を指定します
type IndexParams struct {
	// Dir は再帰的に読み込むディレクトリ
	Dir string
	// File は単一の文書ファイル
	File string
}
