package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	embeddomain "github.com/jinford/semsearch/internal/module/embedding/domain"
	"github.com/jinford/semsearch/internal/module/indexing/domain"
	vdomain "github.com/jinford/semsearch/internal/module/vectorindex/domain"
	"github.com/jinford/semsearch/internal/shared/failure"
)

// DefaultBatchSize は1回の埋め込み呼び出しに含めるチャンク数のデフォルト値
const DefaultBatchSize = 16

// operationBuildIndex は進捗・診断に表示する処理名
const operationBuildIndex = "build_index"

// Options はパイプラインの設定です
type Options struct {
	// BatchSize は1回の埋め込み呼び出しに含める最大チャンク数（上限100）
	BatchSize int
	// MaxBatchTokens が正の場合、1バッチの推定トークン数をこの値以下に抑える
	MaxBatchTokens int
	// TokenCounter は MaxBatchTokens の判定に使う
	TokenCounter domain.TokenCounter
	// Reporter はインデックス書き込みの終端エラーを出力する（nil の場合は出力しない）
	Reporter *failure.Reporter
}

// BuildResult はインデックス構築の結果です
// 途中で失敗した場合も、それまでに保存された件数を保持します
type BuildResult struct {
	// DocumentsProcessed はすべてのチャンクを保存し終えた文書数
	DocumentsProcessed int
	// ChunksTotal は全文書のチャンク数
	ChunksTotal int
	// ChunksEmbedded は埋め込みとインデックスへの保存が完了したチャンク数
	ChunksEmbedded int
	// ChunksFailed は保存されなかったチャンク数
	ChunksFailed int
	// Batches は完了したバッチ数
	Batches  int
	Duration time.Duration
}

// Pipeline は文書をチャンクに分割し、埋め込んでベクトルインデックスに保存します
// 外部呼び出しは常に1つずつ順番に行います
type Pipeline struct {
	chunker  domain.Chunker
	embedder domain.Embedder
	index    vdomain.VectorIndex
	opts     Options
	logger   *slog.Logger
}

// NewPipeline は新しい Pipeline を作成します
func NewPipeline(chunker domain.Chunker, embedder domain.Embedder, index vdomain.VectorIndex, opts Options, logger *slog.Logger) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.BatchSize > embeddomain.MaxBatchSize {
		opts.BatchSize = embeddomain.MaxBatchSize
	}
	return &Pipeline{
		chunker:  chunker,
		embedder: embedder,
		index:    index,
		opts:     opts,
		logger:   logger,
	}
}

// pending は埋め込み待ちのチャンクです
type pending struct {
	doc    *domain.Document
	chunk  *domain.Chunk
	docIdx int
}

// BuildIndex は文書を入力順に処理してインデックスを構築します
// 失敗・キャンセル時は途中までの結果とエラーを両方返します
func (p *Pipeline) BuildIndex(ctx context.Context, docs []*domain.Document) (*BuildResult, error) {
	start := time.Now()
	result := &BuildResult{}

	// 総数を先に確定させるため、すべての文書を先に分割する
	var items []pending
	remaining := make([]int, len(docs))
	for i, doc := range docs {
		chunks := p.chunker.Split(doc)
		remaining[i] = len(chunks)
		for _, c := range chunks {
			items = append(items, pending{doc: doc, chunk: c, docIdx: i})
		}
	}
	result.ChunksTotal = len(items)

	p.logger.Info("Starting index build",
		"documents", len(docs),
		"chunks", len(items),
		"batchSize", p.opts.BatchSize,
	)

	docCursor := 0
	advanceDocs := func() {
		for docCursor < len(docs) && remaining[docCursor] == 0 {
			result.DocumentsProcessed++
			docCursor++
		}
	}
	advanceDocs()

	finish := func(err error) (*BuildResult, error) {
		result.ChunksFailed = result.ChunksTotal - result.ChunksEmbedded
		result.Duration = time.Since(start)
		if err != nil {
			p.logger.Warn("Index build stopped",
				"embedded", result.ChunksEmbedded,
				"total", result.ChunksTotal,
				"remaining", result.ChunksFailed,
				"error", err)
		}
		return result, err
	}

	for next := 0; next < len(items); {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}

		end := p.nextBatchEnd(items, next)
		batch := items[next:end]

		progress := failure.Progress{
			Operation: operationBuildIndex,
			Completed: result.ChunksEmbedded,
			Total:     result.ChunksTotal,
			Unit:      "chunks",
		}

		texts := make([]string, len(batch))
		for i, it := range batch {
			texts[i] = it.chunk.Text
		}

		vectors, err := p.embedder.Embed(ctx, texts, progress)
		if err != nil {
			return finish(err)
		}

		records := make([]vdomain.Record, len(batch))
		for i, it := range batch {
			records[i] = vdomain.Record{
				ID:       domain.RecordID(it.chunk.Source, it.chunk.Index),
				Vector:   vectors[i],
				Metadata: domain.RecordMetadata(it.doc, it.chunk),
			}
		}

		if _, err := p.index.Upsert(ctx, records); err != nil {
			return finish(p.upsertFailure(ctx, err, progress))
		}

		result.ChunksEmbedded += len(batch)
		result.Batches++
		for _, it := range batch {
			remaining[it.docIdx]--
		}
		advanceDocs()

		p.logger.Debug("Batch indexed",
			"batch", result.Batches,
			"size", len(batch),
			"embedded", result.ChunksEmbedded,
			"total", result.ChunksTotal,
		)

		next = end
	}

	res, _ := finish(nil)
	p.logger.Info("Index build completed",
		"documents", res.DocumentsProcessed,
		"chunks", res.ChunksEmbedded,
		"batches", res.Batches,
		"duration", res.Duration,
	)
	return res, nil
}

// upsertFailure はインデックス書き込みの失敗を終端エラーに変換します
func (p *Pipeline) upsertFailure(ctx context.Context, err error, progress failure.Progress) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, vdomain.ErrIndexNotFound) {
		return fmt.Errorf("failed to upsert records: %w", err)
	}
	if _, ok := failure.KindOf(err); !ok {
		return fmt.Errorf("failed to upsert records: %w", err)
	}

	t := failure.NewTerminal(err, progress, 1, "")
	p.opts.Reporter.Report(t)
	return t
}

// nextBatchEnd はバッチの終端（排他的）を返します
// バッチは文書の境界をまたぎ、少なくとも1件を含みます
func (p *Pipeline) nextBatchEnd(items []pending, start int) int {
	end := start
	tokens := 0
	for end < len(items) && end-start < p.opts.BatchSize {
		if p.opts.MaxBatchTokens > 0 && p.opts.TokenCounter != nil {
			n := p.opts.TokenCounter.CountTokens(items[end].chunk.Text)
			if end > start && tokens+n > p.opts.MaxBatchTokens {
				break
			}
			tokens += n
		}
		end++
	}
	return end
}
