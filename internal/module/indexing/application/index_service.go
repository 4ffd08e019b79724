package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/semsearch/internal/module/indexing/domain"
)

// Builder は文書からインデックスを構築する interface
type Builder interface {
	BuildIndex(ctx context.Context, docs []*domain.Document) (*BuildResult, error)
}

// IndexService はインデックス化のユースケースを提供します
type IndexService struct {
	loader  domain.DocumentLoader
	builder Builder
	log     *slog.Logger
}

// NewIndexService は新しいIndexServiceを作成します
func NewIndexService(loader domain.DocumentLoader, builder Builder, log *slog.Logger) *IndexService {
	return &IndexService{
		loader:  loader,
		builder: builder,
		log:     log,
	}
}

// IndexPath はファイルまたはディレクトリの文書をインデックス化します
// 途中で失敗した場合も、それまでの結果をエラーと一緒に返します
func (s *IndexService) IndexPath(ctx context.Context, params domain.IndexParams) (*BuildResult, error) {
	s.log.Info("Starting index process",
		"dir", params.Dir,
		"file", params.File,
	)

	// バリデーション
	if params.Dir == "" && params.File == "" {
		return nil, fmt.Errorf("either dir or file is required")
	}
	if params.Dir != "" && params.File != "" {
		return nil, fmt.Errorf("dir and file are mutually exclusive")
	}

	docs, err := s.load(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no supported documents found")
	}

	s.log.Info("Documents loaded", "count", len(docs))

	result, err := s.builder.BuildIndex(ctx, docs)
	if err != nil {
		s.log.Error("Index process failed",
			"dir", params.Dir,
			"file", params.File,
			"error", err,
		)
		return result, fmt.Errorf("failed to build index: %w", err)
	}

	s.log.Info("Index process completed",
		"documents", result.DocumentsProcessed,
		"chunks", result.ChunksEmbedded,
		"duration", result.Duration,
	)

	return result, nil
}

func (s *IndexService) load(ctx context.Context, params domain.IndexParams) ([]*domain.Document, error) {
	if params.File != "" {
		doc, err := s.loader.LoadFile(ctx, params.File)
		if err != nil {
			return nil, fmt.Errorf("failed to load file: %w", err)
		}
		return []*domain.Document{doc}, nil
	}

	docs, err := s.loader.LoadDirectory(ctx, params.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load directory: %w", err)
	}
	return docs, nil
}
