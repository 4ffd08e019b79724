package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-enry/go-enry/v2"
	"github.com/jinford/semsearch/internal/module/indexing/domain"
)

var (
	// ErrUnsupportedFormat は対応していない拡張子のファイルを指定した場合のエラー
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrBinaryContent はテキスト形式の拡張子でも中身がバイナリの場合のエラー
	ErrBinaryContent = errors.New("document content is binary")
	// ErrInvalidPDF はPDFとして解析できないファイルを指定した場合のエラー
	ErrInvalidPDF = errors.New("invalid pdf document")
)

// 文書のフォーマット
const (
	FormatText     = "txt"
	FormatMarkdown = "md"
	FormatPDF      = "pdf"
)

// メタデータのキー
const (
	MetadataFormat    = "format"
	MetadataPages     = "pages"
	MetadataTruncated = "truncated"
)

var formats = map[string]string{
	".txt":      FormatText,
	".text":     FormatText,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".pdf":      FormatPDF,
}

// Supported はパスの拡張子が読み込み対象かどうかを返します
func Supported(path string) bool {
	_, ok := formats[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Options は Loader の設定です
type Options struct {
	// MaxDocumentChars が正の場合、文書をこの文字数（rune単位）で切り詰める
	MaxDocumentChars int
	// MaxPDFPages が正の場合、PDFの先頭からこのページ数だけを読み込む
	MaxPDFPages int
	// PDF はPDFのテキスト抽出に使う（nil の場合は PDFReader）
	PDF PDFExtractor
}

// Loader はローカルファイルから文書を読み込みます
type Loader struct {
	opts   Options
	logger *slog.Logger
}

// New は新しい Loader を作成します
func New(opts Options, logger *slog.Logger) *Loader {
	if opts.PDF == nil {
		opts.PDF = PDFReader{}
	}
	return &Loader{opts: opts, logger: logger}
}

// LoadFile は単一ファイルを読み込みます
func (l *Loader) LoadFile(ctx context.Context, path string) (*domain.Document, error) {
	format, ok := formats[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, fmt.Errorf("%w: %s (supported: .txt, .md, .markdown, .pdf)", ErrUnsupportedFormat, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	metadata := map[string]string{MetadataFormat: format}

	var text string
	if format == FormatPDF {
		var pages int
		text, pages, err = l.readPDF(ctx, path)
		if err != nil {
			return nil, err
		}
		metadata[MetadataPages] = strconv.Itoa(pages)
	} else {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if enry.IsBinary(content) {
			return nil, fmt.Errorf("%w: %s", ErrBinaryContent, path)
		}
		text = strings.TrimPrefix(string(content), "\ufeff")
	}

	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "\uFFFD")
	}
	if truncated, ok := truncate(text, l.opts.MaxDocumentChars); ok {
		l.logger.Debug("Document truncated", "path", path, "maxChars", l.opts.MaxDocumentChars)
		text = truncated
		metadata[MetadataTruncated] = "true"
	}

	return &domain.Document{
		Source:   filepath.ToSlash(filepath.Clean(path)),
		Text:     text,
		Metadata: metadata,
	}, nil
}

// LoadDirectory はディレクトリ配下を再帰的に走査し、対応するファイルをパス順に読み込みます
// 除外パターンに一致するパスとバイナリファイルはスキップします
func (l *Loader) LoadDirectory(ctx context.Context, dir string) ([]*domain.Document, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	filter, err := NewIgnoreFilter(dir)
	if err != nil {
		return nil, err
	}

	var docs []*domain.Document
	skipped := 0

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil || rel == "." {
			return nil
		}

		if filter.ShouldIgnore(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			skipped++
			return nil
		}
		if d.IsDir() || !Supported(path) {
			return nil
		}

		doc, err := l.LoadFile(ctx, path)
		if errors.Is(err, ErrBinaryContent) {
			l.logger.Debug("Skipping binary file", "path", path)
			skipped++
			return nil
		}
		if err != nil {
			return err
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}

	l.logger.Info("Directory loaded",
		"dir", dir,
		"documents", len(docs),
		"skipped", skipped,
	)

	return docs, nil
}

// readPDF はページごとのテキストを抽出し、空でないページを段落区切りで連結します
func (l *Loader) readPDF(ctx context.Context, path string) (string, int, error) {
	pages, err := l.opts.PDF.ExtractPages(ctx, path, l.opts.MaxPDFPages)
	if err != nil {
		return "", 0, fmt.Errorf("failed to extract text from %s: %w", path, err)
	}

	var texts []string
	for _, page := range pages {
		if strings.TrimSpace(page) != "" {
			texts = append(texts, strings.TrimRight(page, " \n"))
		}
	}
	return strings.Join(texts, "\n\n"), len(texts), nil
}

// truncate は limit 文字を超えるテキストを切り詰めます
func truncate(text string, limit int) (string, bool) {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text, false
	}
	return string([]rune(text)[:limit]), true
}

var _ domain.DocumentLoader = (*Loader)(nil)
