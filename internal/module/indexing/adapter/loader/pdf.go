package loader

import (
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor はPDFからページごとのテキストを抽出します
type PDFExtractor interface {
	// ExtractPages は先頭から maxPages ページ（0以下の場合は全ページ）のテキストを返します
	ExtractPages(ctx context.Context, path string, maxPages int) ([]string, error)
}

// PDFReader は github.com/ledongthuc/pdf でテキストを抽出する PDFExtractor
type PDFReader struct{}

func (PDFReader) ExtractPages(ctx context.Context, path string, maxPages int) (pages []string, err error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	defer f.Close()

	// 壊れたPDFではライブラリが panic することがある
	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
			err = fmt.Errorf("%w: %v", ErrInvalidPDF, rec)
		}
	}()

	n := r.NumPage()
	if maxPages > 0 && maxPages < n {
		n = maxPages
	}

	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrInvalidPDF, i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

var _ PDFExtractor = PDFReader{}
