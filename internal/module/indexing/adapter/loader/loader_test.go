package loader

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockPDF は固定のページを返す PDFExtractor
type mockPDF struct {
	pages    []string
	err      error
	path     string
	maxPages int
}

func (m *mockPDF) ExtractPages(_ context.Context, path string, maxPages int) ([]string, error) {
	m.path = path
	m.maxPages = maxPages
	return m.pages, m.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func sources(t *testing.T, root string, paths ...string) []string {
	t.Helper()
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.ToSlash(filepath.Join(root, p))
	}
	return out
}

func TestLoadFile_Text(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "notes.txt", "\ufeffhello world\n")

	doc, err := New(Options{}, testLogger()).LoadFile(context.Background(), path)

	require.NoError(t, err)
	assert.Equal(t, "hello world\n", doc.Text)
	assert.Equal(t, filepath.ToSlash(path), doc.Source)
	assert.Equal(t, FormatText, doc.Metadata[MetadataFormat])
}

func TestLoadFile_Markdown(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "README.MD", "# Title\n\nBody")

	doc, err := New(Options{}, testLogger()).LoadFile(context.Background(), path)

	require.NoError(t, err)
	assert.Equal(t, FormatMarkdown, doc.Metadata[MetadataFormat])
}

func TestLoadFile_Errors(t *testing.T) {
	root := t.TempDir()
	image := writeFile(t, root, "photo.png", "not really")
	binary := writeFile(t, root, "blob.txt", "abc\x00def")

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{name: "unsupported extension", path: image, wantErr: ErrUnsupportedFormat},
		{name: "binary content", path: binary, wantErr: ErrBinaryContent},
		{name: "missing file", path: filepath.Join(root, "missing.md"), wantErr: os.ErrNotExist},
	}

	l := New(Options{}, testLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := l.LoadFile(context.Background(), tt.path)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, doc)
		})
	}
}

func TestLoadFile_Truncation(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "long.md", "日本語のテキストです")

	doc, err := New(Options{MaxDocumentChars: 3}, testLogger()).LoadFile(context.Background(), path)

	require.NoError(t, err)
	assert.Equal(t, "日本語", doc.Text)
	assert.Equal(t, "true", doc.Metadata[MetadataTruncated])
}

func TestLoadFile_PDF(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "paper.pdf", "%PDF-1.4")
	extractor := &mockPDF{pages: []string{"Page one text\n", "Page two text\n", "  \n"}}

	doc, err := New(Options{MaxPDFPages: 5, PDF: extractor}, testLogger()).LoadFile(context.Background(), path)

	require.NoError(t, err)
	assert.Equal(t, path, extractor.path)
	assert.Equal(t, 5, extractor.maxPages)
	assert.Equal(t, "Page one text\n\nPage two text", doc.Text)
	assert.Equal(t, FormatPDF, doc.Metadata[MetadataFormat])
	assert.Equal(t, "2", doc.Metadata[MetadataPages])
}

func TestLoadFile_PDFExtractError(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "paper.pdf", "%PDF-1.4")

	l := New(Options{PDF: &mockPDF{err: errors.New("broken xref")}}, testLogger())
	_, err := l.LoadFile(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to extract text")
}

func TestLoadFile_PDFFixture(t *testing.T) {
	path := filepath.Join("testdata", "two_pages.pdf")

	doc, err := New(Options{}, testLogger()).LoadFile(context.Background(), path)

	require.NoError(t, err)
	assert.Contains(t, doc.Text, "First page text")
	assert.Contains(t, doc.Text, "Second page text")
	assert.Less(t, strings.Index(doc.Text, "First"), strings.Index(doc.Text, "Second"))
	assert.Equal(t, "2", doc.Metadata[MetadataPages])
	assert.Equal(t, FormatPDF, doc.Metadata[MetadataFormat])
}

func TestPDFReader_ExtractPages(t *testing.T) {
	path := filepath.Join("testdata", "two_pages.pdf")

	tests := []struct {
		name     string
		maxPages int
		want     []string
	}{
		{name: "all pages", maxPages: 0, want: []string{"First page text", "Second page text"}},
		{name: "limit above page count", maxPages: 10, want: []string{"First page text", "Second page text"}},
		{name: "first page only", maxPages: 1, want: []string{"First page text"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages, err := PDFReader{}.ExtractPages(context.Background(), path, tt.maxPages)

			require.NoError(t, err)
			require.Len(t, pages, len(tt.want))
			for i, want := range tt.want {
				assert.Contains(t, pages[i], want)
			}
		})
	}
}

func TestPDFReader_InvalidFile(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "broken.pdf", "%PDF-1.4\nnot really a pdf")

	_, err := PDFReader{}.ExtractPages(context.Background(), path, 0)
	assert.ErrorIs(t, err, ErrInvalidPDF)
}

func TestPDFReader_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := PDFReader{}.ExtractPages(ctx, filepath.Join("testdata", "two_pages.pdf"), 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".semsearchignore", "# local drafts\nignored.md\n")
	writeFile(t, root, ".gitignore", "private/\n")
	writeFile(t, root, "a.md", "alpha")
	writeFile(t, root, "b.txt", "beta")
	writeFile(t, root, "bin.txt", "abc\x00def")
	writeFile(t, root, "doc.pdf", "%PDF-1.4")
	writeFile(t, root, "ignored.md", "draft")
	writeFile(t, root, "image.png", "png")
	writeFile(t, root, "nested/c.txt", "gamma")
	writeFile(t, root, "node_modules/pkg/README.md", "dependency")
	writeFile(t, root, "private/secret.md", "secret")

	l := New(Options{PDF: &mockPDF{pages: []string{"pdf text"}}}, testLogger())
	docs, err := l.LoadDirectory(context.Background(), root)

	require.NoError(t, err)
	got := make([]string, len(docs))
	for i, d := range docs {
		got[i] = d.Source
	}
	assert.Equal(t, sources(t, root, "a.md", "b.txt", "doc.pdf", "nested/c.txt"), got)
	assert.Equal(t, "pdf text", docs[2].Text)
}

func TestLoadDirectory_Errors(t *testing.T) {
	root := t.TempDir()
	file := writeFile(t, root, "a.md", "alpha")
	l := New(Options{}, testLogger())

	_, err := l.LoadDirectory(context.Background(), file)
	assert.Error(t, err)

	_, err = l.LoadDirectory(context.Background(), filepath.Join(root, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.LoadDirectory(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIgnoreFilter_Defaults(t *testing.T) {
	f, err := NewIgnoreFilter(t.TempDir())
	require.NoError(t, err)

	assert.True(t, f.ShouldIgnore(".git"))
	assert.True(t, f.ShouldIgnore("node_modules/x/README.md"))
	assert.True(t, f.ShouldIgnore(".env"))
	assert.True(t, f.ShouldIgnore("logs/run.log"))
	assert.False(t, f.ShouldIgnore("docs/guide.md"))

	var nilFilter *IgnoreFilter
	assert.False(t, nilFilter.ShouldIgnore("anything"))
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("a.TXT"))
	assert.True(t, Supported("b.markdown"))
	assert.True(t, Supported("c.pdf"))
	assert.False(t, Supported("d.docx"))
	assert.False(t, Supported("Makefile"))
}
