package testing

import (
	"fmt"
	"strings"

	"github.com/jinford/semsearch/internal/module/indexing/domain"
)

// TestDocument はテスト用のDocumentを生成します
func TestDocument(source, text string) *domain.Document {
	return &domain.Document{
		Source:   source,
		Text:     text,
		Metadata: map[string]string{"format": "txt"},
	}
}

// TestDocuments は段落ごとに異なる内容を持つ文書を n 件生成します
func TestDocuments(n, paragraphs int) []*domain.Document {
	docs := make([]*domain.Document, n)
	for i := range docs {
		parts := make([]string, paragraphs)
		for p := range parts {
			parts[p] = fmt.Sprintf("Document %d paragraph %d talks about topic%d and subject%d.", i, p, i*paragraphs+p, p)
		}
		docs[i] = TestDocument(fmt.Sprintf("doc-%02d.txt", i), strings.Join(parts, "\n\n"))
	}
	return docs
}
