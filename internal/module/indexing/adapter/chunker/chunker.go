package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jinford/semsearch/internal/module/indexing/domain"
)

const (
	// DefaultChunkSize は1チャンクあたりの最大文字数のデフォルト値
	DefaultChunkSize = 1000

	// DefaultChunkOverlap は隣接チャンク間で共有する文字数のデフォルト値
	DefaultChunkOverlap = 200
)

// DefaultSeparators は分割に使う区切りの優先順位（段落、行、文、単語）
// 文字単位の分割は WithoutCharacterSplit を指定しない限り最後に適用されます
var DefaultSeparators = []string{"\n\n", "\n", ". ", " "}

// RecursiveChunker は区切りの優先順位に従って再帰的にテキストを分割します
// 区切り文字は直前の断片に付けたまま残すため、チャンクは常に元テキストの連続した部分文字列です
type RecursiveChunker struct {
	size            int
	overlap         int
	separators      []string
	splitCharacters bool
}

// Option は RecursiveChunker の設定を変更します
type Option func(*RecursiveChunker)

// WithSeparators は区切りの優先順位を差し替えます
func WithSeparators(separators ...string) Option {
	return func(c *RecursiveChunker) {
		seps := make([]string, 0, len(separators))
		for _, s := range separators {
			if s != "" {
				seps = append(seps, s)
			}
		}
		c.separators = seps
	}
}

// WithoutCharacterSplit は文字単位の分割を無効にします
// 区切りを含まない chunk_size 超の単語はそのまま1チャンクとして出力されます
func WithoutCharacterSplit() Option {
	return func(c *RecursiveChunker) {
		c.splitCharacters = false
	}
}

// New は新しい RecursiveChunker を作成します
func New(size, overlap int, opts ...Option) (*RecursiveChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive: %d", size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunk overlap must not be negative: %d", overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", overlap, size)
	}

	c := &RecursiveChunker{
		size:            size,
		overlap:         overlap,
		separators:      DefaultSeparators,
		splitCharacters: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Size はチャンクの最大文字数を返します
func (c *RecursiveChunker) Size() int { return c.size }

// Overlap はチャンク間のオーバーラップ文字数を返します
func (c *RecursiveChunker) Overlap() int { return c.overlap }

// Split は文書をチャンクに分割します
// 空のチャンクは出力せず、分割不能な単位を除き chunk_size を超えるチャンクは出力しません
func (c *RecursiveChunker) Split(doc *domain.Document) []*domain.Chunk {
	if doc == nil || doc.Text == "" {
		return nil
	}

	atoms := c.atomize(doc.Text, c.separators)
	return c.merge(doc.Source, atoms)
}

// atomize はテキストを chunk_size 以下の断片（分割不能な場合はそれ以上）に分解します
// 断片を連結すると元のテキストに一致します
func (c *RecursiveChunker) atomize(text string, separators []string) []string {
	if utf8.RuneCountInString(text) <= c.size {
		return []string{text}
	}

	for i, sep := range separators {
		if !strings.Contains(text, sep) {
			continue
		}

		var atoms []string
		for _, piece := range strings.SplitAfter(text, sep) {
			if piece == "" {
				continue
			}
			if utf8.RuneCountInString(piece) <= c.size {
				atoms = append(atoms, piece)
				continue
			}
			// より細かい区切りで再帰的に分割
			atoms = append(atoms, c.atomize(piece, separators[i+1:])...)
		}
		return atoms
	}

	if c.splitCharacters {
		return splitRunes(text)
	}

	// 区切りが見つからない長い単位は壊さずにそのまま返す
	return []string{text}
}

// merge は断片を chunk_size 以下のチャンクにまとめ、直前チャンクの末尾を overlap 文字まで引き継ぎます
func (c *RecursiveChunker) merge(source string, atoms []string) []*domain.Chunk {
	var (
		chunks []*domain.Chunk
		window []string
		lens   []int
		total  int
		offset int // window 先頭の位置
		pos    int // 次の断片の位置
	)

	emit := func() {
		chunks = append(chunks, &domain.Chunk{
			Source: source,
			Index:  len(chunks),
			Offset: offset,
			Text:   strings.Join(window, ""),
		})
	}

	for _, atom := range atoms {
		n := utf8.RuneCountInString(atom)
		if n == 0 {
			continue
		}

		if len(window) > 0 && total+n > c.size {
			emit()

			// overlap 以下、かつ次の断片と合わせて size 以下になるまで先頭から落とす
			for len(window) > 0 && (total > c.overlap || total+n > c.size) {
				total -= lens[0]
				offset += lens[0]
				window = window[1:]
				lens = lens[1:]
			}
		}

		if len(window) == 0 {
			offset = pos
		}
		window = append(window, atom)
		lens = append(lens, n)
		total += n
		pos += n
	}

	if len(window) > 0 {
		emit()
	}

	return chunks
}

// splitRunes はテキストを1文字ずつに分割します
func splitRunes(text string) []string {
	out := make([]string, 0, utf8.RuneCountInString(text))
	for _, r := range text {
		out = append(out, string(r))
	}
	return out
}

// インターフェース実装の確認
var _ domain.Chunker = (*RecursiveChunker)(nil)
