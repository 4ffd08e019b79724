package loader

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName はツール固有の除外パターンファイル
const IgnoreFileName = ".semsearchignore"

// IgnoreFilter は .gitignore と .semsearchignore のパターンマッチングを提供します
type IgnoreFilter struct {
	matcher *gitignore.GitIgnore
}

// NewIgnoreFilter は root 直下の .gitignore と .semsearchignore を読み込みます
// どちらも存在しない場合はデフォルトの除外パターンのみを使います
func NewIgnoreFilter(root string) (*IgnoreFilter, error) {
	var patterns []string
	for _, name := range []string{".gitignore", IgnoreFileName} {
		lines, err := readIgnoreFile(filepath.Join(root, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		patterns = append(patterns, lines...)
	}
	patterns = append(patterns, defaultIgnorePatterns...)

	return &IgnoreFilter{matcher: gitignore.CompileIgnoreLines(patterns...)}, nil
}

// ShouldIgnore は root からの相対パスが除外対象かどうかを判定します
func (f *IgnoreFilter) ShouldIgnore(rel string) bool {
	if f == nil || f.matcher == nil {
		return false
	}
	return f.matcher.MatchesPath(filepath.ToSlash(rel))
}

// readIgnoreFile は空行とコメントを除いたパターンを返します（ファイルがなければ nil）
func readIgnoreFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var patterns []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, scanner.Err()
}

var defaultIgnorePatterns = []string{
	// VCS
	".git",
	".hg",
	".svn",

	// 依存関係・ビルド成果物
	"node_modules",
	"vendor",
	"dist",
	"build",
	"target",
	"_build",
	"site",

	// エディタ
	".vscode",
	".idea",
	".DS_Store",
	"*.swp",
	"*~",

	// 機密情報
	".env",
	".env.*",
	"*.pem",
	"*.key",

	// キャッシュ・一時ファイル
	".cache",
	"__pycache__",
	".pytest_cache",
	"tmp",
	"*.tmp",
	"*.log",
}
