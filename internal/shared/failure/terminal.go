package failure

import (
	"errors"
	"fmt"
)

// Progress は終端エラー発生時点の進捗です
type Progress struct {
	// Operation は実行中の処理名（例: "build_index", "search"）
	Operation string
	// Completed は成功済みの件数
	Completed int
	// Total は予定していた総件数
	Total int
	// Unit は件数の単位（"chunks", "queries" など）
	Unit string
}

// Terminal は処理を打ち切った失敗を表す値です
// 種別・進捗・対処方法をまとめて保持し、ユーザー向けの診断メッセージの元になります
type Terminal struct {
	Kind      Kind
	Operation string
	Completed int
	Total     int
	Unit      string
	// Attempts は打ち切りまでに行った呼び出し回数
	Attempts int
	Guidance []string
	Err      error
}

// NewTerminal は分類済みエラーと進捗から終端エラーを組み立てます
func NewTerminal(err error, p Progress, attempts int, usageURL string) *Terminal {
	kind, ok := KindOf(err)
	if !ok {
		kind = KindProviderError
	}
	unit := p.Unit
	if unit == "" {
		unit = "items"
	}
	return &Terminal{
		Kind:      kind,
		Operation: p.Operation,
		Completed: p.Completed,
		Total:     p.Total,
		Unit:      unit,
		Attempts:  attempts,
		Guidance:  Guidance(kind, usageURL),
		Err:       err,
	}
}

// Remaining は未処理の件数を返します
func (t *Terminal) Remaining() int {
	if r := t.Total - t.Completed; r > 0 {
		return r
	}
	return 0
}

func (t *Terminal) Error() string {
	return fmt.Sprintf("%s aborted (%s): %d/%d %s completed, %d remaining: %v",
		t.Operation, t.Kind, t.Completed, t.Total, t.Unit, t.Remaining(), t.Err)
}

func (t *Terminal) Unwrap() error { return t.Err }

// Is はレート制限による打ち切りを ErrQuotaExceeded として扱います
func (t *Terminal) Is(target error) bool {
	return target == ErrQuotaExceeded && t.Kind == KindRateLimitExceeded
}

// AsTerminal はエラーチェーンから終端エラーを取り出します
func AsTerminal(err error) (*Terminal, bool) {
	var t *Terminal
	if errors.As(err, &t) {
		return t, true
	}
	return nil, false
}

// Guidance は失敗種別ごとの対処方法を返します
func Guidance(kind Kind, usageURL string) []string {
	switch kind {
	case KindRateLimitExceeded:
		g := make([]string, 0, 3)
		if usageURL != "" {
			g = append(g, "Check your embedding API usage and free-tier quotas:\n    "+usageURL)
		} else {
			g = append(g, "Check your embedding provider's usage dashboard and quotas.")
		}
		return append(g,
			"Consider indexing fewer pages/chunks per run (raise CHUNK_SIZE, lower MAX_DOCUMENT_CHARS or MAX_PDF_PAGES).",
			"Wait for the daily quota reset or enable billing / higher limits.",
		)
	case KindProviderError:
		return []string{
			"Verify the API key and EMBEDDING_MODEL are valid for the selected EMBEDDING_PROVIDER.",
			"Transient errors are retried (EMBED_MAX_ATTEMPTS); re-run once the provider recovers.",
		}
	case KindDimensionMismatch:
		return []string{
			"Delete the existing index (semsearch delete-index) and rebuild it,",
			"or use a different INDEX_NAME,",
			"or set EMBEDDING_DIMENSION to match the existing index.",
		}
	case KindIndexUnavailable:
		return []string{
			"Check that the vector index backend (INDEX_BACKEND) is running and reachable.",
			"Records upserted before the failure remain valid; re-running overwrites them.",
		}
	}
	return nil
}
