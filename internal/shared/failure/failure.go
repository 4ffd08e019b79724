package failure

import (
	"errors"
	"fmt"
	"strings"
)

// Kind は外部呼び出しの失敗種別を表します
// アダプター境界で一度だけ分類し、上位層はプロバイダ固有のエラー型を参照しません
type Kind string

const (
	// KindRateLimitExceeded はプロバイダのクォータ・レート制限超過（HTTP 429 相当）
	KindRateLimitExceeded Kind = "rate_limit_exceeded"
	// KindProviderError はその他のプロバイダ側エラー（認証、不正入力、一時的な障害）
	KindProviderError Kind = "provider_error"
	// KindDimensionMismatch はベクトル次元の不一致（設定エラー、リトライしない）
	KindDimensionMismatch Kind = "dimension_mismatch"
	// KindIndexUnavailable はベクトルインデックスに到達できない
	KindIndexUnavailable Kind = "index_unavailable"
)

var (
	// ErrRateLimitExceeded はレート制限を超えた場合のエラー
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrProvider はプロバイダ側のエラー
	ErrProvider = errors.New("provider error")

	// ErrDimensionMismatch はベクトル次元が一致しない場合のエラー
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrIndexUnavailable はインデックスに接続できない場合のエラー
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrQuotaExceeded はクォータ超過で処理を打ち切った場合の終端エラー
	ErrQuotaExceeded = errors.New("quota exceeded")
)

func (k Kind) sentinel() error {
	switch k {
	case KindRateLimitExceeded:
		return ErrRateLimitExceeded
	case KindProviderError:
		return ErrProvider
	case KindDimensionMismatch:
		return ErrDimensionMismatch
	case KindIndexUnavailable:
		return ErrIndexUnavailable
	}
	return nil
}

// Error は分類済みの失敗です
type Error struct {
	Kind Kind
	// Op は失敗した操作名（例: "gemini.batchEmbedContents"）
	Op string
	// StatusCode はプロバイダが返したHTTP相当のステータス（不明な場合は0）
	StatusCode int
	// Retriable は ProviderError のうち一時的な障害かどうか
	Retriable bool
	// Expected, Actual は DimensionMismatch の次元数
	Expected int
	Actual   int
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch e.Kind {
	case KindDimensionMismatch:
		fmt.Fprintf(&b, "%s: expected %d, got %d", ErrDimensionMismatch, e.Expected, e.Actual)
	default:
		if s := e.Kind.sentinel(); s != nil {
			b.WriteString(s.Error())
		} else {
			b.WriteString(string(e.Kind))
		}
		if e.StatusCode != 0 {
			fmt.Fprintf(&b, " (status %d)", e.StatusCode)
		}
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is は Kind に対応する番兵エラーとの比較を可能にします
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// RateLimit は RateLimitExceeded の失敗を作成します
func RateLimit(op string, status int, err error) *Error {
	return &Error{Kind: KindRateLimitExceeded, Op: op, StatusCode: status, Err: err}
}

// Provider は ProviderError の失敗を作成します
func Provider(op string, status int, retriable bool, err error) *Error {
	return &Error{Kind: KindProviderError, Op: op, StatusCode: status, Retriable: retriable, Err: err}
}

// DimensionMismatch は DimensionMismatch の失敗を作成します
func DimensionMismatch(op string, expected, actual int) *Error {
	return &Error{Kind: KindDimensionMismatch, Op: op, Expected: expected, Actual: actual}
}

// IndexUnavailable は IndexUnavailable の失敗を作成します
func IndexUnavailable(op string, err error) *Error {
	return &Error{Kind: KindIndexUnavailable, Op: op, Retriable: true, Err: err}
}

// KindOf はエラーチェーンから分類済みの種別を取り出します
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	var te *Terminal
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return "", false
}

// IsTransientProvider はリトライ対象のプロバイダエラーかどうかを判定します
func IsTransientProvider(err error) bool {
	var fe *Error
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Kind == KindProviderError && fe.Retriable
}
