package adapter

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/jinford/semsearch/internal/shared/failure"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"
	"google.golang.org/api/googleapi"
)

// quotaMarkers はステータスコードが取れない場合にレート制限と判断するメッセージ
var quotaMarkers = []string{"resource_exhausted", "quota", "rate limit", "too many requests"}

// classify はプロバイダ固有のエラーを failure.Error に変換します
// コンテキストがキャンセル済みの場合はコンテキストのエラーをそのまま返します
func classify(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var fe *failure.Error
	if errors.As(err, &fe) {
		return err
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return classifyStatus(op, gerr.Code, err)
	}

	var oerr *openai.Error
	if errors.As(err, &oerr) {
		return classifyStatus(op, oerr.StatusCode, err)
	}

	var serr api.StatusError
	if errors.As(err, &serr) {
		return classifyStatus(op, serr.StatusCode, err)
	}

	if isQuotaMessage(err) {
		return failure.RateLimit(op, 0, err)
	}

	// タイムアウト・接続失敗は一時的な障害として扱う
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return failure.Provider(op, 0, true, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return failure.Provider(op, 0, true, err)
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return failure.Provider(op, 0, true, err)
	}
	var operr *net.OpError
	if errors.As(err, &operr) {
		return failure.Provider(op, 0, true, err)
	}

	return failure.Provider(op, 0, false, err)
}

// classifyStatus はHTTPステータスコードから失敗種別を決めます
func classifyStatus(op string, status int, err error) error {
	switch {
	case status == http.StatusTooManyRequests:
		return failure.RateLimit(op, status, err)
	case isQuotaMessage(err):
		return failure.RateLimit(op, status, err)
	case status == http.StatusRequestTimeout, status >= 500:
		return failure.Provider(op, status, true, err)
	default:
		return failure.Provider(op, status, false, err)
	}
}

func isQuotaMessage(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range quotaMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
