package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jinford/semsearch/internal/module/embedding/domain"
	"github.com/jinford/semsearch/internal/shared/failure"
	"golang.org/x/time/rate"
)

const (
	// DefaultMaxAttempts は1回の埋め込み呼び出しあたりの最大試行回数
	DefaultMaxAttempts = 3
	// DefaultBaseBackoff はリトライ間隔の初期値
	DefaultBaseBackoff = time.Second
	// DefaultMaxBackoff はリトライ間隔の上限
	DefaultMaxBackoff = 16 * time.Second
)

// Options は QuotaGuard の設定です
type Options struct {
	// MaxAttempts は一時的なエラーに対する最大試行回数（初回を含む）
	MaxAttempts int
	// BaseBackoff, MaxBackoff は指数バックオフの初期値と上限
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// RequestsPerMinute が正の場合、呼び出しをこの頻度以下に抑える
	RequestsPerMinute int
	// UsageURL はクォータ超過時の案内に表示するプロバイダのページ
	UsageURL string
	// Reporter は終端エラーの診断を出力する（nil の場合は出力しない）
	Reporter *failure.Reporter
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = DefaultBaseBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = DefaultMaxBackoff
	}
	if o.MaxBackoff < o.BaseBackoff {
		o.MaxBackoff = o.BaseBackoff
	}
	return o
}

// QuotaGuard はEmbedderへの呼び出しを仲介し、クォータ超過を終端エラーに変換します
// 一時的なプロバイダエラーのみ有限回リトライし、レート制限はリトライしません
type QuotaGuard struct {
	embedder domain.Embedder
	opts     Options
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewQuotaGuard は新しい QuotaGuard を作成します
func NewQuotaGuard(embedder domain.Embedder, opts Options, logger *slog.Logger) *QuotaGuard {
	opts = opts.withDefaults()

	var limiter *rate.Limiter
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}

	return &QuotaGuard{
		embedder: embedder,
		opts:     opts,
		limiter:  limiter,
		logger:   logger,
	}
}

// Embed はテキストを埋め込みます
// 失敗時は *failure.Terminal を返します。コンテキストのキャンセルはそのまま返します
func (g *QuotaGuard) Embed(ctx context.Context, texts []string, progress failure.Progress) ([][]float32, error) {
	vectors, err := g.embed(ctx, texts, progress)
	var t *failure.Terminal
	if errors.As(err, &t) {
		g.report(t)
	}
	return vectors, err
}

// embed は診断を出力せずに埋め込みます
func (g *QuotaGuard) embed(ctx context.Context, texts []string, progress failure.Progress) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	attempts := 0
	var vectors [][]float32

	operation := func() error {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(ctxErrOr(ctx, err))
			}
		}

		attempts++
		out, err := g.embedder.Embed(ctx, texts)
		if err != nil {
			if failure.IsTransientProvider(err) && ctx.Err() == nil {
				return err
			}
			return backoff.Permanent(err)
		}

		if len(out) != len(texts) {
			return backoff.Permanent(domain.CheckVectors("quota_guard", out, len(texts), 0))
		}
		vectors = out
		return nil
	}

	notify := func(err error, wait time.Duration) {
		g.logger.Warn("Transient embedding error, retrying",
			"operation", progress.Operation,
			"attempt", attempts,
			"maxAttempts", g.opts.MaxAttempts,
			"wait", wait,
			"error", err)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(g.newBackOff(), ctx), notify)
	if err == nil {
		return vectors, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	return nil, g.terminate(err, progress, attempts)
}

// terminate は分類済みの終端エラーを組み立てます
func (g *QuotaGuard) terminate(err error, progress failure.Progress, attempts int) *failure.Terminal {
	if _, ok := failure.KindOf(err); !ok {
		err = failure.Provider("embed", 0, false, err)
	}
	return failure.NewTerminal(err, progress, attempts, g.opts.UsageURL)
}

// report は終端エラーをログに残し、診断を出力します
func (g *QuotaGuard) report(t *failure.Terminal) {
	g.logger.Error("Embedding aborted",
		"operation", t.Operation,
		"kind", t.Kind,
		"completed", t.Completed,
		"total", t.Total,
		"remaining", t.Remaining(),
		"attempts", t.Attempts,
		"error", t.Err)
	g.opts.Reporter.Report(t)
}

func (g *QuotaGuard) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.opts.BaseBackoff
	b.MaxInterval = g.opts.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(g.opts.MaxAttempts-1))
}

// Dimension はEmbeddingベクトルの次元数を返す
func (g *QuotaGuard) Dimension() int {
	return g.embedder.Dimension()
}

// Model はモデル名を返す
func (g *QuotaGuard) Model() string {
	return g.embedder.Model()
}

// UsageURL はプロバイダの利用状況ページを返す
func (g *QuotaGuard) UsageURL() string {
	return g.opts.UsageURL
}

func ctxErrOr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
