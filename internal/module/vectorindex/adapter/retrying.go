package adapter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jinford/semsearch/internal/module/vectorindex/domain"
	"github.com/jinford/semsearch/internal/shared/failure"
)

// RetryOptions は Retrying の設定です
type RetryOptions struct {
	// MaxAttempts は初回を含む最大試行回数
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Retrying は IndexUnavailable の失敗を指数バックオフで有限回リトライするデコレーター
// Upsert は同じIDへの上書きなので再実行しても結果は変わりません
type Retrying struct {
	store  domain.Store
	opts   RetryOptions
	logger *slog.Logger
}

// NewRetrying は Store を Retrying で包みます
func NewRetrying(store domain.Store, opts RetryOptions, logger *slog.Logger) *Retrying {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff < opts.BaseBackoff {
		opts.MaxBackoff = 8 * opts.BaseBackoff
	}
	return &Retrying{store: store, opts: opts, logger: logger}
}

func (r *Retrying) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.BaseBackoff
	b.MaxInterval = r.opts.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.opts.MaxAttempts-1)), ctx)
}

func retry[T any](ctx context.Context, r *Retrying, op string, fn func() (T, error)) (T, error) {
	attempt := 0
	return backoff.RetryNotifyWithData(func() (T, error) {
		attempt++
		v, err := fn()
		if err != nil && !errors.Is(err, failure.ErrIndexUnavailable) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, r.newBackOff(ctx), func(err error, wait time.Duration) {
		r.logger.Warn("Vector index unavailable, retrying",
			"operation", op,
			"attempt", attempt,
			"maxAttempts", r.opts.MaxAttempts,
			"wait", wait,
			"error", err)
	})
}

// Upsert はレコードを挿入または上書きします
func (r *Retrying) Upsert(ctx context.Context, records []domain.Record) (int, error) {
	return retry(ctx, r, "upsert", func() (int, error) { return r.store.Upsert(ctx, records) })
}

// Query は類似度の高い順に最大 k 件を返します
func (r *Retrying) Query(ctx context.Context, vector []float32, k int, filter *domain.Filter) ([]domain.Result, error) {
	return retry(ctx, r, "query", func() ([]domain.Result, error) { return r.store.Query(ctx, vector, k, filter) })
}

// Describe はインデックスの状態を返します
func (r *Retrying) Describe(ctx context.Context) (domain.Stats, error) {
	return retry(ctx, r, "describe", func() (domain.Stats, error) { return r.store.Describe(ctx) })
}

// Ensure はインデックスを作成または検証します
func (r *Retrying) Ensure(ctx context.Context, spec domain.Spec) error {
	_, err := retry(ctx, r, "ensure", func() (struct{}, error) { return struct{}{}, r.store.Ensure(ctx, spec) })
	return err
}

// Drop はインデックスを削除します
func (r *Retrying) Drop(ctx context.Context) (bool, error) {
	return retry(ctx, r, "drop", func() (bool, error) { return r.store.Drop(ctx) })
}

// Close は内側の Store を閉じます
func (r *Retrying) Close() error {
	return r.store.Close()
}

var _ domain.Store = (*Retrying)(nil)
