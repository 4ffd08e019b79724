package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/jinford/semsearch/internal/shared/failure"
)

// probeText は次元数の確認に使う入力
const probeText = "test"

// Probe は実際に1件埋め込んで得られた次元数と設定値を比べた結果です
type Probe struct {
	Model      string
	Configured int
	Actual     int
}

// Matches は実際の次元数が設定値と一致するかを返します（設定値が0の場合は常に一致）
func (p Probe) Matches() bool {
	return p.Configured <= 0 || p.Configured == p.Actual
}

// ProbeDimension は QuotaGuard 経由で1件埋め込み、実際の次元数を確認します
// 次元数の不一致は失敗ではなく、実際の次元数を持つ Probe として返します
func ProbeDimension(ctx context.Context, guard *QuotaGuard) (*Probe, error) {
	vectors, err := guard.embed(ctx, []string{probeText}, failure.Progress{
		Operation: "probe_dimension",
		Total:     1,
		Unit:      "requests",
	})
	if err != nil {
		var fe *failure.Error
		if errors.As(err, &fe) && fe.Kind == failure.KindDimensionMismatch {
			return &Probe{
				Model:      guard.Model(),
				Configured: fe.Expected,
				Actual:     fe.Actual,
			}, nil
		}
		var t *failure.Terminal
		if errors.As(err, &t) {
			guard.report(t)
		}
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("probe returned %d embeddings", len(vectors))
	}

	return &Probe{
		Model:      guard.Model(),
		Configured: guard.Dimension(),
		Actual:     len(vectors[0]),
	}, nil
}
