package failure

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// Reporter は終端エラーを人が読める診断メッセージとして出力します
type Reporter struct {
	out    io.Writer
	header *color.Color
	detail *color.Color
	hint   *color.Color
}

// NewReporter は出力先を指定して Reporter を作成します（nil の場合は標準エラー出力）
func NewReporter(out io.Writer) *Reporter {
	if out == nil {
		out = os.Stderr
	}
	return &Reporter{
		out:    out,
		header: color.New(color.FgRed, color.Bold),
		detail: color.New(color.Faint),
		hint:   color.New(color.FgYellow),
	}
}

// Report は終端エラーを出力します。nil の Reporter では何もしません
func (r *Reporter) Report(t *Terminal) {
	if r == nil || t == nil {
		return
	}

	r.header.Fprintf(r.out, "\n❌ %s\n", title(t.Kind))
	fmt.Fprintf(r.out, "Operation: %s\n", t.Operation)
	fmt.Fprintf(r.out, "Progress:  %d of %d %s completed, %d remaining\n",
		t.Completed, t.Total, t.Unit, t.Remaining())
	if t.Attempts > 1 {
		fmt.Fprintf(r.out, "Attempts:  %d\n", t.Attempts)
	}
	if t.Err != nil {
		fmt.Fprintln(r.out, "Details:")
		r.detail.Fprintf(r.out, "%v\n", t.Err)
	}
	if len(t.Guidance) > 0 {
		fmt.Fprintln(r.out)
		r.hint.Fprintln(r.out, "How to resolve:")
		for _, g := range t.Guidance {
			fmt.Fprintf(r.out, "  - %s\n", g)
		}
	}
	fmt.Fprintln(r.out)
}

func title(kind Kind) string {
	switch kind {
	case KindRateLimitExceeded:
		return "[Embedding Error] Embedding quota exceeded."
	case KindProviderError:
		return "[Embedding Error] Embedding provider request failed."
	case KindDimensionMismatch:
		return "[Index Error] Embedding dimension mismatch."
	case KindIndexUnavailable:
		return "[Index Error] Vector index unavailable."
	}
	return "[Error] Operation aborted."
}
