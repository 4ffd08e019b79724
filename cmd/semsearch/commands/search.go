package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	vdomain "github.com/jinford/semsearch/internal/module/vectorindex/domain"
	"github.com/urfave/cli/v3"
)

// プレビューの文字数
const (
	previewChars       = 500
	scoredPreviewChars = 300
)

// SearchAction はインデックスを意味検索するコマンドのアクション
func SearchAction(ctx context.Context, cmd *cli.Command) error {
	query := cmd.String("query")
	k := int(cmd.Int("k"))

	var filter *vdomain.Filter
	if source := cmd.String("source"); source != "" {
		filter = &vdomain.Filter{Equals: map[string]string{"source": source}}
	}

	appCtx, err := NewAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	results, err := appCtx.Container.QueryEngine.Search(ctx, query, k, filter)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "\nSearching for: %s\n\n", query)
	printResults(os.Stdout, results, cmd.Bool("scores"))
	return nil
}

// printResults は検索結果を表示します
func printResults(w io.Writer, results []vdomain.Result, withScores bool) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	rule := strings.Repeat("=", 80)
	if withScores {
		fmt.Fprintf(w, "Found %d results with scores\n", len(results))
		for i, r := range results {
			fmt.Fprintf(w, "\nResult %d (Score: %.4f)\n", i+1, r.Score)
			fmt.Fprintf(w, "%s...\n", preview(r.Text, scoredPreviewChars))
			fmt.Fprintf(w, "Source: %s\n", sourceOf(r))
		}
		return
	}

	for i, r := range results {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "Result %d\n", i+1)
		fmt.Fprintf(w, "%s...\n", preview(r.Text, previewChars))
		fmt.Fprintf(w, "\nSource: %s\n", sourceOf(r))
		fmt.Fprintln(w, rule)
	}
}

func preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}

func sourceOf(r vdomain.Result) string {
	if s, ok := r.Metadata["source"]; ok && s != "" {
		return s
	}
	return "unknown"
}
