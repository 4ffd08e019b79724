package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jinford/semsearch/internal/module/embedding/application"
	"github.com/jinford/semsearch/internal/module/indexing/adapter/chunker"
	"github.com/jinford/semsearch/internal/module/vectorindex/domain"
	"github.com/jinford/semsearch/internal/platform/container"
	"github.com/urfave/cli/v3"
)

// InfoAction はインデックスの情報を表示するコマンドのアクション
func InfoAction(ctx context.Context, cmd *cli.Command) error {
	probe := cmd.Bool("probe")

	var opts []container.Option
	if !probe {
		opts = append(opts, container.WithoutEmbedder())
	}

	appCtx, err := NewAppContext(ctx, cmd, opts...)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	cfg := appCtx.Config
	fmt.Fprintf(os.Stdout, "Embedding: %s / %s (%d dimensions)\n",
		cfg.Embedding.Provider, cfg.Embedding.Model, cfg.Embedding.Dimension)
	printChunking(os.Stdout, appCtx.Container.Chunker)

	if probe {
		fmt.Fprintln(os.Stdout, "Testing embedding dimensions...")
		guard := appCtx.Container.Guard
		result, err := application.ProbeDimension(ctx, guard)
		if err != nil {
			return err
		}
		printProbe(os.Stdout, result, guard.UsageURL())
	}

	stats, err := appCtx.Container.Store.Describe(ctx)
	if errors.Is(err, domain.ErrIndexNotFound) {
		fmt.Fprintf(os.Stdout, "ℹ Index %s does not exist\n", cfg.Index.Name)
		return nil
	}
	if err != nil {
		return err
	}

	printStats(os.Stdout, stats)
	return nil
}

func printChunking(w io.Writer, c *chunker.RecursiveChunker) {
	fmt.Fprintf(w, "Chunking:  %d characters, %d overlap\n", c.Size(), c.Overlap())
}

func printProbe(w io.Writer, p *application.Probe, usageURL string) {
	fmt.Fprintf(w, "✓ Embeddings produce: %d dimensions\n", p.Actual)
	if p.Matches() {
		fmt.Fprintf(w, "✓ Dimensions match expected: %d\n", p.Configured)
	} else {
		fmt.Fprintf(w, "⚠ WARNING: Expected %d but got %d; set EMBEDDING_DIMENSION=%d\n", p.Configured, p.Actual, p.Actual)
	}
	if usageURL != "" {
		fmt.Fprintf(w, "ℹ Quota and rate limits: %s\n", usageURL)
	}
}

func printStats(w io.Writer, s domain.Stats) {
	fmt.Fprintf(w, "\n=== Index Info ===\n\n")
	fmt.Fprintf(w, "Name:       %s\n", s.Name)
	fmt.Fprintf(w, "Backend:    %s\n", s.Backend)
	fmt.Fprintf(w, "Metric:     %s\n", s.Metric)
	fmt.Fprintf(w, "Dimension:  %d\n", s.Dimension)
	fmt.Fprintf(w, "Records:    %d\n", s.RecordCount)
}
