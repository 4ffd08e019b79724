package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jinford/semsearch/internal/module/indexing/application"
	"github.com/jinford/semsearch/internal/module/indexing/domain"
	"github.com/urfave/cli/v3"
)

// IndexAction は文書をインデックス化するコマンドのアクション
func IndexAction(ctx context.Context, cmd *cli.Command) error {
	params := domain.IndexParams{
		Dir:  cmd.String("dir"),
		File: cmd.String("file"),
	}
	if params.Dir == "" && params.File == "" {
		return fmt.Errorf("either --dir or --file is required")
	}

	appCtx, err := NewAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Container.EnsureIndex(ctx); err != nil {
		return err
	}

	result, err := appCtx.Container.IndexService.IndexPath(ctx, params)
	printBuildResult(os.Stdout, appCtx.Config.Index.Name, result, err)
	return err
}

// printBuildResult はインデックス構築の結果を表示します
func printBuildResult(w io.Writer, indexName string, result *application.BuildResult, err error) {
	if result == nil {
		return
	}

	if err != nil {
		fmt.Fprintf(w, "Indexed %d of %d chunks (%d documents) before stopping; %d chunks remaining.\n",
			result.ChunksEmbedded, result.ChunksTotal, result.DocumentsProcessed, result.ChunksFailed)
		return
	}

	fmt.Fprintf(w, "Split %d documents into %d chunks\n", result.DocumentsProcessed, result.ChunksTotal)
	fmt.Fprintf(w, "✓ Index '%s' populated with %d vectors in %d batches (%s).\n",
		indexName, result.ChunksEmbedded, result.Batches, result.Duration.Round(time.Millisecond))
}
