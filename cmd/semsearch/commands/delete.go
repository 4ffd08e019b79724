package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/jinford/semsearch/internal/platform/container"
	"github.com/urfave/cli/v3"
)

// DeleteIndexAction はインデックスを削除するコマンドのアクション
func DeleteIndexAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd, container.WithoutEmbedder())
	if err != nil {
		return err
	}
	defer appCtx.Close()

	name := appCtx.Config.Index.Name
	existed, err := appCtx.Container.Store.Drop(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete index %s: %w", name, err)
	}

	if existed {
		fmt.Fprintf(os.Stdout, "✓ Deleted index: %s\n", name)
	} else {
		fmt.Fprintf(os.Stdout, "ℹ Index %s does not exist\n", name)
	}
	return nil
}
