package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jinford/semsearch/cmd/semsearch/commands"
	"github.com/jinford/semsearch/internal/shared/failure"
	"github.com/urfave/cli/v3"
)

// exitTerminal は診断メッセージを出力済みの終端エラーで終了する場合の終了コード
const exitTerminal = 2

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "semsearch",
		Usage: "文書をチャンクに分割・埋め込みし、ベクトルインデックスで意味検索する",
		Commands: []*cli.Command{
			{
				Name:  "index",
				Usage: "ファイルまたはディレクトリの文書をインデックス化",
				Flags: withCommonFlags(
					&cli.StringFlag{
						Name:  "dir",
						Usage: "再帰的に読み込むディレクトリ",
					},
					&cli.StringFlag{
						Name:  "file",
						Usage: "単一の文書ファイル（.txt, .md, .pdf）",
					},
				),
				Action: commands.IndexAction,
			},
			{
				Name:  "search",
				Usage: "インデックスを意味検索",
				Flags: withCommonFlags(
					&cli.StringFlag{
						Name:     "query",
						Aliases:  []string{"q"},
						Usage:    "検索クエリ",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "k",
						Usage: "取得件数（0 の場合は TOP_K）",
					},
					&cli.StringFlag{
						Name:  "source",
						Usage: "指定した文書のチャンクのみを検索",
					},
					&cli.BoolFlag{
						Name:  "scores",
						Usage: "類似度スコアを表示",
					},
				),
				Action: commands.SearchAction,
			},
			{
				Name:  "info",
				Usage: "インデックスの情報を表示",
				Flags: withCommonFlags(
					&cli.BoolFlag{
						Name:  "probe",
						Usage: "1件埋め込んで実際の次元数を確認",
					},
				),
				Action: commands.InfoAction,
			},
			{
				Name:   "delete-index",
				Usage:  "インデックスを削除（次元数を変えて作り直す場合など）",
				Flags:  withCommonFlags(),
				Action: commands.DeleteIndexAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		if _, ok := failure.AsTerminal(err); ok {
			os.Exit(exitTerminal)
		}
		log.Fatal(err)
	}
}

// withCommonFlags は全コマンド共通のフラグを追加します
func withCommonFlags(flags ...cli.Flag) []cli.Flag {
	return append([]cli.Flag{
		&cli.StringFlag{
			Name:  "env",
			Usage: "環境変数ファイルパス",
			Value: ".env",
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "設定ファイル（TOML）パス",
		},
	}, flags...)
}
