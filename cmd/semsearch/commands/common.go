package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/semsearch/internal/platform/config"
	"github.com/jinford/semsearch/internal/platform/container"
	"github.com/jinford/semsearch/internal/platform/logger"
	"github.com/urfave/cli/v3"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config    *config.Config
	Container *container.Container
	Logger    *slog.Logger
}

// NewAppContext は設定を読み込み、ロガーとコンテナを初期化する
func NewAppContext(ctx context.Context, cmd *cli.Command, opts ...container.Option) (*AppContext, error) {
	cfg, err := config.Load(cmd.String("env"), cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	appLogger := logger.New(logger.Config{Level: level, Format: cfg.Log.Format})

	opts = append([]container.Option{container.WithLogger(appLogger)}, opts...)
	cont, err := container.New(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}

	return &AppContext{
		Config:    cfg,
		Container: cont,
		Logger:    appLogger,
	}, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.Container != nil {
		ac.Container.Close()
	}
}
