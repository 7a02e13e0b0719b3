// users-serviceのエントリポイント。
// ユーザー情報をSQLiteで管理し、内部サービス向けのGraphQL APIを提供する。
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/nao1215/confsite/internal/config"
	"github.com/nao1215/confsite/internal/users"
	"github.com/nao1215/confsite/pkg/logging"
)

func main() {
	cfg, err := config.LoadUsers()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	logger, err := logging.New("users", cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := users.NewServer(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("users-serviceの初期化に失敗")
	}
	defer server.Close()

	logger.WithField("port", cfg.Port).Info("users-serviceを起動します")
	if err := server.Run(ctx); err != nil {
		logger.WithError(err).Error("users-serviceの起動に失敗")
		return
	}
	logger.Info("users-serviceを停止しました")
}
