// API Gatewayサービスのエントリポイント。
// エンドユーザーのJWTを検証し、ユーザー情報をusers-serviceの内部APIから取得する。
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線となる。
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/nao1215/confsite/internal/config"
	"github.com/nao1215/confsite/internal/gateway"
	"github.com/nao1215/confsite/internal/userinfo"
	"github.com/nao1215/confsite/pkg/logging"
)

func main() {
	cfg, err := config.LoadGateway()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	logger, err := logging.New("gateway", cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}

	proxy, err := userinfo.New(userinfo.Options{
		BaseURL:         cfg.UsersServiceURL,
		Secret:          cfg.ServiceToServiceSecret,
		Timeout:         cfg.UsersServiceTimeout,
		RequestIsActive: cfg.RequestIsActive,
		SetNotBefore:    cfg.ServiceTokenNotBefore,
	})
	if err != nil {
		logger.WithError(err).Fatal("UserInfoProxyの初期化に失敗")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := gateway.NewServer(cfg, proxy, logger)

	logger.WithField("port", cfg.Port).Info("Gatewayサービスを起動します")
	if err := server.Run(ctx); err != nil {
		logger.WithError(err).Fatal("Gatewayサービスの起動に失敗")
	}
	logger.Info("Gatewayサービスを停止しました")
}
