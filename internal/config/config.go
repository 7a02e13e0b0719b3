// Package config はgatewayとusers-serviceの設定を環境変数から読み込む。
// 必須項目の欠落や不正な値は起動時にエラーとして検出する。
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Common は両サービスに共通の設定。
type Common struct {
	// AppEnv は実行環境（development, production）。
	AppEnv string `env:"APP_ENV" envDefault:"development"`
	// LogLevel はログレベル。
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	// LogFormat はログ形式（json, text）。
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	// ServiceToServiceSecret はサービス間アサーションの共有シークレット。
	ServiceToServiceSecret string `env:"SERVICE_TO_SERVICE_SECRET,required,notEmpty"`
}

// IsDevelopment は開発環境で動作しているかどうかを返す。
func (c *Common) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// Gateway はgatewayサービスの設定。
type Gateway struct {
	Common

	// Port はリッスンポート。
	Port string `env:"PORT" envDefault:"8080"`
	// JWTSecret はエンドユーザー向けJWTの署名鍵。
	JWTSecret string `env:"JWT_SECRET" envDefault:"dev-secret-key"`
	// UsersServiceURL はusers-serviceのベースURL。
	UsersServiceURL string `env:"USERS_SERVICE,required,notEmpty"`
	// UsersServiceTimeout はusers-serviceへの1回の問い合わせの上限時間。
	UsersServiceTimeout time.Duration `env:"USERS_SERVICE_TIMEOUT" envDefault:"5s"`
	// RequestIsActive はisActiveフィールドを問い合わせるかどうか。
	RequestIsActive bool `env:"USERS_SERVICE_REQUEST_IS_ACTIVE" envDefault:"true"`
	// ServiceTokenNotBefore はサービス間アサーションにnbfを設定するかどうか。
	ServiceTokenNotBefore bool `env:"SERVICE_TOKEN_NOT_BEFORE" envDefault:"false"`
	// FrontendURLs はCORSで許可するフロントエンドのオリジン。
	FrontendURLs []string `env:"FRONTEND_URL" envSeparator:"," envDefault:"http://localhost:3000"`
	// ShutdownTimeout はグレースフルシャットダウンの上限時間。
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Users はusers-serviceの設定。
type Users struct {
	Common

	// Port はリッスンポート。
	Port string `env:"PORT" envDefault:"8081"`
	// DatabasePath はSQLiteデータベースファイルのパス。
	DatabasePath string `env:"DATABASE_PATH" envDefault:"/data/users.db"`
	// BootstrapStaffEmail が設定されていれば、起動時にそのメールアドレスのスタッフを作成する。
	BootstrapStaffEmail string `env:"USERS_BOOTSTRAP_STAFF_EMAIL"`
	// ShutdownTimeout はグレースフルシャットダウンの上限時間。
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// LoadGateway は環境変数からgatewayの設定を読み込んで検証する。
func LoadGateway() (*Gateway, error) {
	cfg := &Gateway{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate はgatewayの設定値を検証する。
func (c *Gateway) Validate() error {
	if strings.TrimSpace(c.ServiceToServiceSecret) == "" {
		return fmt.Errorf("SERVICE_TO_SERVICE_SECRETが空です")
	}
	if err := validateAbsoluteURL("USERS_SERVICE", c.UsersServiceURL); err != nil {
		return err
	}
	if c.UsersServiceTimeout <= 0 {
		return fmt.Errorf("USERS_SERVICE_TIMEOUTは正の値である必要があります: %v", c.UsersServiceTimeout)
	}
	if !c.IsDevelopment() && c.JWTSecret == "dev-secret-key" {
		return fmt.Errorf("JWT_SECRETは%s環境では開発用の値を使用できません", c.AppEnv)
	}
	return nil
}

// LoadUsers は環境変数からusers-serviceの設定を読み込んで検証する。
func LoadUsers() (*Users, error) {
	cfg := &Users{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate はusers-serviceの設定値を検証する。
func (c *Users) Validate() error {
	if strings.TrimSpace(c.ServiceToServiceSecret) == "" {
		return fmt.Errorf("SERVICE_TO_SERVICE_SECRETが空です")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATHが空です")
	}
	return nil
}

// validateAbsoluteURL はrawがhttpまたはhttpsの絶対URLであることを検証する。
func validateAbsoluteURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%sが不正なURLです: %w", key, err)
	}
	if !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%sはhttp(s)の絶対URLである必要があります: %q", key, raw)
	}
	return nil
}
