package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/confsite/internal/config"
	"github.com/nao1215/confsite/internal/userinfo"
	"github.com/nao1215/confsite/pkg/middleware"
	"github.com/sirupsen/logrus"
)

// UserInfoFetcher はusers-serviceからユーザー情報を取得する。
// ユーザーが存在しない場合は(nil, nil)を返す。
type UserInfoFetcher interface {
	FetchUserInfo(ctx context.Context, id string) (*userinfo.User, error)
}

// Server はAPI GatewayサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// jwtSecret はJWT署名用の秘密鍵。
	jwtSecret string
	// users はユーザー情報の取得先。
	users UserInfoFetcher
	// logger はサーバーのロガー。
	logger logrus.FieldLogger
	// devMode が有効な場合のみ開発用トークン発行を受け付ける。
	devMode bool
	// shutdownTimeout はグレースフルシャットダウンの上限時間。
	shutdownTimeout time.Duration
}

// NewServer は新しいGatewayサーバーを生成する。
func NewServer(cfg *config.Gateway, users UserInfoFetcher, logger logrus.FieldLogger) *Server {
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS(cfg.FrontendURLs))

	s := &Server{
		router:          router,
		port:            cfg.Port,
		jwtSecret:       cfg.JWTSecret,
		users:           users,
		logger:          logger,
		devMode:         cfg.IsDevelopment(),
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	s.setupRoutes()

	return s
}

// Handler はHTTPハンドラーを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("シャットダウンに失敗: %w", err)
	}
	return nil
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	if s.devMode {
		// 開発用トークン発行（認証不要）
		s.router.POST("/auth/dev-token", s.handleDevToken())
	}

	// 認証必須のAPIエンドポイント
	api := s.router.Group("/api/v1")
	api.Use(middleware.JWTAuth(s.jwtSecret))
	{
		// ログイン中のユーザー情報
		api.GET("/me", s.handleGetCurrentUser())
		// 任意のユーザー情報（スタッフのみ）
		api.GET("/users/:id", s.handleGetUser())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})
}

// devTokenRequest は開発用トークン発行リクエストのJSON構造。
type devTokenRequest struct {
	// UserID はusers-serviceのユーザーID。
	UserID string `json:"user_id" binding:"required"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email" binding:"required,email"`
}

// handleDevToken は開発用JWTトークンを発行するハンドラを返す。
// 開発環境でのみルーティングされる。
func (s *Server) handleDevToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req devTokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストが不正です: " + err.Error()})
			return
		}

		token, err := middleware.GenerateJWT(s.jwtSecret, req.UserID, req.Email)
		if err != nil {
			s.logger.WithError(err).Error("JWT生成エラー")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークン生成に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":   token,
			"user_id": req.UserID,
		})
	}
}

// handleGetCurrentUser はログイン中のユーザー情報を返すハンドラを返す。
func (s *Server) handleGetCurrentUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := s.fetchUser(c, middleware.GetUserID(c))
		if !ok {
			return
		}
		if !isActive(user) {
			c.JSON(http.StatusForbidden, gin.H{"error": "アカウントが無効化されています"})
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// handleGetUser は指定したユーザーの情報を返すハンドラを返す。
// 呼び出し元がスタッフでなければ403を返す。
func (s *Server) handleGetUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := s.fetchUser(c, middleware.GetUserID(c))
		if !ok {
			return
		}
		if !isActive(caller) {
			c.JSON(http.StatusForbidden, gin.H{"error": "アカウントが無効化されています"})
			return
		}
		if !caller.IsStaff {
			c.JSON(http.StatusForbidden, gin.H{"error": "スタッフ権限が必要です"})
			return
		}

		target, ok := s.fetchUser(c, c.Param("id"))
		if !ok {
			return
		}
		c.JSON(http.StatusOK, target)
	}
}

// fetchUser はusers-serviceにユーザー情報を問い合わせる。
// 取得できなかった場合はエラーレスポンスを書き込み、falseを返す。
func (s *Server) fetchUser(c *gin.Context, id string) (*userinfo.User, bool) {
	user, err := s.users.FetchUserInfo(c.Request.Context(), id)
	if err != nil {
		s.respondFetchError(c, id, err)
		return nil, false
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
		return nil, false
	}
	return user, true
}

// respondFetchError はユーザー情報の取得失敗をHTTPステータスに変換する。
func (s *Server) respondFetchError(c *gin.Context, id string, err error) {
	entry := s.logger.WithFields(logrus.Fields{
		"request_id": middleware.GetRequestID(c),
		"user_id":    id,
	}).WithError(err)

	var te *userinfo.TransportError
	switch {
	case userinfo.IsTimeout(err):
		entry.Warn("users-serviceの応答がタイムアウトしました")
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "ユーザーサービスが応答しません"})
	case errors.As(err, &te):
		entry.Error("users-serviceとの通信に失敗")
		c.JSON(http.StatusBadGateway, gin.H{"error": "ユーザーサービスとの通信に失敗しました"})
	default:
		entry.Error("ユーザー情報の取得に失敗")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー情報の取得に失敗しました"})
	}
}

// isActive はユーザーが有効かどうかを返す。問い合わせていない場合は有効とみなす。
func isActive(u *userinfo.User) bool {
	return u.IsActive == nil || *u.IsActive
}
