package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/graphql-go/graphql"
	"github.com/nao1215/confsite/internal/config"
	"github.com/nao1215/confsite/pkg/middleware"
	"github.com/nao1215/confsite/pkg/servicetoken"
	"github.com/sirupsen/logrus"
)

// Server はusers-serviceのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// db はSQLiteデータベース接続。NewServerで開いた場合のみ保持する。
	db *sql.DB
	// repo はusersテーブルのリポジトリ。
	repo *Repository
	// schema は内部API用のGraphQLスキーマ。
	schema graphql.Schema
	// logger はサーバーのロガー。
	logger logrus.FieldLogger
	// shutdownTimeout はグレースフルシャットダウンの上限時間。
	shutdownTimeout time.Duration
}

// NewServer は新しいusers-serviceサーバーを生成する。
// SQLiteデータベースを開いてマイグレーションを適用し、
// 設定されていればスタッフユーザーを作成する。
func NewServer(ctx context.Context, cfg *config.Users, logger logrus.FieldLogger) (*Server, error) {
	verifier, err := servicetoken.NewVerifier(cfg.ServiceToServiceSecret)
	if err != nil {
		return nil, fmt.Errorf("サービストークン検証器の生成に失敗: %w", err)
	}

	db, err := openDB(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return nil, err
	}

	repo := NewRepository(db)
	if cfg.BootstrapStaffEmail != "" {
		user, created, err := repo.EnsureStaff(ctx, cfg.BootstrapStaffEmail)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("スタッフユーザーの作成に失敗: %w", err)
		}
		if created {
			logger.WithField("user_id", user.ID).Info("スタッフユーザーを作成しました")
		}
	}

	s, err := newServer(cfg.Port, repo, verifier, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.db = db
	s.shutdownTimeout = cfg.ShutdownTimeout
	return s, nil
}

// newServer はルーティングを組み立てる。テストからも利用する。
func newServer(port string, repo *Repository, verifier *servicetoken.Verifier, logger logrus.FieldLogger) (*Server, error) {
	schema, err := newSchema(repo, logger)
	if err != nil {
		return nil, fmt.Errorf("GraphQLスキーマの構築に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logger(logger))

	s := &Server{
		router:          router,
		port:            port,
		repo:            repo,
		schema:          schema,
		logger:          logger,
		shutdownTimeout: 10 * time.Second,
	}
	s.setupRoutes(verifier)
	return s, nil
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

// Close はデータベース接続を閉じる。
func (s *Server) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes(verifier *servicetoken.Verifier) {
	// 内部API（サービス間通信専用）
	s.router.POST("/internal-api", middleware.ServiceTokenAuth(verifier), s.handleInternalAPI())

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "users"})
	})
}

// graphQLRequest は内部APIのリクエストボディ。
type graphQLRequest struct {
	// Query はGraphQLクエリ文字列。
	Query string `json:"query" binding:"required"`
	// Variables はクエリ変数。
	Variables map[string]any `json:"variables"`
	// OperationName は実行する操作の名前。
	OperationName string `json:"operationName"`
}

// handleInternalAPI はGraphQLクエリを実行する。
// クエリの実行エラーはGraphQLの慣例に従い200のerrorsとして返す。
func (s *Server) handleInternalAPI() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req graphQLRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストが不正です: " + err.Error()})
			return
		}

		result := graphql.Do(graphql.Params{
			Schema:         s.schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.Request.Context(),
		})
		if result.HasErrors() {
			s.logger.WithFields(logrus.Fields{
				"request_id": middleware.GetRequestID(c),
				"errors":     len(result.Errors),
			}).Warn("GraphQLクエリがエラーを返しました")
		}

		c.JSON(http.StatusOK, result)
	}
}
