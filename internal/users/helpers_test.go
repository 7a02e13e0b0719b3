package users

import (
	"context"
	"database/sql"
	"io"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// discardLogger は出力を捨てるロガーを生成する。
func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// setupTestDB はマイグレーション済みのインメモリSQLiteを用意する。
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := openDB(context.Background(), ":memory:", discardLogger())
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seedUser はテスト用のユーザーを登録する。
func seedUser(t *testing.T, repo *Repository, user *User) *User {
	t.Helper()

	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("ユーザーの登録に失敗: %v", err)
	}
	return user
}
