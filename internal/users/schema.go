package users

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/confsite/pkg/migration"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// migrationsFS はusersテーブルのマイグレーション。
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

// openDB はSQLiteデータベースを開き、マイグレーションを適用する。
// pathが":memory:"の場合はディレクトリを作成しない。
func openDB(ctx context.Context, path string, logger logrus.FieldLogger) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("DBディレクトリの作成に失敗: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	// SQLiteの書き込みは直列化されるため接続は1本に絞る
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := migration.Run(ctx, db, migrationsFS, "migrations", logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return db, nil
}
