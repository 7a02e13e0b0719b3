package migration

import (
	"context"
	"database/sql"
	"io"
	"reflect"
	"testing"
	"testing/fstest"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// newTestDB はインメモリSQLiteを開く。
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("インメモリDB接続に失敗: %v", err)
	}
	// :memory: は接続ごとに別のDBになるため1本に固定する
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

// discardLogger は出力を捨てるロガーを返す。
func discardLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// TestRun はRun関数を検証する。
func TestRun(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"migrations/000002_add_index.up.sql":      {Data: []byte(`CREATE INDEX idx_items_name ON items(name);`)},
		"migrations/000001_create_items.up.sql":   {Data: []byte(`CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL);`)},
		"migrations/000001_create_items.down.sql": {Data: []byte(`DROP TABLE items;`)},
		"migrations/README.md":                    {Data: []byte(`ignored`)},
		"migrations/notaversion_x.up.sql":         {Data: []byte(`SELECT 1;`)},
	}

	t.Run("バージョン順に適用されること", func(t *testing.T) {
		t.Parallel()

		db := newTestDB(t)
		applied, err := Run(context.Background(), db, fsys, "migrations", discardLogger())
		if err != nil {
			t.Fatalf("Run()でエラーが発生: %v", err)
		}
		if !reflect.DeepEqual(applied, []int{1, 2}) {
			t.Errorf("applied = %v, want [1 2]", applied)
		}

		if _, err := db.Exec(`INSERT INTO items (name) VALUES ('keynote')`); err != nil {
			t.Errorf("テーブルが作成されていない: %v", err)
		}
	})

	t.Run("2回目の実行では何も適用されないこと", func(t *testing.T) {
		t.Parallel()

		db := newTestDB(t)
		if _, err := Run(context.Background(), db, fsys, "migrations", discardLogger()); err != nil {
			t.Fatalf("Run()でエラーが発生: %v", err)
		}
		applied, err := Run(context.Background(), db, fsys, "migrations", discardLogger())
		if err != nil {
			t.Fatalf("2回目のRun()でエラーが発生: %v", err)
		}
		if len(applied) != 0 {
			t.Errorf("applied = %v, want empty", applied)
		}

		var count int
		if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
			t.Fatalf("schema_migrationsの取得に失敗: %v", err)
		}
		if count != 2 {
			t.Errorf("schema_migrations件数 = %d, want 2", count)
		}
	})

	t.Run("SQLが不正な場合はエラーになりバージョンが記録されないこと", func(t *testing.T) {
		t.Parallel()

		broken := fstest.MapFS{
			"migrations/000001_ok.up.sql":     {Data: []byte(`CREATE TABLE ok (id INTEGER);`)},
			"migrations/000002_broken.up.sql": {Data: []byte(`CREATE TABLE (`)},
		}
		db := newTestDB(t)
		applied, err := Run(context.Background(), db, broken, "migrations", discardLogger())
		if err == nil {
			t.Fatal("Run()がエラーを返すべきだが、nilが返った")
		}
		if !reflect.DeepEqual(applied, []int{1}) {
			t.Errorf("applied = %v, want [1]", applied)
		}

		var count int
		if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE version = 2`).Scan(&count); err != nil {
			t.Fatalf("schema_migrationsの取得に失敗: %v", err)
		}
		if count != 0 {
			t.Error("失敗したマイグレーションが記録された")
		}
	})

	t.Run("ディレクトリが無い場合はエラーになること", func(t *testing.T) {
		t.Parallel()

		db := newTestDB(t)
		if _, err := Run(context.Background(), db, fsys, "missing", discardLogger()); err == nil {
			t.Fatal("Run()がエラーを返すべきだが、nilが返った")
		}
	})
}
