package config

import (
	"os"
	"testing"
)

// unsetForTest は環境変数を削除する。
// 事前にt.Setenvを呼んでおくことで、テスト終了時に元の値へ戻る。
func unsetForTest(t *testing.T, keys ...string) {
	t.Helper()

	for _, k := range keys {
		if err := os.Unsetenv(k); err != nil {
			t.Fatalf("環境変数%sの削除に失敗: %v", k, err)
		}
	}
}
