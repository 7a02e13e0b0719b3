package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

// TestLogger はLoggerミドルウェアを検証する。
func TestLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		level  string
	}{
		{name: "2xxはinfo", status: http.StatusOK, level: "info"},
		{name: "4xxはwarning", status: http.StatusNotFound, level: "warning"},
		{name: "5xxはerror", status: http.StatusBadGateway, level: "error"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name+"レベルで出力されること", func(t *testing.T) {
			t.Parallel()

			logger, buf := newTestLogger()
			router := gin.New()
			router.Use(RequestID(), Logger(logger))
			router.GET("/api/v1/me", func(c *gin.Context) {
				c.Status(tt.status)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
			req.Header.Set("X-Request-ID", "req-log")
			serve(router, req)

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("ログのパースに失敗: %v (%s)", err, buf.String())
			}
			if entry["level"] != tt.level {
				t.Errorf("level = %v, want %s", entry["level"], tt.level)
			}
			if entry["path"] != "/api/v1/me" {
				t.Errorf("path = %v, want /api/v1/me", entry["path"])
			}
			if entry["method"] != http.MethodGet {
				t.Errorf("method = %v, want GET", entry["method"])
			}
			if status, _ := entry["status"].(float64); int(status) != tt.status {
				t.Errorf("status = %v, want %d", entry["status"], tt.status)
			}
			if entry["request_id"] != "req-log" {
				t.Errorf("request_id = %v, want req-log", entry["request_id"])
			}
		})
	}
}
