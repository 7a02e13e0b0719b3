package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/confsite/internal/config"
	"github.com/nao1215/confsite/internal/userinfo"
	"github.com/nao1215/confsite/pkg/httpclient"
	"github.com/nao1215/confsite/pkg/middleware"
	"github.com/sirupsen/logrus"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testJWTSecret はテスト用のJWT署名秘密鍵。
const testJWTSecret = "test-secret-key"

// fakeFetcher はテスト用のUserInfoFetcher。
type fakeFetcher struct {
	mu    sync.Mutex
	users map[string]*userinfo.User
	errs  map[string]error
	// calls は問い合わせたIDの履歴。
	calls []string
	// requestIDs は問い合わせ時のcontextに載っていたリクエストID。
	requestIDs []string
}

func (f *fakeFetcher) FetchUserInfo(ctx context.Context, id string) (*userinfo.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, id)
	requestID, _ := httpclient.RequestIDFrom(ctx)
	f.requestIDs = append(f.requestIDs, requestID)
	if err, ok := f.errs[id]; ok {
		return nil, err
	}
	return f.users[id], nil
}

func boolPtr(b bool) *bool { return &b }

// newTestServer はテスト用のGatewayサーバーを生成する。
func newTestServer(t *testing.T, fetcher UserInfoFetcher, appEnv string) *Server {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &config.Gateway{
		Common: config.Common{
			AppEnv:                 appEnv,
			ServiceToServiceSecret: "service-secret",
		},
		Port:            "0",
		JWTSecret:       testJWTSecret,
		UsersServiceURL: "http://users:8081",
		FrontendURLs:    []string{"http://localhost:3000"},
		ShutdownTimeout: time.Second,
	}
	return NewServer(cfg, fetcher, logger)
}

// generateTestJWT はテスト用のJWTトークンを生成する。
func generateTestJWT(t *testing.T, userID, email string) string {
	t.Helper()

	token, err := middleware.GenerateJWT(testJWTSecret, userID, email)
	if err != nil {
		t.Fatalf("テスト用JWT生成に失敗: %v", err)
	}
	return token
}

// doGet は認証付きのGETリクエストを送る。
func doGet(t *testing.T, s *Server, path, token string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

var (
	staffUser    = &userinfo.User{ID: 1, Email: "staff@example.com", IsStaff: true, IsActive: boolPtr(true)}
	memberUser   = &userinfo.User{ID: 2, Email: "member@example.com", IsActive: boolPtr(true)}
	inactiveUser = &userinfo.User{ID: 3, Email: "gone@example.com", IsActive: boolPtr(false)}
	legacyUser   = &userinfo.User{ID: 4, Email: "legacy@example.com"}

	timeoutErr   = &userinfo.TransportError{Op: "request", Err: userinfo.ErrTimeout}
	transportErr = &userinfo.TransportError{Op: "request", StatusCode: http.StatusInternalServerError, Err: errors.New("boom")}
)

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		users: map[string]*userinfo.User{
			"1": staffUser,
			"2": memberUser,
			"3": inactiveUser,
			"4": legacyUser,
		},
		errs: map[string]error{
			"10": timeoutErr,
			"11": transportErr,
			"12": errors.New("unexpected"),
		},
	}
}

// TestHandleGetCurrentUser は/api/v1/meのステータスマッピングを検証する。
func TestHandleGetCurrentUser(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		userID   string
		wantCode int
	}{
		{name: "ユーザーが見つかれば200を返すこと", userID: "2", wantCode: http.StatusOK},
		{name: "isActiveが無い場合は有効とみなすこと", userID: "4", wantCode: http.StatusOK},
		{name: "ユーザーが存在しなければ404を返すこと", userID: "99", wantCode: http.StatusNotFound},
		{name: "無効化されたユーザーは403を返すこと", userID: "3", wantCode: http.StatusForbidden},
		{name: "タイムアウトは504を返すこと", userID: "10", wantCode: http.StatusGatewayTimeout},
		{name: "通信エラーは502を返すこと", userID: "11", wantCode: http.StatusBadGateway},
		{name: "想定外のエラーは500を返すこと", userID: "12", wantCode: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := newTestServer(t, newFakeFetcher(), "production")
			w := doGet(t, s, "/api/v1/me", generateTestJWT(t, tt.userID, "a@example.com"))
			if w.Code != tt.wantCode {
				t.Errorf("ステータスコード = %d, want %d, body = %s", w.Code, tt.wantCode, w.Body.String())
			}
		})
	}

	t.Run("レスポンスボディにユーザー情報が含まれること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, newFakeFetcher(), "production")
		w := doGet(t, s, "/api/v1/me", generateTestJWT(t, "1", "staff@example.com"))

		var body map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスのパースに失敗: %v", err)
		}
		if body["id"] != float64(1) || body["email"] != "staff@example.com" || body["is_staff"] != true {
			t.Errorf("body = %v", body)
		}
		if body["is_active"] != true {
			t.Errorf("is_active = %v, want true", body["is_active"])
		}
	})

	t.Run("isActiveを問い合わせていなければis_activeを含まないこと", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, newFakeFetcher(), "production")
		w := doGet(t, s, "/api/v1/me", generateTestJWT(t, "4", "legacy@example.com"))

		var body map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスのパースに失敗: %v", err)
		}
		if _, ok := body["is_active"]; ok {
			t.Errorf("is_activeが含まれている: %v", body)
		}
	})

	t.Run("認証なしでは401を返しusers-serviceに問い合わせないこと", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher()
		s := newTestServer(t, fetcher, "production")
		w := doGet(t, s, "/api/v1/me", "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if len(fetcher.calls) != 0 {
			t.Errorf("calls = %v, want none", fetcher.calls)
		}
	})

	t.Run("リクエストIDがusers-serviceへの問い合わせに伝播すること", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher()
		s := newTestServer(t, fetcher, "production")

		req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
		req.Header.Set("Authorization", "Bearer "+generateTestJWT(t, "2", "member@example.com"))
		req.Header.Set("X-Request-ID", "req-abc")
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)

		if len(fetcher.requestIDs) != 1 || fetcher.requestIDs[0] != "req-abc" {
			t.Errorf("requestIDs = %v, want [req-abc]", fetcher.requestIDs)
		}
		if got := w.Header().Get("X-Request-ID"); got != "req-abc" {
			t.Errorf("X-Request-ID = %q, want %q", got, "req-abc")
		}
	})
}

// TestHandleGetUser は/api/v1/users/:idを検証する。
func TestHandleGetUser(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		callerID  string
		targetID  string
		wantCode  int
		wantCalls []string
	}{
		{name: "スタッフは他のユーザーを取得できること", callerID: "1", targetID: "2", wantCode: http.StatusOK, wantCalls: []string{"1", "2"}},
		{name: "スタッフは無効化されたユーザーも取得できること", callerID: "1", targetID: "3", wantCode: http.StatusOK, wantCalls: []string{"1", "3"}},
		{name: "スタッフでなければ403を返すこと", callerID: "2", targetID: "1", wantCode: http.StatusForbidden, wantCalls: []string{"2"}},
		{name: "無効化された呼び出し元は403を返すこと", callerID: "3", targetID: "1", wantCode: http.StatusForbidden, wantCalls: []string{"3"}},
		{name: "呼び出し元が存在しなければ404を返すこと", callerID: "99", targetID: "1", wantCode: http.StatusNotFound, wantCalls: []string{"99"}},
		{name: "対象が存在しなければ404を返すこと", callerID: "1", targetID: "99", wantCode: http.StatusNotFound, wantCalls: []string{"1", "99"}},
		{name: "対象の取得がタイムアウトすれば504を返すこと", callerID: "1", targetID: "10", wantCode: http.StatusGatewayTimeout, wantCalls: []string{"1", "10"}},
		{name: "対象の取得で通信エラーなら502を返すこと", callerID: "1", targetID: "11", wantCode: http.StatusBadGateway, wantCalls: []string{"1", "11"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fetcher := newFakeFetcher()
			s := newTestServer(t, fetcher, "production")
			w := doGet(t, s, "/api/v1/users/"+tt.targetID, generateTestJWT(t, tt.callerID, "a@example.com"))
			if w.Code != tt.wantCode {
				t.Errorf("ステータスコード = %d, want %d, body = %s", w.Code, tt.wantCode, w.Body.String())
			}
			if len(fetcher.calls) != len(tt.wantCalls) {
				t.Fatalf("calls = %v, want %v", fetcher.calls, tt.wantCalls)
			}
			for i := range tt.wantCalls {
				if fetcher.calls[i] != tt.wantCalls[i] {
					t.Errorf("calls[%d] = %q, want %q", i, fetcher.calls[i], tt.wantCalls[i])
				}
			}
		})
	}
}

// TestHandleDevToken は開発用トークン発行を検証する。
func TestHandleDevToken(t *testing.T) {
	t.Parallel()

	post := func(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
		t.Helper()

		req := httptest.NewRequest(http.MethodPost, "/auth/dev-token", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		return w
	}

	t.Run("開発環境では発行したトークンで/meにアクセスできること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, newFakeFetcher(), "development")
		w := post(t, s, `{"user_id":"2","email":"member@example.com"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
		}

		var body struct {
			Token  string `json:"token"`
			UserID string `json:"user_id"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスのパースに失敗: %v", err)
		}
		if body.UserID != "2" || body.Token == "" {
			t.Errorf("body = %+v", body)
		}

		me := doGet(t, s, "/api/v1/me", body.Token)
		if me.Code != http.StatusOK {
			t.Errorf("/me のステータスコード = %d, want %d", me.Code, http.StatusOK)
		}
	})

	t.Run("不正なボディは400を返すこと", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, newFakeFetcher(), "development")
		for _, body := range []string{`{}`, `{"user_id":"2"}`, `{"user_id":"2","email":"not-an-email"}`, `not json`} {
			if w := post(t, s, body); w.Code != http.StatusBadRequest {
				t.Errorf("body %s: ステータスコード = %d, want %d", body, w.Code, http.StatusBadRequest)
			}
		}
	})

	t.Run("本番環境では404を返すこと", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, newFakeFetcher(), "production")
		w := post(t, s, `{"user_id":"2","email":"member@example.com"}`)
		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

// TestHealth はヘルスチェックとCORSを検証する。
func TestHealth(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, newFakeFetcher(), "production")
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}
