package userinfo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/confsite/pkg/httpclient"
	"github.com/nao1215/confsite/pkg/servicetoken"
)

const (
	// InternalAPIPath はusers-serviceの内部APIのパス。
	InternalAPIPath = "/internal-api"
	// DefaultTimeout は1回の問い合わせにかける時間の上限のデフォルト値。
	DefaultTimeout = 5 * time.Second
)

// User はusers-serviceから取得したユーザー情報。
type User struct {
	// ID はユーザーの識別子。
	ID int64 `json:"id"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email"`
	// IsStaff はスタッフ権限を持つかどうか。
	IsStaff bool `json:"is_staff"`
	// IsActive はアカウントが有効かどうか。問い合わせていない場合はnil。
	IsActive *bool `json:"is_active,omitempty"`
}

// Options はProxyの設定。
type Options struct {
	// BaseURL はusers-serviceのベースURL（例: "http://users:8081"）。必須。
	BaseURL string
	// Secret はサービス間アサーションの署名に使う共有シークレット。必須。
	Secret string
	// Timeout は1回の問い合わせの上限時間。0の場合はDefaultTimeout。
	Timeout time.Duration
	// RequestIsActive はisActiveフィールドを問い合わせるかどうか。
	RequestIsActive bool
	// SetNotBefore はアサーションにnbfクレームを設定するかどうか。
	SetNotBefore bool
	// HTTPClient は通信に使うhttp.Client。nilの場合はプール付きのクライアントを生成する。
	HTTPClient *http.Client
	// Now はアサーションの発行時刻の取得に使う関数。nilの場合はtime.Now。
	Now func() time.Time
}

// Proxy はusers-serviceにユーザー情報を問い合わせる。
// 可変の状態を持たないため、複数のgoroutineから同時に呼び出せる。
type Proxy struct {
	client          *httpclient.Client
	signer          *servicetoken.Signer
	timeout         time.Duration
	query           string
	requestIsActive bool
}

// New はProxyを生成する。設定に不備があれば*ConfigurationErrorを返す。
func New(opts Options) (*Proxy, error) {
	if opts.Secret == "" {
		return nil, &ConfigurationError{Field: "Secret", Reason: "サービス間シークレットが空です"}
	}
	baseURL, err := normalizeBaseURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	if opts.Timeout < 0 {
		return nil, &ConfigurationError{Field: "Timeout", Reason: "負の値は指定できません"}
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	signerOpts := []servicetoken.SignerOption{servicetoken.WithClock(opts.Now)}
	if opts.SetNotBefore {
		signerOpts = append(signerOpts, servicetoken.WithNotBefore())
	}
	signer, err := servicetoken.NewSigner(opts.Secret, signerOpts...)
	if err != nil {
		return nil, &ConfigurationError{Field: "Secret", Reason: err.Error()}
	}

	clientOpts := []httpclient.Option{httpclient.WithTimeout(timeout)}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, httpclient.WithHTTPClient(opts.HTTPClient))
	}

	return &Proxy{
		client:          httpclient.New(baseURL, clientOpts...),
		signer:          signer,
		timeout:         timeout,
		query:           buildQuery(opts.RequestIsActive),
		requestIsActive: opts.RequestIsActive,
	}, nil
}

// normalizeBaseURL はベースURLが絶対URLであることを確認し、末尾のスラッシュを取り除く。
func normalizeBaseURL(raw string) (string, error) {
	if raw == "" {
		return "", &ConfigurationError{Field: "BaseURL", Reason: "users-serviceのURLが空です"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", &ConfigurationError{Field: "BaseURL", Reason: err.Error()}
	}
	if !u.IsAbs() || u.Host == "" {
		return "", &ConfigurationError{Field: "BaseURL", Reason: fmt.Sprintf("絶対URLではありません: %q", raw)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &ConfigurationError{Field: "BaseURL", Reason: fmt.Sprintf("未対応のスキームです: %q", u.Scheme)}
	}
	return strings.TrimRight(raw, "/"), nil
}

// FetchUserInfo はidのユーザー情報をusers-serviceに問い合わせる。
// ユーザーが存在しない場合は(nil, nil)を返す。通信の失敗は*TransportErrorになる。
// idの妥当性はusers-serviceが判断するため、ここでは検証しない。
func (p *Proxy) FetchUserInfo(ctx context.Context, id string) (*User, error) {
	token, err := p.signer.Sign()
	if err != nil {
		return nil, fmt.Errorf("userinfo: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req := graphQLRequest{
		Query:     p.query,
		Variables: map[string]any{"id": id},
	}
	var resp graphQLResponse
	err = p.client.PostJSON(ctx, InternalAPIPath, req, &resp,
		httpclient.WithHeader(servicetoken.HeaderName, token))
	if err != nil {
		return nil, classify(ctx, err)
	}

	return p.mapResponse(&resp)
}

// mapResponse はGraphQLレスポンスをUserに変換する。
func (p *Proxy) mapResponse(resp *graphQLResponse) (*User, error) {
	if len(resp.Errors) > 0 {
		return nil, &TransportError{Op: "query", Err: resp.Errors}
	}
	if resp.Data == nil {
		return nil, &TransportError{Op: "decode", Err: errors.New("dataフィールドがありません")}
	}
	if len(resp.Data.User) == 0 {
		return nil, &TransportError{Op: "decode", Err: errors.New("userフィールドがありません")}
	}
	if string(resp.Data.User) == "null" {
		return nil, nil
	}

	var payload userPayload
	if err := json.Unmarshal(resp.Data.User, &payload); err != nil {
		return nil, &TransportError{Op: "decode", Err: err}
	}
	if payload.ID == nil || payload.Email == nil || payload.IsStaff == nil {
		return nil, &TransportError{Op: "decode", Err: errors.New("必須フィールドが欠けています")}
	}

	user := &User{
		ID:      int64(*payload.ID),
		Email:   *payload.Email,
		IsStaff: *payload.IsStaff,
	}
	if p.requestIsActive {
		user.IsActive = payload.IsActive
	}
	return user, nil
}

// classify はhttpclientのエラーを*TransportErrorに変換する。
func classify(ctx context.Context, err error) error {
	if isTimeout(ctx, err) {
		return &TransportError{Op: "request", Err: fmt.Errorf("%w: %w", ErrTimeout, err)}
	}

	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		return &TransportError{Op: "request", StatusCode: statusErr.StatusCode, Err: err}
	}
	if errors.Is(err, httpclient.ErrDecode) {
		return &TransportError{Op: "decode", Err: err}
	}
	return &TransportError{Op: "request", Err: err}
}

// isTimeout はエラーがタイムアウトによるものかどうかを判定する。
func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// buildQuery は問い合わせるフィールドに応じたGraphQLクエリを組み立てる。
func buildQuery(requestIsActive bool) string {
	fields := []string{"id", "email", "isStaff"}
	if requestIsActive {
		fields = append(fields, "isActive")
	}

	var b strings.Builder
	b.WriteString("query($id: ID) {\n  user(id: $id) {\n")
	for _, f := range fields {
		b.WriteString("    ")
		b.WriteString(f)
		b.WriteString("\n")
	}
	b.WriteString("  }\n}\n")
	return b.String()
}

// graphQLRequest はGraphQLのリクエストボディ。
type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphQLResponse はGraphQLのレスポンスボディ。
type graphQLResponse struct {
	Data *struct {
		// User はnullと欠落を区別するため生のまま保持する。
		User json.RawMessage `json:"user"`
	} `json:"data"`
	Errors graphQLErrors `json:"errors"`
}

// graphQLError はGraphQLのエラー1件。
type graphQLError struct {
	Message string `json:"message"`
}

// graphQLErrors はGraphQLのエラー一覧。errorとして扱える。
type graphQLErrors []graphQLError

// Error はエラーメッセージを連結して返す。
func (e graphQLErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, ge := range e {
		msgs = append(msgs, ge.Message)
	}
	return "GraphQLエラー: " + strings.Join(msgs, "; ")
}

// userPayload はusers-serviceが返すuserオブジェクト。
type userPayload struct {
	ID       *numericID `json:"id"`
	Email    *string    `json:"email"`
	IsStaff  *bool      `json:"isStaff"`
	IsActive *bool      `json:"isActive"`
}

// numericID はJSONの数値と数値文字列のどちらでも受け付ける識別子。
// GraphQLのID型は文字列で返されることがある。
type numericID int64

// UnmarshalJSON は数値または数値文字列をnumericIDに変換する。
func (n *numericID) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("idが数値ではありません: %s", string(b))
	}
	*n = numericID(v)
	return nil
}
