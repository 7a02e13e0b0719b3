package userinfo

import (
	"errors"
	"fmt"
)

// ErrTimeout はusers-serviceの応答が制限時間内に得られなかったことを表す。
// 常に*TransportErrorにラップされて返される。
var ErrTimeout = errors.New("users-serviceの応答がタイムアウトしました")

// ConfigurationError は起動時の設定が不正であることを表す。
// Newからのみ返され、個々の呼び出しでは発生しない。
type ConfigurationError struct {
	// Field は不正な設定項目の名前。
	Field string
	// Reason は不正の理由。
	Reason string
}

// Error はエラーメッセージを返す。
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("userinfo: 設定が不正です: %s: %s", e.Field, e.Reason)
}

// TransportError はusers-serviceとの通信に失敗したことを表す。
// ネットワークエラー、2xx以外のステータス、不正なレスポンスボディを含む。
// 「ユーザーが存在しない」はこのエラーにならない。
type TransportError struct {
	// Op は失敗した処理の名前。
	Op string
	// StatusCode はHTTPステータスコード。レスポンスを受け取れなかった場合は0。
	StatusCode int
	// Err は原因となったエラー。
	Err error
}

// Error はエラーメッセージを返す。
func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("userinfo: %s: status=%d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("userinfo: %s: %v", e.Op, e.Err)
}

// Unwrap は原因となったエラーを返す。
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout はタイムアウトによる失敗かどうかを返す。
func (e *TransportError) Timeout() bool {
	return errors.Is(e.Err, ErrTimeout)
}

// IsTimeout はerrがタイムアウトによる*TransportErrorかどうかを返す。
func IsTimeout(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Timeout()
}
