package servicetoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// Issuer はアサーションの発行者。
	Issuer = "gateway"
	// Audience はアサーションの受信者。
	Audience = "users-service"
	// TTL はアサーションの有効期間。発行ごとに固定。
	TTL = 60 * time.Second
	// HeaderName はアサーションを載せるHTTPヘッダー名。
	HeaderName = "x-service-token"
)

var (
	// ErrEmptySecret は署名用の共有シークレットが空の場合に返される。
	ErrEmptySecret = errors.New("サービス間シークレットが設定されていません")
	// ErrInvalidToken はアサーションの検証に失敗した場合に返される。
	ErrInvalidToken = errors.New("サービストークンが無効です")
)

// Claims はサービス間アサーションのクレーム。
// 登録済みクレームのみを使用し、ユーザー情報は含めない。
type Claims struct {
	jwt.RegisteredClaims
}

// Signer はサービス間アサーションを発行する。
// 状態を持たないため、複数のgoroutineから同時に使用できる。
type Signer struct {
	secret    []byte
	issuer    string
	audience  string
	ttl       time.Duration
	notBefore bool
	now       func() time.Time
}

// SignerOption はSignerの設定を変更する。
type SignerOption func(*Signer)

// WithNotBefore はnbfクレームを発行時刻で設定する。
func WithNotBefore() SignerOption {
	return func(s *Signer) { s.notBefore = true }
}

// WithClock は発行時刻の取得に使用する関数を差し替える。
func WithClock(now func() time.Time) SignerOption {
	return func(s *Signer) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSigner は共有シークレットで署名するSignerを生成する。
func NewSigner(secret string, opts ...SignerOption) (*Signer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	s := &Signer{
		secret:   []byte(secret),
		issuer:   Issuer,
		audience: Audience,
		ttl:      TTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Sign は新しいアサーションを発行する。呼び出しごとに別のトークンになる。
func (s *Signer) Sign() (string, error) {
	issuedAt := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.ttl)),
			ID:        uuid.New().String(),
		},
	}
	if s.notBefore {
		claims.NotBefore = jwt.NewNumericDate(issuedAt)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("サービストークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Verifier はサービス間アサーションを検証する。
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// VerifierOption はVerifierの設定を変更する。
type VerifierOption func(*Verifier)

// WithVerifyClock は有効期限の判定に使用する関数を差し替える。
func WithVerifyClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewVerifier は共有シークレットで検証するVerifierを生成する。
func NewVerifier(secret string, opts ...VerifierOption) (*Verifier, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	v := &Verifier{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify はトークンの署名・発行者・受信者・有効期限を検証し、クレームを返す。
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: トークンが空です", ErrInvalidToken)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(_ *jwt.Token) (any, error) {
			return v.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
