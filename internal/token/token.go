// Package token はアクセストークンとリフレッシュトークンの発行と検証を提供する。
// トークンはHS256で署名されたJWTで、共有シークレットは1つだけ使用する。
package token

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind はトークンの種別を表す。
type Kind string

// トークン種別
const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Valid は既知の種別かどうかを返す。
func (k Kind) Valid() bool {
	return k == KindAccess || k == KindRefresh
}

// 有効期限のデフォルト値
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// MinSecretLength はHS256の共有シークレットに要求する最小バイト数。
const MinSecretLength = 32

// ErrInvalidToken は検証に失敗したことを表す。
// 失敗理由（期限切れ、署名不一致など）は呼び出し元に区別させない。
var ErrInvalidToken = errors.New("invalid token")

// Claims はトークンに含まれるクレーム。
// subjectにユーザーIDを、kindにトークン種別を持つ。
type Claims struct {
	Kind Kind `json:"kind"`
	jwt.RegisteredClaims
}

// UserID はトークンの対象ユーザーIDを返す。
func (c *Claims) UserID() string {
	return c.Subject
}

// Observer はトークンの発行・拒否を記録する。
type Observer interface {
	RecordTokenIssued(kind string)
	RecordTokenRejected(reason string)
}

type nopObserver struct{}

func (nopObserver) RecordTokenIssued(string)   {}
func (nopObserver) RecordTokenRejected(string) {}

// Config はCodecの設定。
type Config struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Codec はトークンの発行と検証を行う。
type Codec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	observer   Observer
}

// Option はCodecの生成オプション。
type Option func(*Codec)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// WithObserver は発行・拒否の記録先を設定する。
func WithObserver(o Observer) Option {
	return func(c *Codec) {
		if o != nil {
			c.observer = o
		}
	}
}

// NewCodec はCodecを生成する。
// TTLが0以下の場合はデフォルト値を使用する。
func NewCodec(cfg Config, opts ...Option) (*Codec, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d bytes", MinSecretLength)
	}

	c := &Codec{
		secret:     cfg.Secret,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
		observer:   nopObserver{},
	}
	if c.accessTTL <= 0 {
		c.accessTTL = DefaultAccessTTL
	}
	if c.refreshTTL <= 0 {
		c.refreshTTL = DefaultRefreshTTL
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL は種別ごとの有効期間を返す。
func (c *Codec) TTL(kind Kind) time.Duration {
	if kind == KindRefresh {
		return c.refreshTTL
	}
	return c.accessTTL
}

// Issue は指定ユーザー向けのトークンを発行する。
// 同一秒内に発行しても jti によりトークン文字列は一意になる。
func (c *Codec) Issue(subject string, kind Kind) (string, error) {
	if subject == "" {
		return "", errors.New("token subject must not be empty")
	}
	if !kind.Valid() {
		return "", fmt.Errorf("unknown token kind: %q", kind)
	}

	now := c.now()
	claims := &Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.TTL(kind))),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", kind, err)
	}

	c.observer.RecordTokenIssued(string(kind))
	return signed, nil
}

// Verify はトークンの署名と有効期限を検証し、クレームを返す。
// 失敗時は理由に関わらずErrInvalidTokenを返す。
func (c *Codec) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, c.reject(rejectReason(err), err)
	}
	if claims.Subject == "" {
		return nil, c.reject("missing_subject", nil)
	}
	if !claims.Kind.Valid() {
		return nil, c.reject("unknown_kind", nil)
	}
	return claims, nil
}

func (c *Codec) reject(reason string, cause error) error {
	attrs := []any{slog.String("reason", reason)}
	if cause != nil {
		attrs = append(attrs, slog.String("error", cause.Error()))
	}
	slog.Warn("token rejected", attrs...)
	c.observer.RecordTokenRejected(reason)
	return ErrInvalidToken
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "unverifiable"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	default:
		return "invalid"
	}
}
