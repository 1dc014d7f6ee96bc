package security

import (
	"fmt"
	"time"

	"github.com/gorilla/securecookie"
)

// MinCookieSecretLength はCookie署名鍵に要求する最小バイト数。
const MinCookieSecretLength = 32

// CookieSigner はCookie値にHMAC署名を付与し、改ざんを検出する。
// 値は暗号化されず、署名と発行時刻のみが付与される。
type CookieSigner struct {
	codec *securecookie.SecureCookie
}

// NewCookieSigner はCookieSignerを生成する。
// maxAgeを過ぎた署名済み値はDecodeで拒否される。
func NewCookieSigner(secret []byte, maxAge time.Duration) (*CookieSigner, error) {
	if len(secret) < MinCookieSecretLength {
		return nil, fmt.Errorf("cookie secret must be at least %d bytes", MinCookieSecretLength)
	}

	codec := securecookie.New(secret, nil)
	codec.MaxAge(int(maxAge / time.Second))
	codec.SetSerializer(securecookie.JSONEncoder{})

	return &CookieSigner{codec: codec}, nil
}

// Encode は値に署名してCookieに格納できる文字列を返す。
// 署名にはCookie名が含まれるため、別名のCookieへの流用は検出される。
func (s *CookieSigner) Encode(name, value string) (string, error) {
	encoded, err := s.codec.Encode(name, value)
	if err != nil {
		return "", fmt.Errorf("failed to sign cookie %q: %w", name, err)
	}
	return encoded, nil
}

// Decode は署名を検証し、元の値を返す。
// 改ざん、期限切れ、名前の不一致はすべてエラーになる。
func (s *CookieSigner) Decode(name, encoded string) (string, error) {
	var value string
	if err := s.codec.Decode(name, encoded, &value); err != nil {
		return "", fmt.Errorf("failed to verify cookie %q: %w", name, err)
	}
	return value, nil
}
