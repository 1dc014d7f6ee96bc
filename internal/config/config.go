// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// EnvProduction は本番環境を表すAPP_ENVの値。
const EnvProduction = "production"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL" env-required:"true"`

	// OAuth
	GoogleClientID     string        `env:"GOOGLE_CLIENT_ID" env-required:"true"`
	GoogleClientSecret string        `env:"GOOGLE_CLIENT_SECRET" env-required:"true"`
	GoogleRedirectURL  string        `env:"GOOGLE_REDIRECT_URL" env-required:"true"`
	OAuthHTTPTimeout   time.Duration `env:"OAUTH_HTTP_TIMEOUT" env-default:"10s"`

	// Token
	JWTSecret       string        `env:"JWT_SECRET" env-required:"true"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" env-default:"168h"`

	// Cookie
	CookieSecret string `env:"COOKIE_SECRET" env-required:"true"`
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// Frontend
	FrontendURL       string `env:"FRONTEND_URL" env-required:"true"`
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN"`

	// Rate Limit（req/min）
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" env-default:"120"`
	RateLimitAuth    int `env:"RATE_LIMIT_AUTH" env-default:"30"`

	// Server
	AppEnv     string `env:"APP_ENV" env-default:"development"`
	ServerPort string `env:"SERVER_PORT" env-default:"8080"`

	// Proxy
	// trueのときだけX-Forwarded-For等のヘッダーからクライアントIPを決める。リバースプロキシの背後でのみ有効にする。
	TrustProxy bool `env:"TRUST_PROXY" env-default:"false"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" env-default:"info"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数(env-requiredタグ)が未設定または空の場合は、該当する変数名をすべて含むエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if missing := missingRequired(reflect.TypeOf(*cfg)); len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment variables: %w", err)
	}

	if cfg.CORSAllowedOrigin == "" {
		cfg.CORSAllowedOrigin = cfg.FrontendURL
	}
	if cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 {
		return nil, fmt.Errorf("token TTL must be positive: access=%s refresh=%s", cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	}
	if cfg.RateLimitGeneral <= 0 || cfg.RateLimitAuth <= 0 {
		return nil, fmt.Errorf("rate limits must be positive: general=%d auth=%d", cfg.RateLimitGeneral, cfg.RateLimitAuth)
	}

	return cfg, nil
}

// missingRequired はenv-requiredタグを持つフィールドのうち、値が空の環境変数名を返す。
// cleanenvは最初の1件で止まり、空文字列も値ありとみなすため、ここで事前にまとめて検査する。
func missingRequired(t reflect.Type) []string {
	var missing []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Tag.Get("env-required") != "true" {
			continue
		}
		name := f.Tag.Get("env")
		if os.Getenv(name) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// CookieSecure はCookieにSecure属性を付けるかどうかを返す。
func (c *Config) CookieSecure() bool {
	return c.AppEnv == EnvProduction
}
