package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	googleIssuer             = "https://accounts.google.com"
	defaultGoogleJWKSURL     = "https://www.googleapis.com/oauth2/v3/certs"
	defaultGoogleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

	// userinfoレスポンスの読み取り上限
	maxUserInfoBytes = 1 << 20
)

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*ExternalIdentity, error)
}

// GoogleOAuthConfig はGoogle OAuthプロバイダーの設定。
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// HTTPClient はGoogleとの通信に使用する。nilの場合はhttp.DefaultClient。
	HTTPClient *http.Client

	// テスト用にオーバーライド可能な値
	AuthURL     string
	TokenURL    string
	UserInfoURL string
	JWKSURL     string
	KeySet      oidc.KeySet
	Now         func() time.Time
}

// GoogleOAuthProvider はGoogle OAuth 2.0 / OpenID Connectによる認証を提供する。
// トークンレスポンスにid_tokenが含まれる場合は署名を検証してクレームを使用し、
// 含まれない場合はuserinfoエンドポイントから取得する。
type GoogleOAuthProvider struct {
	oauth       *oauth2.Config
	httpClient  *http.Client
	userInfoURL string
	verifier    *oidc.IDTokenVerifier
}

// NewGoogleOAuthProvider はGoogleOAuthProviderを生成する。
func NewGoogleOAuthProvider(config GoogleOAuthConfig) *GoogleOAuthProvider {
	endpoint := google.Endpoint
	if config.AuthURL != "" {
		endpoint.AuthURL = config.AuthURL
	}
	if config.TokenURL != "" {
		endpoint.TokenURL = config.TokenURL
	}
	if config.UserInfoURL == "" {
		config.UserInfoURL = defaultGoogleUserInfoURL
	}
	if config.JWKSURL == "" {
		config.JWKSURL = defaultGoogleJWKSURL
	}
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}

	keySet := config.KeySet
	if keySet == nil {
		// 鍵の取得はRemoteKeySet生成時のcontextに設定したクライアントで行われる
		keySet = oidc.NewRemoteKeySet(oidc.ClientContext(context.Background(), config.HTTPClient), config.JWKSURL)
	}
	verifier := oidc.NewVerifier(googleIssuer, keySet, &oidc.Config{
		ClientID: config.ClientID,
		Now:      config.Now,
	})

	return &GoogleOAuthProvider{
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		},
		httpClient:  config.HTTPClient,
		userInfoURL: config.UserInfoURL,
		verifier:    verifier,
	}
}

// GetLoginURL はGoogle OAuthの認証URLを生成する。
func (p *GoogleOAuthProvider) GetLoginURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// googleClaims はid_tokenおよびuserinfoレスポンスの共通項目。
type googleClaims struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
	Name          string `json:"name"`
}

// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
func (p *GoogleOAuthProvider) ExchangeCode(ctx context.Context, code string) (*ExternalIdentity, error) {
	ctx = oidc.ClientContext(ctx, p.httpClient)

	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	var claims *googleClaims
	if rawIDToken, ok := tok.Extra("id_token").(string); ok && rawIDToken != "" {
		claims, err = p.verifyIDToken(ctx, rawIDToken)
	} else {
		claims, err = p.fetchUserInfo(ctx, tok)
	}
	if err != nil {
		return nil, err
	}

	if claims.Sub == "" {
		return nil, errors.New("google response has no subject")
	}
	if claims.EmailVerified != nil && !*claims.EmailVerified {
		return nil, errors.New("google account email is not verified")
	}

	return &ExternalIdentity{
		Provider:       ProviderGoogle,
		ProviderUserID: claims.Sub,
		Email:          claims.Email,
		Name:           claims.Name,
	}, nil
}

// verifyIDToken はid_tokenの署名、発行者、audience、有効期限を検証する。
func (p *GoogleOAuthProvider) verifyIDToken(ctx context.Context, rawIDToken string) (*googleClaims, error) {
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify id_token: %w", err)
	}

	var claims googleClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse id_token claims: %w", err)
	}
	claims.Sub = idToken.Subject
	return &claims, nil
}

// fetchUserInfo はアクセストークンでGoogleのユーザー情報を取得する。
func (p *GoogleOAuthProvider) fetchUserInfo(ctx context.Context, tok *oauth2.Token) (*googleClaims, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user info request: %w", err)
	}

	resp, err := p.oauth.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("user info request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read user info response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info fetch failed with status %d", resp.StatusCode)
	}

	var claims googleClaims
	if err := json.Unmarshal(body, &claims); err != nil {
		return nil, fmt.Errorf("failed to parse user info response: %w", err)
	}
	return &claims, nil
}

// compile-time interface check
var _ OAuthProvider = (*GoogleOAuthProvider)(nil)
