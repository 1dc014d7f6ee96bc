package app

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/todoman/internal/config"
	"github.com/hitoshi/todoman/internal/database"
)

func testConfig() *config.Config {
	return &config.Config{
		DatabaseURL:        unreachableDatabaseURL,
		GoogleClientID:     "test-client-id",
		GoogleClientSecret: "test-client-secret",
		GoogleRedirectURL:  "http://localhost:8080/auth/google/callback",
		OAuthHTTPTimeout:   5 * time.Second,
		JWTSecret:          "test-jwt-secret-at-least-32-bytes!",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    7 * 24 * time.Hour,
		CookieSecret:       "test-cookie-secret-32-bytes-long!",
		FrontendURL:        "http://localhost:3000",
		CORSAllowedOrigin:  "http://localhost:3000",
		RateLimitGeneral:   120,
		RateLimitAuth:      30,
		AppEnv:             "development",
		ServerPort:         "8080",
		LogLevel:           "info",
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *server {
	t.Helper()

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	srv, err := newServer(cfg, db, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("newServer() error = %v", err)
	}
	t.Cleanup(srv.close)
	return srv
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "192.0.2.10:12345"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewServer_WiresRoutes(t *testing.T) {
	srv := newTestServer(t, testConfig())

	rec := serve(srv.handler, http.MethodGet, "/auth/google")
	if rec.Code != http.StatusFound {
		t.Fatalf("GET /auth/google status = %d, want %d", rec.Code, http.StatusFound)
	}
	location := rec.Header().Get("Location")
	if !strings.HasPrefix(location, "https://accounts.google.com/") || !strings.Contains(location, "client_id=test-client-id") {
		t.Errorf("Location = %q, want Google auth URL with client_id", location)
	}

	rec = serve(srv.handler, http.MethodGet, "/todos")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("GET /todos status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	rec = serve(srv.handler, http.MethodPost, "/auth/refresh")
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode refresh response: %v", err)
	}
	if rec.Code != http.StatusUnauthorized || body["error"] != "Refresh token not found" {
		t.Errorf("POST /auth/refresh = %d %v", rec.Code, body)
	}
}

func TestNewServer_HealthReportsUnavailableDatabase(t *testing.T) {
	srv := newTestServer(t, testConfig())

	rec := serve(srv.handler, http.MethodGet, "/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /health status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestNewServer_ExposesMetrics(t *testing.T) {
	srv := newTestServer(t, testConfig())

	serve(srv.handler, http.MethodGet, "/todos")

	rec := serve(srv.handler, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want %d", rec.Code, http.StatusOK)
	}
	b, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(b), "todoman_http_status_total") {
		t.Errorf("metrics output should contain todoman_http_status_total:\n%s", b)
	}
}

func TestNewServer_SecureCookieInProduction(t *testing.T) {
	cfg := testConfig()
	cfg.AppEnv = config.EnvProduction
	srv := newTestServer(t, cfg)

	rec := serve(srv.handler, http.MethodGet, "/auth/google")
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected oauth state cookie")
	}
	for _, c := range cookies {
		if !c.Secure {
			t.Errorf("cookie %s should be Secure in production", c.Name)
		}
	}
}

func TestNewServer_RejectsShortSecrets(t *testing.T) {
	cfg := testConfig()
	cfg.JWTSecret = "short"

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	defer db.Close()

	if _, err := newServer(cfg, db, prometheus.NewRegistry()); err == nil {
		t.Error("newServer() should reject a short JWT secret")
	}

	cfg = testConfig()
	cfg.CookieSecret = "short"
	if _, err := newServer(cfg, db, prometheus.NewRegistry()); err == nil {
		t.Error("newServer() should reject a short cookie secret")
	}
}
