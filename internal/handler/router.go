package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/todoman/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Authorizer        *middleware.Authorizer
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	MetricsRecorder   middleware.HTTPRecorder
	// TrustProxyHeaders がtrueのときだけX-Forwarded-For等からクライアントIPを決める。
	TrustProxyHeaders bool

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	CookieCodec CookieCodec
	AuthConfig  AuthHandlerConfig

	// Todo
	TodoService TodoServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// 全ルート共通のミドルウェアの実行順序:
//
//	RealIP → Logging → Metrics → Recovery → SecurityHeaders → CORS
//
// RealIPはTrustProxyHeadersが有効な場合のみ組み込む。無効時はRemoteAddrをそのまま使う。
//
// /todos と /auth/sign_out は Authorizer → RateLimit(General) を追加で通る。
// 未認証で呼べる /auth/* はクライアントIP単位のRateLimit(Auth)を通る。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if deps.TrustProxyHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.MetricsRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.MetricsRecorder))
	}
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.Authorizer, deps.CookieCodec, deps.AuthConfig)
	todoHandler := NewTodoHandler(deps.TodoService)
	requireUser := deps.Authorizer.Middleware()

	// --- 運用エンドポイント ---
	r.Get("/health", Health(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 認証 ---
	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.AuthMiddleware())

			r.Get("/google", authHandler.Login)
			r.Get("/google/callback", authHandler.Callback)
			r.Post("/refresh", authHandler.Refresh)
			r.Get("/current_user", authHandler.CurrentUser)
		})

		r.With(requireUser, deps.RateLimiter.GeneralMiddleware()).Delete("/sign_out", authHandler.SignOut)
	})

	// --- Todo（認証必須） ---
	r.Route("/todos", func(r chi.Router) {
		r.Use(requireUser)
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/", todoHandler.List)
		r.Post("/", todoHandler.Create)

		r.Route("/{id}", func(r chi.Router) {
			r.Patch("/", todoHandler.Update)
			r.Put("/", todoHandler.Update)
			r.Delete("/", todoHandler.Delete)
		})
	})

	return r
}
