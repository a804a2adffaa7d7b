package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/solidfoundation/internal/identity"
	"github.com/hitoshi/solidfoundation/internal/metrics"
	"github.com/hitoshi/solidfoundation/internal/middleware"
	"github.com/hitoshi/solidfoundation/internal/session"
)

// HealthChecker はヘルスチェックで疎通を確認する依存先。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger        *slog.Logger
	HealthChecker HealthChecker

	// ミドルウェア依存
	IdentityProvider  identity.Provider
	AppURL            string
	CookieSecure      bool
	CookieDomain      string
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface
	Flows       FlowParker

	// 問い合わせ
	ContactService ContactServiceInterface

	// メトリクス（nil可）
	Metrics  metrics.MetricsCollector
	Gatherer prometheus.Gatherer
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Session
//
// /api/adminはさらに RouteGuard → CSRF を通る。
// 公開の送信系エンドポイントにはIP単位のレート制限を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.CookieSecure))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	// --- セッション不要のルート ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	csrfConfig := middleware.CSRFConfig{
		CookieSecure: deps.CookieSecure,
		CookieDomain: deps.CookieDomain,
	}
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(csrfConfig).ServeHTTP)

	contactHandler := NewContactHandler(deps.ContactService, deps.Metrics)
	adminHandler := NewAdminHandler(deps.ContactService, deps.Metrics)
	authHandler := NewAuthHandler(deps.AuthService, deps.Flows, deps.Metrics, AuthHandlerConfig{
		CookieSecure: deps.CookieSecure,
		CookieDomain: deps.CookieDomain,
		LoginPath:    defaultLoginPath,
	})

	contactLimit := func(next http.Handler) http.Handler { return next }
	authLimit := contactLimit
	if deps.RateLimiter != nil {
		contactLimit = deps.RateLimiter.ContactMiddleware()
		authLimit = deps.RateLimiter.AuthMiddleware()
	}

	// 公開の問い合わせフォーム
	r.With(contactLimit).Post("/api/contact", contactHandler.Submit)

	// --- セッションを扱うルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(middleware.SessionConfig{
			Provider:     deps.IdentityProvider,
			AppURL:       deps.AppURL,
			CookieSecure: deps.CookieSecure,
			CookieDomain: deps.CookieDomain,
		}))

		// OAuth・メール確認のコールバック
		r.Get("/auth/callback", authHandler.Callback)

		r.Route("/api/auth", func(r chi.Router) {
			r.Get("/callback", authHandler.Callback)
			r.Get("/session", authHandler.Session)
			r.With(authLimit).Get("/oauth/{provider}", authHandler.OAuthLogin)

			r.With(authLimit).Post("/signup", authHandler.SignUp)
			r.With(authLimit).Post("/login", authHandler.Login)
			r.With(authLimit).Post("/reset-password", authHandler.ResetPassword)

			// セッションを変更する操作はCSRF検証を通す
			r.With(middleware.NewCSRFMiddleware(csrfConfig)).Post("/logout", authHandler.Logout)
			r.With(
				authLimit,
				middleware.NewRouteGuard(session.PolicyProtected, defaultLoginPath),
				middleware.NewCSRFMiddleware(csrfConfig),
			).Post("/update-password", authHandler.UpdatePassword)
		})

		r.With(middleware.NewRouteGuard(session.PolicyProtected, defaultLoginPath)).Get("/api/me", authHandler.Me)

		// 管理画面API
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.NewRouteGuard(session.PolicyProtected, defaultLoginPath))
			r.Use(middleware.NewCSRFMiddleware(csrfConfig))

			r.Get("/stats", adminHandler.Stats)
			r.Route("/contacts", func(r chi.Router) {
				r.Get("/", adminHandler.ListContacts)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", adminHandler.GetContact)
					r.Delete("/", adminHandler.DeleteContact)
					r.Patch("/status", adminHandler.UpdateStatus)
				})
			})
		})
	})

	return r
}

// healthHandler はDBの疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
