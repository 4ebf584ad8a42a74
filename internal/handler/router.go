package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/taskflow/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier     middleware.TokenVerifier
	Authenticator     middleware.Authenticator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 認証
	OAuthStates OAuthStateService
	Exchanger   OAuthExchanger
	Vault       TokenVaultService
	Sessions    SessionService
	AuthConfig  AuthHandlerConfig

	// 同期
	Syncer           SyncServiceInterface
	AutoSync         AutoSyncService
	AutoSyncInterval time.Duration

	// ダッシュボード
	Dashboard DashboardServiceInterface

	// 稼働確認
	Health *HealthHandler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → Logging → RateLimit(General)
//
// 認証が必要なルートはさらにAuthMiddlewareを通る。
// 同期実行ルートには同期専用レート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	r.Use(deps.RateLimiter.GeneralMiddleware())

	authHandler := NewAuthHandler(deps.OAuthStates, deps.Exchanger, deps.Vault, deps.Sessions, deps.Syncer, deps.AutoSync, deps.AuthConfig, nil)
	syncHandler := NewSyncHandler(deps.Syncer, deps.AutoSync, deps.AutoSyncInterval, nil)
	dashboardHandler := NewDashboardHandler(deps.Dashboard, nil)
	webhookHandler := NewWebhookHandler(nil)

	// --- 認証不要のルート ---

	r.Get("/health", deps.Health.Health)
	r.Get("/api/v1/health", deps.Health.Health)

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Get("/clickup/authorize", authHandler.Authorize)
		r.Get("/clickup/callback", authHandler.Callback)
		r.Get("/demo", authHandler.Demo)
	})

	// ClickUpからのWebhook通知（送信元はセッションを持たない）
	r.Post("/api/webhooks/clickup", webhookHandler.Receive)

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.TokenVerifier, deps.Authenticator))

		r.Get("/api/v1/auth/status", authHandler.Status)
		r.Post("/api/v1/auth/logout", authHandler.Logout)

		r.Route("/api/v1/sync", func(r chi.Router) {
			// POST /api/v1/sync - 手動同期（同期専用レート制限を追加）
			r.With(deps.RateLimiter.SyncMiddleware()).Post("/", syncHandler.Sync)

			r.Get("/status", syncHandler.SyncStatus)
			r.Post("/auto/start", syncHandler.StartAutoSync)
			r.Post("/auto/stop", syncHandler.StopAutoSync)
		})

		r.Get("/api/v1/dashboard", dashboardHandler.Dashboard)
		r.Get("/api/v1/tasks", dashboardHandler.Tasks)
		r.Get("/api/v1/team", dashboardHandler.Team)
	})

	return r
}
