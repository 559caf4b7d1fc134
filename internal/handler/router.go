package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/leadman/internal/metrics"
	"github.com/hitoshi/leadman/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Guard             *middleware.Guard
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	CORS              middleware.CORSConfig
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector

	// MetricsHandler は/metricsで公開するハンドラー。nilの場合は公開しない。
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 管理
	AdminPolicy AdminPolicyInterface
	UserService UserServiceInterface

	// リード・キャンペーン・フォーム項目
	LeadService      LeadServiceInterface
	CampaignService  CampaignServiceInterface
	FormFieldService FormFieldServiceInterface

	// ヘルスチェック
	HealthChecker HealthChecker
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → CORS → (グループごと) Guard → RateLimit → CSRF
//
// /api/auth の登録・ログインはクライアントIP単位のレート制限のみを適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewCORSMiddleware(deps.CORS))

	guard := deps.Guard
	csrf := middleware.NewCSRFMiddleware(deps.CSRFConfig)

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	adminHandler := NewAdminHandler(guard, deps.AdminPolicy, deps.UserService, deps.LeadService)
	leadHandler := NewLeadHandler(deps.LeadService)
	campaignHandler := NewCampaignHandler(deps.CampaignService)
	formFieldHandler := NewFormFieldHandler(deps.FormFieldService)
	healthHandler := NewHealthHandler(deps.HealthChecker)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler.Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

		// 認証ルート
		r.Route("/auth", func(r chi.Router) {
			r.With(deps.RateLimiter.AuthMiddleware()).Post("/register", authHandler.Register)
			r.With(deps.RateLimiter.AuthMiddleware()).Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.With(guard.RequireAuth, deps.RateLimiter.GeneralMiddleware()).
				Get("/me", middleware.WithIdentity(authHandler.Me))
		})

		// --- 認証が必要なルート ---
		// ミドルウェアスタック: RequireAuth → RateLimit(General) → CSRF
		r.Group(func(r chi.Router) {
			r.Use(guard.RequireAuth)
			r.Use(deps.RateLimiter.GeneralMiddleware())
			r.Use(csrf)

			r.Get("/campaigns", campaignHandler.List)
			r.Get("/admin/my-status", middleware.WithIdentity(adminHandler.MyStatus))

			// リード管理
			r.Route("/leads", func(r chi.Router) {
				r.Get("/", middleware.WithIdentity(leadHandler.List))
				r.Post("/", middleware.WithIdentity(leadHandler.Create))
				r.Post("/check-duplicate", middleware.WithIdentity(leadHandler.CheckDuplicate))
				r.Get("/stats", middleware.WithIdentity(leadHandler.Stats))
				r.Get("/leaderboard", middleware.WithIdentity(leadHandler.Leaderboard))
				r.Get("/export", middleware.WithIdentity(leadHandler.Export))

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", middleware.WithIdentity(leadHandler.Get))
					r.Put("/", middleware.WithIdentity(leadHandler.Update))
					r.Delete("/", middleware.WithIdentity(leadHandler.Delete))
					r.Get("/notes", middleware.WithIdentity(leadHandler.ListNotes))
					r.Post("/notes", middleware.WithIdentity(leadHandler.AddNote))
				})
			})
		})

		// --- 管理者のみのルート ---
		// ミドルウェアスタック: RequireAdmin → RateLimit(General) → CSRF
		r.Group(func(r chi.Router) {
			r.Use(guard.RequireAdmin)
			r.Use(deps.RateLimiter.GeneralMiddleware())
			r.Use(csrf)

			r.Get("/admin/users", middleware.WithIdentity(adminHandler.ListUsers))
			r.Get("/admin/users/{userId}", middleware.WithIdentity(adminHandler.GetUser))
			r.Delete("/admin/users/{userId}", middleware.WithIdentity(adminHandler.DeleteUser))
			r.Post("/admin/toggle-admin/{userId}", middleware.WithIdentity(adminHandler.ToggleAdmin))
			r.Post("/admin/bulk-update-admin", middleware.WithIdentity(adminHandler.BulkUpdateAdmin))
			r.Get("/admin/stats", middleware.WithIdentity(adminHandler.Stats))
			r.Get("/admin/leads", middleware.WithIdentity(adminHandler.ListLeads))
			r.Get("/admin/recent-leads", middleware.WithIdentity(adminHandler.RecentLeads))
			r.Put("/admin/leads/{id}/status", middleware.WithIdentity(adminHandler.UpdateLeadStatus))

			r.Get("/admin/campaigns", campaignHandler.List)
			r.Post("/admin/campaigns", campaignHandler.Create)
			r.Put("/admin/campaigns/{id}", campaignHandler.Update)
			r.Delete("/admin/campaigns/{id}", campaignHandler.Delete)

			r.Get("/admin/form-structure", formFieldHandler.Structure)
			r.Post("/admin/form-fields", formFieldHandler.Create)
			r.Put("/admin/form-fields/{fieldName}", formFieldHandler.Update)
			r.Delete("/admin/form-fields/{fieldName}", formFieldHandler.Delete)
		})
	})

	return r
}
