package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/chime/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// ヘルスチェック・メトリクス
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// エンゲージメント
	EngagementService EngagementServiceInterface
	Metrics           OperationRecorder
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RequestID → Logging → SecurityHeaders → CORS
//	  → /rpc/*: Identity → RateLimit(General) [→ RateLimit(Engagement)]
//
// /healthと/metricsは認証・レート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	h := NewEngagementHandler(deps.EngagementService, deps.Metrics)
	svc := deps.EngagementService

	r.Route("/rpc", func(r chi.Router) {
		r.Use(middleware.NewIdentityMiddleware(deps.TokenVerifier))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 閲覧・コメント数と参照系
		r.Post("/incrementPostView", h.IncrementPostView)
		r.Post("/incrementCommentCount", h.IncrementCommentCount)
		r.Post("/getEngagementState", h.GetEngagementState)
		r.Post("/isFollowing", h.IsFollowing)
		r.Post("/hasViewed", h.HasViewed)

		// トグル操作（書き込み専用レート制限を追加）
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.EngagementMiddleware())

			r.Post("/addLike", h.postToggle("addLike", svc.AddLike))
			r.Post("/removeLike", h.postToggle("removeLike", svc.RemoveLike))
			r.Post("/addDislike", h.postToggle("addDislike", svc.AddDislike))
			r.Post("/removeDislike", h.postToggle("removeDislike", svc.RemoveDislike))

			r.Post("/addLikeToComment", h.commentToggle("addLikeToComment", svc.AddLikeToComment))
			r.Post("/removeLikeFromComment", h.commentToggle("removeLikeFromComment", svc.RemoveLikeFromComment))
			r.Post("/addDislikeToComment", h.commentToggle("addDislikeToComment", svc.AddDislikeToComment))
			r.Post("/removeDislikeFromComment", h.commentToggle("removeDislikeFromComment", svc.RemoveDislikeFromComment))

			r.Post("/followUser", h.followToggle("followUser", svc.FollowUser))
			r.Post("/unfollowUser", h.followToggle("unfollowUser", svc.UnfollowUser))
		})
	})

	return r
}
