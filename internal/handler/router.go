package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/nogiblog/internal/middleware"
)

// HealthChecker はストレージの疎通確認。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// HealthChecker がnilの場合はストレージ確認を行わない（memoryドライバー）。
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 公式サイトのURL。記事リンクからコメント用URLを組み立てる。
	SiteBaseURL string

	BlogService       BlogServiceInterface
	MemberService     MemberServiceInterface
	DataCache         DataCacheInterface
	CommentEngine     CommentEngineInterface
	PreferenceService PreferenceServiceInterface
	ImagePipeline     ImagePipelineInterface
	JobManager        JobManagerInterface

	// JobContext はダウンロードジョブの実行コンテキスト。
	JobContext context.Context
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Logging → Recovery → SecurityHeaders → CORS → RateLimit(General)
//
// Recoveryの返す500をリクエストログに残すため、LoggingをRecoveryの外側に置く。
// /health と /metrics はレート制限の対象外。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	blogHandler := NewBlogHandler(deps.BlogService, deps.PreferenceService, deps.SiteBaseURL, logger)
	memberHandler := NewMemberHandler(deps.MemberService, deps.PreferenceService, logger)
	dataHandler := NewDataHandler(deps.DataCache, logger)
	commentHandler := NewCommentHandler(deps.CommentEngine, deps.PreferenceService, logger)
	prefHandler := NewPreferenceHandler(deps.PreferenceService, logger)
	downloadHandler := NewDownloadHandler(deps.BlogService, deps.ImagePipeline, deps.JobManager, DownloadHandlerConfig{
		JobContext:    deps.JobContext,
		AllowedOrigin: deps.CORSAllowedOrigin,
	}, logger)

	// --- レート制限なし ---
	r.Get("/health", newHealthHandler(deps.HealthChecker, logger))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- API ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())
		heavy := deps.RateLimiter.HeavyMiddleware()

		r.Route("/api/blogs", func(r chi.Router) {
			r.Get("/", blogHandler.ListBlogs)
			r.Get("/search", blogHandler.SearchBlogs)
			r.Get("/{id}", blogHandler.GetBlog)
			r.With(heavy).Post("/{id}/images", downloadHandler.BlogImages)
		})

		r.Route("/api/members", func(r chi.Router) {
			r.Get("/", memberHandler.ListMembers)
			r.Get("/{code}", memberHandler.GetMember)
		})
		r.Get("/api/generations", memberHandler.ListGenerations)

		r.Get("/api/data", dataHandler.GetData)
		r.Post("/api/data/refresh", dataHandler.RefreshData)

		r.Route("/api/comments", func(r chi.Router) {
			r.With(heavy).Post("/check", commentHandler.CheckComments)
			r.With(heavy).Post("/refresh", commentHandler.RefreshComments)
			r.Get("/cached", commentHandler.CachedResults)
			r.Delete("/cache", commentHandler.ClearCache)
		})

		r.Get("/api/preferences", prefHandler.GetPreferences)
		r.Put("/api/preferences", prefHandler.UpdatePreferences)
		r.Post("/api/preferences/favorites/{code}", prefHandler.ToggleFavorite)

		r.Route("/api/comment-records", func(r chi.Router) {
			r.Get("/", prefHandler.ListCommentRecords)
			r.Post("/", prefHandler.AddCommentRecord)
			r.Delete("/", prefHandler.ClearCommentRecords)
			r.Delete("/{postId}", prefHandler.RemoveCommentRecord)
		})

		r.Route("/api/downloads", func(r chi.Router) {
			r.With(heavy).Post("/", downloadHandler.StartDownload)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", downloadHandler.GetDownload)
				r.Get("/ws", downloadHandler.StreamDownload)
				r.Get("/archive", downloadHandler.GetArchive)
			})
		})
	})

	return r
}

// healthResponse はヘルスチェックのレスポンス。
type healthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
}

// newHealthHandler は /health のハンドラーを返す。ストレージに接続できない場合は503。
func newHealthHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Storage: "memory"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := checker.PingContext(ctx); err != nil {
			logger.Error("ヘルスチェックでストレージに接続できません", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Storage: "error"})
			return
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Storage: "ok"})
	}
}
