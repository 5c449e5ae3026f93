package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/nogiblog/internal/blog"
	"github.com/hitoshi/nogiblog/internal/loader"
	"github.com/hitoshi/nogiblog/internal/model"
	"github.com/hitoshi/nogiblog/internal/preference"
)

// maxBlogCount は一覧APIで指定できる最大件数。
const maxBlogCount = 100

// BlogServiceInterface はブログハンドラーが必要とするサービスインターフェース。
// 一覧と詳細はloader経由で読む。
type BlogServiceInterface interface {
	StaticBlogs() []model.BlogPost
	FetchBlogs(ctx context.Context, opts blog.FetchOptions) ([]model.BlogPost, error)
	FetchBlogByID(ctx context.Context, id string) (model.BlogPost, bool, error)
	SearchBlogs(ctx context.Context, query string) ([]model.BlogPost, error)
}

// CommentStatusReader は手動で記録したコメント履歴の参照。
type CommentStatusReader interface {
	HasCommented(ctx context.Context, postID string) bool
}

// BlogHandler はブログ記事のHTTPハンドラー。
type BlogHandler struct {
	blogs    BlogServiceInterface
	records  CommentStatusReader
	siteBase string
	logger   *slog.Logger
}

// NewBlogHandler はBlogHandlerを生成する。siteBaseは相対リンクの解決に使う公式サイトのURL。
func NewBlogHandler(blogs BlogServiceInterface, records CommentStatusReader, siteBase string, logger *slog.Logger) *BlogHandler {
	return &BlogHandler{
		blogs:    blogs,
		records:  records,
		siteBase: siteBase,
		logger:   logger,
	}
}

// blogListResponse は記事一覧のレスポンス。
type blogListResponse struct {
	Blogs   []model.BlogPost `json:"blogs"`
	Count   int              `json:"count"`
	Page    int              `json:"page"`
	HasMore bool             `json:"has_more"`
}

// blogDetailResponse は記事詳細のレスポンス。
type blogDetailResponse struct {
	Blog         model.BlogPost `json:"blog"`
	CommentURL   string         `json:"comment_url"`
	HasCommented bool           `json:"has_commented"`
}

// searchResponse は検索結果のレスポンス。
type searchResponse struct {
	Query string           `json:"query"`
	Blogs []model.BlogPost `json:"blogs"`
}

// ListBlogs は記事一覧を返す。
// GET /api/blogs?count=&page=&member=&static=
// 0ページ目はライブ取得が空なら同梱データを返す。static=trueならライブAPIを呼ばない。
func (h *BlogHandler) ListBlogs(w http.ResponseWriter, r *http.Request) {
	count, ok := queryInt(r, "count", blog.DefaultCount)
	if !ok {
		writeAPIErrorResponse(w, model.NewInvalidRequestError("countは0以上の整数で指定してください"))
		return
	}
	if count == 0 {
		count = blog.DefaultCount
	}
	if count > maxBlogCount {
		count = maxBlogCount
	}
	page, ok := queryInt(r, "page", 0)
	if !ok {
		writeAPIErrorResponse(w, model.NewInvalidRequestError("pageは0以上の整数で指定してください"))
		return
	}
	staticOnly, err := parseBoolParam(r.URL.Query().Get("static"))
	if err != nil {
		writeAPIErrorResponse(w, model.NewInvalidRequestError("staticはtrueまたはfalseで指定してください"))
		return
	}

	l := loader.NewBlogLoader(h.blogs, loader.BlogLoaderOptions{
		MemberCode:   strings.TrimSpace(r.URL.Query().Get("member")),
		InitialCount: count,
		StaticOnly:   staticOnly,
		StartPage:    page,
	})
	if err := l.Load(r.Context()); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	st := l.State()
	writeJSON(w, http.StatusOK, blogListResponse{
		Blogs:   st.Blogs,
		Count:   len(st.Blogs),
		Page:    st.Page,
		HasMore: st.HasMore,
	})
}

// SearchBlogs はタイトルと本文で記事を検索する。
// GET /api/blogs/search?q=
func (h *BlogHandler) SearchBlogs(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeAPIErrorResponse(w, model.NewInvalidRequestError("検索語を指定してください"))
		return
	}

	posts, err := h.blogs.SearchBlogs(r.Context(), q)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{Query: q, Blogs: posts})
}

// GetBlog は1記事を返す。
// GET /api/blogs/{id}
func (h *BlogHandler) GetBlog(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	st := loader.NewBlogPostLoader(h.blogs).Load(r.Context(), id)
	if st.Err != nil {
		handleServiceError(w, r, h.logger, st.Err)
		return
	}
	if !st.Found {
		writeAPIErrorResponse(w, model.NewBlogNotFoundError(id))
		return
	}
	post := *st.Blog

	writeJSON(w, http.StatusOK, blogDetailResponse{
		Blog:         post,
		CommentURL:   preference.BuildCommentURL(h.siteBase, post.Link),
		HasCommented: h.records.HasCommented(r.Context(), post.ID),
	})
}
