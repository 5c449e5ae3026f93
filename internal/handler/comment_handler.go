package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/nogiblog/internal/model"
)

// maxCheckPosts は1回のコメント確認で指定できる記事数の上限。
const maxCheckPosts = 200

// CommentEngineInterface はコメント検出エンジン。
type CommentEngineInterface interface {
	CheckCommentsOnPosts(ctx context.Context, postIDs []string, username string) (model.CommentResult, error)
	RefreshCommentCheck(ctx context.Context, postIDs []string, username string) (model.CommentResult, error)
	CachedResults(ctx context.Context, username string) model.CommentResult
	ClearCache(ctx context.Context) error
}

// CommentHandler はコメント検出のHTTPハンドラー。
type CommentHandler struct {
	engine CommentEngineInterface
	prefs  PreferenceReader
	logger *slog.Logger
}

// NewCommentHandler はCommentHandlerを生成する。
func NewCommentHandler(engine CommentEngineInterface, prefs PreferenceReader, logger *slog.Logger) *CommentHandler {
	return &CommentHandler{engine: engine, prefs: prefs, logger: logger}
}

// commentCheckRequest はコメント確認リクエストのボディ。
// usernameが空の場合はユーザー設定のユーザー名を使う。
type commentCheckRequest struct {
	PostIDs  []string `json:"post_ids"`
	Username string   `json:"username"`
}

// CheckComments はキャッシュを考慮してコメントを確認する。
// POST /api/comments/check
func (h *CommentHandler) CheckComments(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.engine.CheckCommentsOnPosts)
}

// RefreshComments は指定記事のコメントを強制的に確認し直す。
// POST /api/comments/refresh
func (h *CommentHandler) RefreshComments(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.engine.RefreshCommentCheck)
}

func (h *CommentHandler) run(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, postIDs []string, username string) (model.CommentResult, error),
) {
	var req commentCheckRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if len(req.PostIDs) > maxCheckPosts {
		writeAPIErrorResponse(w, model.NewInvalidRequestError("post_idsが多すぎます"))
		return
	}

	result, err := op(r.Context(), req.PostIDs, h.username(r, req.Username))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CachedResults はキャッシュ済みの結果を返す。
// GET /api/comments/cached?username=
func (h *CommentHandler) CachedResults(w http.ResponseWriter, r *http.Request) {
	username := h.username(r, r.URL.Query().Get("username"))
	writeJSON(w, http.StatusOK, h.engine.CachedResults(r.Context(), username))
}

// ClearCache はコメントキャッシュを削除する。
// DELETE /api/comments/cache
func (h *CommentHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ClearCache(r.Context()); err != nil {
		h.logger.Error("コメントキャッシュの削除に失敗しました", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, model.NewStorageFailedError())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CommentHandler) username(r *http.Request, requested string) string {
	if u := strings.TrimSpace(requested); u != "" {
		return u
	}
	return h.prefs.Preferences(r.Context()).Username
}
