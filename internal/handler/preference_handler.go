package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/nogiblog/internal/model"
)

// PreferenceServiceInterface はユーザー設定とコメント記録のサービス。
type PreferenceServiceInterface interface {
	Preferences(ctx context.Context) model.UserPreferences
	SavePreferences(ctx context.Context, prefs model.UserPreferences) (model.UserPreferences, error)
	ToggleFavorite(ctx context.Context, memberCode string) (model.UserPreferences, error)
	CommentHistory(ctx context.Context) []model.CommentRecord
	AddCommentRecord(ctx context.Context, postID, postTitle, memberName, note string) (model.CommentRecord, error)
	RemoveCommentRecord(ctx context.Context, postID string) error
	HasCommented(ctx context.Context, postID string) bool
	ClearCommentHistory(ctx context.Context) error
}

// PreferenceHandler はユーザー設定とコメント記録のHTTPハンドラー。
type PreferenceHandler struct {
	service PreferenceServiceInterface
	logger  *slog.Logger
}

// NewPreferenceHandler はPreferenceHandlerを生成する。
func NewPreferenceHandler(service PreferenceServiceInterface, logger *slog.Logger) *PreferenceHandler {
	return &PreferenceHandler{service: service, logger: logger}
}

// commentRecordRequest はコメント記録の追加リクエスト。
type commentRecordRequest struct {
	PostID     string `json:"post_id"`
	PostTitle  string `json:"post_title"`
	MemberName string `json:"member_name"`
	Note       string `json:"note"`
}

type commentRecordsResponse struct {
	Records []model.CommentRecord `json:"records"`
	Count   int                   `json:"count"`
}

// GetPreferences はユーザー設定を返す。
// GET /api/preferences
func (h *PreferenceHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Preferences(r.Context()))
}

// UpdatePreferences はユーザー設定を保存する。
// PUT /api/preferences
func (h *PreferenceHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var prefs model.UserPreferences
	if !decodeJSONBody(w, r, &prefs) {
		return
	}
	if prefs.Theme != "" && prefs.Theme != model.ThemeLight && prefs.Theme != model.ThemeDark {
		writeAPIErrorResponse(w, model.NewInvalidRequestError("themeはlightまたはdarkで指定してください"))
		return
	}

	saved, err := h.service.SavePreferences(r.Context(), prefs)
	if err != nil {
		h.logger.Error("ユーザー設定の保存に失敗しました", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, model.NewStorageFailedError())
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// ToggleFavorite はメンバーのお気に入り登録を切り替える。
// POST /api/preferences/favorites/{code}
func (h *PreferenceHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		writeAPIErrorResponse(w, model.NewInvalidRequestError("メンバーコードを指定してください"))
		return
	}

	prefs, err := h.service.ToggleFavorite(r.Context(), code)
	if err != nil {
		h.logger.Error("お気に入りの保存に失敗しました",
			slog.String("member_code", code),
			slog.String("error", err.Error()),
		)
		writeAPIErrorResponse(w, model.NewStorageFailedError())
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// ListCommentRecords はコメント記録を新しい順に返す。
// GET /api/comment-records
func (h *PreferenceHandler) ListCommentRecords(w http.ResponseWriter, r *http.Request) {
	records := h.service.CommentHistory(r.Context())
	writeJSON(w, http.StatusOK, commentRecordsResponse{Records: records, Count: len(records)})
}

// AddCommentRecord はコメント記録を追加する。同じ記事の記録は置き換える。
// POST /api/comment-records
func (h *PreferenceHandler) AddCommentRecord(w http.ResponseWriter, r *http.Request) {
	var req commentRecordRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	postID := strings.TrimSpace(req.PostID)
	if postID == "" {
		writeAPIErrorResponse(w, model.NewInvalidRequestError("post_idを指定してください"))
		return
	}

	status := http.StatusCreated
	if h.service.HasCommented(r.Context(), postID) {
		status = http.StatusOK
	}

	record, err := h.service.AddCommentRecord(r.Context(), postID, req.PostTitle, req.MemberName, req.Note)
	if err != nil {
		h.logger.Error("コメント記録の保存に失敗しました",
			slog.String("post_id", postID),
			slog.String("error", err.Error()),
		)
		writeAPIErrorResponse(w, model.NewStorageFailedError())
		return
	}
	writeJSON(w, status, record)
}

// RemoveCommentRecord はコメント記録を削除する。存在しない記事IDでも成功とする。
// DELETE /api/comment-records/{postId}
func (h *PreferenceHandler) RemoveCommentRecord(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postId")
	if err := h.service.RemoveCommentRecord(r.Context(), postID); err != nil {
		h.logger.Error("コメント記録の削除に失敗しました",
			slog.String("post_id", postID),
			slog.String("error", err.Error()),
		)
		writeAPIErrorResponse(w, model.NewStorageFailedError())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearCommentRecords はコメント記録をすべて削除する。
// DELETE /api/comment-records
func (h *PreferenceHandler) ClearCommentRecords(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearCommentHistory(r.Context()); err != nil {
		h.logger.Error("コメント記録の削除に失敗しました", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, model.NewStorageFailedError())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
