package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/nogiblog/internal/loader"
	"github.com/hitoshi/nogiblog/internal/model"
	"github.com/hitoshi/nogiblog/internal/preference"
)

// MemberServiceInterface はメンバーハンドラーが必要とするサービスインターフェース。
// 一覧と1件の取得はloader経由で読む。
type MemberServiceInterface interface {
	StaticMembers() []model.Member
	FetchMembers(ctx context.Context) ([]model.Member, error)
	FetchActiveMembers(ctx context.Context) ([]model.Member, error)
	FetchMemberByCode(ctx context.Context, code string) (model.Member, bool, error)
	FetchGenerations(ctx context.Context) ([]string, error)
}

// PreferenceReader はユーザー設定の参照。
type PreferenceReader interface {
	Preferences(ctx context.Context) model.UserPreferences
}

// MemberHandler はメンバー情報のHTTPハンドラー。
type MemberHandler struct {
	members MemberServiceInterface
	prefs   PreferenceReader
	logger  *slog.Logger
}

// NewMemberHandler はMemberHandlerを生成する。
func NewMemberHandler(members MemberServiceInterface, prefs PreferenceReader, logger *slog.Logger) *MemberHandler {
	return &MemberHandler{members: members, prefs: prefs, logger: logger}
}

type memberListResponse struct {
	Members     []model.Member `json:"members"`
	Count       int            `json:"count"`
	Generations []string       `json:"generations"`
}

type generationsResponse struct {
	Generations []string `json:"generations"`
}

// ListMembers はメンバー一覧を返す。
// GET /api/members?include_graduated=&generation=&favorites=&static=
func (h *MemberHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	includeGraduated, err := parseBoolParam(q.Get("include_graduated"))
	if err != nil {
		writeAPIErrorResponse(w, model.NewInvalidRequestError("include_graduatedはtrueまたはfalseで指定してください"))
		return
	}
	favoritesOnly, err := parseBoolParam(q.Get("favorites"))
	if err != nil {
		writeAPIErrorResponse(w, model.NewInvalidRequestError("favoritesはtrueまたはfalseで指定してください"))
		return
	}

	staticOnly, err := parseBoolParam(q.Get("static"))
	if err != nil {
		writeAPIErrorResponse(w, model.NewInvalidRequestError("staticはtrueまたはfalseで指定してください"))
		return
	}

	l := loader.NewMemberLoader(h.members, loader.MemberLoaderOptions{
		IncludeGraduated: includeGraduated,
		Generation:       strings.TrimSpace(q.Get("generation")),
		StaticOnly:       staticOnly,
	})
	if err := l.Load(r.Context()); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	st := l.State()

	// favorites未指定の場合はユーザー設定のShowOnlyFavoritesに従う
	prefs := h.prefs.Preferences(r.Context())
	if q.Has("favorites") {
		prefs.ShowOnlyFavorites = favoritesOnly
	}

	filtered := preference.FilterFavorites(prefs, st.Members)
	writeJSON(w, http.StatusOK, memberListResponse{
		Members:     filtered,
		Count:       len(filtered),
		Generations: st.Generations,
	})
}

// GetMember はコードでメンバーを返す。
// GET /api/members/{code}
func (h *MemberHandler) GetMember(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	res := loader.NewMemberLoader(h.members, loader.MemberLoaderOptions{}).Member(r.Context(), code, nil)
	if res.Err != nil {
		if res.Member == nil || r.Context().Err() != nil {
			handleServiceError(w, r, h.logger, res.Err)
			return
		}
		// 同梱データに見つかっていればそれを返す
		h.logger.Warn("メンバーのライブ取得に失敗したため同梱データを返します",
			slog.String("member_code", code),
			slog.String("error", res.Err.Error()),
		)
	}
	if res.Member == nil {
		writeAPIErrorResponse(w, model.NewMemberNotFoundError(code))
		return
	}

	writeJSON(w, http.StatusOK, *res.Member)
}

// ListGenerations は期の一覧を返す。
// GET /api/generations
func (h *MemberHandler) ListGenerations(w http.ResponseWriter, r *http.Request) {
	gens, err := h.members.FetchGenerations(r.Context())
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, generationsResponse{Generations: gens})
}

// parseBoolParam は空文字をfalseとして真偽値を解析する。
func parseBoolParam(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}
