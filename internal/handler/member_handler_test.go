package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/nogiblog/internal/model"
)

func testMembers() []model.Member {
	return []model.Member{
		{Code: "1", Name: "A", Generation: "3期生"},
		{Code: "2", Name: "B", Generation: "4期生"},
		{Code: "3", Name: "C", Generation: "3期生", IsGraduated: true},
	}
}

func newTestMemberHandler(prefs *mockPreferenceService) *MemberHandler {
	var buf bytes.Buffer
	svc := &mockMemberService{
		fetchMembersFn: func(ctx context.Context) ([]model.Member, error) {
			return testMembers(), nil
		},
		fetchGenerationsFn: func(ctx context.Context) ([]string, error) {
			return []string{"3期生", "4期生"}, nil
		},
	}
	if prefs == nil {
		prefs = &mockPreferenceService{}
	}
	return NewMemberHandler(svc, prefs, newTestLogger(&buf))
}

func listMemberCodes(t *testing.T, h *MemberHandler, path string) []string {
	t.Helper()
	w := httptest.NewRecorder()
	h.ListMembers(w, httptest.NewRequest(http.MethodGet, path, nil))
	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("%s: status = %d", path, w.Result().StatusCode)
	}
	var body memberListResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	codes := make([]string, 0, len(body.Members))
	for _, m := range body.Members {
		codes = append(codes, m.Code)
	}
	return codes
}

func TestMemberHandler_ListMembers_Filters(t *testing.T) {
	h := newTestMemberHandler(nil)

	tests := []struct {
		path string
		want []string
	}{
		{"/api/members", []string{"1", "2"}},
		{"/api/members?include_graduated=true", []string{"1", "2", "3"}},
		{"/api/members?generation=3%E6%9C%9F%E7%94%9F", []string{"1"}},
		{"/api/members?include_graduated=true&generation=3%E6%9C%9F%E7%94%9F", []string{"1", "3"}},
	}
	for _, tt := range tests {
		got := listMemberCodes(t, h, tt.path)
		if len(got) != len(tt.want) {
			t.Errorf("%s: codes = %v, want %v", tt.path, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%s: codes = %v, want %v", tt.path, got, tt.want)
				break
			}
		}
	}
}

func TestMemberHandler_ListMembers_StaticFirst(t *testing.T) {
	var buf bytes.Buffer
	calls := 0
	svc := &mockMemberService{
		static: testMembers(),
		fetchMembersFn: func(ctx context.Context) ([]model.Member, error) {
			calls++
			return []model.Member{}, nil
		},
	}
	h := NewMemberHandler(svc, &mockPreferenceService{}, newTestLogger(&buf))

	// ライブが空なら同梱データを絞り込んで返す
	if got := listMemberCodes(t, h, "/api/members"); len(got) != 2 || got[0] != "1" || got[1] != "2" {
		t.Errorf("codes = %v, want [1 2]", got)
	}
	if calls != 1 {
		t.Errorf("ライブ取得回数 = %d, want 1", calls)
	}

	w := httptest.NewRecorder()
	h.ListMembers(w, httptest.NewRequest(http.MethodGet, "/api/members?static=true&include_graduated=true", nil))
	var body memberListResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Count != 3 || len(body.Generations) != 2 || body.Generations[0] != "3期生" {
		t.Errorf("body = %+v", body)
	}
	if calls != 1 {
		t.Errorf("static=true でライブ取得された: %d", calls)
	}
}

func TestMemberHandler_ListMembers_Favorites(t *testing.T) {
	prefs := &mockPreferenceService{prefs: model.UserPreferences{
		FavoriteMembers:   []string{"2"},
		ShowOnlyFavorites: true,
	}}
	h := newTestMemberHandler(prefs)

	// 設定のShowOnlyFavoritesに従う
	if got := listMemberCodes(t, h, "/api/members"); len(got) != 1 || got[0] != "2" {
		t.Errorf("codes = %v, want [2]", got)
	}
	// クエリで上書きできる
	if got := listMemberCodes(t, h, "/api/members?favorites=false"); len(got) != 2 {
		t.Errorf("favorites=false: codes = %v", got)
	}
}

func TestMemberHandler_ListMembers_InvalidBool(t *testing.T) {
	h := newTestMemberHandler(nil)

	w := httptest.NewRecorder()
	h.ListMembers(w, httptest.NewRequest(http.MethodGet, "/api/members?include_graduated=maybe", nil))

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestMemberHandler_GetMember(t *testing.T) {
	var buf bytes.Buffer
	svc := &mockMemberService{
		fetchMemberByCodeFn: func(ctx context.Context, code string) (model.Member, bool, error) {
			if code == "55401" {
				return model.Member{Code: code, Name: "テスト"}, true, nil
			}
			return model.Member{}, false, nil
		},
	}
	h := NewMemberHandler(svc, &mockPreferenceService{}, newTestLogger(&buf))

	w := httptest.NewRecorder()
	h.GetMember(w, withURLParams(httptest.NewRequest(http.MethodGet, "/api/members/55401", nil), "code", "55401"))
	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	w2 := httptest.NewRecorder()
	h.GetMember(w2, withURLParams(httptest.NewRequest(http.MethodGet, "/api/members/0", nil), "code", "0"))
	if w2.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w2.Result().StatusCode, http.StatusNotFound)
	}
	if body := decodeErrorBody(t, w2); body.Code != model.ErrCodeMemberNotFound {
		t.Errorf("code = %q", body.Code)
	}
}

func TestMemberHandler_GetMember_FallsBackToStatic(t *testing.T) {
	var buf bytes.Buffer
	svc := &mockMemberService{
		static: []model.Member{{Code: "55401", Name: "同梱"}},
		fetchMemberByCodeFn: func(ctx context.Context, code string) (model.Member, bool, error) {
			return model.Member{}, false, errors.New("upstream down")
		},
	}
	h := NewMemberHandler(svc, &mockPreferenceService{}, newTestLogger(&buf))

	w := httptest.NewRecorder()
	h.GetMember(w, withURLParams(httptest.NewRequest(http.MethodGet, "/api/members/55401", nil), "code", "55401"))
	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	var got model.Member
	json.NewDecoder(w.Result().Body).Decode(&got)
	if got.Name != "同梱" {
		t.Errorf("member = %+v", got)
	}

	// 同梱データにも無ければエラー
	w2 := httptest.NewRecorder()
	h.GetMember(w2, withURLParams(httptest.NewRequest(http.MethodGet, "/api/members/0", nil), "code", "0"))
	if w2.Result().StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w2.Result().StatusCode, http.StatusInternalServerError)
	}
}

func TestMemberHandler_ListGenerations(t *testing.T) {
	h := newTestMemberHandler(nil)

	w := httptest.NewRecorder()
	h.ListGenerations(w, httptest.NewRequest(http.MethodGet, "/api/generations", nil))

	var body generationsResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(body.Generations) != 2 || body.Generations[0] != "3期生" {
		t.Errorf("generations = %v", body.Generations)
	}
}
