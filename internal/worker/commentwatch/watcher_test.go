package commentwatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/nogiblog/internal/model"
)

type mockPrefs struct {
	prefs model.UserPreferences
}

func (m *mockPrefs) Preferences(ctx context.Context) model.UserPreferences {
	return m.prefs
}

type mockBlogs struct {
	fetchFn func(ctx context.Context, memberCode string, count int) ([]model.BlogPost, error)
}

func (m *mockBlogs) FetchBlogsByMember(ctx context.Context, memberCode string, count int) ([]model.BlogPost, error) {
	return m.fetchFn(ctx, memberCode, count)
}

type mockRefresher struct {
	calls    int
	postIDs  []string
	username string
	err      error
}

func (m *mockRefresher) RefreshCommentCheck(ctx context.Context, postIDs []string, username string) (model.CommentResult, error) {
	m.calls++
	m.postIDs = postIDs
	m.username = username
	if m.err != nil {
		return model.CommentResult{}, m.err
	}
	return model.CommentResult{PostIDs: postIDs[:1], Comments: []model.UserComment{}}, nil
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// postsFor はメンバーごとに count 件の記事を返す。member "dup" は "shared" を含む。
func postsFor(ctx context.Context, memberCode string, count int) ([]model.BlogPost, error) {
	posts := make([]model.BlogPost, 0, count+2)
	for i := 0; i < count+2; i++ {
		posts = append(posts, model.BlogPost{ID: fmt.Sprintf("%s-%d", memberCode, i), MemberID: memberCode})
	}
	if memberCode == "dup" {
		posts[0].ID = "shared"
	}
	return posts, nil
}

func TestRunOnce_RefreshesLatestPostsOfFavorites(t *testing.T) {
	var buf bytes.Buffer
	prefs := &mockPrefs{prefs: model.UserPreferences{Username: " me ", FavoriteMembers: []string{"a", "b"}}}
	var counts []int
	blogs := &mockBlogs{fetchFn: func(ctx context.Context, code string, count int) ([]model.BlogPost, error) {
		counts = append(counts, count)
		return postsFor(ctx, code, count)
	}}
	refresher := &mockRefresher{}
	w := NewWatcher(prefs, blogs, refresher, newTestLogger(&buf), Config{PostsPerMember: 2})

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce がエラーを返した: %v", err)
	}

	if !reflect.DeepEqual(counts, []int{2, 2}) {
		t.Errorf("取得件数 = %v", counts)
	}
	want := []string{"a-0", "a-1", "b-0", "b-1"}
	if !reflect.DeepEqual(refresher.postIDs, want) {
		t.Errorf("再確認対象 = %v, want %v", refresher.postIDs, want)
	}
	if refresher.username != "me" {
		t.Errorf("username = %q", refresher.username)
	}
	if !strings.Contains(buf.String(), "コメント監視サイクルが完了しました") {
		t.Errorf("完了ログが無い: %s", buf.String())
	}
}

func TestRunOnce_DeduplicatesPosts(t *testing.T) {
	var buf bytes.Buffer
	prefs := &mockPrefs{prefs: model.UserPreferences{Username: "me", FavoriteMembers: []string{"dup", "dup"}}}
	refresher := &mockRefresher{}
	w := NewWatcher(prefs, &mockBlogs{fetchFn: postsFor}, refresher, newTestLogger(&buf), Config{PostsPerMember: 1})

	w.RunOnce(context.Background())

	if !reflect.DeepEqual(refresher.postIDs, []string{"shared"}) {
		t.Errorf("再確認対象 = %v", refresher.postIDs)
	}
}

func TestRunOnce_IgnoresOtherMembersPosts(t *testing.T) {
	var buf bytes.Buffer
	prefs := &mockPrefs{prefs: model.UserPreferences{Username: "me", FavoriteMembers: []string{"a"}}}
	// 同梱データへのフォールバックでは全メンバーの記事が返る
	blogs := &mockBlogs{fetchFn: func(ctx context.Context, code string, count int) ([]model.BlogPost, error) {
		return []model.BlogPost{
			{ID: "b-0", MemberID: "b"},
			{ID: "a-0", MemberID: "a"},
			{ID: "c-0", MemberID: "c"},
			{ID: "a-1", MemberID: "a"},
			{ID: "a-2", MemberID: "a"},
		}, nil
	}}
	refresher := &mockRefresher{}
	w := NewWatcher(prefs, blogs, refresher, newTestLogger(&buf), Config{PostsPerMember: 2})

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce がエラーを返した: %v", err)
	}
	if want := []string{"a-0", "a-1"}; !reflect.DeepEqual(refresher.postIDs, want) {
		t.Errorf("再確認対象 = %v, want %v", refresher.postIDs, want)
	}
}

func TestRunOnce_SkipsWithoutPreferences(t *testing.T) {
	tests := []struct {
		name  string
		prefs model.UserPreferences
	}{
		{"ユーザー名なし", model.UserPreferences{Username: "  ", FavoriteMembers: []string{"a"}}},
		{"お気に入りなし", model.UserPreferences{Username: "me"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			blogs := &mockBlogs{fetchFn: func(ctx context.Context, code string, count int) ([]model.BlogPost, error) {
				t.Error("記事が取得された")
				return nil, nil
			}}
			refresher := &mockRefresher{}
			w := NewWatcher(&mockPrefs{prefs: tt.prefs}, blogs, refresher, newTestLogger(&buf), DefaultConfig())

			if err := w.RunOnce(context.Background()); err != nil {
				t.Errorf("RunOnce がエラーを返した: %v", err)
			}
			if refresher.calls != 0 {
				t.Error("再確認が実行された")
			}
		})
	}
}

func TestRunOnce_NoPosts(t *testing.T) {
	var buf bytes.Buffer
	blogs := &mockBlogs{fetchFn: func(ctx context.Context, code string, count int) ([]model.BlogPost, error) {
		return []model.BlogPost{}, nil
	}}
	refresher := &mockRefresher{}
	w := NewWatcher(&mockPrefs{prefs: model.UserPreferences{Username: "me", FavoriteMembers: []string{"a"}}}, blogs, refresher, newTestLogger(&buf), DefaultConfig())

	if err := w.RunOnce(context.Background()); err != nil {
		t.Errorf("RunOnce がエラーを返した: %v", err)
	}
	if refresher.calls != 0 {
		t.Error("対象なしで再確認が実行された")
	}
}

func TestRunOnce_PropagatesRefreshError(t *testing.T) {
	var buf bytes.Buffer
	refresher := &mockRefresher{err: context.Canceled}
	w := NewWatcher(&mockPrefs{prefs: model.UserPreferences{Username: "me", FavoriteMembers: []string{"a"}}}, &mockBlogs{fetchFn: postsFor}, refresher, newTestLogger(&buf), DefaultConfig())

	if err := w.RunOnce(context.Background()); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNewWatcher_Defaults(t *testing.T) {
	var buf bytes.Buffer
	w := NewWatcher(&mockPrefs{}, &mockBlogs{}, &mockRefresher{}, newTestLogger(&buf), Config{})
	if w.config != DefaultConfig() {
		t.Errorf("config = %+v", w.config)
	}
}

func TestStart_RunsImmediatelyAndStops(t *testing.T) {
	var buf bytes.Buffer
	refresher := &mockRefresher{}
	w := NewWatcher(&mockPrefs{prefs: model.UserPreferences{Username: "me", FavoriteMembers: []string{"a"}}}, &mockBlogs{fetchFn: postsFor}, refresher, newTestLogger(&buf), Config{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start がキャンセル後に停止しなかった")
	}
	if refresher.calls != 1 {
		t.Errorf("起動直後の実行回数 = %d, want 1", refresher.calls)
	}
}
