package handler

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/hitoshi/nogiblog/internal/blog"
	"github.com/hitoshi/nogiblog/internal/download"
	"github.com/hitoshi/nogiblog/internal/loader"
	"github.com/hitoshi/nogiblog/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// --- モック定義 ---

// mockBlogService はBlogServiceInterfaceのモック実装。
type mockBlogService struct {
	static          []model.BlogPost
	fetchBlogsFn    func(ctx context.Context, opts blog.FetchOptions) ([]model.BlogPost, error)
	fetchBlogByIDFn func(ctx context.Context, id string) (model.BlogPost, bool, error)
	searchBlogsFn   func(ctx context.Context, query string) ([]model.BlogPost, error)
}

func (m *mockBlogService) StaticBlogs() []model.BlogPost {
	return append([]model.BlogPost{}, m.static...)
}

func (m *mockBlogService) FetchBlogs(ctx context.Context, opts blog.FetchOptions) ([]model.BlogPost, error) {
	if m.fetchBlogsFn != nil {
		return m.fetchBlogsFn(ctx, opts)
	}
	return []model.BlogPost{}, nil
}

func (m *mockBlogService) FetchBlogByID(ctx context.Context, id string) (model.BlogPost, bool, error) {
	if m.fetchBlogByIDFn != nil {
		return m.fetchBlogByIDFn(ctx, id)
	}
	return model.BlogPost{ID: id, Title: "テスト記事", Images: []string{"https://img.example.com/1.jpg"}}, true, nil
}

func (m *mockBlogService) SearchBlogs(ctx context.Context, query string) ([]model.BlogPost, error) {
	if m.searchBlogsFn != nil {
		return m.searchBlogsFn(ctx, query)
	}
	return []model.BlogPost{}, nil
}

// mockMemberService はMemberServiceInterfaceのモック実装。
type mockMemberService struct {
	static              []model.Member
	fetchMembersFn      func(ctx context.Context) ([]model.Member, error)
	fetchMemberByCodeFn func(ctx context.Context, code string) (model.Member, bool, error)
	fetchGenerationsFn  func(ctx context.Context) ([]string, error)
}

func (m *mockMemberService) FetchMembers(ctx context.Context) ([]model.Member, error) {
	if m.fetchMembersFn != nil {
		return m.fetchMembersFn(ctx)
	}
	return []model.Member{}, nil
}

func (m *mockMemberService) StaticMembers() []model.Member {
	return append([]model.Member{}, m.static...)
}

func (m *mockMemberService) FetchActiveMembers(ctx context.Context) ([]model.Member, error) {
	all, err := m.FetchMembers(ctx)
	if err != nil {
		return nil, err
	}
	active := []model.Member{}
	for _, mem := range all {
		if !mem.IsGraduated {
			active = append(active, mem)
		}
	}
	return active, nil
}

func (m *mockMemberService) FetchMemberByCode(ctx context.Context, code string) (model.Member, bool, error) {
	if m.fetchMemberByCodeFn != nil {
		return m.fetchMemberByCodeFn(ctx, code)
	}
	return model.Member{Code: code, Name: "テストメンバー"}, true, nil
}

func (m *mockMemberService) FetchGenerations(ctx context.Context) ([]string, error) {
	if m.fetchGenerationsFn != nil {
		return m.fetchGenerationsFn(ctx)
	}
	return []string{}, nil
}

// mockDataCache はDataCacheInterfaceのモック実装。
type mockDataCache struct {
	fetchFn    func(ctx context.Context) error
	refreshFn  func(ctx context.Context) error
	snapshotFn func() loader.DataSnapshot
}

func (m *mockDataCache) Fetch(ctx context.Context) error {
	if m.fetchFn != nil {
		return m.fetchFn(ctx)
	}
	return nil
}

func (m *mockDataCache) Refresh(ctx context.Context) error {
	if m.refreshFn != nil {
		return m.refreshFn(ctx)
	}
	return nil
}

func (m *mockDataCache) Snapshot() loader.DataSnapshot {
	if m.snapshotFn != nil {
		return m.snapshotFn()
	}
	return loader.DataSnapshot{Blogs: []model.BlogPost{}, Members: []model.Member{}, Generations: []string{}}
}

// mockCommentEngine はCommentEngineInterfaceのモック実装。
type mockCommentEngine struct {
	checkFn   func(ctx context.Context, postIDs []string, username string) (model.CommentResult, error)
	refreshFn func(ctx context.Context, postIDs []string, username string) (model.CommentResult, error)
	cachedFn  func(ctx context.Context, username string) model.CommentResult
	clearFn   func(ctx context.Context) error
}

func (m *mockCommentEngine) CheckCommentsOnPosts(ctx context.Context, postIDs []string, username string) (model.CommentResult, error) {
	if m.checkFn != nil {
		return m.checkFn(ctx, postIDs, username)
	}
	return model.CommentResult{PostIDs: []string{}, Comments: []model.UserComment{}}, nil
}

func (m *mockCommentEngine) RefreshCommentCheck(ctx context.Context, postIDs []string, username string) (model.CommentResult, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, postIDs, username)
	}
	return model.CommentResult{PostIDs: []string{}, Comments: []model.UserComment{}}, nil
}

func (m *mockCommentEngine) CachedResults(ctx context.Context, username string) model.CommentResult {
	if m.cachedFn != nil {
		return m.cachedFn(ctx, username)
	}
	return model.CommentResult{PostIDs: []string{}, Comments: []model.UserComment{}}
}

func (m *mockCommentEngine) ClearCache(ctx context.Context) error {
	if m.clearFn != nil {
		return m.clearFn(ctx)
	}
	return nil
}

// mockPreferenceService はPreferenceServiceInterfaceのモック実装。
type mockPreferenceService struct {
	prefs            model.UserPreferences
	saveFn           func(ctx context.Context, prefs model.UserPreferences) (model.UserPreferences, error)
	history          []model.CommentRecord
	addFn            func(ctx context.Context, postID, postTitle, memberName, note string) (model.CommentRecord, error)
	removeFn         func(ctx context.Context, postID string) error
	toggleFn         func(ctx context.Context, memberCode string) (model.UserPreferences, error)
	clearHistoryFn   func(ctx context.Context) error
	commentedPostIDs map[string]bool
}

func (m *mockPreferenceService) Preferences(ctx context.Context) model.UserPreferences {
	return m.prefs
}

func (m *mockPreferenceService) SavePreferences(ctx context.Context, prefs model.UserPreferences) (model.UserPreferences, error) {
	if m.saveFn != nil {
		return m.saveFn(ctx, prefs)
	}
	m.prefs = prefs
	return prefs, nil
}

func (m *mockPreferenceService) ToggleFavorite(ctx context.Context, memberCode string) (model.UserPreferences, error) {
	if m.toggleFn != nil {
		return m.toggleFn(ctx, memberCode)
	}
	m.prefs.FavoriteMembers = append(m.prefs.FavoriteMembers, memberCode)
	return m.prefs, nil
}

func (m *mockPreferenceService) CommentHistory(ctx context.Context) []model.CommentRecord {
	if m.history == nil {
		return []model.CommentRecord{}
	}
	return m.history
}

func (m *mockPreferenceService) AddCommentRecord(ctx context.Context, postID, postTitle, memberName, note string) (model.CommentRecord, error) {
	if m.addFn != nil {
		return m.addFn(ctx, postID, postTitle, memberName, note)
	}
	return model.CommentRecord{PostID: postID, PostTitle: postTitle, MemberName: memberName, Note: note}, nil
}

func (m *mockPreferenceService) RemoveCommentRecord(ctx context.Context, postID string) error {
	if m.removeFn != nil {
		return m.removeFn(ctx, postID)
	}
	return nil
}

func (m *mockPreferenceService) HasCommented(ctx context.Context, postID string) bool {
	return m.commentedPostIDs[postID]
}

func (m *mockPreferenceService) ClearCommentHistory(ctx context.Context) error {
	if m.clearHistoryFn != nil {
		return m.clearHistoryFn(ctx)
	}
	m.history = nil
	return nil
}

// mockImagePipeline はImagePipelineInterfaceのモック実装。
type mockImagePipeline struct {
	downloadFn func(ctx context.Context, urls []string, zipFilename string, saver download.ArchiveSaver, onProgress download.ProgressFunc) download.Result
	shareFn    func(ctx context.Context, urls []string, title string, sharer download.Sharer, onProgress download.ProgressFunc) download.ShareResult
}

func (m *mockImagePipeline) DownloadAllImages(ctx context.Context, urls []string, zipFilename string, saver download.ArchiveSaver, onProgress download.ProgressFunc) download.Result {
	if m.downloadFn != nil {
		return m.downloadFn(ctx, urls, zipFilename, saver, onProgress)
	}
	return download.Result{}
}

func (m *mockImagePipeline) ShareImages(ctx context.Context, urls []string, title string, sharer download.Sharer, onProgress download.ProgressFunc) download.ShareResult {
	if m.shareFn != nil {
		return m.shareFn(ctx, urls, title, sharer, onProgress)
	}
	return download.ShareResult{}
}

// mockJobManager はJobManagerInterfaceのモック実装。
type mockJobManager struct {
	startFn     func(ctx context.Context, urls []string, zipFilename string) download.JobStatus
	statusFn    func(id string) (download.JobStatus, bool)
	subscribeFn func(id string) (<-chan download.JobStatus, func(), bool)
	archiveFn   func(id string) (string, []byte, error)
}

func (m *mockJobManager) Start(ctx context.Context, urls []string, zipFilename string) download.JobStatus {
	if m.startFn != nil {
		return m.startFn(ctx, urls, zipFilename)
	}
	return download.JobStatus{ID: "job-1", State: download.JobRunning, ZipFilename: zipFilename}
}

func (m *mockJobManager) Status(id string) (download.JobStatus, bool) {
	if m.statusFn != nil {
		return m.statusFn(id)
	}
	return download.JobStatus{}, false
}

func (m *mockJobManager) Subscribe(id string) (<-chan download.JobStatus, func(), bool) {
	if m.subscribeFn != nil {
		return m.subscribeFn(id)
	}
	return nil, func() {}, false
}

func (m *mockJobManager) Archive(id string) (string, []byte, error) {
	if m.archiveFn != nil {
		return m.archiveFn(id)
	}
	return "", nil, download.ErrJobNotFound
}
