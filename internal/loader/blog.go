// Package loader は同梱データとライブAPIを組み合わせた読み込み戦略を提供する。
//
// ローダーはまず同梱スナップショットを公開して即座に表示可能にし、
// その後ライブデータが得られれば差し替える。状態が変わるたびにリスナーへ通知する。
package loader

import (
	"context"
	"sync"

	"github.com/hitoshi/nogiblog/internal/blog"
	"github.com/hitoshi/nogiblog/internal/model"
)

// defaultInitialCount はBlogLoaderの1ページあたりの既定件数。
const defaultInitialCount = 20

// BlogSource はブログ記事の取得元。blog.Serviceが満たす。
type BlogSource interface {
	StaticBlogs() []model.BlogPost
	FetchBlogs(ctx context.Context, opts blog.FetchOptions) ([]model.BlogPost, error)
	FetchBlogByID(ctx context.Context, id string) (model.BlogPost, bool, error)
}

// BlogLoaderOptions はBlogLoaderのオプション。
type BlogLoaderOptions struct {
	// MemberCode は絞り込むメンバーコード。空の場合は全メンバー。
	MemberCode string
	// InitialCount は1ページあたりの件数（デフォルト: 20）。
	InitialCount int
	// StaticOnly がtrueの場合はライブAPIを呼ばない。
	StaticOnly bool
	// StartPage はLoadで読み込むページ。同梱データを先に公開するのは0ページ目だけ。
	StartPage int
}

// BlogState はBlogLoaderの状態のスナップショット。
type BlogState struct {
	Blogs   []model.BlogPost
	Loading bool
	Err     error
	HasMore bool
	Page    int
}

// BlogLoader は記事一覧のハイブリッド読み込みとページングを管理する。
type BlogLoader struct {
	source BlogSource
	opts   BlogLoaderOptions

	mu       sync.Mutex
	state    BlogState
	listener func(BlogState)
}

// NewBlogLoader はBlogLoaderの新しいインスタンスを生成する。
func NewBlogLoader(source BlogSource, opts BlogLoaderOptions) *BlogLoader {
	if opts.InitialCount <= 0 {
		opts.InitialCount = defaultInitialCount
	}
	return &BlogLoader{
		source: source,
		opts:   opts,
		state: BlogState{
			Blogs:   []model.BlogPost{},
			HasMore: true,
		},
	}
}

// OnChange は状態変化のリスナーを登録する。
func (l *BlogLoader) OnChange(fn func(BlogState)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listener = fn
}

// State は現在の状態のコピーを返す。
func (l *BlogLoader) State() BlogState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot()
}

func (l *BlogLoader) snapshot() BlogState {
	s := l.state
	s.Blogs = append([]model.BlogPost(nil), l.state.Blogs...)
	return s
}

// update はロックを取って状態を変更し、リスナーへ通知する。
func (l *BlogLoader) update(fn func(s *BlogState)) {
	l.mu.Lock()
	fn(&l.state)
	s := l.snapshot()
	listener := l.listener
	l.mu.Unlock()

	if listener != nil {
		listener(s)
	}
}

// Load は初回読み込みを行う。
// 0ページ目では同梱データ（メンバー指定時は絞り込み済み）を先に公開し、
// ライブデータが1件以上得られた場合に差し替える。
// StartPageが1以上なら同梱データは使わず、そのページだけを読み込む。
func (l *BlogLoader) Load(ctx context.Context) error {
	page := l.opts.StartPage
	if page < 0 {
		page = 0
	}

	static := []model.BlogPost{}
	if page == 0 {
		static = l.source.StaticBlogs()
		if l.opts.MemberCode != "" {
			static = filterByMember(static, l.opts.MemberCode)
		}
	}
	l.update(func(s *BlogState) {
		s.Loading = true
		s.Err = nil
		s.Blogs = static
		s.Page = page
	})

	if l.opts.StaticOnly {
		// 同梱データにページの続きは無い
		l.update(func(s *BlogState) {
			s.Loading = false
			s.HasMore = false
		})
		return nil
	}

	fresh, err := l.fetchPage(ctx, page)
	l.update(func(s *BlogState) {
		s.Loading = false
		if err != nil {
			s.Err = err
			return
		}
		if len(fresh) > 0 {
			s.Blogs = fresh
			s.HasMore = len(fresh) >= l.opts.InitialCount
		} else if page > 0 {
			s.HasMore = false
		}
	})
	return err
}

// LoadMore は次のページを読み込んで追加する。
// 読み込み中、または続きが無い場合は何もしない。
func (l *BlogLoader) LoadMore(ctx context.Context) error {
	l.mu.Lock()
	if l.state.Loading || !l.state.HasMore {
		l.mu.Unlock()
		return nil
	}
	next := l.state.Page + 1
	l.state.Loading = true
	s := l.snapshot()
	listener := l.listener
	l.mu.Unlock()

	if listener != nil {
		listener(s)
	}

	more, err := l.fetchPage(ctx, next)
	l.update(func(s *BlogState) {
		s.Loading = false
		if err != nil {
			s.Err = err
			return
		}
		if len(more) == 0 {
			s.HasMore = false
			return
		}
		s.Blogs = append(s.Blogs, more...)
		s.Page = next
		s.HasMore = len(more) >= l.opts.InitialCount
	})
	return err
}

// Refresh は1ページ目をライブAPIから読み直す。結果が空でも置き換える。
func (l *BlogLoader) Refresh(ctx context.Context) error {
	l.update(func(s *BlogState) {
		s.Page = 0
		s.HasMore = true
		s.Loading = true
		s.Err = nil
	})

	fresh, err := l.fetchPage(ctx, 0)
	l.update(func(s *BlogState) {
		s.Loading = false
		if err != nil {
			s.Err = err
			return
		}
		s.Blogs = fresh
		s.HasMore = len(fresh) >= l.opts.InitialCount
	})
	return err
}

func (l *BlogLoader) fetchPage(ctx context.Context, page int) ([]model.BlogPost, error) {
	return l.source.FetchBlogs(ctx, blog.FetchOptions{
		Count:      l.opts.InitialCount,
		MemberCode: l.opts.MemberCode,
		Page:       page,
	})
}

func filterByMember(posts []model.BlogPost, memberCode string) []model.BlogPost {
	filtered := make([]model.BlogPost, 0, len(posts))
	for _, p := range posts {
		if p.MemberID == memberCode {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// BlogPostState はBlogPostLoaderの結果。
type BlogPostState struct {
	Blog  *model.BlogPost
	Found bool
	Err   error
}

// BlogPostLoader は1記事の読み込みを行う。
type BlogPostLoader struct {
	source BlogSource
}

// NewBlogPostLoader はBlogPostLoaderの新しいインスタンスを生成する。
func NewBlogPostLoader(source BlogSource) *BlogPostLoader {
	return &BlogPostLoader{source: source}
}

// Load はIDで記事を読み込む。IDが空の場合は何も読み込まない。
func (l *BlogPostLoader) Load(ctx context.Context, id string) BlogPostState {
	if id == "" {
		return BlogPostState{}
	}
	post, ok, err := l.source.FetchBlogByID(ctx, id)
	if err != nil {
		return BlogPostState{Err: err}
	}
	if !ok {
		return BlogPostState{}
	}
	return BlogPostState{Blog: &post, Found: true}
}
