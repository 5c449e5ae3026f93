// Package blog はブログ記事のデータアクセスを提供する。
//
// ライブAPIは補助的な取得元として扱い、失敗時は同梱スナップショットを返す。
package blog

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hitoshi/nogiblog/internal/jsonp"
	"github.com/hitoshi/nogiblog/internal/mapper"
	"github.com/hitoshi/nogiblog/internal/model"
	"github.com/hitoshi/nogiblog/internal/snapshot"
	"github.com/hitoshi/nogiblog/internal/upstream"
)

const (
	// DefaultCount はFetchBlogsの既定取得件数。
	DefaultCount = 50
	// DefaultMemberCount はメンバー別・最新記事取得の既定件数。
	DefaultMemberCount = 20
	// lookupCount はID検索・全文検索で走査するライブ記事数。
	lookupCount = 100

	resourceName = "blogs"
)

// FallbackRecorder は同梱データへのフォールバックを記録するインターフェース。
type FallbackRecorder interface {
	RecordStaticFallback(resource string)
}

// FetchOptions はFetchBlogsのオプション。
type FetchOptions struct {
	// Count は取得件数。0以下の場合はDefaultCount。
	Count int
	// MemberCode は絞り込むメンバーコード。空の場合は全メンバー。
	MemberCode string
	// Page は0始まりのページ番号。
	Page int
}

// Service はブログ記事のデータアクセスサービス。
type Service struct {
	fetcher   jsonp.Fetcher
	endpoints upstream.Endpoints
	timeout   time.Duration
	logger    *slog.Logger
	metrics   FallbackRecorder

	staticOnce sync.Once
	static     []model.BlogPost
}

// NewService はServiceの新しいインスタンスを生成する。metricsはnilでもよい。
func NewService(
	fetcher jsonp.Fetcher,
	endpoints upstream.Endpoints,
	timeout time.Duration,
	logger *slog.Logger,
	metrics FallbackRecorder,
) *Service {
	return &Service{
		fetcher:   fetcher,
		endpoints: endpoints,
		timeout:   timeout,
		logger:    logger,
		metrics:   metrics,
	}
}

// FetchBlogs はライブAPIから記事一覧を取得する。
// 取得に失敗した場合は同梱スナップショットを返す。
// エラーを返すのは呼び出し元のコンテキストが終了した場合のみ。
func (s *Service) FetchBlogs(ctx context.Context, opts FetchOptions) ([]model.BlogPost, error) {
	count := opts.Count
	if count <= 0 {
		count = DefaultCount
	}

	params := map[string]any{
		"rw": count,
		"st": opts.Page * count,
	}
	if opts.MemberCode != "" {
		params["ct"] = opts.MemberCode
	}

	posts, err := s.fetchLive(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Error("ブログ記事のライブ取得に失敗したため同梱データを返します",
			slog.String("member_code", opts.MemberCode),
			slog.Int("page", opts.Page),
			slog.String("error", err.Error()),
		)
		if s.metrics != nil {
			s.metrics.RecordStaticFallback(resourceName)
		}
		return s.StaticBlogs(), nil
	}
	return posts, nil
}

// fetchLive は1回のJSONP呼び出しで記事一覧を取得する。
func (s *Service) fetchLive(ctx context.Context, params map[string]any) ([]model.BlogPost, error) {
	url, err := jsonp.BuildAPIURL(s.endpoints.BlogList, params)
	if err != nil {
		return nil, err
	}
	var resp upstream.BlogResponse
	if err := s.fetcher.Fetch(ctx, url, s.timeout, &resp); err != nil {
		return nil, err
	}
	return mapper.BlogEntries(s.endpoints.BaseURL, resp.Data), nil
}

// FetchBlogsByMember はメンバーの記事を取得する。countが0以下の場合はDefaultMemberCount。
func (s *Service) FetchBlogsByMember(ctx context.Context, memberCode string, count int) ([]model.BlogPost, error) {
	if count <= 0 {
		count = DefaultMemberCount
	}
	return s.FetchBlogs(ctx, FetchOptions{Count: count, MemberCode: memberCode})
}

// FetchLatestBlogs は全メンバーの最新記事を取得する。
func (s *Service) FetchLatestBlogs(ctx context.Context, count int) ([]model.BlogPost, error) {
	if count <= 0 {
		count = DefaultMemberCount
	}
	return s.FetchBlogs(ctx, FetchOptions{Count: count})
}

// FetchBlogByID はIDで記事を検索する。
// APIにID指定の取得が無いため、同梱データを先に探し、無ければ最新100件から探す。
func (s *Service) FetchBlogByID(ctx context.Context, id string) (model.BlogPost, bool, error) {
	for _, b := range s.StaticBlogs() {
		if b.ID == id {
			return b, true, nil
		}
	}

	posts, err := s.FetchBlogs(ctx, FetchOptions{Count: lookupCount})
	if err != nil {
		return model.BlogPost{}, false, err
	}
	for _, b := range posts {
		if b.ID == id {
			return b, true, nil
		}
	}
	return model.BlogPost{}, false, nil
}

// StaticBlogs は同梱スナップショットの記事の複製を返す。
func (s *Service) StaticBlogs() []model.BlogPost {
	s.staticOnce.Do(func() {
		raw, err := snapshot.Blogs()
		if err != nil {
			s.logger.Error("同梱ブログデータの読み込みに失敗しました",
				slog.String("error", err.Error()),
			)
			s.static = []model.BlogPost{}
			return
		}
		s.static = mapper.SnapshotBlogs(s.endpoints.BaseURL, raw)
	})
	out := make([]model.BlogPost, len(s.static))
	for i, b := range s.static {
		b.Images = append([]string(nil), b.Images...)
		out[i] = b
	}
	return out
}

// SearchBlogs は最新100件からタイトルまたは本文に検索語を含む記事を返す。
// 大文字小文字は区別せず、本文はHTMLタグを除いたテキストで照合する。
func (s *Service) SearchBlogs(ctx context.Context, query string) ([]model.BlogPost, error) {
	posts, err := s.FetchBlogs(ctx, FetchOptions{Count: lookupCount})
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return posts, nil
	}

	matched := []model.BlogPost{}
	for _, b := range posts {
		if strings.Contains(strings.ToLower(b.Title), q) ||
			strings.Contains(strings.ToLower(PlainText(b.Content)), q) {
			matched = append(matched, b)
		}
	}
	return matched, nil
}

// PlainText は本文HTMLからテキストのみを取り出す。解析できない場合は元の文字列を返す。
func PlainText(content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return content
	}
	return doc.Text()
}
