// Package member はメンバー情報のデータアクセスを提供する。
package member

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/nogiblog/internal/jsonp"
	"github.com/hitoshi/nogiblog/internal/mapper"
	"github.com/hitoshi/nogiblog/internal/model"
	"github.com/hitoshi/nogiblog/internal/snapshot"
	"github.com/hitoshi/nogiblog/internal/upstream"
)

const (
	// listCount はメンバー一覧の取得件数。全メンバーが1ページに収まる。
	listCount = 100

	resourceName = "members"
)

// FallbackRecorder は同梱データへのフォールバックを記録するインターフェース。
type FallbackRecorder interface {
	RecordStaticFallback(resource string)
}

// Service はメンバー情報のデータアクセスサービス。
type Service struct {
	fetcher   jsonp.Fetcher
	endpoints upstream.Endpoints
	timeout   time.Duration
	logger    *slog.Logger
	metrics   FallbackRecorder

	staticOnce sync.Once
	static     []model.Member
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

// FetchMembers はライブAPIから全メンバーを取得する。
// 取得に失敗した場合は同梱スナップショットを返す。
// エラーを返すのは呼び出し元のコンテキストが終了した場合のみ。
func (s *Service) FetchMembers(ctx context.Context) ([]model.Member, error) {
	members, err := s.fetchLive(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Error("メンバーのライブ取得に失敗したため同梱データを返します",
			slog.String("error", err.Error()),
		)
		if s.metrics != nil {
			s.metrics.RecordStaticFallback(resourceName)
		}
		return s.StaticMembers(), nil
	}
	return members, nil
}

func (s *Service) fetchLive(ctx context.Context) ([]model.Member, error) {
	url, err := jsonp.BuildAPIURL(s.endpoints.MemberList, map[string]any{"rw": listCount})
	if err != nil {
		return nil, err
	}
	var resp upstream.MemberResponse
	if err := s.fetcher.Fetch(ctx, url, s.timeout, &resp); err != nil {
		return nil, err
	}
	return mapper.MemberEntries(s.endpoints.BaseURL, resp.Data), nil
}

// FetchActiveMembers は卒業していないメンバーを返す。
func (s *Service) FetchActiveMembers(ctx context.Context) ([]model.Member, error) {
	members, err := s.FetchMembers(ctx)
	if err != nil {
		return nil, err
	}
	return FilterMembers(members, false, ""), nil
}

// FetchMembersByGeneration は指定した期のメンバーを返す。卒業生も含む。
func (s *Service) FetchMembersByGeneration(ctx context.Context, generation string) ([]model.Member, error) {
	members, err := s.FetchMembers(ctx)
	if err != nil {
		return nil, err
	}
	return FilterMembers(members, true, generation), nil
}

// FetchMemberByCode はコードでメンバーを検索する。
func (s *Service) FetchMemberByCode(ctx context.Context, code string) (model.Member, bool, error) {
	members, err := s.FetchMembers(ctx)
	if err != nil {
		return model.Member{}, false, err
	}
	for _, m := range members {
		if m.Code == code {
			return m, true, nil
		}
	}
	return model.Member{}, false, nil
}

// FetchGenerations はメンバーの期を重複なし・空白除外・昇順で返す。
func (s *Service) FetchGenerations(ctx context.Context) ([]string, error) {
	members, err := s.FetchMembers(ctx)
	if err != nil {
		return nil, err
	}
	return Generations(members), nil
}

// StaticMembers は同梱スナップショットのメンバーの複製を返す。
// model.Memberは参照型のフィールドを持たないため、要素のコピーで足りる。
func (s *Service) StaticMembers() []model.Member {
	s.staticOnce.Do(func() {
		raw, err := snapshot.Members()
		if err != nil {
			s.logger.Error("同梱メンバーデータの読み込みに失敗しました",
				slog.String("error", err.Error()),
			)
			s.static = []model.Member{}
			return
		}
		s.static = mapper.SnapshotMembers(s.endpoints.BaseURL, raw)
	})
	out := make([]model.Member, len(s.static))
	copy(out, s.static)
	return out
}

// FilterMembers は卒業生の有無と期でメンバーを絞り込む。generationが空の場合は期で絞り込まない。
func FilterMembers(members []model.Member, includeGraduated bool, generation string) []model.Member {
	filtered := make([]model.Member, 0, len(members))
	for _, m := range members {
		if !includeGraduated && m.IsGraduated {
			continue
		}
		if generation != "" && m.Generation != generation {
			continue
		}
		filtered = append(filtered, m)
	}
	return filtered
}

// Generations はメンバーの期を重複なし・空白除外・昇順で返す。
func Generations(members []model.Member) []string {
	seen := make(map[string]bool)
	gens := []string{}
	for _, m := range members {
		if strings.TrimSpace(m.Generation) == "" || seen[m.Generation] {
			continue
		}
		seen[m.Generation] = true
		gens = append(gens, m.Generation)
	}
	sort.Strings(gens)
	return gens
}
