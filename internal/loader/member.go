package loader

import (
	"context"
	"sync"

	"github.com/hitoshi/nogiblog/internal/member"
	"github.com/hitoshi/nogiblog/internal/model"
)

// MemberSource はメンバー情報の取得元。member.Serviceが満たす。
type MemberSource interface {
	StaticMembers() []model.Member
	FetchMembers(ctx context.Context) ([]model.Member, error)
	FetchActiveMembers(ctx context.Context) ([]model.Member, error)
	FetchGenerations(ctx context.Context) ([]string, error)
	FetchMemberByCode(ctx context.Context, code string) (model.Member, bool, error)
}

// MemberLoaderOptions はMemberLoaderのオプション。
type MemberLoaderOptions struct {
	IncludeGraduated bool
	// Generation は絞り込む期。空の場合は全期。
	Generation string
	StaticOnly bool
}

// MemberState はMemberLoaderの状態のスナップショット。
type MemberState struct {
	Members     []model.Member
	Generations []string
	Loading     bool
	Err         error
}

// MemberLoader はメンバー一覧と期一覧のハイブリッド読み込みを管理する。
type MemberLoader struct {
	source MemberSource
	opts   MemberLoaderOptions

	mu       sync.Mutex
	state    MemberState
	listener func(MemberState)
}

// NewMemberLoader はMemberLoaderの新しいインスタンスを生成する。
func NewMemberLoader(source MemberSource, opts MemberLoaderOptions) *MemberLoader {
	return &MemberLoader{
		source: source,
		opts:   opts,
		state: MemberState{
			Members:     []model.Member{},
			Generations: []string{},
		},
	}
}

// OnChange は状態変化のリスナーを登録する。
func (l *MemberLoader) OnChange(fn func(MemberState)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listener = fn
}

// State は現在の状態のコピーを返す。
func (l *MemberLoader) State() MemberState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot()
}

func (l *MemberLoader) snapshot() MemberState {
	s := l.state
	s.Members = append([]model.Member(nil), l.state.Members...)
	s.Generations = append([]string(nil), l.state.Generations...)
	return s
}

func (l *MemberLoader) update(fn func(s *MemberState)) {
	l.mu.Lock()
	fn(&l.state)
	s := l.snapshot()
	listener := l.listener
	l.mu.Unlock()

	if listener != nil {
		listener(s)
	}
}

// Load は同梱データを絞り込んで公開し、ライブデータが得られれば差し替える。
func (l *MemberLoader) Load(ctx context.Context) error {
	static := l.source.StaticMembers()
	l.update(func(s *MemberState) {
		s.Loading = true
		s.Err = nil
		s.Members = l.filter(static)
		s.Generations = member.Generations(static)
	})

	if l.opts.StaticOnly {
		l.update(func(s *MemberState) { s.Loading = false })
		return nil
	}

	fresh, gens, err := l.fetch(ctx)
	l.update(func(s *MemberState) {
		s.Loading = false
		if err != nil {
			s.Err = err
			return
		}
		if len(fresh) > 0 {
			s.Members = l.filter(fresh)
			s.Generations = gens
		}
	})
	return err
}

// Refresh はライブAPIから読み直す。結果が空でも置き換える。
func (l *MemberLoader) Refresh(ctx context.Context) error {
	l.update(func(s *MemberState) {
		s.Loading = true
		s.Err = nil
	})

	fresh, gens, err := l.fetch(ctx)
	l.update(func(s *MemberState) {
		s.Loading = false
		if err != nil {
			s.Err = err
			return
		}
		s.Members = l.filter(fresh)
		s.Generations = gens
	})
	return err
}

// fetch は全メンバーを1回だけ取得し、期一覧もそこから求める。
// 卒業生の除外はfilterで行う。
func (l *MemberLoader) fetch(ctx context.Context) ([]model.Member, []string, error) {
	members, err := l.source.FetchMembers(ctx)
	if err != nil {
		return nil, nil, err
	}
	return members, member.Generations(members), nil
}

func (l *MemberLoader) filter(members []model.Member) []model.Member {
	return member.FilterMembers(members, l.opts.IncludeGraduated, l.opts.Generation)
}

// MemberResult はMemberの結果。
type MemberResult struct {
	Member *model.Member
	Err    error
}

// Member は1メンバーを読み込む。
// 同梱データに見つかればonStaticに渡してから、ライブデータで上書きする。
// ライブで見つからない場合は同梱データの結果を返す。
func (l *MemberLoader) Member(ctx context.Context, code string, onStatic func(model.Member)) MemberResult {
	if code == "" {
		return MemberResult{}
	}

	var result MemberResult
	for _, m := range l.source.StaticMembers() {
		if m.Code == code {
			found := m
			result.Member = &found
			if onStatic != nil {
				onStatic(found)
			}
			break
		}
	}

	fresh, ok, err := l.source.FetchMemberByCode(ctx, code)
	if err != nil {
		result.Err = err
		return result
	}
	if ok {
		result.Member = &fresh
	}
	return result
}
