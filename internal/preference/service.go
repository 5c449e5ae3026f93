// Package preference はユーザー設定と手動のコメント記録を管理する。
package preference

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/nogiblog/internal/model"
	"github.com/hitoshi/nogiblog/internal/repository"
)

// MaxCommentRecords はコメント記録の保持上限。
const MaxCommentRecords = 100

// CacheClearer はコメント検出キャッシュの削除インターフェース。comment.Engineが満たす。
type CacheClearer interface {
	ClearCache(ctx context.Context) error
}

// Service はユーザー設定とコメント記録の読み書きを行う。
type Service struct {
	repo     repository.StorageRepository
	comments CacheClearer
	logger   *slog.Logger
	now      func() time.Time

	mu sync.Mutex
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.StorageRepository, comments CacheClearer, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		comments: comments,
		logger:   logger,
		now:      time.Now,
	}
}

// Preferences はユーザー設定を返す。未保存または破損している場合は初期値を返す。
func (s *Service) Preferences(ctx context.Context) model.UserPreferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadPreferences(ctx)
}

func (s *Service) loadPreferences(ctx context.Context) model.UserPreferences {
	prefs := model.DefaultPreferences()
	if !s.load(ctx, model.StorageKeyPreferences, &prefs) {
		return model.DefaultPreferences()
	}
	if prefs.FavoriteMembers == nil {
		prefs.FavoriteMembers = []string{}
	}
	if prefs.Theme != model.ThemeDark {
		prefs.Theme = model.ThemeLight
	}
	return prefs
}

// SavePreferences はユーザー設定を保存する。
// ユーザー名が変わった場合はコメント検出キャッシュを削除する。
func (s *Service) SavePreferences(ctx context.Context, prefs model.UserPreferences) (model.UserPreferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.savePreferences(ctx, prefs)
}

// savePreferences はs.muを保持した状態で呼ぶ。
func (s *Service) savePreferences(ctx context.Context, prefs model.UserPreferences) (model.UserPreferences, error) {
	prefs.Username = strings.TrimSpace(prefs.Username)
	prefs.FavoriteMembers = uniqueNonEmpty(prefs.FavoriteMembers)
	if prefs.Theme != model.ThemeDark {
		prefs.Theme = model.ThemeLight
	}

	prev := s.loadPreferences(ctx)
	if err := s.store(ctx, model.StorageKeyPreferences, prefs); err != nil {
		return prev, err
	}

	if prev.Username != prefs.Username && s.comments != nil {
		if err := s.comments.ClearCache(ctx); err != nil {
			s.logger.Warn("ユーザー名変更時のコメントキャッシュ削除に失敗しました",
				slog.String("error", err.Error()),
			)
		} else {
			s.logger.Info("ユーザー名が変更されたためコメントキャッシュを削除しました")
		}
	}
	return prefs, nil
}

// ToggleFavorite はお気に入りメンバーの登録状態を反転して保存する。
// 読み込みから保存までを1回のロックで行う。
func (s *Service) ToggleFavorite(ctx context.Context, memberCode string) (model.UserPreferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs := s.loadPreferences(ctx)
	if i := slices.Index(prefs.FavoriteMembers, memberCode); i >= 0 {
		prefs.FavoriteMembers = slices.Delete(prefs.FavoriteMembers, i, i+1)
	} else {
		prefs.FavoriteMembers = append(prefs.FavoriteMembers, memberCode)
	}
	return s.savePreferences(ctx, prefs)
}

// FilterFavorites はShowOnlyFavoritesが有効な場合にお気に入りメンバーのみを返す。
func FilterFavorites(prefs model.UserPreferences, members []model.Member) []model.Member {
	if !prefs.ShowOnlyFavorites {
		return members
	}
	filtered := make([]model.Member, 0, len(members))
	for _, m := range members {
		if slices.Contains(prefs.FavoriteMembers, m.Code) {
			filtered = append(filtered, m)
		}
	}
	return filtered
}

// CommentHistory はコメント記録を新しい順に返す。未保存または破損している場合は空。
func (s *Service) CommentHistory(ctx context.Context) []model.CommentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadHistory(ctx)
}

func (s *Service) loadHistory(ctx context.Context) []model.CommentRecord {
	var history []model.CommentRecord
	if !s.load(ctx, model.StorageKeyComments, &history) || history == nil {
		return []model.CommentRecord{}
	}
	return history
}

// AddCommentRecord はコメント記録を追加する。
// 同じ記事の記録があればその位置で置き換え、無ければ先頭に追加する。
// 保持件数はMaxCommentRecordsまで。
func (s *Service) AddCommentRecord(ctx context.Context, postID, postTitle, memberName, note string) (model.CommentRecord, error) {
	if postID == "" {
		return model.CommentRecord{}, fmt.Errorf("記事IDが空です")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record := model.CommentRecord{
		PostID:      postID,
		PostTitle:   postTitle,
		MemberName:  memberName,
		CommentedAt: s.now(),
		Note:        note,
	}

	history := s.loadHistory(ctx)
	i := slices.IndexFunc(history, func(r model.CommentRecord) bool { return r.PostID == postID })
	if i >= 0 {
		history[i] = record
	} else {
		history = append([]model.CommentRecord{record}, history...)
	}
	if len(history) > MaxCommentRecords {
		history = history[:MaxCommentRecords]
	}

	if err := s.store(ctx, model.StorageKeyComments, history); err != nil {
		return model.CommentRecord{}, err
	}
	return record, nil
}

// RemoveCommentRecord は記事のコメント記録を削除する。
func (s *Service) RemoveCommentRecord(ctx context.Context, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := slices.DeleteFunc(s.loadHistory(ctx), func(r model.CommentRecord) bool {
		return r.PostID == postID
	})
	return s.store(ctx, model.StorageKeyComments, history)
}

// HasCommented は記事にコメント記録があるかを返す。
func (s *Service) HasCommented(ctx context.Context, postID string) bool {
	return slices.Contains(s.CommentedPostIDs(ctx), postID)
}

// CommentedPostIDs はコメント記録のある記事IDを記録順に返す。
func (s *Service) CommentedPostIDs(ctx context.Context) []string {
	history := s.CommentHistory(ctx)
	ids := make([]string, 0, len(history))
	for _, r := range history {
		ids = append(ids, r.PostID)
	}
	return ids
}

// ClearCommentHistory はコメント記録をすべて削除する。
func (s *Service) ClearCommentHistory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.Delete(ctx, model.StorageKeyComments); err != nil {
		return fmt.Errorf("コメント記録の削除に失敗しました: %w", err)
	}
	return nil
}

// BuildCommentURL は記事のリンクから公式サイトのコメント用URLを組み立てる。
// 絶対URLはそのまま返し、相対URLにはbaseを付与する。
func BuildCommentURL(base, link string) string {
	if strings.HasPrefix(link, "http") {
		return link
	}
	return strings.TrimRight(base, "/") + link
}

// load はkeyの値をvにデコードする。値が無い、または読み込みに失敗した場合はfalse。
func (s *Service) load(ctx context.Context, key string, v any) bool {
	data, ok, err := s.repo.Get(ctx, key)
	if err != nil {
		s.logger.Warn("保存データの読み込みに失敗しました",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false
	}
	if !ok || len(data) == 0 {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn("保存データが破損しているため無視します",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

func (s *Service) store(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("保存データのエンコードに失敗しました: %w", err)
	}
	if err := s.repo.Set(ctx, key, data); err != nil {
		return fmt.Errorf("保存データの書き込みに失敗しました: %w", err)
	}
	return nil
}

func uniqueNonEmpty(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
