package comment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hitoshi/nogiblog/internal/model"
	"github.com/hitoshi/nogiblog/internal/repository"
)

// CacheStore はコメント検出キャッシュを保存領域に読み書きする。
type CacheStore struct {
	repo   repository.StorageRepository
	logger *slog.Logger
}

// NewCacheStore はCacheStoreの新しいインスタンスを生成する。
func NewCacheStore(repo repository.StorageRepository, logger *slog.Logger) *CacheStore {
	return &CacheStore{repo: repo, logger: logger}
}

// Load はキャッシュを読み込む。存在しない場合、または読み込み・デコードに失敗した場合はnilを返す。
func (s *CacheStore) Load(ctx context.Context) *model.CommentCache {
	data, ok, err := s.repo.Get(ctx, model.StorageKeyCommentCache)
	if err != nil {
		s.logger.Warn("コメントキャッシュの読み込みに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if !ok || len(data) == 0 {
		return nil
	}

	var cache model.CommentCache
	if err := json.Unmarshal(data, &cache); err != nil {
		s.logger.Warn("コメントキャッシュが破損しているため無視します",
			slog.String("error", err.Error()),
		)
		return nil
	}
	return &cache
}

// Save はキャッシュを書き込む。失敗はログに記録して無視する。
func (s *CacheStore) Save(ctx context.Context, cache model.CommentCache) {
	data, err := json.Marshal(cache)
	if err == nil {
		err = s.repo.Set(ctx, model.StorageKeyCommentCache, data)
	}
	if err != nil {
		s.logger.Warn("コメントキャッシュの書き込みに失敗しました",
			slog.String("username", cache.Username),
			slog.String("error", err.Error()),
		)
	}
}

// Clear はキャッシュを削除する。
func (s *CacheStore) Clear(ctx context.Context) error {
	if err := s.repo.Delete(ctx, model.StorageKeyCommentCache); err != nil {
		return fmt.Errorf("コメントキャッシュの削除に失敗しました: %w", err)
	}
	return nil
}
