// Package commentwatch はお気に入りメンバーの最新記事に対するコメント確認を
// 定期的に実行するバックグラウンドジョブを提供する。
package commentwatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/nogiblog/internal/model"
)

// PreferenceReader はユーザー設定の読み込みインターフェース。
type PreferenceReader interface {
	Preferences(ctx context.Context) model.UserPreferences
}

// BlogFetcher はメンバー別の最新記事取得インターフェース。blog.Serviceが満たす。
type BlogFetcher interface {
	FetchBlogsByMember(ctx context.Context, memberCode string, count int) ([]model.BlogPost, error)
}

// CommentRefresher はコメントの再確認インターフェース。comment.Engineが満たす。
type CommentRefresher interface {
	RefreshCommentCheck(ctx context.Context, postIDs []string, username string) (model.CommentResult, error)
}

// Config はWatcherの設定。
type Config struct {
	// Interval は実行間隔（デフォルト: 10分）。
	Interval time.Duration
	// PostsPerMember はメンバーごとに確認する最新記事数（デフォルト: 5）。
	PostsPerMember int
}

// DefaultConfig はデフォルトの設定を返す。
func DefaultConfig() Config {
	return Config{
		Interval:       10 * time.Minute,
		PostsPerMember: 5,
	}
}

// Watcher はお気に入りメンバーの最新記事のコメントを定期的に再確認する。
type Watcher struct {
	prefs    PreferenceReader
	blogs    BlogFetcher
	comments CommentRefresher
	logger   *slog.Logger
	config   Config
}

// NewWatcher はWatcherの新しいインスタンスを生成する。
func NewWatcher(prefs PreferenceReader, blogs BlogFetcher, comments CommentRefresher, logger *slog.Logger, config Config) *Watcher {
	def := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.PostsPerMember <= 0 {
		config.PostsPerMember = def.PostsPerMember
	}
	return &Watcher{
		prefs:    prefs,
		blogs:    blogs,
		comments: comments,
		logger:   logger,
		config:   config,
	}
}

// Start はWatcherをティッカーで定期実行する。起動直後に1回実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (w *Watcher) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.logger.Info("コメント監視ジョブを開始しました",
		slog.Duration("interval", w.config.Interval),
		slog.Int("posts_per_member", w.config.PostsPerMember),
	)

	w.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("コメント監視ジョブを停止しました")
			return
		case <-ticker.C:
			w.runLogged(ctx)
		}
	}
}

func (w *Watcher) runLogged(ctx context.Context) {
	if err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
		w.logger.Error("コメント監視サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce は1回の監視サイクルを実行する。
// ユーザー名またはお気に入りメンバーが未設定の場合は何もしない。
func (w *Watcher) RunOnce(ctx context.Context) error {
	start := time.Now()

	prefs := w.prefs.Preferences(ctx)
	username := strings.TrimSpace(prefs.Username)
	if username == "" || len(prefs.FavoriteMembers) == 0 {
		w.logger.Info("ユーザー名またはお気に入りメンバーが未設定のためスキップします")
		return nil
	}

	var postIDs []string
	seen := make(map[string]bool)
	for _, code := range prefs.FavoriteMembers {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		posts, err := w.blogs.FetchBlogsByMember(ctx, code, w.config.PostsPerMember)
		if err != nil {
			return fmt.Errorf("メンバー %s の記事取得に失敗しました: %w", code, err)
		}
		taken := 0
		for _, p := range posts {
			if taken >= w.config.PostsPerMember {
				break
			}
			// 取得失敗時の同梱データは絞り込まれていない
			if p.MemberID != code {
				continue
			}
			taken++
			if p.ID != "" && !seen[p.ID] {
				seen[p.ID] = true
				postIDs = append(postIDs, p.ID)
			}
		}
	}

	if len(postIDs) == 0 {
		w.logger.Info("確認対象の記事はありません")
		return nil
	}

	result, err := w.comments.RefreshCommentCheck(ctx, postIDs, username)
	if err != nil {
		return fmt.Errorf("コメントの再確認に失敗しました: %w", err)
	}

	w.logger.Info("コメント監視サイクルが完了しました",
		slog.Int("member_count", len(prefs.FavoriteMembers)),
		slog.Int("checked_posts", len(postIDs)),
		slog.Int("commented_posts", len(result.PostIDs)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
