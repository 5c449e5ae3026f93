package comment

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/nogiblog/internal/model"
)

// DefaultCacheDuration は確認済みでコメントの無かった記事を再確認しない期間。
const DefaultCacheDuration = 10 * time.Minute

// PostScanner は1記事のコメント走査インターフェース。Scannerが満たす。
type PostScanner interface {
	FetchCommentsForPost(ctx context.Context, postID, username string) ([]model.UserComment, error)
}

// Engine はコメント検出エンジン。
// キャッシュの読み込み→走査→統合→保存を1操作ずつ直列に実行する。
type Engine struct {
	scanner PostScanner
	store   *CacheStore
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu sync.Mutex
}

// NewEngine はEngineの新しいインスタンスを生成する。ttlが0以下の場合はDefaultCacheDuration。
func NewEngine(scanner PostScanner, store *CacheStore, ttl time.Duration, logger *slog.Logger) *Engine {
	if ttl <= 0 {
		ttl = DefaultCacheDuration
	}
	return &Engine{
		scanner: scanner,
		store:   store,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
}

// CheckCommentsOnPosts は指定記事のうちusernameのコメントがある記事を確認する。
// コメント済みと判明している記事は再確認せず、キャッシュが新しい間は
// コメントの無かった記事も再確認しない。結果は既存キャッシュに統合して保存する。
// usernameが空白またはpostIDsが空の場合は、キャッシュの結果をそのまま返す。
func (e *Engine) CheckCommentsOnPosts(ctx context.Context, postIDs []string, username string) (model.CommentResult, error) {
	if strings.TrimSpace(username) == "" || len(postIDs) == 0 {
		return e.CachedResults(ctx, username), nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	plan := PlanCheck(e.store.Load(ctx), username, postIDs, e.now(), e.ttl)
	if len(plan.Eligible) == 0 {
		return ResultOf(plan.Base), nil
	}

	runID := uuid.New().String()
	e.logger.Info("コメント確認を開始します",
		slog.String("run_id", runID),
		slog.Int("requested", len(postIDs)),
		slog.Int("eligible", len(plan.Eligible)),
		slog.Bool("cache_fresh", plan.Fresh),
	)

	found, err := e.scan(ctx, plan.Eligible, username)
	if err != nil {
		return model.CommentResult{}, err
	}

	merged := MergeCheck(plan.Base, found, postIDs, e.now())
	e.store.Save(ctx, merged)

	e.logger.Info("コメント確認が完了しました",
		slog.String("run_id", runID),
		slog.Int("commented_posts", len(merged.CommentedPostIDs)),
	)
	return ResultOf(merged), nil
}

// RefreshCommentCheck は指定記事をスキップ規則に関係なく再確認し、
// それらの記事の結果のみを置き換える。指定外の記事の結果は保持する。
func (e *Engine) RefreshCommentCheck(ctx context.Context, postIDs []string, username string) (model.CommentResult, error) {
	if strings.TrimSpace(username) == "" || len(postIDs) == 0 {
		return e.CachedResults(ctx, username), nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	targets := appendUnique(nil, postIDs...)
	runID := uuid.New().String()
	e.logger.Info("コメントの再確認を開始します",
		slog.String("run_id", runID),
		slog.Int("targets", len(targets)),
	)

	found, err := e.scan(ctx, targets, username)
	if err != nil {
		return model.CommentResult{}, err
	}

	merged := MergeRefresh(e.store.Load(ctx), username, targets, found, e.now())
	e.store.Save(ctx, merged)

	e.logger.Info("コメントの再確認が完了しました",
		slog.String("run_id", runID),
		slog.Int("commented_posts", len(merged.CommentedPostIDs)),
	)
	return ResultOf(merged), nil
}

// scan は記事を1件ずつ順に走査する。
func (e *Engine) scan(ctx context.Context, postIDs []string, username string) ([]PostComments, error) {
	found := make([]PostComments, 0, len(postIDs))
	for _, id := range postIDs {
		comments, err := e.scanner.FetchCommentsForPost(ctx, id, username)
		if err != nil {
			return nil, err
		}
		found = append(found, PostComments{PostID: id, Comments: comments})
	}
	return found, nil
}

// CachedResults はusernameのキャッシュ済み結果を返す。別ユーザーのキャッシュは空として扱う。
func (e *Engine) CachedResults(ctx context.Context, username string) model.CommentResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ResultOf(scopedCache(e.store.Load(ctx), username))
}

// ClearCache はキャッシュを削除する。ユーザー名の変更時に呼び出す。
func (e *Engine) ClearCache(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Clear(ctx)
}
