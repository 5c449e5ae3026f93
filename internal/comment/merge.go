package comment

import (
	"time"

	"github.com/hitoshi/nogiblog/internal/model"
)

// PostComments は1記事分の走査結果。
type PostComments struct {
	PostID   string
	Comments []model.UserComment
}

// Plan はCheckCommentsOnPostsの実行計画。
type Plan struct {
	// Base はusernameに属する既存キャッシュ。別ユーザーのキャッシュは空として扱う。
	Base model.CommentCache
	// Eligible は走査対象の記事ID（要求順、重複なし）。
	Eligible []string
	// Fresh は既存キャッシュがttl以内に更新されたかどうか。
	Fresh bool
}

// scopedCache はusernameに属するキャッシュのコピーを返す。
// キャッシュが無い、または別ユーザーのものであれば空のキャッシュを返す。
func scopedCache(cache *model.CommentCache, username string) model.CommentCache {
	if cache == nil || cache.Username != username {
		return model.CommentCache{
			Username:         username,
			PostIDs:          []string{},
			CommentedPostIDs: []string{},
			UserComments:     []model.UserComment{},
		}
	}
	return model.CommentCache{
		Username:         cache.Username,
		PostIDs:          appendUnique(nil, cache.PostIDs...),
		CommentedPostIDs: appendUnique(nil, cache.CommentedPostIDs...),
		UserComments:     append([]model.UserComment{}, cache.UserComments...),
		LastFetched:      cache.LastFetched,
	}
}

// PlanCheck は要求された記事のうち走査が必要なものを決める。
//   - コメント済みと判明している記事は走査しない
//   - キャッシュがttl以内に更新されていれば、確認済みでコメントの無かった記事も走査しない
//   - キャッシュがttlより古ければ、コメント済み以外はすべて走査する
func PlanCheck(cache *model.CommentCache, username string, postIDs []string, now time.Time, ttl time.Duration) Plan {
	base := scopedCache(cache, username)
	fresh := base.LastFetched > 0 && now.Sub(base.LastFetchedAt()) < ttl

	commented := toSet(base.CommentedPostIDs)
	checked := toSet(base.PostIDs)

	eligible := []string{}
	seen := make(map[string]bool)
	for _, id := range postIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if commented[id] {
			continue
		}
		if fresh && checked[id] {
			continue
		}
		eligible = append(eligible, id)
	}

	return Plan{Base: base, Eligible: eligible, Fresh: fresh}
}

// MergeCheck は走査結果を既存キャッシュに統合した新しいキャッシュを返す。
// 既存の結果は保持し、新たにコメントが見つかった記事を追加する。
// 確認済み記事には要求された記事をすべて加える。
func MergeCheck(base model.CommentCache, found []PostComments, requested []string, now time.Time) model.CommentCache {
	known := toSet(base.CommentedPostIDs)

	merged := model.CommentCache{
		Username:         base.Username,
		CommentedPostIDs: appendUnique(nil, base.CommentedPostIDs...),
		UserComments:     append([]model.UserComment{}, base.UserComments...),
		LastFetched:      now.UnixMilli(),
	}

	for _, pc := range found {
		if len(pc.Comments) == 0 || known[pc.PostID] {
			continue
		}
		merged.CommentedPostIDs = appendUnique(merged.CommentedPostIDs, pc.PostID)
		merged.UserComments = appendComments(merged.UserComments, pc.Comments)
	}

	merged.PostIDs = appendUnique(nil, base.PostIDs...)
	merged.PostIDs = appendUnique(merged.PostIDs, requested...)
	merged.PostIDs = appendUnique(merged.PostIDs, merged.CommentedPostIDs...)
	return merged
}

// MergeRefresh は指定記事の結果のみを走査結果で置き換えた新しいキャッシュを返す。
// 指定外の記事の結果はそのまま保持する。
func MergeRefresh(cache *model.CommentCache, username string, postIDs []string, found []PostComments, now time.Time) model.CommentCache {
	base := scopedCache(cache, username)
	targets := toSet(postIDs)

	merged := model.CommentCache{
		Username:         username,
		CommentedPostIDs: []string{},
		UserComments:     []model.UserComment{},
		LastFetched:      now.UnixMilli(),
	}
	for _, id := range base.CommentedPostIDs {
		if !targets[id] {
			merged.CommentedPostIDs = append(merged.CommentedPostIDs, id)
		}
	}
	for _, c := range base.UserComments {
		if !targets[c.PostID] {
			merged.UserComments = append(merged.UserComments, c)
		}
	}

	for _, pc := range found {
		if len(pc.Comments) == 0 {
			continue
		}
		merged.CommentedPostIDs = appendUnique(merged.CommentedPostIDs, pc.PostID)
		merged.UserComments = appendComments(merged.UserComments, pc.Comments)
	}

	merged.PostIDs = appendUnique(nil, base.PostIDs...)
	merged.PostIDs = appendUnique(merged.PostIDs, postIDs...)
	merged.PostIDs = appendUnique(merged.PostIDs, merged.CommentedPostIDs...)
	return merged
}

// ResultOf はキャッシュからCommentResultを組み立てる。
func ResultOf(cache model.CommentCache) model.CommentResult {
	result := model.CommentResult{
		PostIDs:  append([]string{}, cache.CommentedPostIDs...),
		Comments: append([]model.UserComment{}, cache.UserComments...),
	}
	return result
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// appendUnique は重複と空文字を除いてidsを追加する。dstの順序は保持する。
func appendUnique(dst []string, ids ...string) []string {
	if dst == nil {
		dst = []string{}
	}
	seen := toSet(dst)
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		dst = append(dst, id)
	}
	return dst
}

// appendComments は(記事ID, コメントID)が重複しないコメントを追加する。
func appendComments(dst []model.UserComment, comments []model.UserComment) []model.UserComment {
	type key struct{ post, comment string }
	seen := make(map[key]bool, len(dst))
	for _, c := range dst {
		seen[key{c.PostID, c.CommentID}] = true
	}
	for _, c := range comments {
		k := key{c.PostID, c.CommentID}
		if seen[k] {
			continue
		}
		seen[k] = true
		dst = append(dst, c)
	}
	return dst
}
