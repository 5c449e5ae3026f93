package model

import "time"

// UserComment はコメント検出エンジンが見つけたユーザー自身のコメント。
type UserComment struct {
	PostID    string `json:"postId"`
	CommentID string `json:"commentId"`
	Body      string `json:"body"`
	Date      string `json:"date"`
}

// CommentCache はコメント検出結果の永続キャッシュ。
// 1つのユーザー名にのみ紐づき、ユーザー名が変わると全体が無効になる。
// CommentedPostIDsは常にPostIDs（確認済み記事）の部分集合となる。
type CommentCache struct {
	Username         string        `json:"username"`
	PostIDs          []string      `json:"postIds"`
	CommentedPostIDs []string      `json:"commentedPostIds"`
	UserComments     []UserComment `json:"userComments"`
	LastFetched      int64         `json:"lastFetched"` // Unixミリ秒
}

// LastFetchedAt はLastFetchedをtime.Timeとして返す。
func (c *CommentCache) LastFetchedAt() time.Time {
	return time.UnixMilli(c.LastFetched)
}

// CommentResult はコメント確認の結果。
type CommentResult struct {
	PostIDs  []string      `json:"post_ids"`
	Comments []UserComment `json:"comments"`
}

// CommentRecord はユーザーが手動で記録したコメント履歴。
type CommentRecord struct {
	PostID      string    `json:"postId"`
	PostTitle   string    `json:"postTitle"`
	MemberName  string    `json:"memberName"`
	CommentedAt time.Time `json:"commentedAt"`
	Note        string    `json:"note,omitempty"`
}
