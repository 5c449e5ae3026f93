package model

// Theme はUIテーマ。
type Theme string

const (
	// ThemeLight はライトテーマ。
	ThemeLight Theme = "light"
	// ThemeDark はダークテーマ。
	ThemeDark Theme = "dark"
)

// UserPreferences はユーザー設定。
// コメント検出エンジンはUsernameとFavoriteMembersのみを参照する。
type UserPreferences struct {
	Username          string   `json:"username"`
	FavoriteMembers   []string `json:"favoriteMembers"`
	Theme             Theme    `json:"theme"`
	ShowOnlyFavorites bool     `json:"showOnlyFavorites"`
}

// DefaultPreferences はユーザー設定の初期値を返す。
func DefaultPreferences() UserPreferences {
	return UserPreferences{
		Username:        "",
		FavoriteMembers: []string{},
		Theme:           ThemeLight,
	}
}

// ストレージキー
const (
	StorageKeyPreferences  = "nogiblog_preferences"
	StorageKeyComments     = "nogiblog_comments"
	StorageKeyCommentCache = "nogiblog_comment_cache"
)
