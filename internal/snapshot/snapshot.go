// Package snapshot はビルド時に同梱した静的データ（ブログ・メンバー）を提供する。
// ライブAPIが使えない場合の表示と初回表示に使う。
package snapshot

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"
)

//go:embed data/blogs.json
var blogsJSON []byte

//go:embed data/members.json
var membersJSON []byte

// Blog はスナップショット内の1記事。
// PublishedAtはAPIと同じ "YYYY/MM/DD HH:MM:SS" 形式。
type Blog struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	Thumbnail   string `json:"thumbnail"`
	PublishedAt string `json:"publishedAt"`
	Link        string `json:"link"`
	MemberID    string `json:"memberId"`
	MemberName  string `json:"memberName"`
	MemberImage string `json:"memberImage"`
}

// Member はスナップショット内の1メンバー。
type Member struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	EnglishName  string `json:"englishName"`
	Kana         string `json:"kana"`
	Generation   string `json:"generation"`
	ProfileImage string `json:"profileImage"`
	ProfileLink  string `json:"profileLink"`
	Birthday     string `json:"birthday"`
	BloodType    string `json:"bloodType"`
	IsGraduated  bool   `json:"isGraduated"`
}

type blogFile struct {
	Data []Blog `json:"data"`
}

type memberFile struct {
	Data []Member `json:"data"`
}

var (
	loadOnce sync.Once
	blogs    []Blog
	members  []Member
	loadErr  error
)

func load() {
	var bf blogFile
	if err := json.Unmarshal(blogsJSON, &bf); err != nil {
		loadErr = fmt.Errorf("ブログスナップショットの読み込みに失敗しました: %w", err)
		return
	}
	var mf memberFile
	if err := json.Unmarshal(membersJSON, &mf); err != nil {
		loadErr = fmt.Errorf("メンバースナップショットの読み込みに失敗しました: %w", err)
		return
	}
	blogs = bf.Data
	members = mf.Data
}

// Blogs は同梱のブログ記事を返す。呼び出し側が変更してもよいようにコピーを返す。
func Blogs() ([]Blog, error) {
	loadOnce.Do(load)
	if loadErr != nil {
		return nil, loadErr
	}
	out := make([]Blog, len(blogs))
	copy(out, blogs)
	return out, nil
}

// Members は同梱のメンバーを返す。
func Members() ([]Member, error) {
	loadOnce.Do(load)
	if loadErr != nil {
		return nil, loadErr
	}
	out := make([]Member, len(members))
	copy(out, members)
	return out, nil
}
