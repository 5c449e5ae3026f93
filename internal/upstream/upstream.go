// Package upstream は公式サイトのJSONP APIのワイヤ形式とエンドポイントを定義する。
// ここで定義する型はマッパー層でのみ扱い、下流には渡さない。
package upstream

import "strings"

// DefaultBaseURL は公式サイトのオリジン。
const DefaultBaseURL = "https://www.nogizaka46.com"

// CallbackName はAPIが常に使用するJSONPコールバック名。
// callbackパラメータを指定しても無視される。
const CallbackName = "res"

// Endpoints はAPIエンドポイントのURL群。
type Endpoints struct {
	BaseURL     string
	BlogList    string
	MemberList  string
	CommentList string
}

// NewEndpoints はオリジンからエンドポイントURL群を構築する。
func NewEndpoints(baseURL string) Endpoints {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return Endpoints{
		BaseURL:     base,
		BlogList:    base + "/s/n46/api/list/blog",
		MemberList:  base + "/s/n46/api/list/member",
		CommentList: base + "/s/n46/api/list/comment",
	}
}

// BlogResponse はブログ一覧APIのレスポンス。
type BlogResponse struct {
	Count string      `json:"count"`
	Data  []BlogEntry `json:"data"`
}

// BlogEntry はブログ一覧APIの1記事。
type BlogEntry struct {
	Code      string `json:"code"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	Img       string `json:"img"`
	Date      string `json:"date"` // YYYY/MM/DD HH:MM:SS（JST）
	Link      string `json:"link"`
	ArtiCode  string `json:"arti_code"`
	Name      string `json:"name"`
	ArtistImg string `json:"artist_img"`
}

// MemberResponse はメンバー一覧APIのレスポンス。
type MemberResponse struct {
	Count string        `json:"count"`
	Data  []MemberEntry `json:"data"`
}

// MemberEntry はメンバー一覧APIの1メンバー。
type MemberEntry struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	EnglishName   string `json:"english_name"`
	Kana          string `json:"kana"`
	Cate          string `json:"cate"`
	Img           string `json:"img"`
	Link          string `json:"link"`
	Pick          string `json:"pick"`
	God           string `json:"god"`
	Under         string `json:"under"`
	Birthday      string `json:"birthday"`
	Blood         string `json:"blood"`
	Constellation string `json:"constellation"`
	Graduation    string `json:"graduation"` // "YES" または "NO"
	GroupCode     string `json:"groupcode"`
}

// CommentResponse はコメント一覧APIのレスポンス。
type CommentResponse struct {
	Count string         `json:"count"`
	Data  []CommentEntry `json:"data"`
}

// CommentEntry はコメント一覧APIの1コメント。
type CommentEntry struct {
	KijiCode string `json:"kijicode"`
	Code     string `json:"code"`
	Body     string `json:"body"`
	Comment1 string `json:"comment1"` // 投稿者名
	Date     string `json:"date"`
}
