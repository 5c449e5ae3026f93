// Package model はドメインモデルを定義する。
package model

import "time"

// BlogPost は公式ブログの1記事を表す。
// Imagesは常にContentから抽出した値であり、単独で変更しない。
type BlogPost struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"` // 未サニタイズのHTML
	Thumbnail   string    `json:"thumbnail"`
	PublishedAt time.Time `json:"published_at"`
	Link        string    `json:"link"` // 相対URLの場合がある
	MemberID    string    `json:"member_id"`
	MemberName  string    `json:"member_name"`
	MemberImage string    `json:"member_image"`
	Images      []string  `json:"images"`
}

// Member はメンバーを表す。
type Member struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	EnglishName  string `json:"english_name"`
	Kana         string `json:"kana"`
	Generation   string `json:"generation"`
	ProfileImage string `json:"profile_image"`
	ProfileLink  string `json:"profile_link"`
	Birthday     string `json:"birthday"`
	BloodType    string `json:"blood_type"`
	IsGraduated  bool   `json:"is_graduated"`
}
