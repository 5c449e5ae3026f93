// Package mapper はAPIのワイヤ形式と同梱スナップショットをドメインモデルに変換する。
// すべて純粋関数で、不正な入力でもエラーにはしない。
package mapper

import (
	"github.com/hitoshi/nogiblog/internal/model"
	"github.com/hitoshi/nogiblog/internal/snapshot"
	"github.com/hitoshi/nogiblog/internal/upstream"
)

// graduatedFlag はメンバーAPIの卒業フラグの値。
const graduatedFlag = "YES"

// BlogEntry はブログAPIの1記事をBlogPostに変換する。
func BlogEntry(base string, e upstream.BlogEntry) model.BlogPost {
	return model.BlogPost{
		ID:          e.Code,
		Title:       e.Title,
		Content:     e.Text,
		Thumbnail:   NormalizeImageURL(base, e.Img),
		PublishedAt: parseAPIDateOrZero(e.Date),
		Link:        e.Link,
		MemberID:    e.ArtiCode,
		MemberName:  e.Name,
		MemberImage: NormalizeImageURL(base, e.ArtistImg),
		Images:      ExtractImagesFromHTML(base, e.Text),
	}
}

// BlogEntries はBlogEntryのスライス版。
func BlogEntries(base string, entries []upstream.BlogEntry) []model.BlogPost {
	posts := make([]model.BlogPost, 0, len(entries))
	for _, e := range entries {
		posts = append(posts, BlogEntry(base, e))
	}
	return posts
}

// MemberEntry はメンバーAPIの1メンバーをMemberに変換する。
func MemberEntry(base string, e upstream.MemberEntry) model.Member {
	return model.Member{
		Code:         e.Code,
		Name:         e.Name,
		EnglishName:  e.EnglishName,
		Kana:         e.Kana,
		Generation:   e.Cate,
		ProfileImage: NormalizeImageURL(base, e.Img),
		ProfileLink:  e.Link,
		Birthday:     e.Birthday,
		BloodType:    e.Blood,
		IsGraduated:  e.Graduation == graduatedFlag,
	}
}

// MemberEntries はMemberEntryのスライス版。
func MemberEntries(base string, entries []upstream.MemberEntry) []model.Member {
	members := make([]model.Member, 0, len(entries))
	for _, e := range entries {
		members = append(members, MemberEntry(base, e))
	}
	return members
}

// SnapshotBlog は同梱スナップショットの1記事をBlogPostに変換する。
func SnapshotBlog(base string, b snapshot.Blog) model.BlogPost {
	return model.BlogPost{
		ID:          b.ID,
		Title:       b.Title,
		Content:     b.Content,
		Thumbnail:   NormalizeImageURL(base, b.Thumbnail),
		PublishedAt: parseAPIDateOrZero(b.PublishedAt),
		Link:        b.Link,
		MemberID:    b.MemberID,
		MemberName:  b.MemberName,
		MemberImage: NormalizeImageURL(base, b.MemberImage),
		Images:      ExtractImagesFromHTML(base, b.Content),
	}
}

// SnapshotBlogs はSnapshotBlogのスライス版。
func SnapshotBlogs(base string, blogs []snapshot.Blog) []model.BlogPost {
	posts := make([]model.BlogPost, 0, len(blogs))
	for _, b := range blogs {
		posts = append(posts, SnapshotBlog(base, b))
	}
	return posts
}

// SnapshotMember は同梱スナップショットの1メンバーをMemberに変換する。
func SnapshotMember(base string, m snapshot.Member) model.Member {
	return model.Member{
		Code:         m.Code,
		Name:         m.Name,
		EnglishName:  m.EnglishName,
		Kana:         m.Kana,
		Generation:   m.Generation,
		ProfileImage: NormalizeImageURL(base, m.ProfileImage),
		ProfileLink:  m.ProfileLink,
		Birthday:     m.Birthday,
		BloodType:    m.BloodType,
		IsGraduated:  m.IsGraduated,
	}
}

// SnapshotMembers はSnapshotMemberのスライス版。
func SnapshotMembers(base string, members []snapshot.Member) []model.Member {
	out := make([]model.Member, 0, len(members))
	for _, m := range members {
		out = append(out, SnapshotMember(base, m))
	}
	return out
}
