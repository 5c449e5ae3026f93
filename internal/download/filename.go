package download

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"time"
)

var (
	imageExtPattern   = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp)$`)
	trailingExtension = regexp.MustCompile(`\.[^.]+$`)
	unsafeFilename    = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
	unsafeZipPart     = regexp.MustCompile(`[^a-zA-Z0-9\x{3040}-\x{309f}\x{30a0}-\x{30ff}\x{4e00}-\x{9faf}_-]`)
	mobileUserAgent   = regexp.MustCompile(`(?i)Android|webOS|iPhone|iPad|iPod|BlackBerry|IEMobile|Opera Mini`)
)

// zipTitleMaxRunes はZIPファイル名に含めるタイトルの最大文字数。
const zipTitleMaxRunes = 20

// FilenameFromURL はURLからアーカイブ内のファイル名を生成する。
// 形式は "<index+1>_<英数字化したファイル名><拡張子>"。
// 拡張子が画像形式でなければ ".jpg" とする。URLが不正な場合は "image_<index+1>.jpg"。
func FilenameFromURL(rawURL string, index int) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return fmt.Sprintf("image_%d.jpg", index+1)
	}

	// パスはエスケープされた形のまま扱う
	name := path.Base(u.EscapedPath())
	if name == "/" || name == "." {
		name = ""
	}

	ext := imageExtPattern.FindString(name)
	if ext == "" {
		ext = ".jpg"
	}

	base := trailingExtension.ReplaceAllString(name, "")
	base = unsafeFilename.ReplaceAllString(base, "_")
	if base == "" {
		base = "image"
	}
	return fmt.Sprintf("%d_%s%s", index+1, base, ext)
}

// GenerateZipFilename は記事の画像ZIPのファイル名を生成する。
// メンバー名とタイトルから記号を除き、タイトルは先頭20文字までとする。
// 日付部分はUTCの YYYYMMDD。
func GenerateZipFilename(memberName, postTitle string, now time.Time) string {
	member := unsafeZipPart.ReplaceAllString(memberName, "")
	title := []rune(unsafeZipPart.ReplaceAllString(postTitle, ""))
	if len(title) > zipTitleMaxRunes {
		title = title[:zipTitleMaxRunes]
	}
	return fmt.Sprintf("%s_%s_%s.zip", member, string(title), now.UTC().Format("20060102"))
}

// IsMobileDevice はUser-Agentからモバイル端末かどうかを判定する。
// モバイルでは共有を優先し、デスクトップではZIPを直接ダウンロードする。
func IsMobileDevice(userAgent string) bool {
	return mobileUserAgent.MatchString(userAgent)
}
