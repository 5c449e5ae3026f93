package mapper

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// NormalizeImageURL は画像URLを絶対URLに正規化する。
// 絶対URLはそのまま、プロトコル相対URLはhttps:を補い、
// それ以外はbaseのオリジンを前置する。
func NormalizeImageURL(base, u string) string {
	switch {
	case u == "":
		return ""
	case strings.HasPrefix(u, "http://"), strings.HasPrefix(u, "https://"):
		return u
	case strings.HasPrefix(u, "//"):
		return "https:" + u
	}

	base = strings.TrimRight(base, "/")
	if strings.HasPrefix(u, "/") {
		return base + u
	}
	return base + "/" + u
}

// rawTextTags はトークナイザが中身をテキストとして返す要素。
// 本文中ではここに<img>が書かれることがあるため、中身を再解析する。
// scriptとstyleはHTMLではないので対象外。
var rawTextTags = map[string]bool{
	"noscript": true, "textarea": true, "title": true, "xmp": true,
	"iframe": true, "noembed": true, "noframes": true, "plaintext": true,
}

// ExtractImagesFromHTML は本文HTMLに含まれる<img src>を文書順に抽出し、正規化して返す。
// srcが空のimgは無視する。noscriptなどの中に書かれたimgも含む。
func ExtractImagesFromHTML(base, content string) []string {
	images := []string{}
	if content == "" {
		return images
	}

	tokenizer := html.NewTokenizer(strings.NewReader(content))
	inRawText := false
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF または解析不能。ここまでの結果を返す
			return images
		case html.TextToken:
			if inRawText {
				images = append(images, ExtractImagesFromHTML(base, string(tokenizer.Text()))...)
			}
		case html.EndTagToken:
			inRawText = false
		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			name := string(tn)
			inRawText = tt == html.StartTagToken && rawTextTags[name]
			if name != "img" || !hasAttr {
				continue
			}
			for {
				key, val, more := tokenizer.TagAttr()
				if string(key) == "src" {
					if src := strings.TrimSpace(string(val)); src != "" {
						images = append(images, NormalizeImageURL(base, src))
					}
					break
				}
				if !more {
					break
				}
			}
		}
	}
}

// ImageFilename はURLのパス末尾の要素を返す。空の場合は"image"。
func ImageFilename(u string) string {
	parts := strings.Split(u, "/")
	if name := parts[len(parts)-1]; name != "" {
		return name
	}
	return "image"
}

var extPattern = regexp.MustCompile(`\.([a-zA-Z0-9]+)(\?.*)?$`)

// ImageExtension はURLから拡張子（小文字、ドットなし）を返す。判別できない場合は"jpg"。
func ImageExtension(u string) string {
	m := extPattern.FindStringSubmatch(ImageFilename(u))
	if m == nil {
		return "jpg"
	}
	return strings.ToLower(m[1])
}

var imageExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true,
	"webp": true, "svg": true, "bmp": true,
}

// IsImageURL はURLの拡張子が画像のものかを判定する。
func IsImageURL(u string) bool {
	return imageExtensions[ImageExtension(u)]
}
