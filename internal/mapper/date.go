package mapper

import (
	"fmt"
	"time"
)

// apiDateLayout はAPIの日時形式（YYYY/MM/DD HH:MM:SS）。
const apiDateLayout = "2006/01/02 15:04:05"

// jst はAPIの日時が表すタイムゾーン（+09:00固定）。
var jst = time.FixedZone("JST", 9*60*60)

// ParseAPIDate はAPIの日時文字列をJSTとして解釈する。
func ParseAPIDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(apiDateLayout, s, jst)
	if err != nil {
		return time.Time{}, fmt.Errorf("日時の解析に失敗しました: %q: %w", s, err)
	}
	return t, nil
}

// parseAPIDateOrZero はParseAPIDateの失敗時にゼロ値を返す版。
// マッパーは不正な入力でも失敗させない。
func parseAPIDateOrZero(s string) time.Time {
	t, err := ParseAPIDate(s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// InJST は時刻をJSTで表した値を返す。
func InJST(t time.Time) time.Time {
	return t.In(jst)
}
