package jsonp

import (
	"fmt"
	"net/url"
	"reflect"
)

// BuildAPIURL はクエリパラメータ付きのAPI URLを構築する。
// 値がnil（nilポインタを含む）のキーは省略し、それ以外はfmt.Sprintで文字列化する。
// baseURLに既存のクエリがある場合は維持し、同じキーは上書きする。
func BuildAPIURL(baseURL string, params map[string]any) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("ベースURLのパースに失敗しました: %w", err)
	}

	q := u.Query()
	for key, value := range params {
		v, ok := deref(value)
		if !ok {
			continue
		}
		q.Set(key, fmt.Sprint(v))
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// deref はポインタを剥がした値を返す。nilの場合はfalseを返す。
func deref(value any) (any, bool) {
	if value == nil {
		return nil, false
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		return rv.Elem().Interface(), true
	}
	return value, true
}
