// Package logger はアプリ全体で使うJSON構造化ロガーを組み立てる。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// ServiceName は全ログ行のservice属性に入る名前。
const ServiceName = "nogiblog"

// jst はログのtimeを日本時間で出すためのゾーン。
var jst = time.FixedZone("JST", 9*60*60)

// ParseLevel はLOG_LEVELの値をslog.Levelに変換する。
// debug, info, warn(warning), error 以外はinfoとする。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup はlevel以上をwへJSONで出すロガーを返す。
// timeはミリ秒精度のJST、全行にservice属性が付く。
func Setup(w io.Writer, level slog.Level) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceTime,
	})
	return slog.New(h).With(slog.String("service", ServiceName))
}

func replaceTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
		return slog.String(slog.TimeKey, a.Value.Time().In(jst).Format("2006-01-02T15:04:05.000Z07:00"))
	}
	return a
}

// SetupDefault はSetupのロガーをslogのデフォルトにも設定する。wがnilならos.Stdout。
func SetupDefault(w io.Writer, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	l := Setup(w, level)
	slog.SetDefault(l)
	return l
}
