package model

import "math"

// DownloadProgress は一括ダウンロードの進捗。
// 各画像の処理完了ごとに再計算される。
type DownloadProgress struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Percentage int `json:"percentage"`
}

// NewDownloadProgress は完了数と失敗数から進捗を計算する。
func NewDownloadProgress(total, completed, failed int) DownloadProgress {
	p := DownloadProgress{Total: total, Completed: completed, Failed: failed}
	if total > 0 {
		p.Percentage = int(math.Round(float64(completed+failed) / float64(total) * 100))
	}
	return p
}
