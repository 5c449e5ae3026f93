package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/nogiblog/internal/loader"
)

// DataCacheInterface はプロセス全体のデータキャッシュ。
type DataCacheInterface interface {
	Fetch(ctx context.Context) error
	Refresh(ctx context.Context) error
	Snapshot() loader.DataSnapshot
}

// DataHandler は記事・メンバーの一括データのHTTPハンドラー。
type DataHandler struct {
	cache  DataCacheInterface
	logger *slog.Logger
}

// NewDataHandler はDataHandlerを生成する。
func NewDataHandler(cache DataCacheInterface, logger *slog.Logger) *DataHandler {
	return &DataHandler{cache: cache, logger: logger}
}

// GetData はキャッシュの内容を返す。初回のみライブデータを取得する。
// 取得に失敗しても同梱データのキャッシュを返す。
// GET /api/data
func (h *DataHandler) GetData(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.Fetch(r.Context()); err != nil {
		h.logger.Warn("データの取得に失敗したため既存のキャッシュを返します",
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, http.StatusOK, h.cache.Snapshot())
}

// RefreshData はライブデータを取得し直す。
// POST /api/data/refresh
func (h *DataHandler) RefreshData(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.Refresh(r.Context()); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.cache.Snapshot())
}
