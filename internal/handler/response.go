package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/nogiblog/internal/middleware"
	"github.com/hitoshi/nogiblog/internal/model"
)

// maxRequestBodySize はJSONリクエストボディの上限。
const maxRequestBodySize = 1 << 20

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, apiErr)
		return
	}

	// サービスはクライアントの切断時のみエラーを返す
	if r.Context().Err() != nil {
		writeAPIErrorResponse(w, model.NewCanceledError())
		return
	}

	logger.Error("internal server error",
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidRequest, model.ErrCodeNoImages:
		return http.StatusBadRequest
	case model.ErrCodeBlogNotFound, model.ErrCodeMemberNotFound, model.ErrCodeJobNotFound:
		return http.StatusNotFound
	case model.ErrCodeJobNotFinished:
		return http.StatusConflict
	case model.ErrCodeDownloadFailed:
		return http.StatusBadGateway
	case model.ErrCodeCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSONBody はリクエストボディをvにデコードする。失敗時はエラーレスポンスを書き込みfalseを返す。
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeAPIErrorResponse(w, model.NewInvalidRequestError("JSONを解析できません"))
		return false
	}
	return true
}

// queryInt はクエリパラメータを非負の整数として読む。未指定の場合はdefを返す。
func queryInt(r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
