package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/nogiblog/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// RequestIDはログとの突き合わせ用で、ロギングミドルウェアを通った場合のみ入る。
type ErrorResponseBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Category  string `json:"category"`
	Action    string `json:"action"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteErrorResponse はapiErrを統一フォーマットで書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:      apiErr.Code,
		Message:   apiErr.Message,
		Category:  apiErr.Category,
		Action:    apiErr.Action,
		RequestID: w.Header().Get(RequestIDHeader),
	})
}

// WriteInternalServerError は500の統一レスポンスを書き込む。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
