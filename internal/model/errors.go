// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, blog, member, comment, download, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeBlogNotFound   = "BLOG_NOT_FOUND"
	ErrCodeMemberNotFound = "MEMBER_NOT_FOUND"
	ErrCodeNoImages       = "NO_IMAGES"
	ErrCodeDownloadFailed = "DOWNLOAD_FAILED"
	ErrCodeArchiveFailed  = "ARCHIVE_FAILED"
	ErrCodeShareFailed    = "SHARE_FAILED"
	ErrCodeJobNotFound    = "JOB_NOT_FOUND"
	ErrCodeJobNotFinished = "JOB_NOT_FINISHED"
	ErrCodeStorageFailed  = "STORAGE_FAILED"
	ErrCodeCanceled       = "REQUEST_CANCELED"
	ErrCodeRateLimited    = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// NewInvalidRequestError はリクエスト不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewBlogNotFoundError はブログ記事未検出エラーを生成する。
func NewBlogNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeBlogNotFound,
		Message:  fmt.Sprintf("指定されたブログ記事が見つかりません: %s", id),
		Category: "blog",
		Action:   "記事IDを確認するか、公式サイトで記事を確認してください。",
	}
}

// NewMemberNotFoundError はメンバー未検出エラーを生成する。
func NewMemberNotFoundError(code string) *APIError {
	return &APIError{
		Code:     ErrCodeMemberNotFound,
		Message:  fmt.Sprintf("指定されたメンバーが見つかりません: %s", code),
		Category: "member",
		Action:   "メンバーコードを確認してください。",
	}
}

// NewNoImagesError はダウンロード対象画像なしエラーを生成する。
func NewNoImagesError() *APIError {
	return &APIError{
		Code:     ErrCodeNoImages,
		Message:  "ダウンロードできる画像がありません。",
		Category: "download",
		Action:   "画像が含まれる記事を選択してください。",
	}
}

// NewDownloadFailedError は画像を1枚も取得できなかった場合のエラーを生成する。
func NewDownloadFailedError(failed int) *APIError {
	return &APIError{
		Code:     ErrCodeDownloadFailed,
		Message:  fmt.Sprintf("画像のダウンロードに失敗しました（%d枚失敗）。", failed),
		Category: "download",
		Action:   "公式サイトから直接ダウンロードしてください。",
	}
}

// NewArchiveFailedError は画像取得後のZIP生成・保存に失敗した場合のエラーを生成する。
func NewArchiveFailedError(downloaded int) *APIError {
	return &APIError{
		Code:     ErrCodeArchiveFailed,
		Message:  fmt.Sprintf("%d枚の画像を取得しましたが、ZIPの作成に失敗しました。", downloaded),
		Category: "download",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewShareFailedError は共有失敗エラーを生成する。
func NewShareFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeShareFailed,
		Message:  "画像の共有に失敗しました。",
		Category: "download",
		Action:   "ZIPダウンロードをお試しください。",
	}
}

// NewJobNotFoundError はダウンロードジョブ未検出エラーを生成する。
func NewJobNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeJobNotFound,
		Message:  fmt.Sprintf("指定されたダウンロードジョブが見つかりません: %s", id),
		Category: "download",
		Action:   "ダウンロードをやり直してください。",
	}
}

// NewJobNotFinishedError はジョブ未完了エラーを生成する。
func NewJobNotFinishedError() *APIError {
	return &APIError{
		Code:     ErrCodeJobNotFinished,
		Message:  "ダウンロードはまだ完了していません。",
		Category: "download",
		Action:   "進捗が100%になってから再度お試しください。",
	}
}

// NewStorageFailedError は設定の保存失敗エラーを生成する。
func NewStorageFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeStorageFailed,
		Message:  "設定の保存に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewCanceledError は処理の中断エラーを生成する。
func NewCanceledError() *APIError {
	return &APIError{
		Code:     ErrCodeCanceled,
		Message:  "処理が中断されました。",
		Category: "system",
		Action:   "再度お試しください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。しばらく待ってから再度お試しください。",
		Category: "system",
		Action:   "Retry-Afterの秒数だけ待ってから再試行してください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
