package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
)

// ErrShareCanceled はユーザーが共有を取り消したことを表す。
var ErrShareCanceled = errors.New("share canceled")

// ShareFile は共有する1ファイル。
type ShareFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// Sharer は端末の共有機能。
type Sharer interface {
	// CanShare は複数ファイルの共有を受け付けるかを返す。
	CanShare(files []ShareFile) bool
	// Share は共有を実行する。ユーザーが取り消した場合はErrShareCanceledを返す。
	Share(ctx context.Context, title string, files []ShareFile) error
}

// ShareResult はShareImagesの結果。Sharedは共有用に用意できたファイル数。
type ShareResult struct {
	Success bool `json:"success"`
	Shared  int  `json:"shared"`
	Failed  int  `json:"failed"`
}

// ShareImages はurlsの画像を1枚ずつ順に取得し、sharerで共有する。
// ユーザーによる取り消しは成功として扱う。
func (p *Pipeline) ShareImages(ctx context.Context, urls []string, title string, sharer Sharer, onProgress ProgressFunc) ShareResult {
	if len(urls) == 0 {
		return ShareResult{}
	}

	tracker := &progressTracker{total: len(urls), notify: onProgress}
	tracker.report()

	files := make([]ShareFile, 0, len(urls))
	for i, u := range urls {
		img, err := p.fetchImage(ctx, u)
		if err != nil {
			p.logger.Warn("共有用の画像の取得に失敗しました",
				slog.String("url", u),
				slog.String("error", err.Error()),
			)
		} else {
			files = append(files, ShareFile{
				Name:        FilenameFromURL(u, i),
				ContentType: img.contentType,
				Data:        img.data,
			})
		}
		tracker.settle(err == nil)
	}

	result := ShareResult{Shared: len(files), Failed: tracker.failed}
	if len(files) == 0 || !sharer.CanShare(files) {
		return result
	}

	if err := sharer.Share(ctx, title, files); err != nil {
		if errors.Is(err, ErrShareCanceled) {
			p.logger.Info("共有が取り消されました", slog.Int("shared", result.Shared))
			result.Success = true
			return result
		}
		p.logger.Error("画像の共有に失敗しました",
			slog.String("error", err.Error()),
		)
		return result
	}

	result.Success = true
	return result
}

// MultipartSharer は画像をmultipart/mixedのHTTPレスポンスとして返す共有先。
// クライアントが受信途中で切断した場合は取り消しとして扱う。
type MultipartSharer struct {
	w       http.ResponseWriter
	started bool
}

// NewMultipartSharer はMultipartSharerを生成する。
func NewMultipartSharer(w http.ResponseWriter) *MultipartSharer {
	return &MultipartSharer{w: w}
}

// CanShare は1ファイル以上あれば共有可能とする。
func (s *MultipartSharer) CanShare(files []ShareFile) bool {
	return len(files) > 0
}

// Share はファイルを1パートずつ書き込む。
func (s *MultipartSharer) Share(ctx context.Context, title string, files []ShareFile) error {
	mw := multipart.NewWriter(s.w)
	s.w.Header().Set("Content-Type", "multipart/mixed; boundary="+mw.Boundary())
	if title != "" {
		s.w.Header().Set("X-Share-Title", mime.QEncoding.Encode("utf-8", title))
	}
	s.w.WriteHeader(http.StatusOK)
	s.started = true

	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Type", f.ContentType)
		h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.Name}))
		part, err := mw.CreatePart(h)
		if err == nil {
			_, err = part.Write(f.Data)
		}
		if err != nil {
			return s.writeError(ctx, err)
		}
	}
	if err := mw.Close(); err != nil {
		return s.writeError(ctx, err)
	}
	return nil
}

// Started はレスポンスの書き込みを始めたかを返す。
func (s *MultipartSharer) Started() bool {
	return s.started
}

func (s *MultipartSharer) writeError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ErrShareCanceled
	}
	return fmt.Errorf("共有データの送信に失敗しました: %w", err)
}
