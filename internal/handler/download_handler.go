package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/hitoshi/nogiblog/internal/download"
	"github.com/hitoshi/nogiblog/internal/model"
)

// maxDownloadURLs は1ジョブで指定できる画像URLの上限。
const maxDownloadURLs = 200

// 画像の受け渡し方法
const (
	modeZip   = "zip"
	modeShare = "share"
)

// ImagePipelineInterface は画像の一括取得パイプライン。
type ImagePipelineInterface interface {
	DownloadAllImages(ctx context.Context, urls []string, zipFilename string, saver download.ArchiveSaver, onProgress download.ProgressFunc) download.Result
	ShareImages(ctx context.Context, urls []string, title string, sharer download.Sharer, onProgress download.ProgressFunc) download.ShareResult
}

// JobManagerInterface は非同期ダウンロードジョブの管理。
type JobManagerInterface interface {
	Start(ctx context.Context, urls []string, zipFilename string) download.JobStatus
	Status(id string) (download.JobStatus, bool)
	Subscribe(id string) (<-chan download.JobStatus, func(), bool)
	Archive(id string) (string, []byte, error)
}

// DownloadHandlerConfig はDownloadHandlerの設定。
type DownloadHandlerConfig struct {
	// JobContext はジョブの実行に使うコンテキスト。リクエスト終了後もジョブを続けるため。
	JobContext context.Context
	// AllowedOrigin はWebSocket接続を許可するオリジン。
	AllowedOrigin string
}

// DownloadHandler は画像ダウンロード・共有のHTTPハンドラー。
type DownloadHandler struct {
	blogs    BlogServiceInterface
	pipeline ImagePipelineInterface
	jobs     JobManagerInterface
	config   DownloadHandlerConfig
	logger   *slog.Logger
	now      func() time.Time
	upgrader websocket.Upgrader
}

// NewDownloadHandler はDownloadHandlerを生成する。
func NewDownloadHandler(
	blogs BlogServiceInterface,
	pipeline ImagePipelineInterface,
	jobs JobManagerInterface,
	config DownloadHandlerConfig,
	logger *slog.Logger,
) *DownloadHandler {
	if config.JobContext == nil {
		config.JobContext = context.Background()
	}
	h := &DownloadHandler{
		blogs:    blogs,
		pipeline: pipeline,
		jobs:     jobs,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// blogImagesRequest は記事画像の取得リクエスト。modeが空の場合はUser-Agentで決める。
type blogImagesRequest struct {
	Mode string `json:"mode"`
}

// downloadRequest は非同期ダウンロードの開始リクエスト。
type downloadRequest struct {
	URLs       []string `json:"urls"`
	MemberName string   `json:"member_name"`
	PostTitle  string   `json:"post_title"`
}

// BlogImages は記事の画像をZIPまたはmultipart/mixedで返す。
// モバイル端末では共有、それ以外ではZIPダウンロードを既定とする。
// POST /api/blogs/{id}/images
func (h *DownloadHandler) BlogImages(w http.ResponseWriter, r *http.Request) {
	var req blogImagesRequest
	if !decodeOptionalJSONBody(w, r, &req) {
		return
	}
	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	switch mode {
	case "":
		mode = modeZip
		if download.IsMobileDevice(r.UserAgent()) {
			mode = modeShare
		}
	case modeZip, modeShare:
	default:
		writeAPIErrorResponse(w, model.NewInvalidRequestError("modeはzipまたはshareで指定してください"))
		return
	}

	id := chi.URLParam(r, "id")
	post, found, err := h.blogs.FetchBlogByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	if !found {
		writeAPIErrorResponse(w, model.NewBlogNotFoundError(id))
		return
	}
	if len(post.Images) == 0 {
		writeAPIErrorResponse(w, model.NewNoImagesError())
		return
	}

	if mode == modeShare {
		h.share(w, r, post)
		return
	}
	h.zip(w, r, post)
}

func (h *DownloadHandler) zip(w http.ResponseWriter, r *http.Request, post model.BlogPost) {
	saver := &download.MemorySaver{}
	zipName := download.GenerateZipFilename(post.MemberName, post.Title, h.now())

	result := h.pipeline.DownloadAllImages(r.Context(), post.Images, zipName, saver, nil)
	if !result.Success {
		if r.Context().Err() != nil {
			writeAPIErrorResponse(w, model.NewCanceledError())
			return
		}
		if result.Downloaded == 0 {
			writeAPIErrorResponse(w, model.NewDownloadFailedError(result.Failed))
			return
		}
		writeAPIErrorResponse(w, model.NewArchiveFailedError(result.Downloaded))
		return
	}

	name, data := saver.Archive()
	download.WriteAttachmentHeaders(w, name, "application/zip")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Images-Downloaded", strconv.Itoa(result.Downloaded))
	w.Header().Set("X-Images-Failed", strconv.Itoa(result.Failed))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *DownloadHandler) share(w http.ResponseWriter, r *http.Request, post model.BlogPost) {
	sharer := download.NewMultipartSharer(w)
	result := h.pipeline.ShareImages(r.Context(), post.Images, post.Title, sharer, nil)

	// 書き込みを始めた後はステータスを変えられない
	if sharer.Started() {
		if !result.Success {
			h.logger.Warn("共有レスポンスの送信が途中で失敗しました",
				slog.String("post_id", post.ID),
				slog.Int("shared", result.Shared),
			)
		}
		return
	}

	switch {
	case r.Context().Err() != nil:
		writeAPIErrorResponse(w, model.NewCanceledError())
	case result.Shared == 0:
		writeAPIErrorResponse(w, model.NewDownloadFailedError(result.Failed))
	default:
		writeAPIErrorResponse(w, model.NewShareFailedError())
	}
}

// StartDownload は非同期ダウンロードジョブを開始する。
// POST /api/downloads
func (h *DownloadHandler) StartDownload(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	urls := make([]string, 0, len(req.URLs))
	for _, u := range req.URLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		writeAPIErrorResponse(w, model.NewNoImagesError())
		return
	}
	if len(urls) > maxDownloadURLs {
		writeAPIErrorResponse(w, model.NewInvalidRequestError("urlsが多すぎます"))
		return
	}

	zipName := download.GenerateZipFilename(req.MemberName, req.PostTitle, h.now())
	status := h.jobs.Start(h.config.JobContext, urls, zipName)

	w.Header().Set("Location", "/api/downloads/"+status.ID)
	writeJSON(w, http.StatusAccepted, status)
}

// GetDownload はジョブの進捗と結果を返す。
// GET /api/downloads/{id}
func (h *DownloadHandler) GetDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, ok := h.jobs.Status(id)
	if !ok {
		writeAPIErrorResponse(w, model.NewJobNotFoundError(id))
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// StreamDownload はジョブの進捗をWebSocketで配信する。完了時に最終状態を送って閉じる。
// GET /api/downloads/{id}/ws
func (h *DownloadHandler) StreamDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	updates, cancel, ok := h.jobs.Subscribe(id)
	if !ok {
		writeAPIErrorResponse(w, model.NewJobNotFoundError(id))
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgradeがエラーレスポンスを書き込み済み
		h.logger.Warn("WebSocketへのアップグレードに失敗しました",
			slog.String("job_id", id),
			slog.String("error", err.Error()),
		)
		return
	}
	defer conn.Close()

	// クライアントからの切断を検知する
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case status, open := <-updates:
			if !open {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
					time.Now().Add(time.Second))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(status); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

// GetArchive は完了したジョブのZIPを返す。
// GET /api/downloads/{id}/archive
func (h *DownloadHandler) GetArchive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	name, data, err := h.jobs.Archive(id)
	switch {
	case errors.Is(err, download.ErrJobNotFound):
		writeAPIErrorResponse(w, model.NewJobNotFoundError(id))
		return
	case errors.Is(err, download.ErrJobNotFinished):
		writeAPIErrorResponse(w, model.NewJobNotFinishedError())
		return
	case errors.Is(err, download.ErrNoArchive):
		status, _ := h.jobs.Status(id)
		downloaded := 0
		if status.Result != nil {
			downloaded = status.Result.Downloaded
		}
		if downloaded == 0 {
			failed := 0
			if status.Result != nil {
				failed = status.Result.Failed
			}
			writeAPIErrorResponse(w, model.NewDownloadFailedError(failed))
			return
		}
		writeAPIErrorResponse(w, model.NewArchiveFailedError(downloaded))
		return
	case err != nil:
		handleServiceError(w, r, h.logger, err)
		return
	}

	download.WriteAttachmentHeaders(w, name, "application/zip")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// checkOrigin はOriginが無いか、許可オリジンまたは同一ホストの場合に接続を許可する。
func (h *DownloadHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if h.config.AllowedOrigin != "" && origin == h.config.AllowedOrigin {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// decodeOptionalJSONBody は空のボディを許容してデコードする。
func decodeOptionalJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeAPIErrorResponse(w, model.NewInvalidRequestError("JSONを解析できません"))
		return false
	}
	return true
}
