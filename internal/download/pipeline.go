// Package download は記事画像の一括ダウンロードと共有を提供する。
//
// 画像は並列に取得してURL順にZIPへ格納する。1枚ごとの失敗は件数として数え、
// 処理全体は中断しない。結果は常にResult/ShareResultとして返す。
package download

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/nogiblog/internal/mapper"
	"github.com/hitoshi/nogiblog/internal/model"
)

const (
	// DefaultMaxImageSize は1枚あたりの最大サイズ（10MB）。
	DefaultMaxImageSize int64 = 10 * 1024 * 1024

	userAgent = "nogiblog/1.0 image downloader"
)

// HTTPDoer はHTTPリクエストの実行インターフェース。*http.Clientが満たす。
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// URLValidator は取得前のURL検証インターフェース。security.ImageGuardServiceが満たす。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// ImageRecorder は画像取得結果のメトリクス記録インターフェース。
type ImageRecorder interface {
	RecordImageFetch(success bool)
}

// ProgressFunc は進捗の通知先。
type ProgressFunc func(model.DownloadProgress)

// Result はDownloadAllImagesの結果。
// Success=falseかつDownloaded>0の場合は、画像は取得できたがZIPの作成・保存に失敗したことを表す。
type Result struct {
	Success    bool `json:"success"`
	Downloaded int  `json:"downloaded"`
	Failed     int  `json:"failed"`
}

// PipelineConfig はPipelineの設定。
type PipelineConfig struct {
	// MaxConcurrent は同時取得数の上限。0以下の場合はすべて同時に取得する。
	MaxConcurrent int
	// MaxImageSize は1枚あたりの最大バイト数。0以下の場合はDefaultMaxImageSize。
	MaxImageSize int64
}

// Pipeline は画像の取得とZIP生成を行う。
type Pipeline struct {
	client  HTTPDoer
	guard   URLValidator
	logger  *slog.Logger
	config  PipelineConfig
	metrics ImageRecorder
}

// NewPipeline はPipelineの新しいインスタンスを生成する。guardとmetricsはnilでもよい。
func NewPipeline(client HTTPDoer, guard URLValidator, logger *slog.Logger, config PipelineConfig, metrics ImageRecorder) *Pipeline {
	if config.MaxImageSize <= 0 {
		config.MaxImageSize = DefaultMaxImageSize
	}
	return &Pipeline{
		client:  client,
		guard:   guard,
		logger:  logger,
		config:  config,
		metrics: metrics,
	}
}

// fetchedImage は取得した1枚分のデータ。
type fetchedImage struct {
	data        []byte
	contentType string
}

// progressTracker は完了数・失敗数を集計して進捗を通知する。
// 通知はロック内で行うため、完了数+失敗数は単調に増加する順で届く。
type progressTracker struct {
	mu        sync.Mutex
	total     int
	completed int
	failed    int
	notify    ProgressFunc
}

func (t *progressTracker) report() {
	if t.notify != nil {
		t.notify(model.NewDownloadProgress(t.total, t.completed, t.failed))
	}
}

func (t *progressTracker) settle(ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ok {
		t.completed++
	} else {
		t.failed++
	}
	t.report()
}

// DownloadAllImages はurlsの画像を並列に取得し、1枚以上取得できればZIPにしてsaverへ保存する。
// 各画像の処理が終わるたびにonProgressを呼び出す（開始時にも0%で1回呼び出す）。
// ZIP内のファイルはURL順に並ぶ。
func (p *Pipeline) DownloadAllImages(ctx context.Context, urls []string, zipFilename string, saver ArchiveSaver, onProgress ProgressFunc) Result {
	if len(urls) == 0 {
		return Result{}
	}

	start := time.Now()
	tracker := &progressTracker{total: len(urls), notify: onProgress}
	tracker.report()

	images := make([]*fetchedImage, len(urls))

	limit := p.config.MaxConcurrent
	if limit <= 0 || limit > len(urls) {
		limit = len(urls)
	}
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for i, u := range urls {
		wg.Add(1)
		sem <- struct{}{}

		go func(i int, u string) {
			defer wg.Done()
			defer func() { <-sem }()

			img, err := p.fetchImage(ctx, u)
			if err != nil {
				p.logger.Warn("画像の取得に失敗しました",
					slog.String("url", u),
					slog.String("error", err.Error()),
				)
			} else {
				images[i] = img
			}
			tracker.settle(err == nil)
		}(i, u)
	}
	wg.Wait()

	result := Result{Downloaded: tracker.completed, Failed: tracker.failed}
	if result.Downloaded == 0 {
		p.logger.Warn("画像を1枚も取得できませんでした",
			slog.Int("failed", result.Failed),
		)
		return result
	}

	archive, err := buildArchive(urls, images)
	if err == nil {
		err = saver.Save(zipFilename, bytes.NewReader(archive))
	}
	if err != nil {
		p.logger.Error("ZIPの作成に失敗しました",
			slog.String("zip_filename", zipFilename),
			slog.Int("downloaded", result.Downloaded),
			slog.String("error", err.Error()),
		)
		return result
	}

	result.Success = true
	p.logger.Info("画像の一括ダウンロードが完了しました",
		slog.String("zip_filename", zipFilename),
		slog.Int("downloaded", result.Downloaded),
		slog.Int("failed", result.Failed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return result
}

// buildArchive は取得できた画像をURL順にZIPへ書き込む。
func buildArchive(urls []string, images []*fetchedImage) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i, img := range images {
		if img == nil {
			continue
		}
		w, err := zw.Create(FilenameFromURL(urls[i], i))
		if err != nil {
			return nil, fmt.Errorf("ZIPエントリの作成に失敗しました: %w", err)
		}
		if _, err := w.Write(img.data); err != nil {
			return nil, fmt.Errorf("ZIPエントリの書き込みに失敗しました: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("ZIPの生成に失敗しました: %w", err)
	}
	return buf.Bytes(), nil
}

// fetchImage は1枚の画像を取得する。
func (p *Pipeline) fetchImage(ctx context.Context, rawURL string) (img *fetchedImage, err error) {
	defer func() {
		if p.metrics != nil {
			p.metrics.RecordImageFetch(err == nil)
		}
	}()

	if p.guard != nil {
		if err := p.guard.ValidateURL(rawURL); err != nil {
			return nil, fmt.Errorf("URL検証に失敗: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("予期しないHTTPステータス: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, p.config.MaxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("レスポンスの読み込みに失敗: %w", err)
	}
	if int64(len(data)) > p.config.MaxImageSize {
		return nil, fmt.Errorf("画像サイズが上限(%dバイト)を超えています", p.config.MaxImageSize)
	}

	return &fetchedImage{data: data, contentType: imageContentType(resp.Header.Get("Content-Type"), rawURL, data)}, nil
}

// imageContentType は保存・共有に使うContent-Typeを決める。
// レスポンスヘッダを優先し、無ければ中身から判定する。
// 中身から画像と判別できない場合はURLの拡張子から補う。
func imageContentType(header, rawURL string, data []byte) string {
	if header != "" {
		return header
	}
	sniffed := http.DetectContentType(data)
	if strings.HasPrefix(sniffed, "image/") || !mapper.IsImageURL(rawURL) {
		return sniffed
	}
	if ct := mime.TypeByExtension("." + mapper.ImageExtension(rawURL)); ct != "" {
		return ct
	}
	return sniffed
}
