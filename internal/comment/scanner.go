// Package comment はユーザー自身のコメントが付いた記事を検出するエンジンを提供する。
//
// コメント一覧APIは記事単位・ページ単位でしか取得できず、投稿者名での検索もできない。
// そのため記事ごとに全ページを走査して投稿者名を照合し、結果をキャッシュに蓄積する。
// 一度コメント済みと判明した記事は、明示的なリフレッシュ以外では再確認しない。
package comment

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/nogiblog/internal/jsonp"
	"github.com/hitoshi/nogiblog/internal/model"
	"github.com/hitoshi/nogiblog/internal/upstream"
)

// Sanitizer はコメント本文のサニタイズインターフェース。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// ScanRecorder はコメント走査のメトリクス記録インターフェース。
type ScanRecorder interface {
	RecordCommentPage()
	RecordCommentPostScanned()
}

// ScannerConfig はScannerの設定パラメータ。
type ScannerConfig struct {
	// BatchSize は1ページあたりのコメント数（デフォルト: 10）。
	BatchSize int
	// MaxPages は1記事あたりの最大ページ数（デフォルト: 100）。
	MaxPages int
	// Timeout は1ページ取得のタイムアウト（デフォルト: 15秒）。
	Timeout time.Duration
}

// DefaultScannerConfig はデフォルトの走査設定を返す。
func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		BatchSize: 10,
		MaxPages:  100,
		Timeout:   15 * time.Second,
	}
}

// Scanner は1記事のコメントを全ページ走査する。
type Scanner struct {
	fetcher   jsonp.Fetcher
	endpoints upstream.Endpoints
	sanitizer Sanitizer
	logger    *slog.Logger
	config    ScannerConfig
	metrics   ScanRecorder
}

// NewScanner はScannerの新しいインスタンスを生成する。sanitizerとmetricsはnilでもよい。
func NewScanner(
	fetcher jsonp.Fetcher,
	endpoints upstream.Endpoints,
	sanitizer Sanitizer,
	logger *slog.Logger,
	config ScannerConfig,
	metrics ScanRecorder,
) *Scanner {
	def := DefaultScannerConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.MaxPages <= 0 {
		config.MaxPages = def.MaxPages
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	return &Scanner{
		fetcher:   fetcher,
		endpoints: endpoints,
		sanitizer: sanitizer,
		logger:    logger,
		config:    config,
		metrics:   metrics,
	}
}

// FetchCommentsForPost は記事のコメントを先頭からページ順に取得し、
// 投稿者名がusernameと完全一致するコメントを返す。
// 取得件数がBatchSize未満のページ、またはMaxPagesで終了する。
// 途中のページで取得に失敗した場合はそこで打ち切り、それまでの結果を返す。
// エラーを返すのは呼び出し元のコンテキストが終了した場合のみ。
func (s *Scanner) FetchCommentsForPost(ctx context.Context, postID, username string) ([]model.UserComment, error) {
	found := []model.UserComment{}
	offset := 0

	if s.metrics != nil {
		defer s.metrics.RecordCommentPostScanned()
	}

	for page := 0; page < s.config.MaxPages; page++ {
		url, err := jsonp.BuildAPIURL(s.endpoints.CommentList, map[string]any{
			"kiji":     postID,
			"rw":       s.config.BatchSize,
			"st":       offset,
			"callback": upstream.CallbackName,
		})
		if err != nil {
			return found, err
		}

		var resp upstream.CommentResponse
		if err := s.fetcher.Fetch(ctx, url, s.config.Timeout, &resp); err != nil {
			if ctx.Err() != nil {
				return found, ctx.Err()
			}
			s.logger.Warn("コメントの取得に失敗したため記事の走査を打ち切ります",
				slog.String("post_id", postID),
				slog.Int("offset", offset),
				slog.String("error", err.Error()),
			)
			break
		}
		if s.metrics != nil {
			s.metrics.RecordCommentPage()
		}

		for _, c := range resp.Data {
			if c.Comment1 != username {
				continue
			}
			found = append(found, s.toUserComment(postID, c))
		}

		if len(resp.Data) < s.config.BatchSize {
			break
		}
		offset += s.config.BatchSize
	}

	return found, nil
}

func (s *Scanner) toUserComment(postID string, c upstream.CommentEntry) model.UserComment {
	body := c.Body
	if s.sanitizer != nil {
		body = s.sanitizer.Sanitize(body)
	}
	id := c.KijiCode
	if id == "" {
		id = postID
	}
	return model.UserComment{
		PostID:    id,
		CommentID: c.Code,
		Body:      body,
		Date:      c.Date,
	}
}
