// Package jsonp は固定コールバック名のJSONP APIを呼び出すトランスポートを提供する。
//
// 公式APIはcallbackパラメータを無視して常に "res" というコールバック名で
// 応答する。コールバックの設置場所は1つしかないため、すべての呼び出しは
// FIFOロックで直列化され、設置→応答待ち→除去を1呼び出しずつ行う。
package jsonp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/nogiblog/internal/upstream"
)

const (
	// defaultTimeout は呼び出しごとの既定タイムアウト。
	defaultTimeout = 10 * time.Second
	// maxBodySize はレスポンスボディの最大サイズ（10MB）。
	maxBodySize = 10 << 20
)

var (
	// ErrTimeout はJSONP呼び出しがタイムアウトしたことを示す。
	ErrTimeout = errors.New("JSONP request timeout")
	// ErrNetwork はJSONP呼び出しの通信に失敗したことを示す。
	ErrNetwork = errors.New("JSONP request failed")
	// ErrCallbackCollision はコールバックが既に設置済みだったことを示す。
	ErrCallbackCollision = errors.New("JSONP callback already installed")
	// ErrMalformedResponse はレスポンスがJSONPとして解釈できないことを示す。
	ErrMalformedResponse = errors.New("malformed JSONP response")
)

// MetricsRecorder はJSONP呼び出しのメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordJSONPRequest(result string, duration time.Duration)
}

// Fetcher はJSONP呼び出しのインターフェース。
// サービス層はこのインターフェースに依存し、テスト時にモックへ差し替える。
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, timeout time.Duration, out any) error
}

// ClientConfig はクライアントの設定パラメータ。
type ClientConfig struct {
	// Timeout はtimeout引数が0以下の場合に使う既定タイムアウト（デフォルト: 10秒）。
	Timeout time.Duration
	// Interval はAPI呼び出しの最低間隔。0の場合は間隔を空けない。
	Interval time.Duration
}

// Client はJSONP APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    MetricsRecorder
	limiter    *rate.Limiter
	timeout    time.Duration
	queue      fifoLock
	slot       callbackSlot
}

// NewClient はClientの新しいインスタンスを生成する。
// metricsはnilでもよい。
func NewClient(httpClient *http.Client, logger *slog.Logger, config ClientConfig, metrics MetricsRecorder) *Client {
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	c := &Client{
		httpClient: httpClient,
		logger:     logger,
		metrics:    metrics,
		timeout:    config.Timeout,
	}
	if config.Interval > 0 {
		c.limiter = rate.NewLimiter(rate.Every(config.Interval), 1)
	}
	return c
}

// Fetch はJSONP APIを呼び出し、コールバックに渡されたJSONをoutにデコードする。
// 呼び出しはFIFOで直列化され、前の呼び出しが終了するまで開始しない。
// タイムアウト・通信エラーのいずれの場合もコールバックは必ず除去され、後続の呼び出しは進む。
func (c *Client) Fetch(ctx context.Context, rawURL string, timeout time.Duration, out any) error {
	if timeout <= 0 {
		timeout = c.timeout
	}

	release, err := c.queue.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	start := time.Now()
	err = c.execute(ctx, rawURL, timeout, out)
	c.record(err, time.Since(start))

	if err != nil {
		c.logger.Warn("JSONP呼び出しに失敗しました",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
	}
	return err
}

// execute はコールバックを設置してから1回のJSONP呼び出しを行う。
func (c *Client) execute(parent context.Context, rawURL string, timeout time.Duration, out any) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	result := make(chan []byte, 1)
	if err := c.slot.install(upstream.CallbackName, func(payload []byte) {
		result <- payload
	}); err != nil {
		return err
	}
	defer c.slot.remove(upstream.CallbackName)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%w: リクエストの作成に失敗しました: %v", ErrNetwork, err)
	}
	req.Header.Set("User-Agent", "NogiBlog/1.0")
	req.Header.Set("Accept", "application/javascript, */*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.classify(parent, ctx, timeout, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTPステータス %d", ErrNetwork, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return c.classify(parent, ctx, timeout, err)
	}

	name, payload, err := parseJSONP(body)
	if err != nil {
		return err
	}
	if !c.slot.dispatch(name, payload) {
		return fmt.Errorf("%w: 想定外のコールバック名 %q", ErrMalformedResponse, name)
	}

	select {
	case data := <-result:
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return nil
	case <-ctx.Done():
		return c.classify(parent, ctx, timeout, ctx.Err())
	}
}

// classify はHTTPエラーをタイムアウト・キャンセル・通信エラーに分類する。
func (c *Client) classify(parent, ctx context.Context, timeout time.Duration, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %dms", ErrTimeout, timeout.Milliseconds())
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

// record は呼び出し結果をメトリクスに記録する。
func (c *Client) record(err error, d time.Duration) {
	if c.metrics == nil {
		return
	}
	result := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrTimeout):
		result = "timeout"
	case errors.Is(err, ErrMalformedResponse):
		result = "malformed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		result = "canceled"
	default:
		result = "network"
	}
	c.metrics.RecordJSONPRequest(result, d)
}

// parseJSONP は "name(<json>);" 形式のボディからコールバック名とJSONを取り出す。
func parseJSONP(body []byte) (string, []byte, error) {
	b := bytes.TrimSpace(body)
	b = bytes.TrimPrefix(b, []byte("/**/"))
	b = bytes.TrimSpace(b)
	b = bytes.TrimRight(b, "; \t\r\n")

	open := bytes.IndexByte(b, '(')
	if open <= 0 || b[len(b)-1] != ')' {
		return "", nil, fmt.Errorf("%w: コールバック呼び出し形式ではありません", ErrMalformedResponse)
	}

	name := string(bytes.TrimSpace(b[:open]))
	if !isCallbackName(name) {
		return "", nil, fmt.Errorf("%w: 不正なコールバック名 %q", ErrMalformedResponse, name)
	}

	payload := bytes.TrimSpace(b[open+1 : len(b)-1])
	if len(payload) == 0 {
		return "", nil, fmt.Errorf("%w: ペイロードが空です", ErrMalformedResponse)
	}
	return name, payload, nil
}

// isCallbackName はJavaScriptの識別子（ドット区切りを含む）として妥当かを判定する。
func isCallbackName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || r == '$' || r == '.':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
