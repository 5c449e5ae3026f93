// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// トランスポート・サービス層・ダウンロード処理から利用する。
type MetricsCollector interface {
	RecordJSONPRequest(result string, duration time.Duration)
	RecordStaticFallback(resource string)
	RecordCommentPage()
	RecordCommentPostScanned()
	RecordImageFetch(success bool)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	jsonpRequests      *prometheus.CounterVec
	jsonpLatency       prometheus.Histogram
	staticFallback     *prometheus.CounterVec
	commentPages       prometheus.Counter
	commentPostScanned prometheus.Counter
	imagesFetched      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		jsonpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nogiblog_jsonp_requests_total",
			Help: "結果別のJSONP呼び出し数",
		}, []string{"result"}),
		jsonpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nogiblog_jsonp_latency_seconds",
			Help:    "JSONP呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		staticFallback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nogiblog_static_fallback_total",
			Help: "ライブ取得に失敗して同梱データを返した回数",
		}, []string{"resource"}),
		commentPages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nogiblog_comment_pages_total",
			Help: "取得したコメントページの合計数",
		}),
		commentPostScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nogiblog_comment_posts_scanned_total",
			Help: "コメントを走査した記事の合計数",
		}),
		imagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nogiblog_images_fetched_total",
			Help: "結果別の画像取得数",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.jsonpRequests,
		c.jsonpLatency,
		c.staticFallback,
		c.commentPages,
		c.commentPostScanned,
		c.imagesFetched,
	)

	return c
}

// RecordJSONPRequest はJSONP呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordJSONPRequest(result string, duration time.Duration) {
	c.jsonpRequests.WithLabelValues(result).Inc()
	c.jsonpLatency.Observe(duration.Seconds())
}

// RecordStaticFallback は同梱データへのフォールバックを記録する。
func (c *Collector) RecordStaticFallback(resource string) {
	c.staticFallback.WithLabelValues(resource).Inc()
}

// RecordCommentPage はコメントページの取得を記録する。
func (c *Collector) RecordCommentPage() {
	c.commentPages.Inc()
}

// RecordCommentPostScanned は1記事分のコメント走査を記録する。
func (c *Collector) RecordCommentPostScanned() {
	c.commentPostScanned.Inc()
}

// RecordImageFetch は画像取得の成否を記録する。
func (c *Collector) RecordImageFetch(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.imagesFetched.WithLabelValues(result).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
