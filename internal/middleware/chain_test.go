package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// newTestChain はルーターと同じ順序でミドルウェアを組んだchi.Routerを返す。
func newTestChain(t *testing.T, logger *slog.Logger, cfg RateLimiterConfig) *chi.Mux {
	t.Helper()
	rl := NewRateLimiter(cfg, logger)
	t.Cleanup(rl.Stop)

	r := chi.NewRouter()
	r.Use(NewLoggingMiddleware(logger))
	r.Use(NewRecoveryMiddleware(logger))
	r.Use(NewSecurityHeadersMiddleware())
	r.Use(NewCORSMiddleware("http://localhost:3000"))
	r.Use(rl.GeneralMiddleware())

	r.Get("/api/blogs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"request_id": RequestIDFromContext(r.Context())})
	})
	r.Get("/api/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	r.With(rl.HeavyMiddleware()).Post("/api/downloads", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	return r
}

func chainConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     100,
		GeneralBurst:    100,
		HeavyRate:       1,
		HeavyBurst:      1,
		CleanupInterval: time.Minute,
	}
}

func TestMiddlewareChain_SetsHeadersAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	r := newTestChain(t, newTestLogger(&buf), chainConfig())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, newClientRequest(http.MethodGet, "/api/blogs", "192.0.2.10"))

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("セキュリティヘッダーが付与されていない")
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Error("CORSヘッダーが付与されていない")
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body["request_id"] == "" || body["request_id"] != resp.Header.Get(RequestIDHeader) {
		t.Errorf("ハンドラーのリクエストID = %q, ヘッダー = %q", body["request_id"], resp.Header.Get(RequestIDHeader))
	}
}

func TestMiddlewareChain_PanicReturnsUnifiedError(t *testing.T) {
	var buf bytes.Buffer
	r := newTestChain(t, newTestLogger(&buf), chainConfig())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, newClientRequest(http.MethodGet, "/api/panic", "192.0.2.11"))

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want %q", body.Code, "INTERNAL_ERROR")
	}
	if body.RequestID == "" || body.RequestID != resp.Header.Get(RequestIDHeader) {
		t.Errorf("request_id = %q, ヘッダー = %q", body.RequestID, resp.Header.Get(RequestIDHeader))
	}

	logs := buf.String()
	if !strings.Contains(logs, "panic recovered") {
		t.Errorf("panicのログが出力されていない: %s", logs)
	}
	if !strings.Contains(logs, `"status":500`) {
		t.Errorf("リクエストログのstatusが500になっていない: %s", logs)
	}
}

func TestMiddlewareChain_OptionsBypassesHandler(t *testing.T) {
	var buf bytes.Buffer
	r := newTestChain(t, newTestLogger(&buf), chainConfig())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, newClientRequest(http.MethodOptions, "/api/blogs", "192.0.2.12"))

	if w.Result().StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNoContent)
	}
}

func TestMiddlewareChain_HeavyRouteLimitedSeparately(t *testing.T) {
	var buf bytes.Buffer
	r := newTestChain(t, newTestLogger(&buf), chainConfig())

	w1 := httptest.NewRecorder()
	r.ServeHTTP(w1, newClientRequest(http.MethodPost, "/api/downloads", "192.0.2.13"))
	if w1.Result().StatusCode != http.StatusAccepted {
		t.Fatalf("1回目 status = %d, want %d", w1.Result().StatusCode, http.StatusAccepted)
	}

	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, newClientRequest(http.MethodPost, "/api/downloads", "192.0.2.13"))
	if w2.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("2回目 status = %d, want %d", w2.Result().StatusCode, http.StatusTooManyRequests)
	}

	// 一般ルートはまだ通る
	w3 := httptest.NewRecorder()
	r.ServeHTTP(w3, newClientRequest(http.MethodGet, "/api/blogs", "192.0.2.13"))
	if w3.Result().StatusCode != http.StatusOK {
		t.Errorf("一般ルート status = %d, want %d", w3.Result().StatusCode, http.StatusOK)
	}
	if !strings.Contains(buf.String(), "rate limit exceeded") {
		t.Error("レート制限のログが出力されていない")
	}
}
