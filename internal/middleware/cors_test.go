package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveCORS(t *testing.T, origin, method string) (*http.Response, bool) {
	t.Helper()
	called := false
	h := NewCORSMiddleware(origin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, "/api/blogs", nil))
	return w.Result(), called
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	resp, called := serveCORS(t, "http://localhost:5173", http.MethodOptions)

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	if called {
		t.Error("プリフライトで後段のハンドラーが呼ばれてはいけない")
	}

	want := map[string]string{
		"Access-Control-Allow-Origin":   "http://localhost:5173",
		"Access-Control-Allow-Methods":  "GET, POST, PUT, DELETE, OPTIONS",
		"Access-Control-Allow-Headers":  "Content-Type, X-Request-ID",
		"Access-Control-Expose-Headers": "X-Request-ID, Content-Disposition, Retry-After",
		"Access-Control-Max-Age":        "86400",
		"Vary":                          "Origin",
	}
	for k, v := range want {
		if got := resp.Header.Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
	if got := resp.Header.Get("Access-Control-Allow-Credentials"); got != "" {
		t.Errorf("Access-Control-Allow-Credentials = %q, want empty", got)
	}
}

func TestCORSMiddleware_SimpleRequest(t *testing.T) {
	resp, called := serveCORS(t, "https://app.example.com", http.MethodGet)

	if !called {
		t.Fatal("GETは後段のハンドラーに渡るべき")
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	// プリフライト専用ヘッダーは通常レスポンスには付けない
	if got := resp.Header.Get("Access-Control-Allow-Methods"); got != "" {
		t.Errorf("Access-Control-Allow-Methods = %q, want empty", got)
	}
}

func TestCORSMiddleware_EmptyOriginDisablesCORS(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodOptions} {
		resp, called := serveCORS(t, "", method)
		if !called {
			t.Errorf("%s: 後段のハンドラーに渡るべき", method)
		}
		if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("%s: Access-Control-Allow-Origin = %q, want empty", method, got)
		}
	}
}
