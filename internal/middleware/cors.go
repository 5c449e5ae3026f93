package middleware

import "net/http"

const (
	corsAllowMethods   = "GET, POST, PUT, DELETE, OPTIONS"
	corsAllowHeaders   = "Content-Type, X-Request-ID"
	corsExposeHeaders  = "X-Request-ID, Content-Disposition, Retry-After"
	corsPreflightCache = "86400"
)

// NewCORSMiddleware はallowedOriginだけを許可するCORSミドルウェアを返す。
// Cookieを使わないのでcredentialsは許可しない。
// allowedOriginが空ならCORSヘッダーを付けない(同一オリジン配信のみ)。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allowedOrigin == "" {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowedOrigin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Expose-Headers", corsExposeHeaders)

			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Max-Age", corsPreflightCache)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
