package middleware

import "net/http"

// apiContentSecurityPolicy はJSONとCSVのみを返すAPI向けのCSP。
// レスポンスがブラウザで直接開かれても、スクリプトや埋め込みを一切許可しない。
const apiContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'"

// NewSecurityHeadersMiddleware はセキュリティ関連のHTTPレスポンスヘッダーを付与するミドルウェアを返す。
// トークンやリードの個人情報を含むレスポンスをキャッシュさせないためCache-Controlも設定する。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", apiContentSecurityPolicy)
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			next.ServeHTTP(w, r)
		})
	}
}
