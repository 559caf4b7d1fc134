package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// corsAllowedMethods はleadmanのAPIが使用するメソッド。
var corsAllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}

// corsAllowedHeaders はクライアントが送信するリクエストヘッダー。
// トークンはBearerまたはCookie、Cookieセッションの場合はCSRFトークンを付与する。
var corsAllowedHeaders = []string{"Content-Type", "Authorization", csrfHeaderName}

// corsExposedHeaders はブラウザから参照させるレスポンスヘッダー。
// レート制限・ストア障害時の再試行間隔とCSVエクスポートのファイル名。
var corsExposedHeaders = []string{"Retry-After", "Content-Disposition"}

// CORSConfig はCORSミドルウェアの設定。
type CORSConfig struct {
	// AllowedOrigins は許可するオリジン（営業用ダッシュボード、管理画面など）。
	// credentials送信と共存するため、ワイルドカード(*)は使用しない。
	AllowedOrigins []string
	// MaxAge はプリフライト結果のキャッシュ期間。0以下の場合は24時間。
	MaxAge time.Duration
}

// NewCORSMiddleware は許可リストに含まれるオリジンに対するCORSミドルウェアを返す。
// 許可されたオリジンの場合のみ、リクエストのOriginをそのまま返す。
// OPTIONSプリフライトリクエストには204で応答する。
func NewCORSMiddleware(cfg CORSConfig) func(next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" && o != "*" {
			allowed[o] = true
		}
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}

	methods := strings.Join(corsAllowedMethods, ", ")
	headers := strings.Join(corsAllowedHeaders, ", ")
	exposed := strings.Join(corsExposedHeaders, ", ")
	maxAgeSeconds := strconv.Itoa(int(maxAge / time.Second))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Origin")

			if origin := r.Header.Get("Origin"); allowed[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", methods)
				w.Header().Set("Access-Control-Allow-Headers", headers)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Expose-Headers", exposed)
				w.Header().Set("Access-Control-Max-Age", maxAgeSeconds)
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
