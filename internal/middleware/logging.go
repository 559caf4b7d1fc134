package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hitoshi/leadman/internal/metrics"
)

// requestInfoContextKey はリクエストログ用の情報を格納するためのキー。
var requestInfoContextKey = contextKey("request_info")

// requestInfo は内側のハンドラーで判明した情報をログミドルウェアへ渡す。
// ガードが識別情報を注入したコンテキストは外側から見えないため、ポインタで共有する。
type requestInfo struct {
	mu     sync.Mutex
	userID string
}

func (ri *requestInfo) setUserID(id string) {
	ri.mu.Lock()
	ri.userID = id
	ri.mu.Unlock()
}

func (ri *requestInfo) getUserID() string {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	return ri.userID
}

func requestInfoFromContext(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(requestInfoContextKey).(*requestInfo)
	return info
}

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader はステータスコードを記録してから委譲する。
func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はデータを書き込む。WriteHeaderが未呼び出しの場合は200を記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// NewLoggingMiddleware はリクエストのJSON構造化ログを出力するミドルウェアを返す。
// ログにはmethod、path、status、duration_ms、user_id（認証済みの場合）を含む。
// mcが指定された場合はステータスコード別のレスポンス数も記録する。
func NewLoggingMiddleware(logger *slog.Logger, mc metrics.MetricsCollector) func(next http.Handler) http.Handler {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}
			info := &requestInfo{}
			ctx := context.WithValue(r.Context(), requestInfoContextKey, info)

			next.ServeHTTP(rec, r.WithContext(ctx))

			duration := time.Since(start)
			durationMs := float64(duration.Nanoseconds()) / float64(time.Millisecond)

			mc.RecordHTTPStatus(rec.statusCode)

			args := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", durationMs),
			}

			if userID := info.getUserID(); userID != "" {
				args = append(args, slog.String("user_id", userID))
			}

			// slogのログレベルをステータスコードに応じて変更
			level := slog.LevelInfo
			if rec.statusCode >= 500 {
				level = slog.LevelError
			} else if rec.statusCode >= 400 {
				level = slog.LevelWarn
			}

			logger.Log(r.Context(), level, "http_request", args...)
		})
	}
}
