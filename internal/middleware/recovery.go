package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/hitoshi/leadman/internal/metrics"
)

// NewRecoveryMiddleware はpanic発生時にプロセスクラッシュを防ぎ、
// 統一フォーマットの500レスポンスを返すミドルウェアを生成する。
//
// 最も外側に置くため、ログミドルウェアが記録できないpanic時の500はここで数える。
// 応答の書き込み開始後（CSVエクスポート中など）のpanicはボディを追記せず、ログのみ残す。
func NewRecoveryMiddleware(mc metrics.MetricsCollector) func(next http.Handler) http.Handler {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}

				slog.Error("panic recovered",
					slog.Any("panic", v),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Bool("response_started", rec.written),
					slog.String("stack", string(debug.Stack())),
				)
				mc.RecordHTTPStatus(http.StatusInternalServerError)

				if !rec.written {
					WriteInternalServerError(rec)
				}
			}()
			next.ServeHTTP(rec, r)
		})
	}
}
