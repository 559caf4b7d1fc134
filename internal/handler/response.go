// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/leadman/internal/middleware"
	"github.com/hitoshi/leadman/internal/model"
	"github.com/hitoshi/leadman/internal/repository"
)

// maxRequestBodyBytes はJSONリクエストボディの上限サイズ。
const maxRequestBodyBytes = 1 << 20

// paginationResponse はページ情報のAPIレスポンス。
type paginationResponse struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func toPaginationResponse(p model.Pagination) paginationResponse {
	return paginationResponse{
		Page:       p.Page,
		Limit:      p.Limit,
		Total:      p.Total,
		TotalPages: p.TotalPages,
	}
}

// writeJSON はvをJSONとして書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをvにデコードする。
// 解析に失敗した場合はINVALID_REQUESTを書き込んでfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteError(w, model.NewInvalidRequestError())
		return false
	}
	return true
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// ストアへの一時的な到達失敗はSTORE_UNAVAILABLEとして扱う。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteError(w, apiErr)
		return
	}

	if repository.IsTransient(err) {
		slog.Warn("store unavailable",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		middleware.WriteError(w, model.NewStoreUnavailableError())
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// queryInt はクエリパラメータを整数として返す。未指定または不正な値の場合は0を返す。
func queryInt(r *http.Request, key string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return v
}

// formatTime はレスポンス用にUTCのRFC3339形式へ変換する。
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
