package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hitoshi/leadman/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// StatusForCode はエラーコードに対応するHTTPステータスコードを返す。
func StatusForCode(code string) int {
	switch code {
	case model.ErrCodeInvalidCredentials,
		model.ErrCodeUnauthenticated,
		model.ErrCodeInvalidToken,
		model.ErrCodeTokenExpired:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeAccountExists:
		return http.StatusConflict
	case model.ErrCodeSelfDemotionForbidden,
		model.ErrCodeSelfDeleteForbidden,
		model.ErrCodeValidationFailed,
		model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeUserNotFound,
		model.ErrCodeLeadNotFound,
		model.ErrCodeCampaignNotFound,
		model.ErrCodeFormFieldNotFound:
		return http.StatusNotFound
	case model.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case model.ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError はerrをAPIErrorとして書き込む。
// APIError以外のエラーはINTERNAL_ERRORとして扱い、詳細は応答に含めない。
func WriteError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		WriteInternalServerError(w)
		return
	}
	WriteErrorResponse(w, StatusForCode(apiErr.Code), apiErr)
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// 503の場合はRetry-Afterヘッダーを付与する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	if statusCode == http.StatusServiceUnavailable && w.Header().Get("Retry-After") == "" {
		w.Header().Set("Retry-After", "1")
	}
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
