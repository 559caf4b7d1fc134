// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, lead, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	ErrCodeAccountExists         = "ACCOUNT_EXISTS"
	ErrCodeUnauthenticated       = "UNAUTHENTICATED"
	ErrCodeInvalidToken          = "INVALID_TOKEN"
	ErrCodeTokenExpired          = "TOKEN_EXPIRED"
	ErrCodeForbidden             = "FORBIDDEN"
	ErrCodeSelfDemotionForbidden = "SELF_DEMOTION_FORBIDDEN"
	ErrCodeSelfDeleteForbidden   = "SELF_DELETE_FORBIDDEN"
	ErrCodeStoreUnavailable      = "STORE_UNAVAILABLE"
	ErrCodeValidationFailed      = "VALIDATION_FAILED"
	ErrCodeInvalidRequest        = "INVALID_REQUEST"
	ErrCodeUserNotFound          = "USER_NOT_FOUND"
	ErrCodeLeadNotFound          = "LEAD_NOT_FOUND"
	ErrCodeCampaignNotFound      = "CAMPAIGN_NOT_FOUND"
	ErrCodeFormFieldNotFound     = "FORM_FIELD_NOT_FOUND"
	ErrCodeRateLimitExceeded     = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal              = "INTERNAL_ERROR"
)

// HasCode はerrのチェーンに指定コードのAPIErrorが含まれるかを返す。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// 未登録のメールアドレスとパスワード誤りを区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewAccountExistsError は登録済みメールアドレスでの新規登録エラーを生成する。
func NewAccountExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountExists,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログイン画面からログインしてください。",
	}
}

// NewUnauthenticatedError はトークン未提示エラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidTokenError は不正なトークンエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "認証トークンが無効です。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewTokenExpiredError は有効期限切れトークンエラーを生成する。
func NewTokenExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenExpired,
		Message:  "認証トークンの有効期限が切れています。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "管理者権限が必要です。",
		Category: "auth",
		Action:   "管理者に権限の付与を依頼してください。",
	}
}

// NewSelfDemotionForbiddenError は自分自身の管理者権限を外そうとした場合のエラーを生成する。
func NewSelfDemotionForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeSelfDemotionForbidden,
		Message:  "自分自身の管理者権限は解除できません。",
		Category: "auth",
		Action:   "他の管理者に依頼してください。",
	}
}

// NewSelfDeleteForbiddenError は自分自身のアカウントを管理画面から削除しようとした場合のエラーを生成する。
func NewSelfDeleteForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeSelfDeleteForbidden,
		Message:  "自分自身のアカウントは削除できません。",
		Category: "auth",
		Action:   "他の管理者に依頼してください。",
	}
}

// NewStoreUnavailableError はストアへの到達失敗（一時的障害）エラーを生成する。
// 権限なし・未認証とは区別され、呼び出し元は再試行できる。
func NewStoreUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnavailable,
		Message:  "認証情報を確認できませんでした。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力内容に誤りがあります: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewLeadNotFoundError はリードが見つからない場合のエラーを生成する。
func NewLeadNotFoundError(leadID string) *APIError {
	return &APIError{
		Code:     ErrCodeLeadNotFound,
		Message:  fmt.Sprintf("指定されたリードが見つかりません: %s", leadID),
		Category: "lead",
		Action:   "リードIDを確認してください。",
	}
}

// NewCampaignNotFoundError はキャンペーンが見つからない場合のエラーを生成する。
func NewCampaignNotFoundError(campaignID string) *APIError {
	return &APIError{
		Code:     ErrCodeCampaignNotFound,
		Message:  fmt.Sprintf("指定されたキャンペーンが見つかりません: %s", campaignID),
		Category: "lead",
		Action:   "キャンペーンIDを確認してください。",
	}
}

// NewFormFieldNotFoundError はフォーム項目が見つからない場合のエラーを生成する。
func NewFormFieldNotFoundError(fieldName string) *APIError {
	return &APIError{
		Code:     ErrCodeFormFieldNotFound,
		Message:  fmt.Sprintf("指定されたフォーム項目が見つかりません: %s", fieldName),
		Category: "lead",
		Action:   "項目名を確認してください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewRateLimitExceededError はレート制限超過エラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
}
