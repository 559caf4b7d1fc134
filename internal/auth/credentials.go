package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/hitoshi/leadman/internal/model"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 6

// maxPasswordBytes はbcryptが扱えるパスワードの最大バイト数。
const maxPasswordBytes = 72

// maxEmailLength はメールアドレスの最大長（usersテーブルの列長）。
const maxEmailLength = 255

var (
	// ErrInvalidCredentials はメールアドレス未登録またはパスワード不一致を示す。
	// 両者を区別しないことでアカウントの存在を推測させない。
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrAccountExists は登録済みのメールアドレスで新規登録しようとしたことを示す。
	ErrAccountExists = errors.New("auth: account already exists")
	// ErrStoreUnavailable は外部の資格情報ストアが一時的に応答できないことを示す。
	ErrStoreUnavailable = errors.New("auth: credential store unavailable")
)

// CredentialStore はメールアドレスとパスワードによる本人確認を行う資格情報ストア。
// 成功時はストアが管理するIdentityを返す。
type CredentialStore interface {
	// VerifyPassword はメールアドレスとパスワードを照合する。
	// 未登録・不一致のいずれもErrInvalidCredentialsを返す。
	VerifyPassword(ctx context.Context, email, password string) (model.Identity, error)

	// CreateAccount はアカウントを作成する。登録済みの場合はErrAccountExistsを返す。
	CreateAccount(ctx context.Context, email, password string) (model.Identity, error)
}

// NormalizeEmail はメールアドレスをNFC正規化し、前後の空白を除去して小文字化する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(email)))
}

// ValidateEmail は正規化済みメールアドレスの形式を検証する。
func ValidateEmail(email string) error {
	if email == "" {
		return model.NewValidationError("メールアドレスは必須です")
	}
	if len(email) > maxEmailLength {
		return model.NewValidationError("メールアドレスが長すぎます")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return model.NewValidationError("メールアドレスの形式が正しくありません")
	}
	return nil
}

// ValidatePassword はパスワードの長さを検証する。長さは文字数で数える。
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return model.NewValidationError("パスワードは6文字以上で入力してください")
	}
	if len(password) > maxPasswordBytes {
		return model.NewValidationError("パスワードが長すぎます")
	}
	return nil
}
