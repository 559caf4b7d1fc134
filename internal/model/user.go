// Package model はドメインモデルを定義する。
package model

import (
	"time"

	"github.com/google/uuid"
)

// Identity は認証済みプリンシパルを表す。
// 資格情報ストアが所有し、それ以外の層は読み取り専用のコピーのみを保持する。
type Identity struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// User は管理画面で扱うユーザーアカウントを表す。
// パスワードハッシュは資格情報ストアの内部でのみ扱い、このモデルには含めない。
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RoleAssignment はユーザーIDと管理者フラグの紐付けを表す。
// レコードが存在しない場合は非管理者として扱う。
type RoleAssignment struct {
	UserID    string
	IsAdmin   bool
	UpdatedAt time.Time
}

// RequestIdentity はセッション検証を通過したリクエストに紐づく識別情報。
// 1リクエストの間だけ存在し、永続化されない。
// IsAdminはルートガードが必要になった時点で解決する。
type RequestIdentity struct {
	ID            string
	Email         string
	IsAdmin       bool
	AdminResolved bool
	ExpiresAt     time.Time
}

// UserSummary は管理画面のユーザー一覧に表示する集計付きユーザー情報。
type UserSummary struct {
	User
	IsAdmin   bool
	LeadCount int
}

// CanonicalUserID はユーザーIDをUUIDの正規形（小文字・ハイフン区切り）に変換する。
// 大文字や波括弧、ハイフンなしの表記も同じIDとして扱う。
// UUIDとして解釈できない場合はfalseを返す。
func CanonicalUserID(id string) (string, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}

// SameUser は2つのユーザーIDが同一ユーザーを指すかを返す。
func SameUser(a, b string) bool {
	if a == b {
		return true
	}
	ca, okA := CanonicalUserID(a)
	cb, okB := CanonicalUserID(b)
	return okA && okB && ca == cb
}
