// Package repository はデータ永続化のインターフェースとPostgreSQL実装を提供する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/leadman/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindPasswordHash はメールアドレスに対応するユーザーとパスワードハッシュを返す。
	// 見つからない、またはハッシュ未設定の場合はnilと空文字を返す。
	FindPasswordHash(ctx context.Context, email string) (*model.User, string, error)

	// Create はユーザーを作成する。メールアドレスが登録済みの場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User, passwordHash string) error

	// UpsertProfile は外部ストアで認証済みのユーザーをローカルに反映する。
	UpsertProfile(ctx context.Context, user *model.User) error

	// ListWithStats は管理画面向けにリード件数と管理者フラグ付きのユーザー一覧を返す。
	ListWithStats(ctx context.Context, offset, limit int) ([]model.UserSummary, error)

	// Count は登録ユーザー数を返す。
	Count(ctx context.Context) (int, error)

	// DeleteByID は指定IDのユーザーと所有するリードを削除する。
	// 見つからない場合はErrNotFoundを返す。
	DeleteByID(ctx context.Context, id string) error
}

// RoleRepository は管理者ロールの永続化インターフェース。
type RoleRepository interface {
	// FindByUserID は指定ユーザーのロールを取得する。レコードがない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.RoleAssignment, error)

	// Upsert はロールを単一文でUPSERTする。ユーザーが存在しない場合はErrNotFoundを返す。
	Upsert(ctx context.Context, userID string, isAdmin bool) (*model.RoleAssignment, error)

	// CountAdmins は管理者数を返す。
	CountAdmins(ctx context.Context) (int, error)
}

// LeadRepository はリードデータの永続化インターフェース。
type LeadRepository interface {
	// FindByID は指定IDのリードを登録者情報付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.LeadWithOwner, error)

	// List は条件に一致するリードをcreated_at降順で返し、条件に一致する総件数も返す。
	List(ctx context.Context, filter model.LeadFilter) ([]model.LeadWithOwner, int, error)

	// ListForExport はユーザーの全リードをcreated_at降順で返す。
	ListForExport(ctx context.Context, userID string) ([]model.LeadWithOwner, error)

	// FindByPhoneDigits は正規化済み電話番号が一致するリードを返す。
	// userIDが空の場合は全ユーザーを対象とする。
	FindByPhoneDigits(ctx context.Context, digits, userID string) ([]model.LeadWithOwner, error)

	// Create はリードを作成する。
	Create(ctx context.Context, lead *model.Lead) error

	// Update はリードの入力項目とステータスを更新する。見つからない場合はErrNotFoundを返す。
	Update(ctx context.Context, lead *model.Lead) error

	// UpdateStatus はステータスのみを更新する。見つからない場合はErrNotFoundを返す。
	UpdateStatus(ctx context.Context, id string, status model.LeadStatus) error

	// DeleteByID は指定IDのリードを削除する。見つからない場合はErrNotFoundを返す。
	DeleteByID(ctx context.Context, id string) error

	// Stats はステータス別件数とsince以降の登録件数を返す。
	// userIDが空の場合は全ユーザーを集計する。
	Stats(ctx context.Context, userID string, since time.Time) (*model.LeadStats, error)

	// Leaderboard は[from, to)に登録されたリード件数の多い順にユーザーを返す。
	// toがゼロ値の場合は上限なし。
	Leaderboard(ctx context.Context, from, to time.Time, limit int) ([]model.LeaderboardEntry, error)
}

// NoteRepository はリードメモの永続化インターフェース。
type NoteRepository interface {
	// Create はメモを作成する。
	Create(ctx context.Context, note *model.LeadNote) error

	// ListByLeadID はリードのメモを新しい順に返す。
	ListByLeadID(ctx context.Context, leadID string) ([]model.LeadNote, error)
}

// CampaignRepository はキャンペーンの永続化インターフェース。
type CampaignRepository interface {
	// List は全キャンペーンを名前順に返す。
	List(ctx context.Context) ([]model.Campaign, error)

	// FindByID は指定IDのキャンペーンを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Campaign, error)

	// Create はキャンペーンを作成する。名前が重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, campaign *model.Campaign) error

	// Update はキャンペーンを更新する。見つからない場合はErrNotFoundを返す。
	Update(ctx context.Context, campaign *model.Campaign) error

	// DeleteByID は指定IDのキャンペーンを削除する。見つからない場合はErrNotFoundを返す。
	DeleteByID(ctx context.Context, id string) error
}

// FormFieldRepository はリード登録フォーム項目の永続化インターフェース。
type FormFieldRepository interface {
	// List は全項目を表示順に返す。
	List(ctx context.Context) ([]model.FormField, error)

	// FindByName は指定名の項目を取得する。見つからない場合はnilを返す。
	FindByName(ctx context.Context, name string) (*model.FormField, error)

	// Create は項目を末尾に追加する。同名の項目が存在する場合はErrDuplicateを返す。
	Create(ctx context.Context, field *model.FormField) error

	// Update は項目名以外の属性を更新する。見つからない場合はErrNotFoundを返す。
	Update(ctx context.Context, field *model.FormField) error

	// DeleteByName は指定名の項目を削除する。見つからない場合はErrNotFoundを返す。
	DeleteByName(ctx context.Context, name string) error
}
