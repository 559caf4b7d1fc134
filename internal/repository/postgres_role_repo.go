package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/leadman/internal/model"
)

// PostgresRoleRepo はPostgreSQLを使用した管理者ロールリポジトリ。
type PostgresRoleRepo struct {
	db *sql.DB
}

// NewPostgresRoleRepo はPostgresRoleRepoを生成する。
func NewPostgresRoleRepo(db *sql.DB) *PostgresRoleRepo {
	return &PostgresRoleRepo{db: db}
}

// FindByUserID は指定ユーザーのロールを取得する。レコードがない場合はnilを返す。
func (r *PostgresRoleRepo) FindByUserID(ctx context.Context, userID string) (*model.RoleAssignment, error) {
	role := &model.RoleAssignment{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, is_admin, updated_at FROM admin_roles WHERE user_id = $1`,
		userID,
	).Scan(&role.UserID, &role.IsAdmin, &role.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) || isInvalidUUID(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ロールの取得に失敗しました: %w", err)
	}

	return role, nil
}

// Upsert はUNIQUE(user_id)制約を利用したINSERT ON CONFLICTでロールを設定する。
// 単一文のため同一ユーザーへの同時書き込みは到着順に直列化され、最後の書き込みが残る。
func (r *PostgresRoleRepo) Upsert(ctx context.Context, userID string, isAdmin bool) (*model.RoleAssignment, error) {
	role := &model.RoleAssignment{}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO admin_roles (user_id, is_admin, created_at, updated_at)
		 VALUES ($1, $2, now(), now())
		 ON CONFLICT (user_id) DO UPDATE
		 SET is_admin = EXCLUDED.is_admin, updated_at = EXCLUDED.updated_at
		 RETURNING user_id, is_admin, updated_at`,
		userID, isAdmin,
	).Scan(&role.UserID, &role.IsAdmin, &role.UpdatedAt)

	if isForeignKeyViolation(err) || isInvalidUUID(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ロールの更新に失敗しました: %w", err)
	}

	return role, nil
}

// CountAdmins は管理者数を返す。
func (r *PostgresRoleRepo) CountAdmins(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM admin_roles WHERE is_admin = true`,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("管理者数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ RoleRepository = (*PostgresRoleRepo)(nil)
