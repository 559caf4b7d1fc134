package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/leadman/internal/model"
)

const formFieldSelectColumns = `SELECT field_name, field_type, field_label, field_placeholder, is_required, field_options, position, created_at, updated_at FROM form_fields`

// PostgresFormFieldRepo はPostgreSQLを使用したフォーム項目リポジトリ。
type PostgresFormFieldRepo struct {
	db *sql.DB
}

// NewPostgresFormFieldRepo はPostgresFormFieldRepoを生成する。
func NewPostgresFormFieldRepo(db *sql.DB) *PostgresFormFieldRepo {
	return &PostgresFormFieldRepo{db: db}
}

func scanFormField(row rowScanner) (*model.FormField, error) {
	f := &model.FormField{}
	var fieldType string
	var options []string
	if err := row.Scan(&f.Name, &fieldType, &f.Label, &f.Placeholder, &f.Required,
		pq.Array(&options), &f.Position, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	f.Type = model.FormFieldType(fieldType)
	if options == nil {
		options = []string{}
	}
	f.Options = options
	return f, nil
}

// List は全項目を表示順に返す。
func (r *PostgresFormFieldRepo) List(ctx context.Context) ([]model.FormField, error) {
	rows, err := r.db.QueryContext(ctx, formFieldSelectColumns+` ORDER BY position, field_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list form fields: %w", err)
	}
	defer rows.Close()

	var fields []model.FormField
	for rows.Next() {
		f, err := scanFormField(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan form field row: %w", err)
		}
		fields = append(fields, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate form field rows: %w", err)
	}
	return fields, nil
}

// FindByName は指定名の項目を取得する。見つからない場合はnilを返す。
func (r *PostgresFormFieldRepo) FindByName(ctx context.Context, name string) (*model.FormField, error) {
	f, err := scanFormField(r.db.QueryRowContext(ctx, formFieldSelectColumns+` WHERE field_name = $1`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find form field by name: %w", err)
	}
	return f, nil
}

// Create は項目を末尾に追加する。表示順は既存の最大値+1を同一文で採番する。
func (r *PostgresFormFieldRepo) Create(ctx context.Context, f *model.FormField) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO form_fields (field_name, field_type, field_label, field_placeholder, is_required, field_options, position, created_at, updated_at)
		 SELECT $1, $2, $3, $4, $5, $6, COALESCE(MAX(position), -1) + 1, $7, $8 FROM form_fields
		 RETURNING position`,
		f.Name, string(f.Type), f.Label, f.Placeholder, f.Required, pq.Array(f.Options), f.CreatedAt, f.UpdatedAt,
	).Scan(&f.Position)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert form field: %w", err)
	}
	return nil
}

// Update は項目名以外の属性を更新する。
func (r *PostgresFormFieldRepo) Update(ctx context.Context, f *model.FormField) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE form_fields
		 SET field_type = $2, field_label = $3, field_placeholder = $4, is_required = $5, field_options = $6, updated_at = $7
		 WHERE field_name = $1`,
		f.Name, string(f.Type), f.Label, f.Placeholder, f.Required, pq.Array(f.Options), f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update form field: %w", err)
	}
	return requireAffected(result)
}

// DeleteByName は指定名の項目を削除する。
func (r *PostgresFormFieldRepo) DeleteByName(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM form_fields WHERE field_name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete form field: %w", err)
	}
	return requireAffected(result)
}

// compile-time interface check
var _ FormFieldRepository = (*PostgresFormFieldRepo)(nil)
