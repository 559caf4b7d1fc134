package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/leadman/internal/model"
)

// PostgresCampaignRepo はPostgreSQLを使用したキャンペーンリポジトリ。
type PostgresCampaignRepo struct {
	db *sql.DB
}

// NewPostgresCampaignRepo はPostgresCampaignRepoを生成する。
func NewPostgresCampaignRepo(db *sql.DB) *PostgresCampaignRepo {
	return &PostgresCampaignRepo{db: db}
}

// List は全キャンペーンを名前順に返す。
func (r *PostgresCampaignRepo) List(ctx context.Context) ([]model.Campaign, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, description, created_at, updated_at FROM campaigns ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []model.Campaign
	for rows.Next() {
		var c model.Campaign
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan campaign row: %w", err)
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate campaign rows: %w", err)
	}
	return campaigns, nil
}

// FindByID は指定IDのキャンペーンを取得する。見つからない場合はnilを返す。
func (r *PostgresCampaignRepo) FindByID(ctx context.Context, id string) (*model.Campaign, error) {
	c := &model.Campaign{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at, updated_at FROM campaigns WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) || isInvalidUUID(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find campaign by ID: %w", err)
	}
	return c, nil
}

// Create はキャンペーンを作成する。名前が重複する場合はErrDuplicateを返す。
func (r *PostgresCampaignRepo) Create(ctx context.Context, c *model.Campaign) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO campaigns (id, name, description, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.Name, c.Description, c.CreatedAt, c.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert campaign: %w", err)
	}
	return nil
}

// Update はキャンペーンの名前と説明を更新する。
func (r *PostgresCampaignRepo) Update(ctx context.Context, c *model.Campaign) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE campaigns SET name = $2, description = $3, updated_at = $4 WHERE id = $1`,
		c.ID, c.Name, c.Description, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		if isInvalidUUID(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update campaign: %w", err)
	}
	return requireAffected(result)
}

// DeleteByID は指定IDのキャンペーンを削除する。紐づくリードのcampaign_idはNULLになる。
func (r *PostgresCampaignRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM campaigns WHERE id = $1`, id)
	if err != nil {
		if isInvalidUUID(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete campaign: %w", err)
	}
	return requireAffected(result)
}

// compile-time interface check
var _ CampaignRepository = (*PostgresCampaignRepo)(nil)
