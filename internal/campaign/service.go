// Package campaign はリード獲得経路（キャンペーン）の管理を提供する。
package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/thejerf/abtime"

	"github.com/hitoshi/leadman/internal/model"
	"github.com/hitoshi/leadman/internal/repository"
	"github.com/hitoshi/leadman/internal/security"
)

const (
	maxNameLength        = 255
	maxDescriptionLength = 1000
)

// Service はキャンペーン管理のサービス層。
type Service struct {
	repo      repository.CampaignRepository
	sanitizer security.TextSanitizerService
	clock     abtime.AbstractTime
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.CampaignRepository, sanitizer security.TextSanitizerService, clock abtime.AbstractTime) *Service {
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	return &Service{repo: repo, sanitizer: sanitizer, clock: clock}
}

// List は全キャンペーンを名前順に返す。
func (s *Service) List(ctx context.Context) ([]model.Campaign, error) {
	campaigns, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("キャンペーン一覧の取得に失敗しました: %w", err)
	}
	if campaigns == nil {
		campaigns = []model.Campaign{}
	}
	return campaigns, nil
}

// Create はキャンペーンを作成する。名前が重複する場合は検証エラーを返す。
func (s *Service) Create(ctx context.Context, name, description string) (*model.Campaign, error) {
	name, description, err := s.normalize(name, description)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	c := &model.Campaign{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewValidationError("同じ名前のキャンペーンが既に存在します")
		}
		return nil, fmt.Errorf("キャンペーンの作成に失敗しました: %w", err)
	}

	slog.Info("campaign created", slog.String("campaign_id", c.ID))
	return c, nil
}

// Update はキャンペーンの名前と説明を更新する。
func (s *Service) Update(ctx context.Context, id, name, description string) (*model.Campaign, error) {
	name, description, err := s.normalize(name, description)
	if err != nil {
		return nil, err
	}

	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("キャンペーンの取得に失敗しました: %w", err)
	}
	if current == nil {
		return nil, model.NewCampaignNotFoundError(id)
	}

	current.Name = name
	current.Description = description
	current.UpdatedAt = s.clock.Now().UTC()

	if err := s.repo.Update(ctx, current); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, model.NewValidationError("同じ名前のキャンペーンが既に存在します")
		case errors.Is(err, repository.ErrNotFound):
			return nil, model.NewCampaignNotFoundError(id)
		}
		return nil, fmt.Errorf("キャンペーンの更新に失敗しました: %w", err)
	}
	return current, nil
}

// Delete はキャンペーンを削除する。紐づくリードのキャンペーンは未設定になる。
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewCampaignNotFoundError(id)
		}
		return fmt.Errorf("キャンペーンの削除に失敗しました: %w", err)
	}

	slog.Info("campaign deleted", slog.String("campaign_id", id))
	return nil
}

func (s *Service) normalize(name, description string) (string, string, error) {
	name = s.sanitizer.Sanitize(name)
	description = s.sanitizer.Sanitize(description)

	switch {
	case name == "":
		return "", "", model.NewValidationError("キャンペーン名は必須です")
	case utf8.RuneCountInString(name) > maxNameLength:
		return "", "", model.NewValidationError("キャンペーン名は255文字以内で入力してください")
	case utf8.RuneCountInString(description) > maxDescriptionLength:
		return "", "", model.NewValidationError("説明は1000文字以内で入力してください")
	}
	return name, description, nil
}
