// Package formfield は管理者が編集できるリード登録フォームの項目定義を提供する。
package formfield

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/thejerf/abtime"

	"github.com/hitoshi/leadman/internal/model"
	"github.com/hitoshi/leadman/internal/repository"
	"github.com/hitoshi/leadman/internal/security"
)

const (
	maxNameLength        = 64
	maxLabelLength       = 255
	maxPlaceholderLength = 255
	maxOptions           = 50
	maxOptionLength      = 100
)

// reservedNames はリードの組み込み項目と衝突する項目名。
var reservedNames = map[string]bool{
	"id": true, "user_id": true, "campaign_id": true, "name": true, "phone_number": true,
	"listed": true, "ap": true, "mv": true, "repairs_needed": true, "bedrooms": true,
	"bathrooms": true, "condition_rating": true, "occupancy": true, "reason": true,
	"closing": true, "address": true, "additional_info": true, "status": true,
	"created_at": true, "updated_at": true,
}

// Input はフォーム項目の作成・更新の入力値。
type Input struct {
	Type        string
	Label       string
	Placeholder string
	Required    bool
	Options     []string
}

// Service はフォーム項目管理のサービス層。
// 呼び出し元で管理者権限を確認済みであること。
type Service struct {
	repo      repository.FormFieldRepository
	sanitizer security.TextSanitizerService
	clock     abtime.AbstractTime
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.FormFieldRepository, sanitizer security.TextSanitizerService, clock abtime.AbstractTime) *Service {
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	return &Service{repo: repo, sanitizer: sanitizer, clock: clock}
}

// Structure はフォームの全項目を表示順に返す。
func (s *Service) Structure(ctx context.Context) ([]model.FormField, error) {
	fields, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("フォーム項目の取得に失敗しました: %w", err)
	}
	if fields == nil {
		fields = []model.FormField{}
	}
	return fields, nil
}

// Create はフォーム項目を末尾に追加する。
func (s *Service) Create(ctx context.Context, name string, in Input) (*model.FormField, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	f, err := s.build(name, in)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now

	if err := s.repo.Create(ctx, f); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewValidationError("同じ名前のフォーム項目が既に存在します")
		}
		return nil, fmt.Errorf("フォーム項目の作成に失敗しました: %w", err)
	}

	slog.Info("form field created", slog.String("field_name", f.Name), slog.String("field_type", string(f.Type)))
	return f, nil
}

// Update は項目名以外の属性を置き換える。
func (s *Service) Update(ctx context.Context, name string, in Input) (*model.FormField, error) {
	name = strings.TrimSpace(name)

	current, err := s.repo.FindByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("フォーム項目の取得に失敗しました: %w", err)
	}
	if current == nil {
		return nil, model.NewFormFieldNotFoundError(name)
	}

	f, err := s.build(name, in)
	if err != nil {
		return nil, err
	}
	f.Position = current.Position
	f.CreatedAt = current.CreatedAt
	f.UpdatedAt = s.clock.Now().UTC()

	if err := s.repo.Update(ctx, f); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewFormFieldNotFoundError(name)
		}
		return nil, fmt.Errorf("フォーム項目の更新に失敗しました: %w", err)
	}
	return f, nil
}

// Delete はフォーム項目を削除する。
func (s *Service) Delete(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if err := s.repo.DeleteByName(ctx, name); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewFormFieldNotFoundError(name)
		}
		return fmt.Errorf("フォーム項目の削除に失敗しました: %w", err)
	}

	slog.Info("form field deleted", slog.String("field_name", name))
	return nil
}

// normalizeName は項目名を検証する。英小文字で始まり、英小文字・数字・アンダースコアのみ使用できる。
func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", model.NewValidationError("項目名は必須です")
	case len(name) > maxNameLength:
		return "", model.NewValidationError("項目名は64文字以内で入力してください")
	case reservedNames[name]:
		return "", model.NewValidationError("組み込み項目と同じ名前は使用できません")
	}
	for i, r := range name {
		lower := r >= 'a' && r <= 'z'
		if i == 0 && !lower {
			return "", model.NewValidationError("項目名は英小文字で始めてください")
		}
		if !lower && !(r >= '0' && r <= '9') && r != '_' {
			return "", model.NewValidationError("項目名には英小文字・数字・アンダースコアのみ使用できます")
		}
	}
	return name, nil
}

// build は入力値を検証・無害化してFormFieldを組み立てる。
func (s *Service) build(name string, in Input) (*model.FormField, error) {
	fieldType := model.FormFieldType(strings.TrimSpace(in.Type))
	if !fieldType.Valid() {
		return nil, model.NewValidationError("項目の種類が正しくありません")
	}

	label := s.sanitizer.Sanitize(in.Label)
	placeholder := s.sanitizer.Sanitize(in.Placeholder)
	switch {
	case label == "":
		return nil, model.NewValidationError("表示名は必須です")
	case utf8.RuneCountInString(label) > maxLabelLength:
		return nil, model.NewValidationError("表示名は255文字以内で入力してください")
	case utf8.RuneCountInString(placeholder) > maxPlaceholderLength:
		return nil, model.NewValidationError("プレースホルダーは255文字以内で入力してください")
	}

	options, err := s.options(fieldType, in.Options)
	if err != nil {
		return nil, err
	}

	return &model.FormField{
		Name:        name,
		Type:        fieldType,
		Label:       label,
		Placeholder: placeholder,
		Required:    in.Required,
		Options:     options,
	}, nil
}

// options は選択肢を検証する。selectは1件以上必須、それ以外の種類は指定できない。
func (s *Service) options(fieldType model.FormFieldType, raw []string) ([]string, error) {
	if fieldType != model.FieldTypeSelect {
		if len(raw) > 0 {
			return nil, model.NewValidationError("選択肢はselect項目のみ指定できます")
		}
		return []string{}, nil
	}

	if len(raw) == 0 {
		return nil, model.NewValidationError("select項目には選択肢が必要です")
	}
	if len(raw) > maxOptions {
		return nil, model.NewValidationError("選択肢は50件以内で指定してください")
	}

	seen := make(map[string]bool, len(raw))
	options := make([]string, 0, len(raw))
	for _, o := range raw {
		o = s.sanitizer.Sanitize(o)
		switch {
		case o == "":
			return nil, model.NewValidationError("空の選択肢は指定できません")
		case utf8.RuneCountInString(o) > maxOptionLength:
			return nil, model.NewValidationError("選択肢は100文字以内で入力してください")
		case seen[o]:
			return nil, model.NewValidationError(fmt.Sprintf("選択肢が重複しています: %s", o))
		}
		seen[o] = true
		options = append(options, o)
	}
	return options, nil
}
