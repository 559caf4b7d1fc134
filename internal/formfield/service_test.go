package formfield

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-test/deep"
	"github.com/thejerf/abtime"

	"github.com/hitoshi/leadman/internal/model"
	"github.com/hitoshi/leadman/internal/repository"
	"github.com/hitoshi/leadman/internal/security"
)

// --- モック定義 ---

type mockFormFieldRepo struct {
	listFn         func(ctx context.Context) ([]model.FormField, error)
	findByNameFn   func(ctx context.Context, name string) (*model.FormField, error)
	createFn       func(ctx context.Context, f *model.FormField) error
	updateFn       func(ctx context.Context, f *model.FormField) error
	deleteByNameFn func(ctx context.Context, name string) error
	createCalls    int
}

func (m *mockFormFieldRepo) List(ctx context.Context) ([]model.FormField, error) {
	return m.listFn(ctx)
}

func (m *mockFormFieldRepo) FindByName(ctx context.Context, name string) (*model.FormField, error) {
	return m.findByNameFn(ctx, name)
}

func (m *mockFormFieldRepo) Create(ctx context.Context, f *model.FormField) error {
	m.createCalls++
	if m.createFn == nil {
		return nil
	}
	return m.createFn(ctx, f)
}

func (m *mockFormFieldRepo) Update(ctx context.Context, f *model.FormField) error {
	if m.updateFn == nil {
		return nil
	}
	return m.updateFn(ctx, f)
}

func (m *mockFormFieldRepo) DeleteByName(ctx context.Context, name string) error {
	return m.deleteByNameFn(ctx, name)
}

// --- テスト ---

var testNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestService(repo *mockFormFieldRepo) *Service {
	return NewService(repo, security.NewTextSanitizer(), abtime.NewManualAtTime(testNow))
}

func TestStructure_EmptyIsNonNil(t *testing.T) {
	svc := newTestService(&mockFormFieldRepo{
		listFn: func(ctx context.Context) ([]model.FormField, error) { return nil, nil },
	})

	got, err := svc.Structure(context.Background())
	if err != nil {
		t.Fatalf("Structure() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Structure() = %#v, want empty slice", got)
	}
}

func TestCreate_SelectField(t *testing.T) {
	var stored *model.FormField
	repo := &mockFormFieldRepo{
		createFn: func(ctx context.Context, f *model.FormField) error {
			f.Position = 3
			stored = f
			return nil
		},
	}
	svc := newTestService(repo)

	got, err := svc.Create(context.Background(), " roof_type ", Input{
		Type:        "select",
		Label:       "<b>Roof</b> type",
		Placeholder: "Pick one",
		Required:    true,
		Options:     []string{"shingle", " metal ", "tile"},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	want := &model.FormField{
		Name:        "roof_type",
		Type:        model.FieldTypeSelect,
		Label:       "Roof type",
		Placeholder: "Pick one",
		Required:    true,
		Options:     []string{"shingle", "metal", "tile"},
		Position:    3,
		CreatedAt:   testNow,
		UpdatedAt:   testNow,
	}
	if diff := deep.Equal(got, want); diff != nil {
		t.Errorf("Create() mismatch: %v", diff)
	}
	if stored != got {
		t.Error("Create() did not return the stored field")
	}
}

func TestCreate_ValidationErrors(t *testing.T) {
	tests := []struct {
		name      string
		fieldName string
		in        Input
	}{
		{"empty name", "", Input{Type: "text", Label: "A"}},
		{"uppercase name", "Roof", Input{Type: "text", Label: "A"}},
		{"leading digit", "1roof", Input{Type: "text", Label: "A"}},
		{"hyphen", "roof-type", Input{Type: "text", Label: "A"}},
		{"too long", strings.Repeat("a", 65), Input{Type: "text", Label: "A"}},
		{"reserved name", "phone_number", Input{Type: "text", Label: "A"}},
		{"unknown type", "roof", Input{Type: "color", Label: "A"}},
		{"missing label", "roof", Input{Type: "text", Label: "<p></p>"}},
		{"select without options", "roof", Input{Type: "select", Label: "A"}},
		{"options on text", "roof", Input{Type: "text", Label: "A", Options: []string{"x"}}},
		{"empty option", "roof", Input{Type: "select", Label: "A", Options: []string{"x", " "}}},
		{"duplicate option", "roof", Input{Type: "select", Label: "A", Options: []string{"x", "x"}}},
		{"long option", "roof", Input{Type: "select", Label: "A", Options: []string{strings.Repeat("o", 101)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockFormFieldRepo{}
			svc := newTestService(repo)

			_, err := svc.Create(context.Background(), tt.fieldName, tt.in)
			if !model.HasCode(err, model.ErrCodeValidationFailed) {
				t.Errorf("err = %v, want %s", err, model.ErrCodeValidationFailed)
			}
			if repo.createCalls != 0 {
				t.Errorf("Create called %d times, want 0", repo.createCalls)
			}
		})
	}
}

func TestCreate_Duplicate(t *testing.T) {
	svc := newTestService(&mockFormFieldRepo{
		createFn: func(ctx context.Context, f *model.FormField) error { return repository.ErrDuplicate },
	})

	_, err := svc.Create(context.Background(), "roof", Input{Type: "text", Label: "Roof"})
	if !model.HasCode(err, model.ErrCodeValidationFailed) {
		t.Errorf("err = %v, want %s", err, model.ErrCodeValidationFailed)
	}
}

func TestUpdate_KeepsPositionAndCreatedAt(t *testing.T) {
	created := testNow.Add(-48 * time.Hour)
	var updated *model.FormField
	svc := newTestService(&mockFormFieldRepo{
		findByNameFn: func(ctx context.Context, name string) (*model.FormField, error) {
			return &model.FormField{Name: name, Type: model.FieldTypeText, Label: "Old", Position: 2, CreatedAt: created}, nil
		},
		updateFn: func(ctx context.Context, f *model.FormField) error {
			updated = f
			return nil
		},
	})

	got, err := svc.Update(context.Background(), "roof", Input{Type: "textarea", Label: "Roof notes"})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated == nil {
		t.Fatal("repository Update was not called")
	}
	if got.Type != model.FieldTypeTextarea || got.Label != "Roof notes" {
		t.Errorf("Update() = %+v", got)
	}
	if got.Position != 2 || !got.CreatedAt.Equal(created) || !got.UpdatedAt.Equal(testNow) {
		t.Errorf("Position = %d, CreatedAt = %v, UpdatedAt = %v", got.Position, got.CreatedAt, got.UpdatedAt)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	tests := []struct {
		name   string
		findFn func(ctx context.Context, name string) (*model.FormField, error)
		upErr  error
	}{
		{
			name:   "missing",
			findFn: func(ctx context.Context, name string) (*model.FormField, error) { return nil, nil },
		},
		{
			name: "deleted concurrently",
			findFn: func(ctx context.Context, name string) (*model.FormField, error) {
				return &model.FormField{Name: name, Type: model.FieldTypeText}, nil
			},
			upErr: repository.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(&mockFormFieldRepo{
				findByNameFn: tt.findFn,
				updateFn:     func(ctx context.Context, f *model.FormField) error { return tt.upErr },
			})

			_, err := svc.Update(context.Background(), "roof", Input{Type: "text", Label: "Roof"})
			if !model.HasCode(err, model.ErrCodeFormFieldNotFound) {
				t.Errorf("err = %v, want %s", err, model.ErrCodeFormFieldNotFound)
			}
		})
	}
}

func TestDelete(t *testing.T) {
	boom := errors.New("connection reset")

	tests := []struct {
		name     string
		repoErr  error
		wantCode string
		wantErr  error
	}{
		{name: "success"},
		{name: "not found", repoErr: repository.ErrNotFound, wantCode: model.ErrCodeFormFieldNotFound},
		{name: "repository error", repoErr: boom, wantErr: boom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(&mockFormFieldRepo{
				deleteByNameFn: func(ctx context.Context, name string) error { return tt.repoErr },
			})

			err := svc.Delete(context.Background(), "roof")
			switch {
			case tt.wantCode != "":
				if !model.HasCode(err, tt.wantCode) {
					t.Errorf("err = %v, want %s", err, tt.wantCode)
				}
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("err = %v, want wrapped %v", err, tt.wantErr)
				}
			default:
				if err != nil {
					t.Errorf("err = %v, want nil", err)
				}
			}
		})
	}
}
