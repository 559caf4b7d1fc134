package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/leadman/internal/formfield"
	"github.com/hitoshi/leadman/internal/model"
)

// FormFieldServiceInterface はフォーム項目ハンドラーが必要とするサービスインターフェース。
type FormFieldServiceInterface interface {
	Structure(ctx context.Context) ([]model.FormField, error)
	Create(ctx context.Context, name string, in formfield.Input) (*model.FormField, error)
	Update(ctx context.Context, name string, in formfield.Input) (*model.FormField, error)
	Delete(ctx context.Context, name string) error
}

// FormFieldHandler はリード登録フォームの項目管理のHTTPハンドラー。管理者向け。
type FormFieldHandler struct {
	service FormFieldServiceInterface
}

// NewFormFieldHandler はFormFieldHandlerを生成する。
func NewFormFieldHandler(service FormFieldServiceInterface) *FormFieldHandler {
	return &FormFieldHandler{service: service}
}

type formFieldRequest struct {
	FieldName        string   `json:"field_name"`
	FieldType        string   `json:"field_type"`
	FieldLabel       string   `json:"field_label"`
	FieldPlaceholder string   `json:"field_placeholder"`
	IsRequired       bool     `json:"is_required"`
	FieldOptions     []string `json:"field_options"`
}

func (req formFieldRequest) input() formfield.Input {
	return formfield.Input{
		Type:        req.FieldType,
		Label:       req.FieldLabel,
		Placeholder: req.FieldPlaceholder,
		Required:    req.IsRequired,
		Options:     req.FieldOptions,
	}
}

type formFieldResponse struct {
	FieldName        string   `json:"field_name"`
	FieldType        string   `json:"field_type"`
	FieldLabel       string   `json:"field_label"`
	FieldPlaceholder string   `json:"field_placeholder"`
	IsRequired       bool     `json:"is_required"`
	FieldOptions     []string `json:"field_options"`
	Position         int      `json:"position"`
	CreatedAt        string   `json:"created_at"`
	UpdatedAt        string   `json:"updated_at"`
}

func toFormFieldResponse(f model.FormField) formFieldResponse {
	options := f.Options
	if options == nil {
		options = []string{}
	}
	return formFieldResponse{
		FieldName:        f.Name,
		FieldType:        string(f.Type),
		FieldLabel:       f.Label,
		FieldPlaceholder: f.Placeholder,
		IsRequired:       f.Required,
		FieldOptions:     options,
		Position:         f.Position,
		CreatedAt:        formatTime(f.CreatedAt),
		UpdatedAt:        formatTime(f.UpdatedAt),
	}
}

// Structure はフォームの全項目を表示順に返す。
// GET /api/admin/form-structure
func (h *FormFieldHandler) Structure(w http.ResponseWriter, r *http.Request) {
	fields, err := h.service.Structure(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	out := make([]formFieldResponse, len(fields))
	for i, f := range fields {
		out[i] = toFormFieldResponse(f)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"structure": out})
}

// Create はフォーム項目を追加する。
// POST /api/admin/form-fields
func (h *FormFieldHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req formFieldRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	f, err := h.service.Create(r.Context(), req.FieldName, req.input())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"field": toFormFieldResponse(*f)})
}

// Update はフォーム項目を更新する。項目名はパスで指定し、ボディのfield_nameは無視する。
// PUT /api/admin/form-fields/{fieldName}
func (h *FormFieldHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req formFieldRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	f, err := h.service.Update(r.Context(), chi.URLParam(r, "fieldName"), req.input())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"field": toFormFieldResponse(*f)})
}

// Delete はフォーム項目を削除する。
// DELETE /api/admin/form-fields/{fieldName}
func (h *FormFieldHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "fieldName")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
