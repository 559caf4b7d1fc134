package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/leadman/internal/model"
)

// CampaignServiceInterface はキャンペーンハンドラーが必要とするサービスインターフェース。
type CampaignServiceInterface interface {
	List(ctx context.Context) ([]model.Campaign, error)
	Create(ctx context.Context, name, description string) (*model.Campaign, error)
	Update(ctx context.Context, id, name, description string) (*model.Campaign, error)
	Delete(ctx context.Context, id string) error
}

// CampaignHandler はキャンペーン管理のHTTPハンドラー。
// 一覧は全ユーザー、作成・更新・削除は管理者向け。
type CampaignHandler struct {
	service CampaignServiceInterface
}

// NewCampaignHandler はCampaignHandlerを生成する。
func NewCampaignHandler(service CampaignServiceInterface) *CampaignHandler {
	return &CampaignHandler{service: service}
}

type campaignRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type campaignResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toCampaignResponse(c model.Campaign) campaignResponse {
	return campaignResponse{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		CreatedAt:   formatTime(c.CreatedAt),
		UpdatedAt:   formatTime(c.UpdatedAt),
	}
}

// List はキャンペーン一覧を返す。
// GET /api/campaigns, GET /api/admin/campaigns
func (h *CampaignHandler) List(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	out := make([]campaignResponse, len(campaigns))
	for i, c := range campaigns {
		out[i] = toCampaignResponse(c)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"campaigns": out})
}

// Create はキャンペーンを作成する。
// POST /api/admin/campaigns
func (h *CampaignHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req campaignRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.service.Create(r.Context(), req.Name, req.Description)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"campaign": toCampaignResponse(*c)})
}

// Update はキャンペーンを更新する。
// PUT /api/admin/campaigns/{id}
func (h *CampaignHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req campaignRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), req.Name, req.Description)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"campaign": toCampaignResponse(*c)})
}

// Delete はキャンペーンを削除する。
// DELETE /api/admin/campaigns/{id}
func (h *CampaignHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
