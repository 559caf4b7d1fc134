package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/leadman/internal/authz"
	"github.com/hitoshi/leadman/internal/lead"
	"github.com/hitoshi/leadman/internal/model"
	"github.com/hitoshi/leadman/internal/user"
)

// AdminResolver はリクエストの識別情報に管理者フラグを解決するインターフェース。
type AdminResolver interface {
	ResolveAdmin(ctx context.Context, ident model.RequestIdentity) (model.RequestIdentity, error)
}

// AdminPolicyInterface は管理者ロールの更新インターフェース。
type AdminPolicyInterface interface {
	SetAdmin(ctx context.Context, acting model.RequestIdentity, targetUserID string, makeAdmin bool) (*authz.Result, error)
	BulkSetAdmin(ctx context.Context, acting model.RequestIdentity, updates []authz.AdminUpdate) []authz.ItemResult
}

// UserServiceInterface は管理画面のユーザー管理が必要とするサービスインターフェース。
type UserServiceInterface interface {
	ListUsers(ctx context.Context, page, limit int) (*user.Page, error)
	GetUser(ctx context.Context, userID string) (*user.Detail, error)
	DeleteUser(ctx context.Context, acting model.RequestIdentity, userID string) error
	Stats(ctx context.Context) (*model.AdminStats, error)
}

// AdminHandler は管理画面のHTTPハンドラー。
// MyStatus以外はRequireAdminの内側で使用する。
type AdminHandler struct {
	resolver AdminResolver
	policy   AdminPolicyInterface
	users    UserServiceInterface
	leads    LeadServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(resolver AdminResolver, policy AdminPolicyInterface, users UserServiceInterface, leads LeadServiceInterface) *AdminHandler {
	return &AdminHandler{
		resolver: resolver,
		policy:   policy,
		users:    users,
		leads:    leads,
	}
}

type toggleAdminRequest struct {
	IsAdmin *bool `json:"is_admin"`
}

type bulkUpdateAdminRequest struct {
	Updates []struct {
		UserID  string `json:"user_id"`
		IsAdmin bool   `json:"is_admin"`
	} `json:"updates"`
}

type leadStatusRequest struct {
	Status   string `json:"status"`
	NoteText string `json:"note_text"`
}

type adminUserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	IsAdmin   bool   `json:"is_admin"`
	LeadCount int    `json:"lead_count"`
	CreatedAt string `json:"created_at"`
}

type roleResponse struct {
	UserID  string `json:"user_id"`
	IsAdmin bool   `json:"is_admin"`
}

// bulkItemResponse は一括更新の1件分の結果。失敗時のみErrorを含む。
type bulkItemResponse struct {
	UserID  string             `json:"user_id"`
	IsAdmin bool               `json:"is_admin"`
	Success bool               `json:"success"`
	Error   *bulkItemErrorBody `json:"error,omitempty"`
}

type bulkItemErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MyStatus は現在のユーザーが管理者かどうかを返す。RequireAuthの内側で使用する。
// GET /api/admin/my-status
func (h *AdminHandler) MyStatus(w http.ResponseWriter, r *http.Request, ident model.RequestIdentity) {
	ident, err := h.resolver.ResolveAdmin(r.Context(), ident)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"is_admin": ident.IsAdmin})
}

// ListUsers はユーザー一覧を返す。
// GET /api/admin/users?page&limit
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request, ident model.RequestIdentity) {
	page, err := h.users.ListUsers(r.Context(), queryInt(r, "page"), queryInt(r, "limit"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	out := make([]adminUserResponse, len(page.Users))
	for i, u := range page.Users {
		out[i] = adminUserResponse{
			ID:        u.ID,
			Email:     u.Email,
			IsAdmin:   u.IsAdmin,
			LeadCount: u.LeadCount,
			CreatedAt: formatTime(u.CreatedAt),
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"users":      out,
		"pagination": toPaginationResponse(page.Pagination),
	})
}

// GetUser はユーザーの詳細とリード集計を返す。
// GET /api/admin/users/{userId}
func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request, ident model.RequestIdentity) {
	detail, err := h.users.GetUser(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user": adminUserResponse{
			ID:        detail.User.ID,
			Email:     detail.User.Email,
			IsAdmin:   detail.IsAdmin,
			LeadCount: detail.Stats.Total,
			CreatedAt: formatTime(detail.User.CreatedAt),
		},
		"stats": toStatsResponse(detail.Stats),
	})
}

// DeleteUser はユーザーと所有するリードを削除する。
// DELETE /api/admin/users/{userId}
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request, ident model.RequestIdentity) {
	if err := h.users.DeleteUser(r.Context(), ident, chi.URLParam(r, "userId")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleAdmin は対象ユーザーの管理者フラグを設定する。
// POST /api/admin/toggle-admin/{userId}
func (h *AdminHandler) ToggleAdmin(w http.ResponseWriter, r *http.Request, ident model.RequestIdentity) {
	var req toggleAdminRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.IsAdmin == nil {
		handleServiceError(w, r, model.NewValidationError("is_adminは必須です"))
		return
	}

	res, err := h.policy.SetAdmin(r.Context(), ident, chi.URLParam(r, "userId"), *req.IsAdmin)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roleResponse{UserID: res.UserID, IsAdmin: res.IsAdmin})
}

// BulkUpdateAdmin は複数ユーザーの管理者フラグを入力順に設定する。
// 1件の失敗は他の更新に影響しない。
// POST /api/admin/bulk-update-admin
func (h *AdminHandler) BulkUpdateAdmin(w http.ResponseWriter, r *http.Request, ident model.RequestIdentity) {
	var req bulkUpdateAdminRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Updates == nil {
		handleServiceError(w, r, model.NewValidationError("updatesは配列で指定してください"))
		return
	}

	updates := make([]authz.AdminUpdate, len(req.Updates))
	for i, u := range req.Updates {
		updates[i] = authz.AdminUpdate{UserID: u.UserID, IsAdmin: u.IsAdmin}
	}

	results := h.policy.BulkSetAdmin(r.Context(), ident, updates)

	out := make([]bulkItemResponse, len(results))
	for i, res := range results {
		item := bulkItemResponse{UserID: res.UserID, IsAdmin: res.IsAdmin, Success: res.Success()}
		if !res.Success() {
			apiErr := model.NewInternalError()
			errors.As(res.Err, &apiErr)
			item.Error = &bulkItemErrorBody{Code: apiErr.Code, Message: apiErr.Message}
		}
		out[i] = item
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": out})
}

// Stats は管理ダッシュボードの集計値を返す。
// GET /api/admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request, ident model.RequestIdentity) {
	stats, err := h.users.Stats(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_users":  stats.TotalUsers,
		"total_admins": stats.TotalAdmins,
		"leads":        toStatsResponse(stats.Leads),
	})
}

// ListLeads は全ユーザーのリードを登録者メールアドレス付きで返す。
// GET /api/admin/leads?page&limit&status&search
func (h *AdminHandler) ListLeads(w http.ResponseWriter, r *http.Request, ident model.RequestIdentity) {
	page, err := h.leads.ListAll(r.Context(), listParams(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeadPageResponse(page))
}

// recentLeadsLimit は管理ダッシュボードに表示する最新リードの件数。
const recentLeadsLimit = 10

// RecentLeads は全ユーザーの最新リードを登録日の新しい順に返す。
// GET /api/admin/recent-leads
func (h *AdminHandler) RecentLeads(w http.ResponseWriter, r *http.Request, ident model.RequestIdentity) {
	page, err := h.leads.ListAll(r.Context(), lead.ListParams{Page: 1, Limit: recentLeadsLimit})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"leads": toLeadResponses(page.Leads)})
}

// UpdateLeadStatus はリードのステータスを更新し、任意で管理者メモを追加する。
// PUT /api/admin/leads/{id}/status
func (h *AdminHandler) UpdateLeadStatus(w http.ResponseWriter, r *http.Request, ident model.RequestIdentity) {
	var req leadStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.leads.AdminUpdateStatus(r.Context(), ident, chi.URLParam(r, "id"), req.Status, req.NoteText)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	body := map[string]interface{}{"lead": toLeadResponse(*res.Lead)}
	if res.Note != nil {
		body["note"] = toNoteResponse(*res.Note)
	}
	writeJSON(w, http.StatusOK, body)
}
