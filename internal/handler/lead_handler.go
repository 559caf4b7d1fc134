package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/leadman/internal/lead"
	"github.com/hitoshi/leadman/internal/model"
)

// LeadServiceInterface はリードハンドラーが必要とするサービスインターフェース。
type LeadServiceInterface interface {
	List(ctx context.Context, userID string, params lead.ListParams) (*lead.Page, error)
	ListAll(ctx context.Context, params lead.ListParams) (*lead.Page, error)
	Create(ctx context.Context, ident model.RequestIdentity, in lead.Input) (*lead.CreateResult, error)
	CheckDuplicate(ctx context.Context, ident model.RequestIdentity, phone string) (*lead.DuplicateCheck, error)
	Get(ctx context.Context, ident model.RequestIdentity, leadID string) (*model.LeadWithOwner, error)
	Update(ctx context.Context, ident model.RequestIdentity, leadID string, in lead.Input) (*model.LeadWithOwner, error)
	Delete(ctx context.Context, ident model.RequestIdentity, leadID string) error
	ListNotes(ctx context.Context, ident model.RequestIdentity, leadID string) ([]model.LeadNote, error)
	AddNote(ctx context.Context, ident model.RequestIdentity, leadID, text, noteType string) (*model.LeadNote, error)
	AdminUpdateStatus(ctx context.Context, ident model.RequestIdentity, leadID, status, noteText string) (*lead.StatusUpdate, error)
	Stats(ctx context.Context, userID string) (*model.LeadStats, error)
	Leaderboard(ctx context.Context, period string) ([]model.LeaderboardEntry, error)
	Export(ctx context.Context, userID string, w io.Writer) error
	ExportFilename() string
}

// LeadHandler はリード管理のHTTPハンドラー。
type LeadHandler struct {
	service LeadServiceInterface
}

// NewLeadHandler はLeadHandlerを生成する。
func NewLeadHandler(service LeadServiceInterface) *LeadHandler {
	return &LeadHandler{service: service}
}

// flexString は文字列と数値のどちらのJSON値も受け付ける文字列。
type flexString string

// UnmarshalJSON はjson.Unmarshalerを実装する。
func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	*s = flexString(n.String())
	return nil
}

// leadRequest はリード作成・更新リクエストのボディ。
type leadRequest struct {
	Name            string     `json:"name"`
	PhoneNumber     string     `json:"phone_number"`
	CampaignID      string     `json:"campaign_id"`
	Listed          string     `json:"listed"`
	AskingPrice     *float64   `json:"ap"`
	MarketValue     *float64   `json:"mv"`
	RepairsNeeded   string     `json:"repairs_needed"`
	Bedrooms        flexString `json:"bedrooms"`
	Bathrooms       flexString `json:"bathrooms"`
	ConditionRating *int       `json:"condition_rating"`
	Occupancy       string     `json:"occupancy"`
	Reason          string     `json:"reason"`
	Closing         string     `json:"closing"`
	Address         string     `json:"address"`
	AdditionalInfo  string     `json:"additional_info"`
	Status          string     `json:"status"`
}

func (req leadRequest) toInput() lead.Input {
	return lead.Input{
		Name:            req.Name,
		PhoneNumber:     req.PhoneNumber,
		CampaignID:      req.CampaignID,
		Listed:          req.Listed,
		AskingPrice:     req.AskingPrice,
		MarketValue:     req.MarketValue,
		RepairsNeeded:   req.RepairsNeeded,
		Bedrooms:        string(req.Bedrooms),
		Bathrooms:       string(req.Bathrooms),
		ConditionRating: req.ConditionRating,
		Occupancy:       req.Occupancy,
		Reason:          req.Reason,
		Closing:         req.Closing,
		Address:         req.Address,
		AdditionalInfo:  req.AdditionalInfo,
		Status:          req.Status,
	}
}

type duplicateCheckRequest struct {
	PhoneNumber string `json:"phone_number"`
}

type noteRequest struct {
	NoteText string `json:"note_text"`
	NoteType string `json:"note_type"`
}

// leadResponse はリードのAPIレスポンス。
type leadResponse struct {
	ID              string   `json:"id"`
	UserID          string   `json:"user_id"`
	OwnerEmail      string   `json:"owner_email,omitempty"`
	CampaignID      *string  `json:"campaign_id"`
	CampaignName    string   `json:"campaign_name,omitempty"`
	Name            string   `json:"name"`
	PhoneNumber     string   `json:"phone_number"`
	Listed          string   `json:"listed"`
	AskingPrice     *float64 `json:"ap"`
	MarketValue     *float64 `json:"mv"`
	RepairsNeeded   string   `json:"repairs_needed"`
	Bedrooms        string   `json:"bedrooms"`
	Bathrooms       string   `json:"bathrooms"`
	ConditionRating *int     `json:"condition_rating"`
	Occupancy       string   `json:"occupancy"`
	Reason          string   `json:"reason"`
	Closing         string   `json:"closing"`
	Address         string   `json:"address"`
	AdditionalInfo  string   `json:"additional_info"`
	Status          string   `json:"status"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
}

func toLeadResponse(l model.LeadWithOwner) leadResponse {
	return leadResponse{
		ID:              l.ID,
		UserID:          l.UserID,
		OwnerEmail:      l.OwnerEmail,
		CampaignID:      l.CampaignID,
		CampaignName:    l.CampaignName,
		Name:            l.Name,
		PhoneNumber:     l.PhoneNumber,
		Listed:          l.Listed,
		AskingPrice:     l.AskingPrice,
		MarketValue:     l.MarketValue,
		RepairsNeeded:   l.RepairsNeeded,
		Bedrooms:        l.Bedrooms,
		Bathrooms:       l.Bathrooms,
		ConditionRating: l.ConditionRating,
		Occupancy:       l.Occupancy,
		Reason:          l.Reason,
		Closing:         l.Closing,
		Address:         l.Address,
		AdditionalInfo:  l.AdditionalInfo,
		Status:          string(l.Status),
		CreatedAt:       formatTime(l.CreatedAt),
		UpdatedAt:       formatTime(l.UpdatedAt),
	}
}

func toLeadResponses(leads []model.LeadWithOwner) []leadResponse {
	out := make([]leadResponse, len(leads))
	for i, l := range leads {
		out[i] = toLeadResponse(l)
	}
	return out
}

type leadPageResponse struct {
	Leads      []leadResponse     `json:"leads"`
	Pagination paginationResponse `json:"pagination"`
}

func toLeadPageResponse(p *lead.Page) leadPageResponse {
	return leadPageResponse{
		Leads:      toLeadResponses(p.Leads),
		Pagination: toPaginationResponse(p.Pagination),
	}
}

// noteResponse はメモのAPIレスポンス。
type noteResponse struct {
	ID          string `json:"id"`
	LeadID      string `json:"lead_id"`
	UserID      string `json:"user_id"`
	AuthorEmail string `json:"author_email"`
	NoteText    string `json:"note_text"`
	NoteType    string `json:"note_type"`
	IsAdminNote bool   `json:"is_admin_note"`
	CreatedAt   string `json:"created_at"`
}

func toNoteResponse(n model.LeadNote) noteResponse {
	return noteResponse{
		ID:          n.ID,
		LeadID:      n.LeadID,
		UserID:      n.UserID,
		AuthorEmail: n.AuthorEmail,
		NoteText:    n.Text,
		NoteType:    n.Type,
		IsAdminNote: n.IsAdminNote,
		CreatedAt:   formatTime(n.CreatedAt),
	}
}

// statsResponse はステータス別件数のAPIレスポンス。
type statsResponse struct {
	Total    int            `json:"total"`
	Today    int            `json:"today"`
	ByStatus map[string]int `json:"by_status"`
}

func toStatsResponse(s model.LeadStats) statsResponse {
	byStatus := make(map[string]int, len(model.LeadStatuses))
	for _, st := range model.LeadStatuses {
		byStatus[string(st)] = s.ByStatus[st]
	}
	return statsResponse{Total: s.Total, Today: s.Today, ByStatus: byStatus}
}

type leaderboardEntryResponse struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	LeadCount int    `json:"lead_count"`
}

func listParams(r *http.Request) lead.ListParams {
	q := r.URL.Query()
	return lead.ListParams{
		Page:   queryInt(r, "page"),
		Limit:  queryInt(r, "limit"),
		Status: q.Get("status"),
		Search: q.Get("search"),
	}
}

// List はユーザー自身のリード一覧を返す。
// GET /api/leads?page&limit&status&search
func (h *LeadHandler) List(w http.ResponseWriter, r *http.Request, ident model.RequestIdentity) {
	page, err := h.service.List(r.Context(), ident.ID, listParams(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeadPageResponse(page))
}

// Create はリードを登録する。
// POST /api/leads
func (h *LeadHandler) Create(w http.ResponseWriter, r *http.Request, ident model.RequestIdentity) {
	var req leadRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.Create(r.Context(), ident, req.toInput())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"lead":            toLeadResponse(*res.Lead),
		"is_duplicate":    res.IsDuplicate,
		"duplicate_count": res.DuplicateCount,
	})
}

// CheckDuplicate は電話番号の重複を確認する。
// POST /api/leads/check-duplicate
func (h *LeadHandler) CheckDuplicate(w http.ResponseWriter, r *http.Request, ident model.RequestIdentity) {
	var req duplicateCheckRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.CheckDuplicate(r.Context(), ident, req.PhoneNumber)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"is_duplicate": res.IsDuplicate,
		"duplicates":   toLeadResponses(res.Duplicates),
	})
}

// Get はリードを返す。
// GET /api/leads/{id}
func (h *LeadHandler) Get(w http.ResponseWriter, r *http.Request, ident model.RequestIdentity) {
	l, err := h.service.Get(r.Context(), ident, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"lead": toLeadResponse(*l)})
}

// Update はリードを更新する。
// PUT /api/leads/{id}
func (h *LeadHandler) Update(w http.ResponseWriter, r *http.Request, ident model.RequestIdentity) {
	var req leadRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	l, err := h.service.Update(r.Context(), ident, chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"lead": toLeadResponse(*l)})
}

// Delete はリードを削除する。
// DELETE /api/leads/{id}
func (h *LeadHandler) Delete(w http.ResponseWriter, r *http.Request, ident model.RequestIdentity) {
	if err := h.service.Delete(r.Context(), ident, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListNotes はリードのメモ一覧を返す。
// GET /api/leads/{id}/notes
func (h *LeadHandler) ListNotes(w http.ResponseWriter, r *http.Request, ident model.RequestIdentity) {
	notes, err := h.service.ListNotes(r.Context(), ident, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	out := make([]noteResponse, len(notes))
	for i, n := range notes {
		out[i] = toNoteResponse(n)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notes": out})
}

// AddNote はリードにメモを追加する。
// POST /api/leads/{id}/notes
func (h *LeadHandler) AddNote(w http.ResponseWriter, r *http.Request, ident model.RequestIdentity) {
	var req noteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	note, err := h.service.AddNote(r.Context(), ident, chi.URLParam(r, "id"), req.NoteText, req.NoteType)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"note": toNoteResponse(*note)})
}

// Stats はユーザー自身のリード集計を返す。
// GET /api/leads/stats
func (h *LeadHandler) Stats(w http.ResponseWriter, r *http.Request, ident model.RequestIdentity) {
	stats, err := h.service.Stats(r.Context(), ident.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stats": toStatsResponse(*stats)})
}

// Leaderboard は期間内のリード登録件数ランキングを返す。
// GET /api/leads/leaderboard?period=current_month|last_month|all_time
func (h *LeadHandler) Leaderboard(w http.ResponseWriter, r *http.Request, ident model.RequestIdentity) {
	entries, err := h.service.Leaderboard(r.Context(), r.URL.Query().Get("period"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	out := make([]leaderboardEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = leaderboardEntryResponse{UserID: e.UserID, Email: e.Email, LeadCount: e.LeadCount}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"leaderboard": out})
}

// Export はユーザー自身の全リードをCSVファイルとして返す。
// 書き込み前にエラーを判定できるよう、一度バッファに書き出してから送信する。
// GET /api/leads/export
func (h *LeadHandler) Export(w http.ResponseWriter, r *http.Request, ident model.RequestIdentity) {
	var buf bytes.Buffer
	if err := h.service.Export(r.Context(), ident.ID, &buf); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", h.service.ExportFilename()))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}
