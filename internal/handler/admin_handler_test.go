package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-test/deep"

	"github.com/hitoshi/leadman/internal/authz"
	"github.com/hitoshi/leadman/internal/lead"
	"github.com/hitoshi/leadman/internal/model"
	"github.com/hitoshi/leadman/internal/user"
)

// --- モック定義 ---

// mockAdminResolver はAdminResolverのモック実装。
type mockAdminResolver struct {
	resolveAdminFn func(ctx context.Context, ident model.RequestIdentity) (model.RequestIdentity, error)
}

func (m *mockAdminResolver) ResolveAdmin(ctx context.Context, ident model.RequestIdentity) (model.RequestIdentity, error) {
	return m.resolveAdminFn(ctx, ident)
}

// mockAdminPolicy はAdminPolicyInterfaceのモック実装。
type mockAdminPolicy struct {
	setAdminFn     func(ctx context.Context, acting model.RequestIdentity, targetUserID string, makeAdmin bool) (*authz.Result, error)
	bulkSetAdminFn func(ctx context.Context, acting model.RequestIdentity, updates []authz.AdminUpdate) []authz.ItemResult
}

func (m *mockAdminPolicy) SetAdmin(ctx context.Context, acting model.RequestIdentity, targetUserID string, makeAdmin bool) (*authz.Result, error) {
	return m.setAdminFn(ctx, acting, targetUserID, makeAdmin)
}

func (m *mockAdminPolicy) BulkSetAdmin(ctx context.Context, acting model.RequestIdentity, updates []authz.AdminUpdate) []authz.ItemResult {
	return m.bulkSetAdminFn(ctx, acting, updates)
}

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	listUsersFn  func(ctx context.Context, page, limit int) (*user.Page, error)
	getUserFn    func(ctx context.Context, userID string) (*user.Detail, error)
	deleteUserFn func(ctx context.Context, acting model.RequestIdentity, userID string) error
	statsFn      func(ctx context.Context) (*model.AdminStats, error)
}

func (m *mockUserService) ListUsers(ctx context.Context, page, limit int) (*user.Page, error) {
	return m.listUsersFn(ctx, page, limit)
}

func (m *mockUserService) GetUser(ctx context.Context, userID string) (*user.Detail, error) {
	return m.getUserFn(ctx, userID)
}

func (m *mockUserService) DeleteUser(ctx context.Context, acting model.RequestIdentity, userID string) error {
	return m.deleteUserFn(ctx, acting, userID)
}

func (m *mockUserService) Stats(ctx context.Context) (*model.AdminStats, error) {
	return m.statsFn(ctx)
}

var adminIdent = model.RequestIdentity{ID: "admin-1", Email: "root@x.com", IsAdmin: true, AdminResolved: true}

func newTestAdminHandler(policy *mockAdminPolicy, users *mockUserService, leads *mockLeadService) *AdminHandler {
	resolver := &mockAdminResolver{
		resolveAdminFn: func(ctx context.Context, ident model.RequestIdentity) (model.RequestIdentity, error) {
			return ident, nil
		},
	}
	return NewAdminHandler(resolver, policy, users, leads)
}

// --- テスト ---

func TestAdminHandler_MyStatus(t *testing.T) {
	tests := []struct {
		name       string
		resolveErr error
		isAdmin    bool
		wantStatus int
	}{
		{"admin", nil, true, http.StatusOK},
		{"non-admin", nil, false, http.StatusOK},
		{"store unavailable", model.NewStoreUnavailableError(), false, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &mockAdminResolver{
				resolveAdminFn: func(ctx context.Context, ident model.RequestIdentity) (model.RequestIdentity, error) {
					if tt.resolveErr != nil {
						return ident, tt.resolveErr
					}
					ident.IsAdmin = tt.isAdmin
					ident.AdminResolved = true
					return ident, nil
				},
			}
			h := NewAdminHandler(resolver, &mockAdminPolicy{}, &mockUserService{}, &mockLeadService{})

			req := httptest.NewRequest(http.MethodGet, "/api/admin/my-status", nil)
			w := httptest.NewRecorder()
			h.MyStatus(w, req, testIdent)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.resolveErr != nil {
				return
			}
			var resp map[string]bool
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if resp["is_admin"] != tt.isAdmin {
				t.Errorf("is_admin = %v, want %v", resp["is_admin"], tt.isAdmin)
			}
		})
	}
}

func TestAdminHandler_ToggleAdmin(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		body       string
		setErr     error
		wantStatus int
		wantCode   string
	}{
		{"grant", "user-2", `{"is_admin":true}`, nil, http.StatusOK, ""},
		{"missing is_admin", "user-2", `{}`, nil, http.StatusBadRequest, model.ErrCodeValidationFailed},
		{"self demotion", "admin-1", `{"is_admin":false}`, model.NewSelfDemotionForbiddenError(), http.StatusBadRequest, model.ErrCodeSelfDemotionForbidden},
		{"unknown user", "ghost", `{"is_admin":true}`, model.NewUserNotFoundError(), http.StatusNotFound, model.ErrCodeUserNotFound},
		{"store unavailable", "user-2", `{"is_admin":true}`, model.NewStoreUnavailableError(), http.StatusServiceUnavailable, model.ErrCodeStoreUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			policy := &mockAdminPolicy{
				setAdminFn: func(ctx context.Context, acting model.RequestIdentity, targetUserID string, makeAdmin bool) (*authz.Result, error) {
					called = true
					if acting.ID != adminIdent.ID {
						t.Errorf("acting = %q, want %q", acting.ID, adminIdent.ID)
					}
					if targetUserID != tt.userID {
						t.Errorf("target = %q, want %q", targetUserID, tt.userID)
					}
					if tt.setErr != nil {
						return nil, tt.setErr
					}
					return &authz.Result{UserID: targetUserID, IsAdmin: makeAdmin}, nil
				},
			}
			h := newTestAdminHandler(policy, &mockUserService{}, &mockLeadService{})

			req := httptest.NewRequest(http.MethodPost, "/api/admin/toggle-admin/"+tt.userID, strings.NewReader(tt.body))
			req = withURLParam(req, "userId", tt.userID)
			w := httptest.NewRecorder()
			h.ToggleAdmin(w, req, adminIdent)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantCode != "" {
				if body := decodeErrorBody(t, w); body.Code != tt.wantCode {
					t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
				}
				return
			}
			if !called {
				t.Fatal("SetAdmin was not called")
			}
			var resp roleResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if diff := deep.Equal(resp, roleResponse{UserID: "user-2", IsAdmin: true}); diff != nil {
				t.Errorf("response mismatch: %v", diff)
			}
		})
	}
}

func TestAdminHandler_BulkUpdateAdmin_ResultsInInputOrder(t *testing.T) {
	policy := &mockAdminPolicy{
		bulkSetAdminFn: func(ctx context.Context, acting model.RequestIdentity, updates []authz.AdminUpdate) []authz.ItemResult {
			want := []authz.AdminUpdate{
				{UserID: "user-2", IsAdmin: true},
				{UserID: "admin-1", IsAdmin: false},
				{UserID: "ghost", IsAdmin: true},
				{UserID: "user-3", IsAdmin: false},
			}
			if diff := deep.Equal(updates, want); diff != nil {
				t.Errorf("updates mismatch: %v", diff)
			}
			return []authz.ItemResult{
				{UserID: "user-2", IsAdmin: true},
				{UserID: "admin-1", IsAdmin: false, Err: model.NewSelfDemotionForbiddenError()},
				{UserID: "ghost", IsAdmin: true, Err: model.NewUserNotFoundError()},
				{UserID: "user-3", IsAdmin: false, Err: errors.New("boom")},
			}
		},
	}
	h := newTestAdminHandler(policy, &mockUserService{}, &mockLeadService{})

	body := `{"updates":[
		{"user_id":"user-2","is_admin":true},
		{"user_id":"admin-1","is_admin":false},
		{"user_id":"ghost","is_admin":true},
		{"user_id":"user-3","is_admin":false}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/bulk-update-admin", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.BulkUpdateAdmin(w, req, adminIdent)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp struct {
		Results []bulkItemResponse `json:"results"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(resp.Results) != 4 {
		t.Fatalf("len(results) = %d, want 4", len(resp.Results))
	}

	wantCodes := []string{"", model.ErrCodeSelfDemotionForbidden, model.ErrCodeUserNotFound, model.ErrCodeInternal}
	for i, res := range resp.Results {
		if (wantCodes[i] == "") != res.Success {
			t.Errorf("results[%d].success = %v", i, res.Success)
		}
		gotCode := ""
		if res.Error != nil {
			gotCode = res.Error.Code
		}
		if gotCode != wantCodes[i] {
			t.Errorf("results[%d].error.code = %q, want %q", i, gotCode, wantCodes[i])
		}
	}
	if strings.Contains(w.Body.String(), "boom") {
		t.Error("internal error detail leaked into response")
	}
}

func TestAdminHandler_BulkUpdateAdmin_InvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing updates", `{}`},
		{"updates not an array", `{"updates":{"user_id":"user-2"}}`},
		{"null updates", `{"updates":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := &mockAdminPolicy{
				bulkSetAdminFn: func(ctx context.Context, acting model.RequestIdentity, updates []authz.AdminUpdate) []authz.ItemResult {
					t.Error("BulkSetAdmin should not be called")
					return nil
				},
			}
			h := newTestAdminHandler(policy, &mockUserService{}, &mockLeadService{})

			req := httptest.NewRequest(http.MethodPost, "/api/admin/bulk-update-admin", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.BulkUpdateAdmin(w, req, adminIdent)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestAdminHandler_BulkUpdateAdmin_EmptyList(t *testing.T) {
	policy := &mockAdminPolicy{
		bulkSetAdminFn: func(ctx context.Context, acting model.RequestIdentity, updates []authz.AdminUpdate) []authz.ItemResult {
			return []authz.ItemResult{}
		},
	}
	h := newTestAdminHandler(policy, &mockUserService{}, &mockLeadService{})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/bulk-update-admin", strings.NewReader(`{"updates":[]}`))
	w := httptest.NewRecorder()
	h.BulkUpdateAdmin(w, req, adminIdent)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"results":[]}` {
		t.Errorf("body = %s", got)
	}
}

func TestAdminHandler_DeleteUser_Self(t *testing.T) {
	users := &mockUserService{
		deleteUserFn: func(ctx context.Context, acting model.RequestIdentity, userID string) error {
			return model.NewSelfDeleteForbiddenError()
		},
	}
	h := newTestAdminHandler(&mockAdminPolicy{}, users, &mockLeadService{})

	req := withURLParam(httptest.NewRequest(http.MethodDelete, "/api/admin/users/admin-1", nil), "userId", "admin-1")
	w := httptest.NewRecorder()
	h.DeleteUser(w, req, adminIdent)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if body := decodeErrorBody(t, w); body.Code != model.ErrCodeSelfDeleteForbidden {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeSelfDeleteForbidden)
	}
}

func TestAdminHandler_GetUser(t *testing.T) {
	users := &mockUserService{
		getUserFn: func(ctx context.Context, userID string) (*user.Detail, error) {
			return &user.Detail{
				User:    model.User{ID: userID, Email: "b@x.com", CreatedAt: handlerTestNow},
				IsAdmin: false,
				Stats:   model.LeadStats{Total: 3, ByStatus: map[model.LeadStatus]int{model.LeadStatusNew: 3}},
			}, nil
		},
	}
	h := newTestAdminHandler(&mockAdminPolicy{}, users, &mockLeadService{})

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/admin/users/user-2", nil), "userId", "user-2")
	w := httptest.NewRecorder()
	h.GetUser(w, req, adminIdent)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp struct {
		User  adminUserResponse `json:"user"`
		Stats statsResponse     `json:"stats"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if resp.User.ID != "user-2" || resp.User.LeadCount != 3 || resp.Stats.ByStatus["new"] != 3 {
		t.Errorf("response = %+v", resp)
	}
}

func TestAdminHandler_Stats(t *testing.T) {
	users := &mockUserService{
		statsFn: func(ctx context.Context) (*model.AdminStats, error) {
			return &model.AdminStats{TotalUsers: 5, TotalAdmins: 2, Leads: model.LeadStats{Total: 9, Today: 1}}, nil
		},
	}
	h := newTestAdminHandler(&mockAdminPolicy{}, users, &mockLeadService{})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
	w := httptest.NewRecorder()
	h.Stats(w, req, adminIdent)

	var resp struct {
		TotalUsers  int           `json:"total_users"`
		TotalAdmins int           `json:"total_admins"`
		Leads       statsResponse `json:"leads"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if resp.TotalUsers != 5 || resp.TotalAdmins != 2 || resp.Leads.Total != 9 {
		t.Errorf("response = %+v", resp)
	}
}

func TestAdminHandler_UpdateLeadStatus_WithNote(t *testing.T) {
	leads := &mockLeadService{
		adminUpdateStatusFn: func(ctx context.Context, ident model.RequestIdentity, leadID, status, noteText string) (*lead.StatusUpdate, error) {
			if leadID != "lead-1" || status != "qualified" || noteText != "verified" {
				t.Errorf("AdminUpdateStatus(%q, %q, %q)", leadID, status, noteText)
			}
			l := sampleLead()
			l.Status = model.LeadStatusQualified
			return &lead.StatusUpdate{
				Lead: &l,
				Note: &model.LeadNote{ID: "note-1", LeadID: leadID, Text: noteText, Type: lead.NoteTypeAdmin, IsAdminNote: true},
			}, nil
		},
	}
	h := newTestAdminHandler(&mockAdminPolicy{}, &mockUserService{}, leads)

	req := httptest.NewRequest(http.MethodPut, "/api/admin/leads/lead-1/status", strings.NewReader(`{"status":"qualified","note_text":"verified"}`))
	req = withURLParam(req, "id", "lead-1")
	w := httptest.NewRecorder()
	h.UpdateLeadStatus(w, req, adminIdent)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp struct {
		Lead leadResponse  `json:"lead"`
		Note *noteResponse `json:"note"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if resp.Lead.Status != "qualified" {
		t.Errorf("lead.status = %q, want qualified", resp.Lead.Status)
	}
	if resp.Note == nil || !resp.Note.IsAdminNote {
		t.Errorf("note = %+v, want admin note", resp.Note)
	}
}

func TestAdminHandler_RecentLeads_ListsNewestTen(t *testing.T) {
	var gotParams lead.ListParams
	leads := &mockLeadService{
		listAllFn: func(ctx context.Context, params lead.ListParams) (*lead.Page, error) {
			gotParams = params
			return &lead.Page{Leads: []model.LeadWithOwner{sampleLead()}}, nil
		},
	}
	h := newTestAdminHandler(&mockAdminPolicy{}, &mockUserService{}, leads)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/recent-leads?limit=500&status=new", nil)
	w := httptest.NewRecorder()
	h.RecentLeads(w, req, adminIdent)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if diff := deep.Equal(gotParams, lead.ListParams{Page: 1, Limit: 10}); diff != nil {
		t.Errorf("ListAll params mismatch: %v", diff)
	}
	var resp struct {
		Leads []leadResponse `json:"leads"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(resp.Leads) != 1 {
		t.Errorf("len(leads) = %d, want 1", len(resp.Leads))
	}
}
