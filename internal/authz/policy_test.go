package authz

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/leadman/internal/model"
	"github.com/hitoshi/leadman/internal/repository"
)

// --- モック定義 ---

type mockRoleRepo struct {
	findByUserIDFn func(ctx context.Context, userID string) (*model.RoleAssignment, error)
	upsertFn       func(ctx context.Context, userID string, isAdmin bool) (*model.RoleAssignment, error)
	upsertCalls    int
}

func (m *mockRoleRepo) FindByUserID(ctx context.Context, userID string) (*model.RoleAssignment, error) {
	if m.findByUserIDFn != nil {
		return m.findByUserIDFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockRoleRepo) Upsert(ctx context.Context, userID string, isAdmin bool) (*model.RoleAssignment, error) {
	m.upsertCalls++
	if m.upsertFn != nil {
		return m.upsertFn(ctx, userID, isAdmin)
	}
	return &model.RoleAssignment{UserID: userID, IsAdmin: isAdmin}, nil
}

func (m *mockRoleRepo) CountAdmins(ctx context.Context) (int, error) {
	return 0, nil
}

type mockUserFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserFinder) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return &model.User{ID: id}, nil
}

// memRoleRepo はミューテックスで保護したインメモリのロールストア。
type memRoleRepo struct {
	mu    sync.Mutex
	roles map[string]model.RoleAssignment
}

func newMemRoleRepo() *memRoleRepo {
	return &memRoleRepo{roles: make(map[string]model.RoleAssignment)}
}

func (m *memRoleRepo) FindByUserID(ctx context.Context, userID string) (*model.RoleAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[userID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memRoleRepo) Upsert(ctx context.Context, userID string, isAdmin bool) (*model.RoleAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := model.RoleAssignment{UserID: userID, IsAdmin: isAdmin, UpdatedAt: time.Now()}
	m.roles[userID] = r
	return &r, nil
}

func (m *memRoleRepo) CountAdmins(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.roles {
		if r.IsAdmin {
			n++
		}
	}
	return n, nil
}

const (
	adminID = "9b2f4c1e-3a5d-4e7f-8a1b-2c3d4e5f6a70"
	user2ID = "1f0e2d3c-4b5a-4697-8877-665544332211"
	userAID = "aaaaaaaa-0000-4000-8000-00000000000a"
	userBID = "bbbbbbbb-0000-4000-8000-00000000000b"
	userCID = "cccccccc-0000-4000-8000-00000000000c"
	userXID = "dddddddd-0000-4000-8000-00000000000d"
	ghostID = "eeeeeeee-0000-4000-8000-00000000000e"
)

var admin = model.RequestIdentity{ID: adminID, Email: "admin@example.com"}

// --- テスト ---

func TestIsAdmin_NoRoleRecord_ReturnsFalse(t *testing.T) {
	p := NewPolicy(&mockRoleRepo{}, &mockUserFinder{}, time.Second, nil)

	got, err := p.IsAdmin(context.Background(), "unknown-user")
	if err != nil {
		t.Fatalf("IsAdmin() error = %v", err)
	}
	if got {
		t.Error("IsAdmin() = true, want false")
	}
}

func TestIsAdmin_StoredFlag(t *testing.T) {
	roles := &mockRoleRepo{
		findByUserIDFn: func(ctx context.Context, userID string) (*model.RoleAssignment, error) {
			return &model.RoleAssignment{UserID: userID, IsAdmin: userID == adminID}, nil
		},
	}
	p := NewPolicy(roles, &mockUserFinder{}, time.Second, nil)

	if got, _ := p.IsAdmin(context.Background(), adminID); !got {
		t.Error("IsAdmin(admin) = false, want true")
	}
	if got, _ := p.IsAdmin(context.Background(), user2ID); got {
		t.Error("IsAdmin(user2) = true, want false")
	}
}

func TestIsAdmin_StoreFailure_ReturnsStoreUnavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"timeout", context.DeadlineExceeded},
		{"other", errors.New("relation admin_roles does not exist")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roles := &mockRoleRepo{
				findByUserIDFn: func(ctx context.Context, userID string) (*model.RoleAssignment, error) {
					return nil, tt.err
				},
			}
			p := NewPolicy(roles, &mockUserFinder{}, time.Second, nil)

			got, err := p.IsAdmin(context.Background(), "user-1")
			if !model.HasCode(err, model.ErrCodeStoreUnavailable) {
				t.Errorf("err = %v, want STORE_UNAVAILABLE", err)
			}
			if got {
				t.Error("IsAdmin() = true on failure, want false")
			}
		})
	}
}

func TestIsAdmin_AppliesStoreTimeout(t *testing.T) {
	roles := &mockRoleRepo{
		findByUserIDFn: func(ctx context.Context, userID string) (*model.RoleAssignment, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	p := NewPolicy(roles, &mockUserFinder{}, 20*time.Millisecond, nil)

	start := time.Now()
	_, err := p.IsAdmin(context.Background(), "user-1")
	if !model.HasCode(err, model.ErrCodeStoreUnavailable) {
		t.Errorf("err = %v, want STORE_UNAVAILABLE", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("IsAdmin() took %v, want bounded by store timeout", elapsed)
	}
}

func TestSetAdmin_SelfDemotion_ForbiddenBeforeStore(t *testing.T) {
	for _, stored := range []bool{true, false} {
		roles := &mockRoleRepo{
			findByUserIDFn: func(ctx context.Context, userID string) (*model.RoleAssignment, error) {
				return &model.RoleAssignment{UserID: userID, IsAdmin: stored}, nil
			},
		}
		users := &mockUserFinder{
			findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
				t.Error("user store must not be called for self-demotion")
				return nil, nil
			},
		}
		p := NewPolicy(roles, users, time.Second, nil)

		_, err := p.SetAdmin(context.Background(), admin, admin.ID, false)
		if !model.HasCode(err, model.ErrCodeSelfDemotionForbidden) {
			t.Errorf("stored=%v: err = %v, want SELF_DEMOTION_FORBIDDEN", stored, err)
		}
		if roles.upsertCalls != 0 {
			t.Errorf("stored=%v: Upsert called %d times, want 0", stored, roles.upsertCalls)
		}
	}
}

func TestSetAdmin_SelfPromotion_Allowed(t *testing.T) {
	roles := &mockRoleRepo{}
	p := NewPolicy(roles, &mockUserFinder{}, time.Second, nil)

	res, err := p.SetAdmin(context.Background(), admin, admin.ID, true)
	if err != nil {
		t.Fatalf("SetAdmin() error = %v", err)
	}
	if !res.IsAdmin {
		t.Error("IsAdmin = false, want true")
	}
}

func TestSetAdmin_UnknownTarget_ReturnsUserNotFound(t *testing.T) {
	roles := &mockRoleRepo{}
	users := &mockUserFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return nil, nil
		},
	}
	p := NewPolicy(roles, users, time.Second, nil)

	_, err := p.SetAdmin(context.Background(), admin, ghostID, true)
	if !model.HasCode(err, model.ErrCodeUserNotFound) {
		t.Errorf("err = %v, want USER_NOT_FOUND", err)
	}
	if roles.upsertCalls != 0 {
		t.Errorf("Upsert called %d times, want 0", roles.upsertCalls)
	}
}

func TestSetAdmin_TargetDeletedBetweenLookupAndUpsert(t *testing.T) {
	roles := &mockRoleRepo{
		upsertFn: func(ctx context.Context, userID string, isAdmin bool) (*model.RoleAssignment, error) {
			return nil, repository.ErrNotFound
		},
	}
	p := NewPolicy(roles, &mockUserFinder{}, time.Second, nil)

	_, err := p.SetAdmin(context.Background(), admin, user2ID, true)
	if !model.HasCode(err, model.ErrCodeUserNotFound) {
		t.Errorf("err = %v, want USER_NOT_FOUND", err)
	}
}

func TestSetAdmin_StoreFailure_ReturnsStoreUnavailable(t *testing.T) {
	roles := &mockRoleRepo{
		upsertFn: func(ctx context.Context, userID string, isAdmin bool) (*model.RoleAssignment, error) {
			return nil, context.DeadlineExceeded
		},
	}
	p := NewPolicy(roles, &mockUserFinder{}, time.Second, nil)

	_, err := p.SetAdmin(context.Background(), admin, user2ID, true)
	if !model.HasCode(err, model.ErrCodeStoreUnavailable) {
		t.Errorf("err = %v, want STORE_UNAVAILABLE", err)
	}
}

func TestSetAdmin_ThenIsAdmin(t *testing.T) {
	roles := newMemRoleRepo()
	p := NewPolicy(roles, &mockUserFinder{}, time.Second, nil)
	ctx := context.Background()

	if _, err := p.SetAdmin(ctx, admin, user2ID, true); err != nil {
		t.Fatalf("SetAdmin(true) error = %v", err)
	}
	if got, _ := p.IsAdmin(ctx, user2ID); !got {
		t.Error("IsAdmin() = false after promotion")
	}

	if _, err := p.SetAdmin(ctx, admin, user2ID, false); err != nil {
		t.Fatalf("SetAdmin(false) error = %v", err)
	}
	if got, _ := p.IsAdmin(ctx, user2ID); got {
		t.Error("IsAdmin() = true after demotion")
	}
}

func TestBulkSetAdmin_OneSelfDemotion_OnlyThatEntryFails(t *testing.T) {
	roles := newMemRoleRepo()
	p := NewPolicy(roles, &mockUserFinder{}, time.Second, nil)

	updates := []AdminUpdate{
		{UserID: userAID, IsAdmin: true},
		{UserID: admin.ID, IsAdmin: false},
		{UserID: userBID, IsAdmin: true},
		{UserID: userCID, IsAdmin: false},
	}

	results := p.BulkSetAdmin(context.Background(), admin, updates)

	if len(results) != len(updates) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(updates))
	}
	for i, r := range results {
		if r.UserID != updates[i].UserID {
			t.Errorf("results[%d].UserID = %q, want %q (input order)", i, r.UserID, updates[i].UserID)
		}
		if i == 1 {
			if !model.HasCode(r.Err, model.ErrCodeSelfDemotionForbidden) {
				t.Errorf("results[1].Err = %v, want SELF_DEMOTION_FORBIDDEN", r.Err)
			}
			continue
		}
		if !r.Success() {
			t.Errorf("results[%d] failed: %v", i, r.Err)
		}
	}

	if got, _ := p.IsAdmin(context.Background(), userBID); !got {
		t.Error("entry after the failing one was not applied")
	}
}

func TestBulkSetAdmin_MixedFailures_DoNotRollBack(t *testing.T) {
	roles := newMemRoleRepo()
	users := &mockUserFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			if id == ghostID {
				return nil, nil
			}
			return &model.User{ID: id}, nil
		},
	}
	p := NewPolicy(roles, users, time.Second, nil)

	results := p.BulkSetAdmin(context.Background(), admin, []AdminUpdate{
		{UserID: userAID, IsAdmin: true},
		{UserID: ghostID, IsAdmin: true},
		{UserID: "", IsAdmin: true},
	})

	if !results[0].Success() {
		t.Errorf("results[0] failed: %v", results[0].Err)
	}
	if !model.HasCode(results[1].Err, model.ErrCodeUserNotFound) {
		t.Errorf("results[1].Err = %v, want USER_NOT_FOUND", results[1].Err)
	}
	if !model.HasCode(results[2].Err, model.ErrCodeValidationFailed) {
		t.Errorf("results[2].Err = %v, want VALIDATION_FAILED", results[2].Err)
	}
	if got, _ := p.IsAdmin(context.Background(), userAID); !got {
		t.Error("successful entry was rolled back")
	}
}

func TestBulkSetAdmin_Empty_ReturnsEmpty(t *testing.T) {
	p := NewPolicy(newMemRoleRepo(), &mockUserFinder{}, time.Second, nil)

	if results := p.BulkSetAdmin(context.Background(), admin, nil); len(results) != 0 {
		t.Errorf("len(results) = %d, want 0", len(results))
	}
}

func TestSetAdmin_Concurrent_SingleConsistentValue(t *testing.T) {
	roles := newMemRoleRepo()
	p := NewPolicy(roles, &mockUserFinder{}, time.Second, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(makeAdmin bool) {
			defer wg.Done()
			if _, err := p.SetAdmin(context.Background(), admin, userXID, makeAdmin); err != nil {
				t.Errorf("SetAdmin() error = %v", err)
			}
		}(i%2 == 0)
	}
	wg.Wait()

	role, _ := roles.FindByUserID(context.Background(), userXID)
	if role == nil {
		t.Fatal("expected a role record")
	}
	if role.UserID != userXID {
		t.Errorf("UserID = %q, want %q", role.UserID, userXID)
	}

	got, err := p.IsAdmin(context.Background(), userXID)
	if err != nil {
		t.Fatalf("IsAdmin() error = %v", err)
	}
	if got != role.IsAdmin {
		t.Errorf("IsAdmin() = %v, stored = %v", got, role.IsAdmin)
	}
	if n, _ := roles.CountAdmins(context.Background()); n > 1 {
		t.Errorf("CountAdmins() = %d, want at most 1", n)
	}
}

func TestSetAdmin_SelfDemotion_AlternateSpellingsOfOwnID(t *testing.T) {
	spellings := map[string]string{
		"uppercase":  strings.ToUpper(adminID),
		"no hyphens": strings.ReplaceAll(adminID, "-", ""),
		"braces":     "{" + adminID + "}",
		"urn":        "urn:uuid:" + adminID,
	}

	for name, target := range spellings {
		t.Run(name, func(t *testing.T) {
			roles := newMemRoleRepo()
			roles.roles[adminID] = model.RoleAssignment{UserID: adminID, IsAdmin: true}
			p := NewPolicy(roles, &mockUserFinder{}, time.Second, nil)

			_, err := p.SetAdmin(context.Background(), admin, target, false)
			if !model.HasCode(err, model.ErrCodeSelfDemotionForbidden) {
				t.Errorf("err = %v, want SELF_DEMOTION_FORBIDDEN", err)
			}
			if got, _ := p.IsAdmin(context.Background(), adminID); !got {
				t.Error("acting admin lost the admin flag")
			}
		})
	}
}

func TestSetAdmin_StoresCanonicalID(t *testing.T) {
	roles := newMemRoleRepo()
	var lookedUp string
	users := &mockUserFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			lookedUp = id
			return &model.User{ID: id}, nil
		},
	}
	p := NewPolicy(roles, users, time.Second, nil)

	res, err := p.SetAdmin(context.Background(), admin, strings.ToUpper(user2ID), true)
	if err != nil {
		t.Fatalf("SetAdmin() error = %v", err)
	}
	if lookedUp != user2ID {
		t.Errorf("FindByID id = %q, want %q", lookedUp, user2ID)
	}
	if res.UserID != user2ID {
		t.Errorf("UserID = %q, want %q", res.UserID, user2ID)
	}
	if got, _ := p.IsAdmin(context.Background(), user2ID); !got {
		t.Error("IsAdmin(canonical) = false after promotion")
	}
}

func TestSetAdmin_MalformedID_ReturnsUserNotFoundWithoutStore(t *testing.T) {
	roles := &mockRoleRepo{}
	users := &mockUserFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			t.Error("user store must not be called for a malformed id")
			return nil, nil
		},
	}
	p := NewPolicy(roles, users, time.Second, nil)

	_, err := p.SetAdmin(context.Background(), admin, "not-a-uuid", true)
	if !model.HasCode(err, model.ErrCodeUserNotFound) {
		t.Errorf("err = %v, want USER_NOT_FOUND", err)
	}
	if roles.upsertCalls != 0 {
		t.Errorf("Upsert called %d times, want 0", roles.upsertCalls)
	}
}

func TestBulkSetAdmin_SelfDemotionByAlternateSpelling_Forbidden(t *testing.T) {
	roles := newMemRoleRepo()
	roles.roles[adminID] = model.RoleAssignment{UserID: adminID, IsAdmin: true}
	p := NewPolicy(roles, &mockUserFinder{}, time.Second, nil)

	results := p.BulkSetAdmin(context.Background(), admin, []AdminUpdate{
		{UserID: userAID, IsAdmin: true},
		{UserID: strings.ToUpper(adminID), IsAdmin: false},
		{UserID: strings.ReplaceAll(adminID, "-", ""), IsAdmin: false},
	})

	if !results[0].Success() {
		t.Errorf("results[0] failed: %v", results[0].Err)
	}
	for _, i := range []int{1, 2} {
		if !model.HasCode(results[i].Err, model.ErrCodeSelfDemotionForbidden) {
			t.Errorf("results[%d].Err = %v, want SELF_DEMOTION_FORBIDDEN", i, results[i].Err)
		}
	}
	if got, _ := p.IsAdmin(context.Background(), adminID); !got {
		t.Error("acting admin lost the admin flag")
	}
}
