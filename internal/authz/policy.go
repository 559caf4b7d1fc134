// Package authz は管理者ロールに基づく認可判定と、ロールの付与・剥奪を提供する。
package authz

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/leadman/internal/metrics"
	"github.com/hitoshi/leadman/internal/model"
	"github.com/hitoshi/leadman/internal/repository"
)

// DefaultStoreTimeout はロールストア呼び出し1回あたりの既定の上限時間。
const DefaultStoreTimeout = 5 * time.Second

// UserFinder は付与対象ユーザーの存在確認に使用するインターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// AdminUpdate は一括更新の1件分の指定。
type AdminUpdate struct {
	UserID  string
	IsAdmin bool
}

// Result はSetAdminの結果。
type Result struct {
	UserID  string
	IsAdmin bool
}

// ItemResult は一括更新の1件分の結果。Errがnilの場合は成功。
type ItemResult struct {
	UserID  string
	IsAdmin bool
	Err     error
}

// Success は更新が成功したかを返す。
func (r ItemResult) Success() bool {
	return r.Err == nil
}

// Policy は管理者ロールの判定と更新を行う。
type Policy struct {
	roles   repository.RoleRepository
	users   UserFinder
	timeout time.Duration
	metrics metrics.MetricsCollector
}

// NewPolicy はPolicyを生成する。timeoutが0以下の場合はDefaultStoreTimeoutを使用する。
func NewPolicy(roles repository.RoleRepository, users UserFinder, timeout time.Duration, mc metrics.MetricsCollector) *Policy {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Policy{
		roles:   roles,
		users:   users,
		timeout: timeout,
		metrics: mc,
	}
}

// IsAdmin は指定ユーザーが管理者かどうかを返す。
// ロールレコードがない場合はfalseを返す。ストアに到達できない場合は
// falseではなくSTORE_UNAVAILABLEエラーを返す。
func (p *Policy) IsAdmin(ctx context.Context, userID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	role, err := p.roles.FindByUserID(ctx, userID)
	p.metrics.RecordStoreLatency("role_lookup", time.Since(start))
	if err != nil {
		return false, p.storeError("role lookup", userID, err)
	}
	if role == nil {
		return false, nil
	}
	return role.IsAdmin, nil
}

// SetAdmin は対象ユーザーの管理者フラグを設定する。
//
// 実行者が自分自身の管理者フラグを外そうとした場合は、保存済みの値に関係なく
// ストアを呼ぶ前にSELF_DEMOTION_FORBIDDENを返す。対象ユーザーが存在しない場合と
// IDがUUIDとして解釈できない場合はUSER_NOT_FOUNDを返す。
func (p *Policy) SetAdmin(ctx context.Context, acting model.RequestIdentity, targetUserID string, makeAdmin bool) (*Result, error) {
	if targetUserID == "" {
		return nil, model.NewValidationError("user_idは必須です")
	}
	// 表記ゆれで自己降格の判定をすり抜けないよう、正規形で比較・保存する。
	canonical, ok := model.CanonicalUserID(targetUserID)
	if !ok {
		return nil, model.NewUserNotFoundError()
	}
	targetUserID = canonical
	if model.SameUser(targetUserID, acting.ID) && !makeAdmin {
		return nil, model.NewSelfDemotionForbiddenError()
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	// 1. 対象ユーザーの存在確認
	user, err := p.users.FindByID(ctx, targetUserID)
	if err != nil {
		return nil, p.storeError("user lookup", targetUserID, err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	// 2. ロールのUPSERT
	start := time.Now()
	role, err := p.roles.Upsert(ctx, targetUserID, makeAdmin)
	p.metrics.RecordStoreLatency("role_upsert", time.Since(start))
	if errors.Is(err, repository.ErrNotFound) {
		// 存在確認後に削除された場合
		return nil, model.NewUserNotFoundError()
	}
	if err != nil {
		return nil, p.storeError("role upsert", targetUserID, err)
	}

	slog.Info("admin role updated",
		slog.String("acting_user_id", acting.ID),
		slog.String("target_user_id", targetUserID),
		slog.Bool("is_admin", role.IsAdmin),
	)

	return &Result{UserID: role.UserID, IsAdmin: role.IsAdmin}, nil
}

// BulkSetAdmin は各エントリに入力順でSetAdminを適用する。
// 1件の失敗は他のエントリに影響せず、結果は入力と同じ長さ・順序で返す。
func (p *Policy) BulkSetAdmin(ctx context.Context, acting model.RequestIdentity, updates []AdminUpdate) []ItemResult {
	results := make([]ItemResult, len(updates))
	for i, u := range updates {
		res, err := p.SetAdmin(ctx, acting, u.UserID, u.IsAdmin)
		if err != nil {
			results[i] = ItemResult{UserID: u.UserID, IsAdmin: u.IsAdmin, Err: err}
			continue
		}
		results[i] = ItemResult{UserID: res.UserID, IsAdmin: res.IsAdmin}
	}
	return results
}

// storeError はストア呼び出しのエラーをSTORE_UNAVAILABLEに変換する。
// 判定不能を「権限なし」として扱わないよう、原因によらず同じ種別を返す。
func (p *Policy) storeError(op, userID string, err error) error {
	level := slog.LevelError
	if repository.IsTransient(err) {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "role store unavailable",
		slog.String("op", op),
		slog.String("user_id", userID),
		slog.String("error", err.Error()),
	)
	return model.NewStoreUnavailableError()
}
