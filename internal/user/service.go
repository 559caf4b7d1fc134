// Package user は管理画面向けのユーザー管理ロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/leadman/internal/model"
	"github.com/hitoshi/leadman/internal/repository"
)

// 一覧取得の件数
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// UserStore はユーザーの参照・削除インターフェース。
type UserStore interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	ListWithStats(ctx context.Context, offset, limit int) ([]model.UserSummary, error)
	Count(ctx context.Context) (int, error)
	DeleteByID(ctx context.Context, id string) error
}

// AdminCounter は管理者数の集計インターフェース。
type AdminCounter interface {
	CountAdmins(ctx context.Context) (int, error)
}

// AdminChecker は管理者判定のインターフェース。
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// LeadStatsProvider はリード集計のインターフェース。userIDが空の場合は全ユーザーを集計する。
type LeadStatsProvider interface {
	Stats(ctx context.Context, userID string) (*model.LeadStats, error)
}

// Page はユーザー一覧の1ページ分。
type Page struct {
	Users      []model.UserSummary
	Pagination model.Pagination
}

// Detail はユーザー詳細。
type Detail struct {
	User    model.User
	IsAdmin bool
	Stats   model.LeadStats
}

// Service は管理画面向けユーザー管理のサービス層。
// 呼び出し元で管理者権限を確認済みであること。
type Service struct {
	users  UserStore
	roles  AdminCounter
	admins AdminChecker
	leads  LeadStatsProvider
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(users UserStore, roles AdminCounter, admins AdminChecker, leads LeadStatsProvider) *Service {
	return &Service{
		users:  users,
		roles:  roles,
		admins: admins,
		leads:  leads,
	}
}

// ListUsers はリード件数と管理者フラグ付きのユーザー一覧を登録日の新しい順に返す。
func (s *Service) ListUsers(ctx context.Context, page, limit int) (*Page, error) {
	p := model.NewPagination(page, limit, DefaultPageLimit, MaxPageLimit)

	users, err := s.users.ListWithStats(ctx, p.Offset(), p.Limit)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	total, err := s.users.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー数の取得に失敗しました: %w", err)
	}
	if users == nil {
		users = []model.UserSummary{}
	}

	return &Page{Users: users, Pagination: p.WithTotal(total)}, nil
}

// GetUser はユーザーの詳細と、そのユーザーのリード集計を返す。
func (s *Service) GetUser(ctx context.Context, userID string) (*Detail, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	isAdmin, err := s.admins.IsAdmin(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats, err := s.leads.Stats(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &Detail{User: *user, IsAdmin: isAdmin, Stats: *stats}, nil
}

// DeleteUser はユーザーと所有するリードを削除する。
// 実行者自身を削除しようとした場合はストアを呼ばずにSELF_DELETE_FORBIDDENを返す。
// IDは正規形に変換してから比較するため、大文字やハイフンなしの表記でも自分自身と判定する。
// リードの削除とユーザーの削除は同一トランザクションで行う。
func (s *Service) DeleteUser(ctx context.Context, acting model.RequestIdentity, userID string) error {
	canonical, ok := model.CanonicalUserID(userID)
	if !ok {
		return model.NewUserNotFoundError()
	}
	userID = canonical
	if model.SameUser(userID, acting.ID) {
		return model.NewSelfDeleteForbiddenError()
	}

	if err := s.users.DeleteByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError()
		}
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("user deleted by admin",
		slog.String("admin_id", acting.ID),
		slog.String("user_id", userID),
	)
	return nil
}

// Stats は管理ダッシュボードの集計値を返す。
func (s *Service) Stats(ctx context.Context) (*model.AdminStats, error) {
	totalUsers, err := s.users.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー数の取得に失敗しました: %w", err)
	}
	totalAdmins, err := s.roles.CountAdmins(ctx)
	if err != nil {
		return nil, fmt.Errorf("管理者数の取得に失敗しました: %w", err)
	}
	leads, err := s.leads.Stats(ctx, "")
	if err != nil {
		return nil, err
	}

	return &model.AdminStats{
		TotalUsers:  totalUsers,
		TotalAdmins: totalAdmins,
		Leads:       *leads,
	}, nil
}
