package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/leadman/internal/model"
	"github.com/hitoshi/leadman/internal/repository"
)

// PasswordUserRepository はPostgresCredentialStoreが使用するユーザーリポジトリの操作。
type PasswordUserRepository interface {
	FindPasswordHash(ctx context.Context, email string) (*model.User, string, error)
	Create(ctx context.Context, user *model.User, passwordHash string) error
}

// PostgresCredentialStore はusers.password_hashにbcryptハッシュを保存する資格情報ストア。
type PostgresCredentialStore struct {
	users     PasswordUserRepository
	cost      int
	dummyHash []byte
}

// NewPostgresCredentialStore はPostgresCredentialStoreを生成する。
// costが範囲外の場合はbcrypt.DefaultCostを使用する。
func NewPostgresCredentialStore(users PasswordUserRepository, cost int) (*PostgresCredentialStore, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	// 未登録メールアドレスでも同じコストの比較を行うためのハッシュ
	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}

	return &PostgresCredentialStore{
		users:     users,
		cost:      cost,
		dummyHash: dummy,
	}, nil
}

// VerifyPassword はメールアドレスとパスワードを照合する。
func (s *PostgresCredentialStore) VerifyPassword(ctx context.Context, email, password string) (model.Identity, error) {
	user, hash, err := s.users.FindPasswordHash(ctx, email)
	if err != nil {
		return model.Identity{}, fmt.Errorf("failed to find credentials: %w", err)
	}

	if user == nil {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return model.Identity{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return model.Identity{}, ErrInvalidCredentials
	}

	return model.Identity{ID: user.ID, Email: user.Email, CreatedAt: user.CreatedAt}, nil
}

// CreateAccount はパスワードをハッシュ化してアカウントを作成する。
func (s *PostgresCredentialStore) CreateAccount(ctx context.Context, email, password string) (model.Identity, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return model.Identity{}, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &model.User{
		ID:        uuid.New().String(),
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.users.Create(ctx, user, string(hash)); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return model.Identity{}, ErrAccountExists
		}
		return model.Identity{}, fmt.Errorf("failed to create account: %w", err)
	}

	return model.Identity{ID: user.ID, Email: user.Email, CreatedAt: user.CreatedAt}, nil
}

// compile-time interface check
var _ CredentialStore = (*PostgresCredentialStore)(nil)
