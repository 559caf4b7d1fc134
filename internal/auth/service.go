// Package auth はメールアドレスとパスワードによる登録・ログインと、
// セッショントークンの発行を提供する。
package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/leadman/internal/metrics"
	"github.com/hitoshi/leadman/internal/model"
	"github.com/hitoshi/leadman/internal/repository"
	"github.com/hitoshi/leadman/internal/token"
)

// TokenIssuer はセッショントークンを発行するインターフェース。
type TokenIssuer interface {
	Issue(identity model.Identity, ttl time.Duration) (*token.Issued, error)
}

// AdminChecker は管理者判定のインターフェース。
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	DefaultTTL   time.Duration // 通常ログインのトークン有効期間
	RememberTTL  time.Duration // remember me指定時のトークン有効期間
	StoreTimeout time.Duration // 資格情報ストア呼び出しの上限時間
}

// Session はログイン・登録の結果。
type Session struct {
	Identity  model.Identity
	Token     string
	ExpiresAt time.Time
}

// Me は自身の識別情報。IsAdminは呼び出しごとに最新の値を取得する。
type Me struct {
	ID             string
	Email          string
	IsAdmin        bool
	TokenExpiresAt time.Time
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	store   CredentialStore
	tokens  TokenIssuer
	admins  AdminChecker
	metrics metrics.MetricsCollector
	config  ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	store CredentialStore,
	tokens TokenIssuer,
	admins AdminChecker,
	mc metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if config.StoreTimeout <= 0 {
		config.StoreTimeout = 5 * time.Second
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{
		store:   store,
		tokens:  tokens,
		admins:  admins,
		metrics: mc,
		config:  config,
	}
}

// Register はアカウントを作成し、デフォルト有効期間のトークンを発行する。
func (s *Service) Register(ctx context.Context, email, password string) (*Session, error) {
	sess, err := s.register(ctx, email, password)
	s.recordAttempt("register", err)
	return sess, err
}

func (s *Service) register(ctx context.Context, email, password string) (*Session, error) {
	// 1. 入力検証
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	// 2. 資格情報ストアにアカウントを作成
	ctx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	start := time.Now()
	identity, err := s.store.CreateAccount(ctx, email, password)
	s.metrics.RecordStoreLatency("create_account", time.Since(start))
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			return nil, model.NewAccountExistsError()
		}
		return nil, s.storeError("create account", err)
	}

	slog.Info("account registered", slog.String("user_id", identity.ID))

	// 3. トークン発行
	return s.issue(identity, s.config.DefaultTTL)
}

// Login はメールアドレスとパスワードを照合し、トークンを発行する。
// rememberMeがtrueの場合は延長された有効期間を使用する。
func (s *Service) Login(ctx context.Context, email, password string, rememberMe bool) (*Session, error) {
	sess, err := s.login(ctx, email, password, rememberMe)
	s.recordAttempt("login", err)
	return sess, err
}

func (s *Service) login(ctx context.Context, email, password string, rememberMe bool) (*Session, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, model.NewValidationError("メールアドレスとパスワードは必須です")
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	start := time.Now()
	identity, err := s.store.VerifyPassword(ctx, email, password)
	s.metrics.RecordStoreLatency("verify_password", time.Since(start))
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return nil, model.NewInvalidCredentialsError()
		}
		return nil, s.storeError("verify password", err)
	}

	ttl := s.config.DefaultTTL
	if rememberMe && s.config.RememberTTL > 0 {
		ttl = s.config.RememberTTL
	}

	slog.Info("user logged in",
		slog.String("user_id", identity.ID),
		slog.Bool("remember_me", rememberMe),
	)

	return s.issue(identity, ttl)
}

// Me はトークンから得たidとemailに、最新の管理者フラグを付けて返す。
// idとemailは資格情報ストアの現在の値とずれている可能性がある（トークン失効まで）。
func (s *Service) Me(ctx context.Context, ident model.RequestIdentity) (*Me, error) {
	if ident.ID == "" {
		return nil, model.NewUnauthenticatedError()
	}

	isAdmin := ident.IsAdmin
	if !ident.AdminResolved {
		var err error
		isAdmin, err = s.admins.IsAdmin(ctx, ident.ID)
		if err != nil {
			var apiErr *model.APIError
			if errors.As(err, &apiErr) {
				return nil, apiErr
			}
			return nil, model.NewStoreUnavailableError()
		}
	}

	return &Me{
		ID:             ident.ID,
		Email:          ident.Email,
		IsAdmin:        isAdmin,
		TokenExpiresAt: ident.ExpiresAt,
	}, nil
}

// issue はトークンを発行してSessionを組み立てる。
func (s *Service) issue(identity model.Identity, ttl time.Duration) (*Session, error) {
	issued, err := s.tokens.Issue(identity, ttl)
	if err != nil {
		slog.Error("failed to issue token",
			slog.String("user_id", identity.ID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewInternalError()
	}

	return &Session{
		Identity:  identity,
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
	}, nil
}

// storeError は資格情報ストアのエラーを名前付きの種別に変換する。
func (s *Service) storeError(op string, err error) error {
	if errors.Is(err, ErrStoreUnavailable) || repository.IsTransient(err) {
		slog.Warn("credential store unavailable",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return model.NewStoreUnavailableError()
	}
	slog.Error("credential store failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	return model.NewInternalError()
}

// recordAttempt は試行結果をメトリクスに記録する。
func (s *Service) recordAttempt(op string, err error) {
	if err == nil {
		s.metrics.RecordAuthAttempt(op, "success")
		return
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		s.metrics.RecordAuthAttempt(op, apiErr.Code)
		return
	}
	s.metrics.RecordAuthAttempt(op, model.ErrCodeInternal)
}
