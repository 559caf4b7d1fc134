package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/leadman/internal/model"
	"github.com/hitoshi/leadman/internal/repository"
)

// maxProviderResponseSize は認証プロバイダーのレスポンスとして読み込む最大バイト数。
const maxProviderResponseSize = 1 << 20

// ProfileMirror は外部ストアで認証されたユーザーをローカルのusersテーブルに反映する。
type ProfileMirror interface {
	UpsertProfile(ctx context.Context, user *model.User) error
}

// HostedStoreConfig はHostedCredentialStoreの設定。
type HostedStoreConfig struct {
	// BaseURL はGoTrue互換APIのベースURL（例: https://xxx.supabase.co/auth/v1）。
	BaseURL string
	// APIKey はapikeyヘッダーに設定するキー。
	APIKey string
	// Timeout は1リクエストあたりの上限時間。
	Timeout time.Duration

	// テスト用に差し替え可能なHTTPクライアント
	HTTPClient *http.Client
}

// HostedCredentialStore はGoTrue互換のホスト型認証サービスを資格情報ストアとして使用する。
// 認証に成功したユーザーはローカルのusersテーブルにミラーする。
type HostedCredentialStore struct {
	config HostedStoreConfig
	client *http.Client
	mirror ProfileMirror
}

// NewHostedCredentialStore はHostedCredentialStoreを生成する。
func NewHostedCredentialStore(config HostedStoreConfig, mirror ProfileMirror) *HostedCredentialStore {
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	return &HostedCredentialStore{
		config: config,
		client: client,
		mirror: mirror,
	}
}

// providerUser はプロバイダーが返すユーザー情報。
type providerUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// tokenResponse は/tokenエンドポイントのレスポンス。
type tokenResponse struct {
	AccessToken string       `json:"access_token"`
	User        providerUser `json:"user"`
}

// signupResponse は/signupエンドポイントのレスポンス。
// メール確認が有効な場合はユーザー情報がトップレベルに、無効な場合はuserに入る。
type signupResponse struct {
	providerUser
	User *providerUser `json:"user"`
}

// providerError はプロバイダーのエラーレスポンス。バージョンによりフィールド名が異なる。
type providerError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
}

func (e providerError) text() string {
	return strings.ToLower(strings.Join([]string{e.Error, e.ErrorDescription, e.ErrorCode, e.Msg}, " "))
}

// VerifyPassword はパスワードグラントでプロバイダーに照合を依頼する。
func (s *HostedCredentialStore) VerifyPassword(ctx context.Context, email, password string) (model.Identity, error) {
	status, body, err := s.post(ctx, "/token?grant_type=password", email, password)
	if err != nil {
		return model.Identity{}, err
	}

	switch {
	case status == http.StatusOK:
	case status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusUnprocessableEntity:
		return model.Identity{}, ErrInvalidCredentials
	default:
		return model.Identity{}, statusError("token", status, body)
	}

	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.Identity{}, fmt.Errorf("failed to parse token response: %w", err)
	}
	if resp.User.ID == "" {
		return model.Identity{}, fmt.Errorf("empty user id in token response")
	}

	return s.mirrorIdentity(ctx, resp.User, email)
}

// CreateAccount はプロバイダーにアカウント作成を依頼する。
func (s *HostedCredentialStore) CreateAccount(ctx context.Context, email, password string) (model.Identity, error) {
	status, body, err := s.post(ctx, "/signup", email, password)
	if err != nil {
		return model.Identity{}, err
	}

	if status == http.StatusBadRequest || status == http.StatusUnprocessableEntity {
		var perr providerError
		_ = json.Unmarshal(body, &perr)
		text := perr.text()
		if strings.Contains(text, "already") || strings.Contains(text, "user_already_exists") {
			return model.Identity{}, ErrAccountExists
		}
		return model.Identity{}, fmt.Errorf("signup rejected with status %d: %s", status, strings.TrimSpace(text))
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return model.Identity{}, statusError("signup", status, body)
	}

	var resp signupResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.Identity{}, fmt.Errorf("failed to parse signup response: %w", err)
	}
	user := resp.providerUser
	if resp.User != nil {
		user = *resp.User
	}
	if user.ID == "" {
		return model.Identity{}, fmt.Errorf("empty user id in signup response")
	}

	return s.mirrorIdentity(ctx, user, email)
}

// post はメールアドレスとパスワードをJSONで送信し、ステータスとボディを返す。
// ネットワークエラーはErrStoreUnavailableとして返す。
func (s *HostedCredentialStore) post(ctx context.Context, path, email, password string) (int, []byte, error) {
	payload, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return 0, nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", s.config.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderResponseSize))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: failed to read response: %v", ErrStoreUnavailable, err)
	}

	return resp.StatusCode, body, nil
}

// mirrorIdentity はプロバイダーのユーザーをローカルに反映し、Identityを返す。
func (s *HostedCredentialStore) mirrorIdentity(ctx context.Context, pu providerUser, fallbackEmail string) (model.Identity, error) {
	email := NormalizeEmail(pu.Email)
	if email == "" {
		email = fallbackEmail
	}
	createdAt := pu.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	user := &model.User{
		ID:        pu.ID,
		Email:     email,
		CreatedAt: createdAt,
		UpdatedAt: time.Now().UTC(),
	}
	if s.mirror != nil {
		if err := s.mirror.UpsertProfile(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return model.Identity{}, fmt.Errorf("local user with email already exists under another id: %w", err)
			}
			return model.Identity{}, fmt.Errorf("failed to mirror user profile: %w", err)
		}
	}

	return model.Identity{ID: user.ID, Email: user.Email, CreatedAt: user.CreatedAt}, nil
}

// statusError は想定外のステータスをエラーに変換する。
// 5xxと429は一時的な障害としてErrStoreUnavailableを返す。
func statusError(op string, status int, body []byte) error {
	if status >= 500 || status == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s returned status %d", ErrStoreUnavailable, op, status)
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Errorf("%s failed with status %d: %s", op, status, string(body))
}

// compile-time interface check
var _ CredentialStore = (*HostedCredentialStore)(nil)
