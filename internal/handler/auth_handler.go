package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/leadman/internal/auth"
	"github.com/hitoshi/leadman/internal/middleware"
	"github.com/hitoshi/leadman/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, email, password string) (*auth.Session, error)
	Login(ctx context.Context, email, password string, rememberMe bool) (*auth.Session, error)
	Me(ctx context.Context, ident model.RequestIdentity) (*auth.Me, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain string
	CookieSecure bool

	// Clock はCookieの有効期間の計算に使用する。nilの場合はtime.Nowを使用する。
	Clock func() time.Time
}

// AuthHandler はアカウント登録・ログイン関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// credentialsRequest は登録・ログインリクエストのボディ。
type credentialsRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// sessionResponse は登録・ログイン成功時のAPIレスポンス。
type sessionResponse struct {
	User      userResponse `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expires_at"`
}

// meResponse は自身の識別情報のAPIレスポンス。
type meResponse struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	IsAdmin        bool   `json:"is_admin"`
	TokenExpiresAt string `json:"token_expires_at"`
}

// Register はアカウントを作成し、セッショントークンを発行する。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.service.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.setTokenCookie(w, session)
	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

// Login はメールアドレスとパスワードで認証し、セッショントークンを発行する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.service.Login(r.Context(), req.Email, req.Password, req.RememberMe)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.setTokenCookie(w, session)
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// Logout はトークンCookieを削除する。
// トークンはサーバー側に保存しないため、発行済みトークン自体は有効期限まで有効。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のトークンの識別情報と最新の管理者フラグを返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request, ident model.RequestIdentity) {
	me, err := h.service.Me(r.Context(), ident)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		ID:             me.ID,
		Email:          me.Email,
		IsAdmin:        me.IsAdmin,
		TokenExpiresAt: formatTime(me.TokenExpiresAt),
	})
}

// setTokenCookie はトークンをHttpOnly Cookieに設定する。有効期間はトークンと同じ。
func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, session *auth.Session) {
	maxAge := int(session.ExpiresAt.Sub(h.config.Clock()).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookieName,
		Value:    session.Token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func toSessionResponse(session *auth.Session) sessionResponse {
	return sessionResponse{
		User: userResponse{
			ID:    session.Identity.ID,
			Email: session.Identity.Email,
		},
		Token:     session.Token,
		ExpiresAt: formatTime(session.ExpiresAt),
	}
}
