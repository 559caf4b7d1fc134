// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/leadman/internal/metrics"
	"github.com/hitoshi/leadman/internal/model"
	"github.com/hitoshi/leadman/internal/token"
)

// TokenCookieName はセッショントークンを保持するCookieの名前。
const TokenCookieName = "token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストにRequestIdentityを格納するためのキー。
var identityContextKey = contextKey("identity")

// TokenVerifier はセッショントークンの検証に必要なインターフェース。
// token.Codecが実装する。
type TokenVerifier interface {
	VerifyWithExpiry(raw string) (model.Identity, time.Time, error)
}

// Authenticator はリクエストからセッショントークンを取り出して検証する。
// データベースは参照せず、トークンのクレームを識別情報とする。
type Authenticator struct {
	verifier TokenVerifier
	metrics  metrics.MetricsCollector
}

// NewAuthenticator はAuthenticatorを生成する。
func NewAuthenticator(verifier TokenVerifier, mc metrics.MetricsCollector) *Authenticator {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Authenticator{verifier: verifier, metrics: mc}
}

// Authenticate はリクエストのトークンを検証し、RequestIdentityを返す。
// トークンはCookie、Authorizationヘッダー（Bearer）の順に探す。
// 失敗時はUNAUTHENTICATED、INVALID_TOKEN、TOKEN_EXPIRED、INTERNAL_ERRORのいずれかを返す。
func (a *Authenticator) Authenticate(r *http.Request) (model.RequestIdentity, error) {
	raw := tokenFromRequest(r)
	if raw == "" {
		a.metrics.RecordTokenRejection("missing")
		return model.RequestIdentity{}, model.NewUnauthenticatedError()
	}

	identity, expiresAt, err := a.verifier.VerifyWithExpiry(raw)
	switch {
	case err == nil:
	case errors.Is(err, token.ErrExpired):
		a.metrics.RecordTokenRejection("expired")
		return model.RequestIdentity{}, model.NewTokenExpiredError()
	case errors.Is(err, token.ErrMalformed):
		a.metrics.RecordTokenRejection("invalid")
		return model.RequestIdentity{}, model.NewInvalidTokenError()
	default:
		slog.Error("failed to verify session token",
			slog.String("error", err.Error()),
		)
		return model.RequestIdentity{}, model.NewInternalError()
	}

	return model.RequestIdentity{
		ID:        identity.ID,
		Email:     identity.Email,
		ExpiresAt: expiresAt,
	}, nil
}

// tokenFromRequest はCookieまたはAuthorizationヘッダーからトークンを取り出す。
func tokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(TokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return bearerToken(r)
}

// bearerToken はAuthorization: Bearer ヘッダーの値を返す。
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// IdentityFromContext はリクエストコンテキストからRequestIdentityを取得する。
// ルートガードを通過したリクエストでのみ有効。
func IdentityFromContext(ctx context.Context) (model.RequestIdentity, bool) {
	ident, ok := ctx.Value(identityContextKey).(model.RequestIdentity)
	if !ok || ident.ID == "" {
		return model.RequestIdentity{}, false
	}
	return ident, true
}

// ContextWithIdentity はコンテキストにRequestIdentityを注入する。
// リクエストログ用のユーザーIDも記録する。
func ContextWithIdentity(ctx context.Context, ident model.RequestIdentity) context.Context {
	if info := requestInfoFromContext(ctx); info != nil {
		info.setUserID(ident.ID)
	}
	return context.WithValue(ctx, identityContextKey, ident)
}
