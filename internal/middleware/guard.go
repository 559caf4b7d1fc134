package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/hitoshi/leadman/internal/metrics"
	"github.com/hitoshi/leadman/internal/model"
)

// AdminChecker は管理者判定に必要なインターフェース。authz.Policyが実装する。
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// IdentityHandlerFunc は検証済みの識別情報を引数で受け取るハンドラー。
type IdentityHandlerFunc func(w http.ResponseWriter, r *http.Request, ident model.RequestIdentity)

// Guard は認証・管理者権限のルートガードを提供する。
// ガードは通過か拒否のみを行い、拒否時に副作用を残さない。
type Guard struct {
	auth    *Authenticator
	admins  AdminChecker
	metrics metrics.MetricsCollector
}

// NewGuard はGuardを生成する。
func NewGuard(auth *Authenticator, admins AdminChecker, mc metrics.MetricsCollector) *Guard {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Guard{auth: auth, admins: admins, metrics: mc}
}

// RequireAuth は有効なセッショントークンを要求するミドルウェア。
// 成功時は識別情報をコンテキストに格納して次のハンドラーを呼ぶ。
func (g *Guard) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, err := g.auth.Authenticate(r)
		if err != nil {
			g.metrics.RecordGuardDenial("auth")
			WriteError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), ident)))
	})
}

// RequireAdmin は管理者権限を要求するミドルウェア。
// 認証の拒否はRequireAuthと同じ応答をそのまま返す。
// 管理者でなければFORBIDDEN、ロールストアに到達できなければSTORE_UNAVAILABLEを返す。
func (g *Guard) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 1. 認証
		ident, err := g.auth.Authenticate(r)
		if err != nil {
			g.metrics.RecordGuardDenial("auth")
			WriteError(w, err)
			return
		}

		// 2. 管理者判定
		ident, err = g.ResolveAdmin(r.Context(), ident)
		if err != nil {
			g.metrics.RecordGuardDenial("admin")
			WriteError(w, err)
			return
		}
		if !ident.IsAdmin {
			g.metrics.RecordGuardDenial("admin")
			WriteError(w, model.NewForbiddenError())
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), ident)))
	})
}

// ResolveAdmin は識別情報の管理者フラグが未解決の場合にロールストアへ問い合わせる。
// 取得失敗時はSTORE_UNAVAILABLEを返し、非管理者として扱わない。
func (g *Guard) ResolveAdmin(ctx context.Context, ident model.RequestIdentity) (model.RequestIdentity, error) {
	if ident.AdminResolved {
		return ident, nil
	}

	isAdmin, err := g.admins.IsAdmin(ctx, ident.ID)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return ident, apiErr
		}
		return ident, model.NewStoreUnavailableError()
	}

	ident.IsAdmin = isAdmin
	ident.AdminResolved = true
	return ident, nil
}

// WithIdentity はコンテキストの識別情報を取り出し、引数としてハンドラーに渡す。
// RequireAuthまたはRequireAdminの内側で使用する。
func WithIdentity(fn IdentityHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := IdentityFromContext(r.Context())
		if !ok {
			WriteError(w, model.NewUnauthenticatedError())
			return
		}
		fn(w, r, ident)
	}
}
