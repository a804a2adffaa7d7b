package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/solidfoundation/internal/identity"
	"github.com/hitoshi/solidfoundation/internal/model"
	"github.com/hitoshi/solidfoundation/internal/session"
)

// contextKey はコンテキストキーの型。
type contextKey string

const (
	gatewayContextKey contextKey = "identity_gateway"
	storeContextKey   contextKey = "session_store"
)

const (
	// AccessTokenCookie はアクセストークンを保持するCookieの名前。
	AccessTokenCookie = "sf-access-token"
	// RefreshTokenCookie はリフレッシュトークンを保持するCookieの名前。
	RefreshTokenCookie = "sf-refresh-token"

	sessionCookieMaxAge = 30 * 24 * 60 * 60 // 30日
)

// SessionConfig はセッションミドルウェアの設定。
type SessionConfig struct {
	Provider     identity.Provider
	AppURL       string
	CookieSecure bool
	CookieDomain string
}

// NewSessionMiddleware はCookieのトークンからリクエスト単位のGatewayとStoreを構築するミドルウェアを返す。
// Storeの変化はレスポンスのCookieへ書き戻す。未認証でもリクエストは拒否しない（拒否はNewRouteGuardの役割）。
func NewSessionMiddleware(config SessionConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			access := cookieValue(r, AccessTokenCookie)
			refresh := cookieValue(r, RefreshTokenCookie)

			gw := identity.NewGateway(config.Provider, identity.GatewayConfig{
				AppURL: config.AppURL,
			}, identity.SessionFromTokens(access, refresh))

			store := session.NewStore()
			mirror := &cookieMirror{
				w:       w,
				config:  config,
				access:  access,
				refresh: refresh,
			}
			stop := store.OnChange(mirror.write)
			defer stop()
			defer store.Close()

			if err := store.Init(r.Context(), gw); err != nil {
				slog.Warn("failed to restore session",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
			}

			if user := store.Snapshot().User; user != nil {
				setLoggedUserID(r.Context(), user.ID)
			}

			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), gw, store)))
		})
	}
}

// cookieMirror はセッションのトークンをCookieに書き戻す。
// 値が変わった場合のみSet-Cookieを出力する。
type cookieMirror struct {
	w       http.ResponseWriter
	config  SessionConfig
	access  string
	refresh string
}

func (m *cookieMirror) write(st session.State) {
	var access, refresh string
	if st.Session != nil {
		access = st.Session.AccessToken
		refresh = st.Session.RefreshToken
	}
	if access == m.access && refresh == m.refresh {
		return
	}
	m.access, m.refresh = access, refresh

	http.SetCookie(m.w, m.cookie(AccessTokenCookie, access))
	http.SetCookie(m.w, m.cookie(RefreshTokenCookie, refresh))
}

func (m *cookieMirror) cookie(name, value string) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   m.config.CookieDomain,
		MaxAge:   sessionCookieMaxAge,
		HttpOnly: true,
		Secure:   m.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if value == "" {
		c.MaxAge = -1
	}
	return c
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// ContextWithSession はGatewayとStoreをコンテキストに設定する。
func ContextWithSession(ctx context.Context, gw *identity.Gateway, store *session.Store) context.Context {
	ctx = context.WithValue(ctx, gatewayContextKey, gw)
	return context.WithValue(ctx, storeContextKey, store)
}

// GatewayFromContext はコンテキストからリクエスト単位のGatewayを取得する。
func GatewayFromContext(ctx context.Context) (*identity.Gateway, bool) {
	gw, ok := ctx.Value(gatewayContextKey).(*identity.Gateway)
	return gw, ok && gw != nil
}

// StoreFromContext はコンテキストからリクエスト単位のStoreを取得する。
func StoreFromContext(ctx context.Context) (*session.Store, bool) {
	store, ok := ctx.Value(storeContextKey).(*session.Store)
	return store, ok && store != nil
}

// UserFromContext はコンテキストから認証済みユーザーを取得する。
func UserFromContext(ctx context.Context) (*model.AuthUser, error) {
	store, ok := StoreFromContext(ctx)
	if !ok {
		return nil, errors.New("session store not found in context")
	}
	user := store.Snapshot().User
	if user == nil {
		return nil, errors.New("user not authenticated")
	}
	return user, nil
}

// UserIDFromContext はコンテキストから認証済みユーザーのIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	user, err := UserFromContext(ctx)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}
