package identity

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/hitoshi/solidfoundation/internal/model"
)

// AuthChangeEvent は認証状態の変化の種類。
type AuthChangeEvent string

const (
	EventSignedIn       AuthChangeEvent = "SIGNED_IN"
	EventSignedOut      AuthChangeEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthChangeEvent = "TOKEN_REFRESHED"
	EventUserUpdated    AuthChangeEvent = "USER_UPDATED"
)

// Event は購読者に通知される認証状態の変化。
// サインアウト時のSessionはnil。
type Event struct {
	Type    AuthChangeEvent
	Session *model.AuthSession
}

// Subscription はOnAuthStateChangeの購読ハンドル。
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe は購読を解除する。複数回呼び出しても安全。
func (s *Subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}

// SupportedOAuthProviders はサインインに利用できるOAuthプロバイダー。
var SupportedOAuthProviders = []string{"google", "github", "facebook", "discord"}

// IsSupportedOAuthProvider はproviderが対応済みのOAuthプロバイダーかを返す。
func IsSupportedOAuthProvider(provider string) bool {
	for _, p := range SupportedOAuthProviders {
		if p == provider {
			return true
		}
	}
	return false
}

// OAuthRedirect はOAuthサインイン開始時にブラウザを遷移させる先と、
// コールバックでのコード交換に使うPKCEベリファイア。
type OAuthRedirect struct {
	Provider string
	URL      string
	Verifier string
}

// GatewayConfig はGatewayの設定。
type GatewayConfig struct {
	AppURL string
	// RefreshLeeway は有効期限のこの時間前からセッションを期限切れとみなす。
	RefreshLeeway time.Duration
}

// Gateway はIdP操作のファサード。
// ページ（リクエスト）単位で生成し、現在のセッションを保持する。
// セッションが変化するたびにOnAuthStateChangeの購読者へイベントを通知する。
type Gateway struct {
	provider Provider
	appURL   string
	leeway   time.Duration
	now      func() time.Time

	mu       sync.Mutex
	session  *model.AuthSession
	verified bool

	listenersMu sync.Mutex
	listeners   map[int]func(Event)
	nextID      int
}

// NewGateway はGatewayを生成する。initialはCookie等から復元したセッション（nil可）。
// 復元したセッションはGetSessionでIdPに検証されるまで未検証として扱う。
func NewGateway(provider Provider, config GatewayConfig, initial *model.AuthSession) *Gateway {
	leeway := config.RefreshLeeway
	if leeway <= 0 {
		leeway = 30 * time.Second
	}
	return &Gateway{
		provider:  provider,
		appURL:    config.AppURL,
		leeway:    leeway,
		now:       time.Now,
		session:   initial,
		listeners: make(map[int]func(Event)),
	}
}

// OnAuthStateChange は認証状態の変化を購読する。
// fnはイベントを発生させた操作と同じゴルーチンで、内部ロックの外から呼び出される。
func (g *Gateway) OnAuthStateChange(fn func(Event)) *Subscription {
	g.listenersMu.Lock()
	id := g.nextID
	g.nextID++
	g.listeners[id] = fn
	g.listenersMu.Unlock()

	return &Subscription{cancel: func() {
		g.listenersMu.Lock()
		delete(g.listeners, id)
		g.listenersMu.Unlock()
	}}
}

func (g *Gateway) emit(ev Event) {
	g.listenersMu.Lock()
	fns := make([]func(Event), 0, len(g.listeners))
	for _, fn := range g.listeners {
		fns = append(fns, fn)
	}
	g.listenersMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// setSession はセッションを置き換える。
func (g *Gateway) setSession(s *model.AuthSession, verified bool) {
	g.mu.Lock()
	g.session = s
	g.verified = verified
	g.mu.Unlock()
}

// Session はネットワークアクセスなしで現在のセッションを返す。
func (g *Gateway) Session() *model.AuthSession {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session
}

// GetSession は現在のセッションを返す。
// 期限切れの場合は一度だけリフレッシュを試み、未検証の場合はIdPでユーザーを確認する。
// リフレッシュや検証でトークンが拒否された場合はセッションを破棄してSIGNED_OUTを通知し、nilを返す。
func (g *Gateway) GetSession(ctx context.Context) (*model.AuthSession, error) {
	g.mu.Lock()
	s := g.session
	verified := g.verified
	g.mu.Unlock()

	if s == nil {
		return nil, nil
	}

	if s.Expired(g.now(), g.leeway) {
		if s.RefreshToken == "" {
			g.clear()
			return nil, nil
		}
		refreshed, err := g.provider.RefreshSession(ctx, s.RefreshToken)
		if err != nil {
			g.clear()
			return nil, fmt.Errorf("failed to refresh session: %w", err)
		}
		s = refreshed
		verified = refreshed.User != nil
		g.setSession(s, verified)
		g.emit(Event{Type: EventTokenRefreshed, Session: s})
	}

	if !verified {
		user, err := g.provider.GetUser(ctx, s.AccessToken)
		if err != nil {
			if pe, ok := AsProviderError(err); ok && pe.Unauthorized() {
				g.clear()
				return nil, nil
			}
			return nil, fmt.Errorf("failed to verify session: %w", err)
		}
		next := *s
		next.User = user
		s = &next
		g.setSession(s, true)
	}

	return s, nil
}

// clear はセッションを破棄してSIGNED_OUTを通知する。
func (g *Gateway) clear() {
	g.setSession(nil, false)
	g.emit(Event{Type: EventSignedOut})
}

// newPKCE はPKCEのベリファイアとS256チャレンジを生成する。
func newPKCE() (verifier, challenge string) {
	verifier = oauth2.GenerateVerifier()
	return verifier, oauth2.S256ChallengeFromVerifier(verifier)
}

// SignUp はユーザーを登録する。確認メールのリンク先はサーバー側コールバック。
// メール確認が必要なためセッションは設定しない。
// 戻り値はリンクのコード交換に使うPKCEベリファイア。
func (g *Gateway) SignUp(ctx context.Context, email, password, phone string) (string, error) {
	metadata := map[string]any{"email": email}
	if phone != "" {
		metadata["phone"] = phone
	}

	verifier, challenge := newPKCE()
	_, err := g.provider.SignUp(ctx, SignUpParams{
		Email:         email,
		Password:      password,
		Phone:         phone,
		Metadata:      metadata,
		RedirectTo:    g.appURL + "/api/auth/callback",
		CodeChallenge: challenge,
	})
	if err != nil {
		return "", err
	}
	return verifier, nil
}

// SignIn はメールアドレスとパスワードでサインインし、SIGNED_INを通知する。
func (g *Gateway) SignIn(ctx context.Context, email, password string) error {
	s, err := g.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return err
	}
	g.setSession(s, s.User != nil)
	g.emit(Event{Type: EventSignedIn, Session: s})
	return nil
}

// SignInWithOAuth はOAuthプロバイダーの認可URLをPKCEチャレンジ付きで生成する。
// サインインの完了はコールバックでのExchangeCodeで行われる。
func (g *Gateway) SignInWithOAuth(_ context.Context, provider string) (*OAuthRedirect, error) {
	if !IsSupportedOAuthProvider(provider) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}

	verifier, challenge := newPKCE()
	return &OAuthRedirect{
		Provider: provider,
		URL:      g.provider.AuthorizeURL(provider, g.appURL+"/auth/callback", challenge),
		Verifier: verifier,
	}, nil
}

// ExchangeCode は認可コードをセッションに交換し、SIGNED_INを通知する。
func (g *Gateway) ExchangeCode(ctx context.Context, code, verifier string) (*model.AuthSession, error) {
	s, err := g.provider.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return nil, err
	}
	g.setSession(s, s.User != nil)
	g.emit(Event{Type: EventSignedIn, Session: s})
	return s, nil
}

// SignOut は全端末のセッションを失効させる。
// IdPでの失効に失敗してもローカルのセッションは破棄し、SIGNED_OUTを通知する。
func (g *Gateway) SignOut(ctx context.Context) error {
	s := g.Session()

	var err error
	if s != nil && s.AccessToken != "" {
		err = g.provider.SignOut(ctx, s.AccessToken, SignOutGlobal)
		// 既に失効しているトークンは成功とみなす
		if pe, ok := AsProviderError(err); ok && (pe.Unauthorized() || pe.Status == http.StatusNotFound) {
			err = nil
		}
	}

	g.clear()
	return err
}

// ResetPassword はパスワード再設定メールを送信させる。
// リンクはサーバー側コールバックでセッションに交換され、そのままパスワードを更新できる。
// 戻り値はリンクのコード交換に使うPKCEベリファイア。
func (g *Gateway) ResetPassword(ctx context.Context, email string) (string, error) {
	verifier, challenge := newPKCE()
	if err := g.provider.ResetPasswordForEmail(ctx, email, g.appURL+"/auth/callback", challenge); err != nil {
		return "", err
	}
	return verifier, nil
}

// UpdatePassword は現在のユーザーのパスワードを更新し、USER_UPDATEDを通知する。
func (g *Gateway) UpdatePassword(ctx context.Context, newPassword string) error {
	s := g.Session()
	if s == nil {
		return ErrNoSession
	}

	user, err := g.provider.UpdateUser(ctx, s.AccessToken, UserAttributes{Password: newPassword})
	if err != nil {
		return err
	}

	next := *s
	next.User = user
	g.setSession(&next, true)
	g.emit(Event{Type: EventUserUpdated, Session: &next})
	return nil
}

// IsClientError はIdPのエラーが入力値起因（4xx）かを返す。
func IsClientError(err error) bool {
	pe, ok := AsProviderError(err)
	if !ok {
		return false
	}
	return pe.Status >= 400 && pe.Status < 500
}
