// Package identity はIdP（GoTrue互換の認証プロバイダー）との連携を提供する。
//
// Client はIdPのREST APIを呼び出す薄いクライアント、Gateway はページ（リクエスト）単位で
// セッションを保持し、認証状態の変化をイベントとして購読者に通知するファサードである。
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/solidfoundation/internal/model"
)

// SignOutScope はサインアウト時にセッションを失効させる範囲。
type SignOutScope string

const (
	// SignOutGlobal は全端末・全タブのセッションを失効させる。
	SignOutGlobal SignOutScope = "global"
)

// SignUpParams はサインアップ時の入力値。
// CodeChallengeを指定すると確認リンクは?code=付きでRedirectToに戻る。
type SignUpParams struct {
	Email         string
	Password      string
	Phone         string
	Metadata      map[string]any
	RedirectTo    string
	CodeChallenge string
}

// SignUpResult はサインアップの結果。
// メール確認が必要な場合Sessionはnilになる。
type SignUpResult struct {
	User    *model.AuthUser
	Session *model.AuthSession
}

// UserAttributes はユーザー更新時の入力値。空のフィールドは送信しない。
type UserAttributes struct {
	Email    string         `json:"email,omitempty"`
	Password string         `json:"password,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// Provider はGatewayが必要とするIdP操作のインターフェース。
type Provider interface {
	SignUp(ctx context.Context, params SignUpParams) (*SignUpResult, error)
	SignInWithPassword(ctx context.Context, email, password string) (*model.AuthSession, error)
	ExchangeCode(ctx context.Context, code, verifier string) (*model.AuthSession, error)
	RefreshSession(ctx context.Context, refreshToken string) (*model.AuthSession, error)
	AuthorizeURL(provider, redirectTo, codeChallenge string) string
	SignOut(ctx context.Context, accessToken string, scope SignOutScope) error
	ResetPasswordForEmail(ctx context.Context, email, redirectTo, codeChallenge string) error
	UpdateUser(ctx context.Context, accessToken string, attrs UserAttributes) (*model.AuthUser, error)
	GetUser(ctx context.Context, accessToken string) (*model.AuthUser, error)
}

// ClientConfig はClientの設定。
type ClientConfig struct {
	BaseURL    string // 例: https://xxxx.supabase.co
	APIKey     string // 公開（anon）キー
	HTTPClient *http.Client
}

// Client はGoTrue互換IdPのREST APIクライアント。
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient はClientを生成する。HTTPClientが未指定の場合は10秒タイムアウトのクライアントを使う。
func NewClient(config ClientConfig) *Client {
	hc := config.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/") + "/auth/v1",
		apiKey:     config.APIKey,
		httpClient: hc,
		now:        time.Now,
	}
}

// tokenResponse はトークンエンドポイントのレスポンス。
// サインアップでメール確認が必要な場合はユーザー情報がトップレベルに返る。
type tokenResponse struct {
	AccessToken  string          `json:"access_token"`
	TokenType    string          `json:"token_type"`
	ExpiresIn    int64           `json:"expires_in"`
	ExpiresAt    int64           `json:"expires_at"`
	RefreshToken string          `json:"refresh_token"`
	User         *model.AuthUser `json:"user"`

	ID    string `json:"id"`
	Email string `json:"email"`
}

// toSession はトークンレスポンスをAuthSessionに変換する。
// expires_atが無い場合はexpires_in、それも無い場合はJWTのexpクレームから算出する。
func (c *Client) toSession(tr *tokenResponse) (*model.AuthSession, error) {
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}

	s := &model.AuthSession{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
		User:         tr.User,
	}

	switch {
	case tr.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(tr.ExpiresAt, 0)
	case tr.ExpiresIn > 0:
		s.ExpiresAt = c.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	default:
		if claims, err := DecodeAccessToken(tr.AccessToken); err == nil {
			s.ExpiresAt = claims.ExpiresAt
		}
	}

	return s, nil
}

// SignUp はメールアドレスとパスワードでユーザーを登録する。
func (c *Client) SignUp(ctx context.Context, params SignUpParams) (*SignUpResult, error) {
	body := map[string]any{
		"email":    params.Email,
		"password": params.Password,
	}
	if params.Phone != "" {
		body["phone"] = params.Phone
	}
	if len(params.Metadata) > 0 {
		body["data"] = params.Metadata
	}
	setCodeChallenge(body, params.CodeChallenge)

	q := url.Values{}
	if params.RedirectTo != "" {
		q.Set("redirect_to", params.RedirectTo)
	}

	var tr tokenResponse
	if err := c.do(ctx, http.MethodPost, "/signup", q, "", body, &tr); err != nil {
		return nil, fmt.Errorf("sign up failed: %w", err)
	}

	// メール確認が必要な場合はトークンなしでユーザーのみ返る
	if tr.AccessToken == "" {
		user := tr.User
		if user == nil {
			user = &model.AuthUser{ID: tr.ID, Email: tr.Email}
		}
		return &SignUpResult{User: user}, nil
	}

	session, err := c.toSession(&tr)
	if err != nil {
		return nil, fmt.Errorf("sign up failed: %w", err)
	}
	return &SignUpResult{User: session.User, Session: session}, nil
}

// SignInWithPassword はメールアドレスとパスワードでセッションを取得する。
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*model.AuthSession, error) {
	return c.token(ctx, "password", map[string]any{
		"email":    email,
		"password": password,
	})
}

// ExchangeCode は認可コード（PKCE）をセッションに交換する。
func (c *Client) ExchangeCode(ctx context.Context, code, verifier string) (*model.AuthSession, error) {
	return c.token(ctx, "pkce", map[string]any{
		"auth_code":     code,
		"code_verifier": verifier,
	})
}

// RefreshSession はリフレッシュトークンでセッションを更新する。
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*model.AuthSession, error) {
	return c.token(ctx, "refresh_token", map[string]any{
		"refresh_token": refreshToken,
	})
}

// token はトークンエンドポイントを呼び出す。
func (c *Client) token(ctx context.Context, grantType string, body map[string]any) (*model.AuthSession, error) {
	q := url.Values{"grant_type": {grantType}}

	var tr tokenResponse
	if err := c.do(ctx, http.MethodPost, "/token", q, "", body, &tr); err != nil {
		return nil, fmt.Errorf("token request (%s) failed: %w", grantType, err)
	}

	session, err := c.toSession(&tr)
	if err != nil {
		return nil, fmt.Errorf("token request (%s) failed: %w", grantType, err)
	}
	return session, nil
}

// setCodeChallenge はメールリンクをPKCEフローにするためのチャレンジをbodyに加える。
func setCodeChallenge(body map[string]any, codeChallenge string) {
	if codeChallenge == "" {
		return
	}
	body["code_challenge"] = codeChallenge
	body["code_challenge_method"] = "s256"
}

// AuthorizeURL はOAuthプロバイダーへの認可URLを生成する。
// codeChallengeはS256で算出したPKCEチャレンジ。
func (c *Client) AuthorizeURL(provider, redirectTo, codeChallenge string) string {
	q := url.Values{
		"provider":    {provider},
		"redirect_to": {redirectTo},
	}
	if codeChallenge != "" {
		q.Set("code_challenge", codeChallenge)
		q.Set("code_challenge_method", "s256")
	}
	return c.baseURL + "/authorize?" + q.Encode()
}

// SignOut はアクセストークンに紐づくセッションを失効させる。
func (c *Client) SignOut(ctx context.Context, accessToken string, scope SignOutScope) error {
	q := url.Values{"scope": {string(scope)}}
	if err := c.do(ctx, http.MethodPost, "/logout", q, accessToken, nil, nil); err != nil {
		return fmt.Errorf("sign out failed: %w", err)
	}
	return nil
}

// ResetPasswordForEmail はパスワード再設定メールを送信させる。
// codeChallengeを指定するとリンクは?code=付きでredirectToに戻る。
func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo, codeChallenge string) error {
	q := url.Values{}
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	body := map[string]any{"email": email}
	setCodeChallenge(body, codeChallenge)
	if err := c.do(ctx, http.MethodPost, "/recover", q, "", body, nil); err != nil {
		return fmt.Errorf("password recovery failed: %w", err)
	}
	return nil
}

// UpdateUser は認証済みユーザーの属性を更新する。
func (c *Client) UpdateUser(ctx context.Context, accessToken string, attrs UserAttributes) (*model.AuthUser, error) {
	var user model.AuthUser
	if err := c.do(ctx, http.MethodPut, "/user", nil, accessToken, attrs, &user); err != nil {
		return nil, fmt.Errorf("update user failed: %w", err)
	}
	return &user, nil
}

// GetUser はアクセストークンを検証し、対応するユーザーを取得する。
func (c *Client) GetUser(ctx context.Context, accessToken string) (*model.AuthUser, error) {
	var user model.AuthUser
	if err := c.do(ctx, http.MethodGet, "/user", nil, accessToken, nil, &user); err != nil {
		return nil, fmt.Errorf("get user failed: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("get user failed: empty id in response")
	}
	return &user, nil
}

// do はIdPへのHTTPリクエストを実行する。
// bearerが空の場合はAPIキーをBearerトークンとして使う。
// 2xx以外のレスポンスは*ProviderErrorとして返す。
func (c *Client) do(ctx context.Context, method, path string, query url.Values, bearer string, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", c.apiKey)
	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseProviderError(resp.StatusCode, respBody)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// compile-time interface check
var _ Provider = (*Client)(nil)
