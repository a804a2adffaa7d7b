// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/solidfoundation/internal/auth"
	"github.com/hitoshi/solidfoundation/internal/identity"
	"github.com/hitoshi/solidfoundation/internal/metrics"
	"github.com/hitoshi/solidfoundation/internal/middleware"
	"github.com/hitoshi/solidfoundation/internal/model"
	"github.com/hitoshi/solidfoundation/internal/validate"
)

const (
	// authFlowCookie はPKCEのcode_verifierを預けたフローIDを保持するCookieの名前。
	authFlowCookie = "sf-auth-flow"

	defaultLoginPath = "/auth/login"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	HandleCallback(ctx context.Context, exchanger auth.CodeExchanger, code, verifier string) *auth.CallbackResult
	CurrentProfile(ctx context.Context, userID string) (*model.UserProfile, error)
	MarkPasswordReset(ctx context.Context, userID string) error
}

// FlowParker はOAuthフローのcode_verifierを一時的に預かる。
type FlowParker interface {
	Park(verifier string) string
	Take(id string) (string, bool)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain string
	CookieSecure bool
	// FlowMaxAge はフローIDCookieの有効期間（秒）。
	FlowMaxAge int
	LoginPath  string
}

// AuthHandler は認証関連のHTTPハンドラー。
// IdPの操作はセッションミドルウェアがリクエストごとに用意したGatewayを通して行う。
type AuthHandler struct {
	service AuthServiceInterface
	flows   FlowParker
	metrics metrics.MetricsCollector
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。collectorはnil可。
func NewAuthHandler(service AuthServiceInterface, flows FlowParker, collector metrics.MetricsCollector, config AuthHandlerConfig) *AuthHandler {
	if config.LoginPath == "" {
		config.LoginPath = defaultLoginPath
	}
	if config.FlowMaxAge <= 0 {
		config.FlowMaxAge = 600 // 10分
	}
	return &AuthHandler{
		service: service,
		flows:   flows,
		metrics: collector,
		config:  config,
	}
}

// Callback はOAuth・メール確認のリダイレクトを受け、認可コードをセッションに交換する。
// GET /auth/callback?code=xxx
// GET /api/auth/callback?code=xxx
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	gw, ok := h.gateway(w, r)
	if !ok {
		return
	}

	var verifier string
	if c, err := r.Cookie(authFlowCookie); err == nil && c.Value != "" {
		verifier, _ = h.flows.Take(c.Value)
		http.SetCookie(w, h.flowCookie("", -1))
	}

	result := h.service.HandleCallback(r.Context(), gw, r.URL.Query().Get("code"), verifier)
	if h.metrics != nil {
		h.metrics.RecordCallback(string(result.Outcome))
	}

	http.Redirect(w, r, result.RedirectPath(), http.StatusTemporaryRedirect)
}

// SignUp はメールアドレスとパスワードでユーザーを登録する。確認メールのリンクは/api/auth/callbackに戻る。
// リンクのコード交換に使うcode_verifierはOAuthと同じくフローIDCookieで引き継ぐ。
// POST /api/auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	gw, ok := h.gateway(w, r)
	if !ok {
		return
	}

	f, err := readFields(w, r, "email", "password", "confirmPassword", "phone")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, validationAPIError(nil))
		return
	}

	rules := []validate.Rule{
		validate.Required("email", f["email"], "Email is required"),
		validate.Email("email", f["email"], "Invalid email address"),
	}
	rules = append(rules, validate.Password("password", f["password"])...)
	rules = append(rules,
		validate.Required("confirmPassword", f["confirmPassword"], "Password confirmation is required"),
		validate.Equal("confirmPassword", f["confirmPassword"], f["password"], "The passwords did not match"),
	)
	if err := validate.Apply(rules...); err != nil {
		h.writeValidationError(w, err)
		return
	}

	verifier, err := gw.SignUp(r.Context(), f["email"], f["password"], f["phone"])
	if err != nil {
		h.writeIdentityError(w, "signup", err)
		return
	}
	h.parkFlow(w, verifier)

	h.recordAuth("signup", "success")
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Check your email for a confirmation link.",
	})
}

// Login はメールアドレスとパスワードでサインインする。
// フォーム送信の場合はnext（既定は/）へ303でリダイレクトし、JSONの場合はユーザー情報を返す。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	gw, ok := h.gateway(w, r)
	if !ok {
		return
	}

	f, err := readFields(w, r, "email", "password", "next")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, validationAPIError(nil))
		return
	}

	if err := validate.Apply(
		validate.Required("email", f["email"], "Email is required"),
		validate.Email("email", f["email"], "Invalid email address"),
		validate.Required("password", f["password"], "Password is required"),
	); err != nil {
		h.writeValidationError(w, err)
		return
	}

	if err := gw.SignIn(r.Context(), f["email"], f["password"]); err != nil {
		h.writeIdentityError(w, "login", err)
		return
	}

	h.recordAuth("login", "success")
	if isFormPost(r) {
		http.Redirect(w, r, safeNext(f["next"]), http.StatusSeeOther)
		return
	}

	var user *model.AuthUser
	if s := gw.Session(); s != nil {
		user = s.User
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

// Logout は全端末のセッションを失効させ、ログイン画面へ303でリダイレクトする。
// IdPでの失効に失敗してもローカルのセッションは破棄する。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	gw, ok := h.gateway(w, r)
	if !ok {
		return
	}

	if err := gw.SignOut(r.Context()); err != nil {
		slog.Warn("failed to revoke session at identity provider", slog.String("error", err.Error()))
		h.recordAuth("logout", "revoke_failed")
	} else {
		h.recordAuth("logout", "success")
	}

	http.Redirect(w, r, h.config.LoginPath, http.StatusSeeOther)
}

// ResetPassword はパスワード再設定メールを送信させる。
// リンクは/auth/callbackでセッションに交換され、サインイン状態でパスワードを更新できる。
// POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	gw, ok := h.gateway(w, r)
	if !ok {
		return
	}

	f, err := readFields(w, r, "email")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, validationAPIError(nil))
		return
	}

	if err := validate.Apply(
		validate.Required("email", f["email"], "Email is required"),
		validate.Email("email", f["email"], "Invalid email address"),
	); err != nil {
		h.writeValidationError(w, err)
		return
	}

	verifier, err := gw.ResetPassword(r.Context(), f["email"])
	if err != nil {
		h.writeIdentityError(w, "reset_password", err)
		return
	}
	h.parkFlow(w, verifier)

	h.recordAuth("reset_password", "success")
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Check your email for a link to reset your password.",
	})
}

// UpdatePassword はログイン中のユーザーのパスワードを更新する。
// 更新後はプロフィールに再設定済みを記録し、サインアウトしてログイン画面へ303でリダイレクトする。
// POST /api/auth/update-password
func (h *AuthHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	gw, ok := h.gateway(w, r)
	if !ok {
		return
	}

	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	f, err := readFields(w, r, "password", "confirmPassword")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, validationAPIError(nil))
		return
	}

	rules := validate.Password("password", f["password"])
	rules = append(rules,
		validate.Required("confirmPassword", f["confirmPassword"], "Password confirmation is required"),
		validate.Equal("confirmPassword", f["confirmPassword"], f["password"], "The passwords did not match"),
	)
	if err := validate.Apply(rules...); err != nil {
		h.writeValidationError(w, err)
		return
	}

	if err := gw.UpdatePassword(r.Context(), f["password"]); err != nil {
		h.writeIdentityError(w, "update_password", err)
		return
	}

	if err := h.service.MarkPasswordReset(r.Context(), user.ID); err != nil {
		slog.Error("failed to mark password reset on profile",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := gw.SignOut(r.Context()); err != nil {
		slog.Warn("failed to revoke session after password update", slog.String("error", err.Error()))
	}

	h.recordAuth("update_password", "success")
	http.Redirect(w, r, h.config.LoginPath, http.StatusSeeOther)
}

// OAuthLogin はOAuthプロバイダーでのサインインを開始する。
// code_verifierはサーバー側に預け、フローIDをCookieに保存してプロバイダーへ307でリダイレクトする。
// GET /api/auth/oauth/{provider}
func (h *AuthHandler) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	gw, ok := h.gateway(w, r)
	if !ok {
		return
	}

	provider := chi.URLParam(r, "provider")
	redirect, err := gw.SignInWithOAuth(r.Context(), provider)
	if err != nil {
		if errors.Is(err, identity.ErrUnsupportedProvider) {
			h.recordAuth("oauth", "unsupported")
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewUnsupportedOAuthProviderError(provider))
			return
		}
		h.writeIdentityError(w, "oauth", err)
		return
	}

	h.parkFlow(w, redirect.Verifier)

	h.recordAuth("oauth", "redirected")
	http.Redirect(w, r, redirect.URL, http.StatusTemporaryRedirect)
}

// sessionResponse は現在のセッション状態のレスポンス。
type sessionResponse struct {
	User      *model.AuthUser    `json:"user"`
	Session   *model.AuthSession `json:"session"`
	IsLoading bool               `json:"isLoading"`
}

// Session は現在のユーザーとセッションを返す。未認証の場合はいずれもnull。
// GET /api/auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	store, ok := middleware.StoreFromContext(r.Context())
	if !ok {
		slog.Error("session store is not configured for this route")
		middleware.WriteInternalServerError(w)
		return
	}

	st := store.Snapshot()
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, sessionResponse{
		User:      st.User,
		Session:   st.Session,
		IsLoading: st.IsLoading,
	})
}

// Me はログイン中のユーザーのアプリケーションプロフィールを返す。
// GET /api/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	profile, err := h.service.CurrentProfile(r.Context(), user.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// gateway はリクエストコンテキストのGatewayを返す。無い場合は500を書き込む。
func (h *AuthHandler) gateway(w http.ResponseWriter, r *http.Request) (*identity.Gateway, bool) {
	gw, ok := middleware.GatewayFromContext(r.Context())
	if !ok {
		slog.Error("identity gateway is not configured for this route", slog.String("path", r.URL.Path))
		middleware.WriteInternalServerError(w)
		return nil, false
	}
	return gw, true
}

// parkFlow はcode_verifierを預け、取り出し用のフローIDをCookieに保存する。
func (h *AuthHandler) parkFlow(w http.ResponseWriter, verifier string) {
	id := h.flows.Park(verifier)
	http.SetCookie(w, h.flowCookie(id, h.config.FlowMaxAge))
}

func (h *AuthHandler) flowCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     authFlowCookie,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *AuthHandler) recordAuth(action, outcome string) {
	if h.metrics != nil {
		h.metrics.RecordAuthAttempt(action, outcome)
	}
}

// writeValidationError はフィールドエラーを含む400を書き込む。
func (h *AuthHandler) writeValidationError(w http.ResponseWriter, err error) {
	var verr *model.ValidationError
	errors.As(err, &verr)
	writeAPIErrorResponse(w, http.StatusBadRequest, validationAPIError(verr))
}

// writeIdentityError はIdPの操作エラーをレスポンスに変換する。
// 4xxはIdPのメッセージをそのまま400で返し、それ以外は502とする。
func (h *AuthHandler) writeIdentityError(w http.ResponseWriter, action string, err error) {
	if identity.IsClientError(err) {
		h.recordAuth(action, "rejected")
		slog.Info("identity provider rejected request",
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewAuthFailedError(identity.UserMessage(err)))
		return
	}

	h.recordAuth(action, "error")
	slog.Error("identity provider request failed",
		slog.String("action", action),
		slog.String("error", err.Error()),
	)
	writeAPIErrorResponse(w, http.StatusBadGateway, model.NewAuthFailedError(identity.UserMessage(err)))
}

// validationAPIError は入力エラーをAPIErrorに変換する。
// メッセージは最初のフィールドエラーで、全フィールドの内訳をerrorsに含める。
func validationAPIError(verr *model.ValidationError) *model.APIError {
	apiErr := &model.APIError{
		Code:     model.ErrCodeValidation,
		Message:  "Please check your form data",
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
	if verr != nil && len(verr.Fields) > 0 {
		apiErr.Message = verr.Fields[0].Message
		apiErr.Fields = verr.Fields
	}
	return apiErr
}
