// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string       // エラーコード
	Message  string       // エラーメッセージ
	Category string       // カテゴリ: auth, validation, contact, system
	Action   string       // ユーザー向け対処方法
	Fields   []FieldError // 入力エラーのフィールド別内訳
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_FAILED"
	ErrCodeContactNotFound    = "CONTACT_NOT_FOUND"
	ErrCodeInvalidStatus      = "INVALID_STATUS"
	ErrCodeInvalidContactID   = "INVALID_CONTACT_ID"
	ErrCodeInvalidFilter      = "INVALID_FILTER"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeAuthFailed         = "AUTH_FAILED"
	ErrCodeUnsupportedOAuth   = "UNSUPPORTED_OAUTH_PROVIDER"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeUserServiceFailure = "USER_SERVICE_FAILURE"
	ErrCodeCSRF               = "CSRF_VALIDATION_FAILED"
	ErrCodeRateLimited        = "RATE_LIMIT_EXCEEDED"
)

// FieldError はフィールド単位のバリデーションエラーを表す。
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError は複数のフィールドエラーをまとめたエラー。
type ValidationError struct {
	Fields []FieldError
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add はフィールドエラーを追加する。
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// HasErrors はフィールドエラーが1件以上あるかを返す。
func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

// Has は指定フィールドのエラーが含まれるかを返す。
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// NewContactNotFoundError は問い合わせ未検出エラーを生成する。
func NewContactNotFoundError(id int64) *APIError {
	return &APIError{
		Code:     ErrCodeContactNotFound,
		Message:  fmt.Sprintf("Contact request not found: %d", id),
		Category: "contact",
		Action:   "問い合わせIDを確認してください。",
	}
}

// NewInvalidStatusError は無効な対応状況エラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("Invalid status: %q", status),
		Category: "validation",
		Action:   "new、pending、contacted、quoted、scheduled、completed、cancelled のいずれかを指定してください。",
	}
}

// NewInvalidContactIDError は問い合わせIDの形式エラーを生成する。
func NewInvalidContactIDError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidContactID,
		Message:  fmt.Sprintf("Invalid contact request id: %q", raw),
		Category: "validation",
		Action:   "数値のIDを指定してください。",
	}
}

// NewInvalidFilterError は一覧の絞り込み条件エラーを生成する。
func NewInvalidFilterError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFilter,
		Message:  fmt.Sprintf("Invalid filter: %s", reason),
		Category: "validation",
		Action:   "status、q、from、to、limit の値を確認してください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication required.",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewAuthFailedError はIdPでの認証操作失敗エラーを生成する。
// messageにはIdPが返したメッセージをそのまま渡す。
func NewAuthFailedError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeAuthFailed,
		Message:  message,
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewUnsupportedOAuthProviderError は未対応のOAuthプロバイダーエラーを生成する。
func NewUnsupportedOAuthProviderError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeUnsupportedOAuth,
		Message:  fmt.Sprintf("Unsupported OAuth provider: %s", provider),
		Category: "auth",
		Action:   "google、github、facebook、discord のいずれかを指定してください。",
	}
}

// NewUserNotFoundError はユーザープロフィールが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User profile not found.",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewCSRFError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRF,
		Message:  "CSRF token validation failed.",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewRateLimitError はレート制限超過エラーを生成する。
func NewRateLimitError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
