package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrNoSession は認証済みセッションが必要な操作をセッションなしで呼び出した場合のエラー。
var ErrNoSession = errors.New("identity: no active session")

// ErrUnsupportedProvider は未対応のOAuthプロバイダーが指定された場合のエラー。
var ErrUnsupportedProvider = errors.New("identity: unsupported oauth provider")

// ProviderError はIdPが返したエラーレスポンスを表す。
type ProviderError struct {
	Status  int
	Code    string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("identity provider error (status %d, %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("identity provider error (status %d): %s", e.Status, e.Message)
}

// Unauthorized はトークンが無効または期限切れであることを示すかを返す。
func (e *ProviderError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// providerErrorBody はGoTrueのエラーレスポンス。
// エンドポイントやバージョンにより形式が異なるため両方の形式を受け付ける。
type providerErrorBody struct {
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// parseProviderError はエラーレスポンスボディから*ProviderErrorを生成する。
func parseProviderError(status int, body []byte) *ProviderError {
	pe := &ProviderError{Status: status}

	var b providerErrorBody
	if err := json.Unmarshal(body, &b); err != nil {
		pe.Message = http.StatusText(status)
		return pe
	}

	pe.Code = b.ErrorCode
	if pe.Code == "" {
		pe.Code = b.Error
	}

	switch {
	case b.Msg != "":
		pe.Message = b.Msg
	case b.Message != "":
		pe.Message = b.Message
	case b.ErrorDescription != "":
		pe.Message = b.ErrorDescription
	default:
		pe.Message = http.StatusText(status)
	}
	return pe
}

// AsProviderError はerrのチェーンから*ProviderErrorを取り出す。
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// UserMessage はユーザーに表示できるエラーメッセージを返す。
// IdPのエラーはそのメッセージ、それ以外は一般的なメッセージにする。
func UserMessage(err error) string {
	if pe, ok := AsProviderError(err); ok {
		return pe.Message
	}
	switch {
	case errors.Is(err, ErrNoSession):
		return "You are not authenticated."
	case errors.Is(err, ErrUnsupportedProvider):
		return "Unsupported sign-in provider."
	}
	return "Something went wrong. Please try again."
}
