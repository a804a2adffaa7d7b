package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/solidfoundation/internal/model"
)

// InternalErrorMessage は内部エラー時にクライアントへ返すメッセージ。
const InternalErrorMessage = "Something went wrong. Please try again."

// ErrorResponseBody はエラーレスポンスの本文。
// お問い合わせAPIと同じ{success,message,errors}の形に、機械判定用のcode等を加えたもの。
type ErrorResponseBody struct {
	Success  bool               `json:"success"`
	Message  string             `json:"message"`
	Errors   []model.FieldError `json:"errors,omitempty"`
	Code     string             `json:"code"`
	Category string             `json:"category"`
	Action   string             `json:"action"`
}

// WriteErrorResponse はapiErrをエラーレスポンスとして書き込む。successは常にfalse。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	body := ErrorResponseBody{
		Message:  apiErr.Message,
		Errors:   apiErr.Fields,
		Code:     apiErr.Code,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode error response", slog.String("error", err.Error()))
	}
}

// WriteInternalServerError は500を書き込む。詳細はログのみに残す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  InternalErrorMessage,
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
