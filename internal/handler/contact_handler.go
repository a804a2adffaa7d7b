package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/solidfoundation/internal/contact"
	"github.com/hitoshi/solidfoundation/internal/metrics"
	"github.com/hitoshi/solidfoundation/internal/model"
)

const (
	contactSubmittedMessage = "Your request has been submitted successfully. We'll contact you within 24 hours."
	contactInvalidMessage   = "Please check your form data"
	contactFailedMessage    = "Something went wrong. Please try again."
)

// ContactServiceInterface は問い合わせハンドラーが必要とするサービスインターフェース。
type ContactServiceInterface interface {
	Submit(ctx context.Context, in contact.SubmitInput) (*model.ContactRequest, error)
	List(ctx context.Context, filter model.ContactFilter) ([]*model.ContactRequest, error)
	Get(ctx context.Context, id int64) (*model.ContactRequest, error)
	Stats(ctx context.Context) (*model.ContactStats, error)
	UpdateStatus(ctx context.Context, id int64, status string) (*model.ContactRequest, error)
	Delete(ctx context.Context, id int64) error
}

// contactSubmitResponse は問い合わせ送信APIのレスポンス。
type contactSubmitResponse struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	ID      int64              `json:"id,omitempty"`
	Errors  []model.FieldError `json:"errors,omitempty"`
}

// ContactHandler は公開の問い合わせフォーム送信を扱うHTTPハンドラー。
type ContactHandler struct {
	service ContactServiceInterface
	metrics metrics.MetricsCollector
}

// NewContactHandler はContactHandlerを生成する。collectorはnil可。
func NewContactHandler(service ContactServiceInterface, collector metrics.MetricsCollector) *ContactHandler {
	return &ContactHandler{service: service, metrics: collector}
}

// Submit は問い合わせフォームの送信を受け付ける。
// POST /api/contact
func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var in contact.SubmitInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.record("invalid")
		writeJSON(w, http.StatusBadRequest, contactSubmitResponse{
			Message: contactInvalidMessage,
		})
		return
	}

	created, err := h.service.Submit(r.Context(), in)
	if err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			h.record("invalid")
			writeJSON(w, http.StatusBadRequest, contactSubmitResponse{
				Message: contactInvalidMessage,
				Errors:  verr.Fields,
			})
			return
		}

		h.record("error")
		slog.Error("failed to create contact request", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, contactSubmitResponse{
			Message: contactFailedMessage,
		})
		return
	}

	h.record("created")
	writeJSON(w, http.StatusOK, contactSubmitResponse{
		Success: true,
		Message: contactSubmittedMessage,
		ID:      created.ID,
	})
}

func (h *ContactHandler) record(outcome string) {
	if h.metrics != nil {
		h.metrics.RecordContactSubmission(outcome)
	}
}
