package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/solidfoundation/internal/metrics"
	"github.com/hitoshi/solidfoundation/internal/model"
)

// maxListLimit は一覧取得の件数上限。
const maxListLimit = 500

// AdminHandler は管理画面向けの問い合わせ管理APIハンドラー。
type AdminHandler struct {
	service ContactServiceInterface
	metrics metrics.MetricsCollector
}

// NewAdminHandler はAdminHandlerを生成する。collectorはnil可。
func NewAdminHandler(service ContactServiceInterface, collector metrics.MetricsCollector) *AdminHandler {
	return &AdminHandler{service: service, metrics: collector}
}

// updateStatusRequest は対応状況更新のリクエストボディ。
type updateStatusRequest struct {
	Status string `json:"status"`
}

// ListContacts は問い合わせ一覧を新しい順に返す。
// GET /api/admin/contacts?status=&q=&from=&to=&limit=
func (h *AdminHandler) ListContacts(w http.ResponseWriter, r *http.Request) {
	filter, apiErr := parseContactFilter(r)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	contacts, err := h.service.List(r.Context(), filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if contacts == nil {
		contacts = []*model.ContactRequest{}
	}
	writeJSON(w, http.StatusOK, contacts)
}

// GetContact は指定IDの問い合わせを返す。
// GET /api/admin/contacts/{id}
func (h *AdminHandler) GetContact(w http.ResponseWriter, r *http.Request) {
	id, ok := contactIDParam(w, r)
	if !ok {
		return
	}

	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// DeleteContact は問い合わせを削除する。
// DELETE /api/admin/contacts/{id}
func (h *AdminHandler) DeleteContact(w http.ResponseWriter, r *http.Request) {
	id, ok := contactIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateStatus は問い合わせの対応状況を更新する。
// PATCH /api/admin/contacts/{id}/status
func (h *AdminHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := contactIDParam(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidStatusError(""))
		return
	}

	updated, err := h.service.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordContactStatusUpdate(string(updated.Status))
	}
	writeJSON(w, http.StatusOK, updated)
}

// Stats は管理画面向けの集計値を返す。
// GET /api/admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// contactIDParam はURLパラメータの問い合わせIDを解析する。
// 不正な場合は400を書き込みfalseを返す。
func contactIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		slog.Warn("invalid contact id", slog.String("id", raw))
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidContactIDError(raw))
		return 0, false
	}
	return id, true
}

// parseContactFilter はクエリパラメータから一覧の絞り込み条件を組み立てる。
func parseContactFilter(r *http.Request) (model.ContactFilter, *model.APIError) {
	q := r.URL.Query()
	var filter model.ContactFilter

	if s := q.Get("status"); s != "" {
		st := model.ContactStatus(s)
		if !st.Valid() {
			return filter, model.NewInvalidFilterError("unknown status " + strconv.Quote(s))
		}
		filter.Status = &st
	}

	filter.Query = strings.TrimSpace(q.Get("q"))

	if s := q.Get("from"); s != "" {
		t, _, err := parseFilterTime(s)
		if err != nil {
			return filter, model.NewInvalidFilterError("from must be RFC3339 or YYYY-MM-DD")
		}
		filter.From = &t
	}
	if s := q.Get("to"); s != "" {
		t, dateOnly, err := parseFilterTime(s)
		if err != nil {
			return filter, model.NewInvalidFilterError("to must be RFC3339 or YYYY-MM-DD")
		}
		// 日付のみの指定はその日の終わりまでを含める
		if dateOnly {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		filter.To = &t
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return filter, model.NewInvalidFilterError("from must not be after to")
	}

	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > maxListLimit {
			return filter, model.NewInvalidFilterError("limit must be between 1 and " + strconv.Itoa(maxListLimit))
		}
		filter.Limit = n
	}

	return filter, nil
}

// parseFilterTime はRFC3339またはYYYY-MM-DD形式の日時を解析する。
func parseFilterTime(s string) (t time.Time, dateOnly bool, err error) {
	if t, err = time.Parse(time.RFC3339, s); err == nil {
		return t, false, nil
	}
	t, err = time.Parse(time.DateOnly, s)
	return t, err == nil, err
}
