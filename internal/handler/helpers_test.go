package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/solidfoundation/internal/contact"
	"github.com/hitoshi/solidfoundation/internal/middleware"
	"github.com/hitoshi/solidfoundation/internal/model"
)

// --- モック定義 ---

type mockContactService struct {
	submitFn       func(ctx context.Context, in contact.SubmitInput) (*model.ContactRequest, error)
	listFn         func(ctx context.Context, filter model.ContactFilter) ([]*model.ContactRequest, error)
	getFn          func(ctx context.Context, id int64) (*model.ContactRequest, error)
	statsFn        func(ctx context.Context) (*model.ContactStats, error)
	updateStatusFn func(ctx context.Context, id int64, status string) (*model.ContactRequest, error)
	deleteFn       func(ctx context.Context, id int64) error
}

func (m *mockContactService) Submit(ctx context.Context, in contact.SubmitInput) (*model.ContactRequest, error) {
	if m.submitFn != nil {
		return m.submitFn(ctx, in)
	}
	return &model.ContactRequest{ID: 1, Status: model.ContactStatusNew}, nil
}

func (m *mockContactService) List(ctx context.Context, filter model.ContactFilter) ([]*model.ContactRequest, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return nil, nil
}

func (m *mockContactService) Get(ctx context.Context, id int64) (*model.ContactRequest, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, model.NewContactNotFoundError(id)
}

func (m *mockContactService) Stats(ctx context.Context) (*model.ContactStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx)
	}
	return &model.ContactStats{}, nil
}

func (m *mockContactService) UpdateStatus(ctx context.Context, id int64, status string) (*model.ContactRequest, error) {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, id, status)
	}
	return nil, nil
}

func (m *mockContactService) Delete(ctx context.Context, id int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

var _ ContactServiceInterface = (*mockContactService)(nil)

type recordingCollector struct {
	submissions   []string
	statusUpdates []string
	authAttempts  []string
	callbacks     []string
}

func (c *recordingCollector) RecordContactSubmission(outcome string) {
	c.submissions = append(c.submissions, outcome)
}

func (c *recordingCollector) RecordContactStatusUpdate(status string) {
	c.statusUpdates = append(c.statusUpdates, status)
}

func (c *recordingCollector) RecordAuthAttempt(action, outcome string) {
	c.authAttempts = append(c.authAttempts, action+":"+outcome)
}

func (c *recordingCollector) RecordCallback(outcome string) {
	c.callbacks = append(c.callbacks, outcome)
}

func (c *recordingCollector) RecordHTTPStatus(int)               {}
func (c *recordingCollector) RecordRequestLatency(time.Duration) {}
func (c *recordingCollector) RecordRetentionDeleted(int64)       {}

// --- ヘルパー ---

// withChiURLParam はchiのURLパラメータをリクエストコンテキストに設定するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var result middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}
