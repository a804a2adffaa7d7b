package contact

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/solidfoundation/internal/model"
	"github.com/hitoshi/solidfoundation/internal/notify"
	"github.com/hitoshi/solidfoundation/internal/repository"
	"github.com/hitoshi/solidfoundation/internal/security"
)

// --- モック定義 ---

type mockContactRepo struct {
	createFn       func(ctx context.Context, req *model.NewContactRequest) (*model.ContactRequest, error)
	findByIDFn     func(ctx context.Context, id int64) (*model.ContactRequest, error)
	listFn         func(ctx context.Context, filter model.ContactFilter) ([]*model.ContactRequest, error)
	updateStatusFn func(ctx context.Context, id int64, status model.ContactStatus) (*model.ContactRequest, error)
	deleteFn       func(ctx context.Context, id int64) (bool, error)
	statsFn        func(ctx context.Context, since time.Time) (*model.ContactStats, error)
	createCalls    int
	updateCalls    int
}

func (m *mockContactRepo) Create(ctx context.Context, req *model.NewContactRequest) (*model.ContactRequest, error) {
	m.createCalls++
	if m.createFn != nil {
		return m.createFn(ctx, req)
	}
	return &model.ContactRequest{
		ID:          1,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		Phone:       req.Phone,
		ServiceType: req.ServiceType,
		Description: req.Description,
		Status:      model.ContactStatusNew,
	}, nil
}

func (m *mockContactRepo) FindByID(ctx context.Context, id int64) (*model.ContactRequest, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockContactRepo) List(ctx context.Context, filter model.ContactFilter) ([]*model.ContactRequest, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return []*model.ContactRequest{}, nil
}

func (m *mockContactRepo) UpdateStatus(ctx context.Context, id int64, status model.ContactStatus) (*model.ContactRequest, error) {
	m.updateCalls++
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, id, status)
	}
	return nil, nil
}

func (m *mockContactRepo) Delete(ctx context.Context, id int64) (bool, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return false, nil
}

func (m *mockContactRepo) Stats(ctx context.Context, since time.Time) (*model.ContactStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx, since)
	}
	return &model.ContactStats{}, nil
}

func (m *mockContactRepo) DeleteClosedBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type mockNotifier struct {
	notified []*model.ContactRequest
	err      error
}

func (m *mockNotifier) NotifyContact(_ context.Context, c *model.ContactRequest) error {
	m.notified = append(m.notified, c)
	return m.err
}

// --- compile-time interface checks ---
var _ repository.ContactRepository = (*mockContactRepo)(nil)
var _ notify.Notifier = (*mockNotifier)(nil)

func newTestService(repo *mockContactRepo, notifier *mockNotifier) (*Service, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	return NewService(repo, security.NewTextSanitizer(), notifier, logger), &buf
}

func strPtr(s string) *string { return &s }

func validInput() SubmitInput {
	return SubmitInput{
		FirstName:   "Jane",
		LastName:    "Doe",
		Email:       "jane@example.com",
		Phone:       strPtr("(555) 123-4567"),
		ServiceType: strPtr("foundation"),
		Description: strPtr("Cracks in the basement wall."),
	}
}

func fieldErrors(t *testing.T, err error) *model.ValidationError {
	t.Helper()
	var verr *model.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *model.ValidationError", err)
	}
	return verr
}

// --- テスト ---

func TestValidate_ValidInput(t *testing.T) {
	if err := Validate(validInput()); err != nil {
		t.Errorf("Validate returned error: %v", err)
	}
}

func TestValidate_OptionalFieldsMayBeEmpty(t *testing.T) {
	in := SubmitInput{FirstName: "Jane", LastName: "Doe", Email: "jane@example.com", ServiceType: strPtr(""), Phone: strPtr(""), Description: strPtr("   ")}
	if err := Validate(in); err != nil {
		t.Errorf("Validate returned error: %v", err)
	}
}

func TestValidate_FieldErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *SubmitInput)
		field  string
	}{
		{"firstName missing", func(in *SubmitInput) { in.FirstName = "" }, "firstName"},
		{"firstName too long", func(in *SubmitInput) { in.FirstName = strings.Repeat("a", 101) }, "firstName"},
		{"lastName missing", func(in *SubmitInput) { in.LastName = "  " }, "lastName"},
		{"email malformed", func(in *SubmitInput) { in.Email = "not-an-email" }, "email"},
		{"email too long", func(in *SubmitInput) { in.Email = strings.Repeat("a", 250) + "@example.com" }, "email"},
		{"phone letters", func(in *SubmitInput) { in.Phone = strPtr("call me") }, "phone"},
		{"phone too long", func(in *SubmitInput) { in.Phone = strPtr(strings.Repeat("1", 21)) }, "phone"},
		{"service type unknown", func(in *SubmitInput) { in.ServiceType = strPtr("landscaping") }, "serviceType"},
		{"description too long", func(in *SubmitInput) { in.Description = strPtr(strings.Repeat("x", 1001)) }, "description"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			verr := fieldErrors(t, Validate(in))
			if !verr.Has(tt.field) {
				t.Errorf("errors %+v should include field %s", verr.Fields, tt.field)
			}
		})
	}
}

func TestSubmit_MissingFirstNameOrBadEmail_NotPersisted(t *testing.T) {
	repo := &mockContactRepo{}
	notifier := &mockNotifier{}
	svc, _ := newTestService(repo, notifier)

	in := validInput()
	in.FirstName = ""
	in.Email = "bad"

	_, err := svc.Submit(context.Background(), in)
	verr := fieldErrors(t, err)
	if !verr.Has("firstName") || !verr.Has("email") {
		t.Errorf("errors = %+v, want firstName and email", verr.Fields)
	}
	if repo.createCalls != 0 {
		t.Errorf("Create calls = %d, want 0", repo.createCalls)
	}
	if len(notifier.notified) != 0 {
		t.Error("notification should not be sent for invalid input")
	}
}

func TestSubmit_PersistsSanitizedAndNotifies(t *testing.T) {
	var got *model.NewContactRequest
	repo := &mockContactRepo{}
	repo.createFn = func(_ context.Context, req *model.NewContactRequest) (*model.ContactRequest, error) {
		got = req
		return &model.ContactRequest{ID: 7, Email: req.Email, Status: model.ContactStatusNew}, nil
	}
	notifier := &mockNotifier{}
	svc, _ := newTestService(repo, notifier)

	in := validInput()
	in.Description = strPtr(`<b>Sinking</b> porch<script>alert(1)</script>`)
	in.ServiceType = strPtr("")

	created, err := svc.Submit(context.Background(), in)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if created.ID != 7 {
		t.Errorf("ID = %d, want 7", created.ID)
	}
	if got.Description == nil || *got.Description != "Sinking porch" {
		t.Errorf("Description = %v, want sanitized text", got.Description)
	}
	if got.ServiceType != nil {
		t.Errorf("ServiceType = %v, want nil for empty input", *got.ServiceType)
	}
	if len(notifier.notified) != 1 || notifier.notified[0].ID != 7 {
		t.Errorf("notified = %+v", notifier.notified)
	}
}

func TestSubmit_NotificationFailureDoesNotFail(t *testing.T) {
	repo := &mockContactRepo{}
	notifier := &mockNotifier{err: errors.New("smtp down")}
	svc, logs := newTestService(repo, notifier)

	if _, err := svc.Submit(context.Background(), validInput()); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if !strings.Contains(logs.String(), "contact notification failed") {
		t.Errorf("notification failure should be logged: %s", logs.String())
	}
}

func TestSubmit_RepositoryError(t *testing.T) {
	repo := &mockContactRepo{
		createFn: func(context.Context, *model.NewContactRequest) (*model.ContactRequest, error) {
			return nil, errors.New("db down")
		},
	}
	svc, _ := newTestService(repo, &mockNotifier{})

	_, err := svc.Submit(context.Background(), validInput())
	if err == nil {
		t.Fatal("expected error")
	}
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		t.Error("repository error should not be a validation error")
	}
}

func TestStats_UsesSevenDayWindow(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	var since time.Time
	repo := &mockContactRepo{
		statsFn: func(_ context.Context, s time.Time) (*model.ContactStats, error) {
			since = s
			return &model.ContactStats{Total: 4, NewThisWeek: 3}, nil
		},
	}
	svc, _ := newTestService(repo, &mockNotifier{})
	svc.now = func() time.Time { return now }

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if !since.Equal(now.Add(-7 * 24 * time.Hour)) {
		t.Errorf("since = %v, want %v", since, now.Add(-7*24*time.Hour))
	}
	if stats.Total != 4 || stats.NewThisWeek != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestUpdateStatus_InvalidStatus_NotApplied(t *testing.T) {
	repo := &mockContactRepo{}
	svc, _ := newTestService(repo, &mockNotifier{})

	_, err := svc.UpdateStatus(context.Background(), 1, "bogus")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidStatus {
		t.Fatalf("err = %v, want %s", err, model.ErrCodeInvalidStatus)
	}
	if repo.updateCalls != 0 {
		t.Errorf("UpdateStatus calls = %d, want 0", repo.updateCalls)
	}
}

func TestUpdateStatus_NotFound(t *testing.T) {
	svc, _ := newTestService(&mockContactRepo{}, &mockNotifier{})

	_, err := svc.UpdateStatus(context.Background(), 99, "completed")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeContactNotFound {
		t.Fatalf("err = %v, want %s", err, model.ErrCodeContactNotFound)
	}
}

func TestUpdateStatus_Completed(t *testing.T) {
	created := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	repo := &mockContactRepo{
		updateStatusFn: func(_ context.Context, id int64, status model.ContactStatus) (*model.ContactRequest, error) {
			return &model.ContactRequest{ID: id, Status: status, CreatedAt: created, UpdatedAt: created.Add(time.Hour)}, nil
		},
	}
	svc, _ := newTestService(repo, &mockNotifier{})

	updated, err := svc.UpdateStatus(context.Background(), 3, "completed")
	if err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
	if updated.Status != model.ContactStatusCompleted {
		t.Errorf("Status = %s, want completed", updated.Status)
	}
	if !updated.UpdatedAt.After(created) {
		t.Error("UpdatedAt should advance")
	}
}

func TestGetAndDelete_NotFound(t *testing.T) {
	svc, _ := newTestService(&mockContactRepo{}, &mockNotifier{})

	var apiErr *model.APIError
	if _, err := svc.Get(context.Background(), 5); !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeContactNotFound {
		t.Errorf("Get err = %v", err)
	}
	if err := svc.Delete(context.Background(), 5); !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeContactNotFound {
		t.Errorf("Delete err = %v", err)
	}
}
