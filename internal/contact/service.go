// Package contact はお問い合わせの受付と管理画面向けの操作を提供する。
package contact

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/hitoshi/solidfoundation/internal/model"
	"github.com/hitoshi/solidfoundation/internal/notify"
	"github.com/hitoshi/solidfoundation/internal/repository"
	"github.com/hitoshi/solidfoundation/internal/security"
	"github.com/hitoshi/solidfoundation/internal/validate"
)

// statsWindow は「今週の新着」の集計期間。
const statsWindow = 7 * 24 * time.Hour

var phoneRe = regexp.MustCompile(`^[\d\s\-\(\)\+]*$`)

// SubmitInput はお問い合わせフォームの入力値。
// 任意項目はnilまたは空文字列の場合に未入力として扱う。
type SubmitInput struct {
	FirstName   string  `json:"firstName"`
	LastName    string  `json:"lastName"`
	Email       string  `json:"email"`
	Phone       *string `json:"phone"`
	ServiceType *string `json:"serviceType"`
	Description *string `json:"description"`
}

// Service はお問い合わせのビジネスロジックを提供する。
type Service struct {
	repo      repository.ContactRepository
	sanitizer security.TextSanitizer
	notifier  notify.Notifier
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	repo repository.ContactRepository,
	sanitizer security.TextSanitizer,
	notifier notify.Notifier,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// optional は空白のみの文字列をnilとして扱う。
func optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// Validate はフォーム入力を検証する。エラーは*model.ValidationError。
// 任意項目は空白のみの場合は未入力として検証しない。
func Validate(in SubmitInput) error {
	phone, hasPhone := value(optional(in.Phone))
	serviceType, hasServiceType := value(optional(in.ServiceType))
	description, hasDescription := value(optional(in.Description))

	return validate.Apply(
		validate.Required("firstName", in.FirstName, "First name is required"),
		validate.MaxLen("firstName", in.FirstName, 100, "First name too long"),
		validate.Required("lastName", in.LastName, "Last name is required"),
		validate.MaxLen("lastName", in.LastName, 100, "Last name too long"),
		validate.Email("email", in.Email, "Please enter a valid email address"),
		validate.MaxLen("email", in.Email, 255, "Email too long"),
		validate.When(hasPhone, validate.Matches("phone", phone, phoneRe, "Please enter a valid phone number")),
		validate.When(hasPhone, validate.MaxLen("phone", phone, 20, "Phone number too long")),
		validate.When(hasServiceType,
			validate.OneOf("serviceType", model.ServiceType(serviceType), model.ServiceTypes, "Please select a valid service type")),
		validate.When(hasDescription, validate.MaxLen("description", description, 1000, "Description too long")),
	)
}

func value(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	return *s, true
}

// Submit はお問い合わせを検証して保存し、担当者に通知する。
// 検証エラーの場合は*model.ValidationErrorを返し、保存しない。
// 通知の失敗はログに記録するのみで、受付自体は成功とする。
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*model.ContactRequest, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}

	req := &model.NewContactRequest{
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Email:     strings.TrimSpace(in.Email),
		Phone:     optional(in.Phone),
	}
	if st := optional(in.ServiceType); st != nil {
		t := model.ServiceType(*st)
		req.ServiceType = &t
	}
	if d := optional(in.Description); d != nil {
		clean := s.sanitizer.Sanitize(*d)
		if clean != "" {
			req.Description = &clean
		}
	}

	created, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("問い合わせの保存に失敗しました: %w", err)
	}

	s.logger.Info("contact request received",
		slog.Int64("contact_id", created.ID),
		slog.String("email", created.Email),
	)

	if err := s.notifier.NotifyContact(ctx, created); err != nil {
		s.logger.Warn("contact notification failed",
			slog.Int64("contact_id", created.ID),
			slog.String("error", err.Error()),
		)
	}

	return created, nil
}

// List は絞り込み条件に一致する問い合わせを新しい順に返す。
func (s *Service) List(ctx context.Context, filter model.ContactFilter) ([]*model.ContactRequest, error) {
	results, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("問い合わせ一覧の取得に失敗しました: %w", err)
	}
	return results, nil
}

// Get は指定IDの問い合わせを返す。存在しない場合はCONTACT_NOT_FOUNDエラー。
func (s *Service) Get(ctx context.Context, id int64) (*model.ContactRequest, error) {
	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("問い合わせの取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewContactNotFoundError(id)
	}
	return c, nil
}

// Stats は管理画面向けの集計値を返す。今週の新着は直近7日間の件数。
func (s *Service) Stats(ctx context.Context) (*model.ContactStats, error) {
	stats, err := s.repo.Stats(ctx, s.now().Add(-statsWindow))
	if err != nil {
		return nil, fmt.Errorf("集計値の取得に失敗しました: %w", err)
	}
	return stats, nil
}

// UpdateStatus は対応状況を更新する。
// 未定義の値はINVALID_STATUS、存在しないIDはCONTACT_NOT_FOUNDエラーで、いずれも変更しない。
func (s *Service) UpdateStatus(ctx context.Context, id int64, status string) (*model.ContactRequest, error) {
	st := model.ContactStatus(status)
	if !st.Valid() {
		return nil, model.NewInvalidStatusError(status)
	}

	updated, err := s.repo.UpdateStatus(ctx, id, st)
	if err != nil {
		return nil, fmt.Errorf("対応状況の更新に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, model.NewContactNotFoundError(id)
	}

	s.logger.Info("contact request status updated",
		slog.Int64("contact_id", id),
		slog.String("status", status),
	)
	return updated, nil
}

// Delete は問い合わせを削除する。存在しない場合はCONTACT_NOT_FOUNDエラー。
func (s *Service) Delete(ctx context.Context, id int64) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("問い合わせの削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewContactNotFoundError(id)
	}
	return nil
}
