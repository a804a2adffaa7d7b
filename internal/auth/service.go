// Package auth はサーバー側の認証コールバック処理とユーザープロフィールのプロビジョニングを提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/google/uuid"

	"github.com/hitoshi/solidfoundation/internal/appuser"
	"github.com/hitoshi/solidfoundation/internal/model"
)

// CodeExchanger は認可コードをセッションに交換する。*identity.Gatewayが満たす。
type CodeExchanger interface {
	ExchangeCode(ctx context.Context, code, verifier string) (*model.AuthSession, error)
}

// UserDirectory はユーザープロフィールの取得・作成・更新を行う。*appuser.Clientが満たす。
type UserDirectory interface {
	Create(ctx context.Context, profile model.UserProfile) (*model.UserProfile, error)
	Get(ctx context.Context, value string, by appuser.LookupField) (*model.UserProfile, error)
	Update(ctx context.Context, id string, patch model.UserProfilePatch) (*model.UserProfile, error)
}

// CallbackOutcome はコールバック処理の結果区分。
type CallbackOutcome string

const (
	OutcomeNoCode         CallbackOutcome = "no_code"
	OutcomeExchangeFailed CallbackOutcome = "exchange_failed"
	OutcomeSignedIn       CallbackOutcome = "signed_in"
)

// CallbackResult はコールバック処理の結果。
type CallbackResult struct {
	Outcome CallbackOutcome
	// Session はコード交換に成功した場合のみ設定される。
	Session *model.AuthSession
	// ProfileCreated はこのコールバックでプロフィールを新規作成した場合true。
	ProfileCreated bool
	// CorrelationID はコード交換失敗時にログとリダイレクト先に付与する識別子。
	CorrelationID string
}

// RedirectPath はコールバック後にブラウザを遷移させるパス。常にトップページ。
// コード交換失敗時は原因をログから辿れるよう相関IDをクエリに付与する。
func (r *CallbackResult) RedirectPath() string {
	if r.Outcome == OutcomeExchangeFailed && r.CorrelationID != "" {
		return "/?" + url.Values{"auth_error": {r.CorrelationID}}.Encode()
	}
	return "/"
}

// Service は認証コールバックとプロフィール管理のビジネスロジックを提供する。
type Service struct {
	users          UserDirectory
	logger         *slog.Logger
	newCorrelation func() string
}

// NewService はServiceを生成する。
func NewService(users UserDirectory, logger *slog.Logger) *Service {
	return &Service{
		users:          users,
		logger:         logger,
		newCorrelation: uuid.NewString,
	}
}

// HandleCallback はOAuth・メール確認のコールバックを処理する。
// コードが無い場合はIdPを呼び出さない。コード交換に失敗した場合はプロフィールの検索・作成を行わない。
// 成功した場合はプロフィールが未作成であれば作成する。プロフィール処理の失敗はサインインを妨げない。
func (s *Service) HandleCallback(ctx context.Context, exchanger CodeExchanger, code, verifier string) *CallbackResult {
	if code == "" {
		return &CallbackResult{Outcome: OutcomeNoCode}
	}

	session, err := exchanger.ExchangeCode(ctx, code, verifier)
	if err != nil {
		id := s.newCorrelation()
		s.logger.Warn("auth code exchange failed",
			slog.String("correlation_id", id),
			slog.String("error", err.Error()),
		)
		return &CallbackResult{Outcome: OutcomeExchangeFailed, CorrelationID: id}
	}

	result := &CallbackResult{Outcome: OutcomeSignedIn, Session: session}

	if session.User == nil {
		s.logger.Warn("session without user after code exchange, skipping profile provisioning")
		return result
	}

	created, err := s.EnsureProfile(ctx, session.User)
	if err != nil {
		s.logger.Error("failed to provision user profile",
			slog.String("user_id", session.User.ID),
			slog.String("error", err.Error()),
		)
		return result
	}
	result.ProfileCreated = created

	return result
}

// EnsureProfile はIdPのユーザーに対応するプロフィールが無ければ作成する。
// 作成した場合はtrueを返す。検索が「存在しない」以外のエラーの場合は作成しない。
func (s *Service) EnsureProfile(ctx context.Context, user *model.AuthUser) (bool, error) {
	_, err := s.users.Get(ctx, user.ID, appuser.ByID)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, appuser.ErrNotFound) {
		return false, fmt.Errorf("failed to look up user profile: %w", err)
	}

	_, err = s.users.Create(ctx, model.UserProfile{
		ID:        user.ID,
		Email:     user.Email,
		AvatarURL: user.AvatarURL(),
		FirstName: user.FirstName(),
		LastName:  user.LastName(),
	})
	if err != nil {
		return false, fmt.Errorf("failed to create user profile: %w", err)
	}

	s.logger.Info("user profile created",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)
	return true, nil
}

// CurrentProfile はユーザーのプロフィールを取得する。
func (s *Service) CurrentProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	profile, err := s.users.Get(ctx, userID, appuser.ByID)
	if errors.Is(err, appuser.ErrNotFound) {
		return nil, model.NewUserNotFoundError()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user profile: %w", err)
	}
	return profile, nil
}

// MarkPasswordReset はパスワード再設定済みであることをプロフィールに記録する。
func (s *Service) MarkPasswordReset(ctx context.Context, userID string) error {
	reset := true
	_, err := s.users.Update(ctx, userID, model.UserProfilePatch{PasswordReset: &reset})
	if errors.Is(err, appuser.ErrNotFound) {
		return model.NewUserNotFoundError()
	}
	if err != nil {
		return fmt.Errorf("failed to mark password reset: %w", err)
	}
	return nil
}

// compile-time interface check
var _ UserDirectory = (*appuser.Client)(nil)
