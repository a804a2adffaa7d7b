// Package model はドメインモデルを定義する。
package model

import "time"

// AuthUser はIdP（認証プロバイダー）から見たユーザーを表す。
// このアプリケーションからはIdPのAPI経由でのみ変更できる。
type AuthUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Phone        string         `json:"phone,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at,omitempty"`
}

// AvatarURL はユーザーメタデータのavatar_urlを返す。
func (u *AuthUser) AvatarURL() string {
	return u.metadataString("avatar_url")
}

// FirstName はユーザーメタデータのfirst_nameを返す。
func (u *AuthUser) FirstName() string {
	return u.metadataString("first_name")
}

// LastName はユーザーメタデータのlast_nameを返す。
func (u *AuthUser) LastName() string {
	return u.metadataString("last_name")
}

func (u *AuthUser) metadataString(key string) string {
	if u == nil || u.UserMetadata == nil {
		return ""
	}
	s, _ := u.UserMetadata[key].(string)
	return s
}

// AuthSession はIdPが発行したセッション（アクセストークンとリフレッシュトークンの組）を表す。
// IdPが所有し、このアプリケーションでは読み取り専用のミラーとして扱う。
type AuthSession struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         *AuthUser `json:"user"`
}

// Expired はセッションが期限切れかどうかを返す。
// leewayだけ早めに期限切れとみなす。
func (s *AuthSession) Expired(now time.Time, leeway time.Duration) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(leeway).Before(s.ExpiresAt)
}

// UserProfile はアプリケーション側のユーザープロフィールを表す。
// IDはIdPのユーザーIDと一致する。ライフサイクルはユーザーサービスのバックエンドが所有する。
type UserProfile struct {
	ID            string `json:"id"`
	Identifier    string `json:"identifier,omitempty"`
	Email         string `json:"email"`
	FirstName     string `json:"firstName,omitempty"`
	LastName      string `json:"lastName,omitempty"`
	AvatarURL     string `json:"avatarUrl,omitempty"`
	Role          string `json:"role,omitempty"`
	SuperAdmin    bool   `json:"superAdmin,omitempty"`
	Managed       bool   `json:"managed,omitempty"`
	PasswordReset bool   `json:"passwordReset,omitempty"`
}

// UserProfilePatch はユーザープロフィールの部分更新を表す。
// nilのフィールドは送信しない。
type UserProfilePatch struct {
	Email         *string `json:"email,omitempty"`
	FirstName     *string `json:"firstName,omitempty"`
	LastName      *string `json:"lastName,omitempty"`
	AvatarURL     *string `json:"avatarUrl,omitempty"`
	PasswordReset *bool   `json:"passwordReset,omitempty"`
}
