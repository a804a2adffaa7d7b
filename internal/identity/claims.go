package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/solidfoundation/internal/model"
)

// AccessTokenClaims はアクセストークンから読み取ったクレーム。
type AccessTokenClaims struct {
	Subject   string
	Email     string
	Role      string
	ExpiresAt time.Time
}

// accessTokenClaims はGoTrueが発行するJWTのクレーム。
type accessTokenClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// DecodeAccessToken はアクセストークンを署名検証せずにデコードする。
// 署名の検証はIdPのGetUserで行うため、ここでは有効期限の判定と表示用にのみ使う。
func DecodeAccessToken(token string) (*AccessTokenClaims, error) {
	var claims accessTokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("failed to decode access token: %w", err)
	}

	out := &AccessTokenClaims{
		Subject: claims.Subject,
		Email:   claims.Email,
		Role:    claims.Role,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// SessionFromTokens はCookieに保存したトークンの組からセッションを復元する。
// ユーザー情報はトークンのクレームから仮に埋め、IdPでの検証後に置き換える。
func SessionFromTokens(accessToken, refreshToken string) *model.AuthSession {
	if accessToken == "" && refreshToken == "" {
		return nil
	}

	s := &model.AuthSession{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
	}
	if claims, err := DecodeAccessToken(accessToken); err == nil {
		s.ExpiresAt = claims.ExpiresAt
		s.User = &model.AuthUser{ID: claims.Subject, Email: claims.Email}
	} else {
		// デコードできないトークンは期限切れとして扱い、リフレッシュを試みる
		s.ExpiresAt = time.Unix(1, 0)
	}
	return s
}
