package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/solidfoundation/internal/model"
)

func TestFlowStore_TakeIsSingleUse(t *testing.T) {
	store := NewFlowStore(time.Minute)

	id := store.Park("verifier-1")
	if id == "" {
		t.Fatal("Park should return a flow id")
	}

	v, ok := store.Take(id)
	if !ok || v != "verifier-1" {
		t.Fatalf("Take = (%q, %v), want (%q, true)", v, ok, "verifier-1")
	}

	if _, ok := store.Take(id); ok {
		t.Error("second Take should fail")
	}
}

func TestFlowStore_UnknownID(t *testing.T) {
	store := NewFlowStore(time.Minute)

	for _, id := range []string{"", "no-such-flow"} {
		if _, ok := store.Take(id); ok {
			t.Errorf("Take(%q) = ok, want not found", id)
		}
	}
}

func signedToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, accessTokenClaims{
		Email: sub + "@example.com",
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	s, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return s
}

func TestDecodeAccessToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	claims, err := DecodeAccessToken(signedToken(t, "u-1", exp))
	if err != nil {
		t.Fatalf("DecodeAccessToken: %v", err)
	}

	if claims.Subject != "u-1" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "u-1")
	}
	if claims.Email != "u-1@example.com" {
		t.Errorf("Email = %q, want %q", claims.Email, "u-1@example.com")
	}
	if claims.Role != "authenticated" {
		t.Errorf("Role = %q, want %q", claims.Role, "authenticated")
	}
	if !exp.Equal(claims.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", claims.ExpiresAt, exp)
	}
}

func TestDecodeAccessToken_Garbage(t *testing.T) {
	if _, err := DecodeAccessToken("not-a-jwt"); err == nil {
		t.Error("expected error for malformed token")
	}
}

func TestSessionFromTokens(t *testing.T) {
	if s := SessionFromTokens("", ""); s != nil {
		t.Errorf("SessionFromTokens(empty) = %+v, want nil", s)
	}

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	s := SessionFromTokens(signedToken(t, "u-1", exp), "rt")
	if s == nil {
		t.Fatal("expected session from valid tokens")
	}
	if s.RefreshToken != "rt" {
		t.Errorf("RefreshToken = %q, want %q", s.RefreshToken, "rt")
	}
	if s.User == nil || s.User.ID != "u-1" {
		t.Errorf("User = %+v, want u-1", s.User)
	}
	if s.Expired(time.Now(), 0) {
		t.Error("session should not be expired")
	}

	// 解析できないトークンは期限切れとして扱い、リフレッシュさせる
	if broken := SessionFromTokens("garbage", "rt"); !broken.Expired(time.Now(), 0) {
		t.Error("session from garbage token should be expired")
	}
}

func TestCachingProvider_CachesGetUser(t *testing.T) {
	calls := 0
	inner := &mockProvider{
		getUserFn: func(context.Context, string) (*model.AuthUser, error) {
			calls++
			return &model.AuthUser{ID: "u-1"}, nil
		},
	}
	p := NewCachingProvider(inner, time.Minute)
	token := signedToken(t, "u-1", time.Now().Add(time.Hour))

	for i := 0; i < 3; i++ {
		u, err := p.GetUser(context.Background(), token)
		if err != nil {
			t.Fatalf("GetUser: %v", err)
		}
		if u.ID != "u-1" {
			t.Errorf("ID = %q, want u-1", u.ID)
		}
	}
	if calls != 1 {
		t.Errorf("inner GetUser calls = %d, want 1", calls)
	}

	// サインアウトでキャッシュは破棄される
	if err := p.SignOut(context.Background(), token, SignOutGlobal); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if _, err := p.GetUser(context.Background(), token); err != nil {
		t.Fatalf("GetUser after SignOut: %v", err)
	}
	if calls != 2 {
		t.Errorf("inner GetUser calls = %d, want 2", calls)
	}
}

func TestCachingProvider_DoesNotCacheErrors(t *testing.T) {
	calls := 0
	inner := &mockProvider{
		getUserFn: func(context.Context, string) (*model.AuthUser, error) {
			calls++
			return nil, &ProviderError{Status: 401}
		},
	}
	p := NewCachingProvider(inner, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := p.GetUser(context.Background(), "bad"); err == nil {
			t.Fatal("expected error")
		}
	}
	if calls != 2 {
		t.Errorf("inner GetUser calls = %d, want 2", calls)
	}
}
