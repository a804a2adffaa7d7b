package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/hitoshi/solidfoundation/internal/model"
)

// CachingProvider はGetUserの結果をアクセストークン単位でキャッシュするProvider。
// リクエストごとのセッション検証でIdPへの問い合わせが毎回発生しないようにする。
type CachingProvider struct {
	Provider
	users *gocache.Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewCachingProvider はCachingProviderを生成する。
// キャッシュ期間はttlとアクセストークンの残り有効期間の短い方。
func NewCachingProvider(p Provider, ttl time.Duration) *CachingProvider {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachingProvider{
		Provider: p,
		users:    gocache.New(ttl, 5*time.Minute),
		ttl:      ttl,
		now:      time.Now,
	}
}

func tokenKey(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return hex.EncodeToString(sum[:])
}

// GetUser はキャッシュ済みのユーザーを返し、無ければIdPに問い合わせる。
func (c *CachingProvider) GetUser(ctx context.Context, accessToken string) (*model.AuthUser, error) {
	key := tokenKey(accessToken)
	if v, ok := c.users.Get(key); ok {
		if u, ok := v.(*model.AuthUser); ok {
			return u, nil
		}
	}

	user, err := c.Provider.GetUser(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	ttl := c.ttl
	if claims, err := DecodeAccessToken(accessToken); err == nil && !claims.ExpiresAt.IsZero() {
		if remaining := claims.ExpiresAt.Sub(c.now()); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl > 0 {
		c.users.Set(key, user, ttl)
	}
	return user, nil
}

// SignOut はキャッシュを破棄してからセッションを失効させる。
func (c *CachingProvider) SignOut(ctx context.Context, accessToken string, scope SignOutScope) error {
	c.users.Delete(tokenKey(accessToken))
	return c.Provider.SignOut(ctx, accessToken, scope)
}

// UpdateUser はキャッシュを破棄してからユーザーを更新する。
func (c *CachingProvider) UpdateUser(ctx context.Context, accessToken string, attrs UserAttributes) (*model.AuthUser, error) {
	c.users.Delete(tokenKey(accessToken))
	return c.Provider.UpdateUser(ctx, accessToken, attrs)
}

// compile-time interface check
var _ Provider = (*CachingProvider)(nil)
