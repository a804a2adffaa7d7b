package identity

import (
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

// FlowStore はOAuthサインイン開始からコールバックまでの間、PKCEベリファイアを保持する。
// フローIDはCookieでブラウザに渡し、コールバックで一度だけ取り出せる。
type FlowStore struct {
	mu    sync.Mutex
	cache *gocache.Cache
}

// NewFlowStore はttl経過で失効するFlowStoreを生成する。
func NewFlowStore(ttl time.Duration) *FlowStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &FlowStore{cache: gocache.New(ttl, time.Minute)}
}

// Park はベリファイアを保存し、取り出し用のフローIDを返す。
func (f *FlowStore) Park(verifier string) string {
	id := uuid.NewString()
	f.cache.SetDefault(id, verifier)
	return id
}

// Take はフローIDに対応するベリファイアを取り出して削除する。
func (f *FlowStore) Take(id string) (string, bool) {
	if id == "" {
		return "", false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	v, ok := f.cache.Get(id)
	if !ok {
		return "", false
	}
	f.cache.Delete(id)

	verifier, ok := v.(string)
	return verifier, ok
}
