// Package session はページ（リクエスト）単位の認証状態ストアとルートガードを提供する。
package session

import (
	"context"
	"sync"

	"github.com/hitoshi/solidfoundation/internal/identity"
	"github.com/hitoshi/solidfoundation/internal/model"
)

// State はストアが保持する認証状態のスナップショット。
type State struct {
	User      *model.AuthUser    `json:"user"`
	Session   *model.AuthSession `json:"session"`
	IsLoading bool               `json:"isLoading"`
	Ready     bool               `json:"-"`
}

// Authenticated はユーザーがサインイン済みかを返す。
func (s State) Authenticated() bool {
	return s.User != nil && s.Session != nil
}

// Source はストアが購読する認証状態の供給元。*identity.Gatewayが満たす。
type Source interface {
	GetSession(ctx context.Context) (*model.AuthSession, error)
	OnAuthStateChange(fn func(identity.Event)) *identity.Subscription
}

// Store は現在のユーザーとセッションを保持する。
// 生成直後はIsLoading=trueで、Initで初回取得が終わると明示的にReadyになる。
type Store struct {
	mu        sync.RWMutex
	state     State
	sub       *identity.Subscription
	listeners map[int]func(State)
	nextID    int
}

// NewStore はロード中の状態でStoreを生成する。
func NewStore() *Store {
	return &Store{
		state:     State{IsLoading: true},
		listeners: make(map[int]func(State)),
	}
}

// Init は供給元の変化を購読し、現在のセッションを一度取得してストアを確定させる。
// 取得に失敗した場合も未認証として確定させ、エラーを返す。
func (s *Store) Init(ctx context.Context, src Source) error {
	sub := src.OnAuthStateChange(s.apply)

	s.mu.Lock()
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	s.sub = sub
	s.mu.Unlock()

	session, err := src.GetSession(ctx)
	if err != nil {
		session = nil
	}
	s.set(session)
	return err
}

// apply は認証状態の変化イベントを反映する。
func (s *Store) apply(ev identity.Event) {
	s.set(ev.Session)
}

func (s *Store) set(session *model.AuthSession) {
	next := State{Session: session, Ready: true}
	if session != nil {
		next.User = session.User
	}

	s.mu.Lock()
	s.state = next
	fns := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(next)
	}
}

// Snapshot は現在の状態を返す。
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// OnChange は状態の変化を購読し、解除用の関数を返す。
func (s *Store) OnChange(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Close は供給元の購読を解除する。以降のイベントは反映されない。
func (s *Store) Close() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}
