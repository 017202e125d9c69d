// Package identity keeps the signed-in user and tells interested parties
// (usually a sets.Binder) when it changes.
package identity

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vovakirdan/sets-sdk/sets-sdk-go/sets"
	"github.com/vovakirdan/sets-sdk/sets-sdk-go/sets/model"
)

// Persistence stores the identity between runs.
type Persistence interface {
	Save(user model.User) error
	Load() (model.User, error)
	Clear() error
}

// Store is the owner of the current identity. Everything else reads it.
type Store struct {
	persist Persistence

	mu        sync.Mutex
	user      *model.User
	listeners []listener
	nextID    uint64
}

type listener struct {
	id uint64
	fn func(sets.AuthState)
}

// NewStore creates a store. p may be nil for an in-memory identity.
func NewStore(p Persistence) *Store {
	return &Store{persist: p}
}

// Restore loads a previously saved identity. A missing one is not an error.
func (s *Store) Restore() error {
	if s.persist == nil {
		return nil
	}
	u, err := s.persist.Load()
	if errors.Is(err, ErrNoIdentity) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore identity: %w", err)
	}
	s.set(&u)
	return nil
}

// SetUser signs user in.
func (s *Store) SetUser(user model.User) error {
	if user.UserID == "" {
		return sets.NewError(sets.ErrorInvalidConfig, "user without id")
	}
	if s.persist != nil {
		if err := s.persist.Save(user); err != nil {
			return fmt.Errorf("save identity: %w", err)
		}
	}
	s.set(&user)
	return nil
}

// Logout signs the current user out.
func (s *Store) Logout() error {
	if s.persist != nil {
		if err := s.persist.Clear(); err != nil {
			return fmt.Errorf("clear identity: %w", err)
		}
	}
	s.set(nil)
	return nil
}

// User returns the signed-in user.
func (s *Store) User() (model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return model.User{}, false
	}
	return *s.user, true
}

// State returns the current authentication snapshot.
func (s *Store) State() sets.AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Subscribe calls fn with the current state and again after every change.
func (s *Store) Subscribe(fn func(sets.AuthState)) (cancel func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	st := s.stateLocked()
	s.mu.Unlock()

	fn(st)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, l := range s.listeners {
				if l.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Store) set(u *model.User) {
	s.mu.Lock()
	s.user = u
	st := s.stateLocked()
	ls := make([]listener, len(s.listeners))
	copy(ls, s.listeners)
	s.mu.Unlock()

	for _, l := range ls {
		l.fn(st)
	}
}

func (s *Store) stateLocked() sets.AuthState {
	if s.user == nil {
		return sets.AuthState{}
	}
	return sets.AuthState{Authenticated: true, UserID: s.user.UserID}
}
