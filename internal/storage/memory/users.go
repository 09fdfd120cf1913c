package memory

import (
	"context"
	"time"

	"github.com/canalenergetico/canal-web/internal/store"
)

// CreateUser implements store.UserRepository.
func (s *Store) CreateUser(_ context.Context, u *store.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return store.ErrConflict
		}
	}
	u.ID = s.nextID()
	u.CreatedAt = s.now()
	s.users[u.ID] = *u
	return nil
}

// GetUser implements store.UserRepository.
func (s *Store) GetUser(_ context.Context, id int64) (store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

// GetUserByEmail implements store.UserRepository.
func (s *Store) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

// UpdatePassword implements store.UserRepository.
func (s *Store) UpdatePassword(_ context.Context, id int64, hash string) error {
	return s.updateUser(id, func(u *store.User) { u.PasswordHash = hash })
}

// MarkVerified implements store.UserRepository.
func (s *Store) MarkVerified(_ context.Context, id int64, at time.Time) error {
	return s.updateUser(id, func(u *store.User) { u.VerifiedAt = &at })
}

// UpdateRole implements store.UserRepository.
func (s *Store) UpdateRole(_ context.Context, id int64, role store.Role) error {
	return s.updateUser(id, func(u *store.User) { u.Role = role })
}

// SetActive toggles an account. It has no repository counterpart and exists
// for tests and fixtures.
func (s *Store) SetActive(id int64, active bool) error {
	return s.updateUser(id, func(u *store.User) { u.IsActive = active })
}

func (s *Store) updateUser(id int64, apply func(*store.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	apply(&u)
	s.users[id] = u
	return nil
}
