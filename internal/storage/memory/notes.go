package memory

import (
	"context"

	"github.com/canalenergetico/canal-web/internal/store"
)

// EnsureNote implements store.NoteRepository.
func (s *Store) EnsureNote(_ context.Context, n store.Note) (store.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.notes[n.Key]; ok {
		return existing, nil
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = s.now()
	}
	s.notes[n.Key] = n
	return n, nil
}

// SaveNote implements store.NoteRepository.
func (s *Store) SaveNote(_ context.Context, n store.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = s.now()
	}
	s.notes[n.Key] = n
	return nil
}
