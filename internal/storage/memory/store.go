// Package memory implements the store in process memory. It backs local
// development without a database and the service tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/canalenergetico/canal-web/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps every table in maps guarded by one lock.
type Store struct {
	mu sync.RWMutex

	seq         int64
	articles    map[int64]store.Article
	tags        map[int64]store.Tag
	comments    map[int64]store.Comment
	users       map[int64]store.User
	daily       map[string]map[string]float64
	latest      map[string]store.Quote
	notes       map[string]store.Note
	regulations map[int64]store.Regulation

	now func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		articles:    make(map[int64]store.Article),
		tags:        make(map[int64]store.Tag),
		comments:    make(map[int64]store.Comment),
		users:       make(map[int64]store.User),
		daily:       make(map[string]map[string]float64),
		latest:      make(map[string]store.Quote),
		notes:       make(map[string]store.Note),
		regulations: make(map[int64]store.Regulation),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the timestamp source used for created/updated columns.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

// nextID must be called with the write lock held.
func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}
