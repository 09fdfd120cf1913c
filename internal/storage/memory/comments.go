package memory

import (
	"context"
	"sort"

	"github.com/canalenergetico/canal-web/internal/store"
)

// CreateComment implements store.CommentRepository.
func (s *Store) CreateComment(_ context.Context, c *store.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.articles[c.ArticleID]; !ok {
		return store.ErrNotFound
	}
	c.ID = s.nextID()
	if c.Date.IsZero() {
		c.Date = s.now()
	}
	s.comments[c.ID] = *c
	return nil
}

// GetComment implements store.CommentRepository.
func (s *Store) GetComment(_ context.Context, id int64) (store.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.comments[id]
	if !ok {
		return store.Comment{}, store.ErrNotFound
	}
	c.ArticleSlug = s.articles[c.ArticleID].Slug
	return c, nil
}

// UpdateCommentBody implements store.CommentRepository.
func (s *Store) UpdateCommentBody(_ context.Context, id int64, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[id]
	if !ok {
		return store.ErrNotFound
	}
	c.Body = body
	s.comments[id] = c
	return nil
}

// DeleteComment implements store.CommentRepository.
func (s *Store) DeleteComment(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.comments[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.comments, id)
	return nil
}

// ListComments implements store.CommentRepository.
func (s *Store) ListComments(_ context.Context, articleID int64) ([]store.Comment, error) {
	s.mu.RLock()
	out := make([]store.Comment, 0)
	for _, c := range s.comments {
		if c.ArticleID == articleID {
			out = append(out, c)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}
