package postgres

import (
	"context"

	"github.com/canalenergetico/canal-web/internal/store"
)

// EnsureNote implements store.NoteRepository.
func (s *Store) EnsureNote(ctx context.Context, n store.Note) (store.Note, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO site_notes (key, content, updated_at, author_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO NOTHING`,
		n.Key, n.Content, n.UpdatedAt, n.AuthorID)
	if err != nil {
		return store.Note{}, mapErr(err, "ensure note")
	}
	var out store.Note
	err = s.pool.QueryRow(ctx, `
		SELECT key, content, updated_at, author_id FROM site_notes WHERE key = $1`, n.Key,
	).Scan(&out.Key, &out.Content, &out.UpdatedAt, &out.AuthorID)
	if err != nil {
		return store.Note{}, mapErr(err, "get note")
	}
	return out, nil
}

// SaveNote implements store.NoteRepository.
func (s *Store) SaveNote(ctx context.Context, n store.Note) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO site_notes (key, content, updated_at, author_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE
		SET content = EXCLUDED.content, updated_at = EXCLUDED.updated_at, author_id = EXCLUDED.author_id`,
		n.Key, n.Content, n.UpdatedAt, n.AuthorID)
	if err != nil {
		return mapErr(err, "save note")
	}
	return nil
}
