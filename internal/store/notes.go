package store

import (
	"context"
	"time"
)

// Note is a keyed editorial text block (e.g. the markets commentary).
type Note struct {
	Key       string
	Content   string
	UpdatedAt time.Time
	AuthorID  *int64
}

// NoteRepository persists site notes.
type NoteRepository interface {
	// EnsureNote inserts n when its key is absent and returns the stored note.
	EnsureNote(ctx context.Context, n Note) (Note, error)
	// SaveNote inserts or replaces the note.
	SaveNote(ctx context.Context, n Note) error
}
