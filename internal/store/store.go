package store

import "context"

// Store bundles every repository behind one backend.
type Store interface {
	ArticleRepository
	TagRepository
	CommentRepository
	UserRepository
	MarketRepository
	NoteRepository
	RegulationRepository
	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close()
}
