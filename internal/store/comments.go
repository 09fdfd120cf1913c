package store

import (
	"context"
	"time"
)

// Comment is a reader's note on an article.
type Comment struct {
	ID        int64
	ArticleID int64
	// ArticleSlug is populated by GetComment for redirects.
	ArticleSlug string
	// UserID is nil for comments imported from before accounts existed.
	UserID *int64
	Name   string
	Email  string
	Body   string
	Date   time.Time
}

// DisplayDate renders the comment date as dd/mm/yyyy.
func (c Comment) DisplayDate() string {
	return c.Date.Format("02/01/2006")
}

// CommentRepository persists comments.
type CommentRepository interface {
	// CreateComment inserts c, setting c.ID.
	CreateComment(ctx context.Context, c *Comment) error
	// GetComment loads one comment with its article slug or returns ErrNotFound.
	GetComment(ctx context.Context, id int64) (Comment, error)
	// UpdateCommentBody replaces the text of a comment.
	UpdateCommentBody(ctx context.Context, id int64, body string) error
	// DeleteComment removes a comment.
	DeleteComment(ctx context.Context, id int64) error
	// ListComments returns an article's comments newest first.
	ListComments(ctx context.Context, articleID int64) ([]Comment, error)
}
