package postgres

import (
	"context"
	"fmt"

	"github.com/canalenergetico/canal-web/internal/store"
)

// CreateComment implements store.CommentRepository. A missing article maps to
// ErrNotFound through the foreign key.
func (s *Store) CreateComment(ctx context.Context, c *store.Comment) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO comentarios (articulo_id, user_id, nombre, correo, comentario, fecha)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		c.ArticleID, c.UserID, c.Name, c.Email, c.Body, c.Date,
	).Scan(&c.ID)
	if err != nil {
		return mapErr(err, "insert comment")
	}
	return nil
}

// GetComment implements store.CommentRepository.
func (s *Store) GetComment(ctx context.Context, id int64) (store.Comment, error) {
	var c store.Comment
	err := s.pool.QueryRow(ctx, `
		SELECT c.id, c.articulo_id, a.slug, c.user_id, c.nombre, c.correo, c.comentario, c.fecha
		FROM comentarios c
		JOIN articulos a ON a.id = c.articulo_id
		WHERE c.id = $1`, id,
	).Scan(&c.ID, &c.ArticleID, &c.ArticleSlug, &c.UserID, &c.Name, &c.Email, &c.Body, &c.Date)
	if err != nil {
		return store.Comment{}, mapErr(err, "get comment")
	}
	return c, nil
}

// UpdateCommentBody implements store.CommentRepository.
func (s *Store) UpdateCommentBody(ctx context.Context, id int64, body string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE comentarios SET comentario = $1 WHERE id = $2`, body, id)
	if err != nil {
		return mapErr(err, "update comment")
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteComment implements store.CommentRepository.
func (s *Store) DeleteComment(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM comentarios WHERE id = $1`, id)
	if err != nil {
		return mapErr(err, "delete comment")
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListComments implements store.CommentRepository.
func (s *Store) ListComments(ctx context.Context, articleID int64) ([]store.Comment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, articulo_id, user_id, nombre, correo, comentario, fecha
		FROM comentarios
		WHERE articulo_id = $1
		ORDER BY fecha DESC, id DESC`, articleID)
	if err != nil {
		return nil, mapErr(err, "list comments")
	}
	defer rows.Close()
	out := make([]store.Comment, 0)
	for rows.Next() {
		var c store.Comment
		if err := rows.Scan(&c.ID, &c.ArticleID, &c.UserID, &c.Name, &c.Email, &c.Body, &c.Date); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return out, nil
}
