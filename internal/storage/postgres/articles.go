package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/canalenergetico/canal-web/internal/store"
)

const articleColumns = `a.id, a.titulo, a.slug, a.descripcion, COALESCE(a.img_url, ''), COALESCE(a.img_fuente, ''),
	a.contenido, a.autor, a.fecha, COALESCE(a.tag, '')`

func scanArticle(row pgx.Row) (store.Article, error) {
	var a store.Article
	err := row.Scan(
		&a.ID,
		&a.Title,
		&a.Slug,
		&a.Description,
		&a.ImageURL,
		&a.ImageSource,
		&a.Content,
		&a.Author,
		&a.Date,
		&a.LegacyTag,
	)
	return a, err
}

// queryArticles runs a SELECT of articleColumns and attaches tags.
func (s *Store) queryArticles(ctx context.Context, query string, args ...any) ([]store.Article, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err, "query articles")
	}
	defer rows.Close()

	out := make([]store.Article, 0)
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	if err := s.attachTags(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// attachTags loads the ordered tags of every article in one query.
func (s *Store) attachTags(ctx context.Context, articles []store.Article) error {
	if len(articles) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(articles))
	index := make(map[int64]int, len(articles))
	for i, a := range articles {
		ids = append(ids, a.ID)
		index[a.ID] = i
	}
	rows, err := s.pool.Query(ctx, `
		SELECT at.articulo_id, t.id, t.nombre, t.slug
		FROM articulo_tags at
		JOIN tags t ON t.id = at.tag_id
		WHERE at.articulo_id = ANY($1)
		ORDER BY at.articulo_id, at.posicion, t.id`, ids)
	if err != nil {
		return mapErr(err, "load article tags")
	}
	defer rows.Close()
	for rows.Next() {
		var articleID int64
		var t store.Tag
		if err := rows.Scan(&articleID, &t.ID, &t.Name, &t.Slug); err != nil {
			return fmt.Errorf("scan article tag: %w", err)
		}
		if i, ok := index[articleID]; ok {
			articles[i].Tags = append(articles[i].Tags, t)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate article tags: %w", err)
	}
	return nil
}

func tagIDs(tags []store.Tag) []int64 {
	ids := make([]int64, 0, len(tags))
	for _, t := range tags {
		ids = append(ids, t.ID)
	}
	return ids
}

const linkTagsSQL = `
	INSERT INTO articulo_tags (articulo_id, tag_id, posicion)
	SELECT $1, u.tag_id, u.pos
	FROM unnest($2::int[]) WITH ORDINALITY AS u(tag_id, pos)
	ON CONFLICT DO NOTHING`

// CreateArticle implements store.ArticleRepository.
func (s *Store) CreateArticle(ctx context.Context, a *store.Article) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO articulos (titulo, slug, descripcion, img_url, img_fuente, contenido, autor, fecha, tag)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id`,
			a.Title,
			a.Slug,
			a.Description,
			nullString(a.ImageURL),
			nullString(a.ImageSource),
			a.Content,
			a.Author,
			a.Date,
			nullString(a.LegacyTag),
		).Scan(&a.ID)
		if err != nil {
			return mapErr(err, "insert article")
		}
		if len(a.Tags) == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, linkTagsSQL, a.ID, tagIDs(a.Tags)); err != nil {
			return mapErr(err, "link article tags")
		}
		return nil
	})
}

// UpdateArticle implements store.ArticleRepository.
func (s *Store) UpdateArticle(ctx context.Context, a *store.Article) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE articulos
			SET titulo = $1, slug = $2, descripcion = $3, img_url = $4, img_fuente = $5,
				contenido = $6, autor = $7, fecha = $8, tag = $9
			WHERE id = $10`,
			a.Title,
			a.Slug,
			a.Description,
			nullString(a.ImageURL),
			nullString(a.ImageSource),
			a.Content,
			a.Author,
			a.Date,
			nullString(a.LegacyTag),
			a.ID,
		)
		if err != nil {
			return mapErr(err, "update article")
		}
		if tag.RowsAffected() == 0 {
			return store.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM articulo_tags WHERE articulo_id = $1`, a.ID); err != nil {
			return mapErr(err, "unlink article tags")
		}
		if len(a.Tags) == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, linkTagsSQL, a.ID, tagIDs(a.Tags)); err != nil {
			return mapErr(err, "link article tags")
		}
		return nil
	})
}

// DeleteArticle implements store.ArticleRepository. Comments and tag links
// cascade.
func (s *Store) DeleteArticle(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM articulos WHERE id = $1`, id)
	if err != nil {
		return mapErr(err, "delete article")
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetArticleBySlug implements store.ArticleRepository.
func (s *Store) GetArticleBySlug(ctx context.Context, slug string) (store.Article, error) {
	a, err := scanArticle(s.pool.QueryRow(ctx, `SELECT `+articleColumns+` FROM articulos a WHERE a.slug = $1`, slug))
	if err != nil {
		return store.Article{}, mapErr(err, "get article")
	}
	list := []store.Article{a}
	if err := s.attachTags(ctx, list); err != nil {
		return store.Article{}, err
	}
	return list[0], nil
}

// ArticleSlugExists implements store.ArticleRepository.
func (s *Store) ArticleSlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM articulos WHERE slug = $1)`, slug).Scan(&exists)
	if err != nil {
		return false, mapErr(err, "check article slug")
	}
	return exists, nil
}

// ListArticles implements store.ArticleRepository.
func (s *Store) ListArticles(ctx context.Context, f store.ArticleFilter) (store.ArticlePage, error) {
	if f.PerPage <= 0 {
		f.PerPage = 12
	}
	if f.Page < 1 {
		f.Page = 1
	}
	var args argList
	var where []string
	if q := strings.TrimSpace(f.Query); q != "" {
		p := args.add(likePattern(q))
		where = append(where, fmt.Sprintf(
			"(a.titulo ILIKE %[1]s OR a.descripcion ILIKE %[1]s OR a.contenido ILIKE %[1]s OR a.tag ILIKE %[1]s)", p))
	}
	if tag := strings.TrimSpace(f.Tag); tag != "" {
		where = append(where, "lower(trim(a.tag)) = lower("+args.add(tag)+")")
	}
	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	page := store.ArticlePage{Page: f.Page, PerPage: f.PerPage}
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM articulos a`+whereSQL, args...).Scan(&page.Total); err != nil {
		return store.ArticlePage{}, mapErr(err, "count articles")
	}
	limit := args.add(f.PerPage)
	offset := args.add((f.Page - 1) * f.PerPage)
	items, err := s.queryArticles(ctx,
		`SELECT `+articleColumns+` FROM articulos a`+whereSQL+
			` ORDER BY a.fecha DESC, a.id DESC LIMIT `+limit+` OFFSET `+offset, args...)
	if err != nil {
		return store.ArticlePage{}, err
	}
	page.Items = items
	return page, nil
}

// ListRecentArticles implements store.ArticleRepository.
func (s *Store) ListRecentArticles(ctx context.Context, limit int) ([]store.Article, error) {
	return s.queryArticles(ctx,
		`SELECT `+articleColumns+` FROM articulos a ORDER BY a.id DESC LIMIT NULLIF($1, 0)`, max(limit, 0))
}

// ListLegacyTags implements store.ArticleRepository.
func (s *Store) ListLegacyTags(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t FROM (
			SELECT DISTINCT trim(tag) AS t FROM articulos WHERE trim(coalesce(tag, '')) <> ''
		) legacy
		ORDER BY lower(t), t`)
	if err != nil {
		return nil, mapErr(err, "list legacy tags")
	}
	defer rows.Close()
	out := make([]string, 0)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan legacy tag: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate legacy tags: %w", err)
	}
	return out, nil
}

// ListArticlesByTag implements store.ArticleRepository.
func (s *Store) ListArticlesByTag(ctx context.Context, tagID int64) ([]store.Article, error) {
	return s.queryArticles(ctx, `
		SELECT `+articleColumns+`
		FROM articulos a
		JOIN articulo_tags at ON at.articulo_id = a.id
		WHERE at.tag_id = $1
		ORDER BY a.id DESC`, tagID)
}

// SearchByTags implements store.ArticleRepository.
func (s *Store) SearchByTags(ctx context.Context, slugs []string, matchAll bool) ([]store.Article, error) {
	distinct := make([]string, 0, len(slugs))
	seen := make(map[string]struct{}, len(slugs))
	for _, sl := range slugs {
		if _, ok := seen[sl]; ok || sl == "" {
			continue
		}
		seen[sl] = struct{}{}
		distinct = append(distinct, sl)
	}
	if len(distinct) == 0 {
		return []store.Article{}, nil
	}
	if !matchAll {
		return s.queryArticles(ctx, `
			SELECT `+articleColumns+`
			FROM articulos a
			WHERE a.id IN (
				SELECT at.articulo_id FROM articulo_tags at
				JOIN tags t ON t.id = at.tag_id
				WHERE t.slug = ANY($1)
			)
			ORDER BY a.id DESC`, distinct)
	}
	return s.queryArticles(ctx, `
		SELECT `+articleColumns+`
		FROM articulos a
		WHERE a.id IN (
			SELECT at.articulo_id FROM articulo_tags at
			JOIN tags t ON t.id = at.tag_id
			WHERE t.slug = ANY($1)
			GROUP BY at.articulo_id
			HAVING count(DISTINCT t.slug) = $2
		)
		ORDER BY a.id DESC`, distinct, len(distinct))
}

// LatestWithTag implements store.ArticleRepository.
func (s *Store) LatestWithTag(ctx context.Context, tag string) (store.Article, error) {
	items, err := s.queryArticles(ctx, `
		SELECT `+articleColumns+`
		FROM articulos a
		WHERE EXISTS (
			SELECT 1 FROM articulo_tags at
			JOIN tags t ON t.id = at.tag_id
			WHERE at.articulo_id = a.id AND (t.slug = lower($1) OR lower(t.nombre) = lower($1))
		)
		ORDER BY a.id DESC
		LIMIT 1`, tag)
	if err != nil {
		return store.Article{}, err
	}
	if len(items) == 0 {
		items, err = s.queryArticles(ctx, `
			SELECT `+articleColumns+`
			FROM articulos a
			WHERE lower(trim(a.tag)) = lower($1)
			ORDER BY a.id DESC
			LIMIT 1`, tag)
		if err != nil {
			return store.Article{}, err
		}
	}
	if len(items) == 0 {
		return store.Article{}, store.ErrNotFound
	}
	return items[0], nil
}

// GetTagBySlug implements store.TagRepository.
func (s *Store) GetTagBySlug(ctx context.Context, slug string) (store.Tag, error) {
	var t store.Tag
	err := s.pool.QueryRow(ctx, `SELECT id, nombre, slug FROM tags WHERE slug = $1`, slug).Scan(&t.ID, &t.Name, &t.Slug)
	if err != nil {
		return store.Tag{}, mapErr(err, "get tag")
	}
	return t, nil
}

// CreateTag implements store.TagRepository.
func (s *Store) CreateTag(ctx context.Context, t *store.Tag) error {
	err := s.pool.QueryRow(ctx, `INSERT INTO tags (nombre, slug) VALUES ($1, $2) RETURNING id`, t.Name, t.Slug).Scan(&t.ID)
	if err != nil {
		return mapErr(err, "insert tag")
	}
	return nil
}
