package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/canalenergetico/canal-web/internal/store"
)

const regulationColumns = `id, slug_url, titulo_oficial, fecha_publicacion, anio,
	COALESCE(institucion, ''), COALESCE(tipo, ''), COALESCE(tema, ''), COALESCE(descripcion, ''),
	COALESCE(enlace_oficial, ''), COALESCE(pdf_url, ''), created_at, updated_at`

// regulationWhere renders the filter predicates. Text search uses the Spanish
// full-text index and falls back to ILIKE on the title.
func regulationWhere(f store.RegulationFilter) (string, argList) {
	var (
		args  argList
		where []string
	)
	if q := strings.TrimSpace(f.Query); q != "" {
		ts := args.add(q)
		like := args.add(likePattern(q))
		where = append(where, fmt.Sprintf(
			"(to_tsvector('spanish', coalesce(titulo_oficial, '') || ' ' || coalesce(descripcion, '')) @@ plainto_tsquery('spanish', %s) OR titulo_oficial ILIKE %s)",
			ts, like))
	}
	if v := strings.TrimSpace(f.Topic); v != "" {
		where = append(where, "tema = "+args.add(v))
	}
	if f.Year != nil {
		where = append(where, "anio = "+args.add(*f.Year))
	}
	if v := strings.TrimSpace(f.Institution); v != "" {
		where = append(where, "institucion = "+args.add(v))
	}
	if v := strings.TrimSpace(f.Type); v != "" {
		where = append(where, "tipo = "+args.add(v))
	}
	if len(where) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

func regulationOrder(o store.RegulationOrder) string {
	if o == store.OrderAZ {
		return " ORDER BY titulo_oficial ASC, id ASC"
	}
	return " ORDER BY fecha_publicacion DESC NULLS LAST, id DESC"
}

// CountRegulations implements store.RegulationRepository.
func (s *Store) CountRegulations(ctx context.Context, f store.RegulationFilter) (int, error) {
	where, args := regulationWhere(f)
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM normativa`+where, args...).Scan(&n); err != nil {
		return 0, mapErr(err, "count regulations")
	}
	return n, nil
}

// ListRegulations implements store.RegulationRepository.
func (s *Store) ListRegulations(ctx context.Context, f store.RegulationFilter) ([]store.Regulation, error) {
	where, args := regulationWhere(f)
	query := `SELECT ` + regulationColumns + ` FROM normativa` + where + regulationOrder(f.Order)
	if f.Limit > 0 {
		query += " LIMIT " + args.add(f.Limit)
	}
	if f.Offset > 0 {
		query += " OFFSET " + args.add(f.Offset)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err, "list regulations")
	}
	defer rows.Close()
	out := make([]store.Regulation, 0)
	for rows.Next() {
		var r store.Regulation
		err := rows.Scan(
			&r.ID,
			&r.Slug,
			&r.Title,
			&r.PublishedOn,
			&r.Year,
			&r.Institution,
			&r.Type,
			&r.Topic,
			&r.Description,
			&r.OfficialLink,
			&r.PDFURL,
			&r.CreatedAt,
			&r.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan regulation: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate regulations: %w", err)
	}
	return out, nil
}

// CreateRegulation implements store.RegulationRepository.
func (s *Store) CreateRegulation(ctx context.Context, r *store.Regulation) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO normativa (slug_url, titulo_oficial, fecha_publicacion, institucion, tipo, tema,
			descripcion, enlace_oficial, pdf_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, anio, created_at, updated_at`,
		r.Slug,
		r.Title,
		r.PublishedOn,
		nullString(r.Institution),
		nullString(r.Type),
		nullString(r.Topic),
		nullString(r.Description),
		nullString(r.OfficialLink),
		nullString(r.PDFURL),
	).Scan(&r.ID, &r.Year, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return mapErr(err, "insert regulation")
	}
	return nil
}

// RegulationSlugExists implements store.RegulationRepository.
func (s *Store) RegulationSlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM normativa WHERE slug_url = $1)`, slug).Scan(&exists)
	if err != nil {
		return false, mapErr(err, "check regulation slug")
	}
	return exists, nil
}
