package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canalenergetico/canal-web/internal/store"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	s, err := NewStoreWithPool(mock)
	require.NoError(t, err)
	return s, mock
}

var articleRowColumns = []string{"id", "titulo", "slug", "descripcion", "img_url", "img_fuente", "contenido", "autor", "fecha", "tag"}

func TestNewStoreWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewStoreWithPool(nil)
	require.Error(t, err)
}

func TestMapErr(t *testing.T) {
	t.Parallel()

	assert.NoError(t, mapErr(nil, "x"))
	assert.ErrorIs(t, mapErr(pgx.ErrNoRows, "x"), store.ErrNotFound)
	assert.ErrorIs(t, mapErr(&pgconn.PgError{Code: "23505"}, "x"), store.ErrConflict)
	assert.ErrorIs(t, mapErr(&pgconn.PgError{Code: "23503"}, "x"), store.ErrNotFound)

	other := mapErr(errors.New("boom"), "insert thing")
	assert.EqualError(t, other, "insert thing: boom")
}

func TestLikePatternEscapesWildcards(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `%50\% off\_now%`, likePattern("50% off_now"))
	assert.Equal(t, `%a\\b%`, likePattern(`a\b`))
}

func TestArgListNumbersPlaceholders(t *testing.T) {
	t.Parallel()

	var args argList
	assert.Equal(t, "$1", args.add("a"))
	assert.Equal(t, "$2", args.add(2))
	assert.Len(t, args, 2)
}

func TestCreateArticleLinksTagsInTx(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	date := time.Date(2025, 5, 4, 0, 0, 0, 0, time.UTC)
	a := &store.Article{
		Title:       "Nuevo",
		Slug:        "nuevo",
		Description: "desc",
		Content:     "<p>x</p>",
		Author:      "Ana",
		Date:        date,
		LegacyTag:   "Solar",
		Tags:        []store.Tag{{ID: 3, Name: "Solar"}, {ID: 7, Name: "Eólica"}},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO articulos").
		WithArgs("Nuevo", "nuevo", "desc", (*string)(nil), (*string)(nil), "<p>x</p>", "Ana", date, nullString("Solar")).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectExec("INSERT INTO articulo_tags").
		WithArgs(int64(11), []int64{3, 7}).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	require.NoError(t, s.CreateArticle(context.Background(), a))
	assert.Equal(t, int64(11), a.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateArticleConflictRollsBack(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO articulos").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := s.CreateArticle(context.Background(), &store.Article{Title: "x", Slug: "x"})
	require.ErrorIs(t, err, store.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateArticleMissingRowIsNotFound(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE articulos").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := s.UpdateArticle(context.Background(), &store.Article{ID: 99, Title: "x", Slug: "x"})
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateArticleReplacesTagLinks(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE articulos").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("DELETE FROM articulo_tags").
		WithArgs(int64(5)).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec("INSERT INTO articulo_tags").
		WithArgs(int64(5), []int64{9}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.UpdateArticle(context.Background(), &store.Article{ID: 5, Title: "x", Slug: "x", Tags: []store.Tag{{ID: 9}}})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetArticleBySlugAttachesTags(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	date := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM articulos a WHERE a.slug").
		WithArgs("hola").
		WillReturnRows(pgxmock.NewRows(articleRowColumns).
			AddRow(int64(4), "Hola", "hola", "d", "", "", "c", "Ana", date, "Solar"))
	mock.ExpectQuery("FROM articulo_tags at").
		WithArgs([]int64{4}).
		WillReturnRows(pgxmock.NewRows([]string{"articulo_id", "id", "nombre", "slug"}).
			AddRow(int64(4), int64(1), "Solar", "solar").
			AddRow(int64(4), int64(2), "Redes", "redes"))

	a, err := s.GetArticleBySlug(context.Background(), "hola")
	require.NoError(t, err)
	assert.Equal(t, "Hola", a.Title)
	assert.Equal(t, date, a.Date)
	require.Len(t, a.Tags, 2)
	assert.Equal(t, "solar", a.Tags[0].Slug)
	assert.Equal(t, "Solar, Redes", a.TagNames())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetArticleBySlugNotFound(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery("FROM articulos a WHERE a.slug").
		WithArgs("nada").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetArticleBySlug(context.Background(), "nada")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListArticlesFiltersAndPaginates(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT count\(\*\) FROM articulos a WHERE .*ILIKE \$1.*lower\(trim\(a.tag\)\) = lower\(\$2\)`).
		WithArgs("%litio%", "Minería").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(13))
	mock.ExpectQuery(`ORDER BY a.fecha DESC, a.id DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("%litio%", "Minería", 12, 12).
		WillReturnRows(pgxmock.NewRows(articleRowColumns).
			AddRow(int64(1), "Litio", "litio", "d", "", "", "c", "Ana", time.Now().UTC(), "Minería"))
	mock.ExpectQuery("FROM articulo_tags at").
		WithArgs([]int64{1}).
		WillReturnRows(pgxmock.NewRows([]string{"articulo_id", "id", "nombre", "slug"}))

	page, err := s.ListArticles(context.Background(), store.ArticleFilter{Query: " litio ", Tag: "Minería", Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 13, page.Total)
	assert.Equal(t, 2, page.Pages())
	assert.False(t, page.HasNext())
	require.Len(t, page.Items, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchByTagsModes(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	items, err := s.SearchByTags(context.Background(), nil, true)
	require.NoError(t, err)
	assert.Empty(t, items)

	mock.ExpectQuery(`HAVING count\(DISTINCT t.slug\) = \$2`).
		WithArgs([]string{"solar", "redes"}, 2).
		WillReturnRows(pgxmock.NewRows(articleRowColumns))
	_, err = s.SearchByTags(context.Background(), []string{"solar", "redes", "solar"}, true)
	require.NoError(t, err)

	mock.ExpectQuery(`WHERE t.slug = ANY\(\$1\)\s+\)`).
		WithArgs([]string{"solar"}).
		WillReturnRows(pgxmock.NewRows(articleRowColumns))
	_, err = s.SearchByTags(context.Background(), []string{"solar"}, false)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestWithTagFallsBackToLegacyColumn(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery("t.slug = lower").
		WithArgs("main").
		WillReturnRows(pgxmock.NewRows(articleRowColumns))
	mock.ExpectQuery(`lower\(trim\(a.tag\)\) = lower\(\$1\)`).
		WithArgs("main").
		WillReturnRows(pgxmock.NewRows(articleRowColumns).
			AddRow(int64(8), "Portada", "portada", "d", "", "", "c", "Ana", time.Now().UTC(), "main"))
	mock.ExpectQuery("FROM articulo_tags at").
		WithArgs([]int64{8}).
		WillReturnRows(pgxmock.NewRows([]string{"articulo_id", "id", "nombre", "slug"}))

	a, err := s.LatestWithTag(context.Background(), "main")
	require.NoError(t, err)
	assert.Equal(t, "portada", a.Slug)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteArticleNotFound(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM articulos").
		WithArgs(int64(3)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.ErrorIs(t, s.DeleteArticle(context.Background(), 3), store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCommentOnMissingArticle(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery("INSERT INTO comentarios").
		WillReturnError(&pgconn.PgError{Code: "23503"})

	err := s.CreateComment(context.Background(), &store.Comment{ArticleID: 404, Body: "hola"})
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCommentJoinsArticleSlug(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	uid := int64(2)
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("JOIN articulos a ON a.id = c.articulo_id").
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "articulo_id", "slug", "user_id", "nombre", "correo", "comentario", "fecha"}).
			AddRow(int64(7), int64(1), "hola", &uid, "Ana", "ana@example.com", "Buen texto", at))

	c, err := s.GetComment(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "hola", c.ArticleSlug)
	require.NotNil(t, c.UserID)
	assert.Equal(t, int64(2), *c.UserID)
	assert.Equal(t, "01/03/2025", c.DisplayDate())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserByEmailParsesRole(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	verified := created.Add(time.Hour)
	cols := []string{"id", "nombre", "email", "password_hash", "verified_at", "role", "is_active", "created_at"}
	mock.ExpectQuery("FROM users WHERE email").
		WithArgs("ana@example.com").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(int64(1), "Ana", "ana@example.com", "hash", &verified, "colaborador", true, created))

	u, err := s.GetUserByEmail(context.Background(), "  Ana@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, store.RoleColaborador, u.Role)
	require.NotNil(t, u.VerifiedAt)
	assert.True(t, u.IsActive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserDefaultsRole(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO users").
		WithArgs("Ana", "ana@example.com", "hash", (*time.Time)(nil), "lector", true).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(5), created))

	u := &store.User{Name: "Ana", Email: "Ana@example.com", PasswordHash: "hash", IsActive: true}
	require.NoError(t, s.CreateUser(context.Background(), u))
	assert.Equal(t, int64(5), u.ID)
	assert.Equal(t, store.RoleLector, u.Role)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRoleMissingUser(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectExec("UPDATE users SET role").
		WithArgs("admin", int64(9)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.ErrorIs(t, s.UpdateRole(context.Background(), 9, store.RoleAdmin), store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertDailyDedupesAndEvicts(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	points := []store.DailyClose{
		{Symbol: "RBRTE", Date: "2025-05-02", Close: 61.1},
		{Symbol: "RBRTE", Date: "2025-05-01", Close: 60.0},
		{Symbol: "RBRTE", Date: "2025-05-02", Close: 61.5},
	}
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO mercado_daily").
		WithArgs("RBRTE", []string{"2025-05-02", "2025-05-01"}, []float64{61.5, 60.0}).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectExec("DELETE FROM mercado_daily").
		WithArgs("RBRTE", 30).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectCommit()

	evicted, err := s.UpsertDaily(context.Background(), "RBRTE", points, 30)
	require.NoError(t, err)
	assert.Equal(t, 4, evicted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLatestNotFound(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery("FROM mercado_ultimo").
		WithArgs("RWTC").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetLatest(context.Background(), "RWTC")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkStaleAndUpsertLatest(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	asOf := time.Date(2025, 5, 4, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO mercado_ultimo").
		WithArgs("RBRTE", 61.5, "USD/bbl", asOf, false).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE mercado_ultimo SET stale = TRUE").
		WithArgs("RBRTE").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.UpsertLatest(context.Background(), store.Quote{Symbol: "RBRTE", Value: 61.5, Unit: "USD/bbl", AsOf: asOf}))
	require.NoError(t, s.MarkStale(context.Background(), "RBRTE"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureNoteReturnsStoredRow(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	at := time.Date(2025, 5, 4, 12, 0, 0, 0, time.UTC)
	author := int64(1)
	mock.ExpectExec("INSERT INTO site_notes").
		WithArgs("markets", "inicial", at, (*int64)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("FROM site_notes WHERE key").
		WithArgs("markets").
		WillReturnRows(pgxmock.NewRows([]string{"key", "content", "updated_at", "author_id"}).
			AddRow("markets", "editado", at, &author))

	n, err := s.EnsureNote(context.Background(), store.Note{Key: "markets", Content: "inicial", UpdatedAt: at})
	require.NoError(t, err)
	assert.Equal(t, "editado", n.Content)
	require.NotNil(t, n.AuthorID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegulationFilters(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	year := 2024
	f := store.RegulationFilter{Query: "tarifa", Topic: "Electricidad", Year: &year, Order: store.OrderAZ, Limit: 12, Offset: 24}

	mock.ExpectQuery(`SELECT count\(\*\) FROM normativa WHERE .*plainto_tsquery\('spanish', \$1\).*tema = \$3 AND anio = \$4`).
		WithArgs("tarifa", "%tarifa%", "Electricidad", 2024).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(30))
	n, err := s.CountRegulations(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, 30, n)

	published := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`ORDER BY titulo_oficial ASC, id ASC LIMIT \$5 OFFSET \$6`).
		WithArgs("tarifa", "%tarifa%", "Electricidad", 2024, 12, 24).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "slug_url", "titulo_oficial", "fecha_publicacion", "anio", "institucion", "tipo",
			"tema", "descripcion", "enlace_oficial", "pdf_url", "created_at", "updated_at",
		}).AddRow(int64(1), "tarifa-2024", "Tarifa 2024", &published, &year, "CNE", "Decreto",
			"Electricidad", "", "", "", published, published))
	items, err := s.ListRegulations(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "tarifa-2024", items[0].Slug)
	require.NotNil(t, items[0].Year)
	assert.Equal(t, 2024, *items[0].Year)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegulationDefaultOrderHasNoWhere(t *testing.T) {
	t.Parallel()

	where, args := regulationWhere(store.RegulationFilter{})
	assert.Empty(t, where)
	assert.Empty(t, args)
	assert.Contains(t, regulationOrder(""), "fecha_publicacion DESC NULLS LAST")
}
