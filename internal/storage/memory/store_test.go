package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canalenergetico/canal-web/internal/store"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func seedArticles(t *testing.T, s *Store) (store.Tag, store.Tag) {
	t.Helper()
	ctx := context.Background()
	solar := store.Tag{Name: "Solar", Slug: "solar"}
	main := store.Tag{Name: "main", Slug: "main"}
	require.NoError(t, s.CreateTag(ctx, &solar))
	require.NoError(t, s.CreateTag(ctx, &main))

	articles := []store.Article{
		{Title: "Parque solar en Chiriquí", Slug: "parque-solar", Description: "Nueva planta", Content: "<p>MW</p>", Date: day("2025-01-10"), LegacyTag: "Solar", Tags: []store.Tag{solar}},
		{Title: "Precio del Brent", Slug: "precio-brent", Description: "Petróleo sube", Content: "<p>crudo</p>", Date: day("2025-02-01"), LegacyTag: " Petróleo ", Tags: nil},
		{Title: "Portada", Slug: "portada", Description: "Destacado", Content: "<p>x</p>", Date: day("2024-12-31"), LegacyTag: "main", Tags: []store.Tag{main, solar}},
	}
	for i := range articles {
		require.NoError(t, s.CreateArticle(ctx, &articles[i]))
	}
	return solar, main
}

func TestArticleConflicts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore()
	seedArticles(t, s)

	dup := store.Article{Title: "Precio del Brent", Slug: "otro"}
	assert.ErrorIs(t, s.CreateArticle(ctx, &dup), store.ErrConflict)

	a, err := s.GetArticleBySlug(ctx, "parque-solar")
	require.NoError(t, err)
	a.Slug = "precio-brent"
	assert.ErrorIs(t, s.UpdateArticle(ctx, &a), store.ErrConflict)

	a.Slug = "parque-solar"
	a.Title = "Parque solar ampliado"
	require.NoError(t, s.UpdateArticle(ctx, &a))

	_, err = s.GetArticleBySlug(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListArticlesFiltersAndPaginates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore()
	seedArticles(t, s)

	page, err := s.ListArticles(ctx, store.ArticleFilter{PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.Pages())
	require.Len(t, page.Items, 2)
	assert.Equal(t, "precio-brent", page.Items[0].Slug)
	assert.True(t, page.HasNext())

	page, err = s.ListArticles(ctx, store.ArticleFilter{Query: "CRUDO"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "precio-brent", page.Items[0].Slug)

	page, err = s.ListArticles(ctx, store.ArticleFilter{Tag: "petróleo"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	tags, err := s.ListLegacyTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"main", "Petróleo", "Solar"}, tags)
}

func TestTagQueries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore()
	solar, _ := seedArticles(t, s)

	byTag, err := s.ListArticlesByTag(ctx, solar.ID)
	require.NoError(t, err)
	assert.Len(t, byTag, 2)

	anyOf, err := s.SearchByTags(ctx, []string{"solar", "main"}, false)
	require.NoError(t, err)
	assert.Len(t, anyOf, 2)

	allOf, err := s.SearchByTags(ctx, []string{"solar", "main"}, true)
	require.NoError(t, err)
	require.Len(t, allOf, 1)
	assert.Equal(t, "portada", allOf[0].Slug)

	featured, err := s.LatestWithTag(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, "portada", featured.Slug)

	_, err = s.LatestWithTag(ctx, "eolica")
	assert.ErrorIs(t, err, store.ErrNotFound)

	dup := store.Tag{Name: "Solar", Slug: "solar"}
	assert.ErrorIs(t, s.CreateTag(ctx, &dup), store.ErrConflict)
}

func TestCommentsCascadeOnArticleDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore()
	seedArticles(t, s)
	a, err := s.GetArticleBySlug(ctx, "precio-brent")
	require.NoError(t, err)

	first := store.Comment{ArticleID: a.ID, Name: "Ana", Email: "ana@canal.com", Body: "uno", Date: day("2025-02-02")}
	second := store.Comment{ArticleID: a.ID, Name: "Luis", Email: "luis@canal.com", Body: "dos", Date: day("2025-02-03")}
	require.NoError(t, s.CreateComment(ctx, &first))
	require.NoError(t, s.CreateComment(ctx, &second))

	list, err := s.ListComments(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "dos", list[0].Body)

	got, err := s.GetComment(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "precio-brent", got.ArticleSlug)

	require.NoError(t, s.DeleteArticle(ctx, a.ID))
	_, err = s.GetComment(ctx, first.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUsers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore()

	u := store.User{Name: "Ana", Email: "ana@canal.com", Role: store.RoleLector, IsActive: true}
	require.NoError(t, s.CreateUser(ctx, &u))
	assert.NotZero(t, u.ID)
	assert.False(t, u.CreatedAt.IsZero())

	dup := store.User{Email: "ana@canal.com"}
	assert.ErrorIs(t, s.CreateUser(ctx, &dup), store.ErrConflict)

	now := day("2025-03-01")
	require.NoError(t, s.MarkVerified(ctx, u.ID, now))
	require.NoError(t, s.UpdateRole(ctx, u.ID, store.RoleAdmin))
	got, err := s.GetUserByEmail(ctx, "ana@canal.com")
	require.NoError(t, err)
	assert.Equal(t, store.RoleAdmin, got.Role)
	require.NotNil(t, got.VerifiedAt)

	assert.ErrorIs(t, s.UpdatePassword(ctx, 999, "x"), store.ErrNotFound)
}

func TestUpsertDailyKeepsWindow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore()

	points := []store.DailyClose{
		{Date: "2025-01-01", Close: 1},
		{Date: "2025-01-02", Close: 2},
		{Date: "2025-01-03", Close: 3},
	}
	evicted, err := s.UpsertDaily(ctx, "RBRTE", points, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, evicted)

	evicted, err = s.UpsertDaily(ctx, "RBRTE", []store.DailyClose{{Date: "2025-01-03", Close: 3.5}}, 2)
	require.NoError(t, err)
	assert.Zero(t, evicted)

	rows, err := s.ListDaily(ctx, "RBRTE", 10)
	require.NoError(t, err)
	assert.Equal(t, []store.DailyClose{
		{Symbol: "RBRTE", Date: "2025-01-03", Close: 3.5},
		{Symbol: "RBRTE", Date: "2025-01-02", Close: 2},
	}, rows)
}

func TestLatestQuote(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.MarkStale(ctx, "RWTC"))
	_, err := s.GetLatest(ctx, "RWTC")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.UpsertLatest(ctx, store.Quote{Symbol: "RWTC", Value: 71.2, Unit: "USD/bbl"}))
	require.NoError(t, s.MarkStale(ctx, "RWTC"))
	q, err := s.GetLatest(ctx, "RWTC")
	require.NoError(t, err)
	assert.True(t, q.Stale)
	assert.Equal(t, 71.2, q.Value)
}

func TestNotes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore()

	n, err := s.EnsureNote(ctx, store.Note{Key: "markets", Content: "inicial"})
	require.NoError(t, err)
	assert.Equal(t, "inicial", n.Content)

	require.NoError(t, s.SaveNote(ctx, store.Note{Key: "markets", Content: "nuevo"}))
	n, err = s.EnsureNote(ctx, store.Note{Key: "markets", Content: "inicial"})
	require.NoError(t, err)
	assert.Equal(t, "nuevo", n.Content)
}

func TestRegulationFilters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore()

	d1, d2 := day("2013-06-20"), day("2020-01-15")
	rows := []store.Regulation{
		{Slug: "ley-37", Title: "Ley 37 de incentivos solares", PublishedOn: &d1, Institution: "Asamblea", Type: "Ley", Topic: "Renovables", Description: "Energía solar"},
		{Slug: "resolucion", Title: "Resolución de tarifas", PublishedOn: &d2, Institution: "ASEP", Type: "Resolución", Topic: "Tarifas"},
		{Slug: "sin-fecha", Title: "Acuerdo marco", Institution: "SNE", Type: "Acuerdo", Topic: "Renovables"},
	}
	for i := range rows {
		require.NoError(t, s.CreateRegulation(ctx, &rows[i]))
	}
	require.NotNil(t, rows[0].Year)
	assert.Equal(t, 2013, *rows[0].Year)
	assert.Nil(t, rows[2].Year)

	dup := store.Regulation{Slug: "ley-37", Title: "otra"}
	assert.ErrorIs(t, s.CreateRegulation(ctx, &dup), store.ErrConflict)

	recent, err := s.ListRegulations(ctx, store.RegulationFilter{})
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, []string{"resolucion", "ley-37", "sin-fecha"}, []string{recent[0].Slug, recent[1].Slug, recent[2].Slug})

	az, err := s.ListRegulations(ctx, store.RegulationFilter{Order: store.OrderAZ, Limit: 2})
	require.NoError(t, err)
	require.Len(t, az, 2)
	assert.Equal(t, "sin-fecha", az[0].Slug)

	n, err := s.CountRegulations(ctx, store.RegulationFilter{Query: "energia SOLAR"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	year := 2020
	n, err = s.CountRegulations(ctx, store.RegulationFilter{Year: &year})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.CountRegulations(ctx, store.RegulationFilter{Topic: "Renovables", Institution: "SNE"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	exists, err := s.RegulationSlugExists(ctx, "ley-37")
	require.NoError(t, err)
	assert.True(t, exists)
}
