package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/canalenergetico/canal-web/internal/store"
)

// CreateArticle implements store.ArticleRepository.
func (s *Store) CreateArticle(_ context.Context, a *store.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.articleTaken(a.Title, a.Slug, 0) {
		return store.ErrConflict
	}
	a.ID = s.nextID()
	s.articles[a.ID] = cloneArticle(*a)
	return nil
}

// UpdateArticle implements store.ArticleRepository.
func (s *Store) UpdateArticle(_ context.Context, a *store.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.articles[a.ID]; !ok {
		return store.ErrNotFound
	}
	if s.articleTaken(a.Title, a.Slug, a.ID) {
		return store.ErrConflict
	}
	s.articles[a.ID] = cloneArticle(*a)
	return nil
}

// DeleteArticle implements store.ArticleRepository.
func (s *Store) DeleteArticle(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.articles[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.articles, id)
	for cid, c := range s.comments {
		if c.ArticleID == id {
			delete(s.comments, cid)
		}
	}
	return nil
}

// GetArticleBySlug implements store.ArticleRepository.
func (s *Store) GetArticleBySlug(_ context.Context, slug string) (store.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.articles {
		if a.Slug == slug {
			return cloneArticle(a), nil
		}
	}
	return store.Article{}, store.ErrNotFound
}

// ArticleSlugExists implements store.ArticleRepository.
func (s *Store) ArticleSlugExists(_ context.Context, slug string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.articles {
		if a.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

// ListArticles implements store.ArticleRepository.
func (s *Store) ListArticles(_ context.Context, f store.ArticleFilter) (store.ArticlePage, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage <= 0 {
		f.PerPage = 12
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	tag := strings.TrimSpace(f.Tag)

	s.mu.RLock()
	matched := make([]store.Article, 0, len(s.articles))
	for _, a := range s.articles {
		if q != "" && !containsFold(q, a.Title, a.Description, a.Content, a.LegacyTag) {
			continue
		}
		if tag != "" && !strings.EqualFold(strings.TrimSpace(a.LegacyTag), tag) {
			continue
		}
		matched = append(matched, cloneArticle(a))
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Date.Equal(matched[j].Date) {
			return matched[i].Date.After(matched[j].Date)
		}
		return matched[i].ID > matched[j].ID
	})

	page := store.ArticlePage{Total: len(matched), Page: f.Page, PerPage: f.PerPage}
	start := (f.Page - 1) * f.PerPage
	if start < len(matched) {
		end := min(start+f.PerPage, len(matched))
		page.Items = matched[start:end]
	}
	return page, nil
}

// ListRecentArticles implements store.ArticleRepository.
func (s *Store) ListRecentArticles(_ context.Context, limit int) ([]store.Article, error) {
	s.mu.RLock()
	out := s.articlesWhere(func(store.Article) bool { return true })
	s.mu.RUnlock()
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListLegacyTags implements store.ArticleRepository.
func (s *Store) ListLegacyTags(_ context.Context) ([]string, error) {
	s.mu.RLock()
	seen := make(map[string]struct{})
	for _, a := range s.articles {
		if t := strings.TrimSpace(a.LegacyTag); t != "" {
			seen[t] = struct{}{}
		}
	}
	s.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		li, lj := strings.ToLower(out[i]), strings.ToLower(out[j])
		if li != lj {
			return li < lj
		}
		return out[i] < out[j]
	})
	return out, nil
}

// ListArticlesByTag implements store.ArticleRepository.
func (s *Store) ListArticlesByTag(_ context.Context, tagID int64) ([]store.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.articlesWhere(func(a store.Article) bool {
		for _, t := range a.Tags {
			if t.ID == tagID {
				return true
			}
		}
		return false
	}), nil
}

// SearchByTags implements store.ArticleRepository.
func (s *Store) SearchByTags(_ context.Context, slugs []string, matchAll bool) ([]store.Article, error) {
	wanted := make(map[string]struct{}, len(slugs))
	for _, sl := range slugs {
		wanted[sl] = struct{}{}
	}
	if len(wanted) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.articlesWhere(func(a store.Article) bool {
		hits := make(map[string]struct{})
		for _, t := range a.Tags {
			if _, ok := wanted[t.Slug]; ok {
				hits[t.Slug] = struct{}{}
			}
		}
		if matchAll {
			return len(hits) == len(wanted)
		}
		return len(hits) > 0
	}), nil
}

// LatestWithTag implements store.ArticleRepository.
func (s *Store) LatestWithTag(_ context.Context, tag string) (store.Article, error) {
	tag = strings.TrimSpace(tag)
	s.mu.RLock()
	defer s.mu.RUnlock()

	byLink := s.articlesWhere(func(a store.Article) bool {
		for _, t := range a.Tags {
			if t.Slug == strings.ToLower(tag) || strings.EqualFold(t.Name, tag) {
				return true
			}
		}
		return false
	})
	if len(byLink) > 0 {
		return byLink[0], nil
	}
	byLegacy := s.articlesWhere(func(a store.Article) bool {
		return strings.EqualFold(strings.TrimSpace(a.LegacyTag), tag)
	})
	if len(byLegacy) > 0 {
		return byLegacy[0], nil
	}
	return store.Article{}, store.ErrNotFound
}

// GetTagBySlug implements store.TagRepository.
func (s *Store) GetTagBySlug(_ context.Context, slug string) (store.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tags {
		if t.Slug == slug {
			return t, nil
		}
	}
	return store.Tag{}, store.ErrNotFound
}

// CreateTag implements store.TagRepository.
func (s *Store) CreateTag(_ context.Context, t *store.Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tags {
		if existing.Slug == t.Slug || existing.Name == t.Name {
			return store.ErrConflict
		}
	}
	t.ID = s.nextID()
	s.tags[t.ID] = *t
	return nil
}

// articlesWhere returns matching articles by id desc. Caller holds a lock.
func (s *Store) articlesWhere(keep func(store.Article) bool) []store.Article {
	out := make([]store.Article, 0)
	for _, a := range s.articles {
		if keep(a) {
			out = append(out, cloneArticle(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (s *Store) articleTaken(title, slug string, exceptID int64) bool {
	for id, a := range s.articles {
		if id != exceptID && (a.Title == title || a.Slug == slug) {
			return true
		}
	}
	return false
}

func cloneArticle(a store.Article) store.Article {
	a.Tags = append([]store.Tag(nil), a.Tags...)
	return a
}

func containsFold(needle string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}
