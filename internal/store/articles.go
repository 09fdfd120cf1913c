package store

import (
	"context"
	"strings"
	"time"
)

// Tag is a normalized label attached to articles.
type Tag struct {
	ID int64
	// Name keeps the first spelling an editor used (max 50 chars).
	Name string
	// Slug is unique and derived from Name.
	Slug string
}

// Article models one published post.
type Article struct {
	ID          int64
	Title       string
	Slug        string
	Description string
	ImageURL    string
	ImageSource string
	// Content holds sanitized HTML.
	Content string
	Author  string
	// Date is the publication day (time component is zero, UTC).
	Date time.Time
	// LegacyTag mirrors the first tag for older listings and filters.
	LegacyTag string
	Tags      []Tag
}

// MainTag returns the label shown on cards.
func (a Article) MainTag() string {
	if strings.TrimSpace(a.LegacyTag) != "" {
		return strings.TrimSpace(a.LegacyTag)
	}
	if len(a.Tags) > 0 {
		return a.Tags[0].Name
	}
	return ""
}

// TagNames joins tag names for edit forms.
func (a Article) TagNames() string {
	if len(a.Tags) == 0 {
		return a.LegacyTag
	}
	names := make([]string, 0, len(a.Tags))
	for _, t := range a.Tags {
		names = append(names, t.Name)
	}
	return strings.Join(names, ", ")
}

// ArticleFilter narrows the paginated listing.
type ArticleFilter struct {
	// Query matches title, description, content or legacy tag case-insensitively.
	Query string
	// Tag matches the trimmed legacy tag case-insensitively.
	Tag     string
	Page    int
	PerPage int
}

// ArticlePage is one page of a listing.
type ArticlePage struct {
	Items   []Article
	Total   int
	Page    int
	PerPage int
}

// Pages returns the number of pages, at least 1.
func (p ArticlePage) Pages() int {
	if p.PerPage <= 0 || p.Total == 0 {
		return 1
	}
	return (p.Total + p.PerPage - 1) / p.PerPage
}

// HasPrev reports whether a previous page exists.
func (p ArticlePage) HasPrev() bool { return p.Page > 1 }

// HasNext reports whether a following page exists.
func (p ArticlePage) HasNext() bool { return p.Page < p.Pages() }

// ArticleRepository persists articles and their tag links.
type ArticleRepository interface {
	// CreateArticle inserts the article and its tag links, setting a.ID.
	// Returns ErrConflict when title or slug are taken.
	CreateArticle(ctx context.Context, a *Article) error
	// UpdateArticle replaces every editable column and the tag links.
	UpdateArticle(ctx context.Context, a *Article) error
	// DeleteArticle removes the article with its comments and tag links.
	DeleteArticle(ctx context.Context, id int64) error
	// GetArticleBySlug loads one article with tags or returns ErrNotFound.
	GetArticleBySlug(ctx context.Context, slug string) (Article, error)
	// ArticleSlugExists reports whether slug is taken.
	ArticleSlugExists(ctx context.Context, slug string) (bool, error)
	// ListArticles returns a filtered page ordered by date desc.
	ListArticles(ctx context.Context, filter ArticleFilter) (ArticlePage, error)
	// ListRecentArticles returns articles by id desc; limit <= 0 returns all.
	ListRecentArticles(ctx context.Context, limit int) ([]Article, error)
	// ListLegacyTags returns distinct trimmed legacy tags sorted case-insensitively.
	ListLegacyTags(ctx context.Context) ([]string, error)
	// ListArticlesByTag returns articles linked to tagID by id desc.
	ListArticlesByTag(ctx context.Context, tagID int64) ([]Article, error)
	// SearchByTags returns articles linked to any (or, when matchAll, every) slug, by id desc.
	SearchByTags(ctx context.Context, slugs []string, matchAll bool) ([]Article, error)
	// LatestWithTag returns the most recently created article linked to the tag
	// with the given slug or name, falling back to the legacy tag column.
	// ErrNotFound when none.
	LatestWithTag(ctx context.Context, tag string) (Article, error)
}

// TagRepository persists tags.
type TagRepository interface {
	// GetTagBySlug loads a tag or returns ErrNotFound.
	GetTagBySlug(ctx context.Context, slug string) (Tag, error)
	// CreateTag inserts a tag, setting t.ID. Returns ErrConflict on duplicate name or slug.
	CreateTag(ctx context.Context, t *Tag) error
}
