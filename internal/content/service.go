package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/canalenergetico/canal-web/internal/auth"
	"github.com/canalenergetico/canal-web/internal/hash/sha256"
	"github.com/canalenergetico/canal-web/internal/logging"
	"github.com/canalenergetico/canal-web/internal/metrics"
	"github.com/canalenergetico/canal-web/internal/publisher"
	"github.com/canalenergetico/canal-web/internal/slug"
	"github.com/canalenergetico/canal-web/internal/store"
)

// Listing sizes.
const (
	PerPage       = 12
	SidebarSize   = 6
	maxTitleLen   = 150
	maxDescLen    = 300
	maxImgURLLen  = 500
	slugFallback  = "articulo"
	featuredTag   = "main"
	defaultPrefix = "images"
)

// Errors returned to handlers.
var (
	ErrForbidden     = errors.New("content: forbidden")
	ErrLoginRequired = errors.New("content: login required")
	ErrNoTags        = errors.New("content: no tags given")
)

// ValidationError carries a message for the editor or reader.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(msg string) error { return &ValidationError{Message: msg} }

// Repository is the slice of the store the content service needs.
type Repository interface {
	store.ArticleRepository
	store.TagRepository
	store.CommentRepository
}

// BlobStore persists uploaded images.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Authorizer decides moderation rights.
type Authorizer interface {
	Allowed(user *store.User, object, action string) bool
}

// Options tune the service.
type Options struct {
	// Topic receives article events.
	Topic string
	// ImagePrefix is the object key prefix of uploads.
	ImagePrefix string
	// MaxUploadBytes bounds image uploads.
	MaxUploadBytes int64
	// Now defaults to the UTC wall clock.
	Now func() time.Time
}

// Service implements articles, tags and comments.
type Service struct {
	repo   Repository
	blobs  BlobStore
	events publisher.Publisher
	authz  Authorizer
	hasher *sha256.Hasher
	opts   Options
	logger *zap.Logger
	facts  []Fact
}

// NewService wires the content service.
func NewService(repo Repository, blobs BlobStore, events publisher.Publisher, authz Authorizer, opts Options, logger *zap.Logger) *Service {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.ImagePrefix == "" {
		opts.ImagePrefix = defaultPrefix
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 5 << 20
	}
	if events == nil {
		events = publisher.Noop{}
	}
	logger = logging.OrNop(logger).Named("content")
	facts, err := LoadFacts()
	if err != nil {
		logger.Warn("Fun facts unavailable", zap.Error(err))
	}
	return &Service{
		repo:   repo,
		blobs:  blobs,
		events: events,
		authz:  authz,
		hasher: sha256.New(),
		opts:   opts,
		logger: logger,
		facts:  facts,
	}
}

// Facts returns the fun facts shown in the layout.
func (s *Service) Facts() []Fact {
	return s.facts
}

// Home is the landing page model.
type Home struct {
	Featured *store.Article
	Others   []store.Article
}

// Home picks the featured article (tagged "main", else the newest) and lists
// the rest newest first.
func (s *Service) Home(ctx context.Context) (Home, error) {
	all, err := s.repo.ListRecentArticles(ctx, 0)
	if err != nil {
		return Home{}, fmt.Errorf("list articles: %w", err)
	}
	var featured *store.Article
	a, err := s.repo.LatestWithTag(ctx, featuredTag)
	switch {
	case err == nil:
		featured = &a
	case errors.Is(err, store.ErrNotFound):
		if len(all) > 0 {
			first := all[0]
			featured = &first
		}
	default:
		return Home{}, fmt.Errorf("featured article: %w", err)
	}

	home := Home{Featured: featured, Others: make([]store.Article, 0, len(all))}
	for _, art := range all {
		if featured != nil && art.ID == featured.ID {
			continue
		}
		home.Others = append(home.Others, art)
	}
	return home, nil
}

// Recent returns the sidebar articles.
func (s *Service) Recent(ctx context.Context) ([]store.Article, error) {
	return s.repo.ListRecentArticles(ctx, SidebarSize)
}

// Listing is one page of /articulos.
type Listing struct {
	store.ArticlePage
	Query string
	Tag   string
	Tags  []string
}

// List returns a filtered page plus the legacy tag menu.
func (s *Service) List(ctx context.Context, query, tag string, page int) (Listing, error) {
	query = strings.TrimSpace(query)
	tag = strings.TrimSpace(tag)
	if page < 1 {
		page = 1
	}
	p, err := s.repo.ListArticles(ctx, store.ArticleFilter{Query: query, Tag: tag, Page: page, PerPage: PerPage})
	if err != nil {
		return Listing{}, fmt.Errorf("list articles: %w", err)
	}
	tags, err := s.repo.ListLegacyTags(ctx)
	if err != nil {
		return Listing{}, fmt.Errorf("list tags: %w", err)
	}
	return Listing{ArticlePage: p, Query: query, Tag: tag, Tags: tags}, nil
}

// Article loads an article with its comments, newest first.
func (s *Service) Article(ctx context.Context, articleSlug string) (store.Article, []store.Comment, error) {
	a, err := s.repo.GetArticleBySlug(ctx, articleSlug)
	if err != nil {
		return store.Article{}, nil, err
	}
	comments, err := s.repo.ListComments(ctx, a.ID)
	if err != nil {
		return store.Article{}, nil, fmt.Errorf("list comments: %w", err)
	}
	return a, comments, nil
}

// Upload is an image attached to the article form.
type Upload struct {
	Filename string
	Body     io.Reader
}

// ArticleInput is the editor form.
type ArticleInput struct {
	Title       string
	Description string
	ImageURL    string
	ImageSource string
	Tags        string
	Author      string
	Content     string
	Image       *Upload
}

func (in *ArticleInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	in.ImageSource = strings.TrimSpace(in.ImageSource)
	in.Author = strings.TrimSpace(in.Author)
	if in.Title == "" || in.Description == "" || in.Author == "" || strings.TrimSpace(in.Content) == "" {
		return invalid("Completa título, descripción, autor y contenido.")
	}
	if utf8.RuneCountInString(in.Title) > maxTitleLen {
		return invalid(fmt.Sprintf("El título no puede superar %d caracteres.", maxTitleLen))
	}
	if utf8.RuneCountInString(in.Description) > maxDescLen {
		return invalid(fmt.Sprintf("La descripción no puede superar %d caracteres.", maxDescLen))
	}
	if len(in.ImageURL) > maxImgURLLen {
		return invalid("La URL de la imagen es demasiado larga.")
	}
	return nil
}

// Create publishes a new article dated today.
func (s *Service) Create(ctx context.Context, in ArticleInput) (store.Article, error) {
	if err := in.normalize(); err != nil {
		return store.Article{}, err
	}
	base := slug.MakeOr(in.Title, slugFallback)
	articleSlug, err := slug.Unique(ctx, base, s.repo.ArticleSlugExists)
	if err != nil {
		return store.Article{}, err
	}
	now := s.opts.Now()
	a := store.Article{
		Slug: articleSlug,
		Date: time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
	}
	if err := s.apply(ctx, &a, in); err != nil {
		return store.Article{}, err
	}
	if err := s.repo.CreateArticle(ctx, &a); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return store.Article{}, invalid("Ya existe un artículo con ese título.")
		}
		return store.Article{}, fmt.Errorf("create article: %w", err)
	}
	metrics.ObserveArticle("created")
	s.publish(ctx, publisher.ArticleCreated, a)
	s.logger.Info("Article created", zap.Int64("article_id", a.ID), zap.String("slug", a.Slug))
	return a, nil
}

// Update edits the article at articleSlug. A changed title yields a new slug.
func (s *Service) Update(ctx context.Context, articleSlug string, in ArticleInput) (store.Article, error) {
	a, err := s.repo.GetArticleBySlug(ctx, articleSlug)
	if err != nil {
		return store.Article{}, err
	}
	if err := in.normalize(); err != nil {
		return store.Article{}, err
	}
	if in.Title != a.Title {
		base := slug.MakeOr(in.Title, slugFallback)
		own := a.Slug
		newSlug, err := slug.Unique(ctx, base, func(ctx context.Context, c string) (bool, error) {
			if c == own {
				return false, nil
			}
			return s.repo.ArticleSlugExists(ctx, c)
		})
		if err != nil {
			return store.Article{}, err
		}
		a.Slug = newSlug
	}
	if err := s.apply(ctx, &a, in); err != nil {
		return store.Article{}, err
	}
	if err := s.repo.UpdateArticle(ctx, &a); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return store.Article{}, invalid("Ya existe un artículo con ese título.")
		}
		return store.Article{}, fmt.Errorf("update article: %w", err)
	}
	metrics.ObserveArticle("updated")
	s.publish(ctx, publisher.ArticleUpdated, a)
	return a, nil
}

// Delete removes an article with its comments.
func (s *Service) Delete(ctx context.Context, articleSlug string) error {
	a, err := s.repo.GetArticleBySlug(ctx, articleSlug)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteArticle(ctx, a.ID); err != nil {
		return fmt.Errorf("delete article: %w", err)
	}
	metrics.ObserveArticle("deleted")
	s.publish(ctx, publisher.ArticleDeleted, a)
	s.logger.Info("Article deleted", zap.Int64("article_id", a.ID), zap.String("slug", a.Slug))
	return nil
}

// apply copies the form onto a, resolving tags and storing an uploaded image.
func (s *Service) apply(ctx context.Context, a *store.Article, in ArticleInput) error {
	names := ParseTags(in.Tags)
	tags := make([]store.Tag, 0, len(names))
	for _, name := range names {
		t, err := s.getOrCreateTag(ctx, name)
		if err != nil {
			return err
		}
		tags = append(tags, t)
	}

	a.Title = in.Title
	a.Description = in.Description
	a.ImageURL = in.ImageURL
	a.ImageSource = in.ImageSource
	a.Author = in.Author
	a.Content = SanitizeHTML(in.Content)
	a.Tags = tags
	a.LegacyTag = ""
	if len(names) > 0 {
		a.LegacyTag = names[0]
	}

	if in.Image != nil && in.Image.Body != nil {
		url, err := s.storeImage(ctx, *in.Image)
		if err != nil {
			return err
		}
		if url != "" {
			a.ImageURL = url
		}
	}
	return nil
}

func (s *Service) getOrCreateTag(ctx context.Context, name string) (store.Tag, error) {
	key := TagSlug(name)
	t, err := s.repo.GetTagBySlug(ctx, key)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.Tag{}, fmt.Errorf("load tag %q: %w", key, err)
	}
	t = store.Tag{Name: name, Slug: key}
	if err := s.repo.CreateTag(ctx, &t); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Lost a race with a concurrent editor.
			return s.repo.GetTagBySlug(ctx, key)
		}
		return store.Tag{}, fmt.Errorf("create tag %q: %w", key, err)
	}
	return t, nil
}

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// storeImage validates and uploads an image, returning its URL. An empty
// upload returns "".
func (s *Service) storeImage(ctx context.Context, up Upload) (string, error) {
	if s.blobs == nil {
		return "", invalid("La subida de imágenes no está disponible.")
	}
	data, err := io.ReadAll(io.LimitReader(up.Body, s.opts.MaxUploadBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return "", nil
	}
	if int64(len(data)) > s.opts.MaxUploadBytes {
		return "", invalid("La imagen supera el tamaño máximo permitido.")
	}
	contentType := http.DetectContentType(data)
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", invalid("Formato de imagen no admitido (usa JPG, PNG, GIF o WebP).")
	}
	key, err := s.hasher.ObjectKey(s.opts.ImagePrefix, data, ext)
	if err != nil {
		return "", err
	}
	url, err := s.blobs.PutObject(ctx, key, contentType, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	s.logger.Info("Image stored", zap.String("key", key), zap.Int("bytes", len(data)))
	return url, nil
}

func (s *Service) publish(ctx context.Context, eventType string, a store.Article) {
	if s.opts.Topic == "" {
		return
	}
	ev := publisher.NewEvent(eventType, s.opts.Now(), map[string]string{
		"article_id": strconv.FormatInt(a.ID, 10),
		"slug":       a.Slug,
	})
	if _, err := s.events.Publish(ctx, s.opts.Topic, ev); err != nil {
		s.logger.Warn("Event publish failed", zap.String("type", eventType), zap.Error(err))
	}
}

// ByTag lists the articles linked to a tag.
func (s *Service) ByTag(ctx context.Context, tagSlug string) (store.Tag, []store.Article, error) {
	t, err := s.repo.GetTagBySlug(ctx, tagSlug)
	if err != nil {
		return store.Tag{}, nil, err
	}
	items, err := s.repo.ListArticlesByTag(ctx, t.ID)
	if err != nil {
		return store.Tag{}, nil, fmt.Errorf("list by tag: %w", err)
	}
	return t, items, nil
}

// TagSearch is the result of a multi-tag search.
type TagSearch struct {
	Names    []string
	Mode     string
	Articles []store.Article
}

// SearchByTags finds articles carrying any ("or") or all ("and") of the comma
// separated tags. ErrNoTags when the list is empty.
func (s *Service) SearchByTags(ctx context.Context, csv, mode string) (TagSearch, error) {
	names := ParseTags(csv)
	if len(names) == 0 {
		return TagSearch{}, ErrNoTags
	}
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode != "and" {
		mode = "or"
	}
	slugs := make([]string, 0, len(names))
	for _, n := range names {
		slugs = append(slugs, TagSlug(n))
	}
	items, err := s.repo.SearchByTags(ctx, slugs, mode == "and")
	if err != nil {
		return TagSearch{}, fmt.Errorf("search by tags: %w", err)
	}
	return TagSearch{Names: names, Mode: mode, Articles: items}, nil
}

// CanManageComment reports whether user owns c or may moderate comments.
func (s *Service) CanManageComment(user *store.User, c store.Comment) bool {
	if user == nil || !user.IsActive {
		return false
	}
	if s.authz != nil && s.authz.Allowed(user, auth.ObjComments, auth.ActModerate) {
		return true
	}
	if c.UserID != nil && *c.UserID == user.ID {
		return true
	}
	return c.Email != "" && strings.EqualFold(c.Email, user.Email)
}

// AddComment posts a comment by user on the article at articleSlug.
func (s *Service) AddComment(ctx context.Context, user *store.User, articleSlug, body string) (store.Comment, error) {
	if user == nil {
		return store.Comment{}, ErrLoginRequired
	}
	if s.authz != nil && !s.authz.Allowed(user, auth.ObjComments, auth.ActWrite) {
		return store.Comment{}, ErrForbidden
	}
	a, err := s.repo.GetArticleBySlug(ctx, articleSlug)
	if err != nil {
		return store.Comment{}, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return store.Comment{}, invalid("Escribe un comentario.")
	}
	uid := user.ID
	c := store.Comment{
		ArticleID:   a.ID,
		ArticleSlug: a.Slug,
		UserID:      &uid,
		Name:        user.Name,
		Email:       user.Email,
		Body:        body,
		Date:        s.opts.Now(),
	}
	if err := s.repo.CreateComment(ctx, &c); err != nil {
		return store.Comment{}, fmt.Errorf("create comment: %w", err)
	}
	metrics.ObserveComment("created")
	return c, nil
}

// EditComment replaces the text of a comment the user may manage.
func (s *Service) EditComment(ctx context.Context, user *store.User, id int64, body string) (store.Comment, error) {
	c, err := s.managedComment(ctx, user, id)
	if err != nil {
		return store.Comment{}, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return c, invalid("El comentario no puede estar vacío.")
	}
	if err := s.repo.UpdateCommentBody(ctx, id, body); err != nil {
		return c, fmt.Errorf("update comment: %w", err)
	}
	c.Body = body
	metrics.ObserveComment("edited")
	return c, nil
}

// DeleteComment removes a comment the user may manage and returns it.
func (s *Service) DeleteComment(ctx context.Context, user *store.User, id int64) (store.Comment, error) {
	c, err := s.managedComment(ctx, user, id)
	if err != nil {
		return store.Comment{}, err
	}
	if err := s.repo.DeleteComment(ctx, id); err != nil {
		return c, fmt.Errorf("delete comment: %w", err)
	}
	metrics.ObserveComment("deleted")
	return c, nil
}

func (s *Service) managedComment(ctx context.Context, user *store.User, id int64) (store.Comment, error) {
	if user == nil {
		return store.Comment{}, ErrLoginRequired
	}
	c, err := s.repo.GetComment(ctx, id)
	if err != nil {
		return store.Comment{}, err
	}
	if !s.CanManageComment(user, c) {
		return store.Comment{}, ErrForbidden
	}
	return c, nil
}
