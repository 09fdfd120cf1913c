// Package regulations serves the normativa directory: a filterable listing of
// energy regulations, admin creation and reader suggestions.
package regulations

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/canalenergetico/canal-web/internal/logging"
	"github.com/canalenergetico/canal-web/internal/mail"
	"github.com/canalenergetico/canal-web/internal/slug"
	"github.com/canalenergetico/canal-web/internal/store"
)

const (
	// PerPage is the listing page size.
	PerPage      = 12
	slugFallback = "norma"
	dateLayout   = "2006-01-02"
)

// ErrMissingFields rejects a suggestion without name or link.
var ErrMissingFields = errors.New("regulations: missing fields")

// ValidationError carries a message for the admin form.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Service implements the directory.
type Service struct {
	repo      store.RegulationRepository
	mailer    mail.Sender
	contactTo string
	logger    *zap.Logger
}

// NewService wires the directory. A nil mailer disables suggestion emails.
func NewService(repo store.RegulationRepository, mailer mail.Sender, contactTo string, logger *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		mailer:    mailer,
		contactTo: contactTo,
		logger:    logging.OrNop(logger).Named("regulations"),
	}
}

// ListParams are the raw query parameters of the listing endpoint.
type ListParams struct {
	Query       string
	Topic       string
	Year        string
	Institution string
	Type        string
	Order       string
	Page        string
}

// Item is the JSON form of a regulation. Empty values encode as null.
type Item struct {
	ID           int64   `json:"id"`
	Slug         string  `json:"slug_url"`
	Title        string  `json:"titulo_oficial"`
	PublishedOn  *string `json:"fecha_publicacion"`
	Year         *int    `json:"anio"`
	Institution  *string `json:"institucion"`
	Type         *string `json:"tipo"`
	Topic        *string `json:"tema"`
	Description  *string `json:"descripcion"`
	OfficialLink *string `json:"enlace_oficial"`
	PDFURL       *string `json:"pdf_url"`
}

// Page is the listing response.
type Page struct {
	Items      []Item `json:"items"`
	Page       int    `json:"page"`
	TotalPages int    `json:"total_pages"`
}

func emptyPage() Page {
	return Page{Items: []Item{}, Page: 1, TotalPages: 1}
}

// Filter converts raw parameters. A non-numeric year is ignored.
func (p ListParams) Filter() store.RegulationFilter {
	f := store.RegulationFilter{
		Query:       strings.TrimSpace(p.Query),
		Topic:       strings.TrimSpace(p.Topic),
		Institution: strings.TrimSpace(p.Institution),
		Type:        strings.TrimSpace(p.Type),
		Order:       store.OrderRecent,
	}
	if y, err := strconv.Atoi(strings.TrimSpace(p.Year)); err == nil {
		f.Year = &y
	}
	if strings.TrimSpace(p.Order) == string(store.OrderAZ) {
		f.Order = store.OrderAZ
	}
	return f
}

// List returns one page of matching regulations. The page is clamped to
// [1, total pages]. Store failures are logged and yield an empty page.
func (s *Service) List(ctx context.Context, p ListParams) Page {
	filter := p.Filter()
	page, err := strconv.Atoi(strings.TrimSpace(p.Page))
	if err != nil || page < 1 {
		page = 1
	}

	total, err := s.repo.CountRegulations(ctx, filter)
	if err != nil {
		s.logger.Error("Count regulations failed", zap.Error(err))
		return emptyPage()
	}
	totalPages := max(1, (total+PerPage-1)/PerPage)
	page = min(page, totalPages)

	filter.Limit = PerPage
	filter.Offset = (page - 1) * PerPage
	rows, err := s.repo.ListRegulations(ctx, filter)
	if err != nil {
		s.logger.Error("List regulations failed", zap.Error(err))
		return emptyPage()
	}
	items := make([]Item, 0, len(rows))
	for _, r := range rows {
		items = append(items, toItem(r))
	}
	return Page{Items: items, Page: page, TotalPages: totalPages}
}

func toItem(r store.Regulation) Item {
	it := Item{
		ID:           r.ID,
		Slug:         r.Slug,
		Title:        r.Title,
		Year:         r.Year,
		Institution:  nullable(r.Institution),
		Type:         nullable(r.Type),
		Topic:        nullable(r.Topic),
		Description:  nullable(r.Description),
		OfficialLink: nullable(r.OfficialLink),
		PDFURL:       nullable(r.PDFURL),
	}
	if r.PublishedOn != nil {
		d := r.PublishedOn.Format(dateLayout)
		it.PublishedOn = &d
	}
	return it
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// CreateInput is the admin form.
type CreateInput struct {
	Title        string
	PublishedOn  string
	Institution  string
	Type         string
	Topic        string
	Description  string
	OfficialLink string
	PDFURL       string
	Slug         string
}

// Create adds a regulation. The slug comes from the form or the title and is
// made unique.
func (s *Service) Create(ctx context.Context, in CreateInput) (store.Regulation, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return store.Regulation{}, &ValidationError{Message: "El título oficial es obligatorio."}
	}
	r := store.Regulation{
		Title:        title,
		Institution:  strings.TrimSpace(in.Institution),
		Type:         strings.TrimSpace(in.Type),
		Topic:        strings.TrimSpace(in.Topic),
		Description:  strings.TrimSpace(in.Description),
		OfficialLink: strings.TrimSpace(in.OfficialLink),
		PDFURL:       strings.TrimSpace(in.PDFURL),
	}
	if raw := strings.TrimSpace(in.PublishedOn); raw != "" {
		d, err := time.Parse(dateLayout, raw)
		if err != nil {
			return store.Regulation{}, &ValidationError{Message: "La fecha de publicación debe tener formato YYYY-MM-DD."}
		}
		r.PublishedOn = &d
	}

	base := strings.TrimSpace(in.Slug)
	if base == "" {
		base = title
	}
	unique, err := slug.Unique(ctx, slug.MakeOr(base, slugFallback), s.repo.RegulationSlugExists)
	if err != nil {
		return store.Regulation{}, err
	}
	r.Slug = unique
	if err := s.repo.CreateRegulation(ctx, &r); err != nil {
		s.logger.Error("Create regulation failed", zap.String("slug", r.Slug), zap.Error(err))
		if errors.Is(err, store.ErrConflict) {
			return store.Regulation{}, &ValidationError{Message: "No se pudo crear la normativa. Revisa los datos."}
		}
		return store.Regulation{}, fmt.Errorf("create regulation: %w", err)
	}
	s.logger.Info("Regulation created", zap.Int64("regulation_id", r.ID), zap.String("slug", r.Slug))
	return r, nil
}

// Suggestion is the "missing regulation" reader form.
type Suggestion struct {
	Name    string
	URL     string
	Comment string
}

// Suggest validates a suggestion and notifies the editors. Mail delivery is
// best effort.
func (s *Service) Suggest(ctx context.Context, in Suggestion) error {
	name := strings.TrimSpace(in.Name)
	link := strings.TrimSpace(in.URL)
	if name == "" || link == "" {
		return ErrMissingFields
	}
	if s.mailer == nil || s.contactTo == "" {
		return nil
	}
	msg := mail.SuggestionEmail(s.contactTo, name, link, strings.TrimSpace(in.Comment))
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Warn("Suggestion email failed", zap.String("name", name), zap.Error(err))
	}
	return nil
}
