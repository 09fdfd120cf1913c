package store

import (
	"context"
	"time"
)

// Regulation is one entry of the normativa directory.
type Regulation struct {
	ID    int64
	Slug  string
	Title string
	// PublishedOn is nil when the publication date is unknown.
	PublishedOn  *time.Time
	Year         *int
	Institution  string
	Type         string
	Topic        string
	Description  string
	OfficialLink string
	PDFURL       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegulationOrder selects the listing order.
type RegulationOrder string

// Supported orders.
const (
	OrderRecent RegulationOrder = "recientes"
	OrderAZ     RegulationOrder = "az"
)

// RegulationFilter narrows the directory listing.
type RegulationFilter struct {
	Query       string
	Topic       string
	Year        *int
	Institution string
	Type        string
	Order       RegulationOrder
	Limit       int
	Offset      int
}

// RegulationRepository persists the directory.
type RegulationRepository interface {
	// CountRegulations counts rows matching the filter (ignoring Limit/Offset).
	CountRegulations(ctx context.Context, filter RegulationFilter) (int, error)
	// ListRegulations returns one page of matching rows.
	ListRegulations(ctx context.Context, filter RegulationFilter) ([]Regulation, error)
	// CreateRegulation inserts r, setting ID and Year. Returns ErrConflict on duplicate slug.
	CreateRegulation(ctx context.Context, r *Regulation) error
	// RegulationSlugExists reports whether slug is taken.
	RegulationSlugExists(ctx context.Context, slug string) (bool, error)
}
