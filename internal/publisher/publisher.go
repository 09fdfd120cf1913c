// Package publisher defines the site event envelope and the Publisher contract
// shared by the memory, noop and Pub/Sub implementations.
package publisher

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the site.
const (
	ArticleCreated   = "article.created"
	ArticleUpdated   = "article.updated"
	ArticleDeleted   = "article.deleted"
	MarketsRefreshed = "markets.refreshed"
)

// Publisher delivers a payload to a topic and returns the broker message id.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Event is the JSON envelope published for every domain change.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	OccurredAt time.Time         `json:"occurred_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// NewEvent stamps a new event with a random id.
func NewEvent(eventType string, at time.Time, attrs map[string]string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: at.UTC(),
		Attributes: attrs,
	}
}

// Noop discards every message.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, string, any) (string, error) {
	return "", nil
}
