package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 5, 2, 10, 0, 0, 0, time.FixedZone("PA", -5*3600))
	ev := NewEvent(ArticleCreated, at, map[string]string{"slug": "brent"})
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, ArticleCreated, ev.Type)
	assert.Equal(t, time.UTC, ev.OccurredAt.Location())
	assert.Equal(t, "brent", ev.Attributes["slug"])
}

func TestNoopPublish(t *testing.T) {
	t.Parallel()

	id, err := Noop{}.Publish(context.Background(), "topic", "payload")
	require.NoError(t, err)
	assert.Empty(t, id)
}
