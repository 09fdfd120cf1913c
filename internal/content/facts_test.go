package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFacts(t *testing.T) {
	t.Parallel()

	facts, err := LoadFacts()
	require.NoError(t, err)
	require.Len(t, facts, 8)
	for _, f := range facts {
		assert.NotEmpty(t, f.Title)
		assert.NotEmpty(t, f.Content)
		assert.NotEmpty(t, f.Source)
	}
}

func TestParseFactsRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := ParseFacts([]byte("titulo: [unclosed"))
	assert.Error(t, err)
}
