package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_QueryOrdersByDescendingSimilarity(t *testing.T) {
	s := New(
		Document{SourceID: "doc-bus", Text: "The event bus dead-letters a message after max delivery attempts."},
		Document{SourceID: "doc-unrelated", Text: "Sunny weather today, light breeze."},
		Document{SourceID: "doc-bus-2", Text: "Messages are redelivered by the event bus until max deliveries is reached."},
	)

	passages, err := s.Query(context.Background(), "how does the bus dead-letter a message", 2)
	require.NoError(t, err)
	require.Len(t, passages, 2)

	assert.Equal(t, "doc-bus", passages[0].SourceID)
	assert.GreaterOrEqual(t, passages[0].Score, passages[1].Score)
	for _, p := range passages {
		assert.NotEqual(t, "doc-unrelated", p.SourceID)
	}
}

func TestStore_QueryReturnsAllWhenKIsZero(t *testing.T) {
	s := New(
		Document{SourceID: "doc-1", Text: "alpha beta"},
		Document{SourceID: "doc-2", Text: "beta gamma"},
	)

	passages, err := s.Query(context.Background(), "beta", 0)
	require.NoError(t, err)
	assert.Len(t, passages, 2)
}

func TestStore_AddAppendsDocument(t *testing.T) {
	s := New()
	s.Add(Document{SourceID: "doc-1", Text: "newly added passage"})

	passages, err := s.Query(context.Background(), "newly added passage", 1)
	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.Equal(t, "doc-1", passages[0].SourceID)
}

func TestStore_QueryEmptyQuestionScoresZero(t *testing.T) {
	s := New(Document{SourceID: "doc-1", Text: "some passage"})

	passages, err := s.Query(context.Background(), "", 1)
	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.Equal(t, float64(0), passages[0].Score)
}
