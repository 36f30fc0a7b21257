package service

import (
	"context"
	"testing"

	"csgo-tracker/internal/queue"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestAppendsAndNotifies(t *testing.T) {
	s := newStack(t)
	q := queue.New[int64](4, s.processor.HandleSequence, zerolog.Nop())
	ingest := NewIngestService(s.log, q, zerolog.Nop())
	ctx := context.Background()

	seq, err := ingest.Ingest(ctx, []byte(`{"n":1}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
	assert.Equal(t, 1, q.Len())

	seq, err = ingest.Ingest(ctx, []byte(`{"n":2}`))
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq)
}

func TestIngestDurableEvenWhenQueueFull(t *testing.T) {
	s := newStack(t)
	q := queue.New[int64](1, s.processor.HandleSequence, zerolog.Nop())
	ingest := NewIngestService(s.log, q, zerolog.Nop())

	_, err := ingest.Ingest(context.Background(), []byte(`{"n":1}`))
	require.NoError(t, err)

	seq, err := ingest.Ingest(context.Background(), []byte(`{"n":2}`))
	assert.ErrorIs(t, err, queue.ErrQueueFull)
	assert.Equal(t, int64(2), seq, "the payload is in the log even though notification failed")

	// The consumer covers the missed notification from the progress
	// marker: the first queued item drains the whole log.
	last, err := s.log.LastSequence(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), last)
}
