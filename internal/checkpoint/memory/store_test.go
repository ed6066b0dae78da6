package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jordanhale/snapcrawl/internal/checkpoint"
)

func TestStore_PutGetRoundTrip(t *testing.T) {
	t.Parallel()

	s := NewStore(0)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "STATE", []byte(`{"processedCount":1,"batchCount":1}`)))
	value, err := s.Get(ctx, "STATE")
	require.NoError(t, err)
	require.JSONEq(t, `{"processedCount":1,"batchCount":1}`, string(value))
}

func TestStore_GetMissingKey(t *testing.T) {
	t.Parallel()

	s := NewStore(0)
	_, err := s.Get(context.Background(), "PAGES-000000001")
	require.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestStore_PutOverwrites(t *testing.T) {
	t.Parallel()

	s := NewStore(0)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "STATE", []byte(`{"processedCount":0,"batchCount":0}`)))
	require.NoError(t, s.Put(ctx, "STATE", []byte(`{"processedCount":5,"batchCount":2}`)))

	value, err := s.Get(ctx, "STATE")
	require.NoError(t, err)
	require.JSONEq(t, `{"processedCount":5,"batchCount":2}`, string(value))
}

func TestStore_ValueSizeLimit(t *testing.T) {
	t.Parallel()

	s := NewStore(8)
	err := s.Put(context.Background(), "PAGES-000000001", []byte("0123456789"))
	require.ErrorIs(t, err, checkpoint.ErrValueTooLarge)
}
