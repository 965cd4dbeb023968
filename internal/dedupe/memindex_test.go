package dedupe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemIndex_QueryRanksBySimilarity(t *testing.T) {
	ctx := context.Background()
	idx := NewMemIndex()

	require.NoError(t, idx.Upsert(ctx, "exact", []float64{1, 0, 0}, map[string]string{"handle": "a"}))
	require.NoError(t, idx.Upsert(ctx, "close", []float64{0.9, 0.1, 0}, nil))
	require.NoError(t, idx.Upsert(ctx, "far", []float64{0, 0, 1}, nil))

	matches, err := idx.Query(ctx, []float64{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "exact", matches[0].ID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
	assert.Equal(t, "close", matches[1].ID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
	assert.Equal(t, "a", matches[0].Metadata["handle"])
}

func TestMemIndex_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	idx := NewMemIndex()

	require.NoError(t, idx.Upsert(ctx, "x", []float64{1, 0}, nil))
	require.NoError(t, idx.Upsert(ctx, "x", []float64{0, 1}, nil))
	assert.Equal(t, 1, idx.Len())

	matches, err := idx.Query(ctx, []float64{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
}

func TestMemIndex_DimensionMismatchSkipped(t *testing.T) {
	ctx := context.Background()
	idx := NewMemIndex()

	require.NoError(t, idx.Upsert(ctx, "short", []float64{1, 0}, nil))

	matches, err := idx.Query(ctx, []float64{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMemIndex_RejectsEmptyVectors(t *testing.T) {
	ctx := context.Background()
	idx := NewMemIndex()

	assert.Error(t, idx.Upsert(ctx, "x", nil, nil))
	_, err := idx.Query(ctx, nil, 1)
	assert.Error(t, err)
	_, err = idx.Query(ctx, []float64{0, 0}, 1)
	assert.Error(t, err, "zero vector has no direction")
}
