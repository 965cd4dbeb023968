package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexswarm/leadgen/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_InsertAndFind(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	lead := model.NewLead("janesmith", "instagram", model.SourceSheet)
	lead.Enrichment.Bio = "surf photographer"
	require.NoError(t, st.Upsert(ctx, lead))
	assert.Equal(t, int64(1), lead.Version)

	got, err := st.FindByKey(ctx, "instagram", "janesmith")
	require.NoError(t, err)
	assert.Equal(t, lead.ID, got.ID)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, "surf photographer", got.Enrichment.Bio)
	assert.Equal(t, int64(1), got.Version)
	assert.Nil(t, got.ProcessedAt)
}

func TestSQLite_FindByKey_NotFound(t *testing.T) {
	st := newTestStore(t)

	_, err := st.FindByKey(context.Background(), "instagram", "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_Update(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	lead := model.NewLead("janesmith", "instagram", model.SourceSheet)
	require.NoError(t, st.Upsert(ctx, lead))

	require.NoError(t, lead.Transition(model.StatusResearching))
	lead.Enrichment.ResearchSummary = "summary"
	require.NoError(t, st.Upsert(ctx, lead))
	assert.Equal(t, int64(2), lead.Version)

	got, err := st.FindByKey(ctx, "instagram", "janesmith")
	require.NoError(t, err)
	assert.Equal(t, model.StatusResearching, got.Status)
	assert.Equal(t, "summary", got.Enrichment.ResearchSummary)
}

func TestSQLite_Upsert_VersionConflict(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	lead := model.NewLead("janesmith", "instagram", model.SourceSheet)
	require.NoError(t, st.Upsert(ctx, lead))

	stale := *lead
	require.NoError(t, lead.Transition(model.StatusResearching))
	require.NoError(t, st.Upsert(ctx, lead)) // version now 2

	require.NoError(t, stale.Transition(model.StatusResearching))
	err := st.Upsert(ctx, &stale) // still claims version 1
	assert.ErrorIs(t, err, ErrSyncConflict)
}

func TestSQLite_Insert_DuplicateKey(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first := model.NewLead("janesmith", "instagram", model.SourceSheet)
	require.NoError(t, st.Upsert(ctx, first))

	second := model.NewLead("janesmith", "instagram", model.SourceEvent)
	err := st.Upsert(ctx, second)
	assert.ErrorIs(t, err, ErrSyncConflict)
}

func TestSQLite_ProcessedAtRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	lead := model.NewLead("janesmith", "instagram", model.SourceSheet)
	require.NoError(t, lead.Transition(model.StatusResearching))
	require.NoError(t, lead.Transition(model.StatusSkipped))
	require.NoError(t, st.Upsert(ctx, lead))

	got, err := st.FindByKey(ctx, "instagram", "janesmith")
	require.NoError(t, err)
	require.NotNil(t, got.ProcessedAt)
	assert.WithinDuration(t, *lead.ProcessedAt, *got.ProcessedAt, 0)
}

func TestSQLite_List(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	a := model.NewLead("alpha", "instagram", model.SourceSheet)
	require.NoError(t, st.Upsert(ctx, a))

	b := model.NewLead("bravo", "tiktok", model.SourceSheet)
	require.NoError(t, b.Transition(model.StatusResearching))
	require.NoError(t, b.Transition(model.StatusError))
	require.NoError(t, st.Upsert(ctx, b))

	all, err := st.List(ctx, LeadFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	failed, err := st.List(ctx, LeadFilter{Status: model.StatusError})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "bravo", failed[0].Handle)

	insta, err := st.List(ctx, LeadFilter{Platform: "instagram"})
	require.NoError(t, err)
	require.Len(t, insta, 1)
	assert.Equal(t, "alpha", insta[0].Handle)

	limited, err := st.List(ctx, LeadFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
