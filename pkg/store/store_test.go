package store_test

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/pipelinoor/pkg/config"
	"github.com/ethpandaops/pipelinoor/pkg/store"
)

func setupTestStore(t *testing.T) store.Store {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	cfg := &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
	}

	st := store.NewStore(log, cfg, 2)
	require.NoError(t, st.Start(context.Background()))

	t.Cleanup(func() { _ = st.Stop() })

	return st
}

func TestStore_ReplaceRaw(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	written, err := st.ReplaceRaw(ctx, store.EntityERPLocations, &[]store.RawLocation{
		{CustomerKey: "AW00000007", Country: "US"},
		{CustomerKey: "AW00000008", Country: "DE"},
		{CustomerKey: "AW00000009", Country: ""},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), written)

	rows, err := st.RawLocations(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "AW00000007", rows[0].CustomerKey)

	// A second replace fully supersedes the first snapshot.
	written, err = st.ReplaceRaw(ctx, store.EntityERPLocations, &[]store.RawLocation{
		{CustomerKey: "AW00000010", Country: "USA"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), written)

	rows, err = st.RawLocations(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "AW00000010", rows[0].CustomerKey)
}

func TestStore_ReplaceEmptySnapshot(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	_, err := st.ReplaceRaw(ctx, store.EntityERPLocations, &[]store.RawLocation{
		{CustomerKey: "AW00000007", Country: "US"},
	})
	require.NoError(t, err)

	// An empty snapshot is a valid rewrite: the table ends up empty.
	written, err := st.ReplaceRaw(ctx, store.EntityERPLocations, &[]store.RawLocation{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), written)

	rows, err := st.RawLocations(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStore_ReplaceUnknownEntity(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	_, err := st.ReplaceRaw(ctx, "crm_orders", &[]store.RawLocation{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown entity")

	_, err = st.ReplaceClean(ctx, "crm_orders", &[]store.CleanLocation{})
	require.Error(t, err)
}

func TestStore_ReplaceCleanBatched(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	// Batch size 2, five rows: exercises the batching path.
	snapshot := make([]store.CleanLocation, 5)
	for i := range snapshot {
		snapshot[i] = store.CleanLocation{CustomerKey: "AW", Country: "Germany"}
	}

	written, err := st.ReplaceClean(ctx, store.EntityERPLocations, &snapshot)
	require.NoError(t, err)
	assert.Equal(t, int64(5), written)

	var count int64
	require.NoError(t, st.DB().
		Table("clean_erp_locations").
		Count(&count).Error)
	assert.Equal(t, int64(5), count)
}

func TestKnownEntity(t *testing.T) {
	for _, entity := range store.Entities {
		assert.True(t, store.KnownEntity(entity))
	}

	assert.False(t, store.KnownEntity("crm_orders"))
	assert.False(t, store.KnownEntity(""))
}
