package ingest_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/pipelinoor/pkg/config"
	"github.com/ethpandaops/pipelinoor/pkg/ingest"
	"github.com/ethpandaops/pipelinoor/pkg/registry"
	"github.com/ethpandaops/pipelinoor/pkg/runlog"
	"github.com/ethpandaops/pipelinoor/pkg/store"
)

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func setupStore(t *testing.T) (store.Store, runlog.Log) {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
	}

	st := store.NewStore(quietLog(), cfg, 100)
	require.NoError(t, st.Start(context.Background()))

	t.Cleanup(func() { _ = st.Stop() })

	return st, runlog.New(quietLog(), st.DB())
}

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func newLoader(
	t *testing.T, st store.Store, rl runlog.Log, sources []config.SourceConfig,
) ingest.Loader {
	t.Helper()

	reg, err := registry.NewFromConfig(quietLog(), sources)
	require.NoError(t, err)

	return ingest.NewLoader(quietLog(), reg, st, rl)
}

func TestLoader_Load(t *testing.T) {
	st, rl := setupStore(t)
	ctx := context.Background()
	dir := t.TempDir()

	customers := writeCSV(t, dir, "cust_info.csv",
		"customer_id,customer_key,first_name,last_name,marital_status,gender,create_date\n"+
			"7,AW00000007,Jon,Yang,M,M,2025-10-06\n"+
			"8,AW00000008,Eugene,Huang,S,,2025-10-07\n")
	locations := writeCSV(t, dir, "loc_a101.csv",
		"customer_key,country\n"+
			"AW00000007,US\n")

	loader := newLoader(t, st, rl, []config.SourceConfig{
		{Entity: store.EntityCRMCustomers, Schema: "source_crm", Location: customers},
		{Entity: store.EntityERPLocations, Schema: "source_erp", Location: locations},
	})

	run, err := rl.BeginRun(ctx)
	require.NoError(t, err)

	total, err := loader.Load(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	// Raw rows land verbatim, loosely typed.
	rawCustomers, err := st.RawCustomers(ctx)
	require.NoError(t, err)
	require.Len(t, rawCustomers, 2)
	assert.Equal(t, "7", rawCustomers[0].CustomerID)
	assert.Equal(t, "AW00000007", rawCustomers[0].CustomerKey)
	assert.Equal(t, "M", rawCustomers[0].MaritalStatus)
	assert.Equal(t, "", rawCustomers[1].Gender)

	rawLocations, err := st.RawLocations(ctx)
	require.NoError(t, err)
	require.Len(t, rawLocations, 1)
	assert.Equal(t, "US", rawLocations[0].Country)

	// One ledger entry per source, in load order.
	entries, err := rl.Entries(ctx, run.RunID)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "load_crm_customers", entries[0].OperationName)
	assert.Equal(t, runlog.StageIngestion, entries[0].Stage)
	assert.Equal(t, runlog.StatusSuccess, entries[0].Status)
	require.NotNil(t, entries[0].RowsAffected)
	assert.Equal(t, int64(2), *entries[0].RowsAffected)
	require.NotNil(t, entries[0].SchemaName)
	assert.Equal(t, "source_crm", *entries[0].SchemaName)
	require.NotNil(t, entries[0].SourceLocation)
	assert.Equal(t, customers, *entries[0].SourceLocation)

	assert.Equal(t, "load_erp_locations", entries[1].OperationName)
	require.NotNil(t, entries[1].RowsAffected)
	assert.Equal(t, int64(1), *entries[1].RowsAffected)
}

func TestLoader_TruncatesBeforeLoad(t *testing.T) {
	st, rl := setupStore(t)
	ctx := context.Background()
	dir := t.TempDir()

	path := writeCSV(t, dir, "loc_a101.csv",
		"customer_key,country\nAW00000007,US\n")

	loader := newLoader(t, st, rl, []config.SourceConfig{
		{Entity: store.EntityERPLocations, Schema: "source_erp", Location: path},
	})

	run, err := rl.BeginRun(ctx)
	require.NoError(t, err)

	// Two loads of the same file must not accumulate rows.
	_, err = loader.Load(ctx, run.RunID)
	require.NoError(t, err)
	_, err = loader.Load(ctx, run.RunID)
	require.NoError(t, err)

	rows, err := st.RawLocations(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestLoader_MalformedFileFailsFast(t *testing.T) {
	st, rl := setupStore(t)
	ctx := context.Background()
	dir := t.TempDir()

	good := writeCSV(t, dir, "loc_a101.csv",
		"customer_key,country\nAW00000007,US\n")
	// Second record has a field count mismatch.
	bad := writeCSV(t, dir, "cust_info.csv",
		"customer_id,customer_key\n7,AW00000007\n8\n")
	after := writeCSV(t, dir, "px_cat_g1v2.csv",
		"category_id,category,subcategory,maintenance\nCO_RF,Components,Road Frames,Yes\n")

	loader := newLoader(t, st, rl, []config.SourceConfig{
		{Entity: store.EntityERPLocations, Schema: "source_erp", Location: good},
		{Entity: store.EntityCRMCustomers, Schema: "source_crm", Location: bad},
		{Entity: store.EntityERPProductCategories, Schema: "source_erp", Location: after},
	})

	run, err := rl.BeginRun(ctx)
	require.NoError(t, err)

	total, err := loader.Load(ctx, run.RunID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entity crm_customers")
	assert.Equal(t, int64(1), total)

	// The source after the failing one was never attempted.
	entries, err := rl.Entries(ctx, run.RunID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, runlog.StatusSuccess, entries[0].Status)
	assert.Equal(t, runlog.StatusFailed, entries[1].Status)

	categories, err := st.RawProductCategories(ctx)
	require.NoError(t, err)
	assert.Empty(t, categories)
}

func TestLoader_MissingLocationRejectedUpFront(t *testing.T) {
	_, err := registry.NewFromConfig(quietLog(), []config.SourceConfig{
		{Entity: store.EntityCRMCustomers, Schema: "source_crm", Location: "/does/not/exist.csv"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crm_customers")
}

func TestLoader_UnknownEntityRejected(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "x.csv", "a\n1\n")

	_, err := registry.NewFromConfig(quietLog(), []config.SourceConfig{
		{Entity: "crm_orders", Schema: "source_crm", Location: path},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entity catalog")
}
