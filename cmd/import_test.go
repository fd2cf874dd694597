package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-identity/internal/identity"
)

const leadsCSV = `Lead ID,First Name,Last Name,Cell Phone,Email,City,State
L-1,Robert,Smith,512-555-7199,rob.smith@acme.io,Austin,TX
L-2,Robert,Smith,(512) 555-7199,,Austin,TX
L-3,Jane,Doe,3125557100,jane@doe.dev,Chicago,IL
`

func writeLeads(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func newTestEnv(t *testing.T) *appEnv {
	t.Helper()
	cfg = testConfig(t)
	env, err := initEnv(context.Background(), "import", "")
	require.NoError(t, err)
	t.Cleanup(env.Close)
	return env
}

func TestImportFile_ResolvesRows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	path := writeLeads(t, "leads.csv", leadsCSV)

	stats, err := importFile(ctx, env, importOptions{Path: path, SourceType: identity.SourceImport, Concurrency: 1})
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.Rows)
	assert.Equal(t, int64(2), stats.Created)
	assert.Equal(t, int64(1), stats.Merged)
	assert.Zero(t, stats.Deferred)

	first, err := env.Store.GetRecordBySource(ctx, identity.SourceImport, "L-1")
	require.NoError(t, err)
	require.NotNil(t, first)
	second, err := env.Store.GetRecordBySource(ctx, identity.SourceImport, "L-2")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.CardID, second.CardID)

	card, err := env.Pipeline.Card(ctx, first.CardID)
	require.NoError(t, err)
	assert.Equal(t, 2, card.Enrichment.RecordCount)
	assert.Len(t, card.RecordIDs, 2)
}

func TestImportFile_ReimportIsDuplicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	path := writeLeads(t, "leads.csv", leadsCSV)

	_, err := importFile(ctx, env, importOptions{Path: path, SourceType: identity.SourceImport, Concurrency: 1})
	require.NoError(t, err)

	stats, err := importFile(ctx, env, importOptions{Path: path, SourceType: identity.SourceImport, Concurrency: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Duplicates)
	assert.Zero(t, stats.Created)
	assert.Zero(t, stats.Merged)
}

func TestImportFile_Seed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	path := writeLeads(t, "leads.tsv", "id\tname\tphone\nS-1\tRobert Smith\t512-555-7199\nS-2\tJane Doe\t3125557100\n")

	stats, err := importFile(ctx, env, importOptions{Path: path, SourceType: identity.SourceProperty, Seed: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Seeded)

	rec, err := env.Store.GetRecordBySource(ctx, identity.SourceProperty, "S-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Empty(t, rec.CardID)
	assert.Equal(t, "Robert", rec.FirstName)

	again, err := importFile(ctx, env, importOptions{Path: path, SourceType: identity.SourceProperty, Seed: true})
	require.NoError(t, err)
	assert.Zero(t, again.Seeded)
	assert.Equal(t, int64(2), again.Duplicates)
}

func TestImportFile_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := importFile(ctx, env, importOptions{Path: "leads.json", SourceType: identity.SourceImport})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")

	path := writeLeads(t, "nocols.csv", "city,state\nAustin,TX\n")
	_, err = importFile(ctx, env, importOptions{Path: path, SourceType: identity.SourceImport})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "map columns")
}

func TestImportFile_RowsWithoutIdentityCreateCards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	path := writeLeads(t, "sparse.csv", "email,city\n,Austin\n")

	stats, err := importFile(ctx, env, importOptions{Path: path, SourceType: identity.SourceImport, Concurrency: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Created)
}
