package db_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/habedi/booksync/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) db.ExportRepository {
	t.Helper()
	db.Path = filepath.Join(t.TempDir(), "nested", "history.db")
	require.NoError(t, db.InitDB())
	t.Cleanup(func() { _ = db.CloseDB() })
	return db.NewExportRepository(db.GetDB())
}

func TestExportRepository_PutListClear(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	first := &db.Export{Provider: "xero", Endpoint: "Invoices", Records: 237, FilePath: "/tmp/a.csv", CreatedAt: base}
	second := &db.Export{Provider: "quickbooks", Endpoint: "customer", Records: 12, FilePath: "/tmp/b.csv", CreatedAt: base.Add(time.Minute)}
	require.NoError(t, repo.Put(ctx, first))
	require.NoError(t, repo.Put(ctx, second))
	assert.Len(t, first.ID, 36, "a uuid should be assigned on create")
	assert.NotEqual(t, first.ID, second.ID)

	all, err := repo.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "customer", all[0].Endpoint, "newest first")

	xeroOnly, err := repo.List(ctx, "xero", 10)
	require.NoError(t, err)
	require.Len(t, xeroOnly, 1)
	assert.Equal(t, 237, xeroOnly[0].Records)

	require.NoError(t, repo.Clear(ctx))
	all, err = repo.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestExportRepository_Latest(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	missing, err := repo.Latest(ctx, "xero", "Invoices")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.Put(ctx, &db.Export{Provider: "xero", Endpoint: "Invoices", Records: 1, CreatedAt: base}))
	require.NoError(t, repo.Put(ctx, &db.Export{Provider: "xero", Endpoint: "Invoices", Records: 2, CreatedAt: base.Add(time.Hour)}))

	latest, err := repo.Latest(ctx, "xero", "Invoices")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 2, latest.Records)
}
