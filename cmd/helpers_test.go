package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/habedi/booksync/auth"
	"github.com/habedi/booksync/db"
	"github.com/habedi/booksync/export"
	"github.com/habedi/booksync/tokenstore"
	"github.com/stretchr/testify/require"
)

// setupCmdTest opens a throwaway history database and makes the commands read
// configuration from vars instead of the process environment.
func setupCmdTest(t *testing.T, vars map[string]string) {
	t.Helper()
	db.Path = filepath.Join(t.TempDir(), "history.db")
	require.NoError(t, db.InitDB())
	t.Cleanup(func() {
		_ = db.CloseDB()
		db.Db = nil
	})

	prev := lookupEnv
	lookupEnv = func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
	t.Cleanup(func() { lookupEnv = prev })
	t.Setenv(export.OutputDirEnv, "")
}

// runRoot executes the root command with args and returns everything it printed.
func runRoot(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := createRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--env-file", ""}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// writeValidTokens stores a token set that will not need a refresh.
func writeValidTokens(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, tokenstore.New(path).Save(&auth.TokenSet{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
	}))
}

func historyEntries(t *testing.T) []db.Export {
	t.Helper()
	entries, err := db.NewExportRepository(db.GetDB()).List(context.Background(), "", 0)
	require.NoError(t, err)
	return entries
}
