// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Runs upsert, prefix listing and reopen persistence against both sqlite drivers

package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var drivers = []string{DriverModernc, DriverCGo}

// openDriver opens a store at path with driver. The cgo driver is skipped in
// builds without cgo, where go-sqlite3 compiles to a stub.
func openDriver(t *testing.T, driver, path string) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLiteStore(driver, path)
	if err != nil && driver == DriverCGo && strings.Contains(err.Error(), "cgo") {
		t.Skipf("%s unavailable: %v", driver, err)
	}
	require.NoError(t, err)
	return s
}

func newTestStore(t *testing.T, driver string) *SQLiteStore {
	t.Helper()
	s := openDriver(t, driver, filepath.Join(t.TempDir(), "test.db"))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestOpenSQLiteStore_UnknownDriver(t *testing.T) {
	_, err := OpenSQLiteStore("postgres", filepath.Join(t.TempDir(), "x.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported sqlite driver")
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	for _, driver := range drivers {
		t.Run(driver, func(t *testing.T) {
			s := newTestStore(t, driver)

			_, err := s.Get(context.Background(), "selected_mode")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestSQLiteStore_PutOverwrites(t *testing.T) {
	for _, driver := range drivers {
		t.Run(driver, func(t *testing.T) {
			s := newTestStore(t, driver)
			ctx := context.Background()

			require.NoError(t, s.Put(ctx, "selected_mode", "GraphRag Global Assistant"))
			require.NoError(t, s.Put(ctx, "selected_mode", "GraphRag Entity-Focused Assistant"))

			got, err := s.Get(ctx, "selected_mode")
			require.NoError(t, err)
			assert.Equal(t, "GraphRag Entity-Focused Assistant", got)
		})
	}
}

func TestSQLiteStore_DeleteAndKeys(t *testing.T) {
	for _, driver := range drivers {
		t.Run(driver, func(t *testing.T) {
			s := newTestStore(t, driver)
			ctx := context.Background()

			require.NoError(t, s.Put(ctx, "agent:b", "{}"))
			require.NoError(t, s.Put(ctx, "agent:a", "{}"))
			require.NoError(t, s.Put(ctx, "selected_agent", "{}"))

			keys, err := s.Keys(ctx, "agent:")
			require.NoError(t, err)
			assert.Equal(t, []string{"agent:a", "agent:b"}, keys)

			require.NoError(t, s.Delete(ctx, "agent:a"))
			require.NoError(t, s.Delete(ctx, "agent:missing"))

			keys, err = s.Keys(ctx, "agent:")
			require.NoError(t, err)
			assert.Equal(t, []string{"agent:b"}, keys)
		})
	}
}

func TestSQLiteStore_KeysPrefixIsLiteral(t *testing.T) {
	for _, driver := range drivers {
		t.Run(driver, func(t *testing.T) {
			s := newTestStore(t, driver)
			ctx := context.Background()

			require.NoError(t, s.Put(ctx, "a_b", "1"))
			require.NoError(t, s.Put(ctx, "axb", "2"))

			keys, err := s.Keys(ctx, "a_")
			require.NoError(t, err)
			assert.Equal(t, []string{"a_b"}, keys)
		})
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	for _, driver := range drivers {
		t.Run(driver, func(t *testing.T) {
			dbPath := filepath.Join(t.TempDir(), "settings.db")
			ctx := context.Background()

			s := openDriver(t, driver, dbPath)
			require.NoError(t, s.Put(ctx, "connection_config", `{"url":"bolt://x"}`))
			require.NoError(t, s.Close())

			s = openDriver(t, driver, dbPath)
			defer s.Close()

			got, err := s.Get(ctx, "connection_config")
			require.NoError(t, err)
			assert.Equal(t, `{"url":"bolt://x"}`, got)
		})
	}
}
