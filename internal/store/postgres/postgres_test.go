package postgres

import (
	"io/fs"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

func TestDSN(t *testing.T) {
	t.Run("explicit dsn wins", func(t *testing.T) {
		got := DSN(ClientConfig{DSN: "postgres://x@y/z", Host: "ignored"})
		assert.Equal(t, "postgres://x@y/z", got)
	})
	t.Run("defaults", func(t *testing.T) {
		got := DSN(ClientConfig{Host: "db", Database: "papertrade", User: "pt", Password: "secret"})
		assert.Equal(t, "postgres://pt:secret@db:5432/papertrade?sslmode=disable", got)
	})
	t.Run("custom port and sslmode", func(t *testing.T) {
		got := DSN(ClientConfig{Host: "db", Port: 6543, Database: "d", User: "u", Password: "p", SSLMode: "require"})
		assert.Equal(t, "postgres://u:p@db:6543/d?sslmode=require", got)
	})
	t.Run("escapes credentials", func(t *testing.T) {
		got := DSN(ClientConfig{Host: "db", Database: "d", User: "u", Password: "p@ss/word"})
		assert.Equal(t, "postgres://u:p%40ss%2Fword@db:5432/d?sslmode=disable", got)
	})
}

func TestPendingMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_archive.sql": {Data: []byte("SELECT 2;")},
		"migrations/001_init.sql":    {Data: []byte("SELECT 1;")},
		"migrations/003_next.sql":    {Data: []byte("SELECT 3;")},
		"migrations/README.md":       {Data: []byte("notes")},
	}

	pending, err := pendingMigrations(fsys, map[string]bool{"001_init.sql": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"002_archive.sql", "003_next.sql"}, pending)

	pending, err = pendingMigrations(migrationsFS, nil)
	require.NoError(t, err)
	assert.Contains(t, pending, "001_init.sql")

	_, err = pendingMigrations(fstest.MapFS{}, nil)
	assert.Error(t, err)
}

func TestAppendListOpts(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	query, args := appendListOpts("SELECT 1 FROM orders WHERE session_id = $1", []any{"s1"},
		domain.ListOpts{Since: &since, Limit: 10, Offset: 20})

	assert.Equal(t,
		"SELECT 1 FROM orders WHERE session_id = $1 AND created_at >= $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4",
		query)
	assert.Equal(t, []any{"s1", since, 10, 20}, args)

	query, args = appendListOpts("SELECT 1 FROM audit_log WHERE 1=1", nil, domain.ListOpts{})
	assert.Equal(t, "SELECT 1 FROM audit_log WHERE 1=1 ORDER BY created_at DESC", query)
	assert.Empty(t, args)
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	data, err := migrationsFS.ReadFile("migrations/" + entries[0].Name())
	require.NoError(t, err)
	for _, table := range []string{"orders", "audit_log", "search_history"} {
		assert.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS "+table)
	}
}

type fakeRow struct{ vals []any }

func (r fakeRow) Scan(dest ...any) error {
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.vals[i].(string)
		case *time.Time:
			*p = r.vals[i].(time.Time)
		case **time.Time:
			*p = nil
		}
	}
	return nil
}

func TestScanOrderFromRow(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	row := fakeRow{vals: []any{
		"ord-1", "s1", "BTCUSDT", "buy", "market",
		"100", "50000", "0.002", "-100",
		"settled", created, nil,
	}}

	o, err := scanOrderFromRow(row)
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionBuy, o.Direction)
	assert.Equal(t, domain.OrderKindMarket, o.Kind)
	assert.Equal(t, "0.002", o.BaseDelta.String())
	assert.Equal(t, "-100", o.QuoteDelta.String())
	assert.Nil(t, o.CancelledAt)

	row.vals[5] = "not-a-number"
	_, err = scanOrderFromRow(row)
	assert.Error(t, err)
}
