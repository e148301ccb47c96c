package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{
		Path: filepath.Join(t.TempDir(), "nested", "history.db"),
		Name: HistoryDatabase,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNew_CreatesDirectoryAndDefaultsProfile(t *testing.T) {
	db := newTestDB(t)

	assert.Equal(t, ProfileStandard, db.Profile())
	assert.Equal(t, HistoryDatabase, db.Name())
	assert.True(t, filepath.IsAbs(db.Path()))
	assert.NoError(t, db.QuickCheck(context.Background()))
}

func TestMigrate_IsIdempotent(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.Migrate())
	require.NoError(t, db.Migrate())

	var count int
	err := db.Conn().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'daily_prices'`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestApplySchema_UnknownName(t *testing.T) {
	db := newTestDB(t)

	err := ApplySchema(db.Conn(), "ledger")
	assert.Error(t, err)
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrate())

	boom := errors.New("boom")
	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO daily_prices (ticker, date, close) VALUES ('AAPL', 0, 1)`); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, db.Conn().QueryRow(`SELECT COUNT(*) FROM daily_prices`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestWithTransaction_RecoversPanic(t *testing.T) {
	db := newTestDB(t)

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		panic("unexpected")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic in transaction")
}

func TestBuildConnectionString(t *testing.T) {
	standard := buildConnectionString("/tmp/a.db", ProfileStandard)
	cache := buildConnectionString("file:mem?mode=memory", ProfileCache)

	assert.True(t, strings.HasPrefix(standard, "/tmp/a.db?_pragma=journal_mode(WAL)"))
	assert.Contains(t, standard, "synchronous(NORMAL)")
	assert.Contains(t, cache, "file:mem?mode=memory&_pragma=")
	assert.Contains(t, cache, "synchronous(OFF)")
}
