package backup

import (
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/avelichko/casevault/internal/logging"
)

func testLog() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func setupSettingsDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// every pooled connection would get its own empty in-memory database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE backup_settings (
		profile_id TEXT PRIMARY KEY,
		enabled INTEGER NOT NULL DEFAULT 0,
		frequency TEXT NOT NULL,
		backup_time TEXT NOT NULL,
		keep_count INTEGER NOT NULL DEFAULT 5,
		last_backup_at INTEGER NOT NULL DEFAULT 0,
		next_backup_at INTEGER NOT NULL DEFAULT 0
	)`)
	require.NoError(t, err)
	return db
}
