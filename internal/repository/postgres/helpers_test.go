package postgres

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// newMockBase returns a repository base over sqlmock using the postgres
// placeholder style.
func newMockBase(t *testing.T) (*BaseRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err, "unable to open the mock database connection")
	t.Cleanup(func() { db.Close() })
	return NewBaseRepository(sqlx.NewDb(db, DriverPostgres)), mock
}

// sourceTables stands in for the business tables owned by the CRUD layer.
const sourceTables = `
CREATE TABLE tasks (
	id            TEXT PRIMARY KEY,
	owner_user_id TEXT NOT NULL,
	title         TEXT NOT NULL,
	status        TEXT NOT NULL,
	due_date      DATE
);
CREATE TABLE legal_cases (
	id                TEXT PRIMARY KEY,
	owner_user_id     TEXT NOT NULL,
	title             TEXT NOT NULL,
	case_number       TEXT,
	court             TEXT,
	next_hearing_date DATE,
	next_hearing_time TEXT
);
CREATE TABLE calendar_events (
	id            TEXT PRIMARY KEY,
	owner_user_id TEXT NOT NULL,
	title         TEXT NOT NULL,
	event_type    TEXT NOT NULL,
	event_date    DATE NOT NULL,
	start_time    TEXT,
	location      TEXT
);
CREATE TABLE users (
	id    TEXT PRIMARY KEY,
	email TEXT
);
`

// newSQLiteBase opens a migrated SQLite database in a temp dir, with the
// business source tables created alongside.
func newSQLiteBase(t *testing.T) *BaseRepository {
	t.Helper()
	db, err := openSQLite(filepath.Join(t.TempDir(), "notify.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, Migrate(context.Background(), db))
	_, err = db.Exec(sourceTables)
	require.NoError(t, err)

	return NewBaseRepository(db)
}
