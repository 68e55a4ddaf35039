package export

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sadopc/marktime/internal/ledger"

	_ "modernc.org/sqlite"
)

// ToSQLite archives entries into a standalone SQLite database for
// ad-hoc querying. The ledger file itself stays the source of record;
// the archive is rebuilt from scratch on every export.
func ToSQLite(entries []ledger.Entry, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(1)

	const ddl = `
	DROP TABLE IF EXISTS entries;
	CREATE TABLE entries (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		duration  INTEGER NOT NULL,
		file      TEXT NOT NULL,
		tags      TEXT NOT NULL DEFAULT '',
		type      TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX idx_entries_timestamp ON entries(timestamp);
	`
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("create archive schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO entries (timestamp, duration, file, tags, type) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		_, err := stmt.Exec(
			e.Timestamp.UTC().Format(time.RFC3339),
			e.Duration,
			e.File,
			strings.Join(e.Tags, " "),
			e.Kind,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive: %w", err)
	}
	return nil
}
