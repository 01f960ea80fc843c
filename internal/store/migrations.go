package store

import (
	"database/sql"
	"fmt"
)

// migration is one schema change applied exactly once, tracked in the
// schema_migrations table.
type migration struct {
	version     string
	description string
	sql         string
}

var migrations = []migration{
	{
		version:     "001",
		description: "users, messages, groups and connections tables",
		sql: `
			CREATE TABLE IF NOT EXISTS users (
				username     TEXT PRIMARY KEY,
				display_name TEXT NOT NULL DEFAULT '',
				created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			CREATE TABLE IF NOT EXISTS messages (
				id                 INTEGER PRIMARY KEY AUTOINCREMENT,
				sender_username    TEXT NOT NULL REFERENCES users(username),
				recipient_username TEXT NOT NULL REFERENCES users(username),
				content            TEXT NOT NULL,
				sent_at            DATETIME NOT NULL,
				read_at            DATETIME,
				sender_deleted     INTEGER NOT NULL DEFAULT 0,
				recipient_deleted  INTEGER NOT NULL DEFAULT 0
			);

			CREATE TABLE IF NOT EXISTS groups (
				name TEXT PRIMARY KEY
			);

			CREATE TABLE IF NOT EXISTS connections (
				connection_id TEXT PRIMARY KEY,
				username      TEXT NOT NULL,
				group_name    TEXT NOT NULL REFERENCES groups(name),
				epoch         TEXT NOT NULL
			);
		`,
	},
	{
		version:     "002",
		description: "query indexes for threads, unread lookups and membership",
		sql: `
			CREATE INDEX IF NOT EXISTS idx_messages_thread
				ON messages(sender_username, recipient_username, sent_at);
			CREATE INDEX IF NOT EXISTS idx_messages_recipient_read
				ON messages(recipient_username, read_at);
			CREATE INDEX IF NOT EXISTS idx_connections_group
				ON connections(group_name);
			CREATE INDEX IF NOT EXISTS idx_connections_epoch
				ON connections(epoch);
		`,
	},
}

// applyMigrations brings the schema up to date. Each migration runs in its
// own transaction together with its tracking row, so a failed migration
// leaves no partial schema behind.
func applyMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		if err := applyMigration(db, m); err != nil {
			return fmt.Errorf("failed to apply migration %s (%s): %w", m.version, m.description, err)
		}
	}
	return nil
}

func applyMigration(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(m.sql); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, m.version); err != nil {
		return err
	}
	return tx.Commit()
}
