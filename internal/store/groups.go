package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"parley/pkg/interfaces"
	"parley/pkg/types"
)

// GetGroup returns a group with its current connection membership.
func (s *Store) GetGroup(ctx context.Context, name string) (*types.Group, error) {
	var groupName string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM groups WHERE name = ?`, name).Scan(&groupName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query group %s: %w", name, err)
	}
	return s.loadGroup(ctx, groupName)
}

// AddConnection creates the group lazily and appends the connection row
// stamped with the process epoch, atomically.
func (s *Store) AddConnection(ctx context.Context, groupName string, conn types.Connection, epoch string) error {
	return s.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO groups (name) VALUES (?)`, groupName); err != nil {
			return fmt.Errorf("failed to ensure group %s: %w", groupName, err)
		}
		// The primary key on connection_id enforces the one-group-per-
		// connection invariant at the schema level.
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO connections (connection_id, username, group_name, epoch)
			VALUES (?, ?, ?, ?)
		`, conn.ID, conn.Username, groupName, epoch); err != nil {
			return fmt.Errorf("failed to add connection %s to group %s: %w", conn.ID, groupName, err)
		}
		return tx.Commit()
	})
}

// RemoveConnection deletes a connection row. Removing an unknown id is a
// no-op, tolerant of cleanup running twice.
func (s *Store) RemoveConnection(ctx context.Context, connectionID string) error {
	return s.executeWrite(ctx, func(db *sql.DB) error {
		if _, err := db.ExecContext(ctx, `DELETE FROM connections WHERE connection_id = ?`, connectionID); err != nil {
			return fmt.Errorf("failed to remove connection %s: %w", connectionID, err)
		}
		return nil
	})
}

// GroupForConnection returns the group currently containing the connection.
func (s *Store) GroupForConnection(ctx context.Context, connectionID string) (*types.Group, error) {
	var groupName string
	err := s.db.QueryRowContext(ctx, `
		SELECT group_name FROM connections WHERE connection_id = ?
	`, connectionID).Scan(&groupName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrConnectionNotInGroup
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query group for connection %s: %w", connectionID, err)
	}
	return s.loadGroup(ctx, groupName)
}

// PurgeConnectionsExcept deletes every connection row stamped with a
// different epoch. Called once at startup before serving.
func (s *Store) PurgeConnectionsExcept(ctx context.Context, epoch string) (int64, error) {
	var purged int64
	err := s.executeWrite(ctx, func(db *sql.DB) error {
		result, err := db.ExecContext(ctx, `DELETE FROM connections WHERE epoch != ?`, epoch)
		if err != nil {
			return fmt.Errorf("failed to purge stale connections: %w", err)
		}
		purged, err = result.RowsAffected()
		return err
	})
	return purged, err
}

func (s *Store) loadGroup(ctx context.Context, name string) (*types.Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT connection_id, username FROM connections WHERE group_name = ? ORDER BY connection_id
	`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections for group %s: %w", name, err)
	}
	defer rows.Close()

	g := &types.Group{Name: name, Connections: make([]types.Connection, 0)}
	for rows.Next() {
		var c types.Connection
		if err := rows.Scan(&c.ID, &c.Username); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		g.Connections = append(g.Connections, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate connections: %w", err)
	}
	return g, nil
}
