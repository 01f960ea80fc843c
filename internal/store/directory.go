package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"parley/pkg/interfaces"
	"parley/pkg/types"
)

// ResolveByUsername returns the user for a stable username.
func (s *Store) ResolveByUsername(ctx context.Context, username string) (*types.User, error) {
	var u types.User
	err := s.db.QueryRowContext(ctx, `
		SELECT username, display_name FROM users WHERE username = ?
	`, username).Scan(&u.Username, &u.DisplayName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user %s: %w", username, err)
	}
	return &u, nil
}

// UpsertUser creates or updates a directory entry. Account management proper
// lives outside this subsystem; the hosting layer calls this when users are
// provisioned.
func (s *Store) UpsertUser(ctx context.Context, user *types.User) error {
	if !types.IsValidUsername(user.Username) {
		return types.ErrInvalidUsername
	}
	return s.executeWrite(ctx, func(db *sql.DB) error {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO users (username, display_name) VALUES (?, ?)
			ON CONFLICT(username) DO UPDATE SET display_name = excluded.display_name
		`, user.Username, user.DisplayName); err != nil {
			return fmt.Errorf("failed to upsert user %s: %w", user.Username, err)
		}
		return nil
	})
}
