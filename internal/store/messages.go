package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"parley/pkg/interfaces"
	"parley/pkg/types"
)

// AddMessage persists a new message and fills in its id. The id is assigned
// by the database, so insertion order is recoverable for same-instant sends.
func (s *Store) AddMessage(ctx context.Context, message *types.Message) error {
	return s.executeWrite(ctx, func(db *sql.DB) error {
		result, err := db.ExecContext(ctx, `
			INSERT INTO messages (sender_username, recipient_username, content, sent_at, read_at, sender_deleted, recipient_deleted)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			message.SenderUsername,
			message.RecipientUsername,
			message.Content,
			message.SentAt,
			nullableTime(message.ReadAt),
			message.SenderDeleted,
			message.RecipientDeleted,
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read message id: %w", err)
		}
		message.ID = id
		return nil
	})
}

// GetMessage returns one message by id.
func (s *Store) GetMessage(ctx context.Context, id int64) (*types.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, sender_username, recipient_username, content, sent_at, read_at, sender_deleted, recipient_deleted
		FROM messages
		WHERE id = ?
	`, id)
	message, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query message %d: %w", id, err)
	}
	return message, nil
}

// ThreadBetween returns the conversation between two users ordered by sent
// time ascending, id breaking ties. Messages the current user deleted on
// their side are omitted; the other party still sees them.
func (s *Store) ThreadBetween(ctx context.Context, currentUsername, otherUsername string) ([]*types.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_username, recipient_username, content, sent_at, read_at, sender_deleted, recipient_deleted
		FROM messages
		WHERE (recipient_username = ? AND sender_username = ? AND recipient_deleted = 0)
		   OR (recipient_username = ? AND sender_username = ? AND sender_deleted = 0)
		ORDER BY sent_at ASC, id ASC
	`, currentUsername, otherUsername, otherUsername, currentUsername)
	if err != nil {
		return nil, fmt.Errorf("failed to query thread: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// MarkThreadRead sets read_at on every unread message from otherUsername to
// currentUsername in a single statement. The read_at IS NULL guard makes
// re-marking a no-op rather than an update.
func (s *Store) MarkThreadRead(ctx context.Context, currentUsername, otherUsername string, at time.Time) (int64, error) {
	var marked int64
	err := s.executeWrite(ctx, func(db *sql.DB) error {
		result, err := db.ExecContext(ctx, `
			UPDATE messages
			SET read_at = ?
			WHERE recipient_username = ? AND sender_username = ? AND read_at IS NULL
		`, at, currentUsername, otherUsername)
		if err != nil {
			return fmt.Errorf("failed to mark thread read: %w", err)
		}
		marked, err = result.RowsAffected()
		return err
	})
	return marked, err
}

// MessagesForUser lists one side of a user's messages newest first: inbox
// (received, not deleted by the recipient), outbox (sent, not deleted by the
// sender) or unread (inbox still awaiting a read).
func (s *Store) MessagesForUser(ctx context.Context, username, container string, limit int) ([]*types.Message, error) {
	var where string
	switch container {
	case types.ContainerInbox:
		where = `recipient_username = ? AND recipient_deleted = 0`
	case types.ContainerOutbox:
		where = `sender_username = ? AND sender_deleted = 0`
	case types.ContainerUnread:
		where = `recipient_username = ? AND recipient_deleted = 0 AND read_at IS NULL`
	default:
		return nil, types.ErrInvalidContainer
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_username, recipient_username, content, sent_at, read_at, sender_deleted, recipient_deleted
		FROM messages
		WHERE `+where+`
		ORDER BY sent_at DESC, id DESC
		LIMIT ?
	`, username, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s messages: %w", container, err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// DeleteMessage records one party's deletion of a message. The row survives
// until both parties have deleted it, so the other party can still retrieve
// it; once both flags are set the row is removed for good.
func (s *Store) DeleteMessage(ctx context.Context, id int64, username string) error {
	return s.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var sender, recipient string
		var senderDeleted, recipientDeleted bool
		err = tx.QueryRowContext(ctx, `
			SELECT sender_username, recipient_username, sender_deleted, recipient_deleted
			FROM messages WHERE id = ?
		`, id).Scan(&sender, &recipient, &senderDeleted, &recipientDeleted)
		if errors.Is(err, sql.ErrNoRows) {
			return interfaces.ErrMessageNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load message %d: %w", id, err)
		}

		switch username {
		case sender:
			senderDeleted = true
		case recipient:
			recipientDeleted = true
		default:
			return interfaces.ErrNotMessageParticipant
		}

		if senderDeleted && recipientDeleted {
			_, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
		} else {
			_, err = tx.ExecContext(ctx, `
				UPDATE messages SET sender_deleted = ?, recipient_deleted = ? WHERE id = ?
			`, senderDeleted, recipientDeleted, id)
		}
		if err != nil {
			return fmt.Errorf("failed to delete message %d: %w", id, err)
		}
		return tx.Commit()
	})
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*types.Message, error) {
	var m types.Message
	var readAt sql.NullTime
	err := row.Scan(
		&m.ID,
		&m.SenderUsername,
		&m.RecipientUsername,
		&m.Content,
		&m.SentAt,
		&readAt,
		&m.SenderDeleted,
		&m.RecipientDeleted,
	)
	if err != nil {
		return nil, err
	}
	if readAt.Valid {
		t := readAt.Time
		m.ReadAt = &t
	}
	return &m, nil
}

func collectMessages(rows *sql.Rows) ([]*types.Message, error) {
	messages := make([]*types.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}
