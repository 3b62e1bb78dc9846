package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"galaxy/internal/models"
)

func (s *Store) CreateSession(ctx context.Context, sess *models.Session) error {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (user_id, username, uuid, expires) VALUES (?, ?, ?, ?)",
		sess.UserID, sess.Username, sess.UUID, formatTimestamp(sess.Expires))
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get session ID: %w", err)
	}
	sess.ID = int(id)
	return nil
}

// FindSession looks a session up by its opaque token. Expiry is left to the
// caller.
func (s *Store) FindSession(ctx context.Context, uuid string) (*models.Session, error) {
	var sess models.Session
	var expires sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, username, uuid, expires FROM sessions WHERE uuid = ?", uuid).
		Scan(&sess.ID, &sess.UserID, &sess.Username, &sess.UUID, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	sess.Expires = parseTimestamp(expires)
	return &sess, nil
}

func (s *Store) DeleteSession(ctx context.Context, uuid string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE uuid = ?", uuid)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteUserSessions(ctx context.Context, userID int) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("failed to delete old sessions: %w", err)
	}
	return nil
}

// RenameUserSessions updates the username stored on every session of a user.
func (s *Store) RenameUserSessions(ctx context.Context, userID int, username string) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE sessions SET username = ? WHERE user_id = ?", username, userID); err != nil {
		return fmt.Errorf("failed to rename sessions: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions that expired before now and reports
// how many were removed.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires < ?", formatTimestamp(now))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}
