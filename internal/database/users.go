package database

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"galaxy/internal/models"
)

// Legacy rows may lack any of the later columns, hence the COALESCEs.
const userColumns = `id, COALESCE(real_name, ''), COALESCE(username, ''), email, password,
	COALESCE(profession, ''), COALESCE(profession_group, ''), COALESCE(star_color, '')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.RealName, &u.Username, &u.Email, &u.Password, &u.Profession, &u.ProfessionGroup, &u.StarColor)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// FindUserByCredentials returns the user with the given email if password
// matches. Rows written before passwords were hashed hold plaintext; a match
// against one of those re-hashes it in place.
func (s *Store) FindUserByCredentials(ctx context.Context, email, password string) (*models.User, error) {
	// Older databases stored emails as typed, so compare without case and
	// prefer an exact match.
	user, err := scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = ? COLLATE NOCASE ORDER BY email = ? DESC, id LIMIT 1",
		email, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	if isPasswordHash(user.Password) {
		if err := CheckPasswordHash(user.Password, password); err != nil {
			return nil, ErrNotFound
		}
		return user, nil
	}

	if subtle.ConstantTimeCompare([]byte(user.Password), []byte(password)) != 1 {
		return nil, ErrNotFound
	}
	hashed, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, "UPDATE users SET password = ? WHERE id = ?", hashed, user.ID); err != nil {
		return nil, fmt.Errorf("failed to upgrade password hash: %w", err)
	}
	s.log.Info("upgraded plaintext password", zap.Int("user_id", user.ID))
	user.Password = hashed
	return user, nil
}

func (s *Store) FindUserByID(ctx context.Context, id int) (*models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user %d: %w", id, err)
	}
	return user, nil
}

// EmailOrUsernameExists reports whether either value is already registered.
// Emails compare without case.
func (s *Store) EmailOrUsernameExists(ctx context.Context, email, username string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE email = ? COLLATE NOCASE OR username = ?)", email, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check existing user: %w", err)
	}
	return exists, nil
}

// InsertUser stores a new user. u.Password must already be hashed.
func (s *Store) InsertUser(ctx context.Context, u *models.User) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (real_name, username, email, password, profession, profession_group, star_color)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.RealName, u.Username, u.Email, u.Password, u.Profession, u.ProfessionGroup, u.StarColor)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrUniqueConstraint
		}
		return 0, fmt.Errorf("failed to insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return int(id), nil
}

// UpdateUserProfile overwrites the mutable profile fields of a user.
func (s *Store) UpdateUserProfile(ctx context.Context, id int, p models.Profile) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET real_name = ?, username = ?, profession = ?, profession_group = ?, star_color = ?
		WHERE id = ?`,
		p.RealName, p.Username, p.Profession, p.ProfessionGroup, p.StarColor, id)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUniqueConstraint
		}
		return fmt.Errorf("failed to update user %d: %w", id, err)
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

// ListGroupMembers returns the users of a profession group other than the
// given one, ordered by username.
func (s *Store) ListGroupMembers(ctx context.Context, group string, excludingUserID int) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE profession_group = ? AND id != ? ORDER BY username", group, excludingUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members of %s: %w", group, err)
	}
	defer rows.Close()

	var members []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		u.Password = ""
		members = append(members, *u)
	}
	return members, rows.Err()
}

func (s *Store) CountUsersByEmail(ctx context.Context, email string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE email = ? COLLATE NOCASE", email).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// HashPassword hashes a password with bcrypt.
func HashPassword(password string) (string, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedPassword), nil
}

// CheckPasswordHash compares a bcrypt hash with a plaintext password.
func CheckPasswordHash(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func isPasswordHash(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil && strings.HasPrefix(s, "$2")
}
