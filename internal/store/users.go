package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmailTaken is returned by CreateUser when the email is registered.
var ErrEmailTaken = errors.New("email already registered")

const userColumns = `id, display_name, email, password_hash, created_at, updated_at`

func scanUser(scanner interface{ Scan(dest ...any) error }) (User, error) {
	var (
		user      User
		createdAt dbTime
		updatedAt dbTime
	)
	if err := scanner.Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &createdAt, &updatedAt); err != nil {
		return User{}, err
	}
	user.CreatedAt = createdAt.Time
	user.UpdatedAt = updatedAt.Time
	return user, nil
}

func (s *SQLStore) CreateUser(ctx context.Context, user User) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO users (id, display_name, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), user.ID, user.DisplayName, strings.ToLower(user.Email), user.PasswordHash, s.dialect.timeArg(now), s.dialect.timeArg(now))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+userColumns+` FROM users WHERE email = ?`), strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row)
}

func (s *SQLStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), userID)
	return scanUser(row)
}

func (s *SQLStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=excluded.user_id, expires_at=excluded.expires_at, revoked_at=NULL
	`), tokenHash, userID, s.dialect.timeArg(expiresAt))
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *SQLStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`UPDATE refresh_sessions SET revoked_at=? WHERE token_hash=?`), s.dialect.timeArg(s.now()), tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// LookupRefreshSession returns sql.ErrNoRows for unknown, revoked or expired
// tokens.
func (s *SQLStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	var (
		userID    string
		expiresAt dbTime
		revokedAt dbTime
	)
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT user_id, expires_at, revoked_at FROM refresh_sessions WHERE token_hash = ?
	`), tokenHash).Scan(&userID, &expiresAt, &revokedAt)
	if err != nil {
		return User{}, err
	}
	if revokedAt.Valid || !expiresAt.Time.After(s.now()) {
		return User{}, sql.ErrNoRows
	}
	return s.GetUserByID(ctx, userID)
}

func (s *SQLStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES (?, ?)
		ON CONFLICT (jti) DO NOTHING
	`), jti, s.dialect.timeArg(exp))
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *SQLStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=?)`), jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}
