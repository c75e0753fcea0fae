// ABOUTME: Session persistence with atomic challenge state transitions
// ABOUTME: ConsumeChallenge is fetch-and-clear so a challenge verifies at most once

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateSession creates a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *Session) error {
	query := `
		INSERT INTO sessions (id, user_id, created_at, expires_at)
		VALUES (?, ?, ?, ?)
	`

	var userID sql.NullString
	if session.UserID != "" {
		userID = sql.NullString{String: session.UserID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		session.ID,
		userID,
		session.CreatedAt.UTC().Format(time.RFC3339),
		session.ExpiresAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}

	s.logger.Debug("created session", "id", session.ID)
	return nil
}

// GetSession retrieves a valid (non-expired) session.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	query := `
		SELECT id, user_id, challenge, challenge_purpose, challenge_user, challenge_expires_at, created_at, expires_at
		FROM sessions
		WHERE id = ? AND expires_at > ?
	`

	var session Session
	var userID, purpose, challengeUser, challengeExpiresStr sql.NullString
	var challenge []byte
	var createdAtStr, expiresAtStr string
	now := time.Now().UTC().Format(time.RFC3339)

	err := s.db.QueryRowContext(ctx, query, id, now).Scan(
		&session.ID,
		&userID,
		&challenge,
		&purpose,
		&challengeUser,
		&challengeExpiresStr,
		&createdAtStr,
		&expiresAtStr,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}

	session.UserID = userID.String

	session.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	session.ExpiresAt, err = time.Parse(time.RFC3339, expiresAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}

	if challenge != nil {
		ch := &Challenge{
			Purpose: purpose.String,
			UserID:  challengeUser.String,
			Data:    challenge,
		}
		if challengeExpiresStr.Valid {
			ch.ExpiresAt, err = time.Parse(time.RFC3339, challengeExpiresStr.String)
			if err != nil {
				return nil, fmt.Errorf("parsing challenge_expires_at: %w", err)
			}
		}
		session.Challenge = ch
	}

	return &session, nil
}

// SetChallenge stores a pending challenge on the session, replacing any
// previous one. At most one challenge is in flight per session.
func (s *SQLiteStore) SetChallenge(ctx context.Context, sessionID string, ch *Challenge) error {
	query := `
		UPDATE sessions
		SET challenge = ?, challenge_purpose = ?, challenge_user = ?, challenge_expires_at = ?
		WHERE id = ? AND expires_at > ?
	`

	var challengeUser sql.NullString
	if ch.UserID != "" {
		challengeUser = sql.NullString{String: ch.UserID, Valid: true}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx, query,
		ch.Data,
		ch.Purpose,
		challengeUser,
		ch.ExpiresAt.UTC().Format(time.RFC3339),
		sessionID,
		now,
	)
	if err != nil {
		return fmt.Errorf("setting challenge: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// ConsumeChallenge atomically reads and clears the session's pending challenge.
// Two concurrent consumers cannot both receive the same challenge; the loser
// gets ErrNoChallenge. Expiry classification is left to the caller since the
// challenge is discarded either way.
func (s *SQLiteStore) ConsumeChallenge(ctx context.Context, sessionID string) (*Challenge, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var purpose, challengeUser, challengeExpiresStr sql.NullString
	var data []byte

	err = tx.QueryRowContext(ctx,
		"SELECT challenge, challenge_purpose, challenge_user, challenge_expires_at FROM sessions WHERE id = ?",
		sessionID,
	).Scan(&data, &purpose, &challengeUser, &challengeExpiresStr)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading challenge: %w", err)
	}

	if data == nil {
		return nil, ErrNoChallenge
	}

	result, err := tx.ExecContext(ctx,
		"UPDATE sessions SET challenge = NULL, challenge_purpose = NULL, challenge_user = NULL, challenge_expires_at = NULL WHERE id = ? AND challenge IS NOT NULL",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("clearing challenge: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Lost the race to a concurrent consumer.
		return nil, ErrNoChallenge
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing challenge consume: %w", err)
	}

	ch := &Challenge{
		Purpose: purpose.String,
		UserID:  challengeUser.String,
		Data:    data,
	}
	if challengeExpiresStr.Valid {
		ch.ExpiresAt, err = time.Parse(time.RFC3339, challengeExpiresStr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing challenge_expires_at: %w", err)
		}
	}

	return ch, nil
}

// AuthenticateSession marks the session as belonging to the given user and
// clears any pending challenge in the same statement.
func (s *SQLiteStore) AuthenticateSession(ctx context.Context, sessionID, userID string) error {
	query := `
		UPDATE sessions
		SET user_id = ?, challenge = NULL, challenge_purpose = NULL, challenge_user = NULL, challenge_expires_at = NULL
		WHERE id = ? AND expires_at > ?
	`

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx, query, userID, sessionID, now)
	if err != nil {
		return fmt.Errorf("authenticating session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("authenticated session", "id", sessionID, "user_id", userID)
	return nil
}

// DeleteSession deletes a session.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes all expired sessions.
func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", now)
	if err != nil {
		return fmt.Errorf("deleting expired sessions: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		s.logger.Debug("deleted expired sessions", "count", rowsAffected)
	}
	return nil
}
