// ABOUTME: WebAuthn credential persistence for paceline
// ABOUTME: Enforces global credential ID uniqueness and tracks sign counters

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateCredential stores a new WebAuthn credential. Returns
// ErrCredentialExists if the credential ID is already registered to any user.
func (s *SQLiteStore) CreateCredential(ctx context.Context, cred *Credential) error {
	query := `
		INSERT INTO credentials (id, user_id, credential_id, public_key, attestation_type, transports, sign_count, backup_eligible, backup_state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		cred.ID,
		cred.UserID,
		cred.CredentialID,
		cred.PublicKey,
		cred.AttestationType,
		cred.Transports,
		cred.SignCount,
		cred.BackupEligible,
		cred.BackupState,
		cred.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrCredentialExists
		}
		return fmt.Errorf("inserting credential: %w", err)
	}

	s.logger.Info("created credential", "id", cred.ID, "user_id", cred.UserID)
	return nil
}

// GetCredentialByCredentialID retrieves a credential by its authenticator-assigned ID.
func (s *SQLiteStore) GetCredentialByCredentialID(ctx context.Context, credentialID []byte) (*Credential, error) {
	query := `
		SELECT id, user_id, credential_id, public_key, attestation_type, transports, sign_count, backup_eligible, backup_state, clone_flagged_at, created_at
		FROM credentials
		WHERE credential_id = ?
	`

	cred, err := scanCredential(s.db.QueryRowContext(ctx, query, credentialID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying credential: %w", err)
	}

	return cred, nil
}

// GetCredentialsByUser retrieves all credentials registered to a user.
func (s *SQLiteStore) GetCredentialsByUser(ctx context.Context, userID string) ([]*Credential, error) {
	query := `
		SELECT id, user_id, credential_id, public_key, attestation_type, transports, sign_count, backup_eligible, backup_state, clone_flagged_at, created_at
		FROM credentials
		WHERE user_id = ?
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying credentials: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var creds []*Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning credential: %w", err)
		}
		creds = append(creds, cred)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating credentials: %w", err)
	}

	return creds, nil
}

// UpdateCredentialSignCount updates the sign counter for a credential.
func (s *SQLiteStore) UpdateCredentialSignCount(ctx context.Context, credentialID []byte, signCount uint32) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE credentials SET sign_count = ? WHERE credential_id = ?",
		signCount, credentialID,
	)
	if err != nil {
		return fmt.Errorf("updating sign count: %w", err)
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

// FlagCredentialClone marks a credential as a suspected clone for operator
// review. The credential is not revoked; the stored sign counter is left
// untouched so subsequent regressions keep failing.
func (s *SQLiteStore) FlagCredentialClone(ctx context.Context, credentialID []byte) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx,
		"UPDATE credentials SET clone_flagged_at = ? WHERE credential_id = ? AND clone_flagged_at IS NULL",
		now, credentialID,
	)
	if err != nil {
		return fmt.Errorf("flagging credential: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		s.logger.Error("credential flagged as possible clone", "credential_id", fmt.Sprintf("%x", credentialID))
	}
	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*Credential, error) {
	var cred Credential
	var attestationType, transports, cloneFlaggedStr sql.NullString
	var createdAtStr string

	err := row.Scan(
		&cred.ID,
		&cred.UserID,
		&cred.CredentialID,
		&cred.PublicKey,
		&attestationType,
		&transports,
		&cred.SignCount,
		&cred.BackupEligible,
		&cred.BackupState,
		&cloneFlaggedStr,
		&createdAtStr,
	)
	if err != nil {
		return nil, err
	}

	cred.AttestationType = attestationType.String
	cred.Transports = transports.String

	cred.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	if cloneFlaggedStr.Valid {
		flaggedAt, err := time.Parse(time.RFC3339, cloneFlaggedStr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing clone_flagged_at: %w", err)
		}
		cred.CloneFlaggedAt = &flaggedAt
	}

	return &cred, nil
}
