// ABOUTME: Account persistence methods for the SQLite store
// ABOUTME: Covers creation, lookup, atomic device binding, and access toggling

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// CreateAccount inserts a new account and fills in its assigned ID.
func (s *SQLiteStore) CreateAccount(ctx context.Context, account *Account) error {
	query := `
		INSERT INTO accounts (username, password_hash, email, has_access, is_admin, device_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var email any
	if account.Email != "" {
		email = account.Email
	}
	var deviceID any
	if account.DeviceID != nil {
		deviceID = *account.DeviceID
	}

	result, err := s.db.ExecContext(ctx, query,
		account.Username,
		account.PasswordHash,
		email,
		account.HasAccess,
		account.IsAdmin,
		deviceID,
		formatTime(account.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			if strings.Contains(err.Error(), "accounts.email") {
				return ErrEmailExists
			}
			return ErrUsernameExists
		}
		return fmt.Errorf("inserting account: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting account id: %w", err)
	}
	account.ID = id

	s.logger.Info("created account", "id", id, "username", account.Username)
	return nil
}

// GetAccount retrieves an account by ID.
func (s *SQLiteStore) GetAccount(ctx context.Context, id int64) (*Account, error) {
	query := `
		SELECT id, username, password_hash, email, has_access, is_admin, device_id, created_at
		FROM accounts
		WHERE id = ?
	`
	return s.scanAccount(s.db.QueryRowContext(ctx, query, id))
}

// GetAccountByUsername retrieves an account by its unique username.
func (s *SQLiteStore) GetAccountByUsername(ctx context.Context, username string) (*Account, error) {
	query := `
		SELECT id, username, password_hash, email, has_access, is_admin, device_id, created_at
		FROM accounts
		WHERE username = ?
	`
	return s.scanAccount(s.db.QueryRowContext(ctx, query, username))
}

// FindAccountByEmailOrUsername retrieves the first account matching either
// the given email or the given username. Empty arguments match nothing.
func (s *SQLiteStore) FindAccountByEmailOrUsername(ctx context.Context, email, username string) (*Account, error) {
	query := `
		SELECT id, username, password_hash, email, has_access, is_admin, device_id, created_at
		FROM accounts
		WHERE (email = ? AND ? != '') OR (username = ? AND ? != '')
		ORDER BY id ASC
		LIMIT 1
	`
	return s.scanAccount(s.db.QueryRowContext(ctx, query, email, email, username, username))
}

// BindDevice binds a device to an account only if no device is bound yet.
// The conditional update is atomic: of two concurrent first binds exactly
// one succeeds. Returns ErrDeviceAlreadyBound when the account is already
// bound (to any device); the caller re-reads to compare.
func (s *SQLiteStore) BindDevice(ctx context.Context, accountID int64, deviceID string) error {
	query := `
		UPDATE accounts
		SET device_id = ?
		WHERE id = ? AND device_id IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, deviceID, accountID)
	if err != nil {
		return fmt.Errorf("binding device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected > 0 {
		s.logger.Info("bound device to account", "account_id", accountID)
		return nil
	}

	// rowsAffected == 0 - either the account doesn't exist or a device is
	// already bound. Distinguish for the caller.
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return err
	}
	return ErrDeviceAlreadyBound
}

// SetAccess updates the has_access flag on an account.
func (s *SQLiteStore) SetAccess(ctx context.Context, accountID int64, hasAccess bool) error {
	query := `UPDATE accounts SET has_access = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, hasAccess, accountID)
	if err != nil {
		return fmt.Errorf("updating access flag: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAccountNotFound
	}

	s.logger.Info("updated account access", "account_id", accountID, "has_access", hasAccess)
	return nil
}

// ListAccounts returns all accounts, newest first.
func (s *SQLiteStore) ListAccounts(ctx context.Context) ([]*Account, error) {
	query := `
		SELECT id, username, password_hash, email, has_access, is_admin, device_id, created_at
		FROM accounts
		ORDER BY created_at DESC, id DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		account, err := s.scanAccountRow(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating accounts: %w", err)
	}

	return accounts, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanAccount(row *sql.Row) (*Account, error) {
	account, err := s.scanAccountRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	return account, err
}

func (s *SQLiteStore) scanAccountRow(row rowScanner) (*Account, error) {
	var account Account
	var email, deviceID sql.NullString
	var createdAtStr string

	err := row.Scan(
		&account.ID,
		&account.Username,
		&account.PasswordHash,
		&email,
		&account.HasAccess,
		&account.IsAdmin,
		&deviceID,
		&createdAtStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning account: %w", err)
	}

	account.Email = email.String
	if deviceID.Valid {
		d := deviceID.String
		account.DeviceID = &d
	}

	account.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, err
	}

	return &account, nil
}
