// ABOUTME: Access code persistence methods for the SQLite store
// ABOUTME: Redemption is a single atomic conditional update (set used where unused)

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateAccessCode inserts a new unused access code.
func (s *SQLiteStore) CreateAccessCode(ctx context.Context, code string, createdAt time.Time) error {
	query := `
		INSERT INTO access_codes (code, used, created_at)
		VALUES (?, 0, ?)
	`

	_, err := s.db.ExecContext(ctx, query, code, formatTime(createdAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrCodeExists
		}
		return fmt.Errorf("inserting access code: %w", err)
	}

	return nil
}

// RedeemAccessCode marks a code as used, but only if it exists and is
// currently unused. The check and the write are a single conditional
// update, so under concurrent redemptions of the same code exactly one
// caller succeeds. All failure modes collapse to ErrCodeUnavailable.
func (s *SQLiteStore) RedeemAccessCode(ctx context.Context, code string, usedAt time.Time) error {
	query := `
		UPDATE access_codes
		SET used = 1, used_at = ?
		WHERE code = ? AND used = 0
	`

	result, err := s.db.ExecContext(ctx, query, formatTime(usedAt), code)
	if err != nil {
		return fmt.Errorf("redeeming access code: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrCodeUnavailable
	}

	s.logger.Info("access code redeemed", "code", code)
	return nil
}

// ListAccessCodes returns all access codes, newest first.
func (s *SQLiteStore) ListAccessCodes(ctx context.Context) ([]*AccessCode, error) {
	query := `
		SELECT code, used, used_at, created_at
		FROM access_codes
		ORDER BY created_at DESC, code ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing access codes: %w", err)
	}
	defer rows.Close()

	var codes []*AccessCode
	for rows.Next() {
		var c AccessCode
		var usedAt sql.NullString
		var createdAtStr string

		if err := rows.Scan(&c.Code, &c.Used, &usedAt, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning access code: %w", err)
		}

		if usedAt.Valid {
			t, err := parseTime(usedAt.String)
			if err != nil {
				return nil, err
			}
			c.UsedAt = &t
		}

		c.CreatedAt, err = parseTime(createdAtStr)
		if err != nil {
			return nil, err
		}

		codes = append(codes, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating access codes: %w", err)
	}

	return codes, nil
}
