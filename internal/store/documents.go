// ABOUTME: Document persistence methods for the SQLite store
// ABOUTME: Payload is stored as JSON text; projection columns mirror name/surname/pesel

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// CreateDocument inserts a new document record and returns its assigned ID.
// IDs come from an AUTOINCREMENT column and are never reused, even after
// deletion.
func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *Document) (int64, error) {
	payload, err := json.Marshal(doc.Payload)
	if err != nil {
		return 0, fmt.Errorf("encoding payload: %w", err)
	}

	query := `
		INSERT INTO documents (owner_id, name, surname, pesel, access_code, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var ownerID any
	if doc.OwnerID != nil {
		ownerID = *doc.OwnerID
	}

	result, err := s.db.ExecContext(ctx, query,
		ownerID,
		doc.Name,
		doc.Surname,
		doc.Pesel,
		doc.AccessCode,
		string(payload),
		formatTime(doc.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting document: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting document id: %w", err)
	}
	doc.ID = id

	s.logger.Info("created document", "id", id)
	return id, nil
}

// GetDocument retrieves a document by ID.
func (s *SQLiteStore) GetDocument(ctx context.Context, id int64) (*Document, error) {
	query := `
		SELECT id, owner_id, name, surname, pesel, access_code, payload, created_at
		FROM documents
		WHERE id = ?
	`

	var doc Document
	var ownerID sql.NullInt64
	var payloadStr, createdAtStr string

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&doc.ID,
		&ownerID,
		&doc.Name,
		&doc.Surname,
		&doc.Pesel,
		&doc.AccessCode,
		&payloadStr,
		&createdAtStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("getting document: %w", err)
	}

	if ownerID.Valid {
		o := ownerID.Int64
		doc.OwnerID = &o
	}

	if err := json.Unmarshal([]byte(payloadStr), &doc.Payload); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}

	doc.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, err
	}

	return &doc, nil
}

// UpdateDocument rewrites a document's payload and projection columns.
// Owner, access code and creation time are immutable and left untouched.
func (s *SQLiteStore) UpdateDocument(ctx context.Context, doc *Document) error {
	payload, err := json.Marshal(doc.Payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	query := `
		UPDATE documents
		SET name = ?, surname = ?, pesel = ?, payload = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		doc.Name,
		doc.Surname,
		doc.Pesel,
		string(payload),
		doc.ID,
	)
	if err != nil {
		return fmt.Errorf("updating document: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDocumentNotFound
	}

	s.logger.Info("updated document", "id", doc.ID)
	return nil
}

// DeleteDocument removes a document. Deleting a nonexistent ID is not an
// error: deletion is idempotent.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		s.logger.Info("deleted document", "id", id)
	}
	return nil
}

// ListDocuments returns all documents, newest first.
func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]*Document, error) {
	query := `
		SELECT id, owner_id, name, surname, pesel, access_code, payload, created_at
		FROM documents
		ORDER BY created_at DESC, id DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var doc Document
		var ownerID sql.NullInt64
		var payloadStr, createdAtStr string

		err := rows.Scan(
			&doc.ID,
			&ownerID,
			&doc.Name,
			&doc.Surname,
			&doc.Pesel,
			&doc.AccessCode,
			&payloadStr,
			&createdAtStr,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}

		if ownerID.Valid {
			o := ownerID.Int64
			doc.OwnerID = &o
		}
		if err := json.Unmarshal([]byte(payloadStr), &doc.Payload); err != nil {
			return nil, fmt.Errorf("decoding payload: %w", err)
		}
		doc.CreatedAt, err = parseTime(createdAtStr)
		if err != nil {
			return nil, err
		}

		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	return docs, nil
}

// ListDocumentSummaries returns the admin projection of all documents
// joined with the owning account's username, newest first.
func (s *SQLiteStore) ListDocumentSummaries(ctx context.Context) ([]*DocumentSummary, error) {
	query := `
		SELECT d.id, COALESCE(a.username, ''), d.name, d.surname, d.pesel, d.created_at
		FROM documents d
		LEFT JOIN accounts a ON d.owner_id = a.id
		ORDER BY d.created_at DESC, d.id DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing document summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*DocumentSummary
	for rows.Next() {
		var sum DocumentSummary
		var createdAtStr string

		err := rows.Scan(&sum.ID, &sum.Username, &sum.Name, &sum.Surname, &sum.Pesel, &createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("scanning document summary: %w", err)
		}
		sum.CreatedAt, err = parseTime(createdAtStr)
		if err != nil {
			return nil, err
		}

		summaries = append(summaries, &sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document summaries: %w", err)
	}

	return summaries, nil
}
