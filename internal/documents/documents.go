// ABOUTME: Document lifecycle: create-and-return-id, retrieve, merge-update, delete
// ABOUTME: Payload is the authoritative field set; name/surname/pesel are a projection

package documents

import (
	"context"
	"log/slog"
	"time"

	"github.com/papergate/papergate/internal/store"
)

// DocumentStore is the subset of the store the document service needs.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *store.Document) (int64, error)
	GetDocument(ctx context.Context, id int64) (*store.Document, error)
	UpdateDocument(ctx context.Context, doc *store.Document) error
	DeleteDocument(ctx context.Context, id int64) error
	ListDocuments(ctx context.Context) ([]*store.Document, error)
	ListDocumentSummaries(ctx context.Context) ([]*store.DocumentSummary, error)
}

// Service manages document records.
type Service struct {
	store  DocumentStore
	logger *slog.Logger
}

// NewService creates a document service backed by the given store.
func NewService(s DocumentStore) *Service {
	return &Service{
		store:  s,
		logger: slog.Default().With("component", "documents"),
	}
}

// Create persists a new document and returns only its assigned ID. The
// payload is deliberately not echoed back: the ID alone is handed out so
// contents can be shared indirectly. ownerID is nil for guest or
// code-redeemed creation; codeRef records the redeemed code, if any.
func (s *Service) Create(ctx context.Context, ownerID *int64, fields map[string]any, codeRef string) (int64, error) {
	payload := make(map[string]any, len(fields))
	for k, v := range fields {
		payload[k] = v
	}

	doc := &store.Document{
		OwnerID:    ownerID,
		Name:       stringField(payload, "name"),
		Surname:    stringField(payload, "surname"),
		Pesel:      stringField(payload, "pesel"),
		AccessCode: codeRef,
		Payload:    payload,
		CreatedAt:  time.Now().UTC(),
	}

	return s.store.CreateDocument(ctx, doc)
}

// Retrieve returns the full stored payload for a document ID.
func (s *Service) Retrieve(ctx context.Context, id int64) (map[string]any, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc.Payload, nil
}

// Update merges partial fields into the stored payload. Only fields that
// are present and non-empty are applied; an empty string means "no change",
// not "clear the field". The projection columns follow the merged payload
// whenever name, surname or pesel are among the applied fields.
func (s *Service) Update(ctx context.Context, id int64, partial map[string]any) error {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return err
	}

	for k, v := range partial {
		if v == nil {
			continue
		}
		if str, ok := v.(string); ok && str == "" {
			continue
		}
		doc.Payload[k] = v
	}

	doc.Name = stringField(doc.Payload, "name")
	doc.Surname = stringField(doc.Payload, "surname")
	doc.Pesel = stringField(doc.Payload, "pesel")

	return s.store.UpdateDocument(ctx, doc)
}

// Delete removes a document. Deletion is idempotent: deleting an ID that
// does not exist succeeds.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.DeleteDocument(ctx, id)
}

// ListAll returns every document record, newest first.
func (s *Service) ListAll(ctx context.Context) ([]*store.Document, error) {
	return s.store.ListDocuments(ctx)
}

// ListSummaries returns the admin projection joined with owner usernames.
func (s *Service) ListSummaries(ctx context.Context) ([]*store.DocumentSummary, error) {
	return s.store.ListDocumentSummaries(ctx)
}

// stringField pulls a string value out of a payload map, returning ""
// for missing or non-string values.
func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
