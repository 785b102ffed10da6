// ABOUTME: Tests for document persistence, ID assignment, and projections
// ABOUTME: Covers payload round-trips, updates, idempotent deletes, and the owner join

package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testDocument(owner *int64) *Document {
	return &Document{
		OwnerID: owner,
		Name:    "Jan",
		Surname: "Kowalski",
		Pesel:   "90010112345",
		Payload: map[string]any{
			"name":    "Jan",
			"surname": "Kowalski",
			"pesel":   "90010112345",
			"extra":   "value",
		},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestCreateAndGetDocument(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	doc := testDocument(nil)

	id, err := s.CreateDocument(ctx, doc)
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}
	if id == 0 {
		t.Fatal("CreateDocument returned zero ID")
	}

	got, err := s.GetDocument(ctx, id)
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if got.Name != "Jan" || got.Surname != "Kowalski" || got.Pesel != "90010112345" {
		t.Errorf("projection mismatch: %+v", got)
	}
	if got.OwnerID != nil {
		t.Errorf("OwnerID should be nil, got %v", *got.OwnerID)
	}
	if got.Payload["extra"] != "value" {
		t.Errorf("payload field lost: %v", got.Payload)
	}
	if !got.CreatedAt.Equal(doc.CreatedAt) {
		t.Errorf("CreatedAt mismatch: got %v, want %v", got.CreatedAt, doc.CreatedAt)
	}
}

func TestGetDocument_NotFound(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	_, err := s.GetDocument(context.Background(), 404)
	if !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestUpdateDocument(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	doc := testDocument(nil)
	id, err := s.CreateDocument(ctx, doc)
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}

	doc.Name = "Adam"
	doc.Payload["name"] = "Adam"
	if err := s.UpdateDocument(ctx, doc); err != nil {
		t.Fatalf("UpdateDocument failed: %v", err)
	}

	got, err := s.GetDocument(ctx, id)
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if got.Name != "Adam" {
		t.Errorf("Name not updated: %q", got.Name)
	}
	if got.Payload["name"] != "Adam" {
		t.Errorf("payload name not updated: %v", got.Payload["name"])
	}
	if got.Payload["extra"] != "value" {
		t.Errorf("unrelated payload field changed: %v", got.Payload["extra"])
	}
}

func TestUpdateDocument_NotFound(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	doc := testDocument(nil)
	doc.ID = 404
	err := s.UpdateDocument(context.Background(), doc)
	if !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestDeleteDocument_Idempotent(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	id, err := s.CreateDocument(ctx, testDocument(nil))
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}

	if err := s.DeleteDocument(ctx, id); err != nil {
		t.Fatalf("DeleteDocument failed: %v", err)
	}
	if _, err := s.GetDocument(ctx, id); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("document still present after delete: %v", err)
	}

	// Deleting again is not an error
	if err := s.DeleteDocument(ctx, id); err != nil {
		t.Errorf("second DeleteDocument failed: %v", err)
	}
}

func TestDocumentIDsNeverReused(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	first, err := s.CreateDocument(ctx, testDocument(nil))
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}
	if err := s.DeleteDocument(ctx, first); err != nil {
		t.Fatalf("DeleteDocument failed: %v", err)
	}

	second, err := s.CreateDocument(ctx, testDocument(nil))
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}
	if second <= first {
		t.Errorf("document ID reused: first=%d second=%d", first, second)
	}
}

func TestListDocumentSummaries(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	account := testAccount("owner")
	if err := s.CreateAccount(ctx, account); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	owned := testDocument(&account.ID)
	if _, err := s.CreateDocument(ctx, owned); err != nil {
		t.Fatalf("CreateDocument (owned) failed: %v", err)
	}
	if _, err := s.CreateDocument(ctx, testDocument(nil)); err != nil {
		t.Fatalf("CreateDocument (guest) failed: %v", err)
	}

	summaries, err := s.ListDocumentSummaries(ctx)
	if err != nil {
		t.Fatalf("ListDocumentSummaries failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}

	var sawOwner, sawGuest bool
	for _, sum := range summaries {
		switch sum.Username {
		case "owner":
			sawOwner = true
		case "":
			sawGuest = true
		}
	}
	if !sawOwner || !sawGuest {
		t.Errorf("expected one owned and one guest summary: %+v", summaries)
	}
}
