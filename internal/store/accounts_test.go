// ABOUTME: Tests for account persistence and atomic device binding
// ABOUTME: Covers uniqueness, lookup paths, access toggling, and bind races

package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func testAccount(username string) *Account {
	return &Account{
		Username:     username,
		PasswordHash: "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy",
		HasAccess:    true,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
}

func TestCreateAndGetAccount(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	account := testAccount("alice")
	account.Email = "alice@example.com"

	if err := s.CreateAccount(ctx, account); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if account.ID == 0 {
		t.Fatal("CreateAccount did not assign an ID")
	}

	got, err := s.GetAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}

	if got.Username != "alice" {
		t.Errorf("Username mismatch: got %q, want %q", got.Username, "alice")
	}
	if got.Email != "alice@example.com" {
		t.Errorf("Email mismatch: got %q", got.Email)
	}
	if !got.HasAccess {
		t.Error("HasAccess should be true")
	}
	if got.IsAdmin {
		t.Error("IsAdmin should be false")
	}
	if got.DeviceID != nil {
		t.Errorf("DeviceID should be nil, got %q", *got.DeviceID)
	}
	if !got.CreatedAt.Equal(account.CreatedAt) {
		t.Errorf("CreatedAt mismatch: got %v, want %v", got.CreatedAt, account.CreatedAt)
	}
}

func TestCreateAccount_DuplicateUsername(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	if err := s.CreateAccount(ctx, testAccount("bob")); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	err := s.CreateAccount(ctx, testAccount("bob"))
	if !errors.Is(err, ErrUsernameExists) {
		t.Errorf("expected ErrUsernameExists, got %v", err)
	}
}

func TestGetAccountByUsername_NotFound(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	_, err := s.GetAccountByUsername(context.Background(), "nobody")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestFindAccountByEmailOrUsername(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	account := testAccount("carol")
	account.Email = "carol@example.com"
	if err := s.CreateAccount(ctx, account); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	byEmail, err := s.FindAccountByEmailOrUsername(ctx, "carol@example.com", "")
	if err != nil {
		t.Fatalf("lookup by email failed: %v", err)
	}
	if byEmail.ID != account.ID {
		t.Errorf("lookup by email returned wrong account: %d", byEmail.ID)
	}

	byUsername, err := s.FindAccountByEmailOrUsername(ctx, "", "carol")
	if err != nil {
		t.Fatalf("lookup by username failed: %v", err)
	}
	if byUsername.ID != account.ID {
		t.Errorf("lookup by username returned wrong account: %d", byUsername.ID)
	}

	// Empty arguments must not match rows with NULL email
	if _, err := s.FindAccountByEmailOrUsername(ctx, "", ""); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound for empty lookup, got %v", err)
	}
}

func TestBindDevice(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	account := testAccount("dave")
	if err := s.CreateAccount(ctx, account); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	if err := s.BindDevice(ctx, account.ID, "device-1"); err != nil {
		t.Fatalf("first BindDevice failed: %v", err)
	}

	got, err := s.GetAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if got.DeviceID == nil || *got.DeviceID != "device-1" {
		t.Fatalf("device not bound: %v", got.DeviceID)
	}

	// A second bind must fail and leave the original binding untouched
	err = s.BindDevice(ctx, account.ID, "device-2")
	if !errors.Is(err, ErrDeviceAlreadyBound) {
		t.Errorf("expected ErrDeviceAlreadyBound, got %v", err)
	}

	got, err = s.GetAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if got.DeviceID == nil || *got.DeviceID != "device-1" {
		t.Errorf("binding changed after rejected rebind: %v", got.DeviceID)
	}
}

func TestBindDevice_AccountNotFound(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	err := s.BindDevice(context.Background(), 12345, "device-1")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestBindDevice_ConcurrentFirstBinds(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	account := testAccount("erin")
	if err := s.CreateAccount(ctx, account); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	const binders = 8
	var wg sync.WaitGroup
	results := make(chan error, binders)

	for i := 0; i < binders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results <- s.BindDevice(ctx, account.ID, fmt.Sprintf("device-%d", n))
		}(i)
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrDeviceAlreadyBound):
			losses++
		default:
			t.Errorf("unexpected bind error: %v", err)
		}
	}

	if wins != 1 {
		t.Errorf("expected exactly 1 successful bind, got %d", wins)
	}
	if losses != binders-1 {
		t.Errorf("expected %d rejected binds, got %d", binders-1, losses)
	}
}

func TestSetAccess(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	account := testAccount("frank")
	if err := s.CreateAccount(ctx, account); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	if err := s.SetAccess(ctx, account.ID, false); err != nil {
		t.Fatalf("SetAccess failed: %v", err)
	}

	got, err := s.GetAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if got.HasAccess {
		t.Error("HasAccess should be false after revoke")
	}

	if err := s.SetAccess(ctx, 99999, true); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestListAccounts(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	for _, name := range []string{"u1", "u2", "u3"} {
		if err := s.CreateAccount(ctx, testAccount(name)); err != nil {
			t.Fatalf("CreateAccount %s failed: %v", name, err)
		}
	}

	accounts, err := s.ListAccounts(ctx)
	if err != nil {
		t.Fatalf("ListAccounts failed: %v", err)
	}
	if len(accounts) != 3 {
		t.Errorf("expected 3 accounts, got %d", len(accounts))
	}
}
