// ABOUTME: Credential authentication and device pinning for papergate accounts
// ABOUTME: bcrypt password verification with constant-time handling of unknown users

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/papergate/papergate/internal/store"
)

// ErrInvalidCredentials is returned when the username is unknown or the
// password does not match.
var ErrInvalidCredentials = errors.New("invalid username or password")

// ErrAccessDenied is returned when the account's access gate is closed.
var ErrAccessDenied = errors.New("access denied, contact administrator")

// ErrDeviceMismatch is returned when a login arrives from a device other
// than the one bound to the account.
var ErrDeviceMismatch = errors.New("account is bound to another device")

// dummyHash is compared against when the user doesn't exist, so the miss
// path costs the same as a real bcrypt comparison. Prevents timing attacks
// that could enumerate valid usernames.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Identity is the result of a successful login.
type Identity struct {
	AccountID int64
	Username  string
	IsAdmin   bool
}

// AccountStore is the subset of the store the auth service needs.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *store.Account) error
	GetAccount(ctx context.Context, id int64) (*store.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*store.Account, error)
	BindDevice(ctx context.Context, accountID int64, deviceID string) error
}

// Service authenticates credentials and enforces device pinning.
type Service struct {
	store  AccountStore
	logger *slog.Logger
}

// NewService creates an auth service backed by the given account store.
func NewService(s AccountStore) *Service {
	return &Service{
		store:  s,
		logger: slog.Default().With("component", "auth"),
	}
}

// Login verifies the credentials and, when a device ID is supplied,
// enforces the device pinning protocol: the first login carrying a device
// ID binds it atomically; later logins must carry the same device ID.
// An empty deviceID skips pinning entirely.
func (s *Service) Login(ctx context.Context, username, password, deviceID string) (*Identity, error) {
	account, err := s.store.GetAccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			// Dummy comparison keeps the miss path constant-time
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if !account.HasAccess {
		return nil, ErrAccessDenied
	}

	if deviceID != "" {
		if err := s.checkDevice(ctx, account, deviceID); err != nil {
			return nil, err
		}
	}

	s.logger.Info("login successful", "username", username, "account_id", account.ID)
	return &Identity{
		AccountID: account.ID,
		Username:  account.Username,
		IsAdmin:   account.IsAdmin,
	}, nil
}

// checkDevice runs the bind-or-match step. The bind is an atomic
// conditional update in the store; when it loses a race or the account is
// already bound, the current binding is re-read and compared.
func (s *Service) checkDevice(ctx context.Context, account *store.Account, deviceID string) error {
	if account.DeviceID != nil {
		if *account.DeviceID != deviceID {
			return ErrDeviceMismatch
		}
		return nil
	}

	err := s.store.BindDevice(ctx, account.ID, deviceID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrDeviceAlreadyBound) {
		return fmt.Errorf("binding device: %w", err)
	}

	// Lost the first-bind race: re-read and compare against the winner
	current, err := s.store.GetAccount(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("re-reading account after bind race: %w", err)
	}
	if current.DeviceID == nil || *current.DeviceID != deviceID {
		return ErrDeviceMismatch
	}
	return nil
}

// CreateAccount creates a new account with access enabled. The password is
// stored as a bcrypt hash; the plaintext is never persisted.
func (s *Service) CreateAccount(ctx context.Context, username, password string, isAdmin bool) (*store.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	account := &store.Account{
		Username:     username,
		PasswordHash: string(hash),
		HasAccess:    true,
		IsAdmin:      isAdmin,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}
