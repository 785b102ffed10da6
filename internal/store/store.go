// ABOUTME: Store interface and data types for papergate persistence
// ABOUTME: Defines Account, AccessCode, Document structs and sentinel errors

package store

import (
	"context"
	"errors"
	"time"
)

// ErrAccountNotFound is returned when a requested account does not exist.
var ErrAccountNotFound = errors.New("account not found")

// ErrUsernameExists is returned when trying to create an account with an existing username.
var ErrUsernameExists = errors.New("username already exists")

// ErrEmailExists is returned when trying to create an account with an email
// that another account already holds. NULL emails never conflict.
var ErrEmailExists = errors.New("email already exists")

// ErrDeviceAlreadyBound is returned when a conditional device bind finds the
// account already bound. The caller re-reads to decide whether the bound
// device matches its own.
var ErrDeviceAlreadyBound = errors.New("device already bound")

// ErrCodeExists is returned when inserting an access code that already exists.
var ErrCodeExists = errors.New("access code already exists")

// ErrCodeUnavailable is returned when redeeming a code that does not exist or
// was already used. The two cases are deliberately indistinguishable.
var ErrCodeUnavailable = errors.New("access code invalid or already used")

// ErrDocumentNotFound is returned when a requested document does not exist.
var ErrDocumentNotFound = errors.New("document not found")

// Account represents a user account with an access gate and an optional
// bound device. DeviceID transitions from nil to a concrete value exactly
// once and is never overwritten.
type Account struct {
	ID           int64
	Username     string
	PasswordHash string
	Email        string // empty when not supplied
	HasAccess    bool
	IsAdmin      bool
	DeviceID     *string
	CreatedAt    time.Time
}

// AccessCode represents a single-use redemption code. Used flips from false
// to true exactly once.
type AccessCode struct {
	Code      string
	Used      bool
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Document represents a generated document record. Payload is the
// authoritative JSON copy of all fields; Name, Surname and Pesel are a
// queryable projection kept in sync with it.
type Document struct {
	ID         int64
	OwnerID    *int64 // nil for guest or code-redeemed creation
	Name       string
	Surname    string
	Pesel      string
	AccessCode string // redemption code reference, empty when none
	Payload    map[string]any
	CreatedAt  time.Time
}

// DocumentSummary is the admin list projection joining documents with the
// owning account's username.
type DocumentSummary struct {
	ID        int64
	Username  string // empty for ownerless documents
	Name      string
	Surname   string
	Pesel     string
	CreatedAt time.Time
}

// Store defines the interface for papergate persistence.
type Store interface {
	// Accounts
	CreateAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, id int64) (*Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*Account, error)
	FindAccountByEmailOrUsername(ctx context.Context, email, username string) (*Account, error)
	BindDevice(ctx context.Context, accountID int64, deviceID string) error
	SetAccess(ctx context.Context, accountID int64, hasAccess bool) error
	ListAccounts(ctx context.Context) ([]*Account, error)

	// Access codes
	CreateAccessCode(ctx context.Context, code string, createdAt time.Time) error
	RedeemAccessCode(ctx context.Context, code string, usedAt time.Time) error
	ListAccessCodes(ctx context.Context) ([]*AccessCode, error)

	// Documents
	CreateDocument(ctx context.Context, doc *Document) (int64, error)
	GetDocument(ctx context.Context, id int64) (*Document, error)
	UpdateDocument(ctx context.Context, doc *Document) error
	DeleteDocument(ctx context.Context, id int64) error
	ListDocuments(ctx context.Context) ([]*Document, error)
	ListDocumentSummaries(ctx context.Context) ([]*DocumentSummary, error)

	Close() error
}
