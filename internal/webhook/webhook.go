// ABOUTME: Idempotent account provisioning triggered by purchase webhooks
// ABOUTME: Insert-then-recover-on-conflict instead of racy existence pre-checks

package webhook

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/papergate/papergate/internal/store"
)

// ErrBadSecret is returned when the webhook secret does not match.
var ErrBadSecret = errors.New("invalid webhook secret")

// ErrMissingIdentity is returned when neither email nor username is supplied.
var ErrMissingIdentity = errors.New("email or username required")

// ErrAccountNotFound is returned when a username-only delivery matches no
// account and no email is available to create one.
var ErrAccountNotFound = errors.New("account not found")

// ProvisionStore is the subset of the store the provisioner needs.
type ProvisionStore interface {
	CreateAccount(ctx context.Context, account *store.Account) error
	GetAccountByUsername(ctx context.Context, username string) (*store.Account, error)
	FindAccountByEmailOrUsername(ctx context.Context, email, username string) (*store.Account, error)
	SetAccess(ctx context.Context, accountID int64, hasAccess bool) error
}

// Identity is the resolved account a purchase maps to.
type Identity struct {
	AccountID int64
	Username  string
}

// Provisioner grants access to accounts in response to purchase events.
type Provisioner struct {
	store  ProvisionStore
	secret string
	logger *slog.Logger
}

// NewProvisioner creates a provisioner validating deliveries against the
// given shared secret.
func NewProvisioner(s ProvisionStore, secret string) *Provisioner {
	return &Provisioner{
		store:  s,
		secret: secret,
		logger: slog.Default().With("component", "webhook"),
	}
}

// HandlePurchase resolves the account a purchase belongs to, creating it if
// necessary, and grants it access. The operation is idempotent under
// retried or duplicated deliveries: an insert that loses a uniqueness race
// recovers by re-reading the winner instead of failing.
func (p *Provisioner) HandlePurchase(ctx context.Context, email, username, productType, secret string) (*Identity, error) {
	if subtle.ConstantTimeCompare([]byte(secret), []byte(p.secret)) != 1 {
		return nil, ErrBadSecret
	}
	if email == "" && username == "" {
		return nil, ErrMissingIdentity
	}

	account, err := p.lookup(ctx, email, username)
	if err != nil && !errors.Is(err, store.ErrAccountNotFound) {
		return nil, err
	}

	if account == nil {
		account, err = p.provision(ctx, email, username)
		if err != nil {
			return nil, err
		}
	}

	// Unconditional grant covers both fresh accounts and pre-existing ones
	// whose access was revoked
	if err := p.store.SetAccess(ctx, account.ID, true); err != nil {
		return nil, fmt.Errorf("granting access: %w", err)
	}

	p.logger.Info("purchase provisioned",
		"account_id", account.ID,
		"username", account.Username,
		"product_type", productType,
	)
	return &Identity{AccountID: account.ID, Username: account.Username}, nil
}

// lookup finds the account for a delivery: first by email-or-username,
// then by username alone when the email path came up empty.
func (p *Provisioner) lookup(ctx context.Context, email, username string) (*store.Account, error) {
	account, err := p.store.FindAccountByEmailOrUsername(ctx, email, username)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, store.ErrAccountNotFound) {
		return nil, fmt.Errorf("looking up account: %w", err)
	}

	if email != "" && username != "" {
		account, err = p.store.GetAccountByUsername(ctx, username)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, store.ErrAccountNotFound) {
			return nil, fmt.Errorf("looking up account by username: %w", err)
		}
	}

	return nil, store.ErrAccountNotFound
}

// provision synthesizes a new account for an email we have never seen. The
// username is derived from the email's local part with a random suffix; the
// password is random and never leaves the process.
func (p *Provisioner) provision(ctx context.Context, email, username string) (*store.Account, error) {
	if email == "" {
		return nil, ErrAccountNotFound
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing generated password: %w", err)
	}

	account := &store.Account{
		Username:     derivedUsername(email),
		PasswordHash: string(hash),
		Email:        email,
		HasAccess:    true,
		CreatedAt:    time.Now().UTC(),
	}

	err = p.store.CreateAccount(ctx, account)
	if err == nil {
		p.logger.Info("provisioned new account", "account_id", account.ID, "username", account.Username)
		return account, nil
	}
	if !errors.Is(err, store.ErrEmailExists) && !errors.Is(err, store.ErrUsernameExists) {
		return nil, fmt.Errorf("creating account: %w", err)
	}

	// A concurrent duplicate delivery won the insert race. Re-read the
	// now-existing account and treat it as found.
	existing, err := p.store.FindAccountByEmailOrUsername(ctx, email, username)
	if err != nil {
		return nil, fmt.Errorf("re-reading account after insert conflict: %w", err)
	}
	return existing, nil
}

// derivedUsername builds a username from the email local part plus a short
// random suffix to dodge username collisions.
func derivedUsername(email string) string {
	local := email
	if at := strings.Index(email, "@"); at > 0 {
		local = email[:at]
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return local + "-" + suffix
}
