// ABOUTME: Single-use access code generation and redemption
// ABOUTME: Draws 12-character uppercase-alphanumeric tokens from crypto/rand

package codes

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/papergate/papergate/internal/store"
)

// CodeLength is the fixed length of every access code.
const CodeLength = 12

// MaxBatchSize caps how many codes one generate call may produce.
const MaxBatchSize = 100

// maxDrawAttempts bounds collision retries per code slot.
const maxDrawAttempts = 100

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// ErrInvalidCount is returned when the requested batch size is out of range.
var ErrInvalidCount = errors.New("count must be between 1 and 100")

// ErrCodeInvalid is returned when a code does not exist or was already used.
// The two cases are indistinguishable to the caller.
var ErrCodeInvalid = errors.New("invalid or already used code")

// ErrGenerationExhausted is returned when a code slot could not be filled
// within the collision retry budget.
var ErrGenerationExhausted = errors.New("could not generate a unique code")

// CodeStore is the subset of the store the code service needs.
type CodeStore interface {
	CreateAccessCode(ctx context.Context, code string, createdAt time.Time) error
	RedeemAccessCode(ctx context.Context, code string, usedAt time.Time) error
	ListAccessCodes(ctx context.Context) ([]*store.AccessCode, error)
}

// Service issues and redeems single-use access codes.
type Service struct {
	store  CodeStore
	logger *slog.Logger
}

// NewService creates a code service backed by the given store.
func NewService(s CodeStore) *Service {
	return &Service{
		store:  s,
		logger: slog.Default().With("component", "codes"),
	}
}

// Generate creates count new unused codes and returns them in generation
// order. Collisions with stored codes are retried up to the per-slot budget.
func (s *Service) Generate(ctx context.Context, count int) ([]string, error) {
	if count < 1 || count > MaxBatchSize {
		return nil, ErrInvalidCount
	}

	generated := make([]string, 0, count)
	for i := 0; i < count; i++ {
		code, err := s.drawCode(ctx)
		if err != nil {
			return nil, err
		}
		generated = append(generated, code)
	}

	s.logger.Info("generated access codes", "count", count)
	return generated, nil
}

// drawCode draws random codes until one inserts without a collision.
func (s *Service) drawCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxDrawAttempts; attempt++ {
		code, err := randomCode()
		if err != nil {
			return "", fmt.Errorf("drawing code: %w", err)
		}

		err = s.store.CreateAccessCode(ctx, code, time.Now().UTC())
		if err == nil {
			return code, nil
		}
		if errors.Is(err, store.ErrCodeExists) {
			continue
		}
		return "", fmt.Errorf("storing code: %w", err)
	}
	return "", ErrGenerationExhausted
}

// Validate redeems a code. The lookup and the mark-as-used write are a
// single atomic conditional update in the store, so under concurrent calls
// with the same code exactly one caller succeeds.
func (s *Service) Validate(ctx context.Context, code string) error {
	normalized := Normalize(code)
	if len(normalized) != CodeLength {
		return ErrCodeInvalid
	}

	err := s.store.RedeemAccessCode(ctx, normalized, time.Now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrCodeUnavailable) {
			return ErrCodeInvalid
		}
		return fmt.Errorf("redeeming code: %w", err)
	}
	return nil
}

// List returns all codes, used and unused, newest first.
func (s *Service) List(ctx context.Context) ([]*store.AccessCode, error) {
	return s.store.ListAccessCodes(ctx)
}

// Normalize trims surrounding whitespace and uppercases a code as typed by
// a user.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// randomCode draws one fixed-length token from the code alphabet.
func randomCode() (string, error) {
	var b strings.Builder
	b.Grow(CodeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}
