// ABOUTME: Tests for access code generation and redemption
// ABOUTME: Covers batch limits, token shape, collision retries, and normalization

package codes

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papergate/papergate/internal/store"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]{12}$`)

// fakeCodes is an in-memory CodeStore with the atomic redemption semantics
// of the SQLite implementation.
type fakeCodes struct {
	mu    sync.Mutex
	codes map[string]*store.AccessCode
	order []string

	// failInserts makes the next N inserts collide, for retry tests
	failInserts int
}

func newFakeCodes() *fakeCodes {
	return &fakeCodes{codes: make(map[string]*store.AccessCode)}
}

func (f *fakeCodes) CreateAccessCode(_ context.Context, code string, createdAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInserts > 0 {
		f.failInserts--
		return store.ErrCodeExists
	}
	if _, ok := f.codes[code]; ok {
		return store.ErrCodeExists
	}
	f.codes[code] = &store.AccessCode{Code: code, CreatedAt: createdAt}
	f.order = append(f.order, code)
	return nil
}

func (f *fakeCodes) RedeemAccessCode(_ context.Context, code string, usedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.codes[code]
	if !ok || c.Used {
		return store.ErrCodeUnavailable
	}
	c.Used = true
	c.UsedAt = &usedAt
	return nil
}

func (f *fakeCodes) ListAccessCodes(_ context.Context) ([]*store.AccessCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*store.AccessCode, 0, len(f.order))
	for _, code := range f.order {
		cp := *f.codes[code]
		out = append(out, &cp)
	}
	return out, nil
}

func TestGenerate(t *testing.T) {
	svc := NewService(newFakeCodes())

	generated, err := svc.Generate(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, generated, 5)

	seen := make(map[string]bool)
	for _, code := range generated {
		assert.Regexp(t, codePattern, code)
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}

	stored, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 5)
	for _, c := range stored {
		assert.False(t, c.Used)
	}
}

func TestGenerate_CountBounds(t *testing.T) {
	svc := NewService(newFakeCodes())
	ctx := context.Background()

	for _, count := range []int{0, -1, 101} {
		_, err := svc.Generate(ctx, count)
		assert.ErrorIs(t, err, ErrInvalidCount, "count %d", count)
	}

	generated, err := svc.Generate(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, generated, 1)
}

func TestGenerate_RetriesCollisions(t *testing.T) {
	fake := newFakeCodes()
	fake.failInserts = 3
	svc := NewService(fake)

	generated, err := svc.Generate(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, generated, 1)
}

func TestGenerate_ExhaustsRetryBudget(t *testing.T) {
	fake := newFakeCodes()
	fake.failInserts = maxDrawAttempts
	svc := NewService(fake)

	_, err := svc.Generate(context.Background(), 1)
	assert.ErrorIs(t, err, ErrGenerationExhausted)
}

func TestValidate(t *testing.T) {
	fake := newFakeCodes()
	svc := NewService(fake)
	ctx := context.Background()

	require.NoError(t, fake.CreateAccessCode(ctx, "ABCDEF123456", time.Now().UTC()))

	require.NoError(t, svc.Validate(ctx, "ABCDEF123456"))

	// A second redemption fails
	assert.ErrorIs(t, svc.Validate(ctx, "ABCDEF123456"), ErrCodeInvalid)
}

func TestValidate_NormalizesInput(t *testing.T) {
	fake := newFakeCodes()
	svc := NewService(fake)
	ctx := context.Background()

	require.NoError(t, fake.CreateAccessCode(ctx, "ABCDEF123456", time.Now().UTC()))

	assert.NoError(t, svc.Validate(ctx, "  abcdef123456\n"))
}

func TestValidate_RejectsMalformed(t *testing.T) {
	svc := NewService(newFakeCodes())
	ctx := context.Background()

	for _, code := range []string{"", "SHORT", "WAYTOOLONGCODE123"} {
		assert.ErrorIs(t, svc.Validate(ctx, code), ErrCodeInvalid, "code %q", code)
	}
}

func TestValidate_Unknown(t *testing.T) {
	svc := NewService(newFakeCodes())

	err := svc.Validate(context.Background(), "NOSUCHCODE12")
	assert.ErrorIs(t, err, ErrCodeInvalid)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "ABC123", Normalize(" abc123 "))
	assert.Equal(t, "ABC123", Normalize("ABC123"))
}
