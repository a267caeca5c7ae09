package lockout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrLockedOut       = errors.New("too many failed attempts")
	ErrInvalidPasscode = errors.New("invalid passcode")
	ErrGateDisabled    = errors.New("admin passcode not configured")
)

// LockedError is returned while a key is locked.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%v: retry in %s", ErrLockedOut, e.RetryAfter.Round(time.Second))
}

func (e *LockedError) Unwrap() error { return ErrLockedOut }

// PasscodeError is returned for a wrong passcode that did not lock the key.
type PasscodeError struct {
	Remaining int
}

func (e *PasscodeError) Error() string {
	return fmt.Sprintf("%v: %d attempts left", ErrInvalidPasscode, e.Remaining)
}

func (e *PasscodeError) Unwrap() error { return ErrInvalidPasscode }

// =============================================================================
// GATE - bcrypt passcode behind the guard
// =============================================================================

type Gate struct {
	Guard *Guard
	hash  []byte
}

// NewGate checks that hash is a bcrypt hash. An empty hash yields a gate
// that refuses everything with ErrGateDisabled.
func NewGate(guard *Guard, hash string) (*Gate, error) {
	if hash == "" {
		return &Gate{Guard: guard}, nil
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("admin passcode hash: %w", err)
	}
	return &Gate{Guard: guard, hash: []byte(hash)}, nil
}

func (g *Gate) Enabled() bool {
	return len(g.hash) > 0
}

// Verify checks passcode for key. A locked key is refused without
// comparing the passcode.
func (g *Gate) Verify(ctx context.Context, key, passcode string) error {
	if !g.Enabled() {
		return ErrGateDisabled
	}

	st, err := g.Guard.Status(ctx, key)
	if err != nil {
		return err
	}
	if st.Locked {
		return &LockedError{RetryAfter: st.RetryAfter}
	}

	err = bcrypt.CompareHashAndPassword(g.hash, []byte(passcode))
	if err == nil {
		return g.Guard.Reset(ctx, key)
	}
	if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return fmt.Errorf("compare passcode: %w", err)
	}

	st, err = g.Guard.RecordFailure(ctx, key)
	if err != nil {
		return err
	}
	if st.Locked {
		return &LockedError{RetryAfter: st.RetryAfter}
	}
	return &PasscodeError{Remaining: st.Remaining}
}

// HashPasscode returns a bcrypt hash suitable for admin.passcode_hash.
func HashPasscode(passcode string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(passcode), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
